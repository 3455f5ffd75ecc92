package transfer

import (
	"iter"
	"math/rand/v2"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	DefaultTickInterval  = 200 * time.Millisecond
	DefaultMaxIncrement  = 15.0
	DefaultMaxTicks      = 1000
	DefaultMinUploadTime = 1500 * time.Millisecond
)

// StepOptions 控制进度序列的形状。
type StepOptions struct {
	MaxIncrement float64 // 每个 tick 的增量取自 [0, MaxIncrement)
	MaxTicks     int     // 到达该 tick 数时直接补齐到 100，保证序列有限
}

// Steps 返回一个惰性的进度序列：从 0 开始，每个 tick 加上随机增量，
// 达到或超过 100 时输出恰好 100 并结束。序列单调不减，与任何计时器无关。
func Steps(rng *rand.Rand, opts StepOptions) iter.Seq[float64] {
	maxInc := opts.MaxIncrement
	if maxInc <= 0 {
		maxInc = DefaultMaxIncrement
	}
	maxTicks := opts.MaxTicks
	if maxTicks <= 0 {
		maxTicks = DefaultMaxTicks
	}

	return func(yield func(float64) bool) {
		p := 0.0
		if !yield(p) {
			return
		}
		for tick := 1; ; tick++ {
			p += rng.Float64() * maxInc
			if p >= 100 || tick >= maxTicks {
				yield(100)
				return
			}
			if !yield(p) {
				return
			}
		}
	}
}

// Animator 以固定间隔驱动进度序列，是 Steps 在真实（或模拟）时钟上的适配层。
type Animator struct {
	Clock    clock.Clock
	Interval time.Duration
}

// Signals 是动画过程中可能提前结束动画的外部事件。nil 通道永不触发。
type Signals struct {
	Snap  <-chan time.Time // 触发时进度直接补齐到 100
	Abort <-chan struct{}  // 触发时动画停在当前进度
}

// Finish 描述动画如何结束。
type Finish int

const (
	FinishReached Finish = iota // 序列自然到达 100
	FinishSnapped               // Snap 触发
	FinishAborted               // Abort 触发
)

// Run 在每个 tick 取序列下一个值并回调 report，直到进度为 100 或被中止。
func (a Animator) Run(steps iter.Seq[float64], sig Signals, report func(float64)) Finish {
	next, stop := iter.Pull(steps)
	defer stop()

	interval := a.Interval
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	clk := a.Clock
	if clk == nil {
		clk = clock.New()
	}
	ticker := clk.Ticker(interval)
	defer ticker.Stop()

	// 第一个值恒为 0，由调用方在进入动画状态时上报
	p, _ := next()
	for p < 100 {
		select {
		case <-ticker.C:
			v, ok := next()
			if !ok {
				v = 100
			}
			p = v
			report(p)
		case <-sig.Snap:
			report(100)
			return FinishSnapped
		case <-sig.Abort:
			return FinishAborted
		}
	}
	return FinishReached
}
