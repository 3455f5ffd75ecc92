package transfer

import (
	"fmt"
	"io"
	"sync"

	"github.com/schollz/progressbar/v3"
)

// BarReporter 为每个传输在终端绘制一个进度条。
type BarReporter struct {
	w io.Writer

	mu   sync.Mutex
	bars map[string]*progressbar.ProgressBar
}

func NewBarReporter(w io.Writer) *BarReporter {
	return &BarReporter{w: w, bars: make(map[string]*progressbar.ProgressBar)}
}

func (b *BarReporter) Report(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	bar, ok := b.bars[ev.TransferID]
	if !ok {
		if ev.State == StateFailed {
			fmt.Fprintf(b.w, "Error: %s\n", ev.Error)
			return
		}
		bar = b.newBar(ev)
		b.bars[ev.TransferID] = bar
	}

	switch ev.State {
	case StateComplete:
		_ = bar.Set(100)
		_ = bar.Finish()
		delete(b.bars, ev.TransferID)
	case StateFailed:
		_ = bar.Exit()
		fmt.Fprintf(b.w, "\nError: %s\n", ev.Error)
		delete(b.bars, ev.TransferID)
	default:
		bar.Describe(describe(ev))
		_ = bar.Set(int(ev.Progress))
	}
}

func (b *BarReporter) newBar(ev Event) *progressbar.ProgressBar {
	w := b.w
	return progressbar.NewOptions(100,
		progressbar.OptionSetDescription(describe(ev)),
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(w, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func describe(ev Event) string {
	return fmt.Sprintf("%-9s %s", ev.State, ev.Name)
}
