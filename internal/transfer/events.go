package transfer

import (
	"sync"
)

// Kind 区分上传与下载。
type Kind string

const (
	KindUpload   Kind = "upload"
	KindDownload Kind = "download"
)

// State 描述单个传输操作所处的阶段。
//
// 上传: idle → encoding → animating → committing → complete | failed
// 下载: idle → animating → saving → complete | failed
type State string

const (
	StateIdle       State = "idle"
	StateEncoding   State = "encoding"
	StateAnimating  State = "animating"
	StateCommitting State = "committing"
	StateSaving     State = "saving"
	StateComplete   State = "complete"
	StateFailed     State = "failed"
)

// Terminal 表示操作已结束。
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed
}

// Event 在每次状态变化与每个进度 tick 时发出。
type Event struct {
	TransferID string  `json:"transferId"`
	Kind       Kind    `json:"kind"`
	Name       string  `json:"name"`
	State      State   `json:"state"`
	Progress   float64 `json:"progress"`
	Encoding   bool    `json:"encoding,omitempty"` // 上传内容仍在编码
	RecordID   string  `json:"recordId,omitempty"`
	Error      string  `json:"error,omitempty"`
	Err        error   `json:"-"`
}

// Reporter 接收传输事件。实现需自行保证并发安全。
type Reporter interface {
	Report(Event)
}

// ReporterFunc 让普通函数实现 Reporter。
type ReporterFunc func(Event)

func (f ReporterFunc) Report(ev Event) { f(ev) }

// NopReporter 丢弃全部事件。
type NopReporter struct{}

func (NopReporter) Report(Event) {}

// MultiReporter 依次转发给多个 Reporter，忽略 nil。
type MultiReporter []Reporter

func (m MultiReporter) Report(ev Event) {
	for _, r := range m {
		if r != nil {
			r.Report(ev)
		}
	}
}

// Recorder 保存收到的全部事件，供测试与调试使用。
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Report(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// States 返回去重后的状态序列。
func (r *Recorder) States() []State {
	var states []State
	for _, ev := range r.Events() {
		if len(states) == 0 || states[len(states)-1] != ev.State {
			states = append(states, ev.State)
		}
	}
	return states
}

// Progress 返回按顺序上报的全部进度值。
func (r *Recorder) Progress() []float64 {
	events := r.Events()
	out := make([]float64, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Progress)
	}
	return out
}
