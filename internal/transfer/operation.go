package transfer

import (
	"sync"
)

// Operation 保存一次进行中传输的状态，可被并发读取。
type Operation struct {
	ID   string
	Kind Kind
	Name string

	reporter Reporter

	mu       sync.RWMutex
	state    State
	progress float64
	err      error
	recordID string
	encoding bool
}

func newOperation(id string, kind Kind, name string, reporter Reporter) *Operation {
	if reporter == nil {
		reporter = NopReporter{}
	}
	return &Operation{ID: id, Kind: kind, Name: name, reporter: reporter, state: StateIdle}
}

func (o *Operation) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

func (o *Operation) Progress() float64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.progress
}

func (o *Operation) Err() error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.err
}

// enter 切换阶段并上报；进度只增不减，且不超过 100。
func (o *Operation) enter(state State, progress float64) {
	o.mu.Lock()
	o.state = state
	o.setProgressLocked(progress)
	ev := o.eventLocked()
	o.mu.Unlock()
	o.reporter.Report(ev)
}

func (o *Operation) advance(progress float64) {
	o.mu.Lock()
	o.setProgressLocked(progress)
	ev := o.eventLocked()
	o.mu.Unlock()
	o.reporter.Report(ev)
}

// setEncoding 只修改标记，由下一次上报带出。
func (o *Operation) setEncoding(v bool) {
	o.mu.Lock()
	o.encoding = v
	o.mu.Unlock()
}

func (o *Operation) complete(recordID string) {
	o.mu.Lock()
	o.recordID = recordID
	o.mu.Unlock()
	o.enter(StateComplete, 100)
}

func (o *Operation) fail(err error) {
	o.mu.Lock()
	o.err = err
	o.state = StateFailed
	ev := o.eventLocked()
	o.mu.Unlock()
	o.reporter.Report(ev)
}

func (o *Operation) setProgressLocked(p float64) {
	if p > 100 {
		p = 100
	}
	if p > o.progress {
		o.progress = p
	}
}

func (o *Operation) eventLocked() Event {
	ev := Event{
		TransferID: o.ID,
		Kind:       o.Kind,
		Name:       o.Name,
		State:      o.state,
		Progress:   o.progress,
		RecordID:   o.recordID,
		Encoding:   o.encoding,
		Err:        o.err,
	}
	if o.err != nil {
		ev.Error = o.err.Error()
	}
	return ev
}
