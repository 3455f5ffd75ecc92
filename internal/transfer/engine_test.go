package transfer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"filehub/internal/datauri"
	"filehub/internal/registry"
)

const testTick = 200 * time.Millisecond

type fakeCreator struct {
	mu       sync.Mutex
	clock    clock.Clock
	recorder *Recorder
	err      error

	calls      []registry.NewFile
	calledAt   []time.Time
	lastEvents []Event
}

func (f *fakeCreator) Create(ctx context.Context, in registry.NewFile) (registry.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, in)
	f.calledAt = append(f.calledAt, f.clock.Now())
	if f.recorder != nil {
		events := f.recorder.Events()
		if len(events) > 0 {
			f.lastEvents = append(f.lastEvents, events[len(events)-1])
		}
	}
	if f.err != nil {
		return registry.FileRecord{}, f.err
	}
	return registry.FileRecord{
		ID:         "file:1_abc",
		Name:       in.Name,
		Size:       in.Size,
		MediaType:  in.MediaType,
		UploadedBy: in.UploadedBy,
		Data:       in.Data,
	}, nil
}

func (f *fakeCreator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestEngine(creator Creator, mock *clock.Mock, maxIncrement float64) *Engine {
	return New(creator, zerolog.Nop(), Options{
		Clock:         mock,
		TickInterval:  testTick,
		MaxIncrement:  maxIncrement,
		MinUploadTime: 1500 * time.Millisecond,
		Rand: func() *rand.Rand {
			return rand.New(rand.NewPCG(42, 42))
		},
	})
}

// animationStarted 在第一次进入 animating 时记录模拟时间并关闭通道。
type animationStarted struct {
	clock *clock.Mock
	once  sync.Once
	ch    chan struct{}
	at    time.Time
}

func newAnimationStarted(mock *clock.Mock) *animationStarted {
	return &animationStarted{clock: mock, ch: make(chan struct{})}
}

func (a *animationStarted) Report(ev Event) {
	if ev.State != StateAnimating {
		return
	}
	a.once.Do(func() {
		a.at = a.clock.Now()
		close(a.ch)
	})
}

// drive 逐个 tick 推进模拟时钟，直到 done 关闭。
func drive(t *testing.T, mock *clock.Mock, done <-chan struct{}) {
	t.Helper()
	for i := 0; i < 20000; i++ {
		select {
		case <-done:
			return
		default:
		}
		mock.Add(testTick / 4)
	}
	t.Fatal("transfer did not finish")
}

func assertMonotonic(t *testing.T, values []float64) {
	t.Helper()
	for i := 1; i < len(values); i++ {
		if values[i] < values[i-1] {
			t.Fatalf("progress decreased at %d: %v", i, values)
		}
	}
}

func statesEqual(got, want []State) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

type uploadResult struct {
	record registry.FileRecord
	err    error
}

func startUpload(t *testing.T, engine *Engine, mock *clock.Mock, up Upload, reporters ...Reporter) (*animationStarted, uploadResult) {
	t.Helper()
	started := newAnimationStarted(mock)
	done := make(chan struct{})
	var res uploadResult
	go func() {
		defer close(done)
		res.record, res.err = engine.Upload(context.Background(), up, append(reporters, started)...)
	}()

	select {
	case <-started.ch:
	case <-done:
		return started, res
	case <-time.After(5 * time.Second):
		t.Fatal("upload never started animating")
	}
	drive(t, mock, done)
	return started, res
}

func avaNotes() Upload {
	return Upload{
		Name:       "notes.txt",
		MediaType:  "text/plain",
		UploadedBy: "Ava",
		Content:    strings.NewReader("0123456789"),
	}
}

func TestEngine_Upload_CommitsOnlyAfter100AndFloor(t *testing.T) {
	mock := clock.NewMock()
	rec := &Recorder{}
	creator := &fakeCreator{clock: mock, recorder: rec}
	engine := newTestEngine(creator, mock, DefaultMaxIncrement)

	started, res := startUpload(t, engine, mock, avaNotes(), rec)
	if res.err != nil {
		t.Fatalf("Upload returned error: %v", res.err)
	}
	if creator.callCount() != 1 {
		t.Fatalf("expected exactly one commit, got %d", creator.callCount())
	}

	if elapsed := creator.calledAt[0].Sub(started.at); elapsed < 1500*time.Millisecond {
		t.Fatalf("commit happened %v after animation start, before the floor", elapsed)
	}
	last := creator.lastEvents[0]
	if last.State != StateCommitting || last.Progress != 100 {
		t.Fatalf("expected commit at 100%% while committing, got %+v", last)
	}

	got := creator.calls[0]
	if got.Name != "notes.txt" || got.Size != 10 || got.UploadedBy != "Ava" {
		t.Fatalf("unexpected commit input: %+v", got)
	}
	if got.Data != datauri.Encode("text/plain", []byte("0123456789")) {
		t.Fatalf("unexpected payload: %s", got.Data)
	}

	want := []State{StateEncoding, StateAnimating, StateCommitting, StateComplete}
	if states := rec.States(); !statesEqual(states, want) {
		t.Fatalf("expected states %v, got %v", want, states)
	}
	progress := rec.Progress()
	assertMonotonic(t, progress)
	if progress[len(progress)-1] != 100 {
		t.Fatalf("expected final progress 100, got %v", progress[len(progress)-1])
	}
	if events := rec.Events(); events[len(events)-1].RecordID != "file:1_abc" {
		t.Fatalf("expected record id on completion, got %+v", events[len(events)-1])
	}
}

func TestEngine_Upload_FloorSnapsSlowAnimationTo100(t *testing.T) {
	mock := clock.NewMock()
	rec := &Recorder{}
	creator := &fakeCreator{clock: mock, recorder: rec}
	// 增量极小，动画只能靠最短时长补齐
	engine := newTestEngine(creator, mock, 0.01)

	started, res := startUpload(t, engine, mock, avaNotes(), rec)
	if res.err != nil {
		t.Fatalf("Upload returned error: %v", res.err)
	}
	elapsed := creator.calledAt[0].Sub(started.at)
	if elapsed < 1500*time.Millisecond || elapsed > 2*time.Second {
		t.Fatalf("expected commit right after the floor, got %v", elapsed)
	}
	if last := creator.lastEvents[0]; last.Progress != 100 {
		t.Fatalf("expected snapped progress 100, got %v", last.Progress)
	}
	assertMonotonic(t, rec.Progress())
}

func TestEngine_Upload_FastAnimationWaitsForFloor(t *testing.T) {
	mock := clock.NewMock()
	rec := &Recorder{}
	creator := &fakeCreator{clock: mock, recorder: rec}
	// 单步增量远超 100，第一次 tick 即到顶
	engine := newTestEngine(creator, mock, 1000)

	var mu sync.Mutex
	var reachedAt time.Time
	reached := ReporterFunc(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		if ev.State == StateAnimating && ev.Progress == 100 && reachedAt.IsZero() {
			reachedAt = mock.Now()
		}
	})

	started, res := startUpload(t, engine, mock, avaNotes(), rec, reached)
	if res.err != nil {
		t.Fatalf("Upload returned error: %v", res.err)
	}

	mu.Lock()
	defer mu.Unlock()
	if reachedAt.IsZero() {
		t.Fatal("animation never reached 100")
	}
	if d := reachedAt.Sub(started.at); d >= 1500*time.Millisecond {
		t.Fatalf("expected animation to finish before the floor, took %v", d)
	}
	elapsed := creator.calledAt[0].Sub(started.at)
	if elapsed < 1500*time.Millisecond || elapsed > 2*time.Second {
		t.Fatalf("expected commit once the floor elapsed, got %v", elapsed)
	}
	if last := creator.lastEvents[0]; last.State != StateCommitting || last.Progress != 100 {
		t.Fatalf("expected commit at 100%% while committing, got %+v", last)
	}
}

func TestEngine_Upload_EventsFlagPendingEncode(t *testing.T) {
	mock := clock.NewMock()
	rec := &Recorder{}
	creator := &fakeCreator{clock: mock, recorder: rec}
	engine := newTestEngine(creator, mock, DefaultMaxIncrement)

	pr, pw := io.Pipe()
	up := avaNotes()
	up.Content = pr

	started := newAnimationStarted(mock)
	done := make(chan struct{})
	var err error
	go func() {
		defer close(done)
		_, err = engine.Upload(context.Background(), up, rec, started)
	}()
	select {
	case <-started.ch:
	case <-time.After(5 * time.Second):
		t.Fatal("upload never started animating")
	}

	for _, ev := range rec.Events() {
		if !ev.Encoding {
			t.Fatalf("expected encoding flag while content is unread, got %+v", ev)
		}
	}

	go func() {
		_, _ = pw.Write([]byte("0123456789"))
		_ = pw.Close()
	}()
	drive(t, mock, done)
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}

	if last := creator.lastEvents[0]; last.Encoding || last.State != StateCommitting {
		t.Fatalf("expected encoding finished before commit, got %+v", last)
	}
	if got := creator.calls[0]; got.Size != 10 {
		t.Fatalf("unexpected size %d", got.Size)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestEngine_Upload_EncodingFailureSkipsStore(t *testing.T) {
	mock := clock.NewMock()
	rec := &Recorder{}
	creator := &fakeCreator{clock: mock}
	engine := newTestEngine(creator, mock, DefaultMaxIncrement)

	up := avaNotes()
	up.Content = failingReader{}
	_, res := startUpload(t, engine, mock, up, rec)

	var encErr *registry.EncodingError
	if !errors.As(res.err, &encErr) {
		t.Fatalf("expected EncodingError, got %v", res.err)
	}
	if creator.callCount() != 0 {
		t.Fatalf("expected no store call, got %d", creator.callCount())
	}
	states := rec.States()
	if states[len(states)-1] != StateFailed {
		t.Fatalf("expected failed state, got %v", states)
	}
}

func TestEngine_Upload_CommitFailureThenRetryRestartsProgress(t *testing.T) {
	mock := clock.NewMock()
	writeErr := &registry.StoreWriteError{Op: "set", Key: "file:1_abc", Err: errors.New("quota exceeded")}
	creator := &fakeCreator{clock: mock, err: writeErr}
	engine := newTestEngine(creator, mock, DefaultMaxIncrement)

	first := &Recorder{}
	_, res := startUpload(t, engine, mock, avaNotes(), first)
	var storeErr *registry.StoreWriteError
	if !errors.As(res.err, &storeErr) {
		t.Fatalf("expected StoreWriteError, got %v", res.err)
	}
	events := first.Events()
	failed := events[len(events)-1]
	if failed.State != StateFailed || failed.Error == "" {
		t.Fatalf("expected failed event with message, got %+v", failed)
	}

	creator.mu.Lock()
	creator.err = nil
	creator.mu.Unlock()

	second := &Recorder{}
	_, res = startUpload(t, engine, mock, avaNotes(), second)
	if res.err != nil {
		t.Fatalf("retry returned error: %v", res.err)
	}
	progress := second.Progress()
	if progress[0] != 0 {
		t.Fatalf("expected retry to restart at 0, got %v", progress[0])
	}
	assertMonotonic(t, progress)
	if creator.callCount() != 2 {
		t.Fatalf("expected two commits, got %d", creator.callCount())
	}
}

func TestEngine_Upload_RejectsIncompleteRequest(t *testing.T) {
	mock := clock.NewMock()
	creator := &fakeCreator{clock: mock}
	engine := newTestEngine(creator, mock, DefaultMaxIncrement)
	rec := &Recorder{}

	up := avaNotes()
	up.UploadedBy = "  "
	if _, err := engine.Upload(context.Background(), up, rec); !errors.Is(err, ErrInvalidTransfer) {
		t.Fatalf("expected ErrInvalidTransfer, got %v", err)
	}
	if len(rec.Events()) != 0 {
		t.Fatalf("expected no events, got %v", rec.Events())
	}
}

func TestEngine_Upload_EngineReporterSeesEveryOperation(t *testing.T) {
	mock := clock.NewMock()
	shared := &Recorder{}
	engine := New(&fakeCreator{clock: mock}, zerolog.Nop(), Options{
		Clock:    mock,
		Reporter: shared,
	})

	up := avaNotes()
	up.TransferID = "t-1"
	_, res := startUpload(t, engine, mock, up)
	if res.err != nil {
		t.Fatalf("Upload returned error: %v", res.err)
	}
	for _, ev := range shared.Events() {
		if ev.TransferID != "t-1" || ev.Kind != KindUpload {
			t.Fatalf("unexpected event %+v", ev)
		}
	}
}

func runDownload(t *testing.T, engine *Engine, mock *clock.Mock, dl Download, reporters ...Reporter) error {
	t.Helper()
	done := make(chan struct{})
	var err error
	go func() {
		defer close(done)
		err = engine.Download(context.Background(), dl, reporters...)
	}()
	drive(t, mock, done)
	return err
}

func notesRecord() registry.FileRecord {
	return registry.FileRecord{
		ID:         "file:1_abc",
		Name:       "notes.txt",
		Size:       10,
		MediaType:  "text/plain",
		UploadedBy: "Ava",
		Data:       datauri.Encode("text/plain", []byte("0123456789")),
	}
}

func TestEngine_Download_SavesDecodedContent(t *testing.T) {
	mock := clock.NewMock()
	creator := &fakeCreator{clock: mock}
	engine := newTestEngine(creator, mock, DefaultMaxIncrement)
	rec := &Recorder{}

	var buf bytes.Buffer
	if err := runDownload(t, engine, mock, Download{Record: notesRecord(), Saver: WriterSaver{W: &buf}}, rec); err != nil {
		t.Fatalf("Download returned error: %v", err)
	}
	if buf.String() != "0123456789" {
		t.Fatalf("unexpected saved content %q", buf.String())
	}
	want := []State{StateAnimating, StateSaving, StateComplete}
	if states := rec.States(); !statesEqual(states, want) {
		t.Fatalf("expected states %v, got %v", want, states)
	}
	assertMonotonic(t, rec.Progress())
	if creator.callCount() != 0 {
		t.Fatal("download must not write to the store")
	}
}

func TestEngine_Download_CorruptPayloadFails(t *testing.T) {
	mock := clock.NewMock()
	engine := newTestEngine(&fakeCreator{clock: mock}, mock, DefaultMaxIncrement)
	rec := &Recorder{}

	record := notesRecord()
	record.Data = "not a data uri"
	saved := false
	saver := SaverFunc(func(context.Context, string, string, []byte) error {
		saved = true
		return nil
	})

	err := runDownload(t, engine, mock, Download{Record: record, Saver: saver}, rec)
	var encErr *registry.EncodingError
	if !errors.As(err, &encErr) {
		t.Fatalf("expected EncodingError, got %v", err)
	}
	if saved {
		t.Fatal("saver must not be called for a corrupt payload")
	}
	states := rec.States()
	if states[len(states)-1] != StateFailed {
		t.Fatalf("expected failed state, got %v", states)
	}
}

func TestEngine_Download_SaverFailure(t *testing.T) {
	mock := clock.NewMock()
	engine := newTestEngine(&fakeCreator{clock: mock}, mock, DefaultMaxIncrement)

	saveErr := errors.New("read-only")
	saver := SaverFunc(func(context.Context, string, string, []byte) error { return saveErr })
	err := runDownload(t, engine, mock, Download{Record: notesRecord(), Saver: saver})
	if !errors.Is(err, saveErr) {
		t.Fatalf("expected saver error, got %v", err)
	}
}

func TestEngine_Download_RequiresSaver(t *testing.T) {
	engine := newTestEngine(&fakeCreator{clock: clock.NewMock()}, clock.NewMock(), DefaultMaxIncrement)
	if err := engine.Download(context.Background(), Download{Record: notesRecord()}); !errors.Is(err, ErrInvalidTransfer) {
		t.Fatalf("expected ErrInvalidTransfer, got %v", err)
	}
}

func TestFileSaver_WritesUnderDirUsingBaseName(t *testing.T) {
	fs := afero.NewMemMapFs()
	saver := FileSaver{Fs: fs, Dir: "/downloads"}

	if err := saver.Save(context.Background(), "../../etc/passwd", "text/plain", []byte("x")); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	data, err := afero.ReadFile(fs, "/downloads/passwd")
	if err != nil {
		t.Fatalf("expected file under download dir: %v", err)
	}
	if string(data) != "x" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestFileSaver_ExplicitPath(t *testing.T) {
	fs := afero.NewMemMapFs()
	saver := FileSaver{Fs: fs, Path: "/out/copy.bin"}
	if err := saver.Save(context.Background(), "notes.txt", "", []byte("abc")); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if ok, _ := afero.Exists(fs, "/out/copy.bin"); !ok {
		t.Fatal("expected explicit path to be written")
	}
}

func TestSafeName(t *testing.T) {
	cases := map[string]string{
		"notes.txt":         "notes.txt",
		"a/b/c.png":         "c.png",
		`C:\Users\ava\x.md`: "x.md",
		"..":                "download",
		"":                  "download",
		"/":                 "download",
	}
	for in, want := range cases {
		if got := SafeName(in); got != want {
			t.Fatalf("SafeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOperation_ProgressNeverDecreases(t *testing.T) {
	rec := &Recorder{}
	op := newOperation("op", KindUpload, "a", rec)
	op.enter(StateAnimating, 0)
	op.advance(40)
	op.advance(10)
	op.advance(250)
	if op.Progress() != 100 {
		t.Fatalf("expected clamp at 100, got %v", op.Progress())
	}
	assertMonotonic(t, rec.Progress())
}

func TestBarReporter_RendersUntilComplete(t *testing.T) {
	var buf bytes.Buffer
	bar := NewBarReporter(&buf)
	for _, ev := range []Event{
		{TransferID: "x", Name: "notes.txt", State: StateAnimating, Progress: 0},
		{TransferID: "x", Name: "notes.txt", State: StateAnimating, Progress: 55},
		{TransferID: "x", Name: "notes.txt", State: StateComplete, Progress: 100},
	} {
		bar.Report(ev)
	}
	if !strings.Contains(buf.String(), "notes.txt") {
		t.Fatalf("expected bar output to name the file, got %q", buf.String())
	}

	buf.Reset()
	bar.Report(Event{TransferID: "y", Name: "b", State: StateFailed, Error: "boom"})
	out, _ := io.ReadAll(&buf)
	if !strings.Contains(string(out), "boom") {
		t.Fatalf("expected error output, got %q", out)
	}
}
