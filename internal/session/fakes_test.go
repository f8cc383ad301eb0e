package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/memtest/internal/experiment"
	"github.com/example/memtest/internal/export"
	"github.com/example/memtest/internal/registry"
	"github.com/example/memtest/pkg/models"
)

var errUnavailable = errors.New("store unavailable")

// fakeClock only moves when Advance is called. Advance delivers one tick to
// every running ticker, dropping it if the previous one was not consumed yet.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) NewTicker(time.Duration) Ticker {
	t := &fakeTicker{c: make(chan time.Time, 1)}
	f.mu.Lock()
	f.tickers = append(f.tickers, t)
	f.mu.Unlock()
	return t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	now := f.now
	tickers := append([]*fakeTicker(nil), f.tickers...)
	f.mu.Unlock()

	for _, t := range tickers {
		t.fire(now)
	}
}

type fakeTicker struct {
	mu      sync.Mutex
	c       chan time.Time
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.c }

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

func (t *fakeTicker) fire(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	select {
	case t.c <- now:
	default:
	}
}

// recorder implements Presenter and Player and keeps everything in one ordered log
type recorder struct {
	mu         sync.Mutex
	events     []string
	views      []PhaseView
	countdowns []time.Duration
	feedback   []RecallFeedback
	notices    []Notice
	docs       []export.Document
	playErr    error
	stops      int
}

func (r *recorder) log(event string) {
	r.events = append(r.events, event)
}

func (r *recorder) ShowPhase(_ context.Context, view PhaseView) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log("show:" + string(view.Phase))
	r.views = append(r.views, view)
	return nil
}

func (r *recorder) ShowCountdown(_ context.Context, _ Phase, remaining time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.countdowns = append(r.countdowns, remaining)
	return nil
}

func (r *recorder) ShowRecallFeedback(_ context.Context, fb RecallFeedback) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.feedback = append(r.feedback, fb)
	return nil
}

func (r *recorder) ShowNotice(_ context.Context, n Notice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log("notice:" + string(n.Kind))
	r.notices = append(r.notices, n)
	return nil
}

func (r *recorder) Deliver(_ context.Context, doc export.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log("deliver:" + doc.Name)
	r.docs = append(r.docs, doc)
	return nil
}

func (r *recorder) Play(_ context.Context, resource string, loop bool) (Playback, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.playErr != nil {
		return nil, r.playErr
	}
	r.log("play:" + resource)
	return &recordedPlayback{r: r}, nil
}

type recordedPlayback struct {
	r       *recorder
	stopped bool
}

func (p *recordedPlayback) Stop(context.Context) error {
	p.r.mu.Lock()
	defer p.r.mu.Unlock()
	if p.stopped {
		return nil
	}
	p.stopped = true
	p.r.stops++
	p.r.log("stop")
	return nil
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) Countdowns() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.countdowns...)
}

func (r *recorder) Feedback() []RecallFeedback {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RecallFeedback(nil), r.feedback...)
}

func (r *recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

func (r *recorder) LastView() PhaseView {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.views) == 0 {
		return PhaseView{}
	}
	return r.views[len(r.views)-1]
}

// scriptedRegistry wraps a registry, counts calls and injects failures per operation
type scriptedRegistry struct {
	registry.Registry

	mu        sync.Mutex
	calls     map[string]int
	failures  map[string]int // remaining failures per op, -1 fails forever
	createErr error
}

func newScriptedRegistry() *scriptedRegistry {
	return &scriptedRegistry{
		Registry: registry.NewMemory(),
		calls:    make(map[string]int),
		failures: make(map[string]int),
	}
}

func (s *scriptedRegistry) fail(op string, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = times
}

func (s *scriptedRegistry) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *scriptedRegistry) enter(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op]++
	switch n := s.failures[op]; {
	case n < 0:
		return errUnavailable
	case n > 0:
		s.failures[op] = n - 1
		return errUnavailable
	}
	return nil
}

func (s *scriptedRegistry) Get(ctx context.Context, id string) (*models.ParticipantRecord, error) {
	if err := s.enter("get"); err != nil {
		return nil, err
	}
	return s.Registry.Get(ctx, id)
}

func (s *scriptedRegistry) Create(ctx context.Context, rec *models.ParticipantRecord) error {
	if err := s.enter("create"); err != nil {
		return err
	}
	if s.createErr != nil {
		return s.createErr
	}
	return s.Registry.Create(ctx, rec)
}

func (s *scriptedRegistry) Update(ctx context.Context, id string, patch registry.Patch) error {
	op := "update"
	if patch.Condition != nil {
		op = "update_condition"
	}
	if err := s.enter(op); err != nil {
		return err
	}
	return s.Registry.Update(ctx, id, patch)
}

func (s *scriptedRegistry) AddWord(ctx context.Context, id, word string) (bool, error) {
	if err := s.enter("add_word"); err != nil {
		return false, err
	}
	return s.Registry.AddWord(ctx, id, word)
}

type fakeIdentity struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *fakeIdentity) SignInAnonymously(_ context.Context, contextKey string) (models.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures != 0 {
		if f.failures > 0 {
			f.failures--
		}
		return models.Identity{}, errUnavailable
	}
	return models.Identity{Token: "token-" + contextKey, ContextKey: contextKey}, nil
}

type harness struct {
	ctl      *Controller
	clock    *fakeClock
	rec      *recorder
	reg      *scriptedRegistry
	identity *fakeIdentity
	coins    int
}

type harnessOption func(*Options)

func withMusic(music bool) harnessOption {
	return func(o *Options) {
		o.Coin = func() bool { return music }
	}
}

func testProtocol() *experiment.Protocol {
	p := experiment.Default()
	p.Words = []string{"Apple", "Pear", "Lamp", "River"}
	p.MemorizationDeadline = 180 * time.Second
	p.RecallDeadline = 120 * time.Second
	if err := p.Compile(); err != nil {
		panic(err)
	}
	return p
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	h := &harness{
		clock:    newFakeClock(),
		rec:      &recorder{},
		reg:      newScriptedRegistry(),
		identity: &fakeIdentity{},
	}
	o := Options{
		Protocol:  testProtocol(),
		Registry:  h.reg,
		Identity:  h.identity,
		Presenter: h.rec,
		Player:    h.rec,
		Clock:     h.clock,
		Logger:    zap.NewNop(),
		Retry:     RetryPolicy{Attempts: 3},
	}
	o.Coin = func() bool {
		h.coins++
		return true
	}
	for _, opt := range opts {
		opt(&o)
	}
	h.ctl = New("chat-1", o)
	t.Cleanup(func() { h.ctl.Close(context.Background()) })
	return h
}

// toRecall drives a fresh session through registration and memorization
func (h *harness) toRecall(t *testing.T, id string) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, h.ctl.Start(ctx))
	require.NoError(t, h.ctl.Advance(ctx, PhaseWelcome))
	require.NoError(t, h.ctl.SubmitID(ctx, id))
	require.NoError(t, h.ctl.Advance(ctx, PhaseInstructions))
	require.NoError(t, h.ctl.Advance(ctx, PhaseMemorization))
	require.Equal(t, PhaseRecall, h.ctl.State().Phase)
}

func (h *harness) record(t *testing.T, id string) *models.ParticipantRecord {
	t.Helper()
	rec, err := h.reg.Registry.Get(context.Background(), id)
	require.NoError(t, err)
	return rec
}

func (h *harness) waitPhase(t *testing.T, phase Phase) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.ctl.State().Phase == phase
	}, time.Second, time.Millisecond)
}
