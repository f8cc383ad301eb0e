// Package session runs one participant through the experiment: identity, registration,
// condition assignment, the phase timeline with its deadlines, and recall capture.
//
// A Controller applies participant actions and countdown ticks one at a time under a
// single lock, so every transition is synchronous. Registry writes happen as part of
// applying an action; the session never moves on before the write it depends on succeeded.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/memtest/internal/experiment"
	"github.com/example/memtest/internal/export"
	"github.com/example/memtest/internal/registry"
	"github.com/example/memtest/pkg/models"
)

var (
	// ErrStalePhase is returned for actions that do not apply to the active phase
	ErrStalePhase = errors.New("stale phase")
	// ErrSessionClosed is returned for actions on a session that already ended
	ErrSessionClosed = errors.New("session closed")
)

// Status is the lifecycle state of a session
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusAborted   Status = "aborted"
	StatusFailed    Status = "failed"
	StatusCompleted Status = "completed"
)

// Terminal reports whether no further actions are accepted
func (s Status) Terminal() bool {
	return s == StatusAborted || s == StatusFailed || s == StatusCompleted
}

// AbortReason explains an aborted session
type AbortReason string

const (
	ReasonNone                AbortReason = ""
	ReasonInvalidID           AbortReason = "invalid_id"
	ReasonAlreadyParticipated AbortReason = "already_participated"
	ReasonAbandoned           AbortReason = "abandoned"
)

// RetryPolicy bounds retries of identity and registry calls
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration // Doubles after each failed attempt
}

// DefaultRetryPolicy is used when Options.Retry is zero
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Backoff: 200 * time.Millisecond}

// Options wires a Controller to its collaborators. Protocol, Registry, Identity and
// Presenter are required; the rest have defaults.
type Options struct {
	Protocol  *experiment.Protocol
	Registry  registry.Registry
	Identity  IdentityGate
	Presenter Presenter
	Player    Player
	Clock     Clock
	Coin      Coin
	Observer  Observer
	Logger    *zap.Logger
	Retry     RetryPolicy
	// Deliver a per-session CSV of responses at the end
	ExportCSV bool
}

// State is a point-in-time copy of the session
type State struct {
	Status         Status
	Phase          Phase
	Condition      models.Condition
	ParticipantID  string
	Identity       string
	Reason         AbortReason
	Err            error
	MemorizedWords int
	StartedAt      time.Time
	LastActivity   time.Time
}

// Controller drives one session
type Controller struct {
	opts       Options
	contextKey string
	logger     *zap.Logger

	mu            sync.Mutex
	status        Status
	reason        AbortReason
	err           error
	identity      models.Identity
	condition     models.Condition
	participantID string
	timeline      []Phase
	pos           int
	seq           uint64
	phaseStarted  time.Time
	countdown     *countdown
	playback      Playback
	words         map[string]struct{}
	responses     []export.Response
	startedAt     time.Time
	lastActivity  time.Time

	wg sync.WaitGroup
}

type countdown struct {
	seq      uint64
	phase    Phase
	deadline time.Time
	ticker   Ticker
	done     chan struct{}
}

// New creates a session for a front-end context (a chat, a browser)
func New(contextKey string, opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Coin == nil {
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
		opts.Coin = func() bool { return rnd.Intn(2) == 0 }
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Player == nil {
		opts.Player = nopPlayer{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Retry.Attempts <= 0 {
		opts.Retry = DefaultRetryPolicy
	}

	now := opts.Clock.Now()
	return &Controller{
		opts:         opts,
		contextKey:   contextKey,
		logger:       opts.Logger.Named("session").With(zap.String("context", contextKey)),
		status:       StatusPending,
		words:        make(map[string]struct{}),
		lastActivity: now,
	}
}

// State returns a snapshot of the session
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return State{
		Status:         c.status,
		Phase:          c.currentLocked(),
		Condition:      c.condition,
		ParticipantID:  c.participantID,
		Identity:       c.identity.Token,
		Reason:         c.reason,
		Err:            c.err,
		MemorizedWords: len(c.words),
		StartedAt:      c.startedAt,
		LastActivity:   c.lastActivity,
	}
}

// Start obtains the session identity, draws the condition and shows the welcome phase
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusPending {
		return fmt.Errorf("%w: session already started", ErrSessionClosed)
	}
	c.startedAt = c.opts.Clock.Now()
	c.touch()

	var identity models.Identity
	err := c.retry(ctx, "sign_in", func(ctx context.Context) error {
		var err error
		identity, err = c.opts.Identity.SignInAnonymously(ctx, c.contextKey)
		return err
	})
	if err != nil {
		c.failLocked(ctx, fmt.Errorf("identity provider: %w", err))
		return nil
	}
	c.identity = identity

	// One draw per session, before anything that depends on the arm is rendered
	c.condition = models.WithoutMusic
	if c.opts.Coin() {
		c.condition = models.WithMusic
	}
	c.timeline = Timeline(c.condition)
	c.status = StatusRunning
	c.opts.Observer.SessionStarted(c.condition)
	c.logger.Info("session started", zap.String("condition", string(c.condition)))

	c.enterLocked(ctx)
	return nil
}

// Advance applies a button press on phase
func (c *Controller) Advance(ctx context.Context, phase Phase) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status.Terminal() {
		return ErrSessionClosed
	}
	guard := CanAdvance(IntentContext{
		Status:             c.status,
		Current:            c.currentLocked(),
		Requested:          phase,
		EarlyFinishAllowed: c.opts.Protocol.AllowEarlyFinish,
	})
	if err := guard.Error(); err != nil {
		return err
	}
	c.touch()

	switch phase {
	case PhaseMemorization:
		c.leaveMemorizationLocked(ctx, false)
	case PhaseRecall:
		c.leaveRecallLocked(ctx, false)
	default:
		c.record(phase, "advance", "")
		c.nextLocked(ctx)
	}
	return nil
}

// SubmitID applies the participant identifier entered during identification
func (c *Controller) SubmitID(ctx context.Context, raw string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status.Terminal() {
		return ErrSessionClosed
	}
	guard := CanSubmitInput(IntentContext{Status: c.status, Current: c.currentLocked(), Requested: PhaseIdentification})
	if err := guard.Error(); err != nil {
		return err
	}
	c.touch()

	id := strings.TrimSpace(raw)
	c.record(PhaseIdentification, "id", id)
	if !c.opts.Protocol.ValidID(id) {
		c.abortLocked(ctx, ReasonInvalidID, Notice{Kind: NoticeInvalidID, Text: c.opts.Protocol.Texts.InvalidID, Terminal: true})
		return nil
	}

	err := c.retry(ctx, "get", func(ctx context.Context) error {
		_, err := c.opts.Registry.Get(ctx, id)
		return err
	})
	switch {
	case err == nil:
		c.abortLocked(ctx, ReasonAlreadyParticipated, c.alreadyParticipated())
		return nil
	case errors.Is(err, registry.ErrNotFound):
	default:
		c.failLocked(ctx, fmt.Errorf("failed to check participant: %w", err))
		return nil
	}

	// The read above is advisory; Create decides who owns the ID
	err = c.retry(ctx, "create", func(ctx context.Context) error {
		return c.opts.Registry.Create(ctx, &models.ParticipantRecord{ID: id, SessionIdentity: c.identity.Token})
	})
	if errors.Is(err, registry.ErrAlreadyExists) {
		c.abortLocked(ctx, ReasonAlreadyParticipated, c.alreadyParticipated())
		return nil
	}
	if err != nil {
		c.failLocked(ctx, fmt.Errorf("failed to register participant: %w", err))
		return nil
	}
	c.participantID = id
	c.logger = c.logger.With(zap.String("participant", id))

	err = c.retry(ctx, "assign_condition", func(ctx context.Context) error {
		return c.opts.Registry.Update(ctx, id, registry.Patch{Condition: registry.ConditionPtr(c.condition)})
	})
	if err != nil {
		c.failLocked(ctx, fmt.Errorf("failed to assign condition: %w", err))
		return nil
	}

	c.logger.Info("participant registered")
	c.nextLocked(ctx)
	return nil
}

// SubmitWord applies one recall entry
func (c *Controller) SubmitWord(ctx context.Context, raw string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status.Terminal() {
		return ErrSessionClosed
	}
	guard := CanSubmitInput(IntentContext{Status: c.status, Current: c.currentLocked(), Requested: PhaseRecall})
	if err := guard.Error(); err != nil {
		return err
	}
	c.touch()

	word := experiment.Normalize(raw)
	if word == "" {
		return nil
	}

	if !c.opts.Protocol.WordList().Contains(word) {
		c.record(PhaseRecall, "word_rejected", word)
		c.opts.Observer.WordSubmitted(false)
		c.show(ctx, "recall feedback", func(ctx context.Context) error {
			return c.opts.Presenter.ShowRecallFeedback(ctx, RecallFeedback{
				Word:  word,
				Error: c.opts.Protocol.Texts.UnknownWord,
				Count: len(c.words),
			})
		})
		return nil
	}

	var added bool
	err := c.retry(ctx, "add_word", func(ctx context.Context) error {
		var err error
		added, err = c.opts.Registry.AddWord(ctx, c.participantID, word)
		return err
	})
	if err != nil {
		c.failLocked(ctx, fmt.Errorf("failed to store recalled word: %w", err))
		return nil
	}

	_, seen := c.words[word]
	c.words[word] = struct{}{}
	c.record(PhaseRecall, "word_accepted", word)
	c.opts.Observer.WordSubmitted(true)
	c.show(ctx, "recall feedback", func(ctx context.Context) error {
		return c.opts.Presenter.ShowRecallFeedback(ctx, RecallFeedback{
			Word:      word,
			Accepted:  true,
			Duplicate: seen || !added,
			Count:     len(c.words),
		})
	})
	return nil
}

// Close ends the session. A running session is marked abandoned. Countdown
// goroutines have exited when Close returns.
func (c *Controller) Close(ctx context.Context) {
	c.mu.Lock()
	c.cancelCountdownLocked()
	c.stopAudioLocked(ctx)
	if !c.status.Terminal() {
		c.status = StatusAborted
		c.reason = ReasonAbandoned
		c.endLocked()
	}
	c.mu.Unlock()

	c.wg.Wait()
}

func (c *Controller) currentLocked() Phase {
	if c.pos >= len(c.timeline) {
		return ""
	}
	return c.timeline[c.pos]
}

func (c *Controller) nextLocked(ctx context.Context) {
	c.pos++
	c.enterLocked(ctx)
}

// enterLocked activates the current phase and runs pass-through phases to completion
func (c *Controller) enterLocked(ctx context.Context) {
	for !c.status.Terminal() {
		phase := c.currentLocked()
		c.seq++
		c.phaseStarted = c.opts.Clock.Now()
		c.record(phase, "enter", "")
		c.opts.Observer.PhaseEntered(phase)
		c.logger.Debug("phase entered", zap.String("phase", string(phase)))

		switch phase {
		case PhaseWelcome:
			c.showPhase(ctx, PhaseView{Text: c.opts.Protocol.Texts.Welcome, Choices: []string{"Start"}})
		case PhaseIdentification:
			c.showPhase(ctx, PhaseView{Text: c.opts.Protocol.Texts.IDPrompt, Input: true})
		case PhaseInstructions:
			c.showPhase(ctx, PhaseView{
				Text:    c.opts.Protocol.Instructions(c.condition.HasMusic()),
				Choices: []string{"Begin"},
			})
		case PhaseStartAudio:
			c.startAudioLocked(ctx)
			c.pos++
			continue
		case PhaseMemorization:
			view := PhaseView{
				Text:     c.opts.Protocol.Texts.Memorization,
				Words:    c.opts.Protocol.WordList().Display(),
				Deadline: c.opts.Protocol.MemorizationDeadline,
			}
			if c.opts.Protocol.AllowEarlyFinish {
				view.Choices = []string{"Ready"}
			}
			c.showPhase(ctx, view)
			c.armCountdownLocked(phase, c.opts.Protocol.MemorizationDeadline)
		case PhaseStopAudio:
			c.stopAudioLocked(ctx)
			c.pos++
			continue
		case PhaseRecall:
			c.showPhase(ctx, PhaseView{
				Text:     c.opts.Protocol.Texts.Recall,
				Choices:  []string{"Finish"},
				Input:    true,
				Deadline: c.opts.Protocol.RecallDeadline,
			})
			c.armCountdownLocked(phase, c.opts.Protocol.RecallDeadline)
		case PhaseThankYou:
			c.showPhase(ctx, PhaseView{Text: c.opts.Protocol.Texts.ThankYou, Choices: []string{"Finish"}})
		case PhaseExport:
			c.exportLocked(ctx)
		}
		return
	}
}

func (c *Controller) showPhase(ctx context.Context, view PhaseView) {
	view.Phase = c.currentLocked()
	view.Condition = c.condition
	c.show(ctx, "phase", func(ctx context.Context) error {
		return c.opts.Presenter.ShowPhase(ctx, view)
	})
}

// show calls the presenter. Rendering failures are logged; the record stays consistent.
func (c *Controller) show(ctx context.Context, what string, fn func(context.Context) error) {
	if err := fn(ctx); err != nil {
		c.logger.Warn("failed to render", zap.String("what", what), zap.Error(err))
	}
}

func (c *Controller) leaveMemorizationLocked(ctx context.Context, forced bool) {
	c.cancelCountdownLocked()
	if forced {
		c.record(PhaseMemorization, "timeout", "")
		err := c.retry(ctx, "forced_memorization", func(ctx context.Context) error {
			return c.opts.Registry.Update(ctx, c.participantID, registry.Patch{ForcedSubmissionMemorization: registry.Bool(true)})
		})
		if err != nil {
			c.failLocked(ctx, fmt.Errorf("failed to store memorization timeout: %w", err))
			return
		}
	} else {
		c.record(PhaseMemorization, "ready", "")
	}
	c.nextLocked(ctx)
}

func (c *Controller) leaveRecallLocked(ctx context.Context, forced bool) {
	c.cancelCountdownLocked()
	event := "finish"
	if forced {
		event = "timeout"
	}
	c.record(PhaseRecall, event, "")

	// Count what the registry holds, not the local set, so it matches the stored words
	var guessed int
	err := c.retry(ctx, "read_back", func(ctx context.Context) error {
		rec, err := c.opts.Registry.Get(ctx, c.participantID)
		if err != nil {
			return err
		}
		guessed = len(rec.MemorizedWords)
		return nil
	})
	if err != nil {
		c.failLocked(ctx, fmt.Errorf("failed to read back memorized words: %w", err))
		return
	}

	patch := registry.Patch{
		SubmissionTime:         registry.Time(c.opts.Clock.Now()),
		ForcedSubmissionRecall: registry.Bool(forced),
		GuessedWords:           registry.Int(guessed),
	}
	err = c.retry(ctx, "finalize", func(ctx context.Context) error {
		return c.opts.Registry.Update(ctx, c.participantID, patch)
	})
	if err != nil {
		c.failLocked(ctx, fmt.Errorf("failed to finalize recall: %w", err))
		return
	}
	c.logger.Info("recall submitted", zap.Int("guessed_words", guessed), zap.Bool("forced", forced))
	c.nextLocked(ctx)
}

func (c *Controller) armCountdownLocked(phase Phase, d time.Duration) {
	cd := &countdown{
		seq:      c.seq,
		phase:    phase,
		deadline: c.opts.Clock.Now().Add(d),
		ticker:   c.opts.Clock.NewTicker(time.Second),
		done:     make(chan struct{}),
	}
	c.countdown = cd

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-cd.done:
				return
			case <-cd.ticker.C():
				c.tick(cd)
			}
		}
	}()
}

func (c *Controller) cancelCountdownLocked() {
	if c.countdown == nil {
		return
	}
	c.countdown.ticker.Stop()
	close(c.countdown.done)
	c.countdown = nil
}

// tick applies one countdown tick. Ticks from a countdown that is no longer
// armed are ignored, which is what keeps a deadline from advancing twice.
func (c *Controller) tick(cd *countdown) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.countdown != cd || c.seq != cd.seq || c.status != StatusRunning {
		return
	}

	ctx := context.Background()
	remaining := cd.deadline.Sub(c.opts.Clock.Now())
	if remaining > 0 {
		c.show(ctx, "countdown", func(ctx context.Context) error {
			return c.opts.Presenter.ShowCountdown(ctx, cd.phase, remaining.Round(time.Second))
		})
		return
	}

	c.opts.Observer.DeadlineExpired(cd.phase)
	c.logger.Info("deadline expired", zap.String("phase", string(cd.phase)))
	switch cd.phase {
	case PhaseMemorization:
		c.leaveMemorizationLocked(ctx, true)
	case PhaseRecall:
		c.leaveRecallLocked(ctx, true)
	}
}

func (c *Controller) startAudioLocked(ctx context.Context) {
	if c.playback != nil {
		return
	}
	playback, err := c.opts.Player.Play(ctx, c.opts.Protocol.MusicFile, true)
	if err != nil {
		c.record(PhaseStartAudio, "audio_error", err.Error())
		c.logger.Warn("failed to start audio", zap.Error(err))
		return
	}
	c.playback = playback
}

func (c *Controller) stopAudioLocked(ctx context.Context) {
	if c.playback == nil {
		return
	}
	if err := c.playback.Stop(ctx); err != nil {
		c.logger.Warn("failed to stop audio", zap.Error(err))
	}
	c.playback = nil
}

func (c *Controller) exportLocked(ctx context.Context) {
	if c.opts.ExportCSV {
		doc, err := export.SessionCSV(c.participantID, c.responses)
		if err != nil {
			c.logger.Warn("failed to build session export", zap.Error(err))
		} else {
			c.show(ctx, "export", func(ctx context.Context) error {
				return c.opts.Presenter.Deliver(ctx, doc)
			})
		}
	}
	c.status = StatusCompleted
	c.endLocked()
	c.logger.Info("session completed")
}

func (c *Controller) alreadyParticipated() Notice {
	return Notice{Kind: NoticeAlreadyParticipated, Text: c.opts.Protocol.Texts.AlreadyParticipated, Terminal: true}
}

func (c *Controller) abortLocked(ctx context.Context, reason AbortReason, notice Notice) {
	c.cancelCountdownLocked()
	c.stopAudioLocked(ctx)
	c.status = StatusAborted
	c.reason = reason
	c.logger.Info("session aborted", zap.String("reason", string(reason)))
	c.show(ctx, "notice", func(ctx context.Context) error {
		return c.opts.Presenter.ShowNotice(ctx, notice)
	})
	c.endLocked()
}

func (c *Controller) failLocked(ctx context.Context, err error) {
	c.cancelCountdownLocked()
	c.stopAudioLocked(ctx)
	c.status = StatusFailed
	c.err = err
	c.logger.Error("session failed", zap.Error(err))
	c.show(ctx, "notice", func(ctx context.Context) error {
		return c.opts.Presenter.ShowNotice(ctx, Notice{
			Kind:     NoticeUnavailable,
			Text:     c.opts.Protocol.Texts.Unavailable,
			Terminal: true,
		})
	})
	c.endLocked()
}

func (c *Controller) endLocked() {
	var d time.Duration
	if !c.startedAt.IsZero() {
		d = c.opts.Clock.Now().Sub(c.startedAt)
	}
	c.opts.Observer.SessionEnded(c.status, c.reason, d)
}

func (c *Controller) record(phase Phase, event, value string) {
	now := c.opts.Clock.Now()
	c.responses = append(c.responses, export.Response{
		Phase:   string(phase),
		Event:   event,
		Value:   value,
		At:      now,
		Elapsed: now.Sub(c.phaseStarted),
	})
}

func (c *Controller) touch() {
	c.lastActivity = c.opts.Clock.Now()
}

// retry runs fn under the retry policy. Outcomes that are answers rather than
// failures (not found, already exists, condition assigned) are returned at once.
func (c *Controller) retry(ctx context.Context, op string, fn func(context.Context) error) error {
	backoff := c.opts.Retry.Backoff
	var err error
	for attempt := 1; attempt <= c.opts.Retry.Attempts; attempt++ {
		err = fn(ctx)
		if err == nil || !retryable(err) {
			return err
		}
		if attempt == c.opts.Retry.Attempts {
			break
		}
		c.opts.Observer.StoreRetried(op)
		c.logger.Warn("retrying", zap.String("op", op), zap.Int("attempt", attempt), zap.Error(err))
		if backoff > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}
	}
	return err
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, registry.ErrNotFound),
		errors.Is(err, registry.ErrAlreadyExists),
		errors.Is(err, registry.ErrConditionAssigned),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}
