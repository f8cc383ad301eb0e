package session

import (
	"context"
	"time"

	"github.com/example/memtest/internal/export"
	"github.com/example/memtest/pkg/models"
)

// PhaseView is what the front-end renders when a phase becomes active
type PhaseView struct {
	Phase     Phase
	Text      string
	Words     []string      // Study list, memorization only
	Choices   []string      // Button labels, in order
	Input     bool          // The phase expects typed text
	Deadline  time.Duration // Zero when the phase has no countdown
	Condition models.Condition
}

// RecallFeedback is the response to a single recall entry
type RecallFeedback struct {
	Word      string
	Accepted  bool
	Duplicate bool
	Error     string
	Count     int // Size of the memorized set after the entry
}

// NoticeKind classifies blocking notices
type NoticeKind string

const (
	NoticeInvalidID           NoticeKind = "invalid_id"
	NoticeAlreadyParticipated NoticeKind = "already_participated"
	NoticeUnavailable         NoticeKind = "unavailable"
)

// Notice is a blocking message; a terminal notice ends the session
type Notice struct {
	Kind     NoticeKind
	Text     string
	Terminal bool
}

// Presenter renders phases and collects nothing itself: participant actions
// come back through the Controller methods.
type Presenter interface {
	ShowPhase(ctx context.Context, view PhaseView) error
	ShowCountdown(ctx context.Context, phase Phase, remaining time.Duration) error
	ShowRecallFeedback(ctx context.Context, feedback RecallFeedback) error
	ShowNotice(ctx context.Context, notice Notice) error
	Deliver(ctx context.Context, doc export.Document) error
}

// Player starts background audio
type Player interface {
	Play(ctx context.Context, resource string, loop bool) (Playback, error)
}

// Playback is a handle on running audio. Stop must be safe to call more than once.
type Playback interface {
	Stop(ctx context.Context) error
}

// IdentityGate issues anonymous identities
type IdentityGate interface {
	SignInAnonymously(ctx context.Context, contextKey string) (models.Identity, error)
}

// Coin is a fair binary draw
type Coin func() bool

// Observer receives session events, typically for metrics
type Observer interface {
	SessionStarted(condition models.Condition)
	PhaseEntered(phase Phase)
	DeadlineExpired(phase Phase)
	WordSubmitted(accepted bool)
	StoreRetried(op string)
	SessionEnded(status Status, reason AbortReason, duration time.Duration)
}

type nopObserver struct{}

func (nopObserver) SessionStarted(models.Condition)                 {}
func (nopObserver) PhaseEntered(Phase)                              {}
func (nopObserver) DeadlineExpired(Phase)                           {}
func (nopObserver) WordSubmitted(bool)                              {}
func (nopObserver) StoreRetried(string)                             {}
func (nopObserver) SessionEnded(Status, AbortReason, time.Duration) {}

type nopPlayer struct{}

func (nopPlayer) Play(context.Context, string, bool) (Playback, error) { return nopPlayback{}, nil }

type nopPlayback struct{}

func (nopPlayback) Stop(context.Context) error { return nil }
