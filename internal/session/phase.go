package session

import "github.com/example/memtest/pkg/models"

// Phase is one step of the experiment timeline
type Phase string

const (
	PhaseWelcome        Phase = "welcome"
	PhaseIdentification Phase = "identification"
	PhaseInstructions   Phase = "instructions"
	PhaseStartAudio     Phase = "start_audio"
	PhaseMemorization   Phase = "memorization"
	PhaseStopAudio      Phase = "stop_audio"
	PhaseRecall         Phase = "recall"
	PhaseThankYou       Phase = "thank_you"
	PhaseExport         Phase = "export"
)

// Timeline returns the ordered phases for a condition. Audio phases only appear
// in the music arm.
func Timeline(condition models.Condition) []Phase {
	phases := []Phase{PhaseWelcome, PhaseIdentification, PhaseInstructions}
	if condition.HasMusic() {
		phases = append(phases, PhaseStartAudio)
	}
	phases = append(phases, PhaseMemorization)
	if condition.HasMusic() {
		phases = append(phases, PhaseStopAudio)
	}
	return append(phases, PhaseRecall, PhaseThankYou, PhaseExport)
}

// HasDeadline reports whether the phase runs a countdown
func (p Phase) HasDeadline() bool {
	return p == PhaseMemorization || p == PhaseRecall
}

// PassThrough reports whether the phase is a pure side effect that advances by itself
func (p Phase) PassThrough() bool {
	return p == PhaseStartAudio || p == PhaseStopAudio
}
