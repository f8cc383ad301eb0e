package session

import "fmt"

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Reason  string
}

// Error converts the guard result to an error if not allowed.
func (r GuardResult) Error() error {
	if r.Allowed {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrStalePhase, r.Reason)
}

// IntentContext describes the session when a participant action arrives.
type IntentContext struct {
	Status             Status
	Current            Phase
	Requested          Phase
	EarlyFinishAllowed bool
}

// CanAdvance evaluates whether a button press for Requested may advance the session.
// Rules:
// - Session must be running
// - Requested must be the active phase
// - Identification advances only through an identifier, pass-through phases never by hand
// - Memorization accepts a "ready" press only when early finish is allowed
func CanAdvance(ctx IntentContext) GuardResult {
	if ctx.Status != StatusRunning {
		return GuardResult{Reason: fmt.Sprintf("session is %s", ctx.Status)}
	}
	if ctx.Current != ctx.Requested {
		return GuardResult{Reason: fmt.Sprintf("phase %s is not active (current: %s)", ctx.Requested, ctx.Current)}
	}

	switch ctx.Requested {
	case PhaseWelcome, PhaseInstructions, PhaseRecall, PhaseThankYou:
		return GuardResult{Allowed: true}
	case PhaseMemorization:
		if !ctx.EarlyFinishAllowed {
			return GuardResult{Reason: "memorization ends at its deadline"}
		}
		return GuardResult{Allowed: true}
	default:
		return GuardResult{Reason: fmt.Sprintf("phase %s does not take a button press", ctx.Requested)}
	}
}

// CanSubmitInput evaluates whether typed input may be applied to the Requested phase.
// Rules:
// - Session must be running
// - Requested must be the active phase
// - Only Identification and Recall take typed input
func CanSubmitInput(ctx IntentContext) GuardResult {
	if ctx.Status != StatusRunning {
		return GuardResult{Reason: fmt.Sprintf("session is %s", ctx.Status)}
	}
	if ctx.Current != ctx.Requested {
		return GuardResult{Reason: fmt.Sprintf("phase %s is not active (current: %s)", ctx.Requested, ctx.Current)}
	}
	if ctx.Requested != PhaseIdentification && ctx.Requested != PhaseRecall {
		return GuardResult{Reason: fmt.Sprintf("phase %s does not take typed input", ctx.Requested)}
	}
	return GuardResult{Allowed: true}
}
