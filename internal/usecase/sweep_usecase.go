package usecase

import "context"

// SweepReport counts the transitions triggered by one sweep.
type SweepReport struct {
	Activated      int `json:"activated"`
	RoundsResolved int `json:"roundsResolved"`
	Rematched      int `json:"rematched"`
	Expired        int `json:"expired"`
	HandoffRetried int `json:"handoffRetried"`
	StaleCancelled int `json:"staleCancelled"`
}

// SweepUsecase drives the time-based triggers. It only calls state machine operations.
type SweepUsecase interface {
	// CheckIn prompts users without an open request who have not opted out.
	CheckIn(ctx context.Context) (int, error)

	// ActivateScheduled starts matching for scheduled requests whose lead time has come.
	ActivateScheduled(ctx context.Context) (int, error)

	// Sweep runs activation, round expiry, re-matching, matching expiry and stale cleanup.
	Sweep(ctx context.Context) (*SweepReport, error)

	// CleanupStale cancels requests that stayed in awaiting_intent without activity.
	CleanupStale(ctx context.Context) (int, error)
}
