package asynq

const (
	// WeeklyBonusTask awards the weekly engagement bonus when the interval
	// has elapsed.
	WeeklyBonusTask = "engine:weekly_bonus"

	// ChallengeExpiryTask checks whether the active community challenge has
	// passed its deadline.
	ChallengeExpiryTask = "engine:challenge_expiry"
)

type WeeklyBonusPayload struct {
	ScheduledAt int64 // unix seconds; the engine clock input
}

type ChallengeExpiryPayload struct {
	ScheduledAt int64
}
