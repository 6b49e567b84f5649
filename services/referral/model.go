package referral

import (
	"time"
)

// Edge is the one-time, immutable actor → referrer assignment. The reverse
// direction (a referrer's recruits) is served by the index on referrer_id.
type Edge struct {
	ActorID    string    `gorm:"column:actor_id;primaryKey"`
	ReferrerID string    `gorm:"column:referrer_id;index;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Edge) TableName() string { return "referral_edges" }

// Payout is one leg of a cascade, returned to the orchestrator for minting.
type Payout struct {
	Recipient string
	Amount    string // decimal token amount
	Hop       int
}
