package engine

import (
	"time"

	"incentive-controlplane/pkg/fixedpoint"
)

// stateID pins the engine singleton row.
const stateID = int64(1)

// Listing is a purchased slot. The index is assigned monotonically from the
// count of listings at purchase time; rows are append-only and never
// deleted, deactivation only clears the active flag.
type Listing struct {
	Index       int64             `gorm:"column:idx;primaryKey;autoIncrement:false" json:"index"`
	CreatorID   string            `gorm:"column:creator_id;index;not null" json:"creator_id"`
	ReferrerID  string            `gorm:"column:referrer_id" json:"referrer_id,omitempty"` // empty when unreferred
	Content     string            `gorm:"column:content;not null" json:"content"`
	ContentType string            `gorm:"column:content_type" json:"content_type,omitempty"`
	PricePaid   fixedpoint.BigInt `gorm:"column:price_paid;not null" json:"price_paid"`
	Active      bool              `gorm:"column:active;not null" json:"active"`
	Engagements int64             `gorm:"column:engagements;not null" json:"engagements"`
	CreatedAt   time.Time         `gorm:"column:created_at" json:"created_at"`
}

func (Listing) TableName() string { return "listings" }

// ActorStats is the per-actor engine record, created lazily on first
// interaction. Level, reputation and cumulative engagements live in the
// progression service; this row carries what the orchestrator itself owns.
// FirstSeenID is a snowflake assigned at creation and breaks weekly-bonus
// ties in first-seen order.
type ActorStats struct {
	ActorID           string     `gorm:"column:actor_id;primaryKey" json:"actor_id"`
	FirstSeenID       int64      `gorm:"column:first_seen_id;index;not null" json:"-"`
	HasPurchased      bool       `gorm:"column:has_purchased;not null" json:"has_purchased"`
	LastListingIndex  int64      `gorm:"column:last_listing_index;not null" json:"last_listing_index"` // -1 until first purchase
	WeeklyEngagements int64      `gorm:"column:weekly_engagements;not null" json:"weekly_engagements"`
	LastRewardedAt    *time.Time `gorm:"column:last_rewarded_at" json:"last_rewarded_at,omitempty"`
	CreatedAt         time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (ActorStats) TableName() string { return "actor_stats" }

// State is the engine singleton: the pause flag, the current top-referrer
// role holder, and the weekly-bonus reset marker.
type State struct {
	ID              int64     `gorm:"column:id;primaryKey;autoIncrement:false"`
	Paused          bool      `gorm:"column:paused;not null"`
	Chief           string    `gorm:"column:chief"` // top-referrer role holder, empty when unclaimed
	LastWeeklyReset time.Time `gorm:"column:last_weekly_reset"`
	UpdatedAt       time.Time `gorm:"column:updated_at"`
}

func (State) TableName() string { return "engine_state" }

// CreateListingRequest is one purchase command.
type CreateListingRequest struct {
	Actor       string
	Content     string
	ContentType string
	Referrer    string // optional presented referrer
	Payment     string // decimal token amount attached to the purchase
}

// EngagementResult reports what one engagement produced.
type EngagementResult struct {
	Rewarded  bool   `json:"rewarded"`
	Reward    string `json:"reward"` // decimal, "0" when not rewarded
	NewLevel  int64  `json:"new_level"`
	LeveledUp bool   `json:"leveled_up"`
	Unlocked  int    `json:"unlocked"` // achievements granted by this engagement
}

// WeeklyAward reports the weekly-bonus sweep outcome. Winner is empty when
// no actor engaged during the window.
type WeeklyAward struct {
	Winner      string `json:"winner"`
	Amount      string `json:"amount"`
	Engagements int64  `json:"engagements"`
}

// Status is the engine-level read snapshot.
type Status struct {
	Paused          bool      `json:"paused"`
	Chief           string    `json:"chief"`
	Listings        int64     `json:"listings"`
	LastWeeklyReset time.Time `json:"last_weekly_reset"`
}
