package challenge

import (
	"time"

	"incentive-controlplane/pkg/fixedpoint"
)

// singletonID pins the community challenge to a single row; starting a new
// challenge overwrites it in place.
const singletonID = int64(1)

// Challenge is the one community goal. Progress accumulates until it reaches
// Goal, at which point the row is marked completed and the pool is paid out.
type Challenge struct {
	ID          int64             `gorm:"column:id;primaryKey;autoIncrement:false"`
	Description string            `gorm:"column:description"`
	Goal        int64             `gorm:"column:goal;not null"`
	Progress    int64             `gorm:"column:progress;not null"`
	Pool        fixedpoint.BigInt `gorm:"column:pool;not null"`
	Deadline    time.Time         `gorm:"column:deadline;not null"`
	Completed   bool              `gorm:"column:completed;not null"`
	StartedAt   time.Time         `gorm:"column:started_at"`
}

func (Challenge) TableName() string { return "community_challenges" }

// State names for Snapshot.State.
const (
	StateInactive  = "inactive"
	StateActive    = "active"
	StateCompleted = "completed"
	StateExpired   = "expired"
)

// Snapshot is the read-only challenge status returned to callers.
type Snapshot struct {
	Description string    `json:"description"`
	Goal        int64     `json:"goal"`
	Progress    int64     `json:"progress"`
	Pool        string    `json:"pool"`
	Deadline    time.Time `json:"deadline"`
	State       string    `json:"state"`
}

// Share is one leg of a pool payout, returned to the orchestrator for
// minting. Creators with several listings appear several times.
type Share struct {
	Recipient string
	Amount    string // decimal token amount
}
