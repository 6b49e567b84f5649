package achievement

import (
	"time"

	"incentive-controlplane/pkg/fixedpoint"
)

// Definition is one achievement in the ordered catalog. The ordinal is the
// stable identifier; definitions are append-only and thresholds are not
// required to be unique or increasing across ordinals.
type Definition struct {
	Ordinal     int64             `gorm:"column:ordinal;primaryKey;autoIncrement:false"`
	Name        string            `gorm:"column:name;not null"`
	Description string            `gorm:"column:description"`
	Threshold   int64             `gorm:"column:threshold;not null"`
	Reward      fixedpoint.BigInt `gorm:"column:reward;not null"`
	Qualifier   string            `gorm:"column:qualifier"` // optional CEL expression
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (Definition) TableName() string { return "achievement_definitions" }

// Unlock marks an achievement as earned by an actor. Rows are written once
// and never cleared.
type Unlock struct {
	ActorID    string    `gorm:"column:actor_id;primaryKey"`
	Ordinal    int64     `gorm:"column:ordinal;primaryKey;autoIncrement:false"`
	UnlockedAt time.Time `gorm:"column:unlocked_at;autoCreateTime"`
}

func (Unlock) TableName() string { return "achievement_unlocks" }

// Attributes is the actor snapshot a qualifier expression evaluates against.
type Attributes struct {
	Engagements int64 `json:"engagements"`
	Level       int64 `json:"level"`
	Reputation  int64 `json:"reputation"`
}

// Map renders the attributes as CEL activation input. Values stay int64
// so they match the declared variable types.
func (a Attributes) Map() map[string]any {
	return map[string]any{
		"engagements": a.Engagements,
		"level":       a.Level,
		"reputation":  a.Reputation,
	}
}

// Grant reports one newly unlocked achievement and its reward.
type Grant struct {
	Ordinal int64
	Name    string
	Reward  string // decimal token amount
}
