package progression

import "time"

// Progress accumulates an actor's engagement count, derived level and
// reputation score. One row per actor, created lazily, never deleted.
// Level and reputation are monotonically non-decreasing.
type Progress struct {
	ActorID     string    `gorm:"column:actor_id;primaryKey"`
	Engagements int64     `gorm:"column:engagements;not null;default:0"`
	Level       int64     `gorm:"column:level;not null;default:0"`
	Reputation  int64     `gorm:"column:reputation;not null;default:0"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Progress) TableName() string { return "actor_progress" }
