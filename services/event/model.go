package event

import "time"

// singletonID pins the special event to a single row; starting a new event
// replaces it unconditionally even mid-window.
const singletonID = int64(1)

// Event is the one time-boxed reward multiplier window.
type Event struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement:false"`
	Name       string    `gorm:"column:name;not null"`
	StartsAt   time.Time `gorm:"column:starts_at;not null"`
	EndsAt     time.Time `gorm:"column:ends_at;not null"`
	Multiplier int64     `gorm:"column:multiplier;not null"` // percentage, 100 = no bonus
}

func (Event) TableName() string { return "special_events" }

// Snapshot is the read-only event status returned to callers.
type Snapshot struct {
	Name       string    `json:"name"`
	StartsAt   time.Time `json:"starts_at"`
	EndsAt     time.Time `json:"ends_at"`
	Multiplier int64     `json:"multiplier"`
	Active     bool      `json:"active"`
}
