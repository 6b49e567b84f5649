package event

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/fx"
	"gorm.io/gorm"
)

// BaseMultiplier is the percentage applied when no event window covers the
// current instant.
const BaseMultiplier = int64(100)

type Service struct {
	db *gorm.DB
}

type ServiceParams struct {
	fx.In
	DB *gorm.DB
}

func NewService(p ServiceParams) *Service {
	return &Service{db: p.DB}
}

// WithTx returns a copy of the service bound to the given transaction.
func (s *Service) WithTx(tx *gorm.DB) *Service {
	return &Service{db: tx}
}

// Start replaces the singleton event. A running event is discarded without
// protest; there is no overlap protection.
func (s *Service) Start(ctx context.Context, name string, duration time.Duration, multiplier int64, now time.Time) error {
	if name == "" {
		return fmt.Errorf("event: name is required")
	}
	if duration <= 0 {
		return fmt.Errorf("event: duration must be positive, got %s", duration)
	}
	if multiplier < BaseMultiplier {
		return fmt.Errorf("event: multiplier must be at least %d, got %d", BaseMultiplier, multiplier)
	}

	return s.db.WithContext(ctx).Save(&Event{
		ID:         singletonID,
		Name:       name,
		StartsAt:   now,
		EndsAt:     now.Add(duration),
		Multiplier: multiplier,
	}).Error
}

// CurrentMultiplier returns the event multiplier when now falls inside the
// stored window, inclusive at both ends, and BaseMultiplier otherwise.
func (s *Service) CurrentMultiplier(ctx context.Context, now time.Time) (int64, error) {
	current, err := s.current(ctx)
	if err != nil {
		return 0, err
	}
	if current == nil || now.Before(current.StartsAt) || now.After(current.EndsAt) {
		return BaseMultiplier, nil
	}
	return current.Multiplier, nil
}

// Status reports the stored event and whether it is live at the given
// instant. With no event ever started it returns an inactive base snapshot.
func (s *Service) Status(ctx context.Context, now time.Time) (Snapshot, error) {
	current, err := s.current(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	if current == nil {
		return Snapshot{Multiplier: BaseMultiplier}, nil
	}

	return Snapshot{
		Name:       current.Name,
		StartsAt:   current.StartsAt,
		EndsAt:     current.EndsAt,
		Multiplier: current.Multiplier,
		Active:     !now.Before(current.StartsAt) && !now.After(current.EndsAt),
	}, nil
}

func (s *Service) current(ctx context.Context) (*Event, error) {
	var ev Event
	err := s.db.WithContext(ctx).Where("id = ?", singletonID).First(&ev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}
