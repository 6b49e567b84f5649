package progression

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"incentive-controlplane/pkg/config"
)

type Service struct {
	db             *gorm.DB
	levelThreshold int64
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Config *config.Config
}

func NewService(p ServiceParams) (*Service, error) {
	threshold := p.Config.Engine.LevelThreshold
	if threshold <= 0 {
		return nil, fmt.Errorf("progression: level threshold must be positive, got %d", threshold)
	}

	return &Service{
		db:             p.DB,
		levelThreshold: threshold,
	}, nil
}

// WithTx returns a copy of the service bound to the given transaction.
func (s *Service) WithTx(tx *gorm.DB) *Service {
	return &Service{db: tx, levelThreshold: s.levelThreshold}
}

// Get returns the actor's progress, a zero record when the actor is unknown.
func (s *Service) Get(ctx context.Context, actor string) (*Progress, error) {
	var p Progress
	err := s.db.WithContext(ctx).Where("actor_id = ?", actor).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &Progress{ActorID: actor}, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// AddReputation increments the actor's score unconditionally and returns the
// updated total. Scores only ever increase through this entry point.
func (s *Service) AddReputation(ctx context.Context, actor string, amount int64) (int64, error) {
	p, err := s.Get(ctx, actor)
	if err != nil {
		return 0, err
	}

	p.Reputation += amount
	if err := s.db.WithContext(ctx).Save(p).Error; err != nil {
		return 0, err
	}

	return p.Reputation, nil
}

// RecordEngagement increments the cumulative engagement count and derives
// the level. The new level is reported only when it strictly exceeds the
// stored one; levels never decrease.
func (s *Service) RecordEngagement(ctx context.Context, actor string) (newLevel int64, leveledUp bool, err error) {
	p, err := s.Get(ctx, actor)
	if err != nil {
		return 0, false, err
	}

	p.Engagements++

	derived := p.Engagements / s.levelThreshold
	if derived > p.Level {
		p.Level = derived
		leveledUp = true
	}

	if err := s.db.WithContext(ctx).Save(p).Error; err != nil {
		return 0, false, err
	}

	return p.Level, leveledUp, nil
}
