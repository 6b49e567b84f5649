package challenge

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"incentive-controlplane/pkg/fixedpoint"
)

var ErrStillActive = errors.New("challenge: previous challenge still active")

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

// StartRequest carries the parameters of a new community challenge.
type StartRequest struct {
	Description string
	Goal        int64
	Pool        string // decimal token amount
	Duration    time.Duration
}

// Start replaces the singleton challenge. It fails with ErrStillActive
// unless the current one is completed or its deadline has passed; an expired
// challenge needs no explicit close.
func (s *Service) Start(ctx context.Context, req StartRequest, now time.Time) error {
	if req.Goal <= 0 {
		return fmt.Errorf("challenge: goal must be positive, got %d", req.Goal)
	}
	if req.Duration <= 0 {
		return fmt.Errorf("challenge: duration must be positive, got %s", req.Duration)
	}

	pool, ok := new(big.Int).SetString(req.Pool, 10)
	if !ok || pool.Sign() < 0 {
		return fmt.Errorf("challenge: invalid pool amount %q", req.Pool)
	}

	current, err := s.current(ctx)
	if err != nil {
		return err
	}
	if current != nil && !current.Completed && !now.After(current.Deadline) {
		return ErrStillActive
	}

	return s.db.WithContext(ctx).Save(&Challenge{
		ID:          singletonID,
		Description: req.Description,
		Goal:        req.Goal,
		Progress:    0,
		Pool:        fixedpoint.NewBigInt(pool),
		Deadline:    now.Add(req.Duration),
		Completed:   false,
		StartedAt:   now,
	}).Error
}

// AddProgress advances the active challenge. It is a no-op once the
// challenge is completed or past its deadline, and reports whether this
// call completed it.
func (s *Service) AddProgress(ctx context.Context, amount int64, now time.Time) (bool, error) {
	if amount <= 0 {
		return false, nil
	}

	current, err := s.current(ctx)
	if err != nil {
		return false, err
	}
	if current == nil || current.Completed || now.After(current.Deadline) {
		return false, nil
	}

	current.Progress += amount
	completed := current.Progress >= current.Goal
	if completed {
		current.Completed = true
	}

	if err := s.db.WithContext(ctx).Save(current).Error; err != nil {
		return false, err
	}
	return completed, nil
}

// SplitPool divides the challenge pool evenly across the given recipients,
// one share per entry, flooring the division. The remainder stays
// unallocated. Recipients repeat when a creator owns several listings.
func (s *Service) SplitPool(ctx context.Context, recipients []string) ([]Share, error) {
	if len(recipients) == 0 {
		return nil, nil
	}

	current, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, nil
	}

	share := new(big.Int).Quo(current.Pool.Int(), big.NewInt(int64(len(recipients))))

	shares := make([]Share, 0, len(recipients))
	for _, r := range recipients {
		shares = append(shares, Share{Recipient: r, Amount: share.String()})
	}
	return shares, nil
}

// Status reports the challenge state at the given instant. With no
// challenge ever started it returns an inactive snapshot.
func (s *Service) Status(ctx context.Context, now time.Time) (Snapshot, error) {
	current, err := s.current(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	if current == nil {
		return Snapshot{State: StateInactive, Pool: "0"}, nil
	}

	state := StateActive
	switch {
	case current.Completed:
		state = StateCompleted
	case now.After(current.Deadline):
		state = StateExpired
	}

	return Snapshot{
		Description: current.Description,
		Goal:        current.Goal,
		Progress:    current.Progress,
		Pool:        current.Pool.String(),
		Deadline:    current.Deadline,
		State:       state,
	}, nil
}

func (s *Service) current(ctx context.Context) (*Challenge, error) {
	var ch Challenge
	err := s.db.WithContext(ctx).Where("id = ?", singletonID).First(&ch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}
