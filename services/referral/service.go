package referral

import (
	"context"
	"errors"
	"math/big"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"incentive-controlplane/pkg/fixedpoint"
)

var (
	ErrSelfReferral    = errors.New("referral: actor cannot refer itself")
	ErrAlreadyReferred = errors.New("referral: actor already has a referrer")
	ErrEmptyIdentity   = errors.New("referral: empty actor identity")
)

// MaxDepth bounds the payout cascade. Cycles through stale edges are
// harmless: the walk stops after this many hops regardless.
const MaxDepth = 3

// hopBps pays hop i (10-2i)% of the base amount: 10%, 8%, 6%.
var hopBps = [MaxDepth]int64{1_000, 800, 600}

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

// AssignReferrer stores the actor → referrer edge. The edge is immutable:
// a second assignment fails regardless of the referrer presented.
func (s *Service) AssignReferrer(ctx context.Context, actor, referrer string) error {
	if actor == "" || referrer == "" {
		return ErrEmptyIdentity
	}
	if actor == referrer {
		return ErrSelfReferral
	}

	existing, err := s.ReferrerOf(ctx, actor)
	if err != nil {
		return err
	}
	if existing != "" {
		return ErrAlreadyReferred
	}

	return s.db.WithContext(ctx).Create(&Edge{ActorID: actor, ReferrerID: referrer}).Error
}

// ReferrerOf returns the actor's referrer, or "" when no edge exists.
func (s *Service) ReferrerOf(ctx context.Context, actor string) (string, error) {
	var edge Edge
	err := s.db.WithContext(ctx).Where("actor_id = ?", actor).First(&edge).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return edge.ReferrerID, nil
}

// Referrals enumerates the actors recruited by the given referrer, in
// assignment order.
func (s *Service) Referrals(ctx context.Context, referrer string) ([]string, error) {
	var edges []Edge
	if err := s.db.WithContext(ctx).
		Where("referrer_id = ?", referrer).
		Order("created_at ASC").
		Find(&edges).Error; err != nil {
		return nil, err
	}

	actors := make([]string, 0, len(edges))
	for _, e := range edges {
		actors = append(actors, e.ActorID)
	}
	return actors, nil
}

// CascadePayout walks up to MaxDepth referrer hops from startActor and
// returns the payout instruction per hop. It stops early at a missing edge
// and moves no value itself.
func (s *Service) CascadePayout(ctx context.Context, startActor string, base *big.Int) ([]Payout, error) {
	payouts := make([]Payout, 0, MaxDepth)

	current := startActor
	for hop := 0; hop < MaxDepth; hop++ {
		next, err := s.ReferrerOf(ctx, current)
		if err != nil {
			return nil, err
		}
		if next == "" {
			break
		}

		amount := fixedpoint.ApplyBps(base, hopBps[hop])
		payouts = append(payouts, Payout{
			Recipient: next,
			Amount:    amount.String(),
			Hop:       hop,
		})

		current = next
	}

	return payouts, nil
}
