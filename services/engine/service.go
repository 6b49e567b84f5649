package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"incentive-controlplane/pkg/authz"
	"incentive-controlplane/pkg/config"
	"incentive-controlplane/pkg/fixedpoint"
	"incentive-controlplane/services/achievement"
	"incentive-controlplane/services/challenge"
	"incentive-controlplane/services/event"
	"incentive-controlplane/services/ledger"
	"incentive-controlplane/services/pricing"
	"incentive-controlplane/services/progression"
	"incentive-controlplane/services/referral"
)

var commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "engine_commands_total",
	Help: "Engine commands processed, by command and outcome.",
}, []string{"command", "status"})

// Service is the orchestrator. It owns the listing sequence, per-actor
// stats, and the engine singleton; every mutating command takes the writer
// mutex and runs inside one transaction, so commands apply fully or not at
// all. All value movement goes through the ledger inside that transaction.
type Service struct {
	mu   sync.Mutex
	db   *gorm.DB
	node *snowflake.Node

	authz authz.Service
	curve *pricing.Curve

	referrals    *referral.Service
	progress     *progression.Service
	achievements *achievement.Service
	challenges   *challenge.Service
	events       *event.Service
	ledger       *ledger.Service

	engagementBase     *big.Int
	weeklyBonusBase    *big.Int
	purchaseChiefBonus *big.Int
	chiefMinBalance    *big.Int
	chiefBonusBps      int64
	chiefMinLevel      int64
	cooldown           time.Duration
	weeklyInterval     time.Duration
	escrow             string
	treasury           string
}

type ServiceParams struct {
	fx.In

	DB     *gorm.DB
	Node   *snowflake.Node
	Config *config.Config
	Authz  authz.Service
	Curve  *pricing.Curve

	Referrals    *referral.Service
	Progress     *progression.Service
	Achievements *achievement.Service
	Challenges   *challenge.Service
	Events       *event.Service
	Ledger       *ledger.Service
}

func NewService(p ServiceParams) (*Service, error) {
	e := p.Config.Engine

	engagementBase, err := parseAmount("ENGAGEMENT_BASE", e.EngagementBase)
	if err != nil {
		return nil, err
	}
	weeklyBonusBase, err := parseAmount("WEEKLY_BONUS_BASE", e.WeeklyBonusBase)
	if err != nil {
		return nil, err
	}
	purchaseChiefBonus, err := parseAmount("PURCHASE_CHIEF_BONUS", e.PurchaseChiefBonus)
	if err != nil {
		return nil, err
	}
	chiefMinBalance, err := parseAmount("CHIEF_MIN_BALANCE", e.ChiefMinBalance)
	if err != nil {
		return nil, err
	}

	if e.ChiefBonusBps < 0 || e.ChiefBonusBps > 10_000 {
		return nil, fmt.Errorf("engine: CHIEF_BONUS_BPS %d out of range", e.ChiefBonusBps)
	}
	if e.EngagementCooldown <= 0 {
		return nil, fmt.Errorf("engine: ENGAGEMENT_COOLDOWN must be positive")
	}
	if e.WeeklyInterval <= 0 {
		return nil, fmt.Errorf("engine: WEEKLY_INTERVAL must be positive")
	}
	if e.EscrowAccount == "" || e.TreasuryAccount == "" {
		return nil, fmt.Errorf("engine: escrow and treasury accounts are required")
	}

	return &Service{
		db:    p.DB,
		node:  p.Node,
		authz: p.Authz,
		curve: p.Curve,

		referrals:    p.Referrals,
		progress:     p.Progress,
		achievements: p.Achievements,
		challenges:   p.Challenges,
		events:       p.Events,
		ledger:       p.Ledger,

		engagementBase:     engagementBase,
		weeklyBonusBase:    weeklyBonusBase,
		purchaseChiefBonus: purchaseChiefBonus,
		chiefMinBalance:    chiefMinBalance,
		chiefBonusBps:      e.ChiefBonusBps,
		chiefMinLevel:      e.ChiefMinLevel,
		cooldown:           e.EngagementCooldown,
		weeklyInterval:     e.WeeklyInterval,
		escrow:             e.EscrowAccount,
		treasury:           e.TreasuryAccount,
	}, nil
}

func parseAmount(name, s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("engine: invalid %s amount %q", name, s)
	}
	return v, nil
}

// txDeps are the component services bound to one command transaction.
type txDeps struct {
	referrals    *referral.Service
	progress     *progression.Service
	achievements *achievement.Service
	challenges   *challenge.Service
	events       *event.Service
	ledger       *ledger.Service
}

func (s *Service) bind(tx *gorm.DB) txDeps {
	return txDeps{
		referrals:    s.referrals.WithTx(tx),
		progress:     s.progress.WithTx(tx),
		achievements: s.achievements.WithTx(tx),
		challenges:   s.challenges.WithTx(tx),
		events:       s.events.WithTx(tx),
		ledger:       s.ledger.WithTx(tx),
	}
}

// command serializes and runs one mutating entry point. The transaction
// commits only when fn returns nil; any error discards every write,
// including ledger movements.
func (s *Service) command(ctx context.Context, name string, fn func(tx *gorm.DB, d txDeps) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(tx, s.bind(tx))
	})

	status := "ok"
	if err != nil {
		status = "error"
		span := trace.SpanFromContext(ctx)
		zap.L().Warn("engine command rejected",
			zap.String("command", name),
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.Error(err),
		)
	}
	commandsTotal.WithLabelValues(name, status).Inc()

	return err
}

// CreateListing processes one purchase: quotes the effective price, settles
// payment through escrow, appends the listing and fans out every secondary
// effect. The command is atomic; a rejected transfer rolls everything back.
func (s *Service) CreateListing(ctx context.Context, req CreateListingRequest, now time.Time) (*Listing, error) {
	if req.Actor == "" {
		return nil, fmt.Errorf("engine: actor is required")
	}
	if req.Content == "" {
		return nil, fmt.Errorf("engine: content is required")
	}
	payment, ok := new(big.Int).SetString(req.Payment, 10)
	if !ok || payment.Sign() < 0 {
		return nil, fmt.Errorf("engine: invalid payment amount %q", req.Payment)
	}

	var created *Listing
	err := s.command(ctx, "create_listing", func(tx *gorm.DB, d txDeps) error {
		st, err := s.loadState(tx)
		if err != nil {
			return err
		}
		if st.Paused {
			return ErrPaused
		}

		var count int64
		if err := tx.Model(&Listing{}).Count(&count).Error; err != nil {
			return err
		}

		referrer, err := s.validReferrer(tx, req.Actor, req.Referrer)
		if err != nil {
			return err
		}
		if referrer != "" {
			existing, err := d.referrals.ReferrerOf(ctx, req.Actor)
			if err != nil {
				return err
			}
			if existing == "" {
				if err := d.referrals.AssignReferrer(ctx, req.Actor, referrer); err != nil {
					return err
				}
			}
		}

		effective, err := s.curve.EffectivePrice(uint64(count), referrer != "")
		if err != nil {
			return err
		}
		if payment.Cmp(effective) < 0 {
			return ErrInsufficientPayment
		}

		// Settle through escrow: the full payment moves in, the price
		// moves on to the treasury, the change comes back.
		if err := s.transfer(ctx, d, req.Actor, s.escrow, payment, "listing payment", now); err != nil {
			return err
		}
		if err := s.transfer(ctx, d, s.escrow, s.treasury, effective, "listing price", now); err != nil {
			return err
		}
		change := new(big.Int).Sub(payment, effective)
		if err := s.transfer(ctx, d, s.escrow, req.Actor, change, "change refund", now); err != nil {
			return err
		}

		l := &Listing{
			Index:       count,
			CreatorID:   req.Actor,
			ReferrerID:  referrer,
			Content:     req.Content,
			ContentType: req.ContentType,
			PricePaid:   fixedpoint.NewBigInt(effective),
			Active:      true,
			CreatedAt:   now,
		}
		if err := tx.Create(l).Error; err != nil {
			return err
		}

		stats, err := s.getOrCreateStats(tx, req.Actor, now)
		if err != nil {
			return err
		}
		stats.HasPurchased = true
		stats.LastListingIndex = count
		stats.UpdatedAt = now
		if err := tx.Save(stats).Error; err != nil {
			return err
		}

		payouts, err := d.referrals.CascadePayout(ctx, req.Actor, effective)
		if err != nil {
			return err
		}
		for _, p := range payouts {
			amount, ok := new(big.Int).SetString(p.Amount, 10)
			if !ok {
				return fmt.Errorf("engine: bad cascade amount %q", p.Amount)
			}
			if err := s.mint(ctx, d, p.Recipient, amount, "referral payout", now); err != nil {
				return err
			}
		}

		if st.Chief != "" && st.Chief != req.Actor {
			if err := s.mint(ctx, d, st.Chief, s.purchaseChiefBonus, "top referrer purchase bonus", now); err != nil {
				return err
			}
		}

		if _, err := d.progress.AddReputation(ctx, req.Actor, 10); err != nil {
			return err
		}
		if _, err := s.evaluateAchievements(ctx, d, req.Actor, now); err != nil {
			return err
		}
		if err := s.advanceChallenge(ctx, tx, d, now); err != nil {
			return err
		}

		created = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// RecordEngagement registers one engagement on a listing. Reputation,
// achievements and challenge progress always advance; the token reward is
// minted at most once per cooldown window per actor.
func (s *Service) RecordEngagement(ctx context.Context, actor string, index int64, now time.Time) (EngagementResult, error) {
	res := EngagementResult{Reward: "0"}
	if actor == "" {
		return res, fmt.Errorf("engine: actor is required")
	}

	err := s.command(ctx, "record_engagement", func(tx *gorm.DB, d txDeps) error {
		st, err := s.loadState(tx)
		if err != nil {
			return err
		}
		if st.Paused {
			return ErrPaused
		}

		var l Listing
		err = tx.Where("idx = ?", index).First(&l).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidIndex
		}
		if err != nil {
			return err
		}
		if !l.Active {
			return ErrInactiveListing
		}
		if l.CreatorID == actor {
			return ErrSelfEngagement
		}

		// Explicit update: Save on the zero-valued first index would insert.
		l.Engagements++
		if err := tx.Model(&Listing{}).Where("idx = ?", l.Index).
			Update("engagements", l.Engagements).Error; err != nil {
			return err
		}

		stats, err := s.getOrCreateStats(tx, actor, now)
		if err != nil {
			return err
		}
		stats.WeeklyEngagements++

		newLevel, leveledUp, err := d.progress.RecordEngagement(ctx, actor)
		if err != nil {
			return err
		}
		res.NewLevel = newLevel
		res.LeveledUp = leveledUp

		if stats.LastRewardedAt == nil || now.Sub(*stats.LastRewardedAt) >= s.cooldown {
			p, err := d.progress.Get(ctx, actor)
			if err != nil {
				return err
			}
			mult, err := d.events.CurrentMultiplier(ctx, now)
			if err != nil {
				return err
			}

			reward := fixedpoint.ApplyPercent(s.engagementBase, 100+p.Level)
			reward = fixedpoint.ApplyPercent(reward, mult)

			if err := s.mint(ctx, d, actor, reward, "engagement reward", now); err != nil {
				return err
			}
			if st.Chief != "" {
				bonus := fixedpoint.ApplyBps(reward, s.chiefBonusBps)
				if err := s.mint(ctx, d, st.Chief, bonus, "top referrer engagement bonus", now); err != nil {
					return err
				}
			}

			rewardedAt := now
			stats.LastRewardedAt = &rewardedAt
			res.Rewarded = true
			res.Reward = reward.String()
		}

		stats.UpdatedAt = now
		if err := tx.Save(stats).Error; err != nil {
			return err
		}

		if _, err := d.progress.AddReputation(ctx, actor, 1); err != nil {
			return err
		}
		unlocked, err := s.evaluateAchievements(ctx, d, actor, now)
		if err != nil {
			return err
		}
		res.Unlocked = unlocked

		return s.advanceChallenge(ctx, tx, d, now)
	})
	return res, err
}

// AwardWeeklyBonus rewards the single most engaged actor of the window and
// resets every weekly counter. It fails with ErrTooSoon inside the interval,
// which makes the scheduled sweep idempotent.
func (s *Service) AwardWeeklyBonus(ctx context.Context, now time.Time) (WeeklyAward, error) {
	award := WeeklyAward{Amount: "0"}

	err := s.command(ctx, "award_weekly_bonus", func(tx *gorm.DB, d txDeps) error {
		st, err := s.loadState(tx)
		if err != nil {
			return err
		}
		if st.Paused {
			return ErrPaused
		}
		if !st.LastWeeklyReset.IsZero() && now.Sub(st.LastWeeklyReset) < s.weeklyInterval {
			return ErrTooSoon
		}

		var top ActorStats
		err = tx.Where("weekly_engagements > 0").
			Order("weekly_engagements DESC, first_seen_id ASC").
			First(&top).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if err == nil {
			p, err := d.progress.Get(ctx, top.ActorID)
			if err != nil {
				return err
			}
			amount := fixedpoint.ApplyPercent(s.weeklyBonusBase, 100+p.Level)
			if err := s.mint(ctx, d, top.ActorID, amount, "weekly engagement bonus", now); err != nil {
				return err
			}

			award = WeeklyAward{
				Winner:      top.ActorID,
				Amount:      amount.String(),
				Engagements: top.WeeklyEngagements,
			}
			zap.L().Info("weekly bonus awarded",
				zap.String("winner", top.ActorID),
				zap.Int64("engagements", top.WeeklyEngagements),
				zap.String("amount", amount.String()),
			)
		}

		if err := tx.Model(&ActorStats{}).
			Where("weekly_engagements > 0").
			Update("weekly_engagements", 0).Error; err != nil {
			return err
		}

		st.LastWeeklyReset = now
		st.UpdatedAt = now
		return tx.Save(st).Error
	})
	return award, err
}

// AssignReferrer stores the actor's one-time referral edge.
func (s *Service) AssignReferrer(ctx context.Context, actor, referrer string) error {
	return s.command(ctx, "assign_referrer", func(tx *gorm.DB, d txDeps) error {
		st, err := s.loadState(tx)
		if err != nil {
			return err
		}
		if st.Paused {
			return ErrPaused
		}

		return d.referrals.AssignReferrer(ctx, actor, referrer)
	})
}

// ClaimTopReferrer hands the top-referrer role to the claiming actor when
// its token balance and level clear the configured thresholds.
func (s *Service) ClaimTopReferrer(ctx context.Context, actor string, now time.Time) error {
	if actor == "" {
		return fmt.Errorf("engine: actor is required")
	}

	return s.command(ctx, "claim_top_referrer", func(tx *gorm.DB, d txDeps) error {
		st, err := s.loadState(tx)
		if err != nil {
			return err
		}
		if st.Paused {
			return ErrPaused
		}

		balance, err := d.ledger.BalanceOf(ctx, actor)
		if err != nil {
			return err
		}
		p, err := d.progress.Get(ctx, actor)
		if err != nil {
			return err
		}
		if balance.Cmp(s.chiefMinBalance) < 0 || p.Level < s.chiefMinLevel {
			return ErrClaimThreshold
		}

		st.Chief = actor
		st.UpdatedAt = now
		return tx.Save(st).Error
	})
}

// DeactivateListing flips the listing's active flag off. Only the creator
// or an admin may do it; the row itself is never deleted.
func (s *Service) DeactivateListing(ctx context.Context, actor string, index int64, now time.Time) error {
	return s.command(ctx, "deactivate_listing", func(tx *gorm.DB, d txDeps) error {
		st, err := s.loadState(tx)
		if err != nil {
			return err
		}
		if st.Paused {
			return ErrPaused
		}

		var l Listing
		err = tx.Where("idx = ?", index).First(&l).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidIndex
		}
		if err != nil {
			return err
		}

		if l.CreatorID != actor && !s.authz.IsAdmin(actor) {
			return ErrUnauthorized
		}
		if !l.Active {
			return nil
		}

		return tx.Model(&Listing{}).Where("idx = ?", l.Index).
			Update("active", false).Error
	})
}

// Pause stops every non-admin mutating command until Unpause.
func (s *Service) Pause(ctx context.Context, actor string, now time.Time) error {
	return s.setPaused(ctx, actor, true, now)
}

func (s *Service) Unpause(ctx context.Context, actor string, now time.Time) error {
	return s.setPaused(ctx, actor, false, now)
}

func (s *Service) setPaused(ctx context.Context, actor string, paused bool, now time.Time) error {
	if !s.authz.IsAdmin(actor) {
		return ErrUnauthorized
	}

	name := "pause"
	if !paused {
		name = "unpause"
	}
	return s.command(ctx, name, func(tx *gorm.DB, d txDeps) error {
		st, err := s.loadState(tx)
		if err != nil {
			return err
		}
		st.Paused = paused
		st.UpdatedAt = now
		return tx.Save(st).Error
	})
}

// DefineAchievement appends an achievement definition. Admin only.
func (s *Service) DefineAchievement(ctx context.Context, actor string, req achievement.DefineRequest) (int64, error) {
	if !s.authz.IsAdmin(actor) {
		return 0, ErrUnauthorized
	}

	var ordinal int64
	err := s.command(ctx, "define_achievement", func(tx *gorm.DB, d txDeps) error {
		var err error
		ordinal, err = d.achievements.Define(ctx, req)
		return err
	})
	return ordinal, err
}

// StartChallenge starts a community challenge. Admin only.
func (s *Service) StartChallenge(ctx context.Context, actor string, req challenge.StartRequest, now time.Time) error {
	if !s.authz.IsAdmin(actor) {
		return ErrUnauthorized
	}

	return s.command(ctx, "start_challenge", func(tx *gorm.DB, d txDeps) error {
		return d.challenges.Start(ctx, req, now)
	})
}

// StartEvent starts a special event, replacing any running one. Admin only.
func (s *Service) StartEvent(ctx context.Context, actor, name string, duration time.Duration, multiplier int64, now time.Time) error {
	if !s.authz.IsAdmin(actor) {
		return ErrUnauthorized
	}

	return s.command(ctx, "start_event", func(tx *gorm.DB, d txDeps) error {
		return d.events.Start(ctx, name, duration, multiplier, now)
	})
}

// ---- read queries ----

// GetListing returns the listing at index.
func (s *Service) GetListing(ctx context.Context, index int64) (*Listing, error) {
	var l Listing
	err := s.db.WithContext(ctx).Where("idx = ?", index).First(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidIndex
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// ActiveListings lists listings still active, in creation order.
func (s *Service) ActiveListings(ctx context.Context) ([]Listing, error) {
	var listings []Listing
	err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Order("idx ASC").
		Find(&listings).Error
	if err != nil {
		return nil, err
	}
	return listings, nil
}

// NextPrice quotes the undiscounted price of the next listing.
func (s *Service) NextPrice(ctx context.Context) (string, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&Listing{}).Count(&count).Error; err != nil {
		return "", err
	}

	price, err := s.curve.NextPrice(uint64(count))
	if err != nil {
		return "", err
	}
	return price.String(), nil
}

// ActorBundle aggregates everything known about one actor.
type ActorBundle struct {
	Stats       ActorStats `json:"stats"`
	Engagements int64      `json:"engagements"`
	Level       int64      `json:"level"`
	Reputation  int64      `json:"reputation"`
	Balance     string     `json:"balance"`
	Referrer    string     `json:"referrer,omitempty"`
	Referrals   []string   `json:"referrals,omitempty"`
	Unlocks     []bool     `json:"unlocks"`
}

// GetActorBundle assembles the aggregated per-actor read view. The reads
// run inside one transaction so callers see a single consistent snapshot
// rather than state straddling two committed commands.
func (s *Service) GetActorBundle(ctx context.Context, actor string) (*ActorBundle, error) {
	if actor == "" {
		return nil, fmt.Errorf("engine: actor is required")
	}

	bundle := &ActorBundle{}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		d := s.bind(tx)

		var stats ActorStats
		err := tx.Where("actor_id = ?", actor).First(&stats).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			bundle.Stats = ActorStats{ActorID: actor, LastListingIndex: -1}
		case err != nil:
			return err
		default:
			bundle.Stats = stats
		}

		p, err := d.progress.Get(ctx, actor)
		if err != nil {
			return err
		}
		bundle.Engagements = p.Engagements
		bundle.Level = p.Level
		bundle.Reputation = p.Reputation

		balance, err := d.ledger.BalanceOf(ctx, actor)
		if err != nil {
			return err
		}
		bundle.Balance = balance.String()

		bundle.Referrer, err = d.referrals.ReferrerOf(ctx, actor)
		if err != nil {
			return err
		}
		bundle.Referrals, err = d.referrals.Referrals(ctx, actor)
		if err != nil {
			return err
		}
		bundle.Unlocks, err = d.achievements.UnlockVector(ctx, actor)
		return err
	})
	if err != nil {
		return nil, err
	}

	return bundle, nil
}

// GetStatus reports the engine singleton and listing count.
func (s *Service) GetStatus(ctx context.Context) (Status, error) {
	st, err := s.loadState(s.db.WithContext(ctx))
	if err != nil {
		return Status{}, err
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&Listing{}).Count(&count).Error; err != nil {
		return Status{}, err
	}

	return Status{
		Paused:          st.Paused,
		Chief:           st.Chief,
		Listings:        count,
		LastWeeklyReset: st.LastWeeklyReset,
	}, nil
}

// ChallengeStatus reports the community challenge at the given instant.
func (s *Service) ChallengeStatus(ctx context.Context, now time.Time) (challenge.Snapshot, error) {
	return s.challenges.Status(ctx, now)
}

// EventStatus reports the special event at the given instant.
func (s *Service) EventStatus(ctx context.Context, now time.Time) (event.Snapshot, error) {
	return s.events.Status(ctx, now)
}

// ---- internals ----

func (s *Service) loadState(tx *gorm.DB) (*State, error) {
	var st State
	err := tx.Where("id = ?", stateID).First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &State{ID: stateID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Service) getOrCreateStats(tx *gorm.DB, actor string, now time.Time) (*ActorStats, error) {
	var stats ActorStats
	err := tx.Where("actor_id = ?", actor).First(&stats).Error
	if err == nil {
		return &stats, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	stats = ActorStats{
		ActorID:          actor,
		FirstSeenID:      s.node.Generate().Int64(),
		LastListingIndex: -1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := tx.Create(&stats).Error; err != nil {
		return nil, err
	}
	return &stats, nil
}

// validReferrer returns the presented referrer when it may earn the
// discount: non-empty, not the buyer, and itself a past purchaser.
func (s *Service) validReferrer(tx *gorm.DB, actor, referrer string) (string, error) {
	if referrer == "" || referrer == actor {
		return "", nil
	}

	var stats ActorStats
	err := tx.Where("actor_id = ?", referrer).First(&stats).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if !stats.HasPurchased {
		return "", nil
	}
	return referrer, nil
}

func (s *Service) mint(ctx context.Context, d txDeps, to string, amount *big.Int, desc string, now time.Time) error {
	if _, err := d.ledger.Mint(ctx, ledger.MintRequest{
		To:          to,
		Amount:      amount,
		Description: desc,
	}, now); err != nil {
		return fmt.Errorf("%w: %v", ErrExternalTransferFailed, err)
	}
	return nil
}

func (s *Service) transfer(ctx context.Context, d txDeps, from, to string, amount *big.Int, desc string, now time.Time) error {
	if _, err := d.ledger.Transfer(ctx, ledger.TransferRequest{
		From:        from,
		To:          to,
		Amount:      amount,
		Description: desc,
	}, now); err != nil {
		return fmt.Errorf("%w: %v", ErrExternalTransferFailed, err)
	}
	return nil
}

func (s *Service) evaluateAchievements(ctx context.Context, d txDeps, actor string, now time.Time) (int, error) {
	p, err := d.progress.Get(ctx, actor)
	if err != nil {
		return 0, err
	}

	grants, err := d.achievements.Evaluate(ctx, actor, achievement.Attributes{
		Engagements: p.Engagements,
		Level:       p.Level,
		Reputation:  p.Reputation,
	})
	if err != nil {
		return 0, err
	}

	for _, g := range grants {
		reward, ok := new(big.Int).SetString(g.Reward, 10)
		if !ok {
			return 0, fmt.Errorf("engine: bad achievement reward %q", g.Reward)
		}
		if err := s.mint(ctx, d, actor, reward, "achievement: "+g.Name, now); err != nil {
			return 0, err
		}
	}
	return len(grants), nil
}

// advanceChallenge adds one unit of challenge progress and, on completion,
// mints the pool shares to every listing's creator.
func (s *Service) advanceChallenge(ctx context.Context, tx *gorm.DB, d txDeps, now time.Time) error {
	completed, err := d.challenges.AddProgress(ctx, 1, now)
	if err != nil {
		return err
	}
	if !completed {
		return nil
	}

	var listings []Listing
	if err := tx.Order("idx ASC").Find(&listings).Error; err != nil {
		return err
	}

	creators := make([]string, 0, len(listings))
	for _, l := range listings {
		creators = append(creators, l.CreatorID)
	}

	shares, err := d.challenges.SplitPool(ctx, creators)
	if err != nil {
		return err
	}
	for _, sh := range shares {
		amount, ok := new(big.Int).SetString(sh.Amount, 10)
		if !ok {
			return fmt.Errorf("engine: bad challenge share %q", sh.Amount)
		}
		if err := s.mint(ctx, d, sh.Recipient, amount, "community challenge payout", now); err != nil {
			return err
		}
	}

	zap.L().Info("community challenge completed",
		zap.Int("recipients", len(shares)),
	)
	return nil
}
