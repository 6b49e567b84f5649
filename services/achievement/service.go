package achievement

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/google/cel-go/cel"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"incentive-controlplane/pkg/celengine"
	"incentive-controlplane/pkg/fixedpoint"
)

var ErrInvalidQualifier = errors.New("achievement: invalid qualifier expression")

type Service struct {
	db       *gorm.DB
	programs *programCache
}

type ServiceParams struct {
	fx.In
	DB *gorm.DB
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		programs: newProgramCache(),
	}
}

// WithTx returns a copy of the service bound to the given transaction. The
// compiled-program cache is shared: programs depend only on the ordinal.
func (s *Service) WithTx(tx *gorm.DB) *Service {
	return &Service{db: tx, programs: s.programs}
}

// DefineRequest carries an admin-submitted achievement definition.
type DefineRequest struct {
	Name        string
	Description string
	Threshold   int64
	Reward      string // decimal token amount
	Qualifier   string // optional CEL expression over Attributes
}

// Define appends a definition and returns its ordinal. Thresholds are taken
// as-is: duplicates and decreasing values across ordinals are permitted, and
// evaluation always walks the catalog in definition order.
func (s *Service) Define(ctx context.Context, req DefineRequest) (int64, error) {
	if req.Name == "" {
		return 0, fmt.Errorf("achievement: name is required")
	}
	if req.Threshold < 0 {
		return 0, fmt.Errorf("achievement: negative threshold %d", req.Threshold)
	}

	reward, ok := new(big.Int).SetString(req.Reward, 10)
	if !ok || reward.Sign() < 0 {
		return 0, fmt.Errorf("achievement: invalid reward amount %q", req.Reward)
	}

	if req.Qualifier != "" {
		env, err := qualifierEnv()
		if err != nil {
			return 0, err
		}
		if err := celengine.ValidateExpression(env, req.Qualifier); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidQualifier, err)
		}
	}

	var ordinal int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Definition{}).Count(&count).Error; err != nil {
			return err
		}
		ordinal = count

		return tx.Create(&Definition{
			Ordinal:     ordinal,
			Name:        req.Name,
			Description: req.Description,
			Threshold:   req.Threshold,
			Reward:      fixedpoint.NewBigInt(reward),
			Qualifier:   req.Qualifier,
		}).Error
	})
	if err != nil {
		return 0, err
	}

	return ordinal, nil
}

// Catalog returns every definition in definition order.
func (s *Service) Catalog(ctx context.Context) ([]Definition, error) {
	var defs []Definition
	if err := s.db.WithContext(ctx).Order("ordinal ASC").Find(&defs).Error; err != nil {
		return nil, err
	}
	return defs, nil
}

// UnlockVector reports, per ordinal, whether the actor has unlocked it.
func (s *Service) UnlockVector(ctx context.Context, actor string) ([]bool, error) {
	defs, err := s.Catalog(ctx)
	if err != nil {
		return nil, err
	}

	unlocked, err := s.unlockedSet(ctx, actor)
	if err != nil {
		return nil, err
	}

	vector := make([]bool, len(defs))
	for i, def := range defs {
		vector[i] = unlocked[def.Ordinal]
	}
	return vector, nil
}

// Evaluate unlocks, in definition order, every achievement the actor now
// qualifies for and has not unlocked before. Calling it again with the same
// attributes yields nothing: unlocking is monotonic.
func (s *Service) Evaluate(ctx context.Context, actor string, attrs Attributes) ([]Grant, error) {
	defs, err := s.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	if len(defs) == 0 {
		return nil, nil
	}

	unlocked, err := s.unlockedSet(ctx, actor)
	if err != nil {
		return nil, err
	}

	var grants []Grant
	for _, def := range defs {
		if unlocked[def.Ordinal] {
			continue
		}
		if def.Threshold > attrs.Engagements {
			continue
		}

		if def.Qualifier != "" {
			pass, err := s.qualifies(def, attrs)
			if err != nil {
				// A broken qualifier blocks this ordinal only.
				zap.L().Warn("achievement qualifier evaluation failed",
					zap.Int64("ordinal", def.Ordinal),
					zap.Error(err),
				)
				continue
			}
			if !pass {
				continue
			}
		}

		if err := s.db.WithContext(ctx).Create(&Unlock{ActorID: actor, Ordinal: def.Ordinal}).Error; err != nil {
			return nil, err
		}

		grants = append(grants, Grant{
			Ordinal: def.Ordinal,
			Name:    def.Name,
			Reward:  def.Reward.String(),
		})
	}

	return grants, nil
}

func (s *Service) unlockedSet(ctx context.Context, actor string) (map[int64]bool, error) {
	var unlocks []Unlock
	if err := s.db.WithContext(ctx).Where("actor_id = ?", actor).Find(&unlocks).Error; err != nil {
		return nil, err
	}

	set := make(map[int64]bool, len(unlocks))
	for _, u := range unlocks {
		set[u.Ordinal] = true
	}
	return set, nil
}

func (s *Service) qualifies(def Definition, attrs Attributes) (bool, error) {
	prg, err := s.programs.get(def.Ordinal, func() (cel.Program, error) {
		env, err := qualifierEnv()
		if err != nil {
			return nil, err
		}
		return celengine.Compile(env, def.Qualifier)
	})
	if err != nil {
		return false, err
	}

	return celengine.EvaluateProgram(prg, attrs.Map())
}

func qualifierEnv() (*cel.Env, error) {
	return celengine.GetOrBuildEnv(Attributes{}.Map())
}
