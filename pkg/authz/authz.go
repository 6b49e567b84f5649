package authz

import (
	"github.com/casbin/casbin/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"incentive-controlplane/pkg/config"
)

// Service answers whether an actor may perform administrative operations
// (pause, start challenge/event, define achievements).
type Service interface {
	IsAdmin(actor string) bool
}

var Module = fx.Module("authz", fx.Provide(New))

const (
	adminObject = "engine"
	adminAction = "admin"
)

type casbinService struct {
	enforcer *casbin.Enforcer
}

// New builds a casbin-backed Service from the configured model and policy
// files. Without a model configured, nobody is admin.
func New(cfg *config.Config) (Service, error) {
	ac := cfg.AccessControl
	if ac.Model == "" {
		zap.L().Warn("[AuthZ] no access-control model configured, admin operations disabled")
		return denyAll{}, nil
	}

	enforcer, err := casbin.NewEnforcer(ac.Model, ac.Policy)
	if err != nil {
		return nil, err
	}

	return &casbinService{enforcer: enforcer}, nil
}

func (s *casbinService) IsAdmin(actor string) bool {
	ok, err := s.enforcer.Enforce(actor, adminObject, adminAction)
	if err != nil {
		zap.L().Error("[AuthZ] enforce failed", zap.String("actor", actor), zap.Error(err))
		return false
	}
	return ok
}

type denyAll struct{}

func (denyAll) IsAdmin(string) bool { return false }

// Static is a fixed admin set, used by tests and local tooling.
type Static map[string]bool

func (s Static) IsAdmin(actor string) bool { return s[actor] }
