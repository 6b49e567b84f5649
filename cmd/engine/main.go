package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"incentive-controlplane/internal/httpapi"
	pkgasynq "incentive-controlplane/pkg/asynq"
	"incentive-controlplane/pkg/authz"
	"incentive-controlplane/pkg/config"
	"incentive-controlplane/pkg/db"
	"incentive-controlplane/pkg/gen"
	"incentive-controlplane/pkg/health"
	"incentive-controlplane/pkg/logger"
	"incentive-controlplane/pkg/redis"
	"incentive-controlplane/pkg/server"
	"incentive-controlplane/services/achievement"
	"incentive-controlplane/services/challenge"
	"incentive-controlplane/services/engine"
	"incentive-controlplane/services/event"
	"incentive-controlplane/services/ledger"
	"incentive-controlplane/services/pricing"
	"incentive-controlplane/services/progression"
	"incentive-controlplane/services/referral"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		gen.Module,
		authz.Module,
		health.Module,

		pkgasynq.Client,
		pkgasynq.Server,
		pkgasynq.Scheduler,

		pricing.Module,
		referral.Module,
		progression.Module,
		achievement.Module,
		challenge.Module,
		event.Module,
		ledger.Module,
		engine.Module,
		engine.Tasks,

		httpapi.Module,
		server.Module,

		fx.Invoke(db.Otel),
		fx.Invoke(db.Metric),
		fx.Invoke(autoMigrate),
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	fx.New(opts...).Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&engine.Listing{},
		&engine.ActorStats{},
		&engine.State{},
		&referral.Edge{},
		&progression.Progress{},
		&achievement.Definition{},
		&achievement.Unlock{},
		&challenge.Challenge{},
		&event.Event{},
		&ledger.Account{},
		&ledger.Entry{},
	)
}
