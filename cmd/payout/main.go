package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"payout-controlplane/internal/httpapi"
	"payout-controlplane/pkg/accesscontrol"
	"payout-controlplane/pkg/auth"
	"payout-controlplane/pkg/config"
	"payout-controlplane/pkg/db"
	"payout-controlplane/pkg/featureflags"
	"payout-controlplane/pkg/gen"
	"payout-controlplane/pkg/hashistack/secretmanager"
	"payout-controlplane/pkg/hashistack/servicediscover"
	"payout-controlplane/pkg/health"
	"payout-controlplane/pkg/kafka"
	"payout-controlplane/pkg/logger"
	"payout-controlplane/pkg/otelcol"
	"payout-controlplane/pkg/profiling"
	"payout-controlplane/pkg/redis"
	"payout-controlplane/pkg/sequence"
	"payout-controlplane/pkg/server"
	"payout-controlplane/pkg/task"
	"payout-controlplane/services/account"
	"payout-controlplane/services/bootstrap"
	"payout-controlplane/services/commission"
	"payout-controlplane/services/ledger"
	"payout-controlplane/services/notification"
	"payout-controlplane/services/rate"
	"payout-controlplane/services/report"
	"payout-controlplane/services/setting"
	"payout-controlplane/services/submission"
	"payout-controlplane/services/withdrawal"
)

func main() {
	opts := []fx.Option{
		secretmanager.Module,
		config.Module,
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		redis.Module,
		gen.Module,
		task.Client,
		sequence.Module,
		kafka.Module,
		featureflags.Module,
		notification.Module,

		ledger.Module,
		commission.Module,
		rate.Module,
		setting.Module,
		account.Module,
		submission.Module,
		withdrawal.Module,
		report.Module,
		bootstrap.Module,

		auth.Module,
		accesscontrol.Module,
		health.Module,
		httpapi.Module,
		server.ProvideHTTPServer,
		servicediscover.Module,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	if cfg.AppEnv == "development" {
		return &fxevent.ZapLogger{Logger: logger}
	}
	return fxevent.NopLogger
})
