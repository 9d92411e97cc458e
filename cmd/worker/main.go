package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"payout-controlplane/pkg/config"
	"payout-controlplane/pkg/db"
	"payout-controlplane/pkg/gen"
	"payout-controlplane/pkg/hashistack/secretmanager"
	"payout-controlplane/pkg/logger"
	"payout-controlplane/pkg/minio"
	"payout-controlplane/pkg/otelcol"
	"payout-controlplane/pkg/profiling"
	"payout-controlplane/pkg/task"
	"payout-controlplane/services/archive"
	"payout-controlplane/services/commission"
	"payout-controlplane/services/ledger"
	"payout-controlplane/services/report"
	jobs "payout-controlplane/services/task"
)

func main() {
	opts := []fx.Option{
		secretmanager.Module,
		config.Module,
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		gen.Module,
		minio.Client,
		task.Client,
		task.Server,

		ledger.Module,
		commission.Module,
		report.Module,
		archive.Module,
		archive.Worker,
		jobs.Module,
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
