package task

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	runHour   = 0
	runMinute = 5
)

type Scheduler struct {
	service *Service
	now     func() time.Time
}

func NewScheduler(svc *Service) *Scheduler {
	return &Scheduler{service: svc, now: time.Now}
}

// StartScheduler is invoked by fx when the worker starts.
func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			if err := s.service.Migrate(startCtx); err != nil {
				cancel()
				return err
			}
			go s.run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

// run enqueues yesterday's report shortly after every UTC midnight.
func (s *Scheduler) run(ctx context.Context) {
	zap.L().Info("[Scheduler] started daily report scheduler")

	for {
		now := s.now().UTC()
		next := nextRunTime(now, runHour, runMinute)

		sleepDuration := next.Sub(now)
		zap.L().Info("[Scheduler] next run scheduled",
			zap.Time("next_run", next),
			zap.Duration("sleep_for", sleepDuration),
		)
		select {
		case <-time.After(sleepDuration):
			s.runDaily(ctx)
		case <-ctx.Done():
			zap.L().Warn("[Scheduler] stopped")
			return
		}
	}
}

func (s *Scheduler) runDaily(ctx context.Context) {
	start := time.Now()
	day := s.now().UTC().AddDate(0, 0, -1)
	zap.L().Info("[Scheduler] enqueue daily report", zap.String("day", day.Format(dayLayout)))

	if _, err := s.service.EnqueueDailyReport(ctx, day); err != nil {
		zap.L().Error("[Scheduler] failed enqueue daily report", zap.Error(err))
		return
	}

	zap.L().Info("[Scheduler] finished enqueue daily report",
		zap.Duration("duration", time.Since(start)),
	)
}

// nextRunTime returns the next occurrence of hour:minute after now.
func nextRunTime(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if now.After(next) {
		next = next.Add(24 * time.Hour)
	}
	return next
}
