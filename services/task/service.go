package task

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	taskqueue "payout-controlplane/pkg/task"
	"payout-controlplane/pkg/taskname"
	"payout-controlplane/services/report"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const dailyReportRetention = 48 * time.Hour

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	enqueuer taskqueue.Enqueuer
	reports  *report.Service
}

type Params struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Enqueuer taskqueue.Enqueuer
	Reports  *report.Service
}

func NewService(p Params) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		enqueuer: p.Enqueuer,
		reports:  p.Reports,
	}
}

func (s *Service) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&Job{})
}

// EnqueueDailyReport creates a Job record and sends the report task to
// Asynq. The task id is derived from the day, so a second enqueue for the
// same day is rejected by Asynq.
func (s *Service) EnqueueDailyReport(ctx context.Context, day time.Time) (*Job, error) {
	dayStr := day.UTC().Format(dayLayout)

	job := Job{
		ID:        s.node.Generate().String(),
		Task:      taskname.ReportDaily,
		Status:    JobPending,
		CreatedAt: time.Now(),
		Metadata:  datatypes.JSON(fmt.Sprintf(`{"day":%q}`, dayStr)),
	}
	if err := s.db.WithContext(ctx).Create(&job).Error; err != nil {
		return nil, err
	}

	t, err := taskqueue.NewJSONTask(taskname.ReportDaily, DailyReportPayload{JobID: job.ID, Day: dayStr},
		asynq.Queue(taskname.QueueDefault),
		asynq.TaskID(taskname.ReportDaily+":"+dayStr),
		asynq.Retention(dailyReportRetention),
	)
	if err != nil {
		s.finish(ctx, job.ID, err)
		return nil, err
	}

	if _, err := s.enqueuer.Enqueue(ctx, t); err != nil {
		s.finish(ctx, job.ID, err)
		return nil, err
	}

	zap.L().Info("enqueued daily report job",
		zap.String("day", dayStr),
		zap.String("job_id", job.ID),
	)
	return &job, nil
}

// HandleDailyReport is used by the Asynq worker.
func (s *Service) HandleDailyReport(ctx context.Context, t *asynq.Task) error {
	var payload DailyReportPayload
	if err := taskqueue.DecodePayload(t, &payload); err != nil {
		zap.L().Error("invalid daily report payload", zap.Error(err))
		return err
	}

	day, err := time.Parse(dayLayout, payload.Day)
	if err != nil {
		return fmt.Errorf("invalid report day %q: %w", payload.Day, asynq.SkipRetry)
	}

	return s.RunDailyReport(ctx, payload.JobID, day)
}

// RunDailyReport computes the report of one UTC day and stores it on the job.
func (s *Service) RunDailyReport(ctx context.Context, jobID string, day time.Time) error {
	now := time.Now()
	s.db.WithContext(ctx).Model(&Job{}).Where("id = ?", jobID).Updates(map[string]any{
		"status":     JobRunning,
		"started_at": now,
	})

	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	rep, err := s.reports.RangeReport(ctx, start, start.AddDate(0, 0, 1))
	if err != nil {
		zap.L().Error("failed to build daily report", zap.String("job_id", jobID), zap.Error(err))
		s.finish(ctx, jobID, err)
		return err
	}

	b, err := json.Marshal(rep)
	if err != nil {
		s.finish(ctx, jobID, err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	s.db.WithContext(ctx).Model(&Job{}).Where("id = ?", jobID).Update("metadata", datatypes.JSON(b))
	s.finish(ctx, jobID, nil)

	zap.L().Info("daily report finished",
		zap.String("day", start.Format(dayLayout)),
		zap.Int64("submissions", rep.Submissions),
		zap.Int64("approved_accounts", rep.ApprovedAccounts),
		zap.String("earnings", rep.Earnings.String()),
		zap.Int64("withdrawal_requests", rep.WithdrawalRequests),
		zap.Int64("new_users", rep.NewUsers),
		zap.Duration("duration", time.Since(now)),
	)
	return nil
}

func (s *Service) finish(ctx context.Context, jobID string, cause error) {
	updates := map[string]any{
		"status":       JobSuccess,
		"completed_at": time.Now(),
	}
	if cause != nil {
		updates["status"] = JobFailed
		updates["error_msg"] = cause.Error()
	}
	if err := s.db.WithContext(ctx).Model(&Job{}).Where("id = ?", jobID).Updates(updates).Error; err != nil {
		zap.L().Error("failed to update job", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (s *Service) GetJob(ctx context.Context, id string) (*Job, error) {
	var job Job
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// Register mounts the task handlers on the worker mux.
func Register(mux *asynq.ServeMux, s *Service) {
	mux.HandleFunc(taskname.ReportDaily, s.HandleDailyReport)
}
