package archive

import (
	"context"
	"fmt"
	"time"

	"payout-controlplane/pkg/config"
	"payout-controlplane/pkg/errutil"
	"payout-controlplane/pkg/logger"
	"payout-controlplane/pkg/repository"
	"payout-controlplane/pkg/task"
	"payout-controlplane/pkg/taskname"
	"payout-controlplane/services/ledger"

	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	DefaultTimeout = 30 * time.Second
	maxRetry       = 3
)

type Payload struct {
	SubmissionID string `json:"submission_id"`
}

// NewArchiveTask builds the task enqueued after a submission is approved.
func NewArchiveTask(submissionID string) (*asynq.Task, error) {
	return task.NewJSONTask(taskname.SubmissionArchive, Payload{SubmissionID: submissionID},
		asynq.MaxRetry(maxRetry),
		asynq.Queue(taskname.QueueLow),
	)
}

type Service struct {
	sink    Sink
	timeout time.Duration

	submissions repository.Repository[ledger.Submission]
	users       repository.Repository[ledger.User]
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Config *config.Config `optional:"true"`
	Sink   Sink
}

func NewService(p ServiceParams) *Service {
	timeout := DefaultTimeout
	if p.Config != nil && p.Config.Payout.ArchiveTimeout > 0 {
		timeout = p.Config.Payout.ArchiveTimeout
	}

	return &Service{
		sink:        p.Sink,
		timeout:     timeout,
		submissions: repository.ProvideStore[ledger.Submission](p.DB),
		users:       repository.ProvideStore[ledger.User](p.DB),
	}
}

type SinkParams struct {
	fx.In
	Config *config.Config
	Client *minio.Client `optional:"true"`
}

func ProvideSink(p SinkParams) Sink {
	if p.Client == nil {
		return DiscardSink{}
	}
	return NewMinioSink(p.Client, p.Config.Minio.BucketName)
}

// Archive pushes the raw content of a submission to the sink and records the
// reference. Already archived submissions are skipped.
func (s *Service) Archive(ctx context.Context, submissionID string) error {
	zapLog := logger.FromContext(ctx).With(zap.String("submission_id", submissionID))

	sub, err := s.submissions.FindOne(ctx, &ledger.Submission{ID: submissionID})
	if err != nil {
		return errutil.Persistence("failed to load submission", err)
	}
	if sub == nil {
		return errutil.NotFound(fmt.Sprintf("submission %s not found", submissionID), nil)
	}
	if sub.Archived {
		return nil
	}

	summary := sub.UserID
	if user, err := s.users.FindOne(ctx, &ledger.User{ID: sub.UserID}); err == nil && user != nil {
		summary = fmt.Sprintf("%s (%s)", user.DisplayName(), user.ID)
	}

	sinkCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.sink.Archive(sinkCtx, ArchiveRequest{
		SubmissionID: sub.ID,
		Content:      sub.Content,
		UserSummary:  summary,
		Category:     sub.Category,
		Sequence:     sub.Sequence,
		Channel:      string(sub.Channel),
	})
	if err != nil {
		zapLog.Warn("archive sink failed", zap.Error(err))
		return err
	}
	if !result.OK {
		zapLog.Info("archive sink declined submission")
		return nil
	}

	if err := s.submissions.Update(ctx, sub.ID, map[string]any{
		"archive_url": result.ReferenceURL,
		"archived":    true,
	}); err != nil {
		return errutil.Persistence("failed to record archive reference", err)
	}

	zapLog.Info("submission archived", zap.String("reference_url", result.ReferenceURL))
	return nil
}

// HandleArchiveSubmission is the asynq handler for taskname.SubmissionArchive.
func (s *Service) HandleArchiveSubmission(ctx context.Context, t *asynq.Task) error {
	var payload Payload
	if err := task.DecodePayload(t, &payload); err != nil {
		zap.L().Error("invalid archive payload", zap.Error(err))
		return err
	}

	err := s.Archive(ctx, payload.SubmissionID)
	if errutil.Is(err, errutil.StatusNotFound) {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return err
}

// Register mounts the archive handler on the worker mux.
func Register(mux *asynq.ServeMux, s *Service) {
	mux.HandleFunc(taskname.SubmissionArchive, s.HandleArchiveSubmission)
}
