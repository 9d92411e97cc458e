package submission

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"payout-controlplane/pkg/db/option"
	"payout-controlplane/pkg/db/pagination"
	"payout-controlplane/pkg/errutil"
	"payout-controlplane/pkg/logger"
	"payout-controlplane/pkg/repository"
	"payout-controlplane/pkg/sequence"
	"payout-controlplane/pkg/task"
	"payout-controlplane/services/archive"
	"payout-controlplane/services/commission"
	"payout-controlplane/services/ledger"
	"payout-controlplane/services/notification"
	"payout-controlplane/services/rate"
	"payout-controlplane/services/setting"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db       *gorm.DB
	ledger   *ledger.Service
	rates    *rate.Service
	engine   *commission.Engine
	settings *setting.Service
	seq      sequence.Generator
	enqueuer task.Enqueuer
	notifier notification.Notifier

	submissions repository.Repository[ledger.Submission]
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Ledger   *ledger.Service
	Rates    *rate.Service
	Engine   *commission.Engine
	Settings *setting.Service
	Sequence sequence.Generator
	Enqueuer task.Enqueuer         `optional:"true"`
	Notifier notification.Notifier `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	notifier := p.Notifier
	if notifier == nil {
		notifier = notification.NopNotifier{}
	}

	return &Service{
		db:       p.DB,
		ledger:   p.Ledger,
		rates:    p.Rates,
		engine:   p.Engine,
		settings: p.Settings,
		seq:      p.Sequence,
		enqueuer: p.Enqueuer,
		notifier: notifier,

		submissions: repository.ProvideStore[ledger.Submission](p.DB),
	}
}

// Create records a pending submission from the web app or the bot.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*ledger.Submission, error) {
	zapLog := logger.FromContext(ctx).With(zap.String("user_id", req.UserID))

	if s.settings != nil && s.settings.MaintenanceMode(ctx) {
		return nil, errutil.UnprocessableEntity("submissions are paused for maintenance", nil)
	}

	user, err := s.ledger.GetUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if !user.CanTransact() {
		return nil, errutil.ValidationFailed("user is not allowed to submit", nil)
	}

	category := rate.Normalize(req.Category)
	_, active, err := s.rates.GetRate(ctx, category)
	if errutil.Is(err, errutil.StatusNotFound) {
		return nil, errutil.ValidationFailed(fmt.Sprintf("unknown category %q", req.Category), nil,
			errutil.WithDetails(errutil.Detail{Field: "category", Message: "unknown category"}))
	}
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, errutil.ValidationFailed(fmt.Sprintf("category %q is not accepting submissions", category), nil)
	}

	if req.AccountCount < MinAccountCount || req.AccountCount > MaxAccountCount {
		return nil, errutil.ValidationFailed(
			fmt.Sprintf("account_count must be between %d and %d", MinAccountCount, MaxAccountCount), nil,
			errutil.WithDetails(errutil.Detail{Field: "account_count", Message: "out of range"}))
	}
	if req.Content != "" && !json.Valid([]byte(req.Content)) {
		return nil, errutil.ValidationFailed("content must be valid JSON", nil,
			errutil.WithDetails(errutil.Detail{Field: "content", Message: "invalid json"}))
	}

	format := strings.ToLower(strings.TrimSpace(req.FileFormat))
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(req.Filename)), ".")
	}
	if format == "" {
		format = "json"
	}

	channel := req.Channel
	if channel == "" {
		channel = ledger.ChannelAPI
	}

	seq, err := s.seq.NextSubmissionSequence(ctx)
	if err != nil {
		zapLog.Error("failed to allocate submission sequence", zap.Error(err))
		return nil, errutil.Internal("failed to allocate submission sequence", err)
	}

	sub := &ledger.Submission{
		ID:             s.ledger.NextID(),
		UserID:         user.ID,
		Category:       category,
		Filename:       req.Filename,
		FileFormat:     format,
		FileSize:       req.FileSize,
		Content:        req.Content,
		Sequence:       seq,
		AccountCount:   req.AccountCount,
		RatePerAccount: decimal.Zero,
		TotalEarning:   decimal.Zero,
		Status:         ledger.StatusPending,
		Channel:        channel,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.submissions.Create(ctx, sub); err != nil {
		zapLog.Error("failed to create submission", zap.Error(err))
		return nil, errutil.Persistence("failed to create submission", err)
	}

	zapLog.Info("submission created", zap.String("submission_id", sub.ID), zap.Int64("sequence", seq), zap.String("channel", string(channel)))

	s.notifier.Notify(ctx, notification.Event{
		Type:     notification.SubmissionCreated,
		UserID:   user.ID,
		Audience: notification.AudienceAdmins,
		Payload: map[string]any{
			"submission_id": sub.ID,
			"sequence":      sub.Sequence,
			"category":      sub.Category,
			"account_count": sub.AccountCount,
			"user":          user.DisplayName(),
		},
	})

	return sub, nil
}

func (s *Service) load(ctx context.Context, id string) (*ledger.Submission, error) {
	if id == "" {
		return nil, errutil.NotFound("submission not found", nil)
	}
	sub, err := s.submissions.FindOne(ctx, &ledger.Submission{ID: id})
	if err != nil {
		return nil, errutil.Persistence("failed to load submission", err)
	}
	if sub == nil {
		return nil, errutil.NotFound(fmt.Sprintf("submission %s not found", id), nil)
	}
	return sub, nil
}

// Approve prices a pending submission and, in one transaction, moves it to
// approved, credits the submitter and books commissions up the referral
// chain. Archival and notification run after commit and never fail the call.
func (s *Service) Approve(ctx context.Context, req ApproveRequest) (*ApproveResult, error) {
	zapLog := logger.FromContext(ctx).With(zap.String("submission_id", req.ID), zap.String("admin_id", req.AdminID))

	sub, err := s.load(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if sub.Status != ledger.StatusPending {
		return nil, errutil.AlreadyProcessed(fmt.Sprintf("submission %s already %s", sub.ID, sub.Status), nil)
	}

	approved := sub.AccountCount
	if req.ApprovedCount != nil {
		if *req.ApprovedCount < 0 {
			return nil, errutil.ValidationFailed("approved_count must not be negative", nil)
		}
		if *req.ApprovedCount < approved {
			approved = *req.ApprovedCount
		}
	}

	decidedAt := time.Now().UTC()
	var (
		perAccount decimal.Decimal
		earning    decimal.Decimal
		booked     *commission.Result
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, _, err := s.rates.ResolveRate(ctx, tx, sub.Category)
		if err != nil {
			return err
		}
		perAccount = r
		earning = perAccount.Mul(decimal.NewFromInt(int64(approved)))

		fields := map[string]any{
			"approved_count":   approved,
			"rate_per_account": perAccount,
			"total_earning":    earning,
			"admin_notes":      req.Notes,
			"decided_at":       decidedAt,
		}
		if req.AdminID != "" {
			fields["decided_by"] = req.AdminID
		}

		if err := s.ledger.TransitionStatus(ctx, tx, &ledger.Submission{}, sub.ID, ledger.StatusApproved, fields); err != nil {
			return err
		}
		if !earning.IsPositive() {
			return nil
		}

		if _, err := s.ledger.Credit(ctx, tx, ledger.Movement{
			UserID:      sub.UserID,
			Amount:      earning,
			Kind:        ledger.KindEarning,
			ReferenceID: sub.ID,
			Description: fmt.Sprintf("submission #%d approved", sub.Sequence),
			Metadata: map[string]any{
				"category":       sub.Category,
				"approved_count": approved,
				"rate":           perAccount.String(),
			},
		}); err != nil {
			return err
		}

		submissionID := sub.ID
		res, err := s.engine.BookCommissions(ctx, tx, sub.UserID, earning, &submissionID)
		if err != nil {
			return err
		}
		booked = res
		return nil
	})
	if err != nil {
		if !errutil.Is(err, errutil.StatusAlreadyProcessed) {
			zapLog.Error("failed to approve submission", zap.Error(err))
		}
		return nil, errutil.Wrap("failed to approve submission", err)
	}

	sub.Status = ledger.StatusApproved
	sub.ApprovedCount = approved
	sub.RatePerAccount = perAccount
	sub.TotalEarning = earning
	sub.AdminNotes = req.Notes
	sub.DecidedAt = &decidedAt
	if req.AdminID != "" {
		sub.DecidedBy = &req.AdminID
	}

	zapLog.Info("submission approved",
		zap.Int("approved_count", approved),
		zap.String("earning", earning.String()),
	)

	s.afterDecision(ctx, sub)

	return &ApproveResult{Submission: sub, Earning: earning, Commissions: booked}, nil
}

// Reject closes a pending submission without any balance effect.
func (s *Service) Reject(ctx context.Context, req RejectRequest) (*ledger.Submission, error) {
	decidedAt := time.Now().UTC()
	fields := map[string]any{
		"admin_notes": req.Notes,
		"decided_at":  decidedAt,
	}
	if req.AdminID != "" {
		fields["decided_by"] = req.AdminID
	}

	if err := s.ledger.TransitionStatus(ctx, nil, &ledger.Submission{}, req.ID, ledger.StatusRejected, fields); err != nil {
		return nil, err
	}

	sub, err := s.load(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("submission rejected", zap.String("submission_id", sub.ID), zap.String("admin_id", req.AdminID))
	s.afterDecision(ctx, sub)

	return sub, nil
}

func (s *Service) afterDecision(ctx context.Context, sub *ledger.Submission) {
	if sub.Status == ledger.StatusApproved && s.enqueuer != nil {
		t, err := archive.NewArchiveTask(sub.ID)
		if err == nil {
			_, err = s.enqueuer.Enqueue(ctx, t)
		}
		if err != nil {
			logger.FromContext(ctx).Warn("failed to enqueue archive task", zap.String("submission_id", sub.ID), zap.Error(err))
		}
	}

	s.notifier.Notify(ctx, notification.Event{
		Type:     notification.SubmissionDecided,
		UserID:   sub.UserID,
		Audience: notification.AudienceUser,
		Payload: map[string]any{
			"submission_id":  sub.ID,
			"sequence":       sub.Sequence,
			"status":         sub.Status,
			"approved_count": sub.ApprovedCount,
			"total_earning":  sub.TotalEarning.String(),
			"notes":          sub.AdminNotes,
		},
	})
}

func (s *Service) Get(ctx context.Context, id string) (*ledger.Submission, error) {
	return s.load(ctx, id)
}

func (s *Service) List(ctx context.Context, req ListRequest) ([]*ledger.Submission, *pagination.PageInfo, error) {
	query := &ledger.Submission{UserID: req.UserID}

	opts := []option.QueryOption{option.ApplyPagination(req.Pagination)}
	if req.Status != "" {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "status", Operator: option.EQ, Value: req.Status}))
	}

	subs, err := s.submissions.Find(ctx, query, opts...)
	if err != nil {
		logger.FromContext(ctx).Error("failed to list submissions", zap.Error(err))
		return nil, nil, errutil.Persistence("failed to list submissions", err)
	}

	subs, info := pagination.Page(subs, req.Limit, func(sub *ledger.Submission) string { return sub.ID })
	return subs, info, nil
}
