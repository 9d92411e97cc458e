package withdrawal

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"payout-controlplane/pkg/config"
	"payout-controlplane/pkg/db/option"
	"payout-controlplane/pkg/db/pagination"
	"payout-controlplane/pkg/errutil"
	"payout-controlplane/pkg/logger"
	"payout-controlplane/pkg/repository"
	"payout-controlplane/services/ledger"
	"payout-controlplane/services/notification"
	"payout-controlplane/services/setting"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DefaultMinWithdrawal is the smallest amount a user can request.
var DefaultMinWithdrawal = decimal.NewFromInt(500)

type Service struct {
	db       *gorm.DB
	ledger   *ledger.Service
	settings *setting.Service
	notifier notification.Notifier
	minimum  decimal.Decimal

	withdrawals repository.Repository[ledger.Withdrawal]
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Ledger   *ledger.Service
	Settings *setting.Service
	Config   *config.Config        `optional:"true"`
	Notifier notification.Notifier `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	minimum := DefaultMinWithdrawal
	if p.Config != nil && p.Config.Payout.MinWithdrawal != "" {
		if m, err := decimal.NewFromString(p.Config.Payout.MinWithdrawal); err == nil && m.IsPositive() {
			minimum = m
		} else {
			zap.L().Warn("ignoring invalid minimum withdrawal", zap.String("value", p.Config.Payout.MinWithdrawal))
		}
	}

	notifier := p.Notifier
	if notifier == nil {
		notifier = notification.NopNotifier{}
	}

	return &Service{
		db:       p.DB,
		ledger:   p.Ledger,
		settings: p.Settings,
		notifier: notifier,
		minimum:  minimum,

		withdrawals: repository.ProvideStore[ledger.Withdrawal](p.DB),
	}
}

// Minimum is the admin override stored in settings, else the configured
// floor.
func (s *Service) Minimum(ctx context.Context) decimal.Decimal {
	if s.settings == nil {
		return s.minimum
	}
	raw, _ := s.settings.Value(ctx, setting.KeyMinWithdrawal, "").(string)
	if raw == "" {
		return s.minimum
	}
	m, err := decimal.NewFromString(raw)
	if err != nil || !m.IsPositive() {
		logger.FromContext(ctx).Warn("ignoring invalid minimum withdrawal setting", zap.String("value", raw))
		return s.minimum
	}
	return m
}

func (s *Service) SetMinimum(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, errutil.ValidationFailed("minimum withdrawal must be positive", nil,
			errutil.WithDetails(errutil.Detail{Field: "amount", Message: "must be positive"}))
	}
	if _, err := s.settings.Set(ctx, setting.KeyMinWithdrawal, amount.String(), setting.TypeString, "Smallest withdrawal a user can request"); err != nil {
		return decimal.Zero, err
	}
	logger.FromContext(ctx).Info("minimum withdrawal updated", zap.String("amount", amount.String()))
	return amount, nil
}

// Create files a pending withdrawal. The balance is only checked here; the
// money moves when an admin approves.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*ledger.Withdrawal, error) {
	zapLog := logger.FromContext(ctx).With(zap.String("user_id", req.UserID))

	user, err := s.ledger.GetUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if !user.CanTransact() {
		return nil, errutil.ValidationFailed("user is not allowed to withdraw", nil)
	}

	if minimum := s.Minimum(ctx); req.Amount.LessThan(minimum) {
		return nil, errutil.ValidationFailed(fmt.Sprintf("minimum withdrawal is %s", minimum), nil,
			errutil.WithDetails(errutil.Detail{Field: "amount", Message: "below minimum"}))
	}
	if req.Amount.GreaterThan(user.Balance) {
		return nil, errutil.ValidationFailed("amount exceeds available balance", nil,
			errutil.WithDetails(errutil.Detail{Field: "amount", Message: "exceeds balance"}))
	}

	method, err := s.settings.PaymentMethod(ctx, req.Method)
	if errutil.Is(err, errutil.StatusNotFound) {
		return nil, errutil.ValidationFailed(fmt.Sprintf("unknown payment method %q", req.Method), nil)
	}
	if err != nil {
		return nil, err
	}
	if !method.Active {
		return nil, errutil.ValidationFailed(fmt.Sprintf("payment method %s is not available", method.Name), nil)
	}

	details := make(map[string]string, len(method.Fields))
	var missing []errutil.Detail
	for _, field := range method.Fields {
		v := strings.TrimSpace(req.Details[field])
		if v == "" {
			missing = append(missing, errutil.Detail{Field: field, Message: "required"})
			continue
		}
		details[field] = v
	}
	if len(missing) > 0 {
		return nil, errutil.ValidationFailed("missing payment details", nil, errutil.WithDetails(missing...))
	}

	raw, err := json.Marshal(details)
	if err != nil {
		return nil, errutil.ValidationFailed("invalid payment details", err)
	}

	w := &ledger.Withdrawal{
		ID:             s.ledger.NextID(),
		UserID:         user.ID,
		Amount:         req.Amount,
		PaymentMethod:  method.Key,
		PaymentDetails: datatypes.JSON(raw),
		Status:         ledger.StatusPending,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.withdrawals.Create(ctx, w); err != nil {
		zapLog.Error("failed to create withdrawal", zap.Error(err))
		return nil, errutil.Persistence("failed to create withdrawal", err)
	}

	zapLog.Info("withdrawal requested", zap.String("withdrawal_id", w.ID), zap.String("amount", w.Amount.String()), zap.String("method", w.PaymentMethod))

	s.notifier.Notify(ctx, notification.Event{
		Type:     notification.WithdrawalCreated,
		UserID:   user.ID,
		Audience: notification.AudienceAdmins,
		Payload: map[string]any{
			"withdrawal_id": w.ID,
			"amount":        w.Amount.String(),
			"method":        w.PaymentMethod,
			"user":          user.DisplayName(),
		},
	})

	return w, nil
}

func (s *Service) load(ctx context.Context, id string) (*ledger.Withdrawal, error) {
	if id == "" {
		return nil, errutil.NotFound("withdrawal not found", nil)
	}
	w, err := s.withdrawals.FindOne(ctx, &ledger.Withdrawal{ID: id})
	if err != nil {
		return nil, errutil.Persistence("failed to load withdrawal", err)
	}
	if w == nil {
		return nil, errutil.NotFound(fmt.Sprintf("withdrawal %s not found", id), nil)
	}
	return w, nil
}

// Approve moves a pending withdrawal to approved and debits the user in one
// transaction. When the balance dropped below the amount since the request
// was filed, nothing is written and InsufficientFunds is returned.
func (s *Service) Approve(ctx context.Context, req DecisionRequest) (*ledger.Withdrawal, error) {
	zapLog := logger.FromContext(ctx).With(zap.String("withdrawal_id", req.ID), zap.String("admin_id", req.AdminID))

	w, err := s.load(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if w.Status != ledger.StatusPending {
		return nil, errutil.AlreadyProcessed(fmt.Sprintf("withdrawal %s already %s", w.ID, w.Status), nil)
	}

	fields := decisionFields(req)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ledger.TransitionStatus(ctx, tx, &ledger.Withdrawal{}, w.ID, ledger.StatusApproved, fields); err != nil {
			return err
		}
		_, err := s.ledger.Debit(ctx, tx, ledger.Movement{
			UserID:      w.UserID,
			Amount:      w.Amount,
			Kind:        ledger.KindWithdrawal,
			ReferenceID: w.ID,
			Description: fmt.Sprintf("withdrawal via %s", w.PaymentMethod),
		})
		return err
	})
	if err != nil {
		switch errutil.KindOf(err) {
		case errutil.StatusAlreadyProcessed, errutil.StatusInsufficientFunds:
			zapLog.Warn("withdrawal not approved", zap.Error(err))
		default:
			zapLog.Error("failed to approve withdrawal", zap.Error(err))
		}
		return nil, errutil.Wrap("failed to approve withdrawal", err)
	}

	w, err = s.load(ctx, w.ID)
	if err != nil {
		return nil, err
	}

	zapLog.Info("withdrawal approved", zap.String("amount", w.Amount.String()))
	s.notifyDecision(ctx, w)
	return w, nil
}

// Reject closes a pending withdrawal. Balances are untouched.
func (s *Service) Reject(ctx context.Context, req DecisionRequest) (*ledger.Withdrawal, error) {
	if err := s.ledger.TransitionStatus(ctx, nil, &ledger.Withdrawal{}, req.ID, ledger.StatusRejected, decisionFields(req)); err != nil {
		return nil, err
	}

	w, err := s.load(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("withdrawal rejected", zap.String("withdrawal_id", w.ID), zap.String("admin_id", req.AdminID))
	s.notifyDecision(ctx, w)
	return w, nil
}

func decisionFields(req DecisionRequest) map[string]any {
	fields := map[string]any{
		"admin_notes": req.Notes,
		"decided_at":  time.Now().UTC(),
	}
	if req.AdminID != "" {
		fields["decided_by"] = req.AdminID
	}
	return fields
}

func (s *Service) notifyDecision(ctx context.Context, w *ledger.Withdrawal) {
	s.notifier.Notify(ctx, notification.Event{
		Type:     notification.WithdrawalDecided,
		UserID:   w.UserID,
		Audience: notification.AudienceUser,
		Payload: map[string]any{
			"withdrawal_id": w.ID,
			"amount":        w.Amount.String(),
			"status":        w.Status,
			"notes":         w.AdminNotes,
		},
	})
}

func (s *Service) Get(ctx context.Context, id string) (*ledger.Withdrawal, error) {
	return s.load(ctx, id)
}

func (s *Service) List(ctx context.Context, req ListRequest) ([]*ledger.Withdrawal, *pagination.PageInfo, error) {
	opts := []option.QueryOption{option.ApplyPagination(req.Pagination)}
	if req.Status != "" {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "status", Operator: option.EQ, Value: req.Status}))
	}

	items, err := s.withdrawals.Find(ctx, &ledger.Withdrawal{UserID: req.UserID}, opts...)
	if err != nil {
		logger.FromContext(ctx).Error("failed to list withdrawals", zap.Error(err))
		return nil, nil, errutil.Persistence("failed to list withdrawals", err)
	}

	items, info := pagination.Page(items, req.Limit, func(w *ledger.Withdrawal) string { return w.ID })
	return items, info, nil
}
