package commission

import (
	"context"
	"fmt"

	"payout-controlplane/pkg/db/option"
	"payout-controlplane/pkg/errutil"
	"payout-controlplane/pkg/logger"
	"payout-controlplane/pkg/repository"
	"payout-controlplane/services/ledger"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AmountScale is the number of decimal places kept for a booked commission.
// Truncating, never rounding up, keeps the total within the earning.
const AmountScale = 8

// Engine walks referral chains and books commissions inside the caller's transaction.
type Engine struct {
	ledger   *ledger.Service
	schedule Schedule
	events   repository.Repository[ledger.CommissionEvent]
}

type EngineParams struct {
	fx.In
	DB       *gorm.DB
	Ledger   *ledger.Service
	Schedule Schedule
}

func NewEngine(p EngineParams) *Engine {
	return &Engine{
		ledger:   p.Ledger,
		schedule: p.Schedule,
		events:   repository.ProvideStore[ledger.CommissionEvent](p.DB),
	}
}

func (e *Engine) Schedule() Schedule {
	return e.schedule
}

type Booking struct {
	EventID       string          `json:"event_id"`
	BeneficiaryID string          `json:"beneficiary_id"`
	Level         int             `json:"level"`
	Rate          decimal.Decimal `json:"rate"`
	Amount        decimal.Decimal `json:"amount"`
}

type Result struct {
	Bookings      []Booking       `json:"bookings"`
	Distributed   decimal.Decimal `json:"distributed"`
	Remaining     decimal.Decimal `json:"remaining"`
	CycleDetected bool            `json:"cycle_detected"`
}

// BookCommissions distributes commissions for an earning already credited
// to earningUserID. Each level takes its rate of what the levels below it
// left over (decreasing remainder), so the total paid is
// amount × (1 − ∏(1 − rate)) and never exceeds amount. Levels with no rate
// are skipped but still count towards MaxLevels.
func (e *Engine) BookCommissions(ctx context.Context, tx *gorm.DB, earningUserID string, amount decimal.Decimal, submissionID *string) (*Result, error) {
	if !amount.IsPositive() {
		return nil, errutil.ValidationFailed("earning amount must be positive", nil)
	}

	zapLog := logger.FromContext(ctx).With(zap.String("source_user_id", earningUserID), zap.String("earning", amount.String()))

	result := &Result{
		Distributed: decimal.Zero,
		Remaining:   amount,
	}

	visited := map[string]struct{}{earningUserID: {}}
	current := earningUserID

	for level := 1; level <= e.schedule.MaxLevels; level++ {
		parentID, found, err := e.ledger.ReferrerOf(ctx, tx, current)
		if err != nil {
			zapLog.Error("failed to load referrer", zap.String("user_id", current), zap.Error(err))
			return nil, errutil.Persistence("failed to load referrer", err)
		}
		if !found {
			if level == 1 {
				return nil, errutil.NotFound(fmt.Sprintf("user %s not found", earningUserID), nil)
			}
			break
		}
		if parentID == nil || *parentID == "" {
			break
		}

		parent := *parentID
		if _, seen := visited[parent]; seen {
			zapLog.Error("referral cycle detected, stopping commission walk",
				zap.String("user_id", current), zap.String("referrer_id", parent), zap.Int("level", level))
			result.CycleDetected = true
			break
		}
		visited[parent] = struct{}{}

		rate := e.schedule.RateFor(level)
		if rate.IsPositive() {
			commission := result.Remaining.Mul(rate).Truncate(AmountScale)
			if commission.IsPositive() {
				booking, err := e.book(ctx, tx, parent, earningUserID, level, rate, commission, amount, submissionID)
				if errutil.Is(err, errutil.StatusNotFound) {
					zapLog.Warn("referrer row missing, stopping commission walk", zap.String("referrer_id", parent))
					break
				}
				if err != nil {
					return nil, err
				}

				result.Bookings = append(result.Bookings, *booking)
				result.Distributed = result.Distributed.Add(commission)
				result.Remaining = result.Remaining.Sub(commission)
			}
		}

		current = parent
	}

	if len(result.Bookings) > 0 {
		zapLog.Info("commissions booked", zap.Int("levels", len(result.Bookings)), zap.String("distributed", result.Distributed.String()))
	}

	return result, nil
}

func (e *Engine) book(ctx context.Context, tx *gorm.DB, beneficiaryID, sourceUserID string, level int, rate, commission, sourceAmount decimal.Decimal, submissionID *string) (*Booking, error) {
	eventID := e.ledger.NextID()

	meta := map[string]any{
		"level":         level,
		"rate":          rate.String(),
		"source_user":   sourceUserID,
		"source_amount": sourceAmount.String(),
	}
	if submissionID != nil {
		meta["submission_id"] = *submissionID
	}

	if _, err := e.ledger.Credit(ctx, tx, ledger.Movement{
		UserID:      beneficiaryID,
		Amount:      commission,
		Kind:        ledger.KindCommission,
		ReferenceID: eventID,
		Description: fmt.Sprintf("level %d commission", level),
		Metadata:    meta,
	}); err != nil {
		return nil, err
	}

	event := &ledger.CommissionEvent{
		ID:           eventID,
		UserID:       beneficiaryID,
		SourceUserID: sourceUserID,
		Type:         ledger.LevelType(level),
		Level:        level,
		Amount:       commission,
		SourceAmount: sourceAmount,
		Rate:         rate,
		SubmissionID: submissionID,
	}
	if err := e.events.WithTrx(tx).Create(ctx, event); err != nil {
		return nil, errutil.Persistence("failed to record commission event", err)
	}

	return &Booking{
		EventID:       eventID,
		BeneficiaryID: beneficiaryID,
		Level:         level,
		Rate:          rate,
		Amount:        commission,
	}, nil
}

// BookReferralBonus pays the flat bonus to a referrer and counts the new
// referral. The event is recorded with rate 1 and no source amount.
func (e *Engine) BookReferralBonus(ctx context.Context, tx *gorm.DB, referrerID, newUserID string) (*ledger.CommissionEvent, error) {
	if referrerID == "" || referrerID == newUserID {
		return nil, errutil.ValidationFailed("invalid referrer", nil)
	}

	if err := e.ledger.IncrementReferrals(ctx, tx, referrerID); err != nil {
		return nil, err
	}

	bonus := e.schedule.ReferralBonus
	if !bonus.IsPositive() {
		return nil, nil
	}

	eventID := e.ledger.NextID()
	if _, err := e.ledger.Credit(ctx, tx, ledger.Movement{
		UserID:      referrerID,
		Amount:      bonus,
		Kind:        ledger.KindReferralBonus,
		ReferenceID: eventID,
		Description: "referral bonus",
		Metadata:    map[string]any{"new_user_id": newUserID},
	}); err != nil {
		return nil, err
	}

	event := &ledger.CommissionEvent{
		ID:           eventID,
		UserID:       referrerID,
		SourceUserID: newUserID,
		Type:         ledger.CommissionTypeReferral,
		Level:        1,
		Amount:       bonus,
		SourceAmount: decimal.Zero,
		Rate:         decimal.NewFromInt(1),
	}
	if err := e.events.WithTrx(tx).Create(ctx, event); err != nil {
		return nil, errutil.Persistence("failed to record referral event", err)
	}

	logger.FromContext(ctx).Info("referral bonus booked",
		zap.String("referrer_id", referrerID), zap.String("new_user_id", newUserID), zap.String("bonus", bonus.String()))

	return event, nil
}

// Events lists commission events credited to a user, newest first.
func (e *Engine) Events(ctx context.Context, userID string) ([]*ledger.CommissionEvent, error) {
	events, err := e.events.Find(ctx, &ledger.CommissionEvent{UserID: userID},
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "desc"}),
	)
	if err != nil {
		return nil, errutil.Persistence("failed to list commission events", err)
	}
	return events, nil
}
