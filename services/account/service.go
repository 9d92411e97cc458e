package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"payout-controlplane/pkg/errutil"
	"payout-controlplane/pkg/logger"
	"payout-controlplane/pkg/repository"
	"payout-controlplane/pkg/sequence"
	"payout-controlplane/services/commission"
	"payout-controlplane/services/ledger"
	"payout-controlplane/services/notification"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	referralCodeAttempts = 3
	maxAncestorWalk      = 10000
)

type Service struct {
	db       *gorm.DB
	ledger   *ledger.Service
	engine   *commission.Engine
	seq      sequence.Generator
	notifier notification.Notifier

	users  repository.Repository[ledger.User]
	events repository.Repository[ledger.CommissionEvent]
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Ledger   *ledger.Service
	Engine   *commission.Engine
	Sequence sequence.Generator
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
		engine:   p.Engine,
		seq:      p.Sequence,
		notifier: notifier,

		users:  repository.ProvideStore[ledger.User](p.DB),
		events: repository.ProvideStore[ledger.CommissionEvent](p.DB),
	}
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func hashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", errutil.ValidationFailed(fmt.Sprintf("password must be at least %d characters", MinPasswordLength), nil,
			errutil.WithDetails(errutil.Detail{Field: "password", Message: "too short"}))
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", errutil.Internal("failed to hash password", err)
	}
	return string(hash), nil
}

func (s *Service) ensureUnique(ctx context.Context, field string, query *ledger.User) error {
	existing, err := s.users.FindOne(ctx, query)
	if err != nil {
		return errutil.Persistence("failed to check "+field, err)
	}
	if existing != nil {
		return errutil.ValidationFailed(fmt.Sprintf("%s is already registered", field), nil,
			errutil.WithDetails(errutil.Detail{Field: field, Message: "taken"}))
	}
	return nil
}

func (s *Service) nextReferralCode(ctx context.Context) (string, error) {
	for i := 0; i < referralCodeAttempts; i++ {
		code, err := s.seq.NextReferralCode(ctx)
		if err != nil {
			return "", errutil.Internal("failed to generate referral code", err)
		}
		_, err = s.ledger.FindUserByReferralCode(ctx, code)
		if errutil.Is(err, errutil.StatusNotFound) {
			return code, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", errutil.Internal("failed to generate a unique referral code", nil)
}

// Register creates a user and, when a referral code was given, books the
// referral bonus. The user is committed first; a failed bonus is logged and
// reported through BonusBooked without undoing the registration.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, errutil.ValidationFailed("username is required", nil,
			errutil.WithDetails(errutil.Detail{Field: "username", Message: "required"}))
	}
	email := optional(strings.ToLower(req.Email))
	telegramID := optional(req.TelegramID)

	if telegramID == nil && req.Password == "" {
		return nil, errutil.ValidationFailed("password is required", nil,
			errutil.WithDetails(errutil.Detail{Field: "password", Message: "required"}))
	}

	var referrer *ledger.User
	if code := strings.ToUpper(strings.TrimSpace(req.ReferralCode)); code != "" {
		r, err := s.ledger.FindUserByReferralCode(ctx, code)
		if errutil.Is(err, errutil.StatusNotFound) {
			return nil, errutil.ValidationFailed("invalid referral code", nil,
				errutil.WithDetails(errutil.Detail{Field: "referral_code", Message: "unknown"}))
		}
		if err != nil {
			return nil, err
		}
		referrer = r
	}

	if err := s.ensureUnique(ctx, "username", &ledger.User{Username: username}); err != nil {
		return nil, err
	}
	if email != nil {
		if err := s.ensureUnique(ctx, "email", &ledger.User{Email: email}); err != nil {
			return nil, err
		}
	}
	if telegramID != nil {
		if err := s.ensureUnique(ctx, "telegram_id", &ledger.User{TelegramID: telegramID}); err != nil {
			return nil, err
		}
	}

	var passwordHash string
	if req.Password != "" {
		h, err := hashPassword(req.Password)
		if err != nil {
			return nil, err
		}
		passwordHash = h
	}

	code, err := s.nextReferralCode(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	user := &ledger.User{
		ID:           s.ledger.NextID(),
		Username:     username,
		Email:        email,
		TelegramID:   telegramID,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Phone:        strings.TrimSpace(req.Phone),
		PasswordHash: passwordHash,
		ReferralCode: code,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if referrer != nil {
		user.ReferrerID = &referrer.ID
	}

	zapLog := logger.FromContext(ctx).With(zap.String("user_id", user.ID), zap.String("username", username))

	if err := s.users.Create(ctx, user); err != nil {
		zapLog.Error("failed to create user", zap.Error(err))
		return nil, errutil.Persistence("failed to create user", err)
	}

	result := &RegisterResult{User: user, ReferrerID: user.ReferrerID}
	zapLog.Info("user registered", zap.Stringp("referrer_id", user.ReferrerID))

	if referrer == nil {
		return result, nil
	}

	if err := s.bookBonus(ctx, referrer.ID, user.ID); err != nil {
		zapLog.Error("referral bonus failed, user kept", zap.String("referrer_id", referrer.ID), zap.Error(err))
		return result, nil
	}
	result.BonusBooked = true

	s.notifier.Notify(ctx, notification.Event{
		Type:     notification.ReferralJoined,
		UserID:   referrer.ID,
		Audience: notification.AudienceUser,
		Payload: map[string]any{
			"new_user_id": user.ID,
			"new_user":    user.DisplayName(),
		},
	})

	return result, nil
}

func (s *Service) bookBonus(ctx context.Context, referrerID, newUserID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := s.engine.BookReferralBonus(ctx, tx, referrerID, newUserID)
		return err
	})
}

// RegisterReferral books the referral bonus for an existing user. It links
// the user to the referrer when it has none and refuses to book twice.
func (s *Service) RegisterReferral(ctx context.Context, referrerID, newUserID string) (*ledger.CommissionEvent, error) {
	if referrerID == newUserID {
		return nil, errutil.ValidationFailed("a user cannot refer itself", nil)
	}

	referrer, err := s.ledger.GetUser(ctx, referrerID)
	if err != nil {
		return nil, err
	}
	newUser, err := s.ledger.GetUser(ctx, newUserID)
	if err != nil {
		return nil, err
	}

	if newUser.ReferrerID != nil && *newUser.ReferrerID != referrer.ID {
		return nil, errutil.ValidationFailed("user already has a different referrer", nil)
	}

	booked, err := s.events.Count(ctx, &ledger.CommissionEvent{
		UserID:       referrer.ID,
		SourceUserID: newUser.ID,
		Type:         ledger.CommissionTypeReferral,
	})
	if err != nil {
		return nil, errutil.Persistence("failed to check referral", err)
	}
	if booked > 0 {
		return nil, errutil.AlreadyProcessed("referral already booked", nil)
	}

	var event *ledger.CommissionEvent
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if newUser.ReferrerID == nil {
			if err := s.ensureNotDescendant(ctx, tx, referrer.ID, newUser.ID); err != nil {
				return err
			}
			res := tx.WithContext(ctx).Model(&ledger.User{}).
				Where("id = ? AND referrer_id IS NULL", newUser.ID).
				Update("referrer_id", referrer.ID)
			if res.Error != nil {
				return errutil.Persistence("failed to link referrer", res.Error)
			}
			if res.RowsAffected == 0 {
				return errutil.AlreadyProcessed("user was linked concurrently", nil)
			}
		}

		e, err := s.engine.BookReferralBonus(ctx, tx, referrer.ID, newUser.ID)
		event = e
		return err
	})
	if err != nil {
		return nil, errutil.Wrap("failed to register referral", err)
	}

	logger.FromContext(ctx).Info("referral registered", zap.String("referrer_id", referrer.ID), zap.String("user_id", newUser.ID))
	return event, nil
}

// ensureNotDescendant rejects a link that would make userID an ancestor of itself.
func (s *Service) ensureNotDescendant(ctx context.Context, tx *gorm.DB, referrerID, userID string) error {
	visited := map[string]struct{}{}
	current := referrerID
	for i := 0; i < maxAncestorWalk; i++ {
		if current == userID {
			return errutil.ValidationFailed("referral would create a cycle", nil)
		}
		if _, seen := visited[current]; seen {
			return nil
		}
		visited[current] = struct{}{}

		parent, found, err := s.ledger.ReferrerOf(ctx, tx, current)
		if err != nil {
			return errutil.Persistence("failed to walk referral chain", err)
		}
		if !found || parent == nil {
			return nil
		}
		current = *parent
	}
	return nil
}

// Authenticate checks a username (or email) and password pair.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*ledger.User, error) {
	login := strings.TrimSpace(username)
	if login == "" || password == "" {
		return nil, errutil.Unauthorized("invalid credentials", nil)
	}

	user, err := s.users.FindOne(ctx, &ledger.User{Username: login})
	if err == nil && user == nil && strings.Contains(login, "@") {
		email := strings.ToLower(login)
		user, err = s.users.FindOne(ctx, &ledger.User{Email: &email})
	}
	if err != nil {
		return nil, errutil.Persistence("failed to load user", err)
	}
	if user == nil || user.PasswordHash == "" {
		return nil, errutil.Unauthorized("invalid credentials", nil)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			logger.FromContext(ctx).Warn("unexpected password hash error", zap.String("user_id", user.ID), zap.Error(err))
		}
		return nil, errutil.Unauthorized("invalid credentials", nil)
	}

	if user.IsBanned || !user.IsActive {
		return nil, errutil.Forbidden("account is disabled", nil)
	}

	now := time.Now().UTC()
	if err := s.users.Update(ctx, user.ID, map[string]any{"last_login": now}); err != nil {
		logger.FromContext(ctx).Warn("failed to record last login", zap.String("user_id", user.ID), zap.Error(err))
	}
	user.LastLogin = &now

	return user, nil
}

func (s *Service) GetUser(ctx context.Context, id string) (*ledger.User, error) {
	return s.ledger.GetUser(ctx, id)
}

// ManageUser applies an admin action. Balance adjustments go through the
// ledger so the journal and the balance identity stay intact.
func (s *Service) ManageUser(ctx context.Context, req ManageRequest) (*ledger.User, error) {
	user, err := s.ledger.GetUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	zapLog := logger.FromContext(ctx).With(
		zap.String("user_id", user.ID),
		zap.String("action", string(req.Action)),
		zap.String("admin_id", req.AdminID),
	)

	switch req.Action {
	case ActionBan, ActionUnban, ActionSetPremium, ActionUnsetPremium:
		column, value := flagUpdate(req.Action)
		if err := s.users.Update(ctx, user.ID, map[string]any{column: value, "updated_at": time.Now().UTC()}); err != nil {
			return nil, errutil.Persistence("failed to update user", err)
		}

	case ActionResetPassword:
		hash, err := hashPassword(req.NewPassword)
		if err != nil {
			return nil, err
		}
		if err := s.users.Update(ctx, user.ID, map[string]any{"password_hash": hash, "updated_at": time.Now().UTC()}); err != nil {
			return nil, errutil.Persistence("failed to reset password", err)
		}

	case ActionAdjustBalance:
		if err := s.adjustBalance(ctx, user.ID, req); err != nil {
			return nil, err
		}

	default:
		return nil, errutil.ValidationFailed(fmt.Sprintf("unknown action %q", req.Action), nil)
	}

	zapLog.Info("user managed")
	return s.ledger.GetUser(ctx, user.ID)
}

func flagUpdate(action Action) (string, bool) {
	switch action {
	case ActionBan:
		return "is_banned", true
	case ActionUnban:
		return "is_banned", false
	case ActionSetPremium:
		return "is_premium", true
	default:
		return "is_premium", false
	}
}

func (s *Service) adjustBalance(ctx context.Context, userID string, req ManageRequest) error {
	if !req.Amount.IsPositive() {
		return errutil.ValidationFailed("adjustment amount must be positive", nil,
			errutil.WithDetails(errutil.Detail{Field: "amount", Message: "must be positive"}))
	}

	m := ledger.Movement{
		UserID:      userID,
		Amount:      req.Amount,
		Kind:        ledger.KindAdjustment,
		ReferenceID: s.ledger.NextID(),
		Description: req.Reason,
		Metadata:    map[string]any{"admin_id": req.AdminID, "operation": string(req.Operation)},
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		switch req.Operation {
		case OperationAdd:
			_, err := s.ledger.Credit(ctx, tx, m)
			return err
		case OperationSubtract:
			_, err := s.ledger.Debit(ctx, tx, m)
			return err
		case OperationSet:
			return errutil.ValidationFailed("set is not supported, use add or subtract", nil)
		default:
			return errutil.ValidationFailed(fmt.Sprintf("unknown operation %q", req.Operation), nil)
		}
	})
}
