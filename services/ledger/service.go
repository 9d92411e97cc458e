package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"payout-controlplane/pkg/db/option"
	"payout-controlplane/pkg/db/pagination"
	"payout-controlplane/pkg/errutil"
	"payout-controlplane/pkg/logger"
	"payout-controlplane/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Service is the ledger store. Money-moving methods take the caller's
// transaction so a workflow commits its status change together with every
// balance write it causes.
type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	users   repository.Repository[User]
	journal repository.Repository[JournalEntry]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,

		users:   repository.ProvideStore[User](p.DB),
		journal: repository.ProvideStore[JournalEntry](p.DB),
	}
}

func (s *Service) DB() *gorm.DB {
	return s.db
}

func (s *Service) NextID() string {
	return s.node.Generate().String()
}

func (s *Service) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(Models()...)
}

func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	if id == "" {
		return nil, errutil.NotFound("user not found", nil)
	}
	user, err := s.users.FindOne(ctx, &User{ID: id})
	if err != nil {
		logger.FromContext(ctx).Error("failed to query user", zap.String("user_id", id), zap.Error(err))
		return nil, errutil.Persistence("failed to get user", err)
	}
	if user == nil {
		return nil, errutil.NotFound("user not found", nil)
	}
	return user, nil
}

func (s *Service) FindUserByReferralCode(ctx context.Context, code string) (*User, error) {
	if code == "" {
		return nil, errutil.ValidationFailed("referral code is empty", nil)
	}
	user, err := s.users.FindOne(ctx, &User{ReferralCode: code})
	if err != nil {
		return nil, errutil.Persistence("failed to resolve referral code", err)
	}
	if user == nil {
		return nil, errutil.NotFound("referral code not found", nil)
	}
	return user, nil
}

// ReferrerOf returns the parent id of a user, nil for a root.
// found is false when the user row does not exist.
func (s *Service) ReferrerOf(ctx context.Context, tx *gorm.DB, userID string) (referrerID *string, found bool, err error) {
	var u User
	res := s.conn(tx).WithContext(ctx).
		Model(&User{}).
		Select("id", "referrer_id").
		Where("id = ?", userID).
		Limit(1).
		Find(&u)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, false, nil
	}
	return u.ReferrerID, true, nil
}

func (s *Service) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}

// Credit adds amount to balance and total_earned (and mlm_earnings for
// commission kinds) with an atomic increment, then journals the movement.
func (s *Service) Credit(ctx context.Context, tx *gorm.DB, m Movement) (*JournalEntry, error) {
	if !m.Amount.IsPositive() {
		return nil, errutil.ValidationFailed("credit amount must be positive", nil)
	}

	updates := map[string]any{
		"balance":      gorm.Expr("balance + ?", m.Amount),
		"total_earned": gorm.Expr("total_earned + ?", m.Amount),
		"updated_at":   now(),
	}
	if m.Kind.countsAsMLM() {
		updates["mlm_earnings"] = gorm.Expr("mlm_earnings + ?", m.Amount)
	}

	res := s.conn(tx).WithContext(ctx).Model(&User{}).Where("id = ?", m.UserID).Updates(updates)
	if res.Error != nil {
		logger.FromContext(ctx).Error("failed to credit user", zap.String("user_id", m.UserID), zap.Error(res.Error))
		return nil, errutil.Persistence("failed to credit balance", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, errutil.NotFound(fmt.Sprintf("user %s not found", m.UserID), nil)
	}

	return s.appendJournal(ctx, tx, Credit, m)
}

// Debit subtracts amount from balance and adds it to total_withdrawn. The
// update only applies while balance >= amount, so a concurrent debit can
// never drive the balance negative.
func (s *Service) Debit(ctx context.Context, tx *gorm.DB, m Movement) (*JournalEntry, error) {
	if !m.Amount.IsPositive() {
		return nil, errutil.ValidationFailed("debit amount must be positive", nil)
	}

	res := s.conn(tx).WithContext(ctx).Model(&User{}).
		Where("id = ? AND balance >= ?", m.UserID, m.Amount).
		Updates(map[string]any{
			"balance":         gorm.Expr("balance - ?", m.Amount),
			"total_withdrawn": gorm.Expr("total_withdrawn + ?", m.Amount),
			"updated_at":      now(),
		})
	if res.Error != nil {
		logger.FromContext(ctx).Error("failed to debit user", zap.String("user_id", m.UserID), zap.Error(res.Error))
		return nil, errutil.Persistence("failed to debit balance", res.Error)
	}

	if res.RowsAffected == 0 {
		_, found, err := s.ReferrerOf(ctx, tx, m.UserID)
		if err != nil {
			return nil, errutil.Persistence("failed to load user", err)
		}
		if !found {
			return nil, errutil.NotFound(fmt.Sprintf("user %s not found", m.UserID), nil)
		}
		return nil, errutil.InsufficientFunds("insufficient balance", nil)
	}

	return s.appendJournal(ctx, tx, Debit, m)
}

// IncrementReferrals bumps total_referrals by one.
func (s *Service) IncrementReferrals(ctx context.Context, tx *gorm.DB, userID string) error {
	res := s.conn(tx).WithContext(ctx).Model(&User{}).
		Where("id = ?", userID).
		Update("total_referrals", gorm.Expr("total_referrals + ?", 1))
	if res.Error != nil {
		return errutil.Persistence("failed to increment referrals", res.Error)
	}
	if res.RowsAffected == 0 {
		return errutil.NotFound(fmt.Sprintf("user %s not found", userID), nil)
	}
	return nil
}

// TransitionStatus moves a pending submission or withdrawal to its decided
// state with a compare-and-set on status. Exactly one concurrent caller wins;
// the others get AlreadyProcessed.
func (s *Service) TransitionStatus(ctx context.Context, tx *gorm.DB, model any, id string, to Status, fields map[string]any) error {
	updates := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		updates[k] = v
	}
	updates["status"] = to

	res := s.conn(tx).WithContext(ctx).Model(model).
		Where("id = ? AND status = ?", id, StatusPending).
		Updates(updates)
	if res.Error != nil {
		return errutil.Persistence("failed to update status", res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var count int64
	if err := s.conn(tx).WithContext(ctx).Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return errutil.Persistence("failed to check record", err)
	}
	if count == 0 {
		return errutil.NotFound(fmt.Sprintf("%s not found", id), nil)
	}
	return errutil.AlreadyProcessed(fmt.Sprintf("%s already processed", id), nil)
}

func (s *Service) lastEntry(ctx context.Context, tx *gorm.DB, userID string) (*JournalEntry, error) {
	return s.journal.WithTrx(tx).FindOne(ctx, &JournalEntry{UserID: userID},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "seq",
			OrderBy: "desc",
			Allow:   map[string]bool{"seq": true},
		}),
	)
}

// appendJournal must run after the user row was updated in the same
// transaction; the row lock taken by that update orders concurrent appends.
func (s *Service) appendJournal(ctx context.Context, tx *gorm.DB, dir Direction, m Movement) (*JournalEntry, error) {
	last, err := s.lastEntry(ctx, tx, m.UserID)
	if err != nil {
		return nil, errutil.Persistence("failed to load journal head", err)
	}

	previousHash := genesisHash
	var seq int64 = 1
	if last != nil {
		previousHash = last.Hash
		seq = last.Seq + 1
	}

	var meta datatypes.JSON
	if len(m.Metadata) > 0 {
		b, err := json.Marshal(m.Metadata)
		if err != nil {
			return nil, errutil.ValidationFailed("invalid journal metadata", err)
		}
		meta = datatypes.JSON(b)
	}

	entry := &JournalEntry{
		ID:           s.NextID(),
		UserID:       m.UserID,
		Seq:          seq,
		Direction:    dir,
		Kind:         m.Kind,
		Amount:       m.Amount,
		ReferenceID:  m.ReferenceID,
		Description:  m.Description,
		PreviousHash: previousHash,
		Metadata:     meta,
		CreatedAt:    now(),
	}
	entry.Hash = entry.GenerateHash()

	if err := s.journal.WithTrx(tx).Create(ctx, entry); err != nil {
		logger.FromContext(ctx).Error("failed to append journal entry", zap.String("user_id", m.UserID), zap.Error(err))
		return nil, errutil.Persistence("failed to append journal entry", err)
	}

	return entry, nil
}

func (s *Service) ListEntries(ctx context.Context, userID string, p pagination.Pagination) ([]*JournalEntry, *pagination.PageInfo, error) {
	entries, err := s.journal.Find(ctx, &JournalEntry{UserID: userID}, option.ApplyPagination(p))
	if err != nil {
		logger.FromContext(ctx).Error("failed to query list entries", zap.Error(err))
		return nil, nil, errutil.Persistence("failed to list journal", err)
	}

	entries, info := pagination.Page(entries, p.Limit, func(e *JournalEntry) string { return e.ID })
	return entries, info, nil
}

// VerifyChain recomputes every hash of a user's journal and checks the links.
func (s *Service) VerifyChain(ctx context.Context, userID string) (bool, error) {
	entries, err := s.journal.Find(ctx, &JournalEntry{UserID: userID},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "seq",
			OrderBy: "asc",
			Allow:   map[string]bool{"seq": true},
		}),
	)
	if err != nil {
		logger.FromContext(ctx).Error("failed to query journal entries", zap.Error(err))
		return false, errutil.Persistence("failed to load journal", err)
	}

	lastHash := genesisHash
	for i, entry := range entries {
		if entry.Seq != int64(i+1) || entry.PreviousHash != lastHash || entry.Hash != entry.GenerateHash() {
			logger.FromContext(ctx).Warn("journal chain broken", zap.String("user_id", userID), zap.Int64("seq", entry.Seq))
			return false, nil
		}
		lastHash = entry.Hash
	}

	return true, nil
}
