package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func (s Status) String() string {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return string(s)
	default:
		return ""
	}
}

type Channel string

const (
	ChannelBot    Channel = "bot"
	ChannelWebapp Channel = "webapp"
	ChannelAPI    Channel = "api"
)

type User struct {
	ID             string          `gorm:"column:id;primaryKey;size:32" json:"id"`
	Username       string          `gorm:"column:username;uniqueIndex;size:64;not null" json:"username"`
	Email          *string         `gorm:"column:email;uniqueIndex;size:128" json:"email,omitempty"`
	TelegramID     *string         `gorm:"column:telegram_id;uniqueIndex;size:64" json:"telegram_id,omitempty"`
	FirstName      string          `gorm:"column:first_name;size:64" json:"first_name"`
	LastName       string          `gorm:"column:last_name;size:64" json:"last_name"`
	Phone          string          `gorm:"column:phone;size:32" json:"phone,omitempty"`
	PasswordHash   string          `gorm:"column:password_hash" json:"-"`
	Balance        decimal.Decimal `gorm:"column:balance;type:decimal(20,8);not null;default:0" json:"balance"`
	TotalEarned    decimal.Decimal `gorm:"column:total_earned;type:decimal(20,8);not null;default:0" json:"total_earned"`
	TotalWithdrawn decimal.Decimal `gorm:"column:total_withdrawn;type:decimal(20,8);not null;default:0" json:"total_withdrawn"`
	MLMEarnings    decimal.Decimal `gorm:"column:mlm_earnings;type:decimal(20,8);not null;default:0" json:"mlm_earnings"`
	TotalReferrals int             `gorm:"column:total_referrals;not null;default:0" json:"total_referrals"`
	ReferrerID     *string         `gorm:"column:referrer_id;index;size:32" json:"referrer_id,omitempty"`
	ReferralCode   string          `gorm:"column:referral_code;uniqueIndex;size:16;not null" json:"referral_code"`
	IsActive       bool            `gorm:"column:is_active;not null" json:"is_active"`
	IsBanned       bool            `gorm:"column:is_banned;not null" json:"is_banned"`
	IsPremium      bool            `gorm:"column:is_premium;not null" json:"is_premium"`
	IsAdmin        bool            `gorm:"column:is_admin;not null" json:"is_admin"`
	LastLogin      *time.Time      `gorm:"column:last_login" json:"last_login,omitempty"`
	CreatedAt      time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

// CanTransact is false for banned or deactivated accounts.
func (u *User) CanTransact() bool {
	return u.IsActive && !u.IsBanned
}

// DisplayName prefers the full name, then the username.
func (u *User) DisplayName() string {
	full := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if full != "" {
		return full
	}
	return u.Username
}

type Submission struct {
	ID             string          `gorm:"column:id;primaryKey;size:32" json:"id"`
	UserID         string          `gorm:"column:user_id;index;size:32;not null" json:"user_id"`
	Category       string          `gorm:"column:category;index;size:64;not null" json:"category"`
	Filename       string          `gorm:"column:filename;size:255" json:"filename"`
	FileFormat     string          `gorm:"column:file_format;size:16" json:"file_format"`
	FileSize       int64           `gorm:"column:file_size" json:"file_size"`
	Content        string          `gorm:"column:content;type:text" json:"-"`
	Sequence       int64           `gorm:"column:sequence;uniqueIndex;not null" json:"sequence"`
	AccountCount   int             `gorm:"column:account_count;not null" json:"account_count"`
	ApprovedCount  int             `gorm:"column:approved_count;not null;default:0" json:"approved_count"`
	RatePerAccount decimal.Decimal `gorm:"column:rate_per_account;type:decimal(20,8);not null;default:0" json:"rate_per_account"`
	TotalEarning   decimal.Decimal `gorm:"column:total_earning;type:decimal(20,8);not null;default:0" json:"total_earning"`
	Status         Status          `gorm:"column:status;index;size:16;not null" json:"status"`
	Channel        Channel         `gorm:"column:channel;size:16;not null" json:"channel"`
	AdminNotes     string          `gorm:"column:admin_notes;type:text" json:"admin_notes,omitempty"`
	DecidedBy      *string         `gorm:"column:decided_by;size:32" json:"decided_by,omitempty"`
	ArchiveURL     string          `gorm:"column:archive_url;size:512" json:"archive_url,omitempty"`
	Archived       bool            `gorm:"column:archived;not null" json:"archived"`
	CreatedAt      time.Time       `gorm:"column:created_at;index" json:"created_at"`
	DecidedAt      *time.Time      `gorm:"column:decided_at" json:"decided_at,omitempty"`
}

type Withdrawal struct {
	ID             string          `gorm:"column:id;primaryKey;size:32" json:"id"`
	UserID         string          `gorm:"column:user_id;index;size:32;not null" json:"user_id"`
	Amount         decimal.Decimal `gorm:"column:amount;type:decimal(20,8);not null" json:"amount"`
	PaymentMethod  string          `gorm:"column:payment_method;size:32;not null" json:"payment_method"`
	PaymentDetails datatypes.JSON  `gorm:"column:payment_details" json:"payment_details"`
	Status         Status          `gorm:"column:status;index;size:16;not null" json:"status"`
	AdminNotes     string          `gorm:"column:admin_notes;type:text" json:"admin_notes,omitempty"`
	DecidedBy      *string         `gorm:"column:decided_by;size:32" json:"decided_by,omitempty"`
	CreatedAt      time.Time       `gorm:"column:created_at;index" json:"created_at"`
	DecidedAt      *time.Time      `gorm:"column:decided_at" json:"decided_at,omitempty"`
}

type CategoryRate struct {
	ID          string          `gorm:"column:id;primaryKey;size:32" json:"id"`
	Category    string          `gorm:"column:category;uniqueIndex;size:64;not null" json:"category"`
	Subcategory string          `gorm:"column:subcategory;size:64" json:"subcategory,omitempty"`
	Rate        decimal.Decimal `gorm:"column:rate;type:decimal(20,8);not null" json:"rate"`
	IsActive    bool            `gorm:"column:is_active;not null" json:"is_active"`
	CreatedAt   time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

// CommissionEvent is append-only.
type CommissionEvent struct {
	ID           string          `gorm:"column:id;primaryKey;size:32" json:"id"`
	UserID       string          `gorm:"column:user_id;index;size:32;not null" json:"user_id"`
	SourceUserID string          `gorm:"column:source_user_id;index;size:32;not null" json:"source_user_id"`
	Type         string          `gorm:"column:type;size:16;not null" json:"type"`
	Level        int             `gorm:"column:level;not null" json:"level"`
	Amount       decimal.Decimal `gorm:"column:amount;type:decimal(20,8);not null" json:"amount"`
	SourceAmount decimal.Decimal `gorm:"column:source_amount;type:decimal(20,8);not null" json:"source_amount"`
	Rate         decimal.Decimal `gorm:"column:rate;type:decimal(12,8);not null" json:"rate"`
	SubmissionID *string         `gorm:"column:submission_id;index;size:32" json:"submission_id,omitempty"`
	CreatedAt    time.Time       `gorm:"column:created_at;index" json:"created_at"`
}

const CommissionTypeReferral = "referral"

// LevelType is the commission type recorded for a level walk, e.g. "level2".
func LevelType(level int) string {
	return fmt.Sprintf("level%d", level)
}

type Direction string

const (
	Credit Direction = "credit"
	Debit  Direction = "debit"
)

type EntryKind string

const (
	KindEarning       EntryKind = "earning"
	KindCommission    EntryKind = "commission"
	KindReferralBonus EntryKind = "referral_bonus"
	KindWithdrawal    EntryKind = "withdrawal"
	KindAdjustment    EntryKind = "adjustment"
)

// countsAsMLM reports whether a credit also feeds mlm_earnings.
func (k EntryKind) countsAsMLM() bool {
	return k == KindCommission || k == KindReferralBonus
}

// JournalEntry is one balance movement. Entries of a user form a hash chain ordered by Seq.
type JournalEntry struct {
	ID           string          `gorm:"column:id;primaryKey;size:32" json:"id"`
	UserID       string          `gorm:"column:user_id;size:32;not null;uniqueIndex:idx_journal_user_seq" json:"user_id"`
	Seq          int64           `gorm:"column:seq;not null;uniqueIndex:idx_journal_user_seq" json:"seq"`
	Direction    Direction       `gorm:"column:direction;size:8;not null" json:"direction"`
	Kind         EntryKind       `gorm:"column:kind;size:32;not null" json:"kind"`
	Amount       decimal.Decimal `gorm:"column:amount;type:decimal(20,8);not null" json:"amount"`
	ReferenceID  string          `gorm:"column:reference_id;index;size:64" json:"reference_id"`
	Description  string          `gorm:"column:description;size:255" json:"description"`
	PreviousHash string          `gorm:"column:previous_hash;size:64" json:"previous_hash"`
	Hash         string          `gorm:"column:hash;size:64" json:"hash"`
	Metadata     datatypes.JSON  `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt    time.Time       `gorm:"column:created_at" json:"created_at"`
}

const genesisHash = "GENESIS"

func (m *JournalEntry) HashFields() map[string]string {
	return map[string]string{
		"id":            m.ID,
		"user_id":       m.UserID,
		"seq":           fmt.Sprintf("%d", m.Seq),
		"direction":     string(m.Direction),
		"kind":          string(m.Kind),
		"amount":        m.Amount.String(),
		"reference_id":  m.ReferenceID,
		"description":   m.Description,
		"created_at":    m.CreatedAt.UTC().Format(time.RFC3339Nano),
		"previous_hash": m.PreviousHash,
	}
}

func (m *JournalEntry) GenerateHash() string {
	fields := m.HashFields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, fields[k]))
	}

	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(hash[:])
}

// Models lists every table owned by the ledger store, in migration order.
func Models() []any {
	return []any{
		&User{},
		&CategoryRate{},
		&Submission{},
		&Withdrawal{},
		&CommissionEvent{},
		&JournalEntry{},
	}
}
