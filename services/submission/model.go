package submission

import (
	"payout-controlplane/pkg/db/pagination"
	"payout-controlplane/services/commission"
	"payout-controlplane/services/ledger"

	"github.com/shopspring/decimal"
)

const (
	MinAccountCount = 1
	MaxAccountCount = 10000
)

type CreateRequest struct {
	UserID       string         `json:"-"`
	Category     string         `json:"category" binding:"required"`
	Filename     string         `json:"filename"`
	FileFormat   string         `json:"file_format"`
	FileSize     int64          `json:"file_size"`
	Content      string         `json:"content"`
	AccountCount int            `json:"account_count" binding:"required"`
	Channel      ledger.Channel `json:"-"`
}

type ApproveRequest struct {
	ID            string `json:"-"`
	ApprovedCount *int   `json:"approved_count"`
	Notes         string `json:"notes"`
	AdminID       string `json:"-"`
}

type RejectRequest struct {
	ID      string `json:"-"`
	Notes   string `json:"notes"`
	AdminID string `json:"-"`
}

type ApproveResult struct {
	Submission  *ledger.Submission `json:"submission"`
	Earning     decimal.Decimal    `json:"earning"`
	Commissions *commission.Result `json:"commissions,omitempty"`
}

type ListRequest struct {
	UserID string        `form:"-"`
	Status ledger.Status `form:"status"`
	pagination.Pagination
}
