package withdrawal

import (
	"payout-controlplane/pkg/db/pagination"
	"payout-controlplane/services/ledger"

	"github.com/shopspring/decimal"
)

type CreateRequest struct {
	UserID  string            `json:"-"`
	Amount  decimal.Decimal   `json:"amount" binding:"required"`
	Method  string            `json:"payment_method" binding:"required"`
	Details map[string]string `json:"payment_details"`
}

type DecisionRequest struct {
	ID      string `json:"-"`
	Notes   string `json:"notes"`
	AdminID string `json:"-"`
}

type ListRequest struct {
	UserID string        `form:"-"`
	Status ledger.Status `form:"status"`
	pagination.Pagination
}
