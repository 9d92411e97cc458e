package report

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultGenealogyDepth = 3
	DefaultTopEarners     = 10
	MaxTopEarners         = 100
)

type UserCounts struct {
	Total   int64 `json:"total"`
	Active  int64 `json:"active"`
	Premium int64 `json:"premium"`
	Banned  int64 `json:"banned"`
}

type StatusCounts struct {
	Pending  int64 `json:"pending"`
	Approved int64 `json:"approved"`
	Rejected int64 `json:"rejected"`
}

func (c StatusCounts) Total() int64 {
	return c.Pending + c.Approved + c.Rejected
}

type Financials struct {
	TotalEarned        decimal.Decimal `json:"total_earned"`
	TotalWithdrawn     decimal.Decimal `json:"total_withdrawn"`
	OutstandingBalance decimal.Decimal `json:"outstanding_balance"`
	PendingWithdrawals decimal.Decimal `json:"pending_withdrawals"`
}

type SystemStats struct {
	Users       UserCounts   `json:"users"`
	Submissions StatusCounts `json:"submissions"`
	Withdrawals StatusCounts `json:"withdrawals"`
	Financials  Financials   `json:"financials"`
	GeneratedAt time.Time    `json:"generated_at"`
}

type RangeReport struct {
	Start              time.Time       `json:"start"`
	End                time.Time       `json:"end"`
	Submissions        int64           `json:"submissions"`
	DeclaredAccounts   int64           `json:"declared_accounts"`
	ApprovedAccounts   int64           `json:"approved_accounts"`
	Earnings           decimal.Decimal `json:"earnings"`
	WithdrawalRequests int64           `json:"withdrawal_requests"`
	WithdrawalAmount   decimal.Decimal `json:"withdrawal_amount"`
	NewUsers           int64           `json:"new_users"`
}

type LevelStats struct {
	Level    int             `json:"level"`
	Users    int             `json:"users"`
	Earnings decimal.Decimal `json:"earnings"`
}

type MLMStats struct {
	UserID           string                     `json:"user_id"`
	DirectReferrals  int64                      `json:"direct_referrals"`
	EarningsByType   map[string]decimal.Decimal `json:"earnings_by_type"`
	TotalCommission  decimal.Decimal            `json:"total_commission"`
	DownlineSize     int                        `json:"downline_size"`
	DownlineEarnings decimal.Decimal            `json:"downline_earnings"`
	Levels           []LevelStats               `json:"levels"`
}

// Node is one user of a referral tree.
type Node struct {
	ID          string          `json:"id"`
	Username    string          `json:"username"`
	TotalEarned decimal.Decimal `json:"total_earned"`
	MLMEarnings decimal.Decimal `json:"mlm_earnings"`
	Referrals   int64           `json:"referral_count"`
	Depth       int             `json:"depth"`
	JoinedAt    time.Time       `json:"joined_at"`
	Children    []*Node         `json:"children,omitempty"`
}

type Earner struct {
	ID             string          `json:"id"`
	Username       string          `json:"username"`
	MLMEarnings    decimal.Decimal `json:"mlm_earnings"`
	TotalEarned    decimal.Decimal `json:"total_earned"`
	TotalReferrals int             `json:"total_referrals"`
	TeamEarnings   decimal.Decimal `json:"team_earnings"`
}
