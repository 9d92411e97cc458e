package account

import (
	"payout-controlplane/services/ledger"

	"github.com/shopspring/decimal"
)

const MinPasswordLength = 6

type RegisterRequest struct {
	Username     string `json:"username" binding:"required"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	TelegramID   string `json:"telegram_id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Phone        string `json:"phone"`
	ReferralCode string `json:"referral_code"`
}

type RegisterResult struct {
	User        *ledger.User `json:"user"`
	ReferrerID  *string      `json:"referrer_id,omitempty"`
	BonusBooked bool         `json:"bonus_booked"`
}

type Action string

const (
	ActionBan           Action = "ban"
	ActionUnban         Action = "unban"
	ActionSetPremium    Action = "set_premium"
	ActionUnsetPremium  Action = "unset_premium"
	ActionResetPassword Action = "reset_password"
	ActionAdjustBalance Action = "adjust_balance"
)

type Operation string

const (
	OperationAdd      Operation = "add"
	OperationSubtract Operation = "subtract"
	OperationSet      Operation = "set"
)

type ManageRequest struct {
	UserID      string          `json:"-"`
	Action      Action          `json:"action" binding:"required"`
	Operation   Operation       `json:"operation"`
	Amount      decimal.Decimal `json:"amount"`
	NewPassword string          `json:"new_password"`
	Reason      string          `json:"reason"`
	AdminID     string          `json:"-"`
}
