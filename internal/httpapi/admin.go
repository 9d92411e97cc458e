package httpapi

import (
	"context"
	"time"

	"payout-controlplane/pkg/errutil"
	"payout-controlplane/services/account"
	"payout-controlplane/services/ledger"
	"payout-controlplane/services/report"
	"payout-controlplane/services/setting"
	"payout-controlplane/services/submission"
	"payout-controlplane/services/withdrawal"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const (
	dateLayout          = "2006-01-02"
	defaultReportWindow = 30
)

func (h *Handler) AdminListSubmissions(c *gin.Context) {
	var req submission.ListRequest
	if !bindQuery(c, &req) {
		return
	}
	req.UserID = c.Query("user_id")
	h.listSubmissions(c, req)
}

func (h *Handler) ApproveSubmission(c *gin.Context) {
	var req submission.ApproveRequest
	if !bind(c, &req) {
		return
	}
	req.ID = c.Param("id")
	req.AdminID = principal(c).UserID

	res, err := h.submissions.Approve(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, res)
}

func (h *Handler) RejectSubmission(c *gin.Context) {
	var req submission.RejectRequest
	if !bind(c, &req) {
		return
	}
	req.ID = c.Param("id")
	req.AdminID = principal(c).UserID

	sub, err := h.submissions.Reject(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, sub)
}

func (h *Handler) AdminListWithdrawals(c *gin.Context) {
	var req withdrawal.ListRequest
	if !bindQuery(c, &req) {
		return
	}
	req.UserID = c.Query("user_id")
	h.listWithdrawals(c, req)
}

func (h *Handler) decideWithdrawal(c *gin.Context, decide func(context.Context, withdrawal.DecisionRequest) (*ledger.Withdrawal, error)) {
	var req withdrawal.DecisionRequest
	if !bind(c, &req) {
		return
	}
	req.ID = c.Param("id")
	req.AdminID = principal(c).UserID

	w, err := decide(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, w)
}

func (h *Handler) ApproveWithdrawal(c *gin.Context) {
	h.decideWithdrawal(c, h.withdrawals.Approve)
}

func (h *Handler) RejectWithdrawal(c *gin.Context) {
	h.decideWithdrawal(c, h.withdrawals.Reject)
}

func (h *Handler) ListRates(c *gin.Context) {
	rates, err := h.rates.ListRates(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"rates": rates})
}

type setRateRequest struct {
	Category    string          `json:"category" binding:"required"`
	Rate        decimal.Decimal `json:"rate"`
	Subcategory string          `json:"subcategory"`
}

func (h *Handler) SetRate(c *gin.Context) {
	var req setRateRequest
	if !bindRequired(c, &req) {
		return
	}

	row, err := h.rates.SetRate(c.Request.Context(), req.Category, req.Rate, req.Subcategory)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, row)
}

type toggleRequest struct {
	Active *bool `json:"active" binding:"required"`
}

func (h *Handler) ToggleCategory(c *gin.Context) {
	var req toggleRequest
	if !bindRequired(c, &req) {
		return
	}

	row, err := h.rates.ToggleCategory(c.Request.Context(), c.Param("category"), *req.Active)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, row)
}

func (h *Handler) AdminGetUser(c *gin.Context) {
	ctx := c.Request.Context()
	user, err := h.accounts.GetUser(ctx, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}

	stats, err := h.reports.UserMLMStats(ctx, user.ID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"user": user, "mlm": stats})
}

func (h *Handler) ManageUser(c *gin.Context) {
	var req account.ManageRequest
	if !bindRequired(c, &req) {
		return
	}
	req.UserID = c.Param("id")
	req.AdminID = principal(c).UserID

	user, err := h.accounts.ManageUser(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, user)
}

type referralRequest struct {
	ReferrerID string `json:"referrer_id" binding:"required"`
}

func (h *Handler) RegisterReferral(c *gin.Context) {
	var req referralRequest
	if !bindRequired(c, &req) {
		return
	}

	event, err := h.accounts.RegisterReferral(c.Request.Context(), req.ReferrerID, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	created(c, event)
}

func (h *Handler) VerifyJournal(c *gin.Context) {
	userID := c.Param("id")
	if _, err := h.accounts.GetUser(c.Request.Context(), userID); err != nil {
		fail(c, err)
		return
	}

	valid, err := h.ledger.VerifyChain(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"user_id": userID, "valid": valid})
}

func (h *Handler) SetPaymentMethod(c *gin.Context) {
	var req toggleRequest
	if !bindRequired(c, &req) {
		return
	}

	m, err := h.settings.SetPaymentMethod(c.Request.Context(), c.Param("method"), *req.Active)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, m)
}

type minimumRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (h *Handler) SetMinWithdrawal(c *gin.Context) {
	var req minimumRequest
	if !bindRequired(c, &req) {
		return
	}

	amount, err := h.withdrawals.SetMinimum(c.Request.Context(), req.Amount)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"min_withdrawal": amount})
}

func (h *Handler) CreateNotice(c *gin.Context) {
	var req setting.CreateNoticeRequest
	if !bindRequired(c, &req) {
		return
	}
	req.CreatedBy = principal(c).UserID

	notice, err := h.settings.CreateNotice(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, notice)
}

func (h *Handler) DeactivateNotice(c *gin.Context) {
	if err := h.settings.DeactivateNotice(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"id": c.Param("id"), "active": false})
}

func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.reports.SystemStats(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, stats)
}

// Reports covers start_date through end_date inclusive, the last 30 days
// when no range is given.
func (h *Handler) Reports(c *gin.Context) {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	start, valid := queryDate(c, "start_date", today.AddDate(0, 0, -defaultReportWindow))
	if !valid {
		return
	}
	end, valid := queryDate(c, "end_date", today)
	if !valid {
		return
	}

	rep, err := h.reports.RangeReport(c.Request.Context(), start, end.AddDate(0, 0, 1))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, rep)
}

func queryDate(c *gin.Context, name string, def time.Time) (time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		_ = c.Error(errutil.BadRequest(name+" must be YYYY-MM-DD", err))
		return time.Time{}, false
	}
	return t, true
}

func (h *Handler) TopEarners(c *gin.Context) {
	limit, valid := queryInt(c, "limit", report.DefaultTopEarners)
	if !valid {
		return
	}

	earners, err := h.reports.TopEarners(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"earners": earners})
}
