package httpapi

import (
	"payout-controlplane/pkg/auth"
	"payout-controlplane/pkg/db/pagination"
	"payout-controlplane/pkg/errutil"
	"payout-controlplane/pkg/middleware"
	"payout-controlplane/services/account"
	"payout-controlplane/services/ledger"
	"payout-controlplane/services/report"
	"payout-controlplane/services/setting"

	"github.com/gin-gonic/gin"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type tokenResponse struct {
	Token     string       `json:"token"`
	ExpiresIn int64        `json:"expires_in"`
	User      *ledger.User `json:"user"`
}

func roleOf(u *ledger.User) string {
	if u.IsAdmin {
		return auth.RoleAdmin
	}
	return auth.RoleUser
}

func (h *Handler) issue(c *gin.Context, u *ledger.User) (*tokenResponse, bool) {
	token, err := h.issuer.Issue(auth.Principal{UserID: u.ID, Username: u.Username, Role: roleOf(u)})
	if err != nil {
		fail(c, errutil.Internal("failed to issue token", err))
		return nil, false
	}
	return &tokenResponse{Token: token, ExpiresIn: int64(h.issuer.TTL().Seconds()), User: u}, true
}

func (h *Handler) Register(c *gin.Context) {
	var req account.RegisterRequest
	if !bindRequired(c, &req) {
		return
	}

	res, err := h.accounts.Register(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}

	tok, issued := h.issue(c, res.User)
	if !issued {
		return
	}
	created(c, gin.H{
		"token":        tok.Token,
		"expires_in":   tok.ExpiresIn,
		"user":         res.User,
		"bonus_booked": res.BonusBooked,
		"channel":      middleware.GetChannel(c.Request.Context()),
	})
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if !bindRequired(c, &req) {
		return
	}

	user, err := h.accounts.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		fail(c, err)
		return
	}

	if tok, issued := h.issue(c, user); issued {
		ok(c, tok)
	}
}

func (h *Handler) Me(c *gin.Context) {
	user, err := h.accounts.GetUser(c.Request.Context(), principal(c).UserID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, user)
}

func (h *Handler) Journal(c *gin.Context) {
	var p pagination.Pagination
	if !bindQuery(c, &p) {
		return
	}

	entries, info, err := h.ledger.ListEntries(c.Request.Context(), principal(c).UserID, p)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"entries": entries, "page_info": info})
}

func (h *Handler) PaymentMethods(c *gin.Context) {
	ok(c, gin.H{
		"methods":        h.settings.ActivePaymentMethods(c.Request.Context()),
		"min_withdrawal": h.withdrawals.Minimum(c.Request.Context()),
	})
}

func (h *Handler) MLMStats(c *gin.Context) {
	stats, err := h.reports.UserMLMStats(c.Request.Context(), principal(c).UserID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, stats)
}

func (h *Handler) Genealogy(c *gin.Context) {
	depth, valid := queryInt(c, "depth", report.DefaultGenealogyDepth)
	if !valid {
		return
	}

	tree, err := h.reports.Genealogy(c.Request.Context(), principal(c).UserID, depth)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, tree)
}

func audienceOf(u *ledger.User) string {
	switch {
	case u.IsAdmin:
		return setting.AudienceAdmins
	case u.IsPremium:
		return setting.AudiencePremium
	default:
		return setting.AudienceUsers
	}
}

func (h *Handler) Notices(c *gin.Context) {
	ctx := c.Request.Context()
	user, err := h.accounts.GetUser(ctx, principal(c).UserID)
	if err != nil {
		fail(c, err)
		return
	}

	notices, err := h.settings.ActiveNotices(ctx, audienceOf(user))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"notices": notices})
}
