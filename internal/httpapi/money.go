package httpapi

import (
	"payout-controlplane/pkg/middleware"
	"payout-controlplane/services/submission"
	"payout-controlplane/services/withdrawal"

	"github.com/gin-gonic/gin"
)

func (h *Handler) CreateSubmission(c *gin.Context) {
	var req submission.CreateRequest
	if !bindRequired(c, &req) {
		return
	}
	req.UserID = principal(c).UserID
	req.Channel = middleware.GetChannel(c.Request.Context())

	sub, err := h.submissions.Create(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, sub)
}

func (h *Handler) ListSubmissions(c *gin.Context) {
	var req submission.ListRequest
	if !bindQuery(c, &req) {
		return
	}
	req.UserID = principal(c).UserID
	h.listSubmissions(c, req)
}

func (h *Handler) listSubmissions(c *gin.Context, req submission.ListRequest) {
	items, info, err := h.submissions.List(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"submissions": items, "page_info": info})
}

func (h *Handler) CreateWithdrawal(c *gin.Context) {
	var req withdrawal.CreateRequest
	if !bindRequired(c, &req) {
		return
	}
	req.UserID = principal(c).UserID

	w, err := h.withdrawals.Create(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, w)
}

func (h *Handler) ListWithdrawals(c *gin.Context) {
	var req withdrawal.ListRequest
	if !bindQuery(c, &req) {
		return
	}
	req.UserID = principal(c).UserID
	h.listWithdrawals(c, req)
}

func (h *Handler) listWithdrawals(c *gin.Context, req withdrawal.ListRequest) {
	items, info, err := h.withdrawals.List(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"withdrawals": items, "page_info": info})
}
