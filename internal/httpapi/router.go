package httpapi

import (
	"net/http"

	"payout-controlplane/pkg/accesscontrol"
	"payout-controlplane/pkg/auth"
	"payout-controlplane/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// NewRouter builds the gin engine serving the public and admin APIs.
func NewRouter(h *Handler) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Tracing(), middleware.Channel(), middleware.Logger(), middleware.Error())

	r.GET("/healthz", h.health.Liveness)
	r.GET("/readyz", h.health.Readiness)

	public := r.Group("/api/v1")
	public.POST("/register", h.Register)
	public.POST("/login", h.Login)

	guard := []gin.HandlerFunc{auth.Middleware(h.issuer), accesscontrol.Enforce(h.enforcer)}

	api := r.Group("/api/v1", guard...)
	api.GET("/me", h.Me)
	api.GET("/journal", h.Journal)
	api.POST("/submissions", h.CreateSubmission)
	api.GET("/submissions", h.ListSubmissions)
	api.POST("/withdrawals", h.CreateWithdrawal)
	api.GET("/withdrawals", h.ListWithdrawals)
	api.GET("/payment-methods", h.PaymentMethods)
	api.GET("/mlm/stats", h.MLMStats)
	api.GET("/mlm/genealogy", h.Genealogy)
	api.GET("/notices", h.Notices)

	admin := r.Group("/admin", guard...)
	admin.GET("/submissions", h.AdminListSubmissions)
	admin.POST("/submissions/:id/approve", h.ApproveSubmission)
	admin.POST("/submissions/:id/reject", h.RejectSubmission)
	admin.GET("/withdrawals", h.AdminListWithdrawals)
	admin.POST("/withdrawals/:id/approve", h.ApproveWithdrawal)
	admin.POST("/withdrawals/:id/reject", h.RejectWithdrawal)
	admin.GET("/rates", h.ListRates)
	admin.PUT("/rates", h.SetRate)
	admin.POST("/rates/:category/toggle", h.ToggleCategory)
	admin.GET("/users/:id", h.AdminGetUser)
	admin.POST("/users/:id/manage", h.ManageUser)
	admin.POST("/users/:id/referral", h.RegisterReferral)
	admin.GET("/users/:id/journal/verify", h.VerifyJournal)
	admin.PUT("/payment-methods/:method", h.SetPaymentMethod)
	admin.PUT("/min-withdrawal", h.SetMinWithdrawal)
	admin.POST("/notices", h.CreateNotice)
	admin.DELETE("/notices/:id", h.DeactivateNotice)
	admin.GET("/stats", h.Stats)
	admin.GET("/reports", h.Reports)
	admin.GET("/top-earners", h.TopEarners)

	return r
}
