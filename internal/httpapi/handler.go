package httpapi

import (
	"net/http"
	"strconv"

	"payout-controlplane/pkg/auth"
	"payout-controlplane/pkg/errutil"
	"payout-controlplane/pkg/health"
	"payout-controlplane/services/account"
	"payout-controlplane/services/ledger"
	"payout-controlplane/services/rate"
	"payout-controlplane/services/report"
	"payout-controlplane/services/setting"
	"payout-controlplane/services/submission"
	"payout-controlplane/services/withdrawal"

	"github.com/casbin/casbin/v2"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(
		NewHandler,
		NewRouter,
	),
)

type Handler struct {
	issuer   *auth.Issuer
	enforcer *casbin.Enforcer
	health   health.HealthService

	ledger      *ledger.Service
	accounts    *account.Service
	submissions *submission.Service
	withdrawals *withdrawal.Service
	rates       *rate.Service
	settings    *setting.Service
	reports     *report.Service
}

type Params struct {
	fx.In
	Issuer   *auth.Issuer
	Enforcer *casbin.Enforcer
	Health   health.HealthService

	Ledger      *ledger.Service
	Accounts    *account.Service
	Submissions *submission.Service
	Withdrawals *withdrawal.Service
	Rates       *rate.Service
	Settings    *setting.Service
	Reports     *report.Service
}

func NewHandler(p Params) *Handler {
	return &Handler{
		issuer:   p.Issuer,
		enforcer: p.Enforcer,
		health:   p.Health,

		ledger:      p.Ledger,
		accounts:    p.Accounts,
		submissions: p.Submissions,
		withdrawals: p.Withdrawals,
		rates:       p.Rates,
		settings:    p.Settings,
		reports:     p.Reports,
	}
}

func principal(c *gin.Context) auth.Principal {
	p, _ := auth.Current(c)
	return p
}

// bind decodes a JSON body into req. An empty body leaves req untouched.
func bind(c *gin.Context, req any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return false
	}
	return true
}

// bindRequired decodes a JSON body that must be present.
func bindRequired(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return false
	}
	return true
}

func bindQuery(c *gin.Context, req any) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid query", err))
		return false
	}
	return true
}

func queryInt(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		_ = c.Error(errutil.BadRequest(name+" must be an integer", err))
		return 0, false
	}
	return v, true
}

func fail(c *gin.Context, err error) {
	_ = c.Error(err)
}

func ok(c *gin.Context, body any) {
	c.JSON(http.StatusOK, body)
}

func created(c *gin.Context, body any) {
	c.JSON(http.StatusCreated, body)
}
