package accesscontrol

import (
	"fmt"

	"payout-controlplane/pkg/auth"
	"payout-controlplane/pkg/config"
	"payout-controlplane/pkg/errutil"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && keyMatch2(r.obj, p.obj) && (r.act == p.act || p.act == "*")
`

// defaultPolicies: users reach /api/v1, admins additionally /admin.
var defaultPolicies = [][]string{
	{auth.RoleUser, "/api/v1/*", "*"},
	{auth.RoleAdmin, "/admin/*", "*"},
}

var Module = fx.Module("accesscontrol",
	fx.Provide(ProvideEnforcer),
)

// ProvideEnforcer loads model and policy files when both are configured and
// falls back to the built-in policy otherwise.
func ProvideEnforcer(cfg *config.Config) (*casbin.Enforcer, error) {
	ac := cfg.AccessControl
	if ac.Model != "" && ac.Policy != "" {
		e, err := casbin.NewEnforcer(ac.Model, ac.Policy)
		if err != nil {
			return nil, fmt.Errorf("load access control policy: %w", err)
		}
		zap.L().Info("access control policy loaded", zap.String("model", ac.Model), zap.String("policy", ac.Policy))
		return e, nil
	}
	return NewDefaultEnforcer()
}

func NewDefaultEnforcer() (*casbin.Enforcer, error) {
	m, err := model.NewModelFromString(defaultModel)
	if err != nil {
		return nil, fmt.Errorf("parse access control model: %w", err)
	}

	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create enforcer: %w", err)
	}

	for _, p := range defaultPolicies {
		if _, err := e.AddPolicy(p[0], p[1], p[2]); err != nil {
			return nil, fmt.Errorf("add policy: %w", err)
		}
	}
	if _, err := e.AddGroupingPolicy(auth.RoleAdmin, auth.RoleUser); err != nil {
		return nil, fmt.Errorf("add role inheritance: %w", err)
	}
	return e, nil
}

// Enforce checks the authenticated principal's role against the request
// path and method. It must run after auth.Middleware.
func Enforce(e *casbin.Enforcer) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := auth.Current(c)
		if !ok {
			_ = c.Error(errutil.Unauthorized("authentication required", nil))
			c.Abort()
			return
		}

		allowed, err := e.Enforce(p.Role, c.Request.URL.Path, c.Request.Method)
		if err != nil {
			_ = c.Error(errutil.Internal("access control failure", err))
			c.Abort()
			return
		}
		if !allowed {
			_ = c.Error(errutil.Forbidden("access denied", nil))
			c.Abort()
			return
		}
		c.Next()
	}
}
