package auth

import (
	"context"
	"strings"

	"payout-controlplane/pkg/errutil"

	"github.com/gin-gonic/gin"
)

type principalKey struct{}

const ginPrincipalKey = "auth.principal"

// Middleware requires a valid Bearer token and stores its Principal on the
// gin and request contexts.
func Middleware(issuer *Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
			_ = c.Error(errutil.Unauthorized("authorization header required", nil))
			c.Abort()
			return
		}

		p, err := issuer.Verify(strings.TrimSpace(parts[1]))
		if err != nil {
			_ = c.Error(errutil.Unauthorized("invalid or expired token", err))
			c.Abort()
			return
		}

		c.Set(ginPrincipalKey, *p)
		c.Request = c.Request.WithContext(WithPrincipal(c.Request.Context(), *p))
		c.Next()
	}
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// Current returns the principal set by Middleware.
func Current(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(ginPrincipalKey)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}
