package accesscontrol

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"payout-controlplane/pkg/auth"
	"payout-controlplane/pkg/config"
	"payout-controlplane/pkg/middleware"
)

func TestDefaultPolicy(t *testing.T) {
	e, err := NewDefaultEnforcer()
	require.NoError(t, err)

	cases := []struct {
		role, path, method string
		allowed            bool
	}{
		{auth.RoleUser, "/api/v1/submissions", http.MethodPost, true},
		{auth.RoleUser, "/admin/stats", http.MethodGet, false},
		{auth.RoleUser, "/admin/users/1/manage", http.MethodPost, false},
		{auth.RoleAdmin, "/admin/users/1/manage", http.MethodPost, true},
		{auth.RoleAdmin, "/api/v1/me", http.MethodGet, true},
		{"", "/api/v1/me", http.MethodGet, false},
	}
	for _, tc := range cases {
		ok, err := e.Enforce(tc.role, tc.path, tc.method)
		require.NoError(t, err)
		require.Equal(t, tc.allowed, ok, "%s %s %s", tc.role, tc.method, tc.path)
	}
}

func TestProvideEnforcerDefaults(t *testing.T) {
	e, err := ProvideEnforcer(&config.Config{})
	require.NoError(t, err)

	ok, err := e.Enforce(auth.RoleAdmin, "/admin/stats", http.MethodGet)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEnforceMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	e, err := NewDefaultEnforcer()
	require.NoError(t, err)

	issuer, err := auth.NewIssuer("test-secret-key-with-enough-bytes", "", 0)
	require.NoError(t, err)

	r := gin.New()
	r.Use(middleware.Error())
	r.GET("/admin/stats", auth.Middleware(issuer), Enforce(e), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	call := func(role string) int {
		raw, err := issuer.Issue(auth.Principal{UserID: "1", Role: role})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
		req.Header.Set("Authorization", "Bearer "+raw)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	require.Equal(t, http.StatusNoContent, call(auth.RoleAdmin))
	require.Equal(t, http.StatusForbidden, call(auth.RoleUser))
}
