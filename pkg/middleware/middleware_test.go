package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"payout-controlplane/pkg/errutil"
	"payout-controlplane/services/ledger"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
	gin.SetMode(gin.TestMode)
}

type errorBody struct {
	Error struct {
		Code    string           `json:"code"`
		Message string           `json:"message"`
		Details []errutil.Detail `json:"details"`
	} `json:"error"`
}

func serve(t *testing.T, handler gin.HandlerFunc) (*httptest.ResponseRecorder, errorBody) {
	t.Helper()
	r := gin.New()
	r.Use(Error())
	r.GET("/x", handler)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	var body errorBody
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func TestErrorRendersBaseError(t *testing.T) {
	w, body := serve(t, func(c *gin.Context) {
		_ = c.Error(errutil.ValidationFailed("amount too small", nil,
			errutil.WithDetails(errutil.Detail{Field: "amount", Message: "below minimum"})))
	})

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "validation_failed", body.Error.Code)
	require.Equal(t, "amount too small", body.Error.Message)
	require.Len(t, body.Error.Details, 1)
}

func TestErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{errutil.AlreadyProcessed("done", nil), http.StatusConflict},
		{errutil.InsufficientFunds("broke", nil), http.StatusUnprocessableEntity},
		{errutil.NotFound("missing", nil), http.StatusNotFound},
		{errutil.Forbidden("no", nil), http.StatusForbidden},
		{errutil.Persistence("db", errors.New("x")), http.StatusInternalServerError},
		{errors.New("plain failure"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		w, _ := serve(t, func(c *gin.Context) { _ = c.Error(tc.err) })
		require.Equal(t, tc.code, w.Code, tc.err.Error())
	}
}

func TestErrorHidesServerCause(t *testing.T) {
	w, body := serve(t, func(c *gin.Context) {
		_ = c.Error(errutil.Persistence("failed to save", errors.New("pq: connection refused")))
	})

	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, "failed to save", body.Error.Message)
}

func TestErrorLeavesWrittenResponse(t *testing.T) {
	w, _ := serve(t, func(c *gin.Context) {
		c.Status(http.StatusAccepted)
		c.Writer.WriteHeaderNow()
		_ = c.Error(errors.New("late"))
	})
	require.Equal(t, http.StatusAccepted, w.Code)
}

func TestChannel(t *testing.T) {
	cases := map[string]ledger.Channel{
		"":            ledger.ChannelAPI,
		"bot_123":     ledger.ChannelBot,
		"web_abc":     ledger.ChannelWebapp,
		"partner_xyz": ledger.ChannelAPI,
	}
	for key, want := range cases {
		r := gin.New()
		r.Use(Channel())
		var got ledger.Channel
		r.GET("/x", func(c *gin.Context) {
			got = GetChannel(c.Request.Context())
			require.True(t, FromChannel(c.Request.Context(), want))
		})

		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		if key != "" {
			req.Header.Set(APIKeyHeader, key)
		}
		r.ServeHTTP(httptest.NewRecorder(), req)
		require.Equal(t, want, got, key)
	}
}

func TestTracingRecordsServerSpan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	r := gin.New()
	r.Use(Tracing())
	var traced bool
	r.GET("/things/:id", func(c *gin.Context) {
		traced = trace.SpanFromContext(c.Request.Context()).SpanContext().IsValid()
		c.Status(http.StatusInternalServerError)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/things/42", nil))

	require.True(t, traced)
	spans := sr.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, "GET /things/:id", spans[0].Name())
	require.Equal(t, codes.Error, spans[0].Status().Code)
}
