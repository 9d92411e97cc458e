package errutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	require.Equal(t, CoreStatus(""), KindOf(nil))
	require.Equal(t, StatusUnknown, KindOf(errors.New("boom")))
	require.Equal(t, StatusNotFound, KindOf(NotFound("missing", nil)))

	wrapped := fmt.Errorf("load: %w", InsufficientFunds("low balance", nil))
	require.True(t, Is(wrapped, StatusInsufficientFunds))
}

func TestWrapKeepsBaseError(t *testing.T) {
	orig := AlreadyProcessed("done", nil)
	require.Equal(t, orig, Wrap("failed", orig))
	require.NoError(t, Wrap("failed", nil))

	cause := errors.New("disk full")
	err := Wrap("failed to save", cause)
	require.True(t, Is(err, StatusPersistence))
	require.ErrorIs(t, err, cause)
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		code CoreStatus
		want int
	}{
		{StatusValidationFailed, http.StatusBadRequest},
		{StatusUnauthorized, http.StatusUnauthorized},
		{StatusForbidden, http.StatusForbidden},
		{StatusNotFound, http.StatusNotFound},
		{StatusAlreadyProcessed, http.StatusConflict},
		{StatusInsufficientFunds, http.StatusUnprocessableEntity},
		{StatusPersistence, http.StatusInternalServerError},
		{StatusUnknown, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, tc.code.HTTPStatus(), tc.code.String())
	}
}

func TestErrorMessages(t *testing.T) {
	err := ValidationFailed("bad amount", nil, WithDetails(Detail{Field: "amount", Message: "required"}))
	require.Equal(t, "[validation_failed] bad amount", err.Error())

	var be BaseError
	require.True(t, errors.As(err, &be))
	require.Len(t, be.Details, 1)
	require.Contains(t, be.URL(), "error_code=validation_failed")

	err = Persistence("failed to save", errors.New("timeout"))
	require.Equal(t, "[persistence_error] failed to save: timeout", err.Error())
}
