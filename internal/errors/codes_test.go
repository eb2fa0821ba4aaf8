package errors

import (
	"context"
	"net/http"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError(t *testing.T) {
	cause := pkgerrors.New("disk full")
	err := StorageFailure("failed to save attendance", cause)

	assert.Equal(t, "[STORAGE_FAILURE] failed to save attendance: disk full", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "[INVALID_ARGUMENT] bad", InvalidArgument("bad").Error())

	err.WithContext("key", "@etlabplus_attendance")
	assert.Equal(t, "@etlabplus_attendance", err.Context["key"])
}

func TestIsCodeThroughWrapping(t *testing.T) {
	wrapped := pkgerrors.Wrap(Unauthorized("token rejected"), "restore session")

	assert.True(t, IsCode(wrapped, ErrCodeUnauthorized))
	assert.False(t, IsCode(wrapped, ErrCodeTimeout))
	assert.Equal(t, ErrCodeUnauthorized, GetCodeFromError(wrapped, ErrCodeStorageFailure))
	assert.Equal(t, ErrCodeStorageFailure, GetCodeFromError(pkgerrors.New("x"), ErrCodeStorageFailure))
}

func TestFromContext(t *testing.T) {
	canceled := FromContext(context.Canceled)
	require.NotNil(t, canceled)
	assert.Equal(t, ErrCodeContextCanceled, canceled.Code)

	timeout := FromContext(pkgerrors.Wrap(context.DeadlineExceeded, "fetch attendance"))
	require.NotNil(t, timeout)
	assert.Equal(t, ErrCodeTimeout, timeout.Code)

	assert.Nil(t, FromContext(pkgerrors.New("boom")))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err    *AppError
		status int
	}{
		{InvalidArgument("x"), http.StatusBadRequest},
		{InvalidDateRange("x"), http.StatusBadRequest},
		{Unauthorized("x"), http.StatusUnauthorized},
		{NotFound("x"), http.StatusNotFound},
		{Timeout("x", nil), http.StatusGatewayTimeout},
		{ServiceUnavailable("x", nil), http.StatusServiceUnavailable},
		{ParseFailure("x", nil), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.err.Code), func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.HTTPStatus())
		})
	}
}
