package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExecutionErrorClassification(t *testing.T) {
	readErr := errors.New("short read")
	err := ExecutionError("color", readErr)
	assert.ErrorIs(t, err, ErrExecution)
	assert.ErrorIs(t, err, readErr)
	assert.NotErrorIs(t, err, ErrInterrupted)
	assert.Contains(t, err.Error(), "color")

	err = ExecutionError("color", fmt.Errorf("waiting: %w", context.Canceled))
	assert.ErrorIs(t, err, ErrInterrupted)
	assert.ErrorIs(t, err, ErrExecution)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Nil(t, ExecutionError("color", nil))

	input := InputError("tags", "sort %q", "bogus")
	err = ExecutionError("tags", fmt.Errorf("wrapped: %w", input))
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.NotErrorIs(t, err, ErrExecution)
}

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{InputError("f", "bad"), http.StatusBadRequest},
		{ExecutionError("f", errors.New("x")), http.StatusInternalServerError},
		{ExecutionError("f", context.DeadlineExceeded), http.StatusServiceUnavailable},
		{fmt.Errorf("shard 2: %w", ErrShardUnavailable), http.StatusServiceUnavailable},
		{ErrNotFound, http.StatusNotFound},
		{New(ErrInternal, http.StatusTeapot, "custom"), http.StatusTeapot},
		{errors.New("anything"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatusCode(tt.err), tt.err.Error())
	}
}
