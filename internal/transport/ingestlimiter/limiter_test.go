package ingestlimiter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tinyolly/internal/store"
	apperrors "tinyolly/pkg/errors"
)

func TestAdmit_RejectsWhenStoreOverCapacity(t *testing.T) {
	l := New(1<<20, 100, func() store.Stats { return store.Stats{BytesUsed: 200} }, nil)
	_, err := l.Admit(context.Background(), 10)
	require.Error(t, err)
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.OutOfCapacity, appErr.Type)
}

func TestAdmit_RejectsOversizeRequest(t *testing.T) {
	l := New(100, 0, nil, nil)
	_, err := l.Admit(context.Background(), 200)
	require.Error(t, err)
}

func TestAdmit_RejectsWhenSemaphoreExhausted(t *testing.T) {
	l := New(100, 0, nil, nil)
	release, err := l.Admit(context.Background(), 100)
	require.NoError(t, err)

	_, err = l.Admit(context.Background(), 1)
	require.Error(t, err)

	release()
	_, err = l.Admit(context.Background(), 1)
	require.NoError(t, err)
}

func TestRetryAfter_GrowsWithConsecutiveRejections(t *testing.T) {
	l := New(10, 0, nil, nil)
	_, _ = l.Admit(context.Background(), 100) // rejects, oversize
	first := l.RetryAfter()
	_, _ = l.Admit(context.Background(), 100)
	second := l.RetryAfter()
	assert.Greater(t, second, first)
}
