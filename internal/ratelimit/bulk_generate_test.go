package ratelimit

import (
	"context"
	"testing"

	"github.com/smallbiznis/rentledger/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterDisabledWithoutRedis(t *testing.T) {
	limiter, err := NewBulkGenerateLimiter(config.Config{})
	require.NoError(t, err)
	require.Nil(t, limiter)

	// A nil limiter admits everything.
	assert.False(t, limiter.Enabled())

	result, err := limiter.AllowCompany(context.Background(), "1")
	require.NoError(t, err)
	assert.True(t, result.Allowed)

	token, acquired, err := limiter.TryLockCompany(context.Background(), "1")
	require.NoError(t, err)
	assert.True(t, acquired)
	assert.Empty(t, token)

	assert.NoError(t, limiter.ReleaseCompany(context.Background(), "1", token))
}

func TestLimiterRejectsInvalidConfig(t *testing.T) {
	_, err := NewBulkGenerateLimiter(config.Config{
		RedisAddr:         "localhost:6379",
		BulkGenerateRate:  0,
		BulkGenerateBurst: 5,
	})
	assert.Error(t, err)

	_, err = NewBulkGenerateLimiter(config.Config{
		RedisAddr:         "localhost:6379",
		BulkGenerateRate:  1,
		BulkGenerateBurst: 0,
	})
	assert.Error(t, err)
}
