package security

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_AllowsUnderLimit(t *testing.T) {
	db, redisMock := redismock.NewClientMock()
	limiter := NewRateLimiter(db)
	ctx := context.Background()

	redisMock.ExpectIncr("ratelimit:orders:user:u1").SetVal(1)
	redisMock.ExpectExpire("ratelimit:orders:user:u1", time.Minute).SetVal(true)

	assert.True(t, limiter.allow(ctx, "ratelimit:orders:user:u1", 30, time.Minute))
	require.NoError(t, redisMock.ExpectationsWereMet())
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	db, redisMock := redismock.NewClientMock()
	limiter := NewRateLimiter(db)
	ctx := context.Background()

	redisMock.ExpectIncr("ratelimit:orders:user:u1").SetVal(31)

	assert.False(t, limiter.allow(ctx, "ratelimit:orders:user:u1", 30, time.Minute))
	require.NoError(t, redisMock.ExpectationsWereMet())
}

func TestRateLimiter_FailsOpenOnRedisError(t *testing.T) {
	db, redisMock := redismock.NewClientMock()
	limiter := NewRateLimiter(db)
	ctx := context.Background()

	redisMock.ExpectIncr("ratelimit:webhook:ip:10.0.0.1").SetErr(context.DeadlineExceeded)

	assert.True(t, limiter.allow(ctx, "ratelimit:webhook:ip:10.0.0.1", 120, time.Minute))
}
