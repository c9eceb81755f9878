package util

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestJWT_RoundTrip(t *testing.T) {
	token, claims, err := GenerateJWT("user-1", "ADMIN", "secret", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, claims.ID)

	parsed, err := ParseJWT(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, "user-1", parsed.UserID)
	assert.Equal(t, "ADMIN", parsed.Role)
	assert.Equal(t, claims.ID, parsed.ID)
}

func TestJWT_Rejects(t *testing.T) {
	token, _, err := GenerateJWT("user-1", "MEMBER", "secret", time.Hour)
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		_, err := ParseJWT(token, "other")
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		claims := &Claims{
			UserID: "user-1",
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			},
		}
		expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
		require.NoError(t, err)
		_, err = ParseJWT(expired, "secret")
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := ParseJWT("not-a-token", "secret")
		assert.Error(t, err)
	})
}

func TestExtractToken(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	assert.Equal(t, "", ExtractToken(req))

	req.Header.Set("Authorization", "Bearer abc.def")
	assert.Equal(t, "abc.def", ExtractToken(req))

	req.Header.Set("Authorization", "Basic abc")
	assert.Equal(t, "", ExtractToken(req))
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	assert.True(t, CheckPassword("hunter2", hash))
	assert.False(t, CheckPassword("hunter3", hash))
	assert.False(t, CheckPassword("hunter2", "not-a-hash"))

	_, err = HashPassword(strings.Repeat("x", MaxPasswordBytes+1))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}

func TestDeduper(t *testing.T) {
	_, rdb := newRedis(t)
	d := NewDeduper(rdb, time.Minute, zap.NewNop())
	ctx := context.Background()

	assert.True(t, d.AcquireOnce(ctx, "notify", "evt-1"))
	assert.False(t, d.AcquireOnce(ctx, "notify", "evt-1"))
	assert.True(t, d.AcquireOnce(ctx, "other", "evt-1"))

	d.Release(ctx, "notify", "evt-1")
	assert.True(t, d.AcquireOnce(ctx, "notify", "evt-1"))
}

func TestDeduper_RedisDown(t *testing.T) {
	mr, rdb := newRedis(t)
	mr.Close()
	d := NewDeduper(rdb, time.Minute, zap.NewNop())
	assert.True(t, d.AcquireOnce(context.Background(), "notify", "evt-1"))
}

func TestRetryCounter(t *testing.T) {
	_, rdb := newRedis(t)
	rc := NewRetryCounter(rdb, time.Minute)
	ctx := context.Background()
	key := FormatRetryKey("notify", "evt-1")

	n, err := rc.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	for i := int64(1); i <= 3; i++ {
		n, err = rc.IncrementAndGet(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}

	require.NoError(t, rc.Reset(ctx, key))
	n, err = rc.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	assert.True(t, ShouldRetry(2, 3, true))
	assert.False(t, ShouldRetry(4, 3, true))
	assert.False(t, ShouldRetry(1, 3, false))
}
