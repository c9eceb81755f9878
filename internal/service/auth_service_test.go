package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"projecthub/internal/model"
	"projecthub/internal/repository/memory"
	"projecthub/pkg/util"
)

func newAuthService(t *testing.T) (*AuthService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewAuthService(memory.NewStore(), rdb, "test-secret", time.Hour, zap.NewNop()), mr
}

func TestAuthService_Register(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()

	first, err := svc.Register(ctx, "Admin@Example.com", "password1", "Admin")
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, first.Role)
	assert.Equal(t, "admin@example.com", first.Email)
	assert.NotEqual(t, "password1", first.PasswordHash)

	second, err := svc.Register(ctx, "dev@example.com", "password2", "")
	require.NoError(t, err)
	assert.Equal(t, model.RoleMember, second.Role)
	assert.Equal(t, "dev", second.Name)

	_, err = svc.Register(ctx, "ADMIN@example.com", "password3", "dup")
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = svc.Register(ctx, "not-an-email", "password4", "x")
	assert.ErrorIs(t, err, model.ErrValidation)
	_, err = svc.Register(ctx, "short@example.com", "123", "x")
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = svc.Register(ctx, "long@example.com", strings.Repeat("p", util.MaxPasswordBytes+1), "x")
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "password", verr.Field)
}

func TestAuthService_LoginLogout(t *testing.T) {
	svc, mr := newAuthService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, "dev@example.com", "password1", "Dev")
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, "dev@example.com", "wrong-password")
	assert.ErrorIs(t, err, model.ErrUnauthorized)
	_, _, err = svc.Login(ctx, "nobody@example.com", "password1")
	assert.ErrorIs(t, err, model.ErrUnauthorized)

	token, user, err := svc.Login(ctx, "dev@example.com", "password1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, user.ID)

	claims, err := svc.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)
	assert.Equal(t, string(model.RoleAdmin), claims.Role)

	require.NoError(t, svc.Logout(ctx, claims))
	assert.True(t, mr.Exists(revokedKeyPrefix+claims.ID))
	ttl := mr.TTL(revokedKeyPrefix + claims.ID)
	assert.True(t, ttl > 0 && ttl <= time.Hour)

	_, err = svc.Authenticate(ctx, token)
	assert.ErrorIs(t, err, model.ErrUnauthorized)
}

func TestAuthService_Authenticate(t *testing.T) {
	svc, mr := newAuthService(t)
	ctx := context.Background()

	_, err := svc.Authenticate(ctx, "")
	assert.ErrorIs(t, err, model.ErrUnauthorized)
	_, err = svc.Authenticate(ctx, "garbage")
	assert.ErrorIs(t, err, model.ErrUnauthorized)

	foreign, _, err := util.GenerateJWT("user-1", "MEMBER", "other-secret", time.Hour)
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, foreign)
	assert.ErrorIs(t, err, model.ErrUnauthorized)

	token, _, err := util.GenerateJWT("user-1", "MEMBER", "test-secret", time.Hour)
	require.NoError(t, err)
	mr.Close()
	_, err = svc.Authenticate(ctx, token)
	assert.ErrorIs(t, err, model.ErrStorage, "redis outage is a storage failure, not a rejection")
}
