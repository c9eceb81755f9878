package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"projecthub/internal/model"
	"projecthub/internal/repository"
	"projecthub/pkg/util"
)

const (
	minPasswordLength = 8
	revokedKeyPrefix  = "auth:revoked:"
)

type AuthService struct {
	base
	rdb       *redis.Client
	jwtSecret string
	tokenTTL  time.Duration
}

func NewAuthService(store repository.Store, rdb *redis.Client, jwtSecret string, tokenTTL time.Duration, logger *zap.Logger) *AuthService {
	return &AuthService{
		base:      newBase(store, logger),
		rdb:       rdb,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
	}
}

// Register creates a new user. The first user becomes ADMIN.
func (s *AuthService) Register(ctx context.Context, email, password, name string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, model.NewValidationError("email", "invalid email address")
	}
	if len(password) < minPasswordLength {
		return nil, model.NewValidationError("password", fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}
	if len(password) > util.MaxPasswordBytes {
		return nil, model.NewValidationError("password", fmt.Sprintf("must be at most %d bytes", util.MaxPasswordBytes))
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = email[:strings.Index(email, "@")]
	}

	hash, err := util.HashPassword(password)
	if err != nil {
		return nil, err
	}

	count, err := s.store.Users().Count(ctx)
	if err != nil {
		return nil, err
	}
	role := model.RoleMember
	if count == 0 {
		role = model.RoleAdmin
	}

	now := s.now()
	u := &model.User{
		ID:           s.newID(),
		Name:         name,
		Email:        email,
		Role:         role,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Users().Create(ctx, u); err != nil {
		if errors.Is(err, model.ErrConflict) {
			return nil, model.NewValidationError("email", "email already exists")
		}
		return nil, err
	}

	s.log(ctx).Info("User registered", zap.String("user_id", u.ID), zap.String("role", string(u.Role)))
	return u, nil
}

// Login checks user credentials and returns JWT.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, *model.User, error) {
	u, err := s.store.Users().GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return "", nil, fmt.Errorf("invalid email or password: %w", model.ErrUnauthorized)
		}
		return "", nil, err
	}

	if !util.CheckPassword(password, u.PasswordHash) {
		return "", nil, fmt.Errorf("invalid email or password: %w", model.ErrUnauthorized)
	}

	token, _, err := util.GenerateJWT(u.ID, string(u.Role), s.jwtSecret, s.tokenTTL)
	if err != nil {
		return "", nil, err
	}
	return token, u, nil
}

// Authenticate 校验 token 并确认没有被注销
func (s *AuthService) Authenticate(ctx context.Context, token string) (*util.Claims, error) {
	if token == "" {
		return nil, model.ErrUnauthorized
	}
	claims, err := util.ParseJWT(token, s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrUnauthorized, err)
	}

	revoked, err := s.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, fmt.Errorf("token revoked: %w", model.ErrUnauthorized)
	}
	return claims, nil
}

// Logout 把 jti 写入 Redis，直到 token 自然过期
func (s *AuthService) Logout(ctx context.Context, claims *util.Claims) error {
	if claims == nil || claims.ID == "" {
		return model.ErrUnauthorized
	}

	ttl := time.Minute
	if claims.ExpiresAt != nil {
		ttl = time.Until(claims.ExpiresAt.Time)
	}
	if ttl <= 0 {
		return nil
	}

	if err := s.rdb.Set(ctx, revokedKeyPrefix+claims.ID, claims.UserID, ttl).Err(); err != nil {
		s.log(ctx).Error("Logout: failed to revoke token", zap.String("user_id", claims.UserID), zap.Error(err))
		return model.NewStorageError("revoke token", err)
	}
	s.log(ctx).Info("User logged out", zap.String("user_id", claims.UserID))
	return nil
}

func (s *AuthService) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	n, err := s.rdb.Exists(ctx, revokedKeyPrefix+jti).Result()
	if err != nil {
		return false, model.NewStorageError("check revoked token", err)
	}
	return n > 0, nil
}
