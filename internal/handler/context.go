package handler

import (
	"github.com/gin-gonic/gin"

	"projecthub/internal/model"
	"projecthub/pkg/util"
)

// gin context keys set by the auth middleware
const (
	ContextUserID = "user_id"
	ContextRole   = "role"
	ContextClaims = "claims"
)

// SetPrincipal 把认证结果写入 gin context
func SetPrincipal(c *gin.Context, claims *util.Claims) {
	c.Set(ContextUserID, claims.UserID)
	c.Set(ContextRole, claims.Role)
	c.Set(ContextClaims, claims)
}

// principal 未认证时返回零值，service 会返回 ErrUnauthorized
func principal(c *gin.Context) model.Principal {
	return model.Principal{
		UserID: c.GetString(ContextUserID),
		Role:   model.Role(c.GetString(ContextRole)),
	}
}

func claims(c *gin.Context) *util.Claims {
	v, ok := c.Get(ContextClaims)
	if !ok {
		return nil
	}
	cl, _ := v.(*util.Claims)
	return cl
}
