package httpserver

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"projecthub/internal/handler"
	"projecthub/pkg/logger"
	"projecthub/pkg/metrics"
	"projecthub/pkg/rbac"
	"projecthub/pkg/trace"
	"projecthub/pkg/util"
)

// Authenticator 校验 bearer token，由 service.AuthService 实现
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*util.Claims, error)
}

// TraceMiddleware 复用或生成 X-Trace-ID，并写回响应头
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, traceID := trace.Ensure(c.Request.Context(), c.GetHeader(trace.HeaderName))
		c.Request = c.Request.WithContext(ctx)
		c.Header(trace.HeaderName, traceID)
		c.Next()
	}
}

// RequestLogger 记录每个请求并上报延迟指标
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)
		metrics.RecordHTTPRequestDuration(c.Request.Method, route, strconv.Itoa(status), elapsed)

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", route),
			zap.Int("status", status),
			zap.Duration("latency", elapsed),
			zap.String("client_ip", c.ClientIP()),
		}
		if userID := c.GetString(handler.ContextUserID); userID != "" {
			fields = append(fields, zap.String("user_id", userID))
		}

		l := logger.WithTrace(c.Request.Context(), log)
		switch {
		case status >= http.StatusInternalServerError:
			l.Error("HTTP request", fields...)
		case status >= http.StatusBadRequest:
			l.Warn("HTTP request", fields...)
		default:
			l.Debug("HTTP request", fields...)
		}
	}
}

// AuthMiddleware 校验 token（含注销检查），把 principal 写入 context
func AuthMiddleware(auth Authenticator, errs handler.ErrorMapper) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := auth.Authenticate(c.Request.Context(), util.ExtractToken(c.Request))
		if err != nil {
			errs.Write(c, err)
			return
		}

		handler.SetPrincipal(c, claims)
		c.Next()
	}
}

// RequirePermission 要求当前角色具有指定权限
func RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(handler.ContextUserID)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		if err := rbac.CheckPermission(userID, c.GetString(handler.ContextRole), permission); err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Access denied"})
			return
		}

		c.Next()
	}
}
