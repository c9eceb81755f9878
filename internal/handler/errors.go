package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"projecthub/internal/model"
	"projecthub/pkg/logger"
)

// ErrorMapper 把领域错误映射成 HTTP 响应
type ErrorMapper struct {
	// ConcealForbidden 为 true 时实体级 403 统一报告为 404
	ConcealForbidden bool
	Logger           *zap.Logger
}

func (m ErrorMapper) Status(err error) (int, string) {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, verr.Error()
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, model.ErrUnauthorized):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, model.ErrPermissionDenied):
		if m.ConcealForbidden {
			return http.StatusNotFound, "Not found"
		}
		return http.StatusForbidden, "Access denied"
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, model.ErrConflict):
		return http.StatusConflict, "Conflict"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// Write 写入 {"error": msg}；校验错误额外带 field
func (m ErrorMapper) Write(c *gin.Context, err error) {
	status, msg := m.Status(err)
	if status >= http.StatusInternalServerError && m.Logger != nil {
		logger.WithTrace(c.Request.Context(), m.Logger).Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}

	body := gin.H{"error": msg}
	var verr *model.ValidationError
	if errors.As(err, &verr) && verr.Field != "" {
		body["field"] = verr.Field
	}
	c.AbortWithStatusJSON(status, body)
}
