package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"projecthub/internal/service"
)

type AuthHandler struct {
	svc    *service.AuthService
	errs   ErrorMapper
	logger *zap.Logger
}

func NewAuthHandler(svc *service.AuthService, errs ErrorMapper, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, errs: errs, logger: logger}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := bindJSON(c, &req); err != nil {
		h.errs.Write(c, err)
		return
	}

	u, err := h.svc.Register(c.Request.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		h.logger.Warn("Register failed", zap.String("client_ip", c.ClientIP()), zap.Error(err))
		h.errs.Write(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

// Login POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := bindJSON(c, &req); err != nil {
		h.errs.Write(c, err)
		return
	}

	token, u, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.Warn("Login failed", zap.String("client_ip", c.ClientIP()), zap.Error(err))
		h.errs.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user": u})
}

// Logout POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.svc.Logout(c.Request.Context(), claims(c)); err != nil {
		h.errs.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
