package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"projecthub/internal/service"
)

type ProjectHandler struct {
	svc  *service.ProjectService
	errs ErrorMapper
}

func NewProjectHandler(svc *service.ProjectService, errs ErrorMapper) *ProjectHandler {
	return &ProjectHandler{svc: svc, errs: errs}
}

// ListProjects GET /api/projects
func (h *ProjectHandler) ListProjects(c *gin.Context) {
	projects, err := h.svc.List(c.Request.Context(), principal(c))
	if err != nil {
		h.errs.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, projects)
}

// CreateProject POST /api/projects
func (h *ProjectHandler) CreateProject(c *gin.Context) {
	var req projectRequest
	if err := bindJSON(c, &req); err != nil {
		h.errs.Write(c, err)
		return
	}
	in, err := req.input()
	if err != nil {
		h.errs.Write(c, err)
		return
	}

	project, err := h.svc.Create(c.Request.Context(), principal(c), in)
	if err != nil {
		h.errs.Write(c, err)
		return
	}
	c.JSON(http.StatusCreated, project)
}

// GetProject GET /api/projects/:id
func (h *ProjectHandler) GetProject(c *gin.Context) {
	detail, err := h.svc.Get(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		h.errs.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// UpdateProject PUT|PATCH /api/projects/:id
func (h *ProjectHandler) UpdateProject(c *gin.Context) {
	var req projectRequest
	if err := bindJSON(c, &req); err != nil {
		h.errs.Write(c, err)
		return
	}
	patch, err := req.patch()
	if err != nil {
		h.errs.Write(c, err)
		return
	}

	project, err := h.svc.Update(c.Request.Context(), principal(c), c.Param("id"), patch)
	if err != nil {
		h.errs.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

// DeleteProject DELETE /api/projects/:id
func (h *ProjectHandler) DeleteProject(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), principal(c), c.Param("id")); err != nil {
		h.errs.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type addMemberRequest struct {
	UserID string `json:"userId"`
}

// AddMember POST /api/projects/:id/members
func (h *ProjectHandler) AddMember(c *gin.Context) {
	var req addMemberRequest
	if err := bindJSON(c, &req); err != nil {
		h.errs.Write(c, err)
		return
	}

	project, err := h.svc.AddMember(c.Request.Context(), principal(c), c.Param("id"), req.UserID)
	if err != nil {
		h.errs.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

// RemoveMember DELETE /api/projects/:id/members/:userId
func (h *ProjectHandler) RemoveMember(c *gin.Context) {
	err := h.svc.RemoveMember(c.Request.Context(), principal(c), c.Param("id"), c.Param("userId"))
	if err != nil {
		h.errs.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Timeline GET /api/timeline
func (h *ProjectHandler) Timeline(c *gin.Context) {
	rows, err := h.svc.Timeline(c.Request.Context(), principal(c))
	if err != nil {
		h.errs.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}
