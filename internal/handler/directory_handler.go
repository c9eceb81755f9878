package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"projecthub/internal/service"
)

// DirectoryHandler 只读接口：搜索、里程碑、团队成员、首页汇总
type DirectoryHandler struct {
	search     *service.SearchService
	milestones *service.MilestoneService
	members    *service.MemberService
	dashboard  *service.DashboardService
	errs       ErrorMapper
}

func NewDirectoryHandler(
	search *service.SearchService,
	milestones *service.MilestoneService,
	members *service.MemberService,
	dashboard *service.DashboardService,
	errs ErrorMapper,
) *DirectoryHandler {
	return &DirectoryHandler{search: search, milestones: milestones, members: members, dashboard: dashboard, errs: errs}
}

// Search GET /api/search?q=
func (h *DirectoryHandler) Search(c *gin.Context) {
	result, err := h.search.Search(c.Request.Context(), principal(c), c.Query("q"))
	if err != nil {
		h.errs.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListMilestones GET /api/milestones
func (h *DirectoryHandler) ListMilestones(c *gin.Context) {
	milestones, err := h.milestones.List(c.Request.Context(), principal(c))
	if err != nil {
		h.errs.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, milestones)
}

// ListMembers GET /api/members
func (h *DirectoryHandler) ListMembers(c *gin.Context) {
	members, err := h.members.List(c.Request.Context(), principal(c))
	if err != nil {
		h.errs.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, members)
}

// Dashboard GET /api/dashboard
func (h *DirectoryHandler) Dashboard(c *gin.Context) {
	summary, err := h.dashboard.Summary(c.Request.Context(), principal(c))
	if err != nil {
		h.errs.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
