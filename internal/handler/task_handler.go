package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"projecthub/internal/model"
	"projecthub/internal/service"
)

type TaskHandler struct {
	svc  *service.TaskService
	errs ErrorMapper
}

func NewTaskHandler(svc *service.TaskService, errs ErrorMapper) *TaskHandler {
	return &TaskHandler{svc: svc, errs: errs}
}

// ListTasks GET /api/tasks?projectId=
func (h *TaskHandler) ListTasks(c *gin.Context) {
	filter := model.TaskFilter{ProjectID: c.Query("projectId")}
	tasks, err := h.svc.List(c.Request.Context(), principal(c), filter)
	if err != nil {
		h.errs.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

// CreateTask POST /api/tasks
func (h *TaskHandler) CreateTask(c *gin.Context) {
	var req taskRequest
	if err := bindJSON(c, &req); err != nil {
		h.errs.Write(c, err)
		return
	}
	in, err := req.input()
	if err != nil {
		h.errs.Write(c, err)
		return
	}

	task, err := h.svc.Create(c.Request.Context(), principal(c), in)
	if err != nil {
		h.errs.Write(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

// GetTask GET /api/tasks/:id
func (h *TaskHandler) GetTask(c *gin.Context) {
	task, err := h.svc.Get(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		h.errs.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// UpdateTask PUT|PATCH /api/tasks/:id，只更新请求体中出现的字段
func (h *TaskHandler) UpdateTask(c *gin.Context) {
	var req taskRequest
	if err := bindJSON(c, &req); err != nil {
		h.errs.Write(c, err)
		return
	}
	patch, err := req.patch()
	if err != nil {
		h.errs.Write(c, err)
		return
	}

	task, err := h.svc.Update(c.Request.Context(), principal(c), c.Param("id"), patch)
	if err != nil {
		h.errs.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// DeleteTask DELETE /api/tasks/:id
func (h *TaskHandler) DeleteTask(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), principal(c), c.Param("id")); err != nil {
		h.errs.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
