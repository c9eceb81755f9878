package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"projecthub/internal/model"
)

const dateOnly = "2006-01-02"

// bindJSON 解析请求体，格式错误统一为 ValidationError
func bindJSON(c *gin.Context, out any) error {
	if err := c.ShouldBindJSON(out); err != nil {
		return model.NewValidationError("", "invalid request body: "+err.Error())
	}
	return nil
}

// parseDate 接受 RFC 3339 或 YYYY-MM-DD
func parseDate(field, s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(dateOnly, s); err == nil {
		return t, nil
	}
	return time.Time{}, model.NewValidationError(field, "invalid date, expected RFC 3339 or YYYY-MM-DD")
}

// dateOptional 把请求里的日期字符串转成三态；null 和 "" 都表示清空
func dateOptional(field string, o model.Optional[string]) (model.Optional[time.Time], error) {
	if !o.Set {
		return model.Optional[time.Time]{}, nil
	}
	if o.Null || o.Value == "" {
		return model.Null[time.Time](), nil
	}
	t, err := parseDate(field, o.Value)
	if err != nil {
		return model.Optional[time.Time]{}, err
	}
	return model.Some(t), nil
}

// nullableID 把 "" 视为 null
func nullableID(o model.Optional[string]) model.Optional[string] {
	if o.HasValue() && o.Value == "" {
		return model.Null[string]()
	}
	return o
}

func valuePtr[T any](o model.Optional[T]) *T {
	if !o.HasValue() {
		return nil
	}
	v := o.Value
	return &v
}

func datePtr(field string, o model.Optional[string]) (*time.Time, error) {
	d, err := dateOptional(field, o)
	if err != nil {
		return nil, err
	}
	return valuePtr(d), nil
}

// projectRequest 同时用于创建和局部更新
type projectRequest struct {
	Name        model.Optional[string]              `json:"name"`
	Description model.Optional[string]              `json:"description"`
	Status      model.Optional[model.ProjectStatus] `json:"status"`
	StartDate   model.Optional[string]              `json:"startDate"`
	EndDate     model.Optional[string]              `json:"endDate"`
	Progress    model.Optional[int]                 `json:"progress"`
	OwnerID     model.Optional[string]              `json:"ownerId"`
}

func (r projectRequest) input() (model.ProjectInput, error) {
	start, err := datePtr("startDate", r.StartDate)
	if err != nil {
		return model.ProjectInput{}, err
	}
	end, err := datePtr("endDate", r.EndDate)
	if err != nil {
		return model.ProjectInput{}, err
	}
	return model.ProjectInput{
		Name:        r.Name.Value,
		Description: valuePtr(r.Description),
		Status:      valuePtr(r.Status),
		StartDate:   start,
		EndDate:     end,
	}, nil
}

func (r projectRequest) patch() (model.ProjectPatch, error) {
	start, err := dateOptional("startDate", r.StartDate)
	if err != nil {
		return model.ProjectPatch{}, err
	}
	end, err := dateOptional("endDate", r.EndDate)
	if err != nil {
		return model.ProjectPatch{}, err
	}
	return model.ProjectPatch{
		Name:        r.Name,
		Description: r.Description,
		Status:      r.Status,
		StartDate:   start,
		EndDate:     end,
		Progress:    r.Progress,
		OwnerID:     r.OwnerID,
	}, nil
}

type taskRequest struct {
	Title       model.Optional[string]           `json:"title"`
	Description model.Optional[string]           `json:"description"`
	Status      model.Optional[model.TaskStatus] `json:"status"`
	Priority    model.Optional[model.Priority]   `json:"priority"`
	StartDate   model.Optional[string]           `json:"startDate"`
	DueDate     model.Optional[string]           `json:"dueDate"`
	Progress    model.Optional[int]              `json:"progress"`
	ProjectID   model.Optional[string]           `json:"projectId"`
	AssigneeID  model.Optional[string]           `json:"assigneeId"`
	CreatorID   model.Optional[string]           `json:"creatorId"`
}

func (r taskRequest) input() (model.TaskInput, error) {
	start, err := datePtr("startDate", r.StartDate)
	if err != nil {
		return model.TaskInput{}, err
	}
	due, err := datePtr("dueDate", r.DueDate)
	if err != nil {
		return model.TaskInput{}, err
	}
	return model.TaskInput{
		Title:       r.Title.Value,
		ProjectID:   r.ProjectID.Value,
		Description: valuePtr(r.Description),
		AssigneeID:  valuePtr(nullableID(r.AssigneeID)),
		StartDate:   start,
		DueDate:     due,
		Priority:    valuePtr(r.Priority),
		Status:      valuePtr(r.Status),
	}, nil
}

func (r taskRequest) patch() (model.TaskPatch, error) {
	start, err := dateOptional("startDate", r.StartDate)
	if err != nil {
		return model.TaskPatch{}, err
	}
	due, err := dateOptional("dueDate", r.DueDate)
	if err != nil {
		return model.TaskPatch{}, err
	}
	return model.TaskPatch{
		Title:       r.Title,
		Description: r.Description,
		Status:      r.Status,
		Priority:    r.Priority,
		StartDate:   start,
		DueDate:     due,
		Progress:    r.Progress,
		AssigneeID:  nullableID(r.AssigneeID),
		ProjectID:   r.ProjectID,
		CreatorID:   r.CreatorID,
	}, nil
}
