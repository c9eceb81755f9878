package model

import "time"

type TaskStatus string

const (
	TaskTodo       TaskStatus = "TODO"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskInReview   TaskStatus = "IN_REVIEW"
	TaskCompleted  TaskStatus = "COMPLETED"
)

// TaskStatuses 是看板的列顺序
var TaskStatuses = []TaskStatus{TaskTodo, TaskInProgress, TaskInReview, TaskCompleted}

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskTodo, TaskInProgress, TaskInReview, TaskCompleted:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	Status      TaskStatus `json:"status"`
	Priority    Priority   `json:"priority"`
	StartDate   *time.Time `json:"startDate"`
	DueDate     *time.Time `json:"dueDate"`
	Progress    int        `json:"progress"`
	ProjectID   string     `json:"projectId"`
	AssigneeID  *string    `json:"assigneeId"`
	CreatorID   string     `json:"creatorId"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`

	Project  *ProjectRef  `json:"project,omitempty"`
	Assignee *UserSummary `json:"assignee,omitempty"`
	Creator  *UserSummary `json:"creator,omitempty"`
}

// IsAssignee 判断 userID 是否为当前负责人
func (t *Task) IsAssignee(userID string) bool {
	return t.AssigneeID != nil && *t.AssigneeID == userID
}

type TaskInput struct {
	Title       string      `json:"title"`
	ProjectID   string      `json:"projectId"`
	Description *string     `json:"description,omitempty"`
	AssigneeID  *string     `json:"assigneeId,omitempty"`
	StartDate   *time.Time  `json:"startDate,omitempty"`
	DueDate     *time.Time  `json:"dueDate,omitempty"`
	Priority    *Priority   `json:"priority,omitempty"`
	Status      *TaskStatus `json:"status,omitempty"`
}

// TaskPatch 每个字段都是三态；ProjectID / CreatorID 只用于拒绝修改不可变字段
type TaskPatch struct {
	Title       Optional[string]     `json:"title,omitzero"`
	Description Optional[string]     `json:"description,omitzero"`
	Status      Optional[TaskStatus] `json:"status,omitzero"`
	Priority    Optional[Priority]   `json:"priority,omitzero"`
	StartDate   Optional[time.Time]  `json:"startDate,omitzero"`
	DueDate     Optional[time.Time]  `json:"dueDate,omitzero"`
	Progress    Optional[int]        `json:"progress,omitzero"`
	AssigneeID  Optional[string]     `json:"assigneeId,omitzero"`
	ProjectID   Optional[string]     `json:"projectId,omitzero"`
	CreatorID   Optional[string]     `json:"creatorId,omitzero"`
}

func (p TaskPatch) IsEmpty() bool {
	return !p.Title.Set && !p.Description.Set && !p.Status.Set && !p.Priority.Set &&
		!p.StartDate.Set && !p.DueDate.Set && !p.Progress.Set && !p.AssigneeID.Set &&
		!p.ProjectID.Set && !p.CreatorID.Set
}

// TaskFilter 是 ListTasks 的过滤条件
type TaskFilter struct {
	ProjectID string
}
