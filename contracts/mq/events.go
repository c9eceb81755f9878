package mq

import "time"

// Routing keys on the events exchange
const (
	RoutingKeyProjectCreated     = "project.created"
	RoutingKeyProjectDeleted     = "project.deleted"
	RoutingKeyProjectMemberAdded = "project.member_added"
	RoutingKeyTaskAssigned       = "task.assigned"
	RoutingKeyTaskStatusChanged  = "task.status_changed"
)

// EventMeta 每个事件 payload 都带的元信息；EventID 用于消费端去重
type EventMeta struct {
	EventID    string    `json:"event_id"`
	TraceID    string    `json:"trace_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type ProjectCreatedPayload struct {
	EventMeta
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	OwnerID   string `json:"owner_id"`
}

type ProjectDeletedPayload struct {
	EventMeta
	ProjectID      string   `json:"project_id"`
	Name           string   `json:"name"`
	OwnerID        string   `json:"owner_id"`
	MemberIDs      []string `json:"member_ids"`
	TaskCount      int      `json:"task_count"`
	MilestoneCount int      `json:"milestone_count"`
}

type ProjectMemberAddedPayload struct {
	EventMeta
	ProjectID   string `json:"project_id"`
	ProjectName string `json:"project_name"`
	UserID      string `json:"user_id"`
	AddedBy     string `json:"added_by"`
}

type TaskAssignedPayload struct {
	EventMeta
	TaskID     string `json:"task_id"`
	TaskTitle  string `json:"task_title"`
	ProjectID  string `json:"project_id"`
	AssigneeID string `json:"assignee_id"`
	AssignedBy string `json:"assigned_by"`
}

type TaskStatusChangedPayload struct {
	EventMeta
	TaskID     string  `json:"task_id"`
	TaskTitle  string  `json:"task_title"`
	ProjectID  string  `json:"project_id"`
	From       string  `json:"from"`
	To         string  `json:"to"`
	ChangedBy  string  `json:"changed_by"`
	CreatorID  string  `json:"creator_id"`
	AssigneeID *string `json:"assignee_id,omitempty"`
}
