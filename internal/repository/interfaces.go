package repository

import (
	"context"
	"time"

	"projecthub/internal/model"
	"projecthub/pkg/outbox"
)

type UserRepository interface {
	// Create 邮箱重复时返回 model.ErrConflict
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetMany(ctx context.Context, ids []string) (map[string]*model.User, error)
	Count(ctx context.Context) (int, error)
	ListWithStats(ctx context.Context) ([]model.MemberStats, error)
}

type ProjectRepository interface {
	Create(ctx context.Context, p *model.Project) error
	// GetByID 返回的项目带 MemberIDs
	GetByID(ctx context.Context, id string) (*model.Project, error)
	GetMany(ctx context.Context, ids []string) (map[string]*model.Project, error)
	// ListAccessible owner 或成员可见，按 updated_at 倒序
	ListAccessible(ctx context.Context, userID string) ([]model.Project, error)
	Update(ctx context.Context, p *model.Project) error
	Delete(ctx context.Context, id string) error
	AddMember(ctx context.Context, projectID, userID string) (bool, error)
	RemoveMember(ctx context.Context, projectID, userID string) (bool, error)
	DeleteMembers(ctx context.Context, projectID string) error
	Search(ctx context.Context, userID, term string, limit int) ([]model.ProjectHit, error)
}

type TaskRepository interface {
	Create(ctx context.Context, t *model.Task) error
	GetByID(ctx context.Context, id string) (*model.Task, error)
	// ListVisible creator、assignee、项目 owner 或成员可见，按 created_at 倒序
	ListVisible(ctx context.Context, userID string, filter model.TaskFilter) ([]model.Task, error)
	ListByProject(ctx context.Context, projectID string) ([]model.Task, error)
	CountByProjects(ctx context.Context, projectIDs []string) (map[string]int, error)
	Update(ctx context.Context, t *model.Task) error
	Delete(ctx context.Context, id string) error
	DeleteByProject(ctx context.Context, projectID string) (int, error)
	// ListDueBetween 未完成且 due_date 落在 [from, to) 的任务
	ListDueBetween(ctx context.Context, from, to time.Time) ([]model.Task, error)
	Search(ctx context.Context, userID, term string, limit int) ([]model.TaskHit, error)
}

type MilestoneRepository interface {
	Create(ctx context.Context, m *model.Milestone) error
	// ListAccessible 按 date 升序
	ListAccessible(ctx context.Context, userID string) ([]model.Milestone, error)
	ListByProject(ctx context.Context, projectID string) ([]model.Milestone, error)
	DeleteByProject(ctx context.Context, projectID string) (int, error)
}

type NotificationRepository interface {
	// Insert dedup_key 已存在时返回 false
	Insert(ctx context.Context, n *model.Notification) (bool, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]model.Notification, error)
	MarkRead(ctx context.Context, id, userID string) error
	MarkAllRead(ctx context.Context, userID string) (int, error)
}

// EventRepository 把领域事件写入 outbox，与业务写入同事务
type EventRepository interface {
	Append(ctx context.Context, event *outbox.Event) error
}

// Store 聚合所有仓储；WithinTx 内的 tx 上的写入要么全部提交要么全部回滚
type Store interface {
	Users() UserRepository
	Projects() ProjectRepository
	Tasks() TaskRepository
	Milestones() MilestoneRepository
	Notifications() NotificationRepository
	Events() EventRepository
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}
