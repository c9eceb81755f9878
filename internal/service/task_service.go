package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	mqcontracts "projecthub/contracts/mq"
	"projecthub/internal/access"
	"projecthub/internal/model"
	"projecthub/internal/repository"
)

const aggregateTask = "task"

type TaskService struct {
	base
}

func NewTaskService(store repository.Store, logger *zap.Logger) *TaskService {
	return &TaskService{base: newBase(store, logger)}
}

// List 返回调用方可见的任务；filter.ProjectID 非空时只看该项目
func (s *TaskService) List(ctx context.Context, p model.Principal, filter model.TaskFilter) ([]model.Task, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	log := s.log(ctx).With(zap.String("user_id", p.UserID), zap.String("project_id", filter.ProjectID))

	tasks, err := s.store.Tasks().ListVisible(ctx, p.UserID, filter)
	if err == nil {
		err = expandTasks(ctx, s.store, tasks)
	}
	if err != nil {
		log.Error("ListTasks: failed to fetch tasks", zap.Error(err))
		return nil, err
	}
	if tasks == nil {
		tasks = []model.Task{}
	}

	log.Debug("ListTasks: success", zap.Int("task_count", len(tasks)))
	return tasks, nil
}

func (s *TaskService) Get(ctx context.Context, p model.Principal, id string) (*model.Task, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	log := s.log(ctx).With(zap.String("user_id", p.UserID), zap.String("task_id", id))

	task, _, err := resolveTask(ctx, s.store, p, id)
	if err != nil {
		logResult(log, "GetTask", err)
		return nil, err
	}
	if err := s.expandOne(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *TaskService) Create(ctx context.Context, p model.Principal, in model.TaskInput) (task *model.Task, err error) {
	defer func() { recordMutation(aggregateTask, "create", err) }()

	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	log := s.log(ctx).With(zap.String("user_id", p.UserID), zap.String("project_id", in.ProjectID))

	if err := validateTaskInput(in); err != nil {
		log.Warn("CreateTask: invalid input", zap.Error(err))
		return nil, err
	}

	now := s.now()
	task = &model.Task{
		ID:          s.newID(),
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Status:      model.TaskTodo,
		Priority:    model.PriorityMedium,
		StartDate:   in.StartDate,
		DueDate:     in.DueDate,
		Progress:    0,
		ProjectID:   in.ProjectID,
		AssigneeID:  in.AssigneeID,
		CreatorID:   p.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.Status != nil {
		task.Status = *in.Status
	}
	if in.Priority != nil {
		task.Priority = *in.Priority
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		project, err := tx.Projects().GetByID(ctx, in.ProjectID)
		if err != nil {
			return err
		}
		if err := access.CheckProjectAccess(p.UserID, project); err != nil {
			return err
		}
		if err := ensureAssignee(ctx, tx, task.AssigneeID); err != nil {
			return err
		}
		if err := tx.Tasks().Create(ctx, task); err != nil {
			return err
		}
		return s.appendTaskEvents(ctx, tx, p, nil, task)
	})
	if err != nil {
		logResult(log, "CreateTask", err)
		return nil, err
	}

	if err := s.expandOne(ctx, task); err != nil {
		return nil, err
	}
	log.Info("CreateTask: success", zap.String("task_id", task.ID))
	return task, nil
}

// Update 是状态流转的唯一入口：只写 patch 中出现的字段，null 清空可空字段
func (s *TaskService) Update(ctx context.Context, p model.Principal, id string, patch model.TaskPatch) (task *model.Task, err error) {
	defer func() { recordMutation(aggregateTask, "update", err) }()

	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	log := s.log(ctx).With(zap.String("user_id", p.UserID), zap.String("task_id", id))

	if err := validateTaskPatch(patch); err != nil {
		log.Warn("UpdateTask: invalid patch", zap.Error(err))
		return nil, err
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		existing, _, err := resolveTask(ctx, tx, p, id)
		if err != nil {
			return err
		}
		task = existing
		if patch.IsEmpty() {
			return nil
		}

		before := *existing
		applyTaskPatch(task, patch)
		if patch.AssigneeID.HasValue() {
			if err := ensureAssignee(ctx, tx, task.AssigneeID); err != nil {
				return err
			}
		}
		task.UpdatedAt = s.now()
		if err := tx.Tasks().Update(ctx, task); err != nil {
			return err
		}
		return s.appendTaskEvents(ctx, tx, p, &before, task)
	})
	if err != nil {
		logResult(log, "UpdateTask", err)
		return nil, err
	}

	if err := s.expandOne(ctx, task); err != nil {
		return nil, err
	}
	log.Info("UpdateTask: success", zap.Bool("noop", patch.IsEmpty()), zap.String("status", string(task.Status)))
	return task, nil
}

func applyTaskPatch(task *model.Task, patch model.TaskPatch) {
	if patch.Title.HasValue() {
		task.Title = strings.TrimSpace(patch.Title.Value)
	}
	patch.Description.ApplyTo(&task.Description)
	if patch.Status.HasValue() {
		task.Status = patch.Status.Value
	}
	if patch.Priority.HasValue() {
		task.Priority = patch.Priority.Value
	}
	patch.StartDate.ApplyTo(&task.StartDate)
	patch.DueDate.ApplyTo(&task.DueDate)
	if patch.Progress.HasValue() {
		task.Progress = patch.Progress.Value
	}
	patch.AssigneeID.ApplyTo(&task.AssigneeID)
}

func (s *TaskService) Delete(ctx context.Context, p model.Principal, id string) (err error) {
	defer func() { recordMutation(aggregateTask, "delete", err) }()

	if err := requirePrincipal(p); err != nil {
		return err
	}
	log := s.log(ctx).With(zap.String("user_id", p.UserID), zap.String("task_id", id))

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		if _, _, err := resolveTask(ctx, tx, p, id); err != nil {
			return err
		}
		return tx.Tasks().Delete(ctx, id)
	})
	logResult(log, "DeleteTask", err)
	return err
}

// resolveTask 先取任务再取所属项目，然后做访问检查
func resolveTask(ctx context.Context, store repository.Store, p model.Principal, id string) (*model.Task, *model.Project, error) {
	task, err := store.Tasks().GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	project, err := store.Projects().GetByID(ctx, task.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	if err := access.CheckTaskAccess(p.UserID, task, project); err != nil {
		return nil, nil, err
	}
	return task, project, nil
}

// ensureAssignee 负责人必须是已存在的用户，不要求是项目成员
func ensureAssignee(ctx context.Context, store repository.Store, assigneeID *string) error {
	if assigneeID == nil {
		return nil
	}
	if _, err := store.Users().GetByID(ctx, *assigneeID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.NewValidationError("assigneeId", "unknown user")
		}
		return err
	}
	return nil
}

// appendTaskEvents 负责人变化发 task.assigned，状态变化发 task.status_changed
func (s *TaskService) appendTaskEvents(ctx context.Context, tx repository.Store, p model.Principal, before, after *model.Task) error {
	assigneeChanged := after.AssigneeID != nil &&
		(before == nil || before.AssigneeID == nil || *before.AssigneeID != *after.AssigneeID)
	if assigneeChanged && *after.AssigneeID != p.UserID {
		err := appendEvent(ctx, tx, aggregateTask, after.ID, mqcontracts.RoutingKeyTaskAssigned,
			mqcontracts.TaskAssignedPayload{
				EventMeta:  s.eventMeta(ctx),
				TaskID:     after.ID,
				TaskTitle:  after.Title,
				ProjectID:  after.ProjectID,
				AssigneeID: *after.AssigneeID,
				AssignedBy: p.UserID,
			})
		if err != nil {
			return err
		}
	}

	if before != nil && before.Status != after.Status {
		return appendEvent(ctx, tx, aggregateTask, after.ID, mqcontracts.RoutingKeyTaskStatusChanged,
			mqcontracts.TaskStatusChangedPayload{
				EventMeta:  s.eventMeta(ctx),
				TaskID:     after.ID,
				TaskTitle:  after.Title,
				ProjectID:  after.ProjectID,
				From:       string(before.Status),
				To:         string(after.Status),
				ChangedBy:  p.UserID,
				CreatorID:  after.CreatorID,
				AssigneeID: after.AssigneeID,
			})
	}
	return nil
}

func (s *TaskService) expandOne(ctx context.Context, task *model.Task) error {
	one := []model.Task{*task}
	if err := expandTasks(ctx, s.store, one); err != nil {
		s.log(ctx).Error("failed to expand task", zap.String("task_id", task.ID), zap.Error(err))
		return err
	}
	*task = one[0]
	return nil
}
