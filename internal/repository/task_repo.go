package repository

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"projecthub/internal/model"
	"projecthub/pkg/outbox"
)

type TaskRepo struct {
	db     outbox.DBTX
	logger *zap.Logger
}

const taskColumns = `t.id, t.title, t.description, t.status, t.priority, t.start_date, t.due_date,
		t.progress, t.project_id, t.assignee_id, t.creator_id, t.created_at, t.updated_at`

func scanTask(row interface{ Scan(...any) error }, t *model.Task) error {
	return row.Scan(&t.ID, &t.Title, &t.Description, &t.Status, &t.Priority, &t.StartDate, &t.DueDate,
		&t.Progress, &t.ProjectID, &t.AssigneeID, &t.CreatorID, &t.CreatedAt, &t.UpdatedAt)
}

func (r *TaskRepo) Create(ctx context.Context, t *model.Task) error {
	r.logger.Debug("Inserting task",
		zap.String("id", t.ID),
		zap.String("project_id", t.ProjectID),
		zap.String("creator_id", t.CreatorID),
	)

	_, err := r.db.Exec(ctx, `
		INSERT INTO tasks (id, title, description, status, priority, start_date, due_date, progress,
		                   project_id, assignee_id, creator_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, t.ID, t.Title, t.Description, t.Status, t.Priority, t.StartDate, t.DueDate, t.Progress,
		t.ProjectID, t.AssigneeID, t.CreatorID, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to insert task", zap.String("id", t.ID), zap.Error(err))
		return storageErr("insert task", err)
	}

	r.logger.Info("Task inserted successfully", zap.String("id", t.ID))
	return nil
}

func (r *TaskRepo) GetByID(ctx context.Context, id string) (*model.Task, error) {
	var t model.Task
	err := scanTask(r.db.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks t WHERE t.id = $1`, id), &t)
	if err != nil {
		return nil, storageErr(fmt.Sprintf("get task %q", id), err)
	}
	return &t, nil
}

func (r *TaskRepo) ListVisible(ctx context.Context, userID string, filter model.TaskFilter) ([]model.Task, error) {
	r.logger.Debug("Listing visible tasks",
		zap.String("user_id", userID),
		zap.String("project_id", filter.ProjectID),
	)

	tasks, err := r.list(ctx, `
		SELECT `+taskColumns+`
		FROM tasks t
		JOIN projects p ON p.id = t.project_id
		WHERE ($2 = '' OR t.project_id = $2)
		  AND (t.creator_id = $1 OR t.assignee_id = $1 OR `+accessibleProject+`)
		ORDER BY t.created_at DESC
	`, userID, filter.ProjectID)
	if err != nil {
		return nil, err
	}

	r.logger.Info("Tasks listed", zap.String("user_id", userID), zap.Int("count", len(tasks)))
	return tasks, nil
}

func (r *TaskRepo) ListByProject(ctx context.Context, projectID string) ([]model.Task, error) {
	return r.list(ctx, `
		SELECT `+taskColumns+` FROM tasks t
		WHERE t.project_id = $1
		ORDER BY t.created_at DESC
	`, projectID)
}

func (r *TaskRepo) ListDueBetween(ctx context.Context, from, to time.Time) ([]model.Task, error) {
	return r.list(ctx, `
		SELECT `+taskColumns+` FROM tasks t
		WHERE t.status <> 'COMPLETED' AND t.due_date >= $1 AND t.due_date < $2
		ORDER BY t.due_date ASC
	`, from, to)
}

func (r *TaskRepo) list(ctx context.Context, query string, args ...any) ([]model.Task, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query tasks", zap.Error(err))
		return nil, storageErr("list tasks", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		var t model.Task
		if err := scanTask(rows, &t); err != nil {
			return nil, storageErr("scan task", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate tasks", err)
	}
	return tasks, nil
}

func (r *TaskRepo) CountByProjects(ctx context.Context, projectIDs []string) (map[string]int, error) {
	out := make(map[string]int, len(projectIDs))
	if len(projectIDs) == 0 {
		return out, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT project_id, COUNT(*) FROM tasks
		WHERE project_id = ANY($1)
		GROUP BY project_id
	`, projectIDs)
	if err != nil {
		return nil, storageErr("count tasks", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, storageErr("scan task count", err)
		}
		out[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate task counts", err)
	}
	return out, nil
}

func (r *TaskRepo) Update(ctx context.Context, t *model.Task) error {
	r.logger.Debug("Updating task", zap.String("id", t.ID))

	tag, err := r.db.Exec(ctx, `
		UPDATE tasks
		SET title = $2, description = $3, status = $4, priority = $5, start_date = $6,
		    due_date = $7, progress = $8, assignee_id = $9, updated_at = $10
		WHERE id = $1
	`, t.ID, t.Title, t.Description, t.Status, t.Priority, t.StartDate, t.DueDate, t.Progress, t.AssigneeID, t.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to update task", zap.String("id", t.ID), zap.Error(err))
		return storageErr("update task", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NotFound("task", t.ID)
	}

	r.logger.Info("Task updated", zap.String("id", t.ID), zap.String("status", string(t.Status)))
	return nil
}

func (r *TaskRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("Failed to delete task", zap.String("id", id), zap.Error(err))
		return storageErr("delete task", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NotFound("task", id)
	}

	r.logger.Info("Task deleted", zap.String("id", id))
	return nil
}

func (r *TaskRepo) DeleteByProject(ctx context.Context, projectID string) (int, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM tasks WHERE project_id = $1`, projectID)
	if err != nil {
		r.logger.Error("Failed to delete project tasks", zap.String("project_id", projectID), zap.Error(err))
		return 0, storageErr("delete project tasks", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *TaskRepo) Search(ctx context.Context, userID, term string, limit int) ([]model.TaskHit, error) {
	rows, err := r.db.Query(ctx, `
		SELECT t.id, t.title, t.status, p.id, p.name
		FROM tasks t
		JOIN projects p ON p.id = t.project_id
		WHERE `+accessibleProject+`
		  AND (t.title ILIKE $2 ESCAPE '\' OR t.description ILIKE $2 ESCAPE '\')
		ORDER BY t.updated_at DESC
		LIMIT $3
	`, userID, likePattern(term), limit)
	if err != nil {
		r.logger.Error("Failed to search tasks", zap.String("user_id", userID), zap.Error(err))
		return nil, storageErr("search tasks", err)
	}
	defer rows.Close()

	hits := []model.TaskHit{}
	for rows.Next() {
		var h model.TaskHit
		if err := rows.Scan(&h.ID, &h.Title, &h.Status, &h.Project.ID, &h.Project.Name); err != nil {
			return nil, storageErr("scan task hit", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate task hits", err)
	}
	return hits, nil
}
