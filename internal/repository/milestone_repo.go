package repository

import (
	"context"

	"go.uber.org/zap"

	"projecthub/internal/model"
	"projecthub/pkg/outbox"
)

type MilestoneRepo struct {
	db     outbox.DBTX
	logger *zap.Logger
}

const milestoneColumns = `m.id, m.name, m.date, m.completed, m.project_id, m.created_at`

func (r *MilestoneRepo) Create(ctx context.Context, m *model.Milestone) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO milestones (id, name, date, completed, project_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, m.ID, m.Name, m.Date, m.Completed, m.ProjectID, m.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to insert milestone", zap.String("project_id", m.ProjectID), zap.Error(err))
		return storageErr("insert milestone", err)
	}
	return nil
}

func (r *MilestoneRepo) ListAccessible(ctx context.Context, userID string) ([]model.Milestone, error) {
	r.logger.Debug("Listing accessible milestones", zap.String("user_id", userID))

	rows, err := r.db.Query(ctx, `
		SELECT `+milestoneColumns+`, p.name
		FROM milestones m
		JOIN projects p ON p.id = m.project_id
		WHERE `+accessibleProject+`
		ORDER BY m.date ASC
	`, userID)
	if err != nil {
		r.logger.Error("Failed to list milestones", zap.String("user_id", userID), zap.Error(err))
		return nil, storageErr("list milestones", err)
	}
	defer rows.Close()

	var out []model.Milestone
	for rows.Next() {
		var m model.Milestone
		ref := &model.ProjectRef{}
		if err := rows.Scan(&m.ID, &m.Name, &m.Date, &m.Completed, &m.ProjectID, &m.CreatedAt, &ref.Name); err != nil {
			return nil, storageErr("scan milestone", err)
		}
		ref.ID = m.ProjectID
		m.Project = ref
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate milestones", err)
	}

	r.logger.Info("Milestones listed", zap.String("user_id", userID), zap.Int("count", len(out)))
	return out, nil
}

func (r *MilestoneRepo) ListByProject(ctx context.Context, projectID string) ([]model.Milestone, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+milestoneColumns+` FROM milestones m
		WHERE m.project_id = $1
		ORDER BY m.date ASC
	`, projectID)
	if err != nil {
		return nil, storageErr("list project milestones", err)
	}
	defer rows.Close()

	var out []model.Milestone
	for rows.Next() {
		var m model.Milestone
		if err := rows.Scan(&m.ID, &m.Name, &m.Date, &m.Completed, &m.ProjectID, &m.CreatedAt); err != nil {
			return nil, storageErr("scan milestone", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate milestones", err)
	}
	return out, nil
}

func (r *MilestoneRepo) DeleteByProject(ctx context.Context, projectID string) (int, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM milestones WHERE project_id = $1`, projectID)
	if err != nil {
		r.logger.Error("Failed to delete project milestones", zap.String("project_id", projectID), zap.Error(err))
		return 0, storageErr("delete project milestones", err)
	}
	return int(tag.RowsAffected()), nil
}
