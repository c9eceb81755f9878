package repository

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"projecthub/internal/model"
	"projecthub/pkg/outbox"
)

type ProjectRepo struct {
	db     outbox.DBTX
	logger *zap.Logger
}

const projectColumns = `p.id, p.name, p.description, p.status, p.start_date, p.end_date,
		p.progress, p.owner_id, p.created_at, p.updated_at`

func scanProject(row interface{ Scan(...any) error }, p *model.Project) error {
	return row.Scan(&p.ID, &p.Name, &p.Description, &p.Status, &p.StartDate, &p.EndDate,
		&p.Progress, &p.OwnerID, &p.CreatedAt, &p.UpdatedAt)
}

func (r *ProjectRepo) Create(ctx context.Context, p *model.Project) error {
	r.logger.Debug("Inserting project",
		zap.String("id", p.ID),
		zap.String("owner_id", p.OwnerID),
		zap.String("name", p.Name),
	)

	_, err := r.db.Exec(ctx, `
		INSERT INTO projects (id, name, description, status, start_date, end_date, progress, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, p.ID, p.Name, p.Description, p.Status, p.StartDate, p.EndDate, p.Progress, p.OwnerID, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to insert project", zap.String("id", p.ID), zap.Error(err))
		return storageErr("insert project", err)
	}

	r.logger.Info("Project inserted successfully", zap.String("id", p.ID))
	return nil
}

func (r *ProjectRepo) GetByID(ctx context.Context, id string) (*model.Project, error) {
	var p model.Project
	err := scanProject(r.db.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects p WHERE p.id = $1`, id), &p)
	if err != nil {
		return nil, storageErr(fmt.Sprintf("get project %q", id), err)
	}

	members, err := r.memberIDs(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	p.MemberIDs = members[id]
	return &p, nil
}

func (r *ProjectRepo) GetMany(ctx context.Context, ids []string) (map[string]*model.Project, error) {
	out := make(map[string]*model.Project, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	projects, err := r.list(ctx, `SELECT `+projectColumns+` FROM projects p WHERE p.id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	for i := range projects {
		out[projects[i].ID] = &projects[i]
	}
	return out, nil
}

func (r *ProjectRepo) ListAccessible(ctx context.Context, userID string) ([]model.Project, error) {
	r.logger.Debug("Listing accessible projects", zap.String("user_id", userID))

	projects, err := r.list(ctx, `
		SELECT `+projectColumns+`
		FROM projects p
		WHERE `+accessibleProject+`
		ORDER BY p.updated_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}

	r.logger.Info("Projects listed", zap.String("user_id", userID), zap.Int("count", len(projects)))
	return projects, nil
}

func (r *ProjectRepo) list(ctx context.Context, query string, args ...any) ([]model.Project, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query projects", zap.Error(err))
		return nil, storageErr("list projects", err)
	}
	defer rows.Close()

	var projects []model.Project
	for rows.Next() {
		var p model.Project
		if err := scanProject(rows, &p); err != nil {
			return nil, storageErr("scan project", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate projects", err)
	}

	ids := make([]string, len(projects))
	for i := range projects {
		ids[i] = projects[i].ID
	}
	members, err := r.memberIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range projects {
		projects[i].MemberIDs = members[projects[i].ID]
	}
	return projects, nil
}

func (r *ProjectRepo) memberIDs(ctx context.Context, projectIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(projectIDs))
	if len(projectIDs) == 0 {
		return out, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT project_id, user_id FROM project_members
		WHERE project_id = ANY($1)
		ORDER BY created_at ASC
	`, projectIDs)
	if err != nil {
		return nil, storageErr("list project members", err)
	}
	defer rows.Close()

	for rows.Next() {
		var projectID, userID string
		if err := rows.Scan(&projectID, &userID); err != nil {
			return nil, storageErr("scan project member", err)
		}
		out[projectID] = append(out[projectID], userID)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate project members", err)
	}
	return out, nil
}

func (r *ProjectRepo) Update(ctx context.Context, p *model.Project) error {
	r.logger.Debug("Updating project", zap.String("id", p.ID))

	tag, err := r.db.Exec(ctx, `
		UPDATE projects
		SET name = $2, description = $3, status = $4, start_date = $5, end_date = $6,
		    progress = $7, updated_at = $8
		WHERE id = $1
	`, p.ID, p.Name, p.Description, p.Status, p.StartDate, p.EndDate, p.Progress, p.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to update project", zap.String("id", p.ID), zap.Error(err))
		return storageErr("update project", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NotFound("project", p.ID)
	}

	r.logger.Info("Project updated", zap.String("id", p.ID))
	return nil
}

func (r *ProjectRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("Failed to delete project", zap.String("id", id), zap.Error(err))
		return storageErr("delete project", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NotFound("project", id)
	}

	r.logger.Info("Project deleted", zap.String("id", id))
	return nil
}

func (r *ProjectRepo) AddMember(ctx context.Context, projectID, userID string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO project_members (project_id, user_id) VALUES ($1, $2)
		ON CONFLICT (project_id, user_id) DO NOTHING
	`, projectID, userID)
	if err != nil {
		r.logger.Error("Failed to add project member",
			zap.String("project_id", projectID),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return false, storageErr("add project member", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ProjectRepo) RemoveMember(ctx context.Context, projectID, userID string) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM project_members WHERE project_id = $1 AND user_id = $2`, projectID, userID)
	if err != nil {
		return false, storageErr("remove project member", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ProjectRepo) DeleteMembers(ctx context.Context, projectID string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM project_members WHERE project_id = $1`, projectID); err != nil {
		return storageErr("delete project members", err)
	}
	return nil
}

func (r *ProjectRepo) Search(ctx context.Context, userID, term string, limit int) ([]model.ProjectHit, error) {
	rows, err := r.db.Query(ctx, `
		SELECT p.id, p.name, p.status
		FROM projects p
		WHERE `+accessibleProject+`
		  AND (p.name ILIKE $2 ESCAPE '\' OR p.description ILIKE $2 ESCAPE '\')
		ORDER BY p.updated_at DESC
		LIMIT $3
	`, userID, likePattern(term), limit)
	if err != nil {
		r.logger.Error("Failed to search projects", zap.String("user_id", userID), zap.Error(err))
		return nil, storageErr("search projects", err)
	}
	defer rows.Close()

	hits := []model.ProjectHit{}
	for rows.Next() {
		var h model.ProjectHit
		if err := rows.Scan(&h.ID, &h.Name, &h.Status); err != nil {
			return nil, storageErr("scan project hit", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate project hits", err)
	}
	return hits, nil
}
