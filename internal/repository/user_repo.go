package repository

import (
	"context"

	"go.uber.org/zap"

	"projecthub/internal/model"
	"projecthub/pkg/outbox"
)

type UserRepo struct {
	db     outbox.DBTX
	logger *zap.Logger
}

const userColumns = `id, name, email, image, role, password_hash, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }, u *model.User) error {
	return row.Scan(&u.ID, &u.Name, &u.Email, &u.Image, &u.Role, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
}

func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	r.logger.Debug("Inserting user", zap.String("id", u.ID), zap.String("email", u.Email))

	_, err := r.db.Exec(ctx, `
		INSERT INTO users (id, name, email, image, role, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, u.ID, u.Name, u.Email, u.Image, u.Role, u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to insert user", zap.String("email", u.Email), zap.Error(err))
		return storageErr("insert user", err)
	}

	r.logger.Info("User inserted successfully", zap.String("id", u.ID))
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id), &u)
	if err != nil {
		return nil, storageErr("get user", err)
	}
	return &u, nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email), &u)
	if err != nil {
		return nil, storageErr("get user by email", err)
	}
	return &u, nil
}

func (r *UserRepo) GetMany(ctx context.Context, ids []string) (map[string]*model.User, error) {
	out := make(map[string]*model.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.db.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		r.logger.Error("Failed to query users", zap.Int("count", len(ids)), zap.Error(err))
		return nil, storageErr("get users", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u model.User
		if err := scanUser(rows, &u); err != nil {
			return nil, storageErr("scan user", err)
		}
		out[u.ID] = &u
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate users", err)
	}
	return out, nil
}

func (r *UserRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, storageErr("count users", err)
	}
	return n, nil
}

func (r *UserRepo) ListWithStats(ctx context.Context) ([]model.MemberStats, error) {
	r.logger.Debug("Listing users with stats")

	rows, err := r.db.Query(ctx, `
		SELECT u.id, u.name, u.email, u.image, u.role, u.password_hash, u.created_at, u.updated_at,
		       (SELECT COUNT(*) FROM projects p WHERE p.owner_id = u.id),
		       (SELECT COUNT(*) FROM project_members m WHERE m.user_id = u.id),
		       (SELECT COUNT(*) FROM tasks t WHERE t.assignee_id = u.id),
		       (SELECT COUNT(*) FROM tasks t WHERE t.creator_id = u.id)
		FROM users u
		ORDER BY u.created_at DESC
	`)
	if err != nil {
		r.logger.Error("Failed to list users", zap.Error(err))
		return nil, storageErr("list users", err)
	}
	defer rows.Close()

	var out []model.MemberStats
	for rows.Next() {
		var m model.MemberStats
		err := rows.Scan(&m.ID, &m.Name, &m.Email, &m.Image, &m.Role, &m.PasswordHash, &m.CreatedAt, &m.UpdatedAt,
			&m.OwnedProjects, &m.MemberProjects, &m.AssignedTasks, &m.CreatedTasks)
		if err != nil {
			return nil, storageErr("scan user stats", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate users", err)
	}

	r.logger.Info("Users listed", zap.Int("count", len(out)))
	return out, nil
}
