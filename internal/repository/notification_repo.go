package repository

import (
	"context"

	"go.uber.org/zap"

	"projecthub/internal/model"
	"projecthub/pkg/outbox"
)

type NotificationRepo struct {
	db     outbox.DBTX
	logger *zap.Logger
}

func (r *NotificationRepo) Insert(ctx context.Context, n *model.Notification) (bool, error) {
	r.logger.Debug("Inserting notification",
		zap.String("user_id", n.UserID),
		zap.String("dedup_key", n.DedupKey),
	)

	tag, err := r.db.Exec(ctx, `
		INSERT INTO notifications (id, user_id, title, message, type, read, dedup_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (dedup_key) DO NOTHING
	`, n.ID, n.UserID, n.Title, n.Message, n.Type, n.Read, n.DedupKey, n.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to insert notification", zap.String("user_id", n.UserID), zap.Error(err))
		return false, storageErr("insert notification", err)
	}

	inserted := tag.RowsAffected() > 0
	if !inserted {
		r.logger.Info("Notification already exists, skipped", zap.String("dedup_key", n.DedupKey))
	}
	return inserted, nil
}

func (r *NotificationRepo) ListByUser(ctx context.Context, userID string, limit int) ([]model.Notification, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, title, message, type, read, dedup_key, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		r.logger.Error("Failed to list notifications", zap.String("user_id", userID), zap.Error(err))
		return nil, storageErr("list notifications", err)
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type, &n.Read, &n.DedupKey, &n.CreatedAt); err != nil {
			return nil, storageErr("scan notification", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate notifications", err)
	}
	return out, nil
}

// MarkRead 只能标记自己的通知，其他人的通知视为不存在
func (r *NotificationRepo) MarkRead(ctx context.Context, id, userID string) error {
	tag, err := r.db.Exec(ctx, `UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return storageErr("mark notification read", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NotFound("notification", id)
	}
	return nil
}

func (r *NotificationRepo) MarkAllRead(ctx context.Context, userID string) (int, error) {
	tag, err := r.db.Exec(ctx, `UPDATE notifications SET read = TRUE WHERE user_id = $1 AND read = FALSE`, userID)
	if err != nil {
		return 0, storageErr("mark notifications read", err)
	}
	return int(tag.RowsAffected()), nil
}
