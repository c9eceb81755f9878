package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"projecthub/internal/model"
	"projecthub/internal/repository"
	"projecthub/pkg/metrics"
)

// DefaultNotificationLimit 通知面板一次最多展示的条数
const DefaultNotificationLimit = 50

// Notification sources, used as the metrics label
const (
	SourceEvent    = "event"
	SourceDeadline = "deadline"
)

type NotificationService struct {
	base
}

func NewNotificationService(store repository.Store, logger *zap.Logger) *NotificationService {
	return &NotificationService{base: newBase(store, logger)}
}

func (s *NotificationService) List(ctx context.Context, p model.Principal) ([]model.Notification, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}

	items, err := s.store.Notifications().ListByUser(ctx, p.UserID, DefaultNotificationLimit)
	if err != nil {
		s.log(ctx).Error("ListNotifications: failed", zap.String("user_id", p.UserID), zap.Error(err))
		return nil, err
	}
	if items == nil {
		items = []model.Notification{}
	}
	return items, nil
}

// MarkRead 别人的通知按不存在处理
func (s *NotificationService) MarkRead(ctx context.Context, p model.Principal, id string) error {
	if err := requirePrincipal(p); err != nil {
		return err
	}
	err := s.store.Notifications().MarkRead(ctx, id, p.UserID)
	logResult(s.log(ctx), "MarkNotificationRead", err,
		zap.String("user_id", p.UserID),
		zap.String("notification_id", id),
	)
	return err
}

func (s *NotificationService) MarkAllRead(ctx context.Context, p model.Principal) (int, error) {
	if err := requirePrincipal(p); err != nil {
		return 0, err
	}
	n, err := s.store.Notifications().MarkAllRead(ctx, p.UserID)
	logResult(s.log(ctx), "MarkAllNotificationsRead", err,
		zap.String("user_id", p.UserID),
		zap.Int("count", n),
	)
	return n, err
}

// Notify 写入一条通知；DedupKey 已存在时返回 false，不算错误
func (s *NotificationService) Notify(ctx context.Context, source string, n *model.Notification) (bool, error) {
	if n.UserID == "" {
		return false, model.NewValidationError("userId", "is required")
	}
	if n.DedupKey == "" {
		return false, model.NewValidationError("dedupKey", "is required")
	}
	if n.Type == "" {
		n.Type = model.NotificationInfo
	}
	if !n.Type.Valid() {
		return false, model.NewValidationError("type", "unknown notification type")
	}
	if n.ID == "" {
		n.ID = s.newID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}

	inserted, err := s.store.Notifications().Insert(ctx, n)
	if err != nil {
		s.log(ctx).Error("Notify: failed to insert notification",
			zap.String("user_id", n.UserID),
			zap.String("dedup_key", n.DedupKey),
			zap.Error(err),
		)
		return false, err
	}
	if inserted {
		metrics.IncrementNotification(source)
	}
	return inserted, nil
}

// NotifyUpcomingDeadlines 给 window 内到期的未完成任务发提醒（负责人优先，否则创建者）。
// 同一任务的同一截止时间只提醒一次。
func (s *NotificationService) NotifyUpcomingDeadlines(ctx context.Context, window time.Duration) (int, error) {
	log := s.log(ctx)
	now := s.now()

	tasks, err := s.store.Tasks().ListDueBetween(ctx, now, now.Add(window))
	if err != nil {
		log.Error("NotifyUpcomingDeadlines: failed to fetch tasks", zap.Error(err))
		return 0, err
	}

	sent := 0
	for _, t := range tasks {
		recipient := t.CreatorID
		if t.AssigneeID != nil {
			recipient = *t.AssigneeID
		}

		inserted, err := s.Notify(ctx, SourceDeadline, &model.Notification{
			UserID:   recipient,
			Title:    "Deadline Approaching",
			Message:  fmt.Sprintf("Task %q is due %s", t.Title, t.DueDate.UTC().Format("Jan 2, 15:04 MST")),
			Type:     model.NotificationWarning,
			DedupKey: fmt.Sprintf("deadline:%s:%d", t.ID, t.DueDate.Unix()),
		})
		if err != nil {
			return sent, err
		}
		if inserted {
			sent++
		}
	}

	log.Info("NotifyUpcomingDeadlines: done",
		zap.Int("due_count", len(tasks)),
		zap.Int("sent", sent),
	)
	return sent, nil
}
