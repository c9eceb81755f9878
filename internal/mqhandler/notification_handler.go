package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	mqcontracts "projecthub/contracts/mq"
	"projecthub/internal/model"
	"projecthub/pkg/util"
)

const (
	maxRetries = 5
	source     = "event"
)

// Notifier 写入站内通知；dedup key 已存在时返回 false
type Notifier interface {
	Notify(ctx context.Context, source string, n *model.Notification) (bool, error)
}

// builder 把事件 payload 解析成元信息和待发送的通知
type builder func(raw json.RawMessage) (mqcontracts.EventMeta, []model.Notification, error)

var builders = map[string]builder{
	mqcontracts.RoutingKeyProjectCreated:     projectCreated,
	mqcontracts.RoutingKeyProjectDeleted:     projectDeleted,
	mqcontracts.RoutingKeyProjectMemberAdded: memberAdded,
	mqcontracts.RoutingKeyTaskAssigned:       taskAssigned,
	mqcontracts.RoutingKeyTaskStatusChanged:  taskStatusChanged,
}

// RoutingKeys 返回 worker 需要订阅的全部事件
func RoutingKeys() []string {
	return []string{
		mqcontracts.RoutingKeyProjectCreated,
		mqcontracts.RoutingKeyProjectDeleted,
		mqcontracts.RoutingKeyProjectMemberAdded,
		mqcontracts.RoutingKeyTaskAssigned,
		mqcontracts.RoutingKeyTaskStatusChanged,
	}
}

// NotificationHandler 消费一种领域事件并生成通知
type NotificationHandler struct {
	routingKey   string
	build        builder
	notifier     Notifier
	deduper      *util.Deduper
	retryCounter *util.RetryCounter
	logger       *zap.Logger
}

func NewNotificationHandler(
	routingKey string,
	notifier Notifier,
	deduper *util.Deduper,
	retryCounter *util.RetryCounter,
	logger *zap.Logger,
) (*NotificationHandler, error) {
	build, ok := builders[routingKey]
	if !ok {
		return nil, fmt.Errorf("no notification handler for routing key %q", routingKey)
	}
	return &NotificationHandler{
		routingKey:   routingKey,
		build:        build,
		notifier:     notifier,
		deduper:      deduper,
		retryCounter: retryCounter,
		logger:       logger.With(zap.String("routing_key", routingKey)),
	}, nil
}

func (h *NotificationHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	meta, notifications, err := h.build(raw)
	if err != nil {
		h.logger.Error("Invalid event payload, sending to DLQ",
			zap.String("raw", string(raw)),
			zap.Error(err),
		)
		return fmt.Errorf("bad_payload: %w", err)
	}
	if meta.EventID == "" {
		return model.NewValidationError("event_id", "is required")
	}

	log := h.logger.With(zap.String("event_id", meta.EventID), zap.String("trace_id", meta.TraceID))

	// Redis 去重（避免并发重复消费），数据库 dedup_key 兜底
	if !h.deduper.AcquireOnce(ctx, h.routingKey, meta.EventID) {
		return nil
	}

	retryKey := util.FormatRetryKey(h.routingKey, meta.EventID)
	retryCount, _ := h.retryCounter.IncrementAndGet(ctx, retryKey)

	sent := 0
	for i := range notifications {
		n := &notifications[i]
		n.DedupKey = meta.EventID + ":" + n.UserID
		inserted, err := h.notifier.Notify(ctx, source, n)
		if err != nil {
			return h.handleNotifyError(ctx, log, meta.EventID, retryKey, retryCount, err)
		}
		if inserted {
			sent++
		}
	}

	_ = h.retryCounter.Reset(ctx, retryKey)
	log.Info("Event processed",
		zap.Int("recipients", len(notifications)),
		zap.Int("sent", sent),
	)
	return nil
}

func (h *NotificationHandler) handleNotifyError(ctx context.Context, log *zap.Logger, eventID, retryKey string, retryCount int64, err error) error {
	retryable, errType := util.IsRetryableError(err)
	log.Warn("Failed to store notification",
		zap.String("error_type", errType),
		zap.Bool("retryable", retryable),
		zap.Int64("retry", retryCount),
		zap.Error(err),
	)

	// 释放去重锁，重新投递时可以再次处理
	h.deduper.Release(ctx, h.routingKey, eventID)

	if !util.ShouldRetry(retryCount, maxRetries, retryable) {
		_ = h.retryCounter.Reset(ctx, retryKey)
		if retryable {
			return fmt.Errorf("%w: %v", util.ErrRetriesExhausted, err)
		}
	}
	return err
}

func decode[T any](raw json.RawMessage) (T, error) {
	var p T
	err := json.Unmarshal(raw, &p)
	return p, err
}

func projectCreated(raw json.RawMessage) (mqcontracts.EventMeta, []model.Notification, error) {
	p, err := decode[mqcontracts.ProjectCreatedPayload](raw)
	if err != nil {
		return p.EventMeta, nil, err
	}
	return p.EventMeta, []model.Notification{{
		UserID:  p.OwnerID,
		Title:   "Project created",
		Message: fmt.Sprintf("Project %q is ready for tasks", p.Name),
		Type:    model.NotificationSuccess,
	}}, nil
}

func projectDeleted(raw json.RawMessage) (mqcontracts.EventMeta, []model.Notification, error) {
	p, err := decode[mqcontracts.ProjectDeletedPayload](raw)
	if err != nil {
		return p.EventMeta, nil, err
	}
	out := make([]model.Notification, 0, len(p.MemberIDs))
	for _, id := range p.MemberIDs {
		out = append(out, model.Notification{
			UserID:  id,
			Title:   "Project deleted",
			Message: fmt.Sprintf("Project %q was deleted with %d tasks", p.Name, p.TaskCount),
			Type:    model.NotificationWarning,
		})
	}
	return p.EventMeta, out, nil
}

func memberAdded(raw json.RawMessage) (mqcontracts.EventMeta, []model.Notification, error) {
	p, err := decode[mqcontracts.ProjectMemberAddedPayload](raw)
	if err != nil {
		return p.EventMeta, nil, err
	}
	return p.EventMeta, []model.Notification{{
		UserID:  p.UserID,
		Title:   "Added to project",
		Message: fmt.Sprintf("You were added to %q", p.ProjectName),
		Type:    model.NotificationInfo,
	}}, nil
}

func taskAssigned(raw json.RawMessage) (mqcontracts.EventMeta, []model.Notification, error) {
	p, err := decode[mqcontracts.TaskAssignedPayload](raw)
	if err != nil {
		return p.EventMeta, nil, err
	}
	return p.EventMeta, []model.Notification{{
		UserID:  p.AssigneeID,
		Title:   "New task assigned",
		Message: fmt.Sprintf("You were assigned %q", p.TaskTitle),
		Type:    model.NotificationInfo,
	}}, nil
}

// taskStatusChanged 通知创建者和负责人，不通知操作者本人
func taskStatusChanged(raw json.RawMessage) (mqcontracts.EventMeta, []model.Notification, error) {
	p, err := decode[mqcontracts.TaskStatusChangedPayload](raw)
	if err != nil {
		return p.EventMeta, nil, err
	}

	title, typ := "Task updated", model.NotificationInfo
	if p.To == string(model.TaskCompleted) {
		title, typ = "Task completed", model.NotificationSuccess
	}

	recipients := []string{p.CreatorID}
	if p.AssigneeID != nil && *p.AssigneeID != p.CreatorID {
		recipients = append(recipients, *p.AssigneeID)
	}

	var out []model.Notification
	for _, id := range recipients {
		if id == "" || id == p.ChangedBy {
			continue
		}
		out = append(out, model.Notification{
			UserID:  id,
			Title:   title,
			Message: fmt.Sprintf("%q moved from %s to %s", p.TaskTitle, p.From, p.To),
			Type:    typ,
		})
	}
	return p.EventMeta, out, nil
}
