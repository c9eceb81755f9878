package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mqcontracts "projecthub/contracts/mq"
	"projecthub/internal/model"
	"projecthub/internal/repository/memory"
	"projecthub/internal/service"
	"projecthub/pkg/util"
)

type harness struct {
	mr      *miniredis.Miniredis
	rdb     *redis.Client
	service *service.NotificationService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return &harness{
		mr:      mr,
		rdb:     rdb,
		service: service.NewNotificationService(memory.NewStore(), zap.NewNop()),
	}
}

func (h *harness) handler(t *testing.T, routingKey string, notifier Notifier) *NotificationHandler {
	t.Helper()
	if notifier == nil {
		notifier = h.service
	}
	handler, err := NewNotificationHandler(
		routingKey,
		notifier,
		util.NewDeduper(h.rdb, time.Hour, zap.NewNop()),
		util.NewRetryCounter(h.rdb, time.Hour),
		zap.NewNop(),
	)
	require.NoError(t, err)
	return handler
}

func (h *harness) inbox(t *testing.T, userID string) []model.Notification {
	t.Helper()
	items, err := h.service.List(context.Background(), model.Principal{UserID: userID})
	require.NoError(t, err)
	return items
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func meta(id string) mqcontracts.EventMeta {
	return mqcontracts.EventMeta{EventID: id, OccurredAt: time.Now().UTC()}
}

func TestNewNotificationHandler_UnknownKey(t *testing.T) {
	h := newHarness(t)
	_, err := NewNotificationHandler("email.received", h.service, nil, nil, zap.NewNop())
	assert.Error(t, err)

	for _, key := range RoutingKeys() {
		h.handler(t, key, nil)
	}
}

func TestNotificationHandler_MemberAdded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	handler := h.handler(t, mqcontracts.RoutingKeyProjectMemberAdded, nil)

	raw := mustJSON(t, mqcontracts.ProjectMemberAddedPayload{
		EventMeta:   meta("evt-1"),
		ProjectID:   "p1",
		ProjectName: "Apollo",
		UserID:      "user-b",
		AddedBy:     "user-a",
	})

	require.NoError(t, handler.Handle(ctx, raw))
	require.NoError(t, handler.Handle(ctx, raw), "redelivery is skipped by the deduper")

	items := h.inbox(t, "user-b")
	require.Len(t, items, 1)
	assert.Equal(t, "Added to project", items[0].Title)
	assert.Contains(t, items[0].Message, "Apollo")

	// Redis 丢了去重键也不会重复写入
	h.mr.FlushAll()
	require.NoError(t, handler.Handle(ctx, raw))
	assert.Len(t, h.inbox(t, "user-b"), 1)
}

func TestNotificationHandler_StatusChangedSkipsActor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	handler := h.handler(t, mqcontracts.RoutingKeyTaskStatusChanged, nil)

	assignee := "user-b"
	raw := mustJSON(t, mqcontracts.TaskStatusChangedPayload{
		EventMeta:  meta("evt-2"),
		TaskID:     "t1",
		TaskTitle:  "Ship it",
		From:       "IN_REVIEW",
		To:         "COMPLETED",
		ChangedBy:  "user-b",
		CreatorID:  "user-a",
		AssigneeID: &assignee,
	})
	require.NoError(t, handler.Handle(ctx, raw))

	creator := h.inbox(t, "user-a")
	require.Len(t, creator, 1)
	assert.Equal(t, "Task completed", creator[0].Title)
	assert.Equal(t, model.NotificationSuccess, creator[0].Type)
	assert.Empty(t, h.inbox(t, "user-b"))
}

func TestNotificationHandler_ProjectDeletedNotifiesMembers(t *testing.T) {
	h := newHarness(t)
	handler := h.handler(t, mqcontracts.RoutingKeyProjectDeleted, nil)

	raw := mustJSON(t, mqcontracts.ProjectDeletedPayload{
		EventMeta: meta("evt-3"),
		ProjectID: "p1",
		Name:      "Apollo",
		OwnerID:   "user-a",
		MemberIDs: []string{"user-b", "user-c"},
		TaskCount: 3,
	})
	require.NoError(t, handler.Handle(context.Background(), raw))

	assert.Len(t, h.inbox(t, "user-b"), 1)
	assert.Len(t, h.inbox(t, "user-c"), 1)
	assert.Empty(t, h.inbox(t, "user-a"))
}

func TestNotificationHandler_BadPayload(t *testing.T) {
	h := newHarness(t)
	handler := h.handler(t, mqcontracts.RoutingKeyTaskAssigned, nil)

	err := handler.Handle(context.Background(), json.RawMessage(`{not json`))
	require.Error(t, err)
	retryable, errType := util.IsRetryableError(err)
	assert.False(t, retryable)
	assert.Equal(t, "json_decode_error", errType)

	err = handler.Handle(context.Background(), mustJSON(t, mqcontracts.TaskAssignedPayload{AssigneeID: "user-b"}))
	assert.ErrorIs(t, err, model.ErrValidation)
}

type notifierFunc func(ctx context.Context, source string, n *model.Notification) (bool, error)

func (f notifierFunc) Notify(ctx context.Context, source string, n *model.Notification) (bool, error) {
	return f(ctx, source, n)
}

func TestNotificationHandler_RetriesThenGivesUp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	calls := 0
	failing := notifierFunc(func(context.Context, string, *model.Notification) (bool, error) {
		calls++
		return false, model.NewStorageError("insert notification", errors.New("connection reset"))
	})
	handler := h.handler(t, mqcontracts.RoutingKeyTaskAssigned, failing)
	raw := mustJSON(t, mqcontracts.TaskAssignedPayload{EventMeta: meta("evt-4"), AssigneeID: "user-b", TaskTitle: "x"})

	for i := 1; i <= maxRetries; i++ {
		err := handler.Handle(ctx, raw)
		require.Error(t, err)
		retryable, _ := util.IsRetryableError(err)
		assert.True(t, retryable, "attempt %d should be requeued", i)
	}

	err := handler.Handle(ctx, raw)
	assert.ErrorIs(t, err, util.ErrRetriesExhausted)
	retryable, _ := util.IsRetryableError(err)
	assert.False(t, retryable)
	assert.Equal(t, maxRetries+1, calls)
}
