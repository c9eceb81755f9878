package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	mqcontracts "projecthub/contracts/mq"
	"projecthub/internal/model"
	"projecthub/internal/repository"
	"projecthub/pkg/logger"
	"projecthub/pkg/metrics"
	"projecthub/pkg/outbox"
	"projecthub/pkg/trace"
)

// base 是各个 service 共享的依赖；now / newID 在测试中可替换
type base struct {
	store  repository.Store
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

func newBase(store repository.Store, log *zap.Logger) base {
	if log == nil {
		log = zap.NewNop()
	}
	return base{
		store:  store,
		logger: log,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

func (b *base) log(ctx context.Context) *zap.Logger {
	return logger.WithTrace(ctx, b.logger)
}

func (b *base) eventMeta(ctx context.Context) mqcontracts.EventMeta {
	return mqcontracts.EventMeta{
		EventID:    b.newID(),
		TraceID:    trace.FromContext(ctx),
		OccurredAt: b.now(),
	}
}

// requirePrincipal 没有调用方时返回 ErrUnauthorized
func requirePrincipal(p model.Principal) error {
	if p.UserID == "" {
		return model.ErrUnauthorized
	}
	return nil
}

// appendEvent 在传入的事务里写 outbox
func appendEvent(ctx context.Context, tx repository.Store, aggregateType, aggregateID, routingKey string, payload any) error {
	event, err := outbox.NewEvent(aggregateType, aggregateID, routingKey, payload)
	if err != nil {
		return err
	}
	return tx.Events().Append(ctx, event)
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, model.ErrStorage):
		return "error"
	default:
		return "rejected"
	}
}

func recordMutation(entity, operation string, err error) {
	metrics.IncrementMutation(entity, operation, resultLabel(err))
}

// logResult 客户端错误记 Warn，存储错误记 Error
func logResult(log *zap.Logger, msg string, err error, fields ...zap.Field) {
	if err == nil {
		log.Info(msg+": success", fields...)
		return
	}
	fields = append(fields, zap.Error(err))
	if errors.Is(err, model.ErrStorage) {
		log.Error(msg+": failed", fields...)
		return
	}
	log.Warn(msg+": rejected", fields...)
}
