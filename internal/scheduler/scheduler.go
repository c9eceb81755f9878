package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"projecthub/pkg/otel"
	"projecthub/pkg/trace"
)

const (
	DefaultDeadlineSpec   = "0 * * * *"
	DefaultDeadlineWindow = 48 * time.Hour

	jobTimeout = 2 * time.Minute
)

// DeadlineNotifier 由 service.NotificationService 实现
type DeadlineNotifier interface {
	NotifyUpcomingDeadlines(ctx context.Context, window time.Duration) (int, error)
}

type Scheduler struct {
	cron     *cron.Cron
	notifier DeadlineNotifier
	window   time.Duration
	logger   *zap.Logger
}

// New 注册截止提醒任务；spec 为标准 5 段 cron 表达式
func New(notifier DeadlineNotifier, spec string, window time.Duration, logger *zap.Logger) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultDeadlineSpec
	}
	if window <= 0 {
		window = DefaultDeadlineWindow
	}

	cl := cronLogger{logger: logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		notifier: notifier,
		window:   window,
		logger:   logger,
	}

	if _, err := s.cron.AddFunc(spec, func() { s.RunDeadlineJob(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid deadline cron spec %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.logger.Info("Cron scheduler started", zap.Int("jobs", len(s.cron.Entries())))
	s.cron.Start()
}

// Stop 停止调度并等待正在执行的任务结束
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn("Cron scheduler stop timed out")
	}
}

// RunDeadlineJob 执行一次截止提醒扫描
func (s *Scheduler) RunDeadlineJob(ctx context.Context) {
	ctx, cancel := context.WithTimeout(trace.WithContext(ctx, trace.GenerateTraceID()), jobTimeout)
	defer cancel()
	ctx, span := otel.StartSpan(ctx, "scheduler.deadline_job")
	defer span.End()

	start := time.Now()
	sent, err := s.notifier.NotifyUpcomingDeadlines(ctx, s.window)
	if err != nil {
		span.RecordError(err)
		s.logger.Error("Deadline job failed", zap.Error(err))
		return
	}
	s.logger.Info("Deadline job completed",
		zap.Int("sent", sent),
		zap.Duration("window", s.window),
		zap.Duration("elapsed", time.Since(start)),
	)
}

// cronLogger 把 cron 的日志转到 zap
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
