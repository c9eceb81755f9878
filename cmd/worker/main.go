package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"projecthub/internal/config"
	"projecthub/internal/mqhandler"
	"projecthub/internal/repository"
	"projecthub/internal/scheduler"
	"projecthub/internal/service"
	"projecthub/pkg/db"
	"projecthub/pkg/logger"
	"projecthub/pkg/mq"
	"projecthub/pkg/otel"
	"projecthub/pkg/redis"
	"projecthub/pkg/util"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		logger.NewLogger("").Fatal("Failed to load config", zap.Error(err))
	}

	log := logger.NewLogger(cfg.Log.Level)
	defer log.Sync()

	log.Info("Starting worker...")

	shutdownTracing, err := otel.Init(cfg.Otel, log)
	if err != nil {
		log.Fatal("OpenTelemetry initialization failed", zap.Error(err))
	}
	defer shutdownTracing()

	// Redis
	rdb, err := redis.NewRedisClient(cfg.Redis, log)
	if err != nil {
		log.Fatal("Redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	deduper := util.NewDeduper(rdb, time.Hour, log)
	retryCounter := util.NewRetryCounter(rdb, time.Hour)

	// DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB connection failed", zap.Error(err))
	}
	defer dbConn.Close()

	store := repository.NewPGStore(dbConn, log)
	notifications := service.NewNotificationService(store, log)

	dlq, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init DLQ publisher", zap.Error(err))
	}
	defer dlq.Close()

	// 每个领域事件一个队列
	for _, rk := range mqhandler.RoutingKeys() {
		h, err := mqhandler.NewNotificationHandler(rk, notifications, deduper, retryCounter, log)
		if err != nil {
			log.Fatal("Handler init failed", zap.String("routing_key", rk), zap.Error(err))
		}

		queue := "notifications." + rk + ".q"
		log.Info("Init consumer", zap.String("queue", queue))
		consumer, err := mq.NewConsumer(cfg.MQ.URL, queue, rk, log)
		if err != nil {
			log.Fatal("Consumer init failed", zap.String("queue", queue), zap.Error(err))
		}
		consumer.SetHandler(h.Handle)
		consumer.SetDeadLetter(dlq)
		defer consumer.Close()

		go func() {
			if err := consumer.StartConsuming(); err != nil {
				log.Error("Consumer stopped", zap.String("queue", queue), zap.Error(err))
			}
		}()
	}

	// 截止日期提醒
	sched, err := scheduler.New(notifications, cfg.Scheduler.DeadlineCron, cfg.Scheduler.DeadlineWindow, log)
	if err != nil {
		log.Fatal("Scheduler init failed", zap.Error(err))
	}
	sched.Start()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("Worker running")
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sched.Stop(stopCtx)
	log.Info("Worker stopped")
}
