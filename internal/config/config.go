package config

import (
	"errors"
	"os"
	"time"

	"projecthub/pkg/config"
	"projecthub/pkg/otel"
)

type LogConfig struct {
	Level string `yaml:"level"`
}

// SearchConfig 搜索接口按用户限流
type SearchConfig struct {
	RatePerMinute int `yaml:"rate_per_minute"`
	Burst         int `yaml:"burst"`
}

type SchedulerConfig struct {
	DeadlineCron   string        `yaml:"deadline_cron"`
	DeadlineWindow time.Duration `yaml:"deadline_window"`
}

type OutboxConfig struct {
	Interval   time.Duration `yaml:"interval"`
	BatchSize  int           `yaml:"batch_size"`
	MaxRetries int           `yaml:"max_retries"`
}

type Config struct {
	Server    config.ServerConfig `yaml:"server"`
	DB        config.DBConfig     `yaml:"db"`
	Redis     config.RedisConfig  `yaml:"redis"`
	MQ        config.MQConfig     `yaml:"mq"`
	JWT       config.JWTConfig    `yaml:"jwt"`
	Log       LogConfig           `yaml:"log"`
	Otel      otel.Config         `yaml:"otel"`
	Search    SearchConfig        `yaml:"search"`
	Scheduler SchedulerConfig     `yaml:"scheduler"`
	Outbox    OutboxConfig        `yaml:"outbox"`
}

// Load 读取 <dir>/base.yaml 与 <dir>/<env>.yaml，替换 secrets，再用环境变量覆盖
func Load(env, dir string) (*Config, error) {
	raw, err := config.LoadConfig(env, dir)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := config.Decode(raw, &cfg); err != nil {
		return nil, err
	}

	// 环境变量覆盖（优先级最高）
	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideJWTFromEnv(&cfg.JWT)
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv 使用 CONFIG_ENV / CONFIG_DIR 定位配置
func LoadFromEnv() (*Config, error) {
	return Load(config.GetConfigEnv(), config.GetEnv("CONFIG_DIR", "config"))
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.JWT.TTL <= 0 {
		c.JWT.TTL = 24 * time.Hour
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Search.RatePerMinute <= 0 {
		c.Search.RatePerMinute = 120
	}
	if c.Search.Burst <= 0 {
		c.Search.Burst = 20
	}
	if c.Scheduler.DeadlineCron == "" {
		c.Scheduler.DeadlineCron = "0 * * * *"
	}
	if c.Scheduler.DeadlineWindow <= 0 {
		c.Scheduler.DeadlineWindow = 48 * time.Hour
	}
	if c.Outbox.Interval <= 0 {
		c.Outbox.Interval = 2 * time.Second
	}
	if c.Outbox.BatchSize <= 0 {
		c.Outbox.BatchSize = 100
	}
	if c.Outbox.MaxRetries <= 0 {
		c.Outbox.MaxRetries = 5
	}
	if c.Otel.ServiceName == "" {
		c.Otel.ServiceName = "projecthub"
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret is required"))
	}
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if c.DB.Host == "" || c.DB.Name == "" {
		errs = append(errs, errors.New("db.host and db.name are required"))
	}
	return errors.Join(errs...)
}
