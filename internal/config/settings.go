package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Settings 进程级配置（来自环境变量）
// 与转发选项 Options 不同，Settings 在进程生命周期内不变
type Settings struct {
	DiscordToken      string        `env:"DISCORD_TOKEN"`
	KookToken         string        `env:"KOOK_TOKEN"`
	KookAPIBase       string        `env:"KOOK_API_BASE"        envDefault:"https://www.kookapp.cn/api/v3"`
	KookRatePerSecond int           `env:"KOOK_RATE_PER_SECOND" envDefault:"5"`
	ConfigPath        string        `env:"CONFIG_PATH"          envDefault:"data/config.json"`
	MediaDir          string        `env:"MEDIA_DIR"            envDefault:"data/media"`
	MongoURI          string        `env:"MONGO_URI"`
	MongoDBName       string        `env:"MONGO_DB_NAME"        envDefault:"dc2kook"`
	MongoCollection   string        `env:"MONGO_COLLECTION"     envDefault:"options"`
	HTTPTimeout       time.Duration `env:"HTTP_TIMEOUT"         envDefault:"10s"`
	DownloadTimeout   time.Duration `env:"DOWNLOAD_TIMEOUT"     envDefault:"2m"`
	Workers           int           `env:"WORKERS"              envDefault:"4"`
	QueueSize         int           `env:"QUEUE_SIZE"           envDefault:"100"`
	CommandName       string        `env:"COMMAND_NAME"         envDefault:"discord_kook_config"`
	LogLevel          string        `env:"LOG_LEVEL"            envDefault:"info"`
}

// Load 从环境变量加载配置
func Load() (*Settings, error) {
	cfg := &Settings{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg.KookAPIBase = strings.TrimRight(strings.TrimSpace(cfg.KookAPIBase), "/")
	cfg.CommandName = strings.TrimPrefix(strings.TrimSpace(cfg.CommandName), "/")

	if cfg.KookRatePerSecond <= 0 {
		return nil, fmt.Errorf("KOOK_RATE_PER_SECOND must be >= 1, got %d", cfg.KookRatePerSecond)
	}
	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("WORKERS must be >= 1, got %d", cfg.Workers)
	}
	if cfg.QueueSize <= 0 {
		return nil, fmt.Errorf("QUEUE_SIZE must be >= 1, got %d", cfg.QueueSize)
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = 2 * time.Minute
	}
	if cfg.CommandName == "" {
		cfg.CommandName = "discord_kook_config"
	}

	return cfg, nil
}

// ValidateForRun 检查运行转发进程所需的凭据
func (s *Settings) ValidateForRun() error {
	var errs []error
	if strings.TrimSpace(s.DiscordToken) == "" {
		errs = append(errs, errors.New("DISCORD_TOKEN cannot be empty"))
	}
	if strings.TrimSpace(s.KookToken) == "" {
		errs = append(errs, errors.New("KOOK_TOKEN cannot be empty"))
	}
	return errors.Join(errs...)
}
