// Package config provides configuration loading, validation, and defaults
// for the ownerscout services. Values come from a YAML file with BOT_-prefixed
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config defines the configuration shared by the aggregator and admin bot
// processes. Sections unused by one process are simply ignored by it.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Filter    FilterConfig    `mapstructure:"filter"`
	Limits    LimitsConfig    `mapstructure:"limits"`
	Dialog    DialogConfig    `mapstructure:"dialog"`
	Notifier  NotifierConfig  `mapstructure:"notifier"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// LoggerConfig controls log level and output format.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// TelegramConfig holds the bot token used by the running process.
type TelegramConfig struct {
	Token string `mapstructure:"token" validate:"required"`
}

// DatabaseConfig holds the SQLite database location.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// FilterConfig holds the keyword sets for post relevance and reply
// classification. Matching is case-insensitive substring matching.
type FilterConfig struct {
	PostKeywords  []string `mapstructure:"post_keywords"`
	OwnerKeywords []string `mapstructure:"owner_keywords"`
	AgentKeywords []string `mapstructure:"agent_keywords"`
}

// LimitsConfig holds the outbound DM throttling policy.
type LimitsConfig struct {
	DMIntervalMin    time.Duration `mapstructure:"dm_interval_min"    validate:"min=1s"`
	DMIntervalMax    time.Duration `mapstructure:"dm_interval_max"    validate:"gtefield=DMIntervalMin"`
	DailyDMLimit     int           `mapstructure:"daily_dm_limit"     validate:"gt=0"`
	FloodCooldownMin time.Duration `mapstructure:"flood_cooldown_min" validate:"min=1s"`
	FloodCooldownMax time.Duration `mapstructure:"flood_cooldown_max" validate:"gtefield=FloodCooldownMin"`
	FloodWaitMargin  time.Duration `mapstructure:"flood_wait_margin"  validate:"min=1s"`
}

// DialogConfig holds the fallback opening-question text, used when no
// override is stored in the settings table.
type DialogConfig struct {
	QuestionText string `mapstructure:"question_text" validate:"required"`
}

// NotifierConfig points the aggregator at the admin-side notification API.
type NotifierConfig struct {
	BaseURL string        `mapstructure:"base_url" validate:"required,url"`
	Timeout time.Duration `mapstructure:"timeout"  validate:"min=1s"`
}

// AdminConfig holds the operator chat and the internal API listen address.
type AdminConfig struct {
	ChatID  int64  `mapstructure:"chat_id"`
	APIAddr string `mapstructure:"api_addr" validate:"required"`
}

// SchedulerConfig holds the scheduled task table.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// TaskConfig enables a registered task and gives it a cron schedule.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// Load reads configuration from the given YAML file (optional; defaults apply
// when it is absent), applies BOT_* environment overrides, and validates the
// result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.json", false)

	v.SetDefault("database.path", "ownerscout.db")

	v.SetDefault("filter.post_keywords", []string{
		"продажа", "квартира", "м²", "цена", "руб", "собственник", "без комиссии",
	})
	v.SetDefault("filter.owner_keywords", []string{
		"собственник", "хозяин", "я", "мой", "мое", "напрямую", "сам", "без посредников",
	})
	v.SetDefault("filter.agent_keywords", []string{
		"агент", "посредник", "риелтор", "брокер", "не я", "нет",
	})

	v.SetDefault("limits.dm_interval_min", "5s")
	v.SetDefault("limits.dm_interval_max", "15s")
	v.SetDefault("limits.daily_dm_limit", 50)
	v.SetDefault("limits.flood_cooldown_min", "5m")
	v.SetDefault("limits.flood_cooldown_max", "10m")
	v.SetDefault("limits.flood_wait_margin", "5s")

	v.SetDefault("dialog.question_text",
		"Здравствуйте! Подскажите, вы собственник квартиры или агент?")

	v.SetDefault("notifier.base_url", "http://localhost:8001")
	v.SetDefault("notifier.timeout", "10s")

	v.SetDefault("admin.api_addr", ":8001")

	v.SetDefault("scheduler.tasks", map[string]any{
		"sql_maintenance": map[string]any{"enabled": true, "schedule": "0 0 4 * * *"},
		"daily_report":    map[string]any{"enabled": true, "schedule": "0 0 9 * * *"},
	})
}
