package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// Sink はverdictの書き込み先。
type Sink string

const (
	// SinkStore はPostgreSQLへ直接書き込む。
	SinkStore Sink = "store"
	// SinkHTTP はWebアプリのlive-status更新APIへPOSTする。
	SinkHTTP Sink = "http"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
// 各コンポーネントには構築時に必要な値だけを渡す。
type Config struct {
	// Database
	DatabaseURL string `envconfig:"DATABASE_URL" validate:"required"`

	// Scheduler
	PollIntervalSeconds int  `envconfig:"POLL_INTERVAL_SECONDS" default:"120" validate:"min=1"`
	Debug               bool `envconfig:"DEBUG" default:"false"`

	// PandaTV
	PandaTVAPIURL    string        `envconfig:"PANDATV_API_URL" default:"https://api.pandalive.co.kr/v1/live" validate:"required,url"`
	PandaTVBaseURL   string        `envconfig:"PANDATV_BASE_URL" default:"https://www.pandalive.co.kr" validate:"required,url"`
	StatusAPITimeout time.Duration `envconfig:"STATUS_API_TIMEOUT" default:"30s" validate:"gt=0"`

	// Sink
	Sink                Sink          `envconfig:"SINK" default:"store" validate:"oneof=store http"`
	LiveStatusAPIURL    string        `envconfig:"LIVE_STATUS_API_URL" validate:"required_if=Sink http,omitempty,url"`
	LiveStatusAPISecret string        `envconfig:"LIVE_STATUS_API_SECRET" validate:"required_if=Sink http"`
	PushMaxAttempts     int           `envconfig:"PUSH_MAX_ATTEMPTS" default:"3" validate:"min=1"`
	PushRetryDelay      time.Duration `envconfig:"PUSH_RETRY_DELAY" default:"5s" validate:"gt=0"`

	// Server
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	// Report
	SummaryMaxErrors int `envconfig:"SUMMARY_MAX_ERRORS" default:"5" validate:"min=0"`
}

// PollInterval はスケジュール実行の間隔を返す。
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定、または値が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			var invalid []string
			for _, fe := range verrs {
				invalid = append(invalid, envName(fe.StructField()))
			}
			return nil, fmt.Errorf("required environment variables are not set or invalid: %v", invalid)
		}
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	return cfg, nil
}

// envName はフィールド名に対応する環境変数名を返す。
func envName(field string) string {
	if f, ok := configFields[field]; ok {
		return f
	}
	return strings.ToUpper(field)
}

var configFields = map[string]string{
	"DatabaseURL":         "DATABASE_URL",
	"PollIntervalSeconds": "POLL_INTERVAL_SECONDS",
	"PandaTVAPIURL":       "PANDATV_API_URL",
	"PandaTVBaseURL":      "PANDATV_BASE_URL",
	"StatusAPITimeout":    "STATUS_API_TIMEOUT",
	"Sink":                "SINK",
	"LiveStatusAPIURL":    "LIVE_STATUS_API_URL",
	"LiveStatusAPISecret": "LIVE_STATUS_API_SECRET",
	"PushMaxAttempts":     "PUSH_MAX_ATTEMPTS",
	"PushRetryDelay":      "PUSH_RETRY_DELAY",
	"SummaryMaxErrors":    "SUMMARY_MAX_ERRORS",
}
