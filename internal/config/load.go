package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable the service reads.
const EnvPrefix = "VIETGUARD"

// defaults lists every key the service knows about. Registering each key
// with viper is what lets AutomaticEnv populate it during Unmarshal.
var defaults = map[string]any{
	"server.port":             8080,
	"server.log_level":        "info",
	"server.app_url":          "http://localhost:8080",
	"server.shutdown_timeout": 10 * time.Second,
	"server.max_upload_bytes": int64(500 << 20),

	"database.url":               "",
	"database.max_open_conns":    10,
	"database.max_idle_conns":    5,
	"database.conn_max_lifetime": 5 * time.Minute,

	"scan_api.base_url":           "",
	"scan_api.api_key":            "",
	"scan_api.timeout":            30 * time.Second,
	"scan_api.status_timeout":     30 * time.Second,
	"scan_api.artifact_timeout":   5 * time.Minute,
	"scan_api.max_artifact_bytes": int64(100 << 20),
	"scan_api.export_timeout":     2 * time.Minute,
	"scan_api.max_export_bytes":   int64(50 << 20),

	"smtp.host":     "",
	"smtp.port":     587,
	"smtp.username": "",
	"smtp.password": "",
	"smtp.from":     "",
	"smtp.tls":      "opportunistic",

	"otp.ttl":         10 * time.Minute,
	"otp.bcrypt_cost": 10,

	"reconcile.enabled":           true,
	"reconcile.interval":          30 * time.Second,
	"reconcile.concurrency":       4,
	"reconcile.mail_timeout":      time.Minute,
	"reconcile.notify_on_failure": false,
	"reconcile.max_poll_failures": 0,

	"rate_limit.max_tasks": 3,
	"rate_limit.window":    time.Hour,

	"download.token_secret": "",
	"download.token_ttl":    7 * 24 * time.Hour,
}

// Load reads configuration from defaults, an optional config.yaml and
// VIETGUARD_* environment variables, in increasing order of precedence.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile behaves like Load but reads the given config file instead of
// searching the working directory. An empty path falls back to the search.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}
