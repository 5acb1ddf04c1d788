package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups, one per collaborator.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database" validate:"required"`
	ScanAPI   ScanAPIConfig   `mapstructure:"scan_api" validate:"required"`
	SMTP      SMTPConfig      `mapstructure:"smtp" validate:"required"`
	OTP       OTPConfig       `mapstructure:"otp" validate:"required"`
	Reconcile ReconcileConfig `mapstructure:"reconcile" validate:"required"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" validate:"required"`
	Download  DownloadConfig  `mapstructure:"download" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	// AppURL is the public base URL used to build links in outgoing email.
	AppURL          string        `mapstructure:"app_url" validate:"required,url"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	// MaxUploadBytes caps application files accepted for scanning.
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes" validate:"gt=0"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url" validate:"required,url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gt=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gt=0"`
}

// ScanAPIConfig configures the client for the external app-scanning API.
type ScanAPIConfig struct {
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
	APIKey  string `mapstructure:"api_key" validate:"required"`
	// Timeout bounds submissions and proxied management calls.
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
	// StatusTimeout bounds a single status poll.
	StatusTimeout time.Duration `mapstructure:"status_timeout" validate:"gt=0"`
	// ArtifactTimeout bounds a single result download.
	ArtifactTimeout  time.Duration `mapstructure:"artifact_timeout" validate:"gt=0"`
	MaxArtifactBytes int64         `mapstructure:"max_artifact_bytes" validate:"gt=0"`
	ExportTimeout    time.Duration `mapstructure:"export_timeout" validate:"gt=0"`
	MaxExportBytes   int64         `mapstructure:"max_export_bytes" validate:"gt=0"`
}

// SMTPConfig configures the outgoing mail relay.
type SMTPConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from" validate:"required"`
	// TLS is one of "mandatory", "opportunistic" or "none".
	TLS string `mapstructure:"tls" validate:"required,oneof=mandatory opportunistic none"`
}

// OTPConfig controls one-time password issuance.
type OTPConfig struct {
	TTL        time.Duration `mapstructure:"ttl" validate:"gt=0"`
	BcryptCost int           `mapstructure:"bcrypt_cost" validate:"gte=4,lte=31"`
}

// ReconcileConfig controls the background polling loop.
type ReconcileConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Interval    time.Duration `mapstructure:"interval" validate:"gte=1s"`
	Concurrency int           `mapstructure:"concurrency" validate:"gt=0"`
	MailTimeout time.Duration `mapstructure:"mail_timeout" validate:"gt=0"`
	// NotifyOnFailure sends a failure email when a task turns failed.
	NotifyOnFailure bool `mapstructure:"notify_on_failure"`
	// MaxPollFailures fails a task after that many consecutive poll errors.
	// Zero keeps polling forever.
	MaxPollFailures int `mapstructure:"max_poll_failures" validate:"gte=0"`
}

// RateLimitConfig bounds task creation per member.
type RateLimitConfig struct {
	MaxTasks int           `mapstructure:"max_tasks" validate:"gt=0"`
	Window   time.Duration `mapstructure:"window" validate:"gt=0"`
}

// DownloadConfig configures signed report download links.
type DownloadConfig struct {
	TokenSecret string        `mapstructure:"token_secret" validate:"required,min=32"`
	TokenTTL    time.Duration `mapstructure:"token_ttl" validate:"gt=0"`
}
