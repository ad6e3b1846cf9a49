// Package config loads quizd's process configuration.
package config

import (
	"strings"
	"time"

	"github.com/nmsdosti/newquiz.onlin2/go/internal/dbconfig"
)

// Config contains process configuration. Keys are flat so QUIZ_DB_HOST maps
// onto db_host.
type Config struct {
	LogLevel  string `koanf:"log_level" validate:"oneof=trace debug info warn error"`
	LogFormat string `koanf:"log_format" validate:"oneof=console json"`

	// Addr is the HTTP listen address, e.g. ":8080".
	Addr            string        `koanf:"addr" validate:"required"`
	AllowedOrigins  string        `koanf:"allowed_origins"` // comma separated, "*" for any
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`

	DBHost            string        `koanf:"db_host" validate:"required"`
	DBPort            int           `koanf:"db_port" validate:"gt=0,lte=65535"`
	DBUser            string        `koanf:"db_user" validate:"required"`
	DBPassword        string        `koanf:"db_password"`
	DBName            string        `koanf:"db_name" validate:"required"`
	DBSSLMode         string        `koanf:"db_sslmode" validate:"oneof=disable allow prefer require verify-ca verify-full"`
	DBMaxOpenConns    int           `koanf:"db_max_open_conns" validate:"gte=0"`
	DBMaxIdleConns    int           `koanf:"db_max_idle_conns" validate:"gte=0"`
	DBConnMaxLifetime time.Duration `koanf:"db_conn_max_lifetime"`

	// NATSURL selects the JetStream broadcaster. Empty keeps broadcasts in
	// process.
	NATSURL        string `koanf:"nats_url"`
	NATSStream     string `koanf:"nats_stream"`
	BroadcastQueue int    `koanf:"broadcast_queue" validate:"gt=0"`

	JWTSecret string        `koanf:"jwt_secret" validate:"required,min=16"`
	JWTIssuer string        `koanf:"jwt_issuer"`
	JWTTTL    time.Duration `koanf:"jwt_ttl" validate:"gt=0"`

	ReconcileInterval time.Duration `koanf:"reconcile_interval" validate:"gte=100ms"`
	ExpireRetries     int           `koanf:"expire_retries" validate:"gte=0"`
	ExpireRetryDelay  time.Duration `koanf:"expire_retry_delay"`
	ReadRetries       int           `koanf:"read_retries" validate:"gte=0"`
	ReadRetryDelay    time.Duration `koanf:"read_retry_delay"`

	NotifyEnabled          bool          `koanf:"notify_enabled"`
	NotifyChannel          string        `koanf:"notify_channel"`
	NotifyFallbackInterval time.Duration `koanf:"notify_fallback_interval"`

	DedupeSize   int           `koanf:"dedupe_size" validate:"gt=0"`
	WSSendBuffer int           `koanf:"ws_send_buffer" validate:"gt=0"`
}

// New returns a Config holding the defaults.
func New() *Config {
	return &Config{
		LogLevel:        "info",
		LogFormat:       "console",
		Addr:            ":8080",
		AllowedOrigins:  "*",
		ShutdownTimeout: 15 * time.Second,

		DBHost:            "localhost",
		DBPort:            5432,
		DBUser:            "postgres",
		DBPassword:        "postgres",
		DBName:            "quiz",
		DBSSLMode:         "disable",
		DBMaxOpenConns:    25,
		DBMaxIdleConns:    5,
		DBConnMaxLifetime: 30 * time.Minute,

		NATSStream:     "QUIZ_EVENTS",
		BroadcastQueue: 256,

		JWTIssuer: "quizd",
		JWTTTL:    12 * time.Hour,

		ReconcileInterval: 2 * time.Second,
		ExpireRetries:     5,
		ExpireRetryDelay:  500 * time.Millisecond,
		ReadRetries:       2,
		ReadRetryDelay:    100 * time.Millisecond,

		NotifyEnabled:          true,
		NotifyChannel:          "answer_events",
		NotifyFallbackInterval: 30 * time.Second,

		DedupeSize:   10000,
		WSSendBuffer: 256,
	}
}

// Database returns the Postgres settings.
func (c *Config) Database() dbconfig.Config {
	return dbconfig.Config{
		Host:            c.DBHost,
		Port:            c.DBPort,
		User:            c.DBUser,
		Password:        c.DBPassword,
		Database:        c.DBName,
		SSLMode:         c.DBSSLMode,
		MaxOpenConns:    c.DBMaxOpenConns,
		MaxIdleConns:    c.DBMaxIdleConns,
		ConnMaxLifetime: c.DBConnMaxLifetime,
	}
}

// Origins splits AllowedOrigins.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
