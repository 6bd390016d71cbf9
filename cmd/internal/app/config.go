package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	// BotToken is required: without a working bot transport the process must
	// not accept any traffic.
	BotToken       string
	BotPollTimeout time.Duration

	WSSendQueue         int
	WSWriteTimeout      time.Duration
	WSReadIdleTimeout   time.Duration
	WSHeartbeatInterval time.Duration
	WSHeartbeatTimeout  time.Duration
	WSRateEvents        int
	WSRateWindow        time.Duration

	// Security policy:
	// Origin is required by default, and only localhost is allowed by
	// default (secure-by-default for dev).
	WSOriginRequired bool
	WSAllowedOrigins []string
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("OPCHAT_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("OPCHAT_LOG_LEVEL", "info"),
		LogFormat: EnvString("OPCHAT_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("OPCHAT_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("OPCHAT_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("OPCHAT_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("OPCHAT_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("OPCHAT_HTTP_MAX_HEADER_BYTES", 1<<20),

		BotToken:       EnvString("BOT_TOKEN", ""),
		BotPollTimeout: EnvDuration("OPCHAT_BOT_POLL_TIMEOUT", 30*time.Second),

		WSSendQueue:         EnvInt("OPCHAT_WS_SEND_QUEUE", 256),
		WSWriteTimeout:      EnvDuration("OPCHAT_WS_WRITE_TIMEOUT", 5*time.Second),
		WSReadIdleTimeout:   EnvDuration("OPCHAT_WS_READ_IDLE_TIMEOUT", 2*time.Minute),
		WSHeartbeatInterval: EnvDuration("OPCHAT_WS_HEARTBEAT_INTERVAL", 25*time.Second),
		WSHeartbeatTimeout:  EnvDuration("OPCHAT_WS_HEARTBEAT_TIMEOUT", 5*time.Second),
		WSRateEvents:        EnvInt("OPCHAT_WS_RATE_EVENTS", 120),
		WSRateWindow:        EnvDuration("OPCHAT_WS_RATE_WINDOW", 10*time.Second),

		WSOriginRequired: EnvBool("OPCHAT_WS_ORIGIN_REQUIRED", true),
		WSAllowedOrigins: EnvCSV("OPCHAT_WS_ALLOWED_ORIGINS", "http://localhost,http://127.0.0.1"),
	}
}
