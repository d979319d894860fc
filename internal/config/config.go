package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Upstream ML collaborators.
	TranscribeURL string        `env:"TRANSCRIBE_URL,required"`
	AlignURL      string        `env:"ALIGN_URL,required"`
	DiarizeURL    string        `env:"DIARIZE_URL,required"`
	ASRModel      string        `env:"ASR_MODEL" envDefault:"large-v3"`
	ASRLanguage   string        `env:"ASR_LANGUAGE" envDefault:"en"`
	ASRTimeout    time.Duration `env:"ASR_TIMEOUT" envDefault:"10m"`

	// Assembly.
	GapThreshold float64 `env:"GAP_THRESHOLD" envDefault:"0.8"`

	// Worker pool.
	Workers   int `env:"WORKERS" envDefault:"2"`
	QueueSize int `env:"QUEUE_SIZE" envDefault:"100"`

	// Job intake.
	AudioDir      string `env:"AUDIO_DIR" envDefault:"./audio"`
	WatchDir      string `env:"WATCH_DIR"` // empty disables the drop-directory watcher
	WatchBackfill bool   `env:"WATCH_BACKFILL" envDefault:"false"`

	// Optional MQTT job events.
	MQTTBrokerURL string `env:"MQTT_BROKER_URL"`
	MQTTClientID  string `env:"MQTT_CLIENT_ID" envDefault:"dt-engine"`
	MQTTUsername  string `env:"MQTT_USERNAME"`
	MQTTPassword  string `env:"MQTT_PASSWORD"`

	// Optional S3 artifact store.
	S3 S3Config

	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`

	CORSOrigins    []string `env:"CORS_ORIGINS"` // empty allows all
	RateLimitRPS   float64  `env:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `env:"RATE_LIMIT_BURST" envDefault:"20"`

	AuthToken string `env:"AUTH_TOKEN"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
}

// S3Config configures the optional S3-compatible artifact store.
type S3Config struct {
	Bucket        string        `env:"S3_BUCKET"`
	Region        string        `env:"S3_REGION" envDefault:"us-east-1"`
	Endpoint      string        `env:"S3_ENDPOINT"`
	AccessKey     string        `env:"S3_ACCESS_KEY"`
	SecretKey     string        `env:"S3_SECRET_KEY"`
	Prefix        string        `env:"S3_PREFIX"`
	PresignExpiry time.Duration `env:"S3_PRESIGN_EXPIRY" envDefault:"1h"`
}

// Enabled reports whether S3 storage is configured.
func (c S3Config) Enabled() bool { return c.Bucket != "" }

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile     string
	HTTPAddr    string
	LogLevel    string
	DatabaseURL string
	AudioDir    string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	// Load .env file (silent if missing)
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.DatabaseURL != "" {
		cfg.DatabaseURL = overrides.DatabaseURL
	}
	if overrides.AudioDir != "" {
		cfg.AudioDir = overrides.AudioDir
	}

	return cfg, nil
}
