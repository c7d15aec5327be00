package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var validate = validator.New()

// Config holds the server configuration.
type Config struct {
	Addr      string `envconfig:"ADDR" default:":8000" validate:"required"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug dev development info warn warning error prod production"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text" validate:"oneof=text json"`

	// Matchmaking
	QueueTTL     time.Duration `envconfig:"QUEUE_TTL" default:"2m" validate:"gt=0"`
	PairInterval time.Duration `envconfig:"PAIR_INTERVAL" default:"1s" validate:"gt=0"`

	// Rooms
	RoomGrace       time.Duration `envconfig:"ROOM_GRACE" default:"30s" validate:"gte=0"`
	MaxParticipants int           `envconfig:"MAX_PARTICIPANTS" default:"2" validate:"min=2"`
	CodeAttempts    int           `envconfig:"CODE_ATTEMPTS" default:"16" validate:"min=1"`

	// Connections
	SendBuffer     int    `envconfig:"SEND_BUFFER" default:"64" validate:"min=1"`
	OverflowPolicy string `envconfig:"OVERFLOW_POLICY" default:"disconnect" validate:"oneof=disconnect drop"`
	AllowedOrigins string `envconfig:"ALLOWED_ORIGINS"`

	// Identity. Empty means tokens are decoded without verification.
	JWTSecret string `envconfig:"JWT_SECRET"`

	// Lifecycle events. Empty NATSURL disables publishing.
	NATSURL           string `envconfig:"NATS_URL" validate:"omitempty,url"`
	NATSSubjectPrefix string `envconfig:"NATS_SUBJECT_PREFIX" default:"debateit.rooms"`
}

// Options carries CLI flag overrides. Zero values mean "not set".
type Options struct {
	Addr      string
	LogLevel  string
	LogFormat string
	NATSURL   string
	// EnvFile is loaded before the environment is read, if it exists.
	EnvFile string
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables (optionally seeded from a .env file)
// 3. Defaults from the struct tags - lowest priority
func Load(opts Options) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	// A missing .env file is not an error.
	_ = godotenv.Load(envFile)

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	if opts.Addr != "" {
		cfg.Addr = opts.Addr
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	if opts.LogFormat != "" {
		cfg.LogFormat = opts.LogFormat
	}
	if opts.NATSURL != "" {
		cfg.NATSURL = opts.NATSURL
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	cfg.OverflowPolicy = strings.ToLower(cfg.OverflowPolicy)

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Origins returns the allowed websocket origins. Empty means any origin.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
