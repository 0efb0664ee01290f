package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
)

type Config struct {
	Host                   string        `env:"HOST,default=localhost"`
	Port                   int           `env:"PORT,default=8080"`
	GrpcPort               int           `env:"GRPC_PORT,default=9090"`
	BadgerFilepath         string        `env:"BADGER_FILEPATH,required=true"`
	LogLevel               string        `env:"LOG_LEVEL,required=true"`
	SessionSecret          string        `env:"SESSION_SECRET,required=true"`
	SessionDuration        time.Duration `env:"SESSION_DURATION,default=24h"`
	IdentityTimeout        time.Duration `env:"IDENTITY_TIMEOUT,default=2s"`
	ConnectionBufferSize   int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	WriteTimeout           time.Duration `env:"WRITE_TIMEOUT,default=5s"`
	PingInterval           time.Duration `env:"PING_INTERVAL,default=30s"`
	MaxContentLength       int           `env:"MAX_CONTENT_LENGTH,default=4000"`
	LimitMessages          *int          `env:"LIMIT_MESSAGES"`
	CorsAllowedOrigins     string        `env:"CORS_ALLOWED_ORIGINS,default=http://localhost:3000"`
	RestartInterval        time.Duration `env:"RESTART_INTERVAL,default=1s"`
	SessionCleanupInterval time.Duration `env:"SESSION_CLEANUP_INTERVAL,default=10m"`
	GCInterval             time.Duration `env:"GC_INTERVAL,default=5m"`
	MetricInterval         time.Duration `env:"METRIC_INTERVAL,default=15s"`
	CensoredWords          string        `env:"CENSORED_WORDS"`
	CharReplacement        string        `env:"CHARACTER_REPLACEMENT,default=*"`
}

func (c Config) CharacterRune() (rune, error) {
	r := []rune(c.CharReplacement)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			c.CharReplacement,
		)
	}
	return r[0], nil
}

// AllowedOrigins splits the comma separated CORS_ALLOWED_ORIGINS.
func (c Config) AllowedOrigins() []string {
	origins := lo.Map(strings.Split(c.CorsAllowedOrigins, ","), func(origin string, _ int) string {
		return strings.TrimSpace(origin)
	})
	return lo.Compact(origins)
}

// Max frame size: a message of MaxContentLength runes, 4 bytes each at worst, plus the envelope.
func (c Config) MaxFrameBytes() int64 {
	return int64(c.MaxContentLength)*4 + 1024
}
