// Package config loads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds every tunable of the chat service.
type Config struct {
	Port     string `envconfig:"PORT" default:"8080"`
	DBURL    string `envconfig:"DB_URL" required:"true"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	JWTSecret      string        `envconfig:"JWT_SECRET" required:"true"`
	JWTIssuer      string        `envconfig:"JWT_ISS" default:"chatrooms"`
	AccessTokenTTL time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"30m"`

	// Empty RedisAddr selects the in-process cache.
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	CacheCapacity int    `envconfig:"CACHE_CAPACITY" default:"50"`

	CacheTimeout time.Duration `envconfig:"CACHE_TIMEOUT" default:"500ms"`

	// Empty NatsURL keeps fan-out inside this process.
	NatsURL      string `envconfig:"NATS_URL"`
	NatsUser     string `envconfig:"NATS_USER"`
	NatsPassword string `envconfig:"NATS_PASSWORD"`
	NatsCred     string `envconfig:"NATS_CRED"`

	WriteTimeout  time.Duration `envconfig:"WS_WRITE_TIMEOUT" default:"10s"`
	PingInterval  time.Duration `envconfig:"WS_PING_INTERVAL" default:"30s"`
	SendQueue     int           `envconfig:"WS_SEND_QUEUE" default:"64"`
	ReadLimit     int64         `envconfig:"WS_READ_LIMIT" default:"32768"`
	MessageRate   int           `envconfig:"WS_MESSAGE_RATE" default:"30"`
	MessageWindow time.Duration `envconfig:"WS_MESSAGE_WINDOW" default:"1m"`

	AuthRate   int           `envconfig:"AUTH_RATE" default:"10"`
	AuthWindow time.Duration `envconfig:"AUTH_WINDOW" default:"1m"`

	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"`
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("failed to load .env file: %+v", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("internal/config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	var errs []error

	if c.CacheCapacity <= 0 {
		errs = append(errs, errors.New("CACHE_CAPACITY must be positive"))
	}
	if c.CacheTimeout <= 0 {
		errs = append(errs, errors.New("CACHE_TIMEOUT must be positive"))
	}
	if c.WriteTimeout <= 0 {
		errs = append(errs, errors.New("WS_WRITE_TIMEOUT must be positive"))
	}
	if c.PingInterval < 0 {
		errs = append(errs, errors.New("WS_PING_INTERVAL must not be negative"))
	}
	if c.SendQueue <= 0 {
		errs = append(errs, errors.New("WS_SEND_QUEUE must be positive"))
	}
	if c.ReadLimit <= 0 {
		errs = append(errs, errors.New("WS_READ_LIMIT must be positive"))
	}
	if c.MessageRate <= 0 || c.MessageWindow <= 0 {
		errs = append(errs, errors.New("WS_MESSAGE_RATE and WS_MESSAGE_WINDOW must be positive"))
	}
	if c.AuthRate <= 0 || c.AuthWindow <= 0 {
		errs = append(errs, errors.New("AUTH_RATE and AUTH_WINDOW must be positive"))
	}
	if c.AccessTokenTTL <= 0 {
		errs = append(errs, errors.New("ACCESS_TOKEN_TTL must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("internal/config: %w", errors.Join(errs...))
	}

	return nil
}
