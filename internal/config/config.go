package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
	StoreRedis    = "redis"
)

type Config struct {
	Env  string
	Port int

	// credential store
	UserStore     string
	MongoURI      string
	MongoDatabase string
	DBURL         string

	// session store
	SessionStore  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SessionSecret string
	SessionTTL    time.Duration

	AdminEmail    string
	AdminPassword string
	AdminName     string

	OTLPEndpoint string
	ServiceName  string
}

// Load reads an optional .env file and then the process environment.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not read .env", "err", err)
	}

	return Config{
		Env:  getEnv("APP_ENV", "dev"),
		Port: getEnvInt("PORT", 3000),

		UserStore:     strings.ToLower(getEnv("USER_STORE", StoreMongo)),
		MongoURI:      buildMongoURI(),
		MongoDatabase: getEnv("MONGODB_DATABASE", "memberhub"),
		DBURL:         buildDBURL(),

		SessionStore:  strings.ToLower(getEnv("SESSION_STORE", StoreRedis)),
		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		SessionSecret: os.Getenv("SESSION_SECRET"),
		SessionTTL:    getEnvDuration("SESSION_TTL", time.Hour),

		AdminEmail:    getEnv("ADMIN_EMAIL", ""),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		AdminName:     getEnv("ADMIN_NAME", "Admin"),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:  getEnv("SERVICE_NAME", "memberhub"),
	}
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	var errs []error

	switch c.UserStore {
	case StoreMongo, StorePostgres, StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("USER_STORE: unknown backend %q", c.UserStore))
	}

	switch c.SessionStore {
	case StoreRedis, StoreMongo, StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("SESSION_STORE: unknown backend %q", c.SessionStore))
	}

	if c.SessionSecret == "" && !c.IsLocal() {
		errs = append(errs, errors.New("SESSION_SECRET is required"))
	}

	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT: %d out of range", c.Port))
	}

	return errors.Join(errs...)
}

// IsLocal is true for dev and test, where a throwaway session secret is fine.
func (c Config) IsLocal() bool {
	return c.Env == "dev" || c.Env == "test"
}

func (c Config) IsProd() bool {
	return c.Env == "prod"
}

func buildDBURL() string {
	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "memberhub")
	pass := getEnv("DB_PASSWORD", "memberhub")
	name := getEnv("DB_NAME", "memberhub")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

// buildMongoURI prefers MONGODB_URI and otherwise assembles an Atlas style
// SRV URI from host and credentials.
func buildMongoURI() string {
	if uri := os.Getenv("MONGODB_URI"); uri != "" {
		return uri
	}

	host := os.Getenv("MONGODB_HOST")
	if host == "" {
		return "mongodb://127.0.0.1:27017"
	}

	u := url.URL{
		Scheme:   "mongodb+srv",
		Host:     host,
		Path:     "/",
		RawQuery: "retryWrites=true&w=majority",
	}
	if user := os.Getenv("MONGODB_USER"); user != "" {
		u.User = url.UserPassword(user, os.Getenv("MONGODB_PASSWORD"))
	}
	return u.String()
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)

		if err != nil {
			slog.Warn("invalid integer in environment", "key", key, "value", v)
			return fallback
		}

		return num
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)

		if err != nil {
			slog.Warn("invalid duration in environment", "key", key, "value", v)
			return fallback
		}

		return d
	}
	return fallback
}
