package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	ServerPort string

	CartBackend   string // "redis" or "mongo"
	RedisAddr     string
	RedisPassword string
	MongoURI      string
	MongoDBName   string

	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	MigrationsPath   string

	KafkaBrokers []string

	JWTSecret     string
	SessionSecret string

	FunnelDebounce  time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// Load reads configuration from the environment with sane local defaults.
func Load() *Config {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("CART_BACKEND", "redis")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DB_NAME", "storefront")
	v.SetDefault("POSTGRES_HOST", "localhost")
	v.SetDefault("POSTGRES_PORT", 5432)
	v.SetDefault("POSTGRES_USER", "postgres")
	v.SetDefault("POSTGRES_PASSWORD", "postgres")
	v.SetDefault("POSTGRES_DB", "storefront")
	v.SetDefault("MIGRATIONS_PATH", "internal/repository/migrations")
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("JWT_SECRET", "dev-secret")
	v.SetDefault("SESSION_SECRET", "dev-session-secret")
	v.SetDefault("FUNNEL_DEBOUNCE_MS", 800)
	v.SetDefault("REQUEST_TIMEOUT_SECONDS", 30)
	v.SetDefault("SHUTDOWN_TIMEOUT_SECONDS", 10)

	return &Config{
		ServerPort:       v.GetString("SERVER_PORT"),
		CartBackend:      v.GetString("CART_BACKEND"),
		RedisAddr:        v.GetString("REDIS_ADDR"),
		RedisPassword:    v.GetString("REDIS_PASSWORD"),
		MongoURI:         v.GetString("MONGO_URI"),
		MongoDBName:      v.GetString("MONGO_DB_NAME"),
		PostgresHost:     v.GetString("POSTGRES_HOST"),
		PostgresPort:     v.GetInt("POSTGRES_PORT"),
		PostgresUser:     v.GetString("POSTGRES_USER"),
		PostgresPassword: v.GetString("POSTGRES_PASSWORD"),
		PostgresDB:       v.GetString("POSTGRES_DB"),
		MigrationsPath:   v.GetString("MIGRATIONS_PATH"),
		KafkaBrokers:     strings.Split(v.GetString("KAFKA_BROKERS"), ","),
		JWTSecret:        v.GetString("JWT_SECRET"),
		SessionSecret:    v.GetString("SESSION_SECRET"),
		FunnelDebounce:   time.Duration(v.GetInt("FUNNEL_DEBOUNCE_MS")) * time.Millisecond,
		RequestTimeout:   time.Duration(v.GetInt("REQUEST_TIMEOUT_SECONDS")) * time.Second,
		ShutdownTimeout:  time.Duration(v.GetInt("SHUTDOWN_TIMEOUT_SECONDS")) * time.Second,
	}
}
