package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	RabbitMQ RabbitMQConfig
	Server   ServerConfig
	Redis    RedisConfig
	Postgres PostgresConfig
	Kafka    KafkaConfig
	MQTT     MQTTConfig
	JWT      JWTConfig
	Tracking TrackingConfig
	LogLevel slog.Level
}

type RabbitMQConfig struct {
	URL          string
	ExchangeName string
}

type ServerConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxConnections int
	AccessLog      bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	DSN string
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type MQTTConfig struct {
	Broker   string
	ClientID string
	Topic    string
}

type JWTConfig struct {
	SecretKey string
}

type TrackingConfig struct {
	PositionTTL     time.Duration
	SweepInterval   time.Duration
	OutboxSize      int
	EventBuffer     int
	HealthInterval  time.Duration
	RefreshInterval time.Duration
	ZoneSeedFile    string
}

// LoadConfig reads .env if present, then the environment. An empty backend
// address disables that backend.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	return &Config{
		RabbitMQ: RabbitMQConfig{
			URL:          getEnv("RABBITMQ_URL", ""),
			ExchangeName: getEnv("RABBITMQ_EXCHANGE", "tracking_events"),
		},
		Server: ServerConfig{
			Port:           getEnv("SERVER_PORT", "9000"),
			ReadTimeout:    getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:   getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			MaxConnections: getInt("SERVER_MAX_CONNECTIONS", 10000),
			AccessLog:      getEnv("SERVER_ACCESS_LOG", "true") == "true",
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0),
		},
		Postgres: PostgresConfig{
			DSN: getEnv("POSTGRES_DSN", ""),
		},
		Kafka: KafkaConfig{
			Brokers: getList("KAFKA_BROKERS"),
			Topic:   getEnv("KAFKA_TOPIC", "tracking_events"),
		},
		MQTT: MQTTConfig{
			Broker:   getEnv("MQTT_BROKER", ""),
			ClientID: getEnv("MQTT_CLIENT_ID", "tracking-service"),
			Topic:    getEnv("MQTT_TOPIC", "tracking/+/location"),
		},
		JWT: JWTConfig{
			SecretKey: getEnv("JWT_SECRET_KEY", ""),
		},
		Tracking: TrackingConfig{
			PositionTTL:     getDuration("POSITION_TTL", 15*time.Minute),
			SweepInterval:   getDuration("POSITION_SWEEP_INTERVAL", time.Minute),
			OutboxSize:      getInt("OUTBOX_SIZE", 64),
			EventBuffer:     getInt("EVENT_BUFFER", 1024),
			HealthInterval:  getDuration("HEALTH_CHECK_INTERVAL", 10*time.Second),
			RefreshInterval: getDuration("GEOFENCE_REFRESH_INTERVAL", 30*time.Second),
			ZoneSeedFile:    getEnv("GEOFENCE_SEED_FILE", ""),
		},
		LogLevel: getLevel("LOG_LEVEL", slog.LevelInfo),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return v
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return v
}

func getList(key string) []string {
	var out []string
	for _, s := range strings.Split(os.Getenv(key), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func getLevel(key string, defaultValue slog.Level) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(os.Getenv(key))); err != nil {
		return defaultValue
	}
	return l
}
