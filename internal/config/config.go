package config

import (
	"os"
	"strconv"
	"time"
)

type NotificationService struct {
	Port         string
	LogLevel     string
	LogDir       string
	RabbitMQCfg  RabbitMQConfig
	RedisCfg     RedisConfig
	GoogleConfig GoogleConfig
	DispatchCfg  DispatchConfig
}

type RabbitMQConfig struct {
	Enabled         bool
	Username        string
	Password        string
	Host            string
	Port            string
	QueueName       string
	DeadLetterQueue string
	PrefetchCount   int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
}

type GoogleConfig struct {
	FirebaseCredentials string
	FirebaseProjectID   string
}

type DispatchConfig struct {
	// Timeout bounds one dispatch, store reads and FCM send included.
	Timeout  time.Duration
	DedupTTL time.Duration
}

func New() *NotificationService {
	return &NotificationService{
		Port:     getEnvOrDefault("NOTIFICATION_SERVICE_PORT", "8088"),
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
		LogDir:   getEnvOrDefault("LOG_DIR", ""),
		RabbitMQCfg: RabbitMQConfig{
			Enabled:         getBoolOrDefault("RABBITMQ_ENABLED", false),
			Username:        getEnvOrDefault("RABBITMQ_USER", "admin"),
			Password:        getEnvOrDefault("RABBITMQ_PWD", "admin"),
			Host:            getEnvOrDefault("RABBITMQ_HOST", "rabbitmq"),
			Port:            getEnvOrDefault("RABBITMQ_PORT", "5672"),
			QueueName:       getEnvOrDefault("RABBITMQ_QUEUE", "chat.messages.created"),
			DeadLetterQueue: getEnvOrDefault("RABBITMQ_DLQ", "chat.messages.created.dlq"),
			PrefetchCount:   getIntOrDefault("RABBITMQ_PREFETCH", 10),
		},
		RedisCfg: RedisConfig{
			Enabled:  getBoolOrDefault("REDIS_ENABLED", false),
			Host:     getEnvOrDefault("REDIS_HOST", "localhost"),
			Port:     getEnvOrDefault("REDIS_PORT", "6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
		},
		GoogleConfig: GoogleConfig{
			FirebaseCredentials: getEnvOrDefault("FIREBASE_SERVICE_ACCOUNT_KEY", ""),
			FirebaseProjectID:   getEnvOrDefault("FIREBASE_PROJECT_ID", ""),
		},
		DispatchCfg: DispatchConfig{
			Timeout:  getDurationOrDefault("DISPATCH_TIMEOUT", 30*time.Second),
			DedupTTL: getDurationOrDefault("DEDUP_TTL", 24*time.Hour),
		},
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return defaultValue
}
