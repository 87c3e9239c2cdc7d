package config

import "time"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth" validate:"required"`
	LLM       LLMConfig       `mapstructure:"llm" validate:"required"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" validate:"required"`
	Units     []UnitConfig    `mapstructure:"units" validate:"dive"`
	Storage   StorageConfig   `mapstructure:"storage" validate:"required"`
	Events    EventsConfig    `mapstructure:"events"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	LogFormat       string        `mapstructure:"log_format" validate:"required,oneof=json text"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// DatabaseConfig contains all database-related configuration settings.
// URL is required when the storage backend is postgres.
type DatabaseConfig struct {
	URL            string `mapstructure:"url" validate:"omitempty,url"`
	MigrateOnStart bool   `mapstructure:"migrate_on_start"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetime time.Duration `mapstructure:"token_lifetime" validate:"gt=0"`
}

// LLMConfig contains the Gemini integration settings.
type LLMConfig struct {
	GeminiAPIKey       string `mapstructure:"gemini_api_key" validate:"required"`
	MaxRetries         int    `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	RetryDelaySeconds  int    `mapstructure:"retry_delay_seconds" validate:"gte=1"`
	PromptTemplatePath string `mapstructure:"prompt_template_path" validate:"omitempty,file"`
}

// SchedulerConfig tunes unit acquisition and report retention.
type SchedulerConfig struct {
	AcquireRetries  int           `mapstructure:"acquire_retries" validate:"gte=0"`
	AcquireInterval time.Duration `mapstructure:"acquire_interval" validate:"gte=0"`
	Retention       time.Duration `mapstructure:"retention" validate:"gt=0"`
	SweepSchedule   string        `mapstructure:"sweep_schedule" validate:"required"`
}

// UnitConfig registers one backend unit at startup. For Gemini units the
// instance is the model name.
type UnitConfig struct {
	Capability string `mapstructure:"capability" validate:"required,oneof=predictor narrator"`
	Instance   string `mapstructure:"instance" validate:"required"`
}

// StorageConfig selects the report store and the artifact sources.
type StorageConfig struct {
	Backend          string        `mapstructure:"backend" validate:"required,oneof=postgres redis memory"`
	RedisAddr        string        `mapstructure:"redis_addr" validate:"required_if=Backend redis"`
	RedisTTL         time.Duration `mapstructure:"redis_ttl" validate:"gte=0"`
	ArtifactRoot     string        `mapstructure:"artifact_root"`
	MaxArtifactBytes int64         `mapstructure:"max_artifact_bytes" validate:"gt=0"`
	MinIO            MinIOConfig   `mapstructure:"minio"`
}

// MinIOConfig enables s3:// artifact references when Endpoint is set.
type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key" validate:"required_with=Endpoint"`
	SecretKey string `mapstructure:"secret_key" validate:"required_with=Endpoint"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// EventsConfig enables Kafka publishing of report events when brokers are set.
type EventsConfig struct {
	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	KafkaTopic   string   `mapstructure:"kafka_topic" validate:"required_with=KafkaBrokers"`
}

// ScoringConfig points at a custom rule file. Empty uses the built-in rules.
type ScoringConfig struct {
	RulesPath string `mapstructure:"rules_path" validate:"omitempty,file"`
}
