package config

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port string `mapstructure:"port"`
	} `mapstructure:"server"`
	Database struct {
		Host           string `mapstructure:"host"`
		Port           string `mapstructure:"port"`
		User           string `mapstructure:"user"`
		Password       string `mapstructure:"password"`
		Name           string `mapstructure:"name"`
		SSLMode        string `mapstructure:"sslmode"`
		MigrateOnStart bool   `mapstructure:"migrate_on_start"`
		MigrationsPath string `mapstructure:"migrations_path"`
	} `mapstructure:"database"`
	Redis struct {
		Host     string `mapstructure:"host"`
		Port     string `mapstructure:"port"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`
	JWT struct {
		SecretKey string `mapstructure:"secret_key"`
	} `mapstructure:"jwt"`
	Storage struct {
		// Driver is either "postgres" or "memory".
		Driver string `mapstructure:"driver"`
	} `mapstructure:"storage"`
	Transfer struct {
		DefaultMode        string        `mapstructure:"default_mode"`
		MaxRetries         int           `mapstructure:"max_retries"`
		RetryBaseDelay     time.Duration `mapstructure:"retry_base_delay"`
		LockTimeout        time.Duration `mapstructure:"lock_timeout"`
		IdempotencyLockTTL time.Duration `mapstructure:"idempotency_lock_ttl"`
		CacheTTL           time.Duration `mapstructure:"cache_ttl"`
	} `mapstructure:"transfer"`
	Exchange struct {
		BaseURL      string            `mapstructure:"base_url"`
		Timeout      time.Duration     `mapstructure:"timeout"`
		BaseCurrency string            `mapstructure:"base_currency"`
		Rates        map[string]string `mapstructure:"rates"`
	} `mapstructure:"exchange"`
	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	} `mapstructure:"kafka"`
	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
}

var AppConfig Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.migrate_on_start", false)
	v.SetDefault("database.migrations_path", "file://db/migrations")
	v.SetDefault("redis.host", "")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret_key", "")
	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("transfer.default_mode", "PESSIMISTIC")
	v.SetDefault("transfer.max_retries", 3)
	v.SetDefault("transfer.retry_base_delay", 50*time.Millisecond)
	v.SetDefault("transfer.lock_timeout", 5*time.Second)
	v.SetDefault("transfer.idempotency_lock_ttl", 30*time.Second)
	v.SetDefault("transfer.cache_ttl", 24*time.Hour)
	v.SetDefault("exchange.base_url", "")
	v.SetDefault("exchange.timeout", 3*time.Second)
	v.SetDefault("exchange.base_currency", "EUR")
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "transfers")
	v.SetDefault("log.level", "info")
}

// Load reads config.yml from path, overlaid with environment variables
// (database.host -> DATABASE_HOST). A missing config file is not an error.
func Load(path string) (Config, error) {
	// Values in .env only fill variables that are not already set.
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	var cfg Config
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func LoadConfig(path string) {
	cfg, err := Load(path)
	if err != nil {
		log.Fatalf("Unable to load configuration, %v", err)
	}
	AppConfig = cfg
}
