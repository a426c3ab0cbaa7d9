package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Ledger   LedgerConfig
	Notifier NotifierConfig
	Report   ReportConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	Schema   string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// LedgerConfig controls the stock reservation engine.
type LedgerConfig struct {
	// LowStockThreshold is the global stock level at or below which a
	// low-stock alert is queued, once per crossing.
	LowStockThreshold int
	// ReserveTimeout bounds the whole check-and-decrement transaction,
	// including the wait for the row lock.
	ReserveTimeout time.Duration
	// RestockMaxRetries bounds the optimistic compare-and-set loop used
	// for seller stock edits.
	RestockMaxRetries int
}

// NotifierConfig controls email delivery by the dispatcher.
type NotifierConfig struct {
	MaxAttempts      int
	BackoffBase      time.Duration
	AttemptTimeout   time.Duration
	DispatchInterval time.Duration
}

// ReportConfig controls the scheduled analytics report job.
type ReportConfig struct {
	Cron    string
	Enabled bool
}

func Load() *Config {
	// Best effort: viper reads the same file, but plain os.Getenv
	// consumers should see it too.
	_ = godotenv.Load()

	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SERVER_ENV", "development")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_SCHEMA", "public")
	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("LOW_STOCK_THRESHOLD", 10)
	viper.SetDefault("RESERVE_TIMEOUT_MS", 5000)
	viper.SetDefault("RESTOCK_MAX_RETRIES", 3)
	viper.SetDefault("EMAIL_MAX_ATTEMPTS", 3)
	viper.SetDefault("EMAIL_BACKOFF_BASE_MS", 500)
	viper.SetDefault("EMAIL_ATTEMPT_TIMEOUT_MS", 10000)
	viper.SetDefault("DISPATCH_INTERVAL_MS", 15000)
	viper.SetDefault("REPORT_CRON", "0 6 * * *")
	viper.SetDefault("REPORT_ENABLED", false)

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: Could not read config file: %v", err)
	}

	return &Config{
		Server: ServerConfig{
			Port: viper.GetString("SERVER_PORT"),
			Env:  viper.GetString("SERVER_ENV"),
		},
		Database: DatabaseConfig{
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetString("DB_PORT"),
			User:     viper.GetString("DB_USER"),
			Password: viper.GetString("DB_PASSWORD"),
			Database: viper.GetString("DB_DATABASE"),
			Schema:   viper.GetString("DB_SCHEMA"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		Ledger: LedgerConfig{
			LowStockThreshold: viper.GetInt("LOW_STOCK_THRESHOLD"),
			ReserveTimeout:    time.Duration(viper.GetInt("RESERVE_TIMEOUT_MS")) * time.Millisecond,
			RestockMaxRetries: viper.GetInt("RESTOCK_MAX_RETRIES"),
		},
		Notifier: NotifierConfig{
			MaxAttempts:      viper.GetInt("EMAIL_MAX_ATTEMPTS"),
			BackoffBase:      time.Duration(viper.GetInt("EMAIL_BACKOFF_BASE_MS")) * time.Millisecond,
			AttemptTimeout:   time.Duration(viper.GetInt("EMAIL_ATTEMPT_TIMEOUT_MS")) * time.Millisecond,
			DispatchInterval: time.Duration(viper.GetInt("DISPATCH_INTERVAL_MS")) * time.Millisecond,
		},
		Report: ReportConfig{
			Cron:    viper.GetString("REPORT_CRON"),
			Enabled: viper.GetBool("REPORT_ENABLED"),
		},
	}
}
