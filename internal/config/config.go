package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	MongoDB  MongoDBConfig
	JWT      JWTConfig
	Engine   EngineConfig
	Notifier NotifierConfig
	LogMode  string
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port         string
	AllowedHosts []string
}

// MongoDBConfig holds MongoDB-specific configuration
type MongoDBConfig struct {
	URI      string
	Database string
}

// JWTConfig holds JWT-specific configuration for the admin routes
type JWTConfig struct {
	Secret    string
	ExpiresIn int
}

// EngineConfig holds the activation engine's tunables. Rule tables live in a
// separate declarative file referenced by RulesPath.
type EngineConfig struct {
	RulesPath              string
	SessionNudgeCap        int
	DismissalCooldown      time.Duration
	DeferredGlobalCooldown time.Duration
	ActivationWindowDays   int
	WriteRetryAttempts     int
	NudgeRetentionDays     int
	SweepBatchSize         int64
	SweepWorkers           int
	SweepSchedule          string // cron expression; empty disables the in-process job
}

// NotifierConfig holds notification sink configuration
type NotifierConfig struct {
	BaseURL string
	APIKey  string
	Mock    bool
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		// It's okay if config file is not found, we'll use environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// setDefaults sets default values for configuration
func setDefaults() {
	viper.SetDefault("Server.Port", "4000")
	viper.SetDefault("Server.AllowedHosts", []string{"localhost:3000"})
	viper.SetDefault("MongoDB.URI", "mongodb://localhost:27017")
	viper.SetDefault("MongoDB.Database", "dealvista-engagement")
	viper.SetDefault("JWT.ExpiresIn", 24*60*60) // 24 hours
	viper.SetDefault("Engine.RulesPath", "config/rules.yaml")
	viper.SetDefault("Engine.SessionNudgeCap", 2)
	viper.SetDefault("Engine.DismissalCooldown", 48*time.Hour)
	viper.SetDefault("Engine.DeferredGlobalCooldown", 48*time.Hour)
	viper.SetDefault("Engine.ActivationWindowDays", 14)
	viper.SetDefault("Engine.WriteRetryAttempts", 3)
	viper.SetDefault("Engine.NudgeRetentionDays", 30)
	viper.SetDefault("Engine.SweepBatchSize", 500)
	viper.SetDefault("Engine.SweepWorkers", 8)
	viper.SetDefault("Engine.SweepSchedule", "0 4 * * *") // daily, 04:00
	viper.SetDefault("Notifier.Mock", true)
	viper.SetDefault("LogMode", "development")
}
