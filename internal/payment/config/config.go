/**
 * @description
 * This package handles the configuration management for the payment service.
 * It uses the Viper library to read configuration from environment variables,
 * providing a centralized and straightforward way to manage application
 * settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the payment service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort            string `mapstructure:"SERVER_PORT"`
	DatabaseURL           string `mapstructure:"DATABASE_URL"`
	LedgerServiceURL      string `mapstructure:"LEDGER_SERVICE_URL"`
	LedgerInternalAPIKey  string `mapstructure:"LEDGER_INTERNAL_API_KEY"`
	InternalAPIKey        string `mapstructure:"INTERNAL_API_KEY"`
	RabbitMQURL           string `mapstructure:"RABBITMQ_URL"`
	ReconcileSchedule     string `mapstructure:"RECONCILE_SCHEDULE"`
	ReconcileGraceMinutes int    `mapstructure:"RECONCILE_GRACE_MINUTES"`
	LedgerCallTimeoutSecs int    `mapstructure:"LEDGER_CALL_TIMEOUT_SECONDS"`
	TransactionListLimit  int    `mapstructure:"TRANSACTION_LIST_LIMIT"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8082")
	viper.SetDefault("LEDGER_SERVICE_URL", "http://localhost:8081")
	viper.SetDefault("RECONCILE_SCHEDULE", "@every 2m")
	viper.SetDefault("RECONCILE_GRACE_MINUTES", 5)
	viper.SetDefault("LEDGER_CALL_TIMEOUT_SECONDS", 5)
	viper.SetDefault("TRANSACTION_LIST_LIMIT", 50)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL", "DATABASE_URL", "PAYMENT_DATABASE_URL")
	_ = viper.BindEnv("LEDGER_SERVICE_URL")
	_ = viper.BindEnv("LEDGER_INTERNAL_API_KEY")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "PAYMENT_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("RECONCILE_SCHEDULE")
	_ = viper.BindEnv("RECONCILE_GRACE_MINUTES")
	_ = viper.BindEnv("LEDGER_CALL_TIMEOUT_SECONDS")
	_ = viper.BindEnv("TRANSACTION_LIST_LIMIT")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
		err = nil
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	if strings.TrimSpace(config.InternalAPIKey) == "" {
		config.InternalAPIKey = strings.TrimSpace(os.Getenv("PAYMENT_SERVICE_INTERNAL_API_KEY"))
	}
	config.LedgerInternalAPIKey = strings.TrimSpace(config.LedgerInternalAPIKey)
	if config.LedgerInternalAPIKey == "" {
		config.LedgerInternalAPIKey = config.InternalAPIKey
	}

	if config.ReconcileGraceMinutes <= 0 {
		config.ReconcileGraceMinutes = 5
	}
	if config.LedgerCallTimeoutSecs <= 0 {
		config.LedgerCallTimeoutSecs = 5
	}
	if config.TransactionListLimit <= 0 {
		config.TransactionListLimit = 50
	}

	return
}
