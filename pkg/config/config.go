package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Environment string `yaml:"environment"`
	Port        string `yaml:"port"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`

	DatabasePath       string `yaml:"database_path"`
	ModelsPath         string `yaml:"models_path"`
	MeasurementBackend string `yaml:"measurement_backend"`

	ClickHouseAddr string `yaml:"clickhouse_addr"`
	ClickHouseDB   string `yaml:"clickhouse_db"`
	ClickHouseUser string `yaml:"clickhouse_user"`
	ClickHousePass string `yaml:"clickhouse_pass"`

	TrainingWorkers       int    `yaml:"training_workers"`
	RetrainSchedule       string `yaml:"retrain_schedule"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`

	MQTTBroker          string `yaml:"mqtt_broker"`
	MQTTClientID        string `yaml:"mqtt_client_id"`
	MQTTUsername        string `yaml:"mqtt_username"`
	MQTTPassword        string `yaml:"mqtt_password"`
	MQTTTopic           string `yaml:"mqtt_topic"`
	MQTTFlushIntervalMS int    `yaml:"mqtt_flush_interval_ms"`

	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
}

// Measurement backends
const (
	BackendSQLite     = "sqlite"
	BackendClickHouse = "clickhouse"
)

// Defaults returns the built-in configuration
func Defaults() *Config {
	return &Config{
		Environment:           "development",
		Port:                  "8000",
		LogLevel:              "info",
		LogFormat:             "text",
		DatabasePath:          "data/db.sqlite",
		ModelsPath:            "model/",
		MeasurementBackend:    BackendSQLite,
		ClickHouseAddr:        "localhost:9000",
		ClickHouseDB:          "forecastd",
		ClickHouseUser:        "default",
		TrainingWorkers:       2,
		RequestTimeoutSeconds: 120,
		MQTTClientID:          "forecastd",
		MQTTTopic:             "forecastd/measurements/+",
		MQTTFlushIntervalMS:   500,
		CORSAllowedOrigins:    []string{"*"},
	}
}

// LoadConfig loads configuration from an optional .env file, an optional YAML file named
// by FORECASTD_CONFIG, and environment variables, in increasing order of precedence.
func LoadConfig() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	config := Defaults()

	if path := os.Getenv("FORECASTD_CONFIG"); path != "" {
		if err := config.loadFile(path); err != nil {
			return nil, err
		}
	}

	config.Environment = getEnv("ENVIRONMENT", config.Environment)
	config.Port = getEnv("PORT", config.Port)
	config.LogLevel = getEnv("LOG_LEVEL", config.LogLevel)
	config.LogFormat = getEnv("LOG_FORMAT", config.LogFormat)
	config.DatabasePath = getEnv("DATABASE_PATH", config.DatabasePath)
	config.ModelsPath = getEnv("MODELS_PATH", config.ModelsPath)
	config.MeasurementBackend = strings.ToLower(getEnv("MEASUREMENT_BACKEND", config.MeasurementBackend))
	config.ClickHouseAddr = getEnv("CLICKHOUSE_ADDR", config.ClickHouseAddr)
	config.ClickHouseDB = getEnv("CLICKHOUSE_DB", config.ClickHouseDB)
	config.ClickHouseUser = getEnv("CLICKHOUSE_USER", config.ClickHouseUser)
	config.ClickHousePass = getEnv("CLICKHOUSE_PASS", config.ClickHousePass)
	config.TrainingWorkers = getEnvAsInt("TRAINING_WORKERS", config.TrainingWorkers)
	config.RetrainSchedule = getEnv("RETRAIN_SCHEDULE", config.RetrainSchedule)
	config.RequestTimeoutSeconds = getEnvAsInt("REQUEST_TIMEOUT_SECONDS", config.RequestTimeoutSeconds)
	config.MQTTBroker = getEnv("MQTT_BROKER", config.MQTTBroker)
	config.MQTTClientID = getEnv("MQTT_CLIENT_ID", config.MQTTClientID)
	config.MQTTUsername = getEnv("MQTT_USERNAME", config.MQTTUsername)
	config.MQTTPassword = getEnv("MQTT_PASSWORD", config.MQTTPassword)
	config.MQTTTopic = getEnv("MQTT_TOPIC", config.MQTTTopic)
	config.MQTTFlushIntervalMS = getEnvAsInt("MQTT_FLUSH_INTERVAL_MS", config.MQTTFlushIntervalMS)
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		config.CORSAllowedOrigins = splitList(origins)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the values that have no sensible fallback
func (c *Config) Validate() error {
	if c.MeasurementBackend != BackendSQLite && c.MeasurementBackend != BackendClickHouse {
		return fmt.Errorf("MEASUREMENT_BACKEND must be %q or %q, got %q", BackendSQLite, BackendClickHouse, c.MeasurementBackend)
	}
	if c.TrainingWorkers < 1 {
		return fmt.Errorf("TRAINING_WORKERS must be at least 1, got %d", c.TrainingWorkers)
	}
	if c.MQTTFlushIntervalMS < 1 {
		return fmt.Errorf("MQTT_FLUSH_INTERVAL_MS must be at least 1, got %d", c.MQTTFlushIntervalMS)
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.ModelsPath == "" {
		return fmt.Errorf("MODELS_PATH is required")
	}
	return nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: failed to parse %s as int, using default: %v", key, err)
		return defaultValue
	}
	return value
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
