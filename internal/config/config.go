package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port string

	// Database
	SQLiteDBPath string

	// Classifier (OpenAI-compatible chat completions endpoint)
	ClassifierBaseURL     string
	ClassifierAPIKey      string
	ClassifierModel       string
	ClassifierTemperature float64
	ClassifierTimeout     time.Duration

	// Re-categorization engine
	BatchSize     int
	BatchInterval time.Duration

	// AMQP (optional lifecycle event publishing)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

func Load() *Config {
	cfg := &Config{
		Port:         getEnv("PORT", "8081"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/hamsterwallet.db"),

		ClassifierBaseURL:     getEnv("CLASSIFIER_BASE_URL", "https://api.openai.com/v1"),
		ClassifierAPIKey:      getEnv("CLASSIFIER_API_KEY", ""),
		ClassifierModel:       getEnv("CLASSIFIER_MODEL", "gpt-4o-mini"),
		ClassifierTemperature: getEnvFloat("CLASSIFIER_TEMPERATURE", 0.1),
		ClassifierTimeout:     getEnvDuration("CLASSIFIER_TIMEOUT", 120*time.Second),

		BatchSize:     getEnvInt("RECAT_BATCH_SIZE", 50),
		BatchInterval: getEnvDuration("RECAT_BATCH_INTERVAL", time.Second),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "hamsterwallet"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "recat_events"),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	// Validate SQLite configuration
	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	// Validate classifier endpoint
	if c.ClassifierBaseURL == "" {
		errors = append(errors, "classifier base URL cannot be empty")
	} else if parsedURL, err := url.Parse(c.ClassifierBaseURL); err != nil {
		errors = append(errors, fmt.Sprintf("invalid classifier base URL '%s': %v", c.ClassifierBaseURL, err))
	} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		errors = append(errors, fmt.Sprintf("invalid classifier URL scheme '%s': must be 'http' or 'https'", parsedURL.Scheme))
	}

	if c.ClassifierTemperature < 0 || c.ClassifierTemperature > 2 {
		errors = append(errors, fmt.Sprintf("invalid classifier temperature %v: must be between 0 and 2", c.ClassifierTemperature))
	}

	if c.ClassifierTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid classifier timeout %v: must be at least 1 second", c.ClassifierTimeout))
	}

	// Validate engine configuration
	if c.BatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid batch size %d: must be at least 1", c.BatchSize))
	} else if c.BatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid batch size %d: must be at most 1000", c.BatchSize))
	}

	if c.BatchInterval < 0 {
		errors = append(errors, fmt.Sprintf("invalid batch interval %v: must not be negative", c.BatchInterval))
	} else if c.BatchInterval > time.Minute {
		errors = append(errors, fmt.Sprintf("invalid batch interval %v: must be at most 1 minute", c.BatchInterval))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}

		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
