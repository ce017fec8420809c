package main

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/mcdev12/streambid/internal/auction/coordinator"
)

// Config is the process configuration. Environment variables supply the
// connection endpoints; an optional YAML file tunes the auction engine.
type Config struct {
	Port string

	// RedisAddr empty selects the in-memory store (single instance only).
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// NATSURL empty disables the event bus; snapshots still reach local
	// WebSocket viewers through the in-process notifier.
	NATSURL string

	// DatabaseURL empty disables order persistence.
	DatabaseURL string

	Auction auctionConfig `yaml:"auction"`
}

type auctionConfig struct {
	MaxRetries    int  `yaml:"max_retries"`
	AutoAdvance   bool `yaml:"auto_advance"`
	TickBatchSize int  `yaml:"tick_batch_size"`
	Workers       int  `yaml:"workers"`
}

func loadConfig() (*Config, error) {
	config := &Config{
		Port:          getEnv("PORT", "8080"),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		NATSURL:       getEnv("NATS_URL", ""),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
	}

	if path := getEnv("CONFIG_PATH", ""); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if getEnv("AUTO_ADVANCE", "") == "true" {
		config.Auction.AutoAdvance = true
	}

	return config, nil
}

// coordinatorConfig converts the tuning section, falling back to defaults
// for unset fields.
func (c *Config) coordinatorConfig() coordinator.Config {
	config := coordinator.DefaultConfig()
	if c.Auction.MaxRetries > 0 {
		config.MaxRetries = c.Auction.MaxRetries
	}
	if c.Auction.TickBatchSize > 0 {
		config.TickBatchSize = c.Auction.TickBatchSize
	}
	if c.Auction.Workers > 0 {
		config.Workers = c.Auction.Workers
	}
	config.AutoAdvance = c.Auction.AutoAdvance
	return config
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
