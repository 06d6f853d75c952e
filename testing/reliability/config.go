// Package reliability stresses flamez with misuse, handler failures and
// very deep or wide traces. Tests are skipped unless
// FLAMEZ_RELIABILITY_LEVEL is "basic" or "stress".
package reliability

import (
	"os"
	"strconv"
)

// ReliabilityConfig holds configuration for reliability testing.
type ReliabilityConfig struct {
	Level         string // "basic" or "stress"
	MaxGoroutines int    // Maximum goroutines for concurrent tests
	MaxDepth      int    // Deepest call stack recorded
	MaxWidth      int    // Most distinct children under one frame
}

// getReliabilityConfig reads configuration from environment variables.
func getReliabilityConfig() ReliabilityConfig {
	config := ReliabilityConfig{
		Level:         getEnv("FLAMEZ_RELIABILITY_LEVEL", ""),
		MaxGoroutines: parseInt(getEnv("FLAMEZ_RELIABILITY_MAX_GOROUTINES", "64"), 64),
		MaxDepth:      parseInt(getEnv("FLAMEZ_RELIABILITY_MAX_DEPTH", "2000"), 2000),
		MaxWidth:      parseInt(getEnv("FLAMEZ_RELIABILITY_MAX_WIDTH", "5000"), 5000),
	}
	if config.Level == "stress" {
		config.MaxGoroutines *= 4
		config.MaxDepth *= 5
		config.MaxWidth *= 2
	}
	return config
}

// getEnv returns environment variable value or default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseInt parses a positive integer with a fallback.
func parseInt(s string, fallback int) int {
	if value, err := strconv.Atoi(s); err == nil && value > 0 {
		return value
	}
	return fallback
}
