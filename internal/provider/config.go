package provider

import (
	"net/http"
	"time"
)

// Config holds the shared configuration for provider fetch clients
type Config struct {
	Timeout       time.Duration // Bound on each outbound request
	RetryAttempts int           // Transport retries per fetch
	RetryDelay    time.Duration // Delay between transport retries
	UserAgent     string        // User agent string for requests
}

// DefaultConfig returns a Config instance with default values
func DefaultConfig() *Config {
	return &Config{
		Timeout:       30 * time.Second,
		RetryAttempts: 2,
		RetryDelay:    500 * time.Millisecond,
		UserAgent:     "Openshelf/1.0 (+https://openshelf.dev/about-the-bot)",
	}
}

func (c *Config) httpClient() *http.Client {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
