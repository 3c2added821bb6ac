package worker

import (
	"fmt"
	"time"
)

// Config holds the configuration for a job pool.
type Config struct {
	// Concurrency is the number of jobs processed in parallel.
	// Default: 4
	Concurrency int

	// JobTimeout is the maximum time a single attempt is allowed to run.
	// Default: 2 minutes
	JobTimeout time.Duration

	// MaxAttempts bounds how often a job failing with a retryable error runs.
	// Default: 3
	MaxAttempts int

	// RetryBackoff is the delay before the second attempt; it doubles on
	// every further attempt.
	// Default: 200 milliseconds
	RetryBackoff time.Duration
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Concurrency:  4,
		JobTimeout:   2 * time.Minute,
		MaxAttempts:  3,
		RetryBackoff: 200 * time.Millisecond,
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.Concurrency > 100 {
		return fmt.Errorf("concurrency too high (max 100), got %d", c.Concurrency)
	}
	if c.JobTimeout < time.Second {
		return fmt.Errorf("job timeout must be at least 1 second, got %v", c.JobTimeout)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff must not be negative, got %v", c.RetryBackoff)
	}
	return nil
}
