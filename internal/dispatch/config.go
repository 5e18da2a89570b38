package dispatch

import (
	"time"

	"sortruns/internal/config"
)

// Config holds settings for the dispatch runner.
type Config struct {
	// Workers is the number of goroutines draining the queue.
	Workers int

	// QueueSize bounds the number of tasks waiting for a worker.
	QueueSize int

	// MaxRetries is the number of retry attempts after the first
	// failure of a task body.
	MaxRetries int

	// InitialBackoff is the first retry delay; subsequent delays grow
	// exponentially up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// TaskTimeout bounds a single attempt of a task body.
	TaskTimeout time.Duration

	// BreakerThreshold and BreakerCooldown configure the per-class
	// circuit breaker.
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// DefaultConfig returns the default runner configuration.
func DefaultConfig() Config {
	return Config{
		Workers:          4,
		QueueSize:        64,
		MaxRetries:       3,
		InitialBackoff:   500 * time.Millisecond,
		MaxBackoff:       10 * time.Second,
		TaskTimeout:      2 * time.Minute,
		BreakerThreshold: 5,
		BreakerCooldown:  30 * time.Second,
	}
}

// LoadConfigFromEnv reads the runner configuration from DISPATCH_*
// environment variables, falling back to defaults.
func LoadConfigFromEnv() Config {
	def := DefaultConfig()
	return Config{
		Workers:          config.GetIntEnv("DISPATCH_WORKERS", def.Workers),
		QueueSize:        config.GetIntEnv("DISPATCH_QUEUE_SIZE", def.QueueSize),
		MaxRetries:       config.GetIntEnv("DISPATCH_MAX_RETRIES", def.MaxRetries),
		InitialBackoff:   config.GetDurationEnv("DISPATCH_INITIAL_BACKOFF", def.InitialBackoff),
		MaxBackoff:       config.GetDurationEnv("DISPATCH_MAX_BACKOFF", def.MaxBackoff),
		TaskTimeout:      config.GetDurationEnv("DISPATCH_TASK_TIMEOUT", def.TaskTimeout),
		BreakerThreshold: config.GetIntEnv("DISPATCH_BREAKER_THRESHOLD", def.BreakerThreshold),
		BreakerCooldown:  config.GetDurationEnv("DISPATCH_BREAKER_COOLDOWN", def.BreakerCooldown),
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = def.QueueSize
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = def.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = def.MaxBackoff
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = def.TaskTimeout
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = def.BreakerThreshold
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = def.BreakerCooldown
	}
	return c
}
