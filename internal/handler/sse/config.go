package sse

import "time"

// Config holds configuration for SSE connections
type Config struct {
	// KeepAliveInterval is how often a comment line is written to keep
	// proxies from closing an idle stream
	KeepAliveInterval time.Duration

	// WriteTimeout bounds each event write; a client that stops reading
	// ends its stream once it elapses
	WriteTimeout time.Duration
}

// DefaultConfig returns the default SSE configuration
func DefaultConfig() *Config {
	return &Config{
		KeepAliveInterval: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}
