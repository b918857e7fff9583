package ota

import (
	"go.uber.org/zap"
)

const (
	// DefaultChunkSize is the payload write size the device firmware reads with.
	DefaultChunkSize = 1024
	// DefaultAckBufferSize bounds the single read of the header reply.
	DefaultAckBufferSize = 64
)

// Config holds the engine configuration.
type Config struct {
	// ChunkSize is the maximum payload size per write
	ChunkSize int

	// AckBufferSize is the read size for the header acknowledgment
	AckBufferSize int

	// ProgressCallback is called after every chunk and at completion (optional)
	ProgressCallback ProgressCallback

	// Logger is used for logging operations
	Logger *zap.Logger
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		ChunkSize:     DefaultChunkSize,
		AckBufferSize: DefaultAckBufferSize,
		Logger:        zap.NewNop(),
	}
}

// Option is a functional option for configuring the Engine.
type Option func(*Config)

// WithChunkSize sets the maximum payload size per write. Non-positive
// values are ignored.
//
// Example:
//
//	engine := ota.NewEngine(ota.WithChunkSize(4096))
func WithChunkSize(size int) Option {
	return func(c *Config) {
		if size > 0 {
			c.ChunkSize = size
		}
	}
}

// WithAckBufferSize sets the read size used for the header reply.
func WithAckBufferSize(size int) Option {
	return func(c *Config) {
		if size > 0 {
			c.AckBufferSize = size
		}
	}
}

// WithProgressCallback sets a callback function to track transfer progress.
//
// Example:
//
//	engine := ota.NewEngine(
//	    ota.WithProgressCallback(func(p ota.Progress) {
//	        fmt.Printf("\r%5.1f%%", p.Percentage)
//	    }),
//	)
func WithProgressCallback(callback ProgressCallback) Option {
	return func(c *Config) {
		c.ProgressCallback = callback
	}
}

// WithLogger sets the logger for engine operations.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}
