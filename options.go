package gnssflash

import (
	"encoding/binary"
	"fmt"
	"time"
)

// TransferConfig holds the per-session protocol parameters.
type TransferConfig struct {
	// ChunkSize is the payload size of one packet, at most MaxChunkSize
	ChunkSize int

	// MaxRetries is the number of resends allowed for one chunk
	MaxRetries int

	// AckTimeout bounds the wait for one acknowledgement
	AckTimeout time.Duration

	// PollInterval is the pause after a read that returned nothing
	PollInterval time.Duration

	// ByteOrder is the order of multi-byte header fields expected by the DA
	ByteOrder binary.ByteOrder

	// Progress is called after every acknowledged chunk (optional)
	Progress ProgressFunc
}

func defaultTransferConfig() TransferConfig {
	return TransferConfig{
		ChunkSize:    1024,
		MaxRetries:   3,
		AckTimeout:   time.Second,
		PollInterval: time.Millisecond,
		ByteOrder:    binary.BigEndian,
	}
}

func (c TransferConfig) validate() error {
	if c.ChunkSize <= 0 || c.ChunkSize > MaxChunkSize {
		return fmt.Errorf("%w: chunk size %d not in 1..%d", ErrInvalidConfig, c.ChunkSize, MaxChunkSize)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: negative retry count %d", ErrInvalidConfig, c.MaxRetries)
	}
	if c.AckTimeout < time.Millisecond {
		return fmt.Errorf("%w: ack timeout %v below 1ms", ErrInvalidConfig, c.AckTimeout)
	}
	if c.ByteOrder == nil {
		return fmt.Errorf("%w: byte order not set", ErrInvalidConfig)
	}
	return nil
}

// Option adjusts a TransferConfig.
type Option func(*TransferConfig)

// WithChunkSize sets the payload size of one packet.
//
// Example:
//
//	session := gnssflash.NewWriteSession(link, gnssflash.CommandWrite, 0, source,
//	    gnssflash.WithChunkSize(4096),
//	)
func WithChunkSize(size int) Option {
	return func(c *TransferConfig) {
		c.ChunkSize = size
	}
}

// WithRetries sets how many times one chunk may be resent.
func WithRetries(retries int) Option {
	return func(c *TransferConfig) {
		c.MaxRetries = retries
	}
}

// WithAckTimeout sets how long to wait for one acknowledgement.
func WithAckTimeout(timeout time.Duration) Option {
	return func(c *TransferConfig) {
		c.AckTimeout = timeout
	}
}

func WithPollInterval(interval time.Duration) Option {
	return func(c *TransferConfig) {
		c.PollInterval = interval
	}
}

func WithByteOrder(order binary.ByteOrder) Option {
	return func(c *TransferConfig) {
		c.ByteOrder = order
	}
}

// WithProgress sets the progress callback. It runs on the session goroutine
// and should return quickly.
func WithProgress(fn ProgressFunc) Option {
	return func(c *TransferConfig) {
		c.Progress = fn
	}
}
