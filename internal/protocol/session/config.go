package session

import (
	"math"
	"time"

	"github.com/danmuck/ledgerd/internal/protocol"
	"github.com/danmuck/ledgerd/internal/protocol/frame"
)

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// ServerConfig bounds one served connection.
type ServerConfig struct {
	MaxFrameBytes uint32
	// MaxResponseBytes bounds response frames, which echo the request.
	MaxResponseBytes uint32
	// IdleTimeout closes a connection with no frame in flight.
	IdleTimeout time.Duration
	// ReadTimeout bounds reading the rest of a frame once its first byte arrived.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// InitialLifetime is the terminator deadline of a fresh connection.
	InitialLifetime time.Duration
	Termination     TerminationDelays
}

// DefaultServerConfig mirrors the node defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		MaxFrameBytes:    frame.DefaultMaxFrameBytes,
		MaxResponseBytes: 16 * frame.DefaultMaxFrameBytes,
		IdleTimeout:      30 * time.Second,
		ReadTimeout:      10 * time.Second,
		WriteTimeout:     10 * time.Second,
		InitialLifetime:  10 * time.Second,
		Termination:      DefaultTerminationDelays(),
	}
}

// WithDefaults fills zero fields from DefaultServerConfig.
func (c ServerConfig) WithDefaults() ServerConfig {
	d := DefaultServerConfig()
	if c.MaxFrameBytes == 0 {
		c.MaxFrameBytes = d.MaxFrameBytes
	}
	if c.MaxResponseBytes == 0 {
		c.MaxResponseBytes = d.MaxResponseBytes
	}
	if floor := MinResponseBytes(c.MaxFrameBytes); c.MaxResponseBytes < floor {
		c.MaxResponseBytes = floor
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.InitialLifetime < 0 {
		c.InitialLifetime = 0
	}
	return c
}

// MinResponseBytes is the smallest response bound that still fits a failure
// echoing a request of maxFrameBytes.
func MinResponseBytes(maxFrameBytes uint32) uint32 {
	n := uint64(maxFrameBytes) + frame.LengthPrefixLen + protocol.FailureOverhead
	if n > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(n)
}

func (c ServerConfig) Limits() frame.Limits {
	return frame.Limits{MaxFrameBytes: c.MaxFrameBytes}
}

func (c ServerConfig) ResponseLimits() frame.Limits {
	return frame.Limits{MaxFrameBytes: c.MaxResponseBytes}
}

// ClientConfig defines client transport defaults.
type ClientConfig struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxFrameBytes  uint32
	// MaxResponseBytes bounds frames read back from the node.
	MaxResponseBytes uint32
	MaxAttempts      int
	Backoff          BackoffConfig
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ConnectTimeout:   5 * time.Second,
		ReadTimeout:      15 * time.Second,
		WriteTimeout:     15 * time.Second,
		MaxFrameBytes:    frame.DefaultMaxFrameBytes,
		MaxResponseBytes: 16 * frame.DefaultMaxFrameBytes,
		MaxAttempts:      3,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

func (c ClientConfig) WithDefaults() ClientConfig {
	d := DefaultClientConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.MaxFrameBytes == 0 {
		c.MaxFrameBytes = d.MaxFrameBytes
	}
	if c.MaxResponseBytes == 0 {
		c.MaxResponseBytes = d.MaxResponseBytes
	}
	if floor := MinResponseBytes(c.MaxFrameBytes); c.MaxResponseBytes < floor {
		c.MaxResponseBytes = floor
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = d.Backoff
	}
	return c
}

func (c ClientConfig) Limits() frame.Limits {
	return frame.Limits{MaxFrameBytes: c.MaxFrameBytes}
}

func (c ClientConfig) ResponseLimits() frame.Limits {
	return frame.Limits{MaxFrameBytes: c.MaxResponseBytes}
}
