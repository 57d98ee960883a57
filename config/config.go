// Package config holds the immutable startup settings for GridClash servers and clients.
package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	gridlog "github.com/Jdcabreradev/gridclash/logger"
	"github.com/Jdcabreradev/gridclash/protocol"
	"github.com/Jdcabreradev/gridclash/reliability"
)

// ServerConfig holds configuration for the authoritative server
type ServerConfig struct {
	IP              string          // IP to bind
	Port            uint16          // Well-known UDP port
	LogMode         gridlog.LogMode // Logging verbosity
	LogDir          string          // Directory for log files (non-DEV modes)
	BroadcastPeriod time.Duration   // Snapshot tick period
	PlayerTimeout   time.Duration   // Silence after which a slot is freed
	PollInterval    time.Duration   // Read deadline of the receive loop
	WriteTimeout    time.Duration   // Per-datagram write deadline
	MaxMessageSize  int             // Largest datagram read or written
	JoinRate        float64         // Join requests per second allowed per address
	JoinBurst       int             // Join request burst per address
	ObserveAddr     string          // HTTP address of the metrics feed ("" disables it)
}

// DefaultServerConfig returns the protocol's design defaults (40 Hz broadcast)
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		IP:              "0.0.0.0",
		Port:            9999,
		LogMode:         gridlog.DEV,
		LogDir:          "./logs",
		BroadcastPeriod: 25 * time.Millisecond,
		PlayerTimeout:   5 * time.Second,
		PollInterval:    50 * time.Millisecond,
		WriteTimeout:    100 * time.Millisecond,
		MaxMessageSize:  2048,
		JoinRate:        5,
		JoinBurst:       10,
	}
}

// Address returns the host:port the server binds.
func (c *ServerConfig) Address() string {
	return net.JoinHostPort(c.IP, strconv.Itoa(int(c.Port)))
}

// Validate checks if the configuration is valid
func (c *ServerConfig) Validate() error {
	if c.BroadcastPeriod <= 0 {
		return fmt.Errorf("broadcastPeriod must be greater than 0")
	}
	if c.PlayerTimeout <= c.BroadcastPeriod {
		return fmt.Errorf("playerTimeout (%s) must exceed broadcastPeriod (%s)", c.PlayerTimeout, c.BroadcastPeriod)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("pollInterval must be greater than 0")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("writeTimeout must be greater than 0")
	}
	if c.MaxMessageSize < protocol.HeaderSize+128 {
		return fmt.Errorf("maxMessageSize %d too small for a snapshot", c.MaxMessageSize)
	}
	if c.JoinRate <= 0 || c.JoinBurst <= 0 {
		return fmt.Errorf("joinRate and joinBurst must be greater than 0")
	}
	if c.LogMode > gridlog.HIDDEN {
		return fmt.Errorf("invalid log mode: %d", c.LogMode)
	}
	return nil
}

// ClientConfig holds configuration for a player client
type ClientConfig struct {
	ServerAddr        string          // host:port of the server
	LogMode           gridlog.LogMode // Logging verbosity
	LogDir            string          // Directory for log files (non-DEV modes)
	PollInterval      time.Duration   // Read deadline of the network loop
	FrameInterval     time.Duration   // Render/interpolation step
	FadeDuration      time.Duration   // Time for a presented cell to fade fully in or out
	RetryInterval     time.Duration   // Resend period of a pending event
	MaxRetries        int             // Resends before an event is reported failed
	JoinRetryInterval time.Duration   // Resend period of join-request
	JoinAttempts      int             // Join-requests sent before giving up
	MaxMessageSize    int             // Largest datagram read or written
}

// DefaultClientConfig returns a reasonable default configuration
func DefaultClientConfig() *ClientConfig {
	retry := reliability.DefaultRetryPolicy()
	return &ClientConfig{
		ServerAddr:        "127.0.0.1:9999",
		LogMode:           gridlog.DEV,
		LogDir:            "./logs",
		PollInterval:      10 * time.Millisecond,
		FrameInterval:     33 * time.Millisecond,
		FadeDuration:      150 * time.Millisecond,
		RetryInterval:     retry.Interval,
		MaxRetries:        retry.MaxRetries,
		JoinRetryInterval: 500 * time.Millisecond,
		JoinAttempts:      10,
		MaxMessageSize:    2048,
	}
}

// RetryPolicy returns the event resend policy.
func (c *ClientConfig) RetryPolicy() reliability.RetryPolicy {
	return reliability.RetryPolicy{Interval: c.RetryInterval, MaxRetries: c.MaxRetries}
}

// Validate checks if the configuration is valid. An empty host in ServerAddr
// means the local machine.
func (c *ClientConfig) Validate() error {
	if _, _, err := net.SplitHostPort(c.ServerAddr); err != nil {
		return fmt.Errorf("invalid server address %q: %w", c.ServerAddr, err)
	}
	if c.PollInterval <= 0 || c.FrameInterval <= 0 {
		return fmt.Errorf("pollInterval and frameInterval must be greater than 0")
	}
	if c.FadeDuration < 0 {
		return fmt.Errorf("fadeDuration must not be negative")
	}
	if c.RetryInterval <= 0 {
		return fmt.Errorf("retryInterval must be greater than 0")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("maxRetries must not be negative")
	}
	if c.JoinRetryInterval <= 0 || c.JoinAttempts <= 0 {
		return fmt.Errorf("joinRetryInterval and joinAttempts must be greater than 0")
	}
	if c.MaxMessageSize < protocol.HeaderSize+128 {
		return fmt.Errorf("maxMessageSize %d too small for a snapshot", c.MaxMessageSize)
	}
	if c.LogMode > gridlog.HIDDEN {
		return fmt.Errorf("invalid log mode: %d", c.LogMode)
	}
	return nil
}
