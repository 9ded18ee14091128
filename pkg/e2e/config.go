package e2e

import (
	"errors"
	"fmt"
	"time"
)

// Config tunes the handshake.
type Config struct {
	// PollInterval is the first delay between peer register reads.
	PollInterval time.Duration `yaml:"poll_interval"`
	// MaxPollInterval caps the exponential poll delay.
	MaxPollInterval time.Duration `yaml:"max_poll_interval"`
	// StallTimeout bounds every wait on the peer. Zero waits forever.
	StallTimeout time.Duration `yaml:"stall_timeout"`
	// AwaitPeerCompletion makes Run wait until the peer read our memory too.
	AwaitPeerCompletion bool `yaml:"await_peer_completion"`
	// Workers sizes the Suite worker pool.
	Workers int `yaml:"workers"`
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		PollInterval:        time.Millisecond,
		MaxPollInterval:     50 * time.Millisecond,
		StallTimeout:        30 * time.Second,
		AwaitPeerCompletion: true,
		Workers:             2,
	}
}

// VerifyConfig checks c for values the handshake cannot run with.
func VerifyConfig(c Config) error {
	var errs []error
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval))
	}
	if c.MaxPollInterval < c.PollInterval {
		errs = append(errs, fmt.Errorf("max_poll_interval %s is below poll_interval %s", c.MaxPollInterval, c.PollInterval))
	}
	if c.StallTimeout < 0 {
		errs = append(errs, fmt.Errorf("stall_timeout must not be negative, got %s", c.StallTimeout))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid e2e config: %w", err)
	}
	return nil
}
