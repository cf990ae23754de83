package linkbot

import (
	"fmt"
	"time"

	"github.com/teslashibe/go-linkbot/pkg/protocol"
)

// Codec turns messages into wire frames and back. Decode may be handed a
// partial frame and must buffer it until the rest arrives.
type Codec interface {
	Encode(msg *protocol.Message) ([]byte, error)
	Decode(data []byte) ([]*protocol.Message, error)
}

// Config holds DaemonProxy configuration.
type Config struct {
	// CommandTimeout is how long a command may wait for its reply before
	// Sweep frees its slot. 0 disables stall detection.
	CommandTimeout time.Duration `yaml:"command_timeout" json:"command_timeout"`

	// MaxFrameSize bounds one encoded message for the default codec.
	// 0 uses protocol.DefaultMaxFrameSize.
	MaxFrameSize int `yaml:"max_frame_size" json:"max_frame_size"`

	// Codec overrides the newline-delimited JSON codec.
	Codec Codec `yaml:"-" json:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		CommandTimeout: 5 * time.Second,
		MaxFrameSize:   protocol.DefaultMaxFrameSize,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.CommandTimeout < 0 {
		return fmt.Errorf("command_timeout must not be negative, got %s", c.CommandTimeout)
	}
	if c.MaxFrameSize < 0 {
		return fmt.Errorf("max_frame_size must not be negative, got %d", c.MaxFrameSize)
	}
	return nil
}
