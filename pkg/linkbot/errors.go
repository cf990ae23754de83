package linkbot

import (
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/go-linkbot/pkg/protocol"
)

// Sentinel errors for commonly checked conditions.
var (
	// ErrNoWriteSink indicates a command was issued before SetWriteCallback.
	ErrNoWriteSink = errors.New("no write callback installed")

	// ErrEmptySerial indicates GetRobot or ConnectRobot was given no serial.
	ErrEmptySerial = errors.New("empty robot serial")
)

// EncodeError indicates a command could not be serialized. Nothing was sent.
type EncodeError struct {
	Type protocol.MessageType
	Err  error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("failed to encode %s: %v", e.Type, e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

// SinkError indicates the write callback was missing or failed. The command
// is not pending and its callback will never fire.
type SinkError struct {
	Type protocol.MessageType
	Err  error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("failed to send %s: %v", e.Type, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

// DecodeError is returned by Deliver when some of the delivered bytes could
// not be decoded or routed. Messages that did decode were still routed.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode delivery: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// CommandError reports a reply that carried an error instead of a result.
// The command's callback does not fire.
type CommandError struct {
	Serial    string
	RequestID string
	Type      protocol.MessageType
	Reason    string
}

func (e *CommandError) Error() string {
	if e.Serial == "" {
		return fmt.Sprintf("%s failed: %s", e.Type, e.Reason)
	}
	return fmt.Sprintf("%s on %s failed: %s", e.Type, e.Serial, e.Reason)
}

// Stall describes a command that got no reply within Config.CommandTimeout.
type Stall struct {
	Serial    string
	RequestID string
	Type      protocol.MessageType
	Issued    time.Time
}
