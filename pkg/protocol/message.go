// Package protocol defines the wire messages exchanged between a daemon proxy
// and a Linkbot daemon.
// This package is shared between the proxy (pkg/linkbot) and the simulated
// daemon (pkg/sim).
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of a protocol message
type MessageType string

const (
	// Proxy → Daemon robot commands
	TypeSetLEDColor        MessageType = "set_led_color"
	TypeSetMotorSpeeds     MessageType = "set_motor_speeds"
	TypeMove               MessageType = "move"
	TypeStop               MessageType = "stop"
	TypeGetAccelerometer   MessageType = "get_accelerometer"
	TypeGetEncoderValues   MessageType = "get_encoder_values"
	TypeResetEncoderRevs   MessageType = "reset_encoder_revs"
	TypeSetBuzzerFrequency MessageType = "set_buzzer_frequency"
	TypeGetFormFactor      MessageType = "get_form_factor"

	// Proxy → Daemon event stream toggles
	TypeEnableAccelerometerEvent MessageType = "enable_accelerometer_event"
	TypeEnableButtonEvent        MessageType = "enable_button_event"
	TypeEnableJointEvent         MessageType = "enable_joint_event"

	// Proxy → Daemon session commands
	TypeConnectRobot MessageType = "connect_robot"
	TypeStopAll      MessageType = "stop_all"

	// Daemon → Proxy
	TypeReply              MessageType = "reply"               // Answer to any request, matched by RequestID
	TypeAccelerometerEvent MessageType = "accelerometer_event" // Unsolicited
	TypeButtonEvent        MessageType = "button_event"        // Unsolicited
	TypeJointEvent         MessageType = "joint_event"         // Unsolicited
	TypeConnectEvent       MessageType = "connect_event"       // Unsolicited
)

// IsEvent reports whether t is an unsolicited device event.
func (t MessageType) IsEvent() bool {
	switch t {
	case TypeAccelerometerEvent, TypeButtonEvent, TypeJointEvent, TypeConnectEvent:
		return true
	}
	return false
}

// Message is the envelope for every protocol frame
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"`         // Unix milliseconds
	Serial    string          `json:"serial,omitempty"`     // Target or source device; empty for session messages
	RequestID string          `json:"request_id,omitempty"` // Correlation key, echoed by replies
	Error     string          `json:"error,omitempty"`      // Set on failed replies
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// NewRequest creates a request addressed to serial (empty for session requests)
func NewRequest(msgType MessageType, serial, requestID string, data interface{}) (*Message, error) {
	msg, err := NewMessage(msgType, data)
	if err != nil {
		return nil, err
	}
	msg.Serial = serial
	msg.RequestID = requestID
	return msg, nil
}

// NewReply creates a successful reply to req carrying data
func NewReply(req *Message, data interface{}) (*Message, error) {
	msg, err := NewMessage(TypeReply, data)
	if err != nil {
		return nil, err
	}
	msg.Serial = req.Serial
	msg.RequestID = req.RequestID
	return msg, nil
}

// NewErrorReply creates a failed reply to req
func NewErrorReply(req *Message, reason string) *Message {
	return &Message{
		Type:      TypeReply,
		Timestamp: time.Now().UnixMilli(),
		Serial:    req.Serial,
		RequestID: req.RequestID,
		Error:     reason,
	}
}

// NewEvent creates an unsolicited event from serial
func NewEvent(msgType MessageType, serial string, data interface{}) (*Message, error) {
	msg, err := NewMessage(msgType, data)
	if err != nil {
		return nil, err
	}
	msg.Serial = serial
	return msg, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, ErrMissingType
	}
	return &msg, nil
}
