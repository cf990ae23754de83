package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
)

// DefaultMaxFrameSize bounds a single encoded message.
const DefaultMaxFrameSize = 64 * 1024

var (
	// ErrMissingType indicates a frame parsed as JSON but carried no type.
	ErrMissingType = errors.New("message has no type")

	// ErrFrameTooLarge indicates a frame exceeded the codec's size limit.
	ErrFrameTooLarge = errors.New("frame too large")
)

// FrameCodec encodes messages as newline-delimited JSON and reassembles
// frames that arrive split across several Decode calls.
type FrameCodec struct {
	maxFrameSize int

	mu      sync.Mutex
	pending []byte
	discard bool // dropping the rest of an oversized frame
}

// NewFrameCodec creates a codec. maxFrameSize <= 0 uses DefaultMaxFrameSize.
func NewFrameCodec(maxFrameSize int) *FrameCodec {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &FrameCodec{maxFrameSize: maxFrameSize}
}

// Encode serializes msg into one frame.
func (c *FrameCodec) Encode(msg *Message) ([]byte, error) {
	if msg == nil {
		return nil, errors.New("nil message")
	}
	if msg.Type == "" {
		return nil, ErrMissingType
	}
	data, err := msg.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", msg.Type, err)
	}
	if len(data) >= c.maxFrameSize {
		return nil, fmt.Errorf("%s is %d bytes: %w", msg.Type, len(data), ErrFrameTooLarge)
	}
	return append(data, '\n'), nil
}

// Decode appends data to the reassembly buffer and returns every complete
// message in it. Bad frames are skipped; their errors are joined into the
// returned error alongside the good messages.
func (c *FrameCodec) Decode(data []byte) ([]*Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		msgs []*Message
		errs []error
	)

	c.pending = append(c.pending, data...)
	for {
		i := bytes.IndexByte(c.pending, '\n')
		if i < 0 {
			break
		}
		line := c.pending[:i]
		c.pending = c.pending[i+1:]

		if c.discard {
			c.discard = false
			continue
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if len(line) >= c.maxFrameSize {
			errs = append(errs, fmt.Errorf("%d byte frame: %w", len(line), ErrFrameTooLarge))
			continue
		}
		msg, err := ParseMessage(line)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		msgs = append(msgs, msg)
	}

	if len(c.pending) >= c.maxFrameSize {
		errs = append(errs, fmt.Errorf("%d byte partial frame: %w", len(c.pending), ErrFrameTooLarge))
		c.pending = nil
		c.discard = true
	}
	if len(c.pending) == 0 {
		c.pending = nil
	} else {
		// Compact so consumed frames are released.
		c.pending = append([]byte(nil), c.pending...)
	}

	return msgs, errors.Join(errs...)
}

// Buffered returns the number of bytes held for an incomplete frame.
func (c *FrameCodec) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Reset drops any partially received frame.
func (c *FrameCodec) Reset() {
	c.mu.Lock()
	c.pending = nil
	c.discard = false
	c.mu.Unlock()
}
