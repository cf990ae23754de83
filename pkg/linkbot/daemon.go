// Package linkbot is the client-side core of the Linkbot daemon protocol.
//
// A DaemonProxy turns Robot method calls into request messages handed to a
// caller-supplied write callback, and turns bytes handed to Deliver back into
// completion callbacks and event handler calls. The package starts no
// goroutines: every callback runs on the goroutine that called Deliver.
package linkbot

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/teslashibe/go-linkbot/pkg/protocol"
)

// WriteFunc sends one encoded message to the daemon.
type WriteFunc func(data []byte) error

// DaemonProxy is one session with a Linkbot daemon.
type DaemonProxy struct {
	cfg       Config
	codec     Codec
	logger    *slog.Logger
	sessionID string

	mu             sync.RWMutex
	write          WriteFunc
	robots         map[string]*Robot
	onStall        func(Stall)
	onCommandError func(*CommandError)

	// Session-scoped commands (connect_robot, stop_all)
	pending *pendingTable

	// Stats
	messagesSent     atomic.Uint64
	messagesReceived atomic.Uint64
	completed        atomic.Uint64
	eventsDelivered  atomic.Uint64
	routingMisses    atomic.Uint64
	decodeErrors     atomic.Uint64
	commandErrors    atomic.Uint64
	stalls           atomic.Uint64
}

// NewDaemonProxy creates a session. Install a write callback with
// SetWriteCallback before issuing commands.
func NewDaemonProxy(cfg Config, logger *slog.Logger) (*DaemonProxy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	codec := cfg.Codec
	if codec == nil {
		codec = protocol.NewFrameCodec(cfg.MaxFrameSize)
	}

	sessionID := uuid.New().String()

	return &DaemonProxy{
		cfg:       cfg,
		codec:     codec,
		logger:    logger.With("component", "linkbot", "session", sessionID),
		sessionID: sessionID,
		robots:    make(map[string]*Robot),
		pending:   newPendingTable(),
	}, nil
}

// SessionID returns the unique ID of this session.
func (d *DaemonProxy) SessionID() string {
	return d.sessionID
}

// SetWriteCallback installs the function used to send every outbound message,
// replacing any previous one. nil removes it.
func (d *DaemonProxy) SetWriteCallback(fn WriteFunc) {
	d.mu.Lock()
	d.write = fn
	d.mu.Unlock()
}

// OnStall sets the callback for commands freed by Sweep.
func (d *DaemonProxy) OnStall(callback func(Stall)) {
	d.mu.Lock()
	d.onStall = callback
	d.mu.Unlock()
}

// OnCommandError sets the callback for replies that carry an error.
func (d *DaemonProxy) OnCommandError(callback func(*CommandError)) {
	d.mu.Lock()
	d.onCommandError = callback
	d.mu.Unlock()
}

// GetRobot returns the Robot for serial, creating it on first use. Repeated
// calls with the same serial return the same *Robot, so every handle shares
// one set of pending commands and event handlers.
func (d *DaemonProxy) GetRobot(serial string) (*Robot, error) {
	if serial == "" {
		return nil, ErrEmptySerial
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if r, ok := d.robots[serial]; ok {
		return r, nil
	}

	r := newRobot(d, serial)
	d.robots[serial] = r
	d.logger.Debug("robot created", "serial", serial, "robots", len(d.robots))
	return r, nil
}

// ReleaseRobot removes serial from the registry. Commands still awaiting a
// reply move to the session, so their replies are routed by request id and
// Sweep still reports them. A released handle can keep issuing commands,
// which the session tracks the same way. Events for serial are dropped until
// GetRobot registers it again.
func (d *DaemonProxy) ReleaseRobot(serial string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.robots[serial]
	if !ok {
		return
	}
	delete(d.robots, serial)

	moved := r.pending.moveTo(d.pending)
	d.logger.Debug("robot released", "serial", serial, "pending", moved)
}

// Robots returns the registered serials in sorted order.
func (d *DaemonProxy) Robots() []string {
	d.mu.RLock()
	serials := make([]string, 0, len(d.robots))
	for s := range d.robots {
		serials = append(serials, s)
	}
	d.mu.RUnlock()

	sort.Strings(serials)
	return serials
}

// ConnectRobot asks the daemon to connect to serial. When the daemon
// acknowledges, the connect handler registered on that Robot (if any) runs,
// then cb. Register the handler before calling ConnectRobot.
func (d *DaemonProxy) ConnectRobot(serial string, cb func()) error {
	if serial == "" {
		return ErrEmptySerial
	}

	return d.issue(nil, serial, protocol.TypeConnectRobot,
		func(requestID string) (*protocol.Message, error) {
			return protocol.NewRequest(protocol.TypeConnectRobot, serial, requestID, nil)
		},
		func(reply *protocol.Message) error {
			ev, err := reply.GetConnectEvent()
			if err != nil {
				return err
			}
			if r := d.lookup(serial); r != nil {
				r.events.fireConnect(*ev)
			}
			if cb != nil {
				cb()
			}
			return nil
		})
}

// StopAll stops every robot connected to the daemon.
func (d *DaemonProxy) StopAll(cb func()) error {
	return d.issue(nil, "", protocol.TypeStopAll,
		func(requestID string) (*protocol.Message, error) {
			return protocol.NewRequest(protocol.TypeStopAll, "", requestID, nil)
		},
		ack(cb))
}

// Deliver hands bytes received from the daemon to the proxy. Every complete
// message is routed before Deliver returns; partial frames are kept for the
// next call. A *DecodeError is returned for bytes that could not be decoded
// or routed, but the session stays usable.
func (d *DaemonProxy) Deliver(data []byte) error {
	msgs, err := d.codec.Decode(data)

	var errs []error
	if err != nil {
		d.decodeErrors.Add(1)
		d.logger.Warn("failed to decode delivery", "error", err, "bytes", len(data))
		errs = append(errs, err)
	}

	for _, msg := range msgs {
		d.messagesReceived.Add(1)
		if err := d.route(msg); err != nil {
			d.decodeErrors.Add(1)
			d.logger.Warn("failed to route message",
				"type", msg.Type,
				"serial", msg.Serial,
				"request_id", msg.RequestID,
				"error", err,
			)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return &DecodeError{Err: errors.Join(errs...)}
	}
	return nil
}

// Sweep frees every command that has waited longer than
// Config.CommandTimeout as of now and reports it to the OnStall callback.
// Their completion callbacks will never fire. Sweep does nothing when the
// timeout is disabled.
func (d *DaemonProxy) Sweep(now time.Time) []Stall {
	if d.cfg.CommandTimeout <= 0 {
		return nil
	}
	cutoff := now.Add(-d.cfg.CommandTimeout)

	expired := d.pending.expire(cutoff)
	d.mu.RLock()
	robots := make([]*Robot, 0, len(d.robots))
	for _, r := range d.robots {
		robots = append(robots, r)
	}
	onStall := d.onStall
	d.mu.RUnlock()

	for _, r := range robots {
		expired = append(expired, r.pending.expire(cutoff)...)
	}
	if len(expired) == 0 {
		return nil
	}

	stalls := make([]Stall, 0, len(expired))
	for _, cmd := range expired {
		s := Stall{
			Serial:    cmd.serial,
			RequestID: cmd.requestID,
			Type:      cmd.msgType,
			Issued:    cmd.issued,
		}
		stalls = append(stalls, s)
		d.stalls.Add(1)
		d.logger.Warn("command stalled",
			"type", s.Type,
			"serial", s.Serial,
			"request_id", s.RequestID,
			"waited", now.Sub(s.Issued),
		)
		if onStall != nil {
			onStall(s)
		}
	}
	return stalls
}

// Pending returns the number of commands awaiting a reply across the session
// and every registered robot.
func (d *DaemonProxy) Pending() int {
	n := d.pending.len()

	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, r := range d.robots {
		n += r.pending.len()
	}
	return n
}

// issue encodes a request, records it as pending, and writes it. Commands of
// a registered robot are tracked in its table, everything else in the
// session's. The entry is recorded before the write so a synchronous
// transport may deliver the reply from inside the write callback. If it did
// and the write then fails, the command has completed and issue returns nil.
func (d *DaemonProxy) issue(
	r *Robot,
	serial string,
	msgType protocol.MessageType,
	build func(requestID string) (*protocol.Message, error),
	complete func(reply *protocol.Message) error,
) error {
	requestID := generateRequestID()

	msg, err := build(requestID)
	if err != nil {
		return &EncodeError{Type: msgType, Err: err}
	}
	data, err := d.codec.Encode(msg)
	if err != nil {
		return &EncodeError{Type: msgType, Err: err}
	}

	// Holding d.mu keeps ReleaseRobot from detaching r between the table
	// choice and the add.
	d.mu.RLock()
	write := d.write
	table := d.tableFor(r)
	if write != nil {
		table.add(&pendingCommand{
			requestID: requestID,
			serial:    serial,
			msgType:   msgType,
			issued:    time.Now(),
			complete:  complete,
		})
	}
	d.mu.RUnlock()

	if write == nil {
		return &SinkError{Type: msgType, Err: ErrNoWriteSink}
	}

	if err := write(data); err != nil {
		if !d.withdraw(table, requestID) {
			d.logger.Debug("write failed after reply was delivered",
				"type", msgType, "serial", serial, "request_id", requestID, "error", err)
			d.messagesSent.Add(1)
			return nil
		}
		return &SinkError{Type: msgType, Err: err}
	}

	d.messagesSent.Add(1)
	d.logger.Debug("command sent", "type", msgType, "serial", serial, "request_id", requestID)
	return nil
}

// tableFor returns the pending table for commands of r. Callers hold d.mu.
func (d *DaemonProxy) tableFor(r *Robot) *pendingTable {
	if r != nil && d.robots[r.serial] == r {
		return r.pending
	}
	return d.pending
}

// withdraw removes an unsent command. It reports false when the command is
// gone already, because its reply was delivered during the write.
func (d *DaemonProxy) withdraw(table *pendingTable, requestID string) bool {
	if _, ok := table.claim(requestID); ok {
		return true
	}
	// ReleaseRobot may have moved it
	_, ok := d.pending.claim(requestID)
	return ok
}

// lookup returns the registered robot for serial, or nil.
func (d *DaemonProxy) lookup(serial string) *Robot {
	if serial == "" {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.robots[serial]
}

// route dispatches one decoded message.
func (d *DaemonProxy) route(msg *protocol.Message) error {
	switch {
	case msg.Type == protocol.TypeReply:
		return d.routeReply(msg)
	case msg.Type.IsEvent():
		return d.routeEvent(msg)
	default:
		d.routingMiss(msg, "unexpected message type")
		return nil
	}
}

// routeReply claims the pending command matching msg and completes it. The
// robot named by the reply is checked first, then the session table, which
// also holds the commands of released robots.
func (d *DaemonProxy) routeReply(msg *protocol.Message) error {
	var cmd *pendingCommand
	ok := false
	if r := d.lookup(msg.Serial); r != nil {
		cmd, ok = r.pending.claim(msg.RequestID)
	}
	if !ok {
		cmd, ok = d.pending.claim(msg.RequestID)
	}
	if !ok {
		d.routingMiss(msg, "no pending command")
		return nil
	}

	if msg.Error != "" {
		cerr := &CommandError{
			Serial:    cmd.serial,
			RequestID: cmd.requestID,
			Type:      cmd.msgType,
			Reason:    msg.Error,
		}
		d.commandErrors.Add(1)
		d.logger.Warn("command failed", "type", cmd.msgType, "serial", cmd.serial, "reason", msg.Error)

		d.mu.RLock()
		onCommandError := d.onCommandError
		d.mu.RUnlock()
		if onCommandError != nil {
			onCommandError(cerr)
		}
		return nil
	}

	if err := cmd.complete(msg); err != nil {
		return fmt.Errorf("bad %s reply: %w", cmd.msgType, err)
	}
	d.completed.Add(1)
	return nil
}

// routeEvent hands an event to its robot. Events for unknown robots or
// without a registered handler are dropped.
func (d *DaemonProxy) routeEvent(msg *protocol.Message) error {
	r := d.lookup(msg.Serial)
	if r == nil {
		d.routingMiss(msg, "unknown robot")
		return nil
	}

	handled, err := r.events.dispatch(msg)
	if err != nil {
		return err
	}
	if handled {
		d.eventsDelivered.Add(1)
	} else {
		d.logger.Debug("event dropped, no handler", "type", msg.Type, "serial", msg.Serial)
	}
	return nil
}

func (d *DaemonProxy) routingMiss(msg *protocol.Message, reason string) {
	d.routingMisses.Add(1)
	d.logger.Debug("message dropped",
		"reason", reason,
		"type", msg.Type,
		"serial", msg.Serial,
		"request_id", msg.RequestID,
	)
}

// Stats contains session statistics
type Stats struct {
	Robots           int    `json:"robots"`
	Pending          int    `json:"pending"`
	MessagesSent     uint64 `json:"messages_sent"`
	MessagesReceived uint64 `json:"messages_received"`
	Completed        uint64 `json:"completed"`
	EventsDelivered  uint64 `json:"events_delivered"`
	RoutingMisses    uint64 `json:"routing_misses"`
	DecodeErrors     uint64 `json:"decode_errors"`
	CommandErrors    uint64 `json:"command_errors"`
	Stalls           uint64 `json:"stalls"`
}

// Stats returns session statistics
func (d *DaemonProxy) Stats() Stats {
	d.mu.RLock()
	robots := len(d.robots)
	d.mu.RUnlock()

	return Stats{
		Robots:           robots,
		Pending:          d.Pending(),
		MessagesSent:     d.messagesSent.Load(),
		MessagesReceived: d.messagesReceived.Load(),
		Completed:        d.completed.Load(),
		EventsDelivered:  d.eventsDelivered.Load(),
		RoutingMisses:    d.routingMisses.Load(),
		DecodeErrors:     d.decodeErrors.Load(),
		CommandErrors:    d.commandErrors.Load(),
		Stalls:           d.stalls.Load(),
	}
}
