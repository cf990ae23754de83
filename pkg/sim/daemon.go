// Package sim provides a simulated Linkbot daemon for tests and demos.
//
// The daemon answers every request in pkg/protocol from in-memory robot state
// and can inject button and accelerometer events into enabled streams.
package sim

import (
	"errors"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-linkbot/pkg/protocol"
)

// robotState is the simulated state of one Linkbot
type robotState struct {
	serial     string
	formFactor protocol.FormFactor
	connected  bool
	led        protocol.LEDColor
	speeds     [protocol.NumJoints]float32
	angles     [protocol.NumJoints]float32
	buzzer     float32

	// Event streams
	accelEvents  bool
	buttonEvents bool
	jointEvents  bool
}

// formFactorFor picks a body type from the serial's first letter.
func formFactorFor(serial string) protocol.FormFactor {
	switch {
	case strings.HasPrefix(serial, "L"):
		return protocol.FormFactorL
	case strings.HasPrefix(serial, "T"):
		return protocol.FormFactorT
	}
	return protocol.FormFactorI
}

// Daemon is a simulated Linkbot daemon
type Daemon struct {
	logger *slog.Logger
	start  time.Time

	mu      sync.RWMutex
	robots  map[string]*robotState
	clients map[string]*clientConn

	// Stats
	requestsHandled atomic.Uint64
	repliesSent     atomic.Uint64
	eventsSent      atomic.Uint64
	errorReplies    atomic.Uint64
}

// New creates a simulated daemon
func New(logger *slog.Logger) *Daemon {
	if logger == nil {
		logger = slog.Default()
	}
	return &Daemon{
		logger:  logger.With("component", "sim"),
		start:   time.Now(),
		robots:  make(map[string]*robotState),
		clients: make(map[string]*clientConn),
	}
}

// clock returns the device clock in milliseconds since the daemon started
func (d *Daemon) clock() uint32 {
	return uint32(time.Since(d.start).Milliseconds())
}

// robot returns the state for serial, creating it on first reference.
// Callers hold d.mu.
func (d *Daemon) robot(serial string) *robotState {
	r, ok := d.robots[serial]
	if !ok {
		r = &robotState{
			serial:     serial,
			formFactor: formFactorFor(serial),
		}
		d.robots[serial] = r
		d.logger.Debug("robot discovered", "serial", serial)
	}
	return r
}

// Respond applies one request and returns the reply followed by any events
// it caused.
func (d *Daemon) Respond(req *protocol.Message) []*protocol.Message {
	d.requestsHandled.Add(1)

	out, err := d.respond(req)
	if err != nil {
		d.logger.Warn("request failed", "type", req.Type, "serial", req.Serial, "error", err)
		d.errorReplies.Add(1)
		return []*protocol.Message{protocol.NewErrorReply(req, err.Error())}
	}
	return out
}

var (
	errMissingSerial  = errors.New("missing serial")
	errUnknownCommand = errors.New("unknown command")
)

func (d *Daemon) respond(req *protocol.Message) ([]*protocol.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Session commands
	switch req.Type {
	case protocol.TypeStopAll:
		for _, r := range d.robots {
			r.speeds = [protocol.NumJoints]float32{}
		}
		return d.reply(req, nil)

	case protocol.TypeConnectRobot:
		if req.Serial == "" {
			return nil, errMissingSerial
		}
		d.robot(req.Serial).connected = true
		return d.reply(req, protocol.ConnectEvent{Timestamp: d.clock()})
	}

	if req.Serial == "" {
		return nil, errMissingSerial
	}
	r := d.robot(req.Serial)

	switch req.Type {
	case protocol.TypeSetLEDColor:
		led, err := req.GetLEDColor()
		if err != nil {
			return nil, err
		}
		r.led = *led
		return d.reply(req, nil)

	case protocol.TypeSetMotorSpeeds:
		s, err := req.GetMotorSpeeds()
		if err != nil {
			return nil, err
		}
		for i := range r.speeds {
			if s.Mask&(1<<i) != 0 {
				r.speeds[i] = s.Speeds[i]
			}
		}
		return d.reply(req, nil)

	case protocol.TypeMove:
		move, err := req.GetMoveCommand()
		if err != nil {
			return nil, err
		}
		return d.move(req, r, move)

	case protocol.TypeStop:
		if _, err := req.GetStopCommand(); err != nil {
			return nil, err
		}
		return d.reply(req, nil)

	case protocol.TypeGetAccelerometer:
		return d.reply(req, protocol.Accelerometer{X: 0, Y: 0, Z: 1})

	case protocol.TypeGetEncoderValues:
		return d.reply(req, protocol.EncoderValues{Timestamp: d.clock(), Angles: r.angles})

	case protocol.TypeResetEncoderRevs:
		for i, a := range r.angles {
			r.angles[i] = wrapAngle(a)
		}
		return d.reply(req, nil)

	case protocol.TypeSetBuzzerFrequency:
		b, err := req.GetBuzzerFrequency()
		if err != nil {
			return nil, err
		}
		r.buzzer = b.Frequency
		return d.reply(req, nil)

	case protocol.TypeGetFormFactor:
		return d.reply(req, protocol.FormFactorData{FormFactor: r.formFactor})

	case protocol.TypeEnableAccelerometerEvent, protocol.TypeEnableButtonEvent, protocol.TypeEnableJointEvent:
		toggle, err := req.GetEventEnable()
		if err != nil {
			return nil, err
		}
		switch req.Type {
		case protocol.TypeEnableAccelerometerEvent:
			r.accelEvents = toggle.Enable
		case protocol.TypeEnableButtonEvent:
			r.buttonEvents = toggle.Enable
		default:
			r.jointEvents = toggle.Enable
		}
		return d.reply(req, nil)
	}

	return nil, errUnknownCommand
}

// move applies goals instantly. With joint events enabled each moved joint
// reports JointHold after the reply.
func (d *Daemon) move(req *protocol.Message, r *robotState, move *protocol.MoveCommand) ([]*protocol.Message, error) {
	out, err := d.reply(req, nil)
	if err != nil {
		return nil, err
	}

	for i, g := range move.Goals {
		if g == nil {
			continue
		}
		switch g.Type {
		case protocol.GoalAbsolute:
			r.angles[i] = g.Goal
		case protocol.GoalRelative:
			r.angles[i] += g.Goal
		case protocol.GoalInfinite:
			// Keeps turning; the simulation has no notion of time passing
			continue
		}

		if r.jointEvents {
			ev, err := protocol.NewEvent(protocol.TypeJointEvent, r.serial, protocol.JointEvent{
				Joint:     uint32(i),
				State:     protocol.JointHold,
				Timestamp: d.clock(),
			})
			if err != nil {
				return nil, err
			}
			out = append(out, ev)
		}
	}
	return out, nil
}

func (d *Daemon) reply(req *protocol.Message, data interface{}) ([]*protocol.Message, error) {
	msg, err := protocol.NewReply(req, data)
	if err != nil {
		return nil, err
	}
	return []*protocol.Message{msg}, nil
}

// wrapAngle folds a into (-π, π].
func wrapAngle(a float32) float32 {
	w := math.Remainder(float64(a), 2*math.Pi)
	if w <= -math.Pi {
		w += 2 * math.Pi
	}
	return float32(w)
}

// ButtonEvent builds a button event for serial if its button stream is
// enabled. ok is false when the robot is unknown or the stream is off.
func (d *Daemon) ButtonEvent(serial string, button protocol.Button, state protocol.ButtonState) (msg *protocol.Message, ok bool, err error) {
	d.mu.RLock()
	r, exists := d.robots[serial]
	enabled := exists && r.buttonEvents
	d.mu.RUnlock()

	if !enabled {
		return nil, false, nil
	}
	msg, err = protocol.NewEvent(protocol.TypeButtonEvent, serial, protocol.ButtonEvent{
		Button:    button,
		State:     state,
		Timestamp: d.clock(),
	})
	return msg, err == nil, err
}

// AccelerometerEvent builds an accelerometer event for serial if its
// accelerometer stream is enabled.
func (d *Daemon) AccelerometerEvent(serial string, x, y, z float32) (msg *protocol.Message, ok bool, err error) {
	d.mu.RLock()
	r, exists := d.robots[serial]
	enabled := exists && r.accelEvents
	d.mu.RUnlock()

	if !enabled {
		return nil, false, nil
	}
	msg, err = protocol.NewEvent(protocol.TypeAccelerometerEvent, serial, protocol.AccelerometerEvent{
		X:         x,
		Y:         y,
		Z:         z,
		Timestamp: d.clock(),
	})
	return msg, err == nil, err
}

// RobotInfo contains the simulated state of a robot
type RobotInfo struct {
	Serial     string                      `json:"serial"`
	FormFactor string                      `json:"form_factor"`
	Connected  bool                        `json:"connected"`
	LED        protocol.LEDColor           `json:"led"`
	Angles     [protocol.NumJoints]float32 `json:"angles"`
	Speeds     [protocol.NumJoints]float32 `json:"speeds"`
	Buzzer     float32                     `json:"buzzer"`
}

// GetRobotInfos returns info about every known robot, sorted by serial
func (d *Daemon) GetRobotInfos() []RobotInfo {
	d.mu.RLock()
	infos := make([]RobotInfo, 0, len(d.robots))
	for _, r := range d.robots {
		infos = append(infos, RobotInfo{
			Serial:     r.serial,
			FormFactor: r.formFactor.String(),
			Connected:  r.connected,
			LED:        r.led,
			Angles:     r.angles,
			Speeds:     r.speeds,
			Buzzer:     r.buzzer,
		})
	}
	d.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].Serial < infos[j].Serial })
	return infos
}

// GetRobotInfo returns info about one robot
func (d *Daemon) GetRobotInfo(serial string) (RobotInfo, bool) {
	for _, info := range d.GetRobotInfos() {
		if info.Serial == serial {
			return info, true
		}
	}
	return RobotInfo{}, false
}

// Stats contains daemon statistics
type Stats struct {
	Robots          int    `json:"robots"`
	Clients         int    `json:"clients"`
	RequestsHandled uint64 `json:"requests_handled"`
	RepliesSent     uint64 `json:"replies_sent"`
	EventsSent      uint64 `json:"events_sent"`
	ErrorReplies    uint64 `json:"error_replies"`
}

// GetStats returns daemon statistics
func (d *Daemon) GetStats() Stats {
	d.mu.RLock()
	robots, clients := len(d.robots), len(d.clients)
	d.mu.RUnlock()

	return Stats{
		Robots:          robots,
		Clients:         clients,
		RequestsHandled: d.requestsHandled.Load(),
		RepliesSent:     d.repliesSent.Load(),
		EventsSent:      d.eventsSent.Load(),
		ErrorReplies:    d.errorReplies.Load(),
	}
}
