package linkbot

import (
	"log/slog"

	"github.com/teslashibe/go-linkbot/pkg/protocol"
)

// Joint bits for the mask arguments of Move, SetMotorSpeeds and Stop.
const (
	Joint1 uint8 = 1 << iota
	Joint2
	Joint3

	AllJoints = Joint1 | Joint2 | Joint3
)

// Robot issues commands to one Linkbot through its DaemonProxy. Every command
// returns as soon as the request is written; cb runs later, inside the
// Deliver call that carries the matching reply. A nil cb is allowed.
type Robot struct {
	serial  string
	daemon  *DaemonProxy
	logger  *slog.Logger
	events  *eventRegistry
	pending *pendingTable
}

func newRobot(d *DaemonProxy, serial string) *Robot {
	return &Robot{
		serial:  serial,
		daemon:  d,
		logger:  d.logger.With("serial", serial),
		events:  &eventRegistry{},
		pending: newPendingTable(),
	}
}

// Serial returns the robot's serial ID.
func (r *Robot) Serial() string {
	return r.serial
}

// Pending returns the number of this robot's commands awaiting a reply.
// Once the robot is released its commands are counted by
// DaemonProxy.Pending instead.
func (r *Robot) Pending() int {
	return r.pending.len()
}

// SetLEDColor sets the RGB LED.
func (r *Robot) SetLEDColor(red, green, blue uint8, cb func()) error {
	return r.issue(protocol.TypeSetLEDColor,
		func(requestID string) (*protocol.Message, error) {
			return protocol.NewLEDColorRequest(r.serial, requestID, red, green, blue)
		},
		ack(cb))
}

// SetMotorSpeeds sets the angular speed, in radians per second, that joints
// in mask use for subsequent moves.
func (r *Robot) SetMotorSpeeds(mask uint8, s1, s2, s3 float32, cb func()) error {
	return r.issue(protocol.TypeSetMotorSpeeds,
		func(requestID string) (*protocol.Message, error) {
			return protocol.NewMotorSpeedsRequest(r.serial, requestID, mask, [protocol.NumJoints]float32{s1, s2, s3})
		},
		ack(cb))
}

// Move moves the joints in mask to angles a1..a3, in radians, using the
// constant velocity controller. Joints also set in relativeMask move relative
// to their current position. cb runs once, when the whole move is
// acknowledged.
func (r *Robot) Move(mask, relativeMask uint8, a1, a2, a3 float32, cb func()) error {
	var goals [protocol.NumJoints]*protocol.Goal
	for i, angle := range [protocol.NumJoints]float32{a1, a2, a3} {
		bit := uint8(1) << i
		if mask&bit == 0 {
			continue
		}
		typ := protocol.GoalAbsolute
		if relativeMask&bit != 0 {
			typ = protocol.GoalRelative
		}
		g := protocol.NewGoal(angle, typ, protocol.ControllerConstantVelocity)
		goals[i] = &g
	}
	return r.MoveGoals(goals[0], goals[1], goals[2], cb)
}

// MoveGoals sends one move command with an explicit goal per joint. A nil goal
// leaves that joint alone.
func (r *Robot) MoveGoals(g1, g2, g3 *protocol.Goal, cb func()) error {
	return r.issue(protocol.TypeMove,
		func(requestID string) (*protocol.Message, error) {
			return protocol.NewMoveRequest(r.serial, requestID, g1, g2, g3)
		},
		ack(cb))
}

// Stop stops the joints in mask.
func (r *Robot) Stop(mask uint8, cb func()) error {
	return r.issue(protocol.TypeStop,
		func(requestID string) (*protocol.Message, error) {
			return protocol.NewStopRequest(r.serial, requestID, mask)
		},
		ack(cb))
}

// GetAccelerometer reads the accelerometer, in g.
func (r *Robot) GetAccelerometer(cb func(x, y, z float32)) error {
	return r.issue(protocol.TypeGetAccelerometer,
		func(requestID string) (*protocol.Message, error) {
			return protocol.NewRequest(protocol.TypeGetAccelerometer, r.serial, requestID, nil)
		},
		func(reply *protocol.Message) error {
			a, err := reply.GetAccelerometer()
			if err != nil {
				return err
			}
			if cb != nil {
				cb(a.X, a.Y, a.Z)
			}
			return nil
		})
}

// GetEncoderValues reads the joint angles, in radians, and the device-clock
// timestamp at which they were sampled.
func (r *Robot) GetEncoderValues(cb func(timestamp uint32, angles [protocol.NumJoints]float32)) error {
	return r.issue(protocol.TypeGetEncoderValues,
		func(requestID string) (*protocol.Message, error) {
			return protocol.NewRequest(protocol.TypeGetEncoderValues, r.serial, requestID, nil)
		},
		func(reply *protocol.Message) error {
			v, err := reply.GetEncoderValues()
			if err != nil {
				return err
			}
			if cb != nil {
				cb(v.Timestamp, v.Angles)
			}
			return nil
		})
}

// ResetEncoderRevs folds every joint's accumulated revolutions back into
// (-π, π].
func (r *Robot) ResetEncoderRevs(cb func()) error {
	return r.issue(protocol.TypeResetEncoderRevs,
		func(requestID string) (*protocol.Message, error) {
			return protocol.NewRequest(protocol.TypeResetEncoderRevs, r.serial, requestID, nil)
		},
		ack(cb))
}

// SetBuzzerFrequency sets the buzzer tone in hertz. 0 turns it off.
func (r *Robot) SetBuzzerFrequency(hz float32, cb func()) error {
	return r.issue(protocol.TypeSetBuzzerFrequency,
		func(requestID string) (*protocol.Message, error) {
			return protocol.NewBuzzerRequest(r.serial, requestID, hz)
		},
		ack(cb))
}

// GetFormFactor reads the robot's body type.
func (r *Robot) GetFormFactor(cb func(protocol.FormFactor)) error {
	return r.issue(protocol.TypeGetFormFactor,
		func(requestID string) (*protocol.Message, error) {
			return protocol.NewRequest(protocol.TypeGetFormFactor, r.serial, requestID, nil)
		},
		func(reply *protocol.Message) error {
			f, err := reply.GetFormFactor()
			if err != nil {
				return err
			}
			if cb != nil {
				cb(f.FormFactor)
			}
			return nil
		})
}

// SetAccelerometerEventHandler registers h and enables the accelerometer
// event stream, or with a nil h clears the handler and disables the stream.
// cb runs when the daemon acknowledges the toggle.
func (r *Robot) SetAccelerometerEventHandler(h AccelerometerHandler, cb func()) error {
	return setEventHandler(r, &r.events.accelerometer, h, h != nil, protocol.TypeEnableAccelerometerEvent, cb)
}

// SetButtonEventHandler registers h and enables button events, or with a nil
// h clears the handler and disables them.
func (r *Robot) SetButtonEventHandler(h ButtonHandler, cb func()) error {
	return setEventHandler(r, &r.events.button, h, h != nil, protocol.TypeEnableButtonEvent, cb)
}

// SetJointEventHandler registers h and enables joint state events, or with a
// nil h clears the handler and disables them.
func (r *Robot) SetJointEventHandler(h JointHandler, cb func()) error {
	return setEventHandler(r, &r.events.joint, h, h != nil, protocol.TypeEnableJointEvent, cb)
}

// SetConnectEventHandler registers the handler run when the daemon reports
// this robot connected, either acknowledging DaemonProxy.ConnectRobot or
// unsolicited. Nothing is sent.
func (r *Robot) SetConnectEventHandler(h ConnectHandler) {
	r.events.setConnect(h)
}

// setEventHandler installs h and sends the matching enable request. A failed
// enable puts the previous handler back unless another one was installed
// since; a failed disable leaves the slot cleared.
func setEventHandler[H any](r *Robot, slot *handlerSlot[H], h H, enable bool, msgType protocol.MessageType, cb func()) error {
	prev, gen := swapHandler(r.events, slot, h)
	err := r.setEventEnabled(msgType, enable, cb)
	if err != nil && enable {
		restoreHandler(r.events, slot, prev, gen)
	}
	return err
}

func (r *Robot) setEventEnabled(msgType protocol.MessageType, enable bool, cb func()) error {
	r.logger.Debug("toggling event stream", "type", msgType, "enable", enable)
	return r.issue(msgType,
		func(requestID string) (*protocol.Message, error) {
			return protocol.NewEventEnableRequest(msgType, r.serial, requestID, enable)
		},
		ack(cb))
}

func (r *Robot) issue(
	msgType protocol.MessageType,
	build func(requestID string) (*protocol.Message, error),
	complete func(reply *protocol.Message) error,
) error {
	return r.daemon.issue(r, r.serial, msgType, build, complete)
}

// ack adapts a no-result callback to a reply completion.
func ack(cb func()) func(*protocol.Message) error {
	return func(*protocol.Message) error {
		if cb != nil {
			cb()
		}
		return nil
	}
}
