package linkbot

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teslashibe/go-linkbot/pkg/protocol"
)

func TestRobot_MoveScenario(t *testing.T) {
	d, sink := newTestProxy(t, DefaultConfig())
	r, err := d.GetRobot("ABCD")
	require.NoError(t, err)

	calls := 0
	a1 := float32(math.Pi / 2)
	a2 := float32(math.Pi / 4)
	require.NoError(t, r.Move(0b011, 0b001, a1, a2, 0, func() { calls++ }))

	require.Equal(t, 1, sink.count(), "one move command for all joints")
	req := sink.last(t)
	assert.Equal(t, protocol.TypeMove, req.Type)

	move, err := req.GetMoveCommand()
	require.NoError(t, err)

	require.NotNil(t, move.Goals[0])
	assert.Equal(t, protocol.NewGoal(a1, protocol.GoalRelative, protocol.ControllerConstantVelocity), *move.Goals[0])
	require.NotNil(t, move.Goals[1])
	assert.Equal(t, protocol.NewGoal(a2, protocol.GoalAbsolute, protocol.ControllerConstantVelocity), *move.Goals[1])
	assert.Nil(t, move.Goals[2])

	require.NoError(t, d.Deliver(replyTo(t, req, nil)))
	assert.Equal(t, 1, calls)
}

func TestRobot_MoveMasks(t *testing.T) {
	tests := []struct {
		name         string
		mask         uint8
		relativeMask uint8
		want         [protocol.NumJoints]*protocol.GoalType
	}{
		{
			name: "no joints",
			mask: 0,
		},
		{
			name:         "relative bit without mask bit is ignored",
			mask:         Joint3,
			relativeMask: Joint1 | Joint3,
			want:         [protocol.NumJoints]*protocol.GoalType{nil, nil, ptr(protocol.GoalRelative)},
		},
		{
			name: "all absolute",
			mask: AllJoints,
			want: [protocol.NumJoints]*protocol.GoalType{
				ptr(protocol.GoalAbsolute), ptr(protocol.GoalAbsolute), ptr(protocol.GoalAbsolute),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, sink := newTestProxy(t, DefaultConfig())
			r, _ := d.GetRobot("ABCD")

			require.NoError(t, r.Move(tt.mask, tt.relativeMask, 1, 2, 3, nil))
			move, err := sink.last(t).GetMoveCommand()
			require.NoError(t, err)

			for i, want := range tt.want {
				if want == nil {
					assert.Nil(t, move.Goals[i], "joint %d", i+1)
					continue
				}
				require.NotNil(t, move.Goals[i], "joint %d", i+1)
				assert.Equal(t, *want, move.Goals[i].Type, "joint %d", i+1)
				assert.Equal(t, float32(i+1), move.Goals[i].Goal, "joint %d", i+1)
			}
		})
	}
}

func ptr[T any](v T) *T {
	return &v
}

func TestRobot_MoveGoals(t *testing.T) {
	d, sink := newTestProxy(t, DefaultConfig())
	r, _ := d.GetRobot("ABCD")

	g := protocol.NewGoal(1.5, protocol.GoalInfinite, protocol.ControllerSmooth)
	require.NoError(t, r.MoveGoals(nil, nil, &g, nil))

	move, err := sink.last(t).GetMoveCommand()
	require.NoError(t, err)
	assert.Nil(t, move.Goals[0])
	assert.Nil(t, move.Goals[1])
	assert.Equal(t, g, *move.Goals[2])
}

func TestRobot_SetMotorSpeeds(t *testing.T) {
	d, sink := newTestProxy(t, DefaultConfig())
	r, _ := d.GetRobot("ABCD")

	calls := 0
	require.NoError(t, r.SetMotorSpeeds(Joint1|Joint3, 0.5, 0, 1.5, func() { calls++ }))

	req := sink.last(t)
	speeds, err := req.GetMotorSpeeds()
	require.NoError(t, err)
	assert.Equal(t, Joint1|Joint3, speeds.Mask)
	assert.Equal(t, [protocol.NumJoints]float32{0.5, 0, 1.5}, speeds.Speeds)

	require.NoError(t, d.Deliver(replyTo(t, req, nil)))
	assert.Equal(t, 1, calls)
}

func TestRobot_ReadCommands(t *testing.T) {
	d, sink := newTestProxy(t, DefaultConfig())
	r, _ := d.GetRobot("ABCD")

	var accel [3]float32
	require.NoError(t, r.GetAccelerometer(func(x, y, z float32) { accel = [3]float32{x, y, z} }))
	require.NoError(t, d.Deliver(replyTo(t, sink.last(t), protocol.Accelerometer{X: 0.1, Y: -0.2, Z: 1})))
	assert.Equal(t, [3]float32{0.1, -0.2, 1}, accel)

	var ts uint32
	var angles [protocol.NumJoints]float32
	require.NoError(t, r.GetEncoderValues(func(timestamp uint32, a [protocol.NumJoints]float32) {
		ts = timestamp
		angles = a
	}))
	require.NoError(t, d.Deliver(replyTo(t, sink.last(t), protocol.EncoderValues{
		Timestamp: 1234,
		Angles:    [protocol.NumJoints]float32{0.5, 1, 1.5},
	})))
	assert.Equal(t, uint32(1234), ts)
	assert.Equal(t, [protocol.NumJoints]float32{0.5, 1, 1.5}, angles)

	form := protocol.FormFactorDongle
	require.NoError(t, r.GetFormFactor(func(f protocol.FormFactor) { form = f }))
	require.NoError(t, d.Deliver(replyTo(t, sink.last(t), protocol.FormFactorData{FormFactor: protocol.FormFactorL})))
	assert.Equal(t, protocol.FormFactorL, form)
}

func TestRobot_AckCommands(t *testing.T) {
	tests := []struct {
		name    string
		msgType protocol.MessageType
		issue   func(r *Robot, cb func()) error
	}{
		{"led", protocol.TypeSetLEDColor, func(r *Robot, cb func()) error { return r.SetLEDColor(1, 2, 3, cb) }},
		{"reset encoders", protocol.TypeResetEncoderRevs, func(r *Robot, cb func()) error { return r.ResetEncoderRevs(cb) }},
		{"buzzer", protocol.TypeSetBuzzerFrequency, func(r *Robot, cb func()) error { return r.SetBuzzerFrequency(440, cb) }},
		{"stop", protocol.TypeStop, func(r *Robot, cb func()) error { return r.Stop(Joint2, cb) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, sink := newTestProxy(t, DefaultConfig())
			r, _ := d.GetRobot("ABCD")

			calls := 0
			require.NoError(t, tt.issue(r, func() { calls++ }))
			req := sink.last(t)
			assert.Equal(t, tt.msgType, req.Type)
			assert.Equal(t, 0, calls)

			require.NoError(t, d.Deliver(replyTo(t, req, nil)))
			assert.Equal(t, 1, calls)
		})
	}
}

func TestRobot_NilCallbacks(t *testing.T) {
	d, sink := newTestProxy(t, DefaultConfig())
	r, _ := d.GetRobot("ABCD")

	require.NoError(t, r.GetAccelerometer(nil))
	require.NoError(t, d.Deliver(replyTo(t, sink.last(t), protocol.Accelerometer{})))

	require.NoError(t, r.GetEncoderValues(nil))
	require.NoError(t, d.Deliver(replyTo(t, sink.last(t), protocol.EncoderValues{})))

	require.NoError(t, r.GetFormFactor(nil))
	require.NoError(t, d.Deliver(replyTo(t, sink.last(t), protocol.FormFactorData{})))

	assert.Zero(t, r.Pending())
}

func TestRobot_EventHandlerLifecycle(t *testing.T) {
	d, sink := newTestProxy(t, DefaultConfig())
	r, _ := d.GetRobot("ABCD")

	var got []protocol.AccelerometerEvent
	enabled := 0
	require.NoError(t, r.SetAccelerometerEventHandler(func(ev protocol.AccelerometerEvent) {
		got = append(got, ev)
	}, func() { enabled++ }))

	req := sink.last(t)
	assert.Equal(t, protocol.TypeEnableAccelerometerEvent, req.Type)
	toggle, err := req.GetEventEnable()
	require.NoError(t, err)
	assert.True(t, toggle.Enable)

	require.NoError(t, d.Deliver(replyTo(t, req, nil)))
	assert.Equal(t, 1, enabled)

	sample := protocol.AccelerometerEvent{X: 0, Y: 0, Z: 1, Timestamp: 10}
	require.NoError(t, d.Deliver(eventFrame(t, protocol.TypeAccelerometerEvent, "ABCD", sample)))
	require.Len(t, got, 1)
	assert.Equal(t, sample, got[0])

	disabled := 0
	require.NoError(t, r.SetAccelerometerEventHandler(nil, func() { disabled++ }))
	req = sink.last(t)
	toggle, err = req.GetEventEnable()
	require.NoError(t, err)
	assert.False(t, toggle.Enable)
	assert.Equal(t, 2, sink.count(), "exactly one request per call")

	require.NoError(t, d.Deliver(replyTo(t, req, nil)))
	assert.Equal(t, 1, disabled)

	require.NoError(t, d.Deliver(eventFrame(t, protocol.TypeAccelerometerEvent, "ABCD", sample)))
	assert.Len(t, got, 1, "no handler after disable")
}

func TestRobot_EventGoesToCurrentHandler(t *testing.T) {
	d, _ := newTestProxy(t, DefaultConfig())
	r, _ := d.GetRobot("ABCD")

	var first, second int
	require.NoError(t, r.SetJointEventHandler(func(protocol.JointEvent) { first++ }, nil))
	require.NoError(t, r.SetJointEventHandler(func(protocol.JointEvent) { second++ }, nil))

	// Neither enable is acknowledged yet; events still reach the latest handler
	ev := protocol.JointEvent{Joint: 2, State: protocol.JointMoving, Timestamp: 5}
	require.NoError(t, d.Deliver(eventFrame(t, protocol.TypeJointEvent, "ABCD", ev)))
	assert.Equal(t, 0, first)
	assert.Equal(t, 1, second)
}

func TestRobot_EventWithoutHandlerIsDropped(t *testing.T) {
	d, _ := newTestProxy(t, DefaultConfig())
	_, _ = d.GetRobot("ABCD")

	err := d.Deliver(eventFrame(t, protocol.TypeButtonEvent, "ABCD", protocol.ButtonEvent{}))
	assert.NoError(t, err)
	assert.Zero(t, d.Stats().EventsDelivered)
}

func TestRobot_HandlerRestoredWhenEnableFails(t *testing.T) {
	d, sink := newTestProxy(t, DefaultConfig())
	r, _ := d.GetRobot("ABCD")

	var old, rejected int
	require.NoError(t, r.SetButtonEventHandler(func(protocol.ButtonEvent) { old++ }, nil))

	d.SetWriteCallback(nil)
	err := r.SetButtonEventHandler(func(protocol.ButtonEvent) { rejected++ }, nil)
	assert.ErrorIs(t, err, ErrNoWriteSink)

	require.NoError(t, d.Deliver(eventFrame(t, protocol.TypeButtonEvent, "ABCD", protocol.ButtonEvent{})))
	assert.Equal(t, 1, old)
	assert.Equal(t, 0, rejected)

	// Clearing works even when the disable cannot be sent
	assert.Error(t, r.SetButtonEventHandler(nil, nil))
	require.NoError(t, d.Deliver(eventFrame(t, protocol.TypeButtonEvent, "ABCD", protocol.ButtonEvent{})))
	assert.Equal(t, 1, old)
	assert.Equal(t, 1, sink.count())
}

func TestRobot_FailedEnableKeepsNewerHandler(t *testing.T) {
	d, err := NewDaemonProxy(DefaultConfig(), quietLogger())
	require.NoError(t, err)
	r, _ := d.GetRobot("ABCD")

	var rejected, newer int
	writes := 0
	d.SetWriteCallback(func([]byte) error {
		writes++
		if writes == 1 {
			// Another caller installs a handler while the first enable is
			// in flight, then the first enable fails
			require.NoError(t, r.SetButtonEventHandler(func(protocol.ButtonEvent) { newer++ }, nil))
			return errors.New("link down")
		}
		return nil
	})

	err = r.SetButtonEventHandler(func(protocol.ButtonEvent) { rejected++ }, nil)
	var sinkErr *SinkError
	require.ErrorAs(t, err, &sinkErr)

	require.NoError(t, d.Deliver(eventFrame(t, protocol.TypeButtonEvent, "ABCD", protocol.ButtonEvent{})))
	assert.Equal(t, 1, newer)
	assert.Zero(t, rejected)
}

func TestRestoreHandlerChecksGeneration(t *testing.T) {
	e := &eventRegistry{}
	first := ButtonHandler(func(protocol.ButtonEvent) {})

	prev, gen := swapHandler(e, &e.button, first)
	assert.Nil(t, prev)
	assert.True(t, restoreHandler(e, &e.button, prev, gen))
	assert.Nil(t, e.button.h)

	_, gen = swapHandler(e, &e.button, first)
	swapHandler(e, &e.button, ButtonHandler(func(protocol.ButtonEvent) {}))
	assert.False(t, restoreHandler(e, &e.button, nil, gen))
	assert.NotNil(t, e.button.h)
}

func TestRobot_HandlerMayReplaceItself(t *testing.T) {
	d, _ := newTestProxy(t, DefaultConfig())
	r, _ := d.GetRobot("ABCD")

	calls := 0
	require.NoError(t, r.SetButtonEventHandler(func(protocol.ButtonEvent) {
		calls++
		_ = r.SetButtonEventHandler(nil, nil)
	}, nil))

	ev := eventFrame(t, protocol.TypeButtonEvent, "ABCD", protocol.ButtonEvent{})
	require.NoError(t, d.Deliver(append(append([]byte(nil), ev...), ev...)))
	assert.Equal(t, 1, calls)
}

func TestRobot_BadEventPayload(t *testing.T) {
	d, _ := newTestProxy(t, DefaultConfig())
	r, _ := d.GetRobot("ABCD")
	require.NoError(t, r.SetButtonEventHandler(func(protocol.ButtonEvent) {
		t.Error("handler must not run")
	}, nil))

	bad := &protocol.Message{Type: protocol.TypeButtonEvent, Serial: "ABCD", Data: []byte(`[1,2]`)}
	err := d.Deliver(frame(t, bad))
	var decodeErr *DecodeError
	assert.ErrorAs(t, err, &decodeErr)
}

func TestRobot_Serial(t *testing.T) {
	d, _ := newTestProxy(t, DefaultConfig())
	r, _ := d.GetRobot("WXYZ")
	assert.Equal(t, "WXYZ", r.Serial())
}
