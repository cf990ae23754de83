package sim

import (
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teslashibe/go-linkbot/pkg/protocol"
)

func newTestDaemon() *Daemon {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func request(t *testing.T, msgType protocol.MessageType, serial string, data interface{}) *protocol.Message {
	t.Helper()
	msg, err := protocol.NewRequest(msgType, serial, "req-"+string(msgType), data)
	require.NoError(t, err)
	return msg
}

func respondOne(t *testing.T, d *Daemon, req *protocol.Message) *protocol.Message {
	t.Helper()
	out := d.Respond(req)
	require.Len(t, out, 1)
	assert.Equal(t, protocol.TypeReply, out[0].Type)
	assert.Equal(t, req.RequestID, out[0].RequestID)
	assert.Equal(t, req.Serial, out[0].Serial)
	return out[0]
}

func TestNew(t *testing.T) {
	d := New(nil)
	require.NotNil(t, d)
	assert.Empty(t, d.GetRobotInfos())
	assert.Zero(t, d.GetStats().RequestsHandled)
}

func TestRespond_LEDAndBuzzer(t *testing.T) {
	d := newTestDaemon()

	reply := respondOne(t, d, request(t, protocol.TypeSetLEDColor, "ABCD", protocol.LEDColor{Red: 10, Green: 20, Blue: 30}))
	assert.Empty(t, reply.Error)
	respondOne(t, d, request(t, protocol.TypeSetBuzzerFrequency, "ABCD", protocol.BuzzerFrequency{Frequency: 440}))

	info, ok := d.GetRobotInfo("ABCD")
	require.True(t, ok)
	assert.Equal(t, protocol.LEDColor{Red: 10, Green: 20, Blue: 30}, info.LED)
	assert.Equal(t, float32(440), info.Buzzer)
}

func TestRespond_MoveAndEncoders(t *testing.T) {
	d := newTestDaemon()

	abs := protocol.NewGoal(1, protocol.GoalAbsolute, protocol.ControllerConstantVelocity)
	rel := protocol.NewGoal(0.5, protocol.GoalRelative, protocol.ControllerConstantVelocity)

	move, err := protocol.NewMoveRequest("ABCD", "m1", &abs, &rel, nil)
	require.NoError(t, err)
	respondOne(t, d, move)

	move, err = protocol.NewMoveRequest("ABCD", "m2", nil, &rel, nil)
	require.NoError(t, err)
	respondOne(t, d, move)

	reply := respondOne(t, d, request(t, protocol.TypeGetEncoderValues, "ABCD", nil))
	enc, err := reply.GetEncoderValues()
	require.NoError(t, err)
	assert.Equal(t, [protocol.NumJoints]float32{1, 1, 0}, enc.Angles)
}

func TestRespond_MoveEmitsJointEvents(t *testing.T) {
	d := newTestDaemon()
	respondOne(t, d, request(t, protocol.TypeEnableJointEvent, "ABCD", protocol.EventEnable{Enable: true}))

	g := protocol.NewGoal(1, protocol.GoalAbsolute, protocol.ControllerPID)
	inf := protocol.NewGoal(1, protocol.GoalInfinite, protocol.ControllerPID)
	move, err := protocol.NewMoveRequest("ABCD", "m1", nil, &inf, &g)
	require.NoError(t, err)

	out := d.Respond(move)
	require.Len(t, out, 2)
	assert.Equal(t, protocol.TypeReply, out[0].Type)
	assert.Equal(t, protocol.TypeJointEvent, out[1].Type)

	ev, err := out[1].GetJointEvent()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), ev.Joint)
	assert.Equal(t, protocol.JointHold, ev.State)
}

func TestRespond_ResetEncoderRevs(t *testing.T) {
	d := newTestDaemon()

	g := protocol.NewGoal(float32(4*math.Pi+1), protocol.GoalAbsolute, protocol.ControllerPID)
	move, _ := protocol.NewMoveRequest("ABCD", "m1", &g, nil, nil)
	respondOne(t, d, move)
	respondOne(t, d, request(t, protocol.TypeResetEncoderRevs, "ABCD", nil))

	info, _ := d.GetRobotInfo("ABCD")
	assert.InDelta(t, 1, info.Angles[0], 1e-5)
}

func TestRespond_MotorSpeedsAndStopAll(t *testing.T) {
	d := newTestDaemon()

	respondOne(t, d, request(t, protocol.TypeSetMotorSpeeds, "ABCD", protocol.MotorSpeeds{
		Mask:   0b101,
		Speeds: [protocol.NumJoints]float32{1, 2, 3},
	}))
	info, _ := d.GetRobotInfo("ABCD")
	assert.Equal(t, [protocol.NumJoints]float32{1, 0, 3}, info.Speeds)

	respondOne(t, d, request(t, protocol.TypeStopAll, "", nil))
	info, _ = d.GetRobotInfo("ABCD")
	assert.Equal(t, [protocol.NumJoints]float32{}, info.Speeds)
}

func TestRespond_Reads(t *testing.T) {
	d := newTestDaemon()

	reply := respondOne(t, d, request(t, protocol.TypeGetAccelerometer, "ABCD", nil))
	accel, err := reply.GetAccelerometer()
	require.NoError(t, err)
	assert.Equal(t, float32(1), accel.Z)

	tests := []struct {
		serial string
		want   protocol.FormFactor
	}{
		{"ABCD", protocol.FormFactorI},
		{"L123", protocol.FormFactorL},
		{"T999", protocol.FormFactorT},
	}
	for _, tt := range tests {
		reply := respondOne(t, d, request(t, protocol.TypeGetFormFactor, tt.serial, nil))
		ff, err := reply.GetFormFactor()
		require.NoError(t, err)
		assert.Equal(t, tt.want, ff.FormFactor, tt.serial)
	}
}

func TestRespond_ConnectRobot(t *testing.T) {
	d := newTestDaemon()

	reply := respondOne(t, d, request(t, protocol.TypeConnectRobot, "ABCD", nil))
	_, err := reply.GetConnectEvent()
	require.NoError(t, err)

	info, ok := d.GetRobotInfo("ABCD")
	require.True(t, ok)
	assert.True(t, info.Connected)
}

func TestRespond_Errors(t *testing.T) {
	d := newTestDaemon()

	tests := []struct {
		name string
		req  *protocol.Message
		want string
	}{
		{"robot command without serial", request(t, protocol.TypeSetLEDColor, "", protocol.LEDColor{}), "missing serial"},
		{"connect without serial", request(t, protocol.TypeConnectRobot, "", nil), "missing serial"},
		{"unknown command", request(t, protocol.MessageType("self_destruct"), "ABCD", nil), "unknown command"},
		{"bad payload", &protocol.Message{Type: protocol.TypeSetLEDColor, Serial: "ABCD", RequestID: "x", Data: []byte(`"red"`)}, "cannot unmarshal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := respondOne(t, d, tt.req)
			assert.Contains(t, reply.Error, tt.want)
		})
	}
	assert.Equal(t, uint64(len(tests)), d.GetStats().ErrorReplies)
}

func TestEventGating(t *testing.T) {
	d := newTestDaemon()

	_, ok, err := d.ButtonEvent("ABCD", protocol.ButtonA, protocol.ButtonDown)
	require.NoError(t, err)
	assert.False(t, ok, "unknown robot")

	respondOne(t, d, request(t, protocol.TypeEnableButtonEvent, "ABCD", protocol.EventEnable{Enable: true}))
	msg, ok, err := d.ButtonEvent("ABCD", protocol.ButtonA, protocol.ButtonDown)
	require.NoError(t, err)
	require.True(t, ok)
	ev, err := msg.GetButtonEvent()
	require.NoError(t, err)
	assert.Equal(t, protocol.ButtonA, ev.Button)

	_, ok, _ = d.AccelerometerEvent("ABCD", 0, 0, 1)
	assert.False(t, ok, "accelerometer stream is still off")

	respondOne(t, d, request(t, protocol.TypeEnableButtonEvent, "ABCD", protocol.EventEnable{Enable: false}))
	_, ok, _ = d.ButtonEvent("ABCD", protocol.ButtonA, protocol.ButtonDown)
	assert.False(t, ok)
}

func newTestApp(d *Daemon) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	d.RegisterRoutes(app)
	d.RegisterAPIRoutes(app.Group("/api"))
	return app
}

func TestAPIListRobots(t *testing.T) {
	d := newTestDaemon()
	respondOne(t, d, request(t, protocol.TypeConnectRobot, "ABCD", nil))
	app := newTestApp(d)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/robots/", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var body struct {
		Robots []RobotInfo `json:"robots"`
		Count  int         `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "ABCD", body.Robots[0].Serial)
}

func TestAPIStatsAndRobot(t *testing.T) {
	d := newTestDaemon()
	app := newTestApp(d)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/robots/stats", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/robots/NOPE", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestAPIInjectButton(t *testing.T) {
	d := newTestDaemon()
	app := newTestApp(d)

	post := func(serial, body string) (int, string) {
		req := httptest.NewRequest("POST", "/api/robots/"+serial+"/button", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)
		data, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(data)
	}

	status, _ := post("ABCD", `{"button":1,"state":1}`)
	assert.Equal(t, 404, status)

	respondOne(t, d, request(t, protocol.TypeGetFormFactor, "ABCD", nil))
	status, body := post("ABCD", `{"button":1,"state":1}`)
	assert.Equal(t, 200, status)
	assert.Contains(t, body, "disabled")

	respondOne(t, d, request(t, protocol.TypeEnableButtonEvent, "ABCD", protocol.EventEnable{Enable: true}))
	status, body = post("ABCD", `{"button":1,"state":1}`)
	assert.Equal(t, 200, status)
	assert.Contains(t, body, "sent")

	status, _ = post("ABCD", `not json`)
	assert.Equal(t, 400, status)
}

func TestUpgradeRequired(t *testing.T) {
	app := newTestApp(newTestDaemon())

	resp, err := app.Test(httptest.NewRequest("GET", "/ws/daemon", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}
