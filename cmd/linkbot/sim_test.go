package main

import (
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teslashibe/go-linkbot/internal/config"
	"github.com/teslashibe/go-linkbot/pkg/protocol"
	"github.com/teslashibe/go-linkbot/pkg/sim"
)

func startSimAPI(t *testing.T) (*sim.Daemon, config.File) {
	t.Helper()

	d := sim.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	d.RegisterAPIRoutes(app.Group("/api"))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go app.Listener(ln)
	t.Cleanup(func() { app.ShutdownWithTimeout(time.Second) })

	cfg := config.Default()
	cfg.SimAPIURL = "http://" + ln.Addr().String() + "/api"
	cfg.Serial = "ABCD"
	return d, cfg
}

func enable(t *testing.T, d *sim.Daemon, msgType protocol.MessageType) {
	t.Helper()
	req, err := protocol.NewEventEnableRequest(msgType, "ABCD", "r1", true)
	require.NoError(t, err)
	d.Respond(req)
}

func TestRunSimRobots(t *testing.T) {
	_, cfg := startSimAPI(t)
	assert.NoError(t, runSim(cfg, []string{"robots"}))
}

func TestRunSimPress(t *testing.T) {
	d, cfg := startSimAPI(t)

	// Unknown robot
	assert.Error(t, runSim(cfg, []string{"press", "1"}))

	// Known robot, stream off
	enable(t, d, protocol.TypeEnableAccelerometerEvent)
	assert.Error(t, runSim(cfg, []string{"press", "1"}))

	enable(t, d, protocol.TypeEnableButtonEvent)
	assert.NoError(t, runSim(cfg, []string{"press", "1"}))
	assert.Equal(t, uint64(0), d.GetStats().EventsSent, "no proxies connected")
}

func TestRunSimTilt(t *testing.T) {
	d, cfg := startSimAPI(t)
	enable(t, d, protocol.TypeEnableAccelerometerEvent)

	assert.NoError(t, runSim(cfg, []string{"tilt", "0", "0.5", "0.8"}))
	assert.Error(t, runSim(cfg, []string{"tilt", "0"}))
}

func TestRunSimUsage(t *testing.T) {
	cfg := config.Default()
	assert.Error(t, runSim(cfg, nil))
	assert.Error(t, runSim(cfg, []string{"explode"}))
}

func TestRunSimPressRejectsUnknownButton(t *testing.T) {
	d, cfg := startSimAPI(t)
	enable(t, d, protocol.TypeEnableButtonEvent)

	assert.Error(t, runSim(cfg, []string{"press", "3"}))
	assert.Error(t, runSim(cfg, []string{"press", "-1"}))
	assert.NoError(t, runSim(cfg, []string{"press", "2"}))
}
