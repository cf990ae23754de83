// linkbot: Command-line client for a Linkbot daemon
// Connects to one robot through a DaemonProxy and issues a single command
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/teslashibe/go-linkbot/internal/config"
	applog "github.com/teslashibe/go-linkbot/internal/log"
	"github.com/teslashibe/go-linkbot/pkg/linkbot"
	"github.com/teslashibe/go-linkbot/pkg/protocol"
	"github.com/teslashibe/go-linkbot/pkg/transport"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: linkbot [flags] <command> [args]

Commands:
  led R G B            set the LED color (0-255)
  move A1 A2 A3        move joints to absolute angles in degrees
  speeds S1 S2 S3      set joint speeds in degrees per second
  stop                 stop all joints
  accel                read the accelerometer
  encoders             read joint angles
  reset                reset encoder revolutions
  buzzer HZ            set the buzzer frequency (0 is off)
  formfactor           read the body type
  watch                print button, joint and accelerometer events until Ctrl+C
  stopall              stop every robot on the daemon

Simulator commands (talk to linkbot-sim's REST API, no daemon session):
  sim robots           list simulated robots
  sim press BUTTON     press and release a button (0 power, 1 A, 2 B)
  sim tilt X Y Z       emit an accelerometer sample in g

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	configPath := flag.String("config", "", "YAML config file")
	daemonURL := flag.String("daemon", "", "Daemon websocket URL (or set LINKBOT_DAEMON_URL)")
	serial := flag.String("serial", "", "Robot serial (or set LINKBOT_SERIAL)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	relative := flag.Bool("relative", false, "move: angles are relative to the current position")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
	if *daemonURL != "" {
		cfg.DaemonURL = *daemonURL
	}
	if *serial != "" {
		cfg.Serial = *serial
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	applog.Init(cfg.LogLevel)

	if flag.Arg(0) == "sim" {
		if err := runSim(cfg, flag.Args()[1:]); err != nil {
			fmt.Fprintf(os.Stderr, "❌ %v\n", err)
			os.Exit(1)
		}
		return
	}

	cli := &client{
		cfg:      cfg,
		relative: *relative,
	}
	if err := cli.run(flag.Arg(0), flag.Args()[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

// client runs one command against one daemon session
type client struct {
	cfg      config.File
	relative bool

	proxy *linkbot.DaemonProxy
	robot *linkbot.Robot

	// Error replies and stalls end the current wait
	failures chan error
}

func (c *client) run(command string, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\n👋 Shutting down...")
		cancel()
	}()

	proxy, err := linkbot.NewDaemonProxy(c.cfg.Proxy(), applog.L())
	if err != nil {
		return err
	}
	c.proxy = proxy
	c.failures = make(chan error, 1)

	proxy.OnCommandError(func(err *linkbot.CommandError) {
		c.fail(err)
	})
	proxy.OnStall(func(s linkbot.Stall) {
		c.fail(fmt.Errorf("%s to %s got no reply", s.Type, s.Serial))
	})

	conn, err := transport.Dial(ctx, c.cfg.DaemonURL, proxy, c.cfg.Transport(), applog.L())
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		if err := conn.Run(ctx); err != nil {
			applog.Warn("connection ended", "error", err)
			cancel()
		}
	}()

	if command == "stopall" {
		if err := c.await(ctx, proxy.StopAll); err != nil {
			return err
		}
		fmt.Println("✅ Stopped all robots")
		return nil
	}

	if c.cfg.Serial == "" {
		return fmt.Errorf("no robot serial: use -serial or set %s", config.EnvSerial)
	}
	if err := c.connect(ctx); err != nil {
		return err
	}

	return c.dispatch(ctx, command, args)
}

func (c *client) fail(err error) {
	select {
	case c.failures <- err:
	default:
	}
}

// connect resolves the robot only after the daemon acknowledges it
func (c *client) connect(ctx context.Context) error {
	robot, err := c.proxy.GetRobot(c.cfg.Serial)
	if err != nil {
		return err
	}
	robot.SetConnectEventHandler(func(ev protocol.ConnectEvent) {
		applog.Debug("robot connected", "serial", c.cfg.Serial, "timestamp", ev.Timestamp)
	})

	err = c.await(ctx, func(done func()) error {
		return c.proxy.ConnectRobot(c.cfg.Serial, done)
	})
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.cfg.Serial, err)
	}

	c.robot = robot
	fmt.Printf("🤖 Connected to %s\n", c.cfg.Serial)
	return nil
}

// await issues one command and blocks until its completion callback fires,
// the daemon reports an error, the command stalls, or ctx ends.
func (c *client) await(ctx context.Context, issue func(done func()) error) error {
	ch := make(chan struct{})
	var once sync.Once
	done := func() { once.Do(func() { close(ch) }) }

	if err := issue(done); err != nil {
		return err
	}

	select {
	case <-ch:
		return nil
	case err := <-c.failures:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *client) dispatch(ctx context.Context, command string, args []string) error {
	r := c.robot

	switch command {
	case "led":
		v, err := parseUints(args, 3, math.MaxUint8)
		if err != nil {
			return err
		}
		red, green, blue := uint8(v[0]), uint8(v[1]), uint8(v[2])
		err = c.await(ctx, func(done func()) error {
			return r.SetLEDColor(red, green, blue, done)
		})
		if err == nil {
			fmt.Printf("💡 LED set to (%d, %d, %d)\n", red, green, blue)
		}
		return err

	case "move":
		v, err := parseArgs(args, 3)
		if err != nil {
			return err
		}
		var relMask uint8
		if c.relative {
			relMask = linkbot.AllJoints
		}
		err = c.await(ctx, func(done func()) error {
			return r.Move(linkbot.AllJoints, relMask, radians(v[0]), radians(v[1]), radians(v[2]), done)
		})
		if err == nil {
			fmt.Println("✅ Move accepted")
		}
		return err

	case "speeds":
		v, err := parseArgs(args, 3)
		if err != nil {
			return err
		}
		err = c.await(ctx, func(done func()) error {
			return r.SetMotorSpeeds(linkbot.AllJoints, radians(v[0]), radians(v[1]), radians(v[2]), done)
		})
		if err == nil {
			fmt.Println("✅ Speeds set")
		}
		return err

	case "stop":
		err := c.await(ctx, func(done func()) error {
			return r.Stop(linkbot.AllJoints, done)
		})
		if err == nil {
			fmt.Println("🛑 Stopped")
		}
		return err

	case "accel":
		return c.await(ctx, func(done func()) error {
			return r.GetAccelerometer(func(x, y, z float32) {
				fmt.Printf("📐 Accelerometer: x=%.3f y=%.3f z=%.3f g\n", x, y, z)
				done()
			})
		})

	case "encoders":
		return c.await(ctx, func(done func()) error {
			return r.GetEncoderValues(func(ts uint32, angles [protocol.NumJoints]float32) {
				fmt.Printf("🔄 Joints @%dms: %.1f° %.1f° %.1f°\n",
					ts, degrees(angles[0]), degrees(angles[1]), degrees(angles[2]))
				done()
			})
		})

	case "reset":
		err := c.await(ctx, r.ResetEncoderRevs)
		if err == nil {
			fmt.Println("✅ Encoder revolutions reset")
		}
		return err

	case "buzzer":
		v, err := parseArgs(args, 1)
		if err != nil {
			return err
		}
		err = c.await(ctx, func(done func()) error {
			return r.SetBuzzerFrequency(float32(v[0]), done)
		})
		if err == nil {
			fmt.Printf("🔊 Buzzer at %.0f Hz\n", v[0])
		}
		return err

	case "formfactor":
		return c.await(ctx, func(done func()) error {
			return r.GetFormFactor(func(ff protocol.FormFactor) {
				fmt.Printf("🤖 Form factor: %s\n", ff)
				done()
			})
		})

	case "watch":
		return c.watch(ctx)
	}

	return fmt.Errorf("unknown command %q", command)
}

// watch prints events until ctx ends, then disables every stream
func (c *client) watch(ctx context.Context) error {
	r := c.robot

	err := c.await(ctx, func(done func()) error {
		return r.SetButtonEventHandler(func(ev protocol.ButtonEvent) {
			state := "up"
			if ev.State == protocol.ButtonDown {
				state = "down"
			}
			fmt.Printf("🔘 Button %d %s @%dms\n", ev.Button, state, ev.Timestamp)
		}, done)
	})
	if err != nil {
		return err
	}

	err = c.await(ctx, func(done func()) error {
		return r.SetJointEventHandler(func(ev protocol.JointEvent) {
			fmt.Printf("🦾 Joint %d state %d @%dms\n", ev.Joint+1, ev.State, ev.Timestamp)
		}, done)
	})
	if err != nil {
		return err
	}

	err = c.await(ctx, func(done func()) error {
		return r.SetAccelerometerEventHandler(func(ev protocol.AccelerometerEvent) {
			fmt.Printf("📐 x=%.3f y=%.3f z=%.3f @%dms\n", ev.X, ev.Y, ev.Z, ev.Timestamp)
		}, done)
	})
	if err != nil {
		return err
	}

	fmt.Println("👀 Watching events (Ctrl+C to stop)")
	<-ctx.Done()

	// The connection may already be gone; handlers are cleared locally anyway
	r.SetButtonEventHandler(nil, nil)
	r.SetJointEventHandler(nil, nil)
	r.SetAccelerometerEventHandler(nil, nil)

	fmt.Println("✅ Goodbye!")
	return nil
}

func parseArgs(args []string, n int) ([]float64, error) {
	if len(args) != n {
		return nil, fmt.Errorf("expected %d arguments, got %d", n, len(args))
	}
	out := make([]float64, n)
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", a)
		}
		out[i] = v
	}
	return out, nil
}

// parseUints parses exactly n integers in [0, limit].
func parseUints(args []string, n int, limit uint64) ([]uint64, error) {
	if len(args) != n {
		return nil, fmt.Errorf("expected %d arguments, got %d", n, len(args))
	}
	out := make([]uint64, n)
	for i, a := range args {
		v, err := strconv.ParseUint(a, 10, 64)
		if err != nil || v > limit {
			return nil, fmt.Errorf("invalid value %q: want an integer from 0 to %d", a, limit)
		}
		out[i] = v
	}
	return out, nil
}

func radians(deg float64) float32 {
	return float32(deg * math.Pi / 180)
}

func degrees(rad float32) float64 {
	return float64(rad) * 180 / math.Pi
}
