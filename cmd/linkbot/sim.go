package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/teslashibe/go-linkbot/internal/config"
	"github.com/teslashibe/go-linkbot/internal/httpc"
	"github.com/teslashibe/go-linkbot/pkg/protocol"
	"github.com/teslashibe/go-linkbot/pkg/sim"
)

// injectResult is the simulator's reply to an event injection
type injectResult struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
}

func runSim(cfg config.File, args []string) error {
	if len(args) == 0 {
		return errors.New("sim: expected robots, press or tilt")
	}

	ctx, cancel := context.WithTimeout(context.Background(), httpc.DefaultTimeout)
	defer cancel()

	base := cfg.SimAPIURL + "/robots"

	switch args[0] {
	case "robots":
		var list struct {
			Robots []sim.RobotInfo `json:"robots"`
		}
		if err := httpc.GetJSON(ctx, base+"/", &list); err != nil {
			return err
		}
		if len(list.Robots) == 0 {
			fmt.Println("🤷 No robots yet")
		}
		for _, r := range list.Robots {
			state := "idle"
			if r.Connected {
				state = "connected"
			}
			fmt.Printf("🤖 %s (%s) %s, LED #%02x%02x%02x\n",
				r.Serial, r.FormFactor, state, r.LED.Red, r.LED.Green, r.LED.Blue)
		}
		return nil

	case "press":
		if cfg.Serial == "" {
			return fmt.Errorf("no robot serial: use -serial or set %s", config.EnvSerial)
		}
		v, err := parseUints(args[1:], 1, uint64(protocol.ButtonB))
		if err != nil {
			return err
		}
		button := protocol.Button(v[0])
		target := base + "/" + url.PathEscape(cfg.Serial) + "/button"

		for _, state := range []protocol.ButtonState{protocol.ButtonDown, protocol.ButtonUp} {
			var res injectResult
			body := map[string]any{"button": button, "state": state}
			if err := httpc.PostJSON(ctx, target, body, &res); err != nil {
				return err
			}
			if res.Status != "sent" {
				return fmt.Errorf("button events are %s on %s", res.Status, cfg.Serial)
			}
			time.Sleep(100 * time.Millisecond)
		}
		fmt.Printf("🔘 Pressed button %d on %s\n", button, cfg.Serial)
		return nil

	case "tilt":
		if cfg.Serial == "" {
			return fmt.Errorf("no robot serial: use -serial or set %s", config.EnvSerial)
		}
		v, err := parseArgs(args[1:], 3)
		if err != nil {
			return err
		}
		var res injectResult
		body := map[string]float64{"x": v[0], "y": v[1], "z": v[2]}
		target := base + "/" + url.PathEscape(cfg.Serial) + "/accelerometer"
		if err := httpc.PostJSON(ctx, target, body, &res); err != nil {
			return err
		}
		fmt.Printf("📐 Accelerometer sample %s to %d client(s)\n", res.Status, res.Clients)
		return nil
	}

	return fmt.Errorf("sim: unknown command %q", args[0])
}
