package sim

import (
	"errors"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/teslashibe/go-linkbot/pkg/protocol"
)

// maxMessageSize bounds one websocket message from a proxy
const maxMessageSize = 512 * 1024

// clientConn is one connected daemon proxy
type clientConn struct {
	ID        string
	Conn      *websocket.Conn
	Connected time.Time

	codec *protocol.FrameCodec
	mu    sync.Mutex
}

// Send writes one message to the proxy
func (c *clientConn) Send(msg *protocol.Message) error {
	data, err := c.codec.Encode(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

// RegisterRoutes registers the daemon websocket endpoint on a Fiber app
func (d *Daemon) RegisterRoutes(app *fiber.App) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/daemon", websocket.New(d.handleClient))
}

// handleClient serves one proxy connection until it closes
func (d *Daemon) handleClient(c *websocket.Conn) {
	client := &clientConn{
		ID:        uuid.New().String(),
		Conn:      c,
		Connected: time.Now(),
		codec:     protocol.NewFrameCodec(maxMessageSize),
	}
	log := d.logger.With("client", client.ID)

	d.mu.Lock()
	d.clients[client.ID] = client
	clientCount := len(d.clients)
	d.mu.Unlock()

	log.Info("proxy connected", "clients", clientCount)

	defer func() {
		d.mu.Lock()
		delete(d.clients, client.ID)
		clientCount := len(d.clients)
		d.mu.Unlock()

		log.Info("proxy disconnected", "clients", clientCount)
	}()

	c.SetReadLimit(maxMessageSize)

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			log.Debug("read ended", "error", err)
			return
		}

		reqs, err := client.codec.Decode(data)
		if err != nil {
			log.Warn("bad frame from proxy", "error", err)
		}

		for _, req := range reqs {
			for _, out := range d.Respond(req) {
				if err := client.Send(out); err != nil {
					log.Warn("write failed", "error", err)
					return
				}
				d.countSent(out)
			}
		}
	}
}

func (d *Daemon) countSent(msg *protocol.Message) {
	if msg.Type == protocol.TypeReply {
		d.repliesSent.Add(1)
	} else {
		d.eventsSent.Add(1)
	}
}

// Broadcast sends a message to every connected proxy and returns how many
// received it
func (d *Daemon) Broadcast(msg *protocol.Message) int {
	d.mu.RLock()
	clients := make([]*clientConn, 0, len(d.clients))
	for _, c := range d.clients {
		clients = append(clients, c)
	}
	d.mu.RUnlock()

	sent := 0
	for _, c := range clients {
		if err := c.Send(msg); err != nil {
			d.logger.Warn("broadcast failed", "client", c.ID, "error", err)
			continue
		}
		d.countSent(msg)
		sent++
	}
	return sent
}

// errRobotNotFound is returned by the REST API for unknown serials
var errRobotNotFound = errors.New("robot not found")

// RegisterAPIRoutes registers REST routes for inspecting robots and
// injecting events
func (d *Daemon) RegisterAPIRoutes(api fiber.Router) {
	robots := api.Group("/robots")

	// List known robots
	robots.Get("/", func(c *fiber.Ctx) error {
		infos := d.GetRobotInfos()
		return c.JSON(fiber.Map{
			"robots": infos,
			"count":  len(infos),
		})
	})

	// Daemon stats
	robots.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(d.GetStats())
	})

	// One robot
	robots.Get("/:serial", func(c *fiber.Ctx) error {
		info, ok := d.GetRobotInfo(c.Params("serial"))
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": errRobotNotFound.Error()})
		}
		return c.JSON(info)
	})

	// Press or release a button
	robots.Post("/:serial/button", func(c *fiber.Ctx) error {
		serial := c.Params("serial")
		if _, ok := d.GetRobotInfo(serial); !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": errRobotNotFound.Error()})
		}

		var body struct {
			Button protocol.Button      `json:"button"`
			State  protocol.ButtonState `json:"state"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}

		msg, ok, err := d.ButtonEvent(serial, body.Button, body.State)
		return d.injectResponse(c, msg, ok, err)
	})

	// Emit an accelerometer sample
	robots.Post("/:serial/accelerometer", func(c *fiber.Ctx) error {
		serial := c.Params("serial")
		if _, ok := d.GetRobotInfo(serial); !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": errRobotNotFound.Error()})
		}

		var body struct {
			X float32 `json:"x"`
			Y float32 `json:"y"`
			Z float32 `json:"z"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}

		msg, ok, err := d.AccelerometerEvent(serial, body.X, body.Y, body.Z)
		return d.injectResponse(c, msg, ok, err)
	})
}

func (d *Daemon) injectResponse(c *fiber.Ctx, msg *protocol.Message, ok bool, err error) error {
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if !ok {
		return c.JSON(fiber.Map{"status": "disabled"})
	}
	return c.JSON(fiber.Map{"status": "sent", "clients": d.Broadcast(msg)})
}
