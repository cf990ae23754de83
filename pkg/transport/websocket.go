// Package transport connects a linkbot.DaemonProxy to a daemon over a
// websocket.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teslashibe/go-linkbot/pkg/linkbot"
	"golang.org/x/sync/errgroup"
)

// ErrClosed is returned by writes after Close
var ErrClosed = errors.New("transport closed")

// Options configures a Conn
type Options struct {
	// HandshakeTimeout bounds the websocket dial
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" json:"handshake_timeout"`

	// WriteTimeout is the deadline for writing one message
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`

	// SweepInterval is how often stalled commands are swept; 0 disables
	SweepInterval time.Duration `yaml:"sweep_interval" json:"sweep_interval"`
}

// DefaultOptions returns sensible defaults
func DefaultOptions() Options {
	return Options{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		SweepInterval:    time.Second,
	}
}

// Conn bridges one websocket to one DaemonProxy
type Conn struct {
	ws     *websocket.Conn
	proxy  *linkbot.DaemonProxy
	opts   Options
	logger *slog.Logger

	writeMu   sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to the daemon at url and installs the connection as the
// proxy's write callback. Call Run to start delivering replies.
func Dial(ctx context.Context, url string, proxy *linkbot.DaemonProxy, opts Options, logger *slog.Logger) (*Conn, error) {
	if proxy == nil {
		return nil, errors.New("proxy is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: opts.HandshakeTimeout,
	}

	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}

	c := &Conn{
		ws:     ws,
		proxy:  proxy,
		opts:   opts,
		logger: logger.With("component", "transport", "url", url),
		done:   make(chan struct{}),
	}
	proxy.SetWriteCallback(c.write)

	c.logger.Info("connected to daemon", "session", proxy.SessionID())
	return c, nil
}

// write sends one encoded message as a binary frame
func (c *Conn) write(data []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.opts.WriteTimeout > 0 {
		c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	}
	return c.ws.WriteMessage(websocket.BinaryMessage, data)
}

// Run delivers incoming frames to the proxy and sweeps stalled commands
// until ctx is done, Close is called, or the connection fails. It returns
// nil after a clean shutdown.
func (c *Conn) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return c.readPump()
	})

	if c.opts.SweepInterval > 0 {
		g.Go(func() error {
			c.sweep(ctx)
			return nil
		})
	}

	// Unblocks the read pump
	g.Go(func() error {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.done:
		}
		return nil
	})

	return g.Wait()
}

func (c *Conn) readPump() error {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return nil
			}
			c.Close()
			return fmt.Errorf("read failed: %w", err)
		}

		// Bad frames are logged by the proxy; the session continues
		if err := c.proxy.Deliver(data); err != nil {
			c.logger.Debug("delivery error", "error", err)
		}
	}
}

func (c *Conn) sweep(ctx context.Context) {
	ticker := time.NewTicker(c.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case now := <-ticker.C:
			if stalls := c.proxy.Sweep(now); len(stalls) > 0 {
				c.logger.Debug("swept stalled commands", "count", len(stalls))
			}
		}
	}
}

// Close detaches the proxy and closes the websocket. Safe to call more than
// once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		c.proxy.SetWriteCallback(nil)

		c.writeMu.Lock()
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()

		err = c.ws.Close()
		c.logger.Info("disconnected from daemon")
	})
	return err
}
