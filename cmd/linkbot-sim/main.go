// linkbot-sim: Simulated Linkbot daemon
// Answers daemon protocol requests from in-memory robots over a websocket
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/teslashibe/go-linkbot/internal/config"
	applog "github.com/teslashibe/go-linkbot/internal/log"
	"github.com/teslashibe/go-linkbot/pkg/sim"
)

var (
	version  = "1.0.0"
	port     = flag.Int("port", 42000, "HTTP server port")
	logLevel = flag.String("log-level", "", "Log level: debug, info, warn, error (or set LINKBOT_LOG_LEVEL)")
	debug    = flag.Bool("debug", false, "Log every HTTP request")
)

func main() {
	flag.Parse()

	// Override from environment
	if envPort := os.Getenv("PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", port)
	}

	applog.Init(config.LogLevel(*logLevel))
	log := applog.With("cmd", "linkbot-sim")

	fmt.Println()
	fmt.Println("🤖 Linkbot daemon simulator v" + version)
	fmt.Println()

	app := fiber.New(fiber.Config{
		AppName:               "linkbot-sim",
		DisableStartupMessage: true,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type",
	}))
	if *debug {
		app.Use(logger.New())
	}

	daemon := sim.New(log)
	daemon.RegisterRoutes(app)
	daemon.RegisterAPIRoutes(app.Group("/api"))

	app.Get("/health", func(c *fiber.Ctx) error {
		stats := daemon.GetStats()
		return c.JSON(fiber.Map{
			"status":  "ok",
			"version": version,
			"robots":  stats.Robots,
			"clients": stats.Clients,
		})
	})

	go func() {
		addr := fmt.Sprintf(":%d", *port)
		fmt.Printf("🚀 Listening on %s\n", addr)
		fmt.Printf("   Daemon: ws://localhost:%d/ws/daemon\n", *port)
		fmt.Printf("   Robots: http://localhost:%d/api/robots\n", *port)
		fmt.Println()

		if err := app.Listen(addr); err != nil {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("\n👋 Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Warn("shutdown error", "error", err)
	}

	stats := daemon.GetStats()
	fmt.Printf("📊 Handled %d requests, %d error replies\n", stats.RequestsHandled, stats.ErrorReplies)
	fmt.Println("✅ Goodbye!")
}
