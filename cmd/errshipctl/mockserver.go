package main

import (
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"
)

// capturedRequest is one ingested payload, kept in memory for the
// "errshipctl mockserver" lifetime only.
type capturedRequest struct {
	ContentType     string
	ContentEncoding string
	BodySize        int
}

func mockserverCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "mockserver",
		Short: "Run a disposable local ingestion webhook for manual SDK testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMockServer(port)
		},
	}

	cmd.Flags().StringVar(&port, "port", "8787", "port to listen on")
	return cmd
}

func runMockServer(port string) error {
	var mu sync.Mutex
	var received []capturedRequest

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		BodyLimit:             10 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool { return true },
		AllowMethods:     "POST,OPTIONS",
		AllowHeaders:     "Content-Type,Content-Encoding",
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${method} ${path} ${status} ${latency}\n",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Post("/webhook", func(c *fiber.Ctx) error {
		body := c.Body()
		mu.Lock()
		received = append(received, capturedRequest{
			ContentType:     c.Get("Content-Type"),
			ContentEncoding: c.Get("Content-Encoding"),
			BodySize:        len(body),
		})
		count := len(received)
		mu.Unlock()
		log.Printf("captured report #%d (%d bytes, %s)", count, len(body), c.Get("Content-Type"))
		return c.SendStatus(fiber.StatusOK)
	})

	app.Get("/captured", func(c *fiber.Ctx) error {
		mu.Lock()
		defer mu.Unlock()
		return c.JSON(received)
	})

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-shutdownCh
		log.Println("mockserver: shutting down")
		if err := app.Shutdown(); err != nil {
			log.Printf("mockserver: shutdown error: %v", err)
		}
	}()

	log.Printf("mockserver listening on :%s (POST /webhook, GET /captured)", port)
	if err := app.Listen(":" + port); err != nil && err != io.EOF {
		return err
	}
	return nil
}
