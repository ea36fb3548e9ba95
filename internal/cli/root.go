package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sitewardhq/siteward/internal/database"
	"github.com/sitewardhq/siteward/internal/logging"
)

var Version string

// RootCmd represents the root command
var RootCmd = &cobra.Command{
	Use:   "siteward",
	Short: "Custom domains for hosted sites",
	Long: `Siteward - custom domain attachment for hosted sites.

Siteward issues the DNS records a tenant must create, verifies them against
public resolvers, tracks each domain through its lifecycle, and serves
verified domains through an edge proxy.`,
	Version: Version,
	// Default to serve command if no subcommand provided
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return runServe(cmd, args)
		}
		return cmd.Help()
	},
}

// Execute is called by main
func Execute(version string) error {
	Version = version
	RootCmd.Version = version

	return RootCmd.Execute()
}

// listenWithShutdown serves app until it fails or the process receives
// SIGINT/SIGTERM, then drains in-flight requests before returning.
func listenWithShutdown(app *fiber.App, port, name string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logging.L().Info(name+" starting", zap.String("port", port))
		serveErr <- app.Listen(":" + port)
	}()

	select {
	case <-ctx.Done():
		logging.L().Info("shutdown signal received")
		return app.Shutdown()
	case err := <-serveErr:
		return err
	}
}

// Handler functions

func handleIndex(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": "siteward",
		"version": Version,
		"status":  "running",
	})
}

func handleHealth(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "healthy",
		"service": "siteward",
	})
}

// handleUp backs container health checks: 200 only when the database
// answers a ping.
func handleUp(c fiber.Ctx) error {
	if err := database.DB.Ping(); err != nil {
		return c.Status(503).SendString("database unavailable")
	}
	return c.SendStatus(200)
}

func handleVersion(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"version": Version,
	})
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func init() {
	RootCmd.AddCommand(serveCmd)
	RootCmd.AddCommand(proxyCmd)

	RootCmd.Version = Version
}
