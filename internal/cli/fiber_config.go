//go:build !docker

package cli

import "github.com/gofiber/fiber/v3"

// createFiberConfig returns Fiber configuration for bare-metal deployments.
// These sit behind a reverse proxy (nginx, caddy), so the real client IP
// arrives in X-Forwarded-For.
func createFiberConfig(appName string) fiber.Config {
	return fiber.Config{
		AppName:     appName,
		ProxyHeader: fiber.HeaderXForwardedFor,
	}
}
