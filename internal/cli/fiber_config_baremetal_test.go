//go:build !docker

package cli

import (
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
)

func TestCreateFiberConfigProxyHeaderBareMetal(t *testing.T) {
	config := createFiberConfig("Test App")

	// Bare-metal builds run behind a reverse proxy and trust X-Forwarded-For.
	assert.Equal(t, fiber.HeaderXForwardedFor, config.ProxyHeader)
}
