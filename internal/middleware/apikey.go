package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/gofiber/fiber/v3"
)

// KeyPrefix starts every issued API key. The prefix makes leaked keys
// greppable in logs and secret scanners.
const KeyPrefix = "siteward_live_"

// HashAPIKey returns the hex SHA-256 digest of a key. Only the digest is
// ever stored.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// APIKeyAuth guards the management API with the operator key whose digest
// is stored in the config file. An empty digest means no key was ever
// issued; requests are refused rather than let through.
func APIKeyAuth(keyHash string) fiber.Handler {
	return func(c fiber.Ctx) error {
		if keyHash == "" {
			return c.Status(503).JSON(fiber.Map{"error": "API key authentication is not configured"})
		}

		key := extractAPIKey(c)
		if key == "" {
			return c.Status(401).JSON(fiber.Map{"error": "missing API key"})
		}
		if !strings.HasPrefix(key, KeyPrefix) {
			return c.Status(401).JSON(fiber.Map{"error": "invalid API key format"})
		}

		digest := HashAPIKey(key)
		if subtle.ConstantTimeCompare([]byte(digest), []byte(keyHash)) != 1 {
			return c.Status(401).JSON(fiber.Map{"error": "invalid API key"})
		}

		return c.Next()
	}
}

// extractAPIKey pulls the key from Authorization: Bearer <key> or X-API-Key.
func extractAPIKey(c fiber.Ctx) string {
	auth := c.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return c.Get("X-API-Key")
}
