package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = KeyPrefix + "0123456789abcdef0123456789abcdef"

func newProtectedApp(keyHash string) *fiber.App {
	app := fiber.New()
	app.Use(APIKeyAuth(keyHash))
	app.Get("/api/sites", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})
	return app
}

func errorBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body["error"]
}

func TestAPIKeyAuthAcceptsBearerKey(t *testing.T) {
	app := newProtectedApp(HashAPIKey(testKey))

	req := httptest.NewRequest(http.MethodGet, "/api/sites", nil)
	req.Header.Set("Authorization", "Bearer "+testKey)

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPIKeyAuthAcceptsHeaderKey(t *testing.T) {
	app := newProtectedApp(HashAPIKey(testKey))

	req := httptest.NewRequest(http.MethodGet, "/api/sites", nil)
	req.Header.Set("X-API-Key", testKey)

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPIKeyAuthMissingKey(t *testing.T) {
	app := newProtectedApp(HashAPIKey(testKey))

	req := httptest.NewRequest(http.MethodGet, "/api/sites", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "missing API key", errorBody(t, resp))
}

func TestAPIKeyAuthRejectsWrongPrefix(t *testing.T) {
	app := newProtectedApp(HashAPIKey(testKey))

	req := httptest.NewRequest(http.MethodGet, "/api/sites", nil)
	req.Header.Set("X-API-Key", "sk_test_0123456789abcdef")

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid API key format", errorBody(t, resp))
}

func TestAPIKeyAuthRejectsWrongKey(t *testing.T) {
	app := newProtectedApp(HashAPIKey(testKey))

	req := httptest.NewRequest(http.MethodGet, "/api/sites", nil)
	req.Header.Set("Authorization", "Bearer "+KeyPrefix+"ffffffffffffffffffffffffffffffff")

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid API key", errorBody(t, resp))
}

func TestAPIKeyAuthUnconfigured(t *testing.T) {
	app := newProtectedApp("")

	req := httptest.NewRequest(http.MethodGet, "/api/sites", nil)
	req.Header.Set("Authorization", "Bearer "+testKey)

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "API key authentication is not configured", errorBody(t, resp))
}

func TestHashAPIKeyIsStable(t *testing.T) {
	first := HashAPIKey(testKey)
	second := HashAPIKey(testKey)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
	assert.NotEqual(t, first, HashAPIKey(testKey+"x"))
}
