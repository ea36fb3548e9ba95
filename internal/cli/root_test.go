package cli

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitewardhq/siteward/internal/database"
)

func routeApp(path string, handler fiber.Handler) *fiber.App {
	app := fiber.New()
	app.Get(path, handler)
	return app
}

func decodeJSON(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func swapDatabase(t *testing.T, db *sql.DB) {
	t.Helper()
	original := database.DB
	database.DB = db
	t.Cleanup(func() { database.DB = original })
}

func TestHandleIndexPayload(t *testing.T) {
	originalVersion := Version
	Version = "1.2.3"
	t.Cleanup(func() { Version = originalVersion })

	app := routeApp("/", handleIndex)
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	var payload map[string]any
	decodeJSON(t, resp, &payload)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "siteward", payload["service"])
	assert.Equal(t, "1.2.3", payload["version"])
	assert.Equal(t, "running", payload["status"])
}

func TestHandleHealthPayload(t *testing.T) {
	app := routeApp("/health", handleHealth)
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)

	var payload map[string]any
	decodeJSON(t, resp, &payload)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", payload["status"])
	assert.Equal(t, "siteward", payload["service"])
}

func TestHandleUpReturnsOKWhenDatabaseHealthy(t *testing.T) {
	mockDB, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })
	swapDatabase(t, mockDB)

	app := routeApp("/up", handleUp)
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/up", nil))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandleUpReturnsServiceUnavailableWhenPingFails(t *testing.T) {
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })
	mock.ExpectPing().WillReturnError(errors.New("boom"))
	swapDatabase(t, mockDB)

	app := routeApp("/up", handleUp)
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/up", nil))
	require.NoError(t, err)

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHandleVersionReturnsCurrentVersion(t *testing.T) {
	originalVersion := Version
	Version = "1.2.3"
	t.Cleanup(func() { Version = originalVersion })

	app := routeApp("/api/version", handleVersion)
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/version", nil))
	require.NoError(t, err)

	var payload map[string]string
	decodeJSON(t, resp, &payload)
	assert.Equal(t, "1.2.3", payload["version"])
}

func TestGetEnvReturnsOverrides(t *testing.T) {
	t.Setenv("CLI_TEST_KEY", "present")
	assert.Equal(t, "present", getEnv("CLI_TEST_KEY", "fallback"))

	t.Setenv("CLI_EMPTY_KEY", "")
	assert.Equal(t, "fallback", getEnv("CLI_EMPTY_KEY", "fallback"))
}
