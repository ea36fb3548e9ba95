// Package proxy is the edge worker that fronts tenant custom domains.
// Traffic for allow-listed hosts is relayed to the origin with the tenant
// host preserved in X-Forwarded-Host; everything else is refused. Origin
// and upstream failures never leak internals to the tenant's visitors.
package proxy

import (
	"errors"
	"time"

	fiberzap "github.com/gofiber/contrib/v3/zap"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/sitewardhq/siteward/internal/config"
	"github.com/sitewardhq/siteward/internal/logging"
)

// hopByHopHeaders never cross the proxy in either direction.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Forwarder relays tenant traffic to the origin.
type Forwarder struct {
	cfg    *config.ProxyConfig
	cfgErr error
	client *fasthttp.Client
}

// NewForwarder keeps a broken config around instead of refusing to start:
// the proxy must stay reachable so a bad deploy surfaces as 500s with the
// config error, not as a crash loop behind tenant DNS.
func NewForwarder(cfg *config.ProxyConfig, cfgErr error) *Forwarder {
	f := &Forwarder{cfg: cfg, cfgErr: cfgErr}
	if cfgErr == nil {
		f.client = &fasthttp.Client{
			ReadTimeout:         cfg.UpstreamTimeout,
			WriteTimeout:        cfg.UpstreamTimeout,
			MaxIdleConnDuration: time.Minute,
		}
	}
	return f
}

// NewApp builds the proxy fiber app around the forwarder.
func NewApp(f *Forwarder) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: "siteward-proxy",
		ErrorHandler: func(c fiber.Ctx, err error) error {
			logging.L().Error("proxy request failed", zap.Error(err))
			return c.Status(500).JSON(fiber.Map{"error": "internal server error"})
		},
	})

	app.Use(recover.New())
	app.Use(fiberzap.New(fiberzap.Config{
		Logger: logging.L(),
		Fields: []string{"latency", "status", "method", "url", "ip"},
	}))

	app.Get("/_health", handleHealth)
	app.All("/*", f.Handle)

	return app
}

// handleHealth → GET /_health. Always healthy: the endpoint reports that the
// worker process is up, deliberately independent of origin reachability and
// config state so orchestrators do not restart it for an upstream problem.
func handleHealth(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"worker":    "custom-domain-proxy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Handle relays one request to the origin.
func (f *Forwarder) Handle(c fiber.Ctx) error {
	if f.cfgErr != nil {
		message := "proxy is not configured"
		var cfgErr *config.ConfigError
		if errors.As(f.cfgErr, &cfgErr) {
			message = cfgErr.Message
		}
		return c.Status(500).JSON(fiber.Map{
			"error":   "configuration error",
			"message": message,
		})
	}

	tenantHost := string(c.Request().Header.Host())
	if !f.cfg.DomainAllowed(tenantHost) {
		logging.L().Warn("request for host outside the allow-list",
			zap.String("host", tenantHost))
		return c.Status(403).JSON(fiber.Map{"error": "domain not allowed"})
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	c.Request().CopyTo(req)
	req.SetRequestURI(f.cfg.OriginEndpoint + c.OriginalURL())
	req.Header.SetHost(f.cfg.OriginHost)

	for _, h := range hopByHopHeaders {
		req.Header.Del(h)
	}
	req.Header.Set("X-Forwarded-Host", tenantHost)
	req.Header.Set("X-Forwarded-Proto", forwardedProto(c))
	if chain := c.Get("X-Forwarded-For"); chain != "" {
		req.Header.Set("X-Forwarded-For", chain+", "+c.IP())
	} else {
		req.Header.Set("X-Forwarded-For", c.IP())
	}

	if err := f.client.DoTimeout(req, resp, f.cfg.UpstreamTimeout); err != nil {
		logging.L().Warn("origin unreachable",
			zap.String("host", tenantHost),
			zap.String("origin", f.cfg.OriginEndpoint),
			zap.Error(err))
		return c.Status(502).JSON(fiber.Map{"error": "bad gateway"})
	}

	resp.CopyTo(c.Response())
	for _, h := range hopByHopHeaders {
		c.Response().Header.Del(h)
	}
	return nil
}

// forwardedProto reports the scheme the tenant's visitor used. The platform
// edge terminates TLS ahead of this worker, so trust its header first.
func forwardedProto(c fiber.Ctx) string {
	if proto := c.Get("X-Forwarded-Proto"); proto != "" {
		return proto
	}
	if string(c.Request().URI().Scheme()) == "https" {
		return "https"
	}
	return "http"
}
