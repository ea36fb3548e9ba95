package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitewardhq/siteward/internal/lifecycle"
	"github.com/sitewardhq/siteward/internal/logging"
	"github.com/sitewardhq/siteward/internal/models"
)

const handlerTimeout = 10 * time.Second

// DomainManager is the slice of the lifecycle manager the HTTP layer drives.
type DomainManager interface {
	InitiateDomain(ctx context.Context, siteID uuid.UUID, domain string) (*lifecycle.InitiationResult, error)
	CheckDomain(ctx context.Context, siteID uuid.UUID) (*lifecycle.StatusResult, error)
	DomainStatus(ctx context.Context, siteID uuid.UUID) (*lifecycle.StatusResult, error)
	DisconnectDomain(ctx context.Context, siteID uuid.UUID) error
}

// DomainHandler serves the custom-domain attachment endpoints.
type DomainHandler struct {
	manager DomainManager
}

func NewDomainHandler(manager DomainManager) *DomainHandler {
	return &DomainHandler{manager: manager}
}

// RegisterRoutes mounts the domain endpoints on the given router.
func (h *DomainHandler) RegisterRoutes(r fiber.Router) {
	r.Post("/api/sites/:site_id/domain", h.HandleAttach)
	r.Get("/api/sites/:site_id/domain", h.HandleStatus)
	r.Post("/api/sites/:site_id/domain/check", h.HandleCheck)
	r.Delete("/api/sites/:site_id/domain", h.HandleDisconnect)
}

// HandleAttach → POST /api/sites/:site_id/domain
func (h *DomainHandler) HandleAttach(c fiber.Ctx) error {
	siteID, err := uuid.Parse(c.Params("site_id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid site_id"})
	}

	var req struct {
		Domain string `json:"domain"`
	}
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid payload"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	result, err := h.manager.InitiateDomain(ctx, siteID, req.Domain)
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(result)
}

// HandleCheck → POST /api/sites/:site_id/domain/check
// A re-check inside the 60s window is not an error: the response carries
// rateLimited and nextCheckAvailable with status 200.
func (h *DomainHandler) HandleCheck(c fiber.Ctx) error {
	siteID, err := uuid.Parse(c.Params("site_id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid site_id"})
	}

	// DNS round trips can outlive the default budget.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := h.manager.CheckDomain(ctx, siteID)
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(result)
}

// HandleStatus → GET /api/sites/:site_id/domain
func (h *DomainHandler) HandleStatus(c fiber.Ctx) error {
	siteID, err := uuid.Parse(c.Params("site_id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid site_id"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	result, err := h.manager.DomainStatus(ctx, siteID)
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(result)
}

// HandleDisconnect → DELETE /api/sites/:site_id/domain
func (h *DomainHandler) HandleDisconnect(c fiber.Ctx) error {
	siteID, err := uuid.Parse(c.Params("site_id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid site_id"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if err := h.manager.DisconnectDomain(ctx, siteID); err != nil {
		return domainError(c, err)
	}
	return c.SendStatus(204)
}

// domainError maps lifecycle errors onto the API's status codes.
func domainError(c fiber.Ctx, err error) error {
	var conflict *lifecycle.DomainConflictError
	switch {
	case errors.As(err, &conflict):
		return c.Status(409).JSON(fiber.Map{"error": conflict.Error()})
	case errors.Is(err, models.ErrSiteNotFound):
		return c.Status(404).JSON(fiber.Map{"error": "site not found"})
	case errors.Is(err, lifecycle.ErrInvalidDomain):
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, lifecycle.ErrDomainNotConfigured):
		return c.Status(400).JSON(fiber.Map{"error": "no custom domain configured"})
	default:
		logging.L().Error("domain operation failed", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "internal server error"})
	}
}
