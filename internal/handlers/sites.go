package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitewardhq/siteward/internal/logging"
	"github.com/sitewardhq/siteward/internal/models"
)

// SiteDirectory is the site persistence the handlers use.
// *models.SiteStore implements it.
type SiteDirectory interface {
	CreateSite(ctx context.Context, name string) (*models.Site, error)
	GetByID(ctx context.Context, siteID uuid.UUID) (*models.Site, error)
	ListSitesPage(ctx context.Context, q models.ListQuery) ([]models.Site, int64, error)
	DeleteSite(ctx context.Context, siteID uuid.UUID) error
}

// SiteHandler serves site registration and listing.
type SiteHandler struct {
	store SiteDirectory
}

func NewSiteHandler(store SiteDirectory) *SiteHandler {
	return &SiteHandler{store: store}
}

// RegisterRoutes mounts the site endpoints on the given router.
func (h *SiteHandler) RegisterRoutes(r fiber.Router) {
	r.Post("/api/sites", h.HandleCreate)
	r.Get("/api/sites", h.HandleList)
	r.Get("/api/sites/:site_id", h.HandleGet)
	r.Delete("/api/sites/:site_id", h.HandleDelete)
}

// HandleCreate → POST /api/sites
func (h *SiteHandler) HandleCreate(c fiber.Ctx) error {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid payload"})
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return c.Status(400).JSON(fiber.Map{"error": "name is required"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	site, err := h.store.CreateSite(ctx, req.Name)
	if err != nil {
		logging.L().Error("site creation failed", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to create site"})
	}

	return c.Status(201).JSON(site)
}

// HandleList → GET /api/sites. Paged; see PaginationParams for the
// supported query parameters.
func (h *SiteHandler) HandleList(c fiber.Ctx) error {
	params := ParsePaginationParamsWithValidation(c, "sites")

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	sites, total, err := h.store.ListSitesPage(ctx, models.ListQuery{
		SortBy: params.SortBy,
		Desc:   params.SortOrder == SortDesc,
		Limit:  params.Per,
		Offset: params.Offset,
	})
	if err != nil {
		logging.L().Error("site listing failed", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to list sites"})
	}
	if sites == nil {
		sites = []models.Site{}
	}
	return c.JSON(NewPaginatedResponse(sites, params, total))
}

// HandleGet → GET /api/sites/:site_id
func (h *SiteHandler) HandleGet(c fiber.Ctx) error {
	siteID, err := uuid.Parse(c.Params("site_id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid site_id"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	site, err := h.store.GetByID(ctx, siteID)
	if err != nil {
		if errors.Is(err, models.ErrSiteNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "site not found"})
		}
		logging.L().Error("site lookup failed", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to load site"})
	}
	return c.JSON(site)
}

// HandleDelete → DELETE /api/sites/:site_id
func (h *SiteHandler) HandleDelete(c fiber.Ctx) error {
	siteID, err := uuid.Parse(c.Params("site_id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid site_id"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if err := h.store.DeleteSite(ctx, siteID); err != nil {
		if errors.Is(err, models.ErrSiteNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "site not found"})
		}
		logging.L().Error("site deletion failed", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to delete site"})
	}
	return c.SendStatus(204)
}
