package lifecycle

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitewardhq/siteward/internal/logging"
	"github.com/sitewardhq/siteward/internal/models"
)

const sweepTimeout = 2 * time.Minute

// Checker runs one verification pass for a site. *Manager implements it.
type Checker interface {
	CheckDomain(ctx context.Context, siteID uuid.UUID) (*StatusResult, error)
}

// RecheckScheduler periodically re-checks domains that are still waiting on
// DNS, so attachments converge without the tenant polling. The per-domain
// re-check window still applies; the sweep only drives it.
type RecheckScheduler struct {
	checker  Checker
	store    Store
	interval time.Duration
	stopChan chan struct{}
}

// NewRecheckScheduler creates a sweep over pending and failed attachments.
// A non-positive interval disables it.
func NewRecheckScheduler(checker Checker, store Store, interval time.Duration) *RecheckScheduler {
	return &RecheckScheduler{
		checker:  checker,
		store:    store,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start launches the sweep loop.
func (rs *RecheckScheduler) Start() {
	if rs.interval <= 0 {
		logging.L().Info("domain recheck sweep disabled")
		return
	}
	logging.L().Info("starting domain recheck sweep", zap.Duration("interval", rs.interval))
	go rs.run()
}

// Stop gracefully stops the scheduler.
func (rs *RecheckScheduler) Stop() {
	close(rs.stopChan)
}

func (rs *RecheckScheduler) run() {
	ticker := time.NewTicker(rs.interval)
	defer ticker.Stop()

	// Run immediately on start
	rs.sweep()

	for {
		select {
		case <-ticker.C:
			rs.sweep()
		case <-rs.stopChan:
			return
		}
	}
}

// sweep re-checks every domain still in pending_verification or failed.
// Failed attachments are included so transient resolver outages heal without
// tenant action.
func (rs *RecheckScheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	sites, err := rs.store.ListByDomainStatus(ctx, models.DomainStatusPending, models.DomainStatusFailed)
	if err != nil {
		logging.L().Warn("domain sweep could not list sites", zap.Error(err))
		return
	}

	checked := 0
	verified := 0
	for _, site := range sites {
		select {
		case <-rs.stopChan:
			return
		default:
		}

		result, err := rs.checker.CheckDomain(ctx, site.SiteID)
		if err != nil {
			logging.L().Warn("domain sweep check failed",
				zap.String("site_id", site.SiteID.String()),
				zap.String("domain", site.Domain()),
				zap.Error(err))
			continue
		}
		if result.RateLimited {
			continue
		}
		checked++
		if result.Status == models.DomainStatusVerified {
			verified++
		}
	}

	if checked > 0 {
		logging.L().Info("domain sweep complete",
			zap.Int("checked", checked),
			zap.Int("verified", verified))
	}
}
