// Package lifecycle owns the custom-domain state machine. Every write to a
// site's domain fields flows through the Manager, so state transitions stay
// legal no matter which surface (HTTP, CLI, sweep) triggered them.
package lifecycle

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitewardhq/siteward/internal/config"
	"github.com/sitewardhq/siteward/internal/dnsverify"
	"github.com/sitewardhq/siteward/internal/logging"
	"github.com/sitewardhq/siteward/internal/models"
)

const (
	// ProxyHostname is the edge host tenants point their CNAME at.
	ProxyHostname = "edge.siteward.net"
	// VerificationPrefix is the label prepended to the domain for the
	// ownership TXT record.
	VerificationPrefix = "_siteward-verify"
	// TokenPrefix starts every verification token.
	TokenPrefix = "siteward-verify-"
	// RecheckWindow is the minimum spacing between live DNS checks for one
	// domain.
	RecheckWindow = 60 * time.Second

	// platformDomain and its subdomains can never be attached as custom
	// domains; pointing the edge at itself would loop.
	platformDomain = "siteward.net"
)

// Store is the persistence the manager needs. *models.SiteStore implements it.
type Store interface {
	GetByID(ctx context.Context, siteID uuid.UUID) (*models.Site, error)
	GetByActiveDomain(ctx context.Context, domain string) (*models.Site, error)
	UpdateDomainFields(ctx context.Context, site *models.Site) error
	ListByDomainStatus(ctx context.Context, statuses ...models.DomainStatus) ([]models.Site, error)
}

// Verifier resolves live DNS for a domain. *dnsverify.Verifier implements it.
type Verifier interface {
	VerifyDomain(ctx context.Context, domain string, expected models.DNSRecordSet) *dnsverify.Result
	DetectProvider(ctx context.Context, domain string) string
}

// Manager drives domain attachments through their lifecycle.
type Manager struct {
	store    Store
	verifier Verifier
	window   time.Duration
	now      func() time.Time
}

// NewManager wires a manager with the production clock and re-check window.
func NewManager(store Store, verifier Verifier) *Manager {
	return &Manager{
		store:    store,
		verifier: verifier,
		window:   RecheckWindow,
		now:      time.Now,
	}
}

// InitiationResult is what a tenant needs to continue an attachment: the
// records to create and the token they carry.
type InitiationResult struct {
	SiteID            uuid.UUID           `json:"siteId"`
	Domain            string              `json:"domain"`
	Status            models.DomainStatus `json:"status"`
	VerificationToken string              `json:"verificationToken"`
	DNSRecords        models.DNSRecordSet `json:"dnsRecords"`
}

// StatusResult is the domain attachment state after a check or a read.
type StatusResult struct {
	SiteID             uuid.UUID            `json:"siteId"`
	Domain             string               `json:"domain,omitempty"`
	Status             models.DomainStatus  `json:"status"`
	DNSProvider        string               `json:"dnsProvider,omitempty"`
	DNSRecords         *models.DNSRecordSet `json:"dnsRecords,omitempty"`
	VerifiedAt         *time.Time           `json:"verifiedAt,omitempty"`
	LastCheckedAt      *time.Time           `json:"lastCheckedAt,omitempty"`
	Error              string               `json:"error,omitempty"`
	RateLimited        bool                 `json:"rateLimited,omitempty"`
	NextCheckAvailable *time.Time           `json:"nextCheckAvailable,omitempty"`
	Verification       *dnsverify.Result    `json:"verification,omitempty"`
}

// InitiateDomain starts (or restarts) a domain attachment for the site. While
// an attempt for the same domain is pending the call is idempotent and
// returns the existing token and records unchanged. A fresh attempt issues a
// new token; re-verifying a currently verified domain keeps the old one.
func (m *Manager) InitiateDomain(ctx context.Context, siteID uuid.UUID, rawDomain string) (*InitiationResult, error) {
	domain, err := normalizeDomain(rawDomain)
	if err != nil {
		return nil, err
	}

	site, err := m.store.GetByID(ctx, siteID)
	if err != nil {
		return nil, err
	}

	holder, err := m.store.GetByActiveDomain(ctx, domain)
	if err != nil && !errors.Is(err, models.ErrSiteNotFound) {
		return nil, err
	}
	if err == nil && holder.SiteID != siteID {
		return nil, &DomainConflictError{Domain: domain}
	}

	sameDomain := site.Domain() == domain

	if sameDomain && site.CustomDomainStatus == models.DomainStatusPending &&
		site.DNSVerificationToken != nil && site.DNSRecords != nil {
		return &InitiationResult{
			SiteID:            site.SiteID,
			Domain:            domain,
			Status:            site.CustomDomainStatus,
			VerificationToken: *site.DNSVerificationToken,
			DNSRecords:        *site.DNSRecords,
		}, nil
	}

	// Tokens are rotated on every fresh attempt. The one exception is
	// re-verifying the same domain from verified, where the published TXT
	// record is still the live one.
	token := ""
	if sameDomain && site.CustomDomainStatus == models.DomainStatusVerified && site.DNSVerificationToken != nil {
		token = *site.DNSVerificationToken
	} else {
		token, err = newVerificationToken()
		if err != nil {
			return nil, err
		}
	}

	records := buildRecords(domain, token)

	site.CustomDomain = &domain
	site.CustomDomainStatus = models.DomainStatusPending
	site.DNSVerificationToken = &token
	site.DNSRecords = &records
	site.DNSProvider = nil
	site.LastDNSCheckAt = nil
	site.CustomDomainVerifiedAt = nil
	site.CustomDomainError = nil

	if err := m.store.UpdateDomainFields(ctx, site); err != nil {
		if errors.Is(err, models.ErrDomainTaken) {
			return nil, &DomainConflictError{Domain: domain}
		}
		return nil, err
	}

	logging.L().Info("domain attachment initiated",
		zap.String("site_id", siteID.String()),
		zap.String("domain", domain))

	return &InitiationResult{
		SiteID:            site.SiteID,
		Domain:            domain,
		Status:            site.CustomDomainStatus,
		VerificationToken: token,
		DNSRecords:        records,
	}, nil
}

// CheckDomain performs a live verification pass, subject to the re-check
// window. Inside the window no lookup is issued and the result carries
// nextCheckAvailable. An already verified domain is returned as-is.
func (m *Manager) CheckDomain(ctx context.Context, siteID uuid.UUID) (*StatusResult, error) {
	site, err := m.store.GetByID(ctx, siteID)
	if err != nil {
		return nil, err
	}

	switch {
	case site.CustomDomain == nil,
		site.CustomDomainStatus == models.DomainStatusNotStarted,
		site.CustomDomainStatus == models.DomainStatusDisconnected:
		return nil, ErrDomainNotConfigured
	case site.CustomDomainStatus == models.DomainStatusVerified:
		return m.statusFromSite(site), nil
	}

	now := m.now().UTC()
	if site.LastDNSCheckAt != nil {
		if elapsed := now.Sub(*site.LastDNSCheckAt); elapsed < m.window {
			result := m.statusFromSite(site)
			next := site.LastDNSCheckAt.Add(m.window)
			result.RateLimited = true
			result.NextCheckAvailable = &next
			return result, nil
		}
	}

	if site.DNSVerificationToken == nil || site.DNSRecords == nil {
		return nil, fmt.Errorf("domain state incomplete for site %s: missing verification records", siteID)
	}

	// Stamp the window before the lookup so a concurrent caller is turned
	// away instead of doubling the DNS traffic. Losing the slot when the
	// lookup then fails is acceptable.
	site.LastDNSCheckAt = &now
	if err := m.store.UpdateDomainFields(ctx, site); err != nil {
		return nil, err
	}

	verification := m.verifier.VerifyDomain(ctx, site.Domain(), *site.DNSRecords)

	if !verification.LookupFailed {
		if provider := m.verifier.DetectProvider(ctx, site.Domain()); provider != "" {
			site.DNSProvider = &provider
		}
	}

	if verification.Verified {
		verifiedAt := m.now().UTC()
		site.CustomDomainStatus = models.DomainStatusVerified
		site.CustomDomainVerifiedAt = &verifiedAt
		site.CustomDomainError = nil
	} else {
		message := verificationErrorMessage(verification)
		site.CustomDomainStatus = models.DomainStatusFailed
		site.CustomDomainError = &message
	}

	if err := m.store.UpdateDomainFields(ctx, site); err != nil {
		return nil, err
	}

	logging.L().Info("domain verification pass recorded",
		zap.String("site_id", siteID.String()),
		zap.String("domain", site.Domain()),
		zap.String("status", string(site.CustomDomainStatus)),
		zap.Bool("lookup_failed", verification.LookupFailed))

	result := m.statusFromSite(site)
	result.Verification = verification
	return result, nil
}

// DomainStatus returns the stored attachment state without touching DNS.
func (m *Manager) DomainStatus(ctx context.Context, siteID uuid.UUID) (*StatusResult, error) {
	site, err := m.store.GetByID(ctx, siteID)
	if err != nil {
		return nil, err
	}
	return m.statusFromSite(site), nil
}

// DisconnectDomain releases the domain claim. The domain name itself and the
// verification timestamp survive for display and audit; token, records, and
// error are cleared. Disconnecting twice is a no-op.
func (m *Manager) DisconnectDomain(ctx context.Context, siteID uuid.UUID) error {
	site, err := m.store.GetByID(ctx, siteID)
	if err != nil {
		return err
	}

	if site.CustomDomain == nil || site.CustomDomainStatus == models.DomainStatusNotStarted {
		return ErrDomainNotConfigured
	}
	if site.CustomDomainStatus == models.DomainStatusDisconnected {
		return nil
	}

	site.CustomDomainStatus = models.DomainStatusDisconnected
	site.DNSVerificationToken = nil
	site.DNSRecords = nil
	site.DNSProvider = nil
	site.LastDNSCheckAt = nil
	site.CustomDomainError = nil

	if err := m.store.UpdateDomainFields(ctx, site); err != nil {
		return err
	}

	logging.L().Info("custom domain disconnected",
		zap.String("site_id", siteID.String()),
		zap.String("domain", site.Domain()))
	return nil
}

func (m *Manager) statusFromSite(site *models.Site) *StatusResult {
	result := &StatusResult{
		SiteID:        site.SiteID,
		Domain:        site.Domain(),
		Status:        site.CustomDomainStatus,
		DNSRecords:    site.DNSRecords,
		VerifiedAt:    site.CustomDomainVerifiedAt,
		LastCheckedAt: site.LastDNSCheckAt,
	}
	if site.CustomDomainStatus == "" {
		result.Status = models.DomainStatusNotStarted
	}
	if site.DNSProvider != nil {
		result.DNSProvider = *site.DNSProvider
	}
	if site.CustomDomainError != nil {
		result.Error = *site.CustomDomainError
	}
	return result
}

// normalizeDomain applies the shared hostname sanitizer plus the rules
// specific to attachable domains: no port, at least two labels, and never a
// platform domain.
func normalizeDomain(rawDomain string) (string, error) {
	domain, err := config.SanitizeHostname(rawDomain)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidDomain, err)
	}
	if strings.Contains(domain, ":") {
		return "", fmt.Errorf("%w: domain must not include a port", ErrInvalidDomain)
	}
	if !strings.Contains(domain, ".") {
		return "", fmt.Errorf("%w: domain must include at least two labels", ErrInvalidDomain)
	}
	if domain == platformDomain || strings.HasSuffix(domain, "."+platformDomain) {
		return "", fmt.Errorf("%w: platform domains cannot be attached", ErrInvalidDomain)
	}
	return domain, nil
}

func newVerificationToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate verification token: %w", err)
	}
	return TokenPrefix + hex.EncodeToString(buf), nil
}

func buildRecords(domain, token string) models.DNSRecordSet {
	return models.DNSRecordSet{
		CNAME: models.DNSRecord{
			Type:  "CNAME",
			Name:  domain,
			Value: ProxyHostname,
			TTL:   models.DefaultRecordTTL,
		},
		TXT: models.DNSRecord{
			Type:  "TXT",
			Name:  VerificationPrefix + "." + domain,
			Value: token,
			TTL:   models.DefaultRecordTTL,
		},
	}
}

// verificationErrorMessage picks the most actionable failure for the tenant:
// a wrong value beats a missing record beats an unreachable resolver.
func verificationErrorMessage(result *dnsverify.Result) string {
	for _, msg := range result.Errors {
		if strings.Contains(msg, "mismatch") {
			return msg
		}
	}
	for _, msg := range result.Errors {
		if strings.Contains(msg, "no ") {
			return msg
		}
	}
	if len(result.Errors) > 0 {
		return result.Errors[0]
	}
	return "verification failed"
}
