package lifecycle

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitewardhq/siteward/internal/dnsverify"
	"github.com/sitewardhq/siteward/internal/models"
)

type fakeStore struct {
	sites    map[uuid.UUID]*models.Site
	storeErr error
	updates  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{sites: make(map[uuid.UUID]*models.Site)}
}

func (f *fakeStore) addSite(name string) *models.Site {
	site := &models.Site{
		SiteID:             uuid.New(),
		Name:               name,
		CustomDomainStatus: models.DomainStatusNotStarted,
		CreatedAt:          time.Now().UTC(),
		UpdatedAt:          time.Now().UTC(),
	}
	f.sites[site.SiteID] = site
	return site
}

func (f *fakeStore) GetByID(_ context.Context, siteID uuid.UUID) (*models.Site, error) {
	site, ok := f.sites[siteID]
	if !ok {
		return nil, models.ErrSiteNotFound
	}
	clone := *site
	return &clone, nil
}

func (f *fakeStore) GetByActiveDomain(_ context.Context, domain string) (*models.Site, error) {
	for _, site := range f.sites {
		if strings.EqualFold(site.Domain(), domain) &&
			site.CustomDomainStatus != models.DomainStatusDisconnected &&
			site.CustomDomain != nil {
			clone := *site
			return &clone, nil
		}
	}
	return nil, models.ErrSiteNotFound
}

func (f *fakeStore) UpdateDomainFields(_ context.Context, site *models.Site) error {
	if f.storeErr != nil {
		return f.storeErr
	}
	if _, ok := f.sites[site.SiteID]; !ok {
		return models.ErrSiteNotFound
	}
	clone := *site
	f.sites[site.SiteID] = &clone
	f.updates++
	return nil
}

func (f *fakeStore) ListByDomainStatus(_ context.Context, statuses ...models.DomainStatus) ([]models.Site, error) {
	if f.storeErr != nil {
		return nil, f.storeErr
	}
	var out []models.Site
	for _, site := range f.sites {
		if site.CustomDomain == nil {
			continue
		}
		for _, status := range statuses {
			if site.CustomDomainStatus == status {
				out = append(out, *site)
				break
			}
		}
	}
	return out, nil
}

type fakeVerifier struct {
	result   *dnsverify.Result
	provider string
	calls    int
	onVerify func()
}

func (f *fakeVerifier) VerifyDomain(_ context.Context, _ string, _ models.DNSRecordSet) *dnsverify.Result {
	f.calls++
	if f.onVerify != nil {
		f.onVerify()
	}
	if f.result != nil {
		return f.result
	}
	return &dnsverify.Result{}
}

func (f *fakeVerifier) DetectProvider(_ context.Context, _ string) string {
	return f.provider
}

func verifiedResult() *dnsverify.Result {
	return &dnsverify.Result{Verified: true, CNAMEValid: true, TXTValid: true}
}

func newTestManager(store *fakeStore, verifier *fakeVerifier) *Manager {
	m := NewManager(store, verifier)
	m.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return m
}

func initiatePending(t *testing.T, m *Manager, store *fakeStore, domain string) *models.Site {
	t.Helper()
	site := store.addSite("Site")
	_, err := m.InitiateDomain(context.Background(), site.SiteID, domain)
	require.NoError(t, err)
	return store.sites[site.SiteID]
}

func TestInitiateDomainCreatesPendingAttempt(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(store, &fakeVerifier{})
	site := store.addSite("Docs")

	result, err := m.InitiateDomain(context.Background(), site.SiteID, "Docs.Example.COM.")
	require.NoError(t, err)

	assert.Equal(t, "docs.example.com", result.Domain, "domain is normalized")
	assert.Equal(t, models.DomainStatusPending, result.Status)
	assert.Regexp(t, regexp.MustCompile(`^siteward-verify-[0-9a-f]{32}$`), result.VerificationToken)

	assert.Equal(t, "CNAME", result.DNSRecords.CNAME.Type)
	assert.Equal(t, "docs.example.com", result.DNSRecords.CNAME.Name)
	assert.Equal(t, ProxyHostname, result.DNSRecords.CNAME.Value)
	assert.Equal(t, models.DefaultRecordTTL, result.DNSRecords.CNAME.TTL)
	assert.Equal(t, "TXT", result.DNSRecords.TXT.Type)
	assert.Equal(t, "_siteward-verify.docs.example.com", result.DNSRecords.TXT.Name)
	assert.Equal(t, result.VerificationToken, result.DNSRecords.TXT.Value)

	stored := store.sites[site.SiteID]
	assert.Equal(t, models.DomainStatusPending, stored.CustomDomainStatus)
	assert.Nil(t, stored.LastDNSCheckAt)
	assert.Nil(t, stored.CustomDomainVerifiedAt)
	assert.Nil(t, stored.CustomDomainError)
}

func TestInitiateDomainIdempotentWhilePending(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(store, &fakeVerifier{})
	site := store.addSite("Docs")

	first, err := m.InitiateDomain(context.Background(), site.SiteID, "docs.example.com")
	require.NoError(t, err)
	updatesAfterFirst := store.updates

	second, err := m.InitiateDomain(context.Background(), site.SiteID, "docs.example.com")
	require.NoError(t, err)

	assert.Equal(t, first.VerificationToken, second.VerificationToken)
	assert.Equal(t, first.DNSRecords, second.DNSRecords)
	assert.Equal(t, updatesAfterFirst, store.updates, "no write on the idempotent path")
}

func TestInitiateDomainRotatesTokenAfterFailure(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(store, &fakeVerifier{result: &dnsverify.Result{
		Errors: []string{"no CNAME record found for docs.example.com"},
	}})
	site := store.addSite("Docs")

	first, err := m.InitiateDomain(context.Background(), site.SiteID, "docs.example.com")
	require.NoError(t, err)

	// Drive the attempt into failed before restarting it.
	_, err = m.CheckDomain(context.Background(), site.SiteID)
	require.NoError(t, err)
	require.Equal(t, models.DomainStatusFailed, store.sites[site.SiteID].CustomDomainStatus)

	second, err := m.InitiateDomain(context.Background(), site.SiteID, "docs.example.com")
	require.NoError(t, err)

	assert.NotEqual(t, first.VerificationToken, second.VerificationToken)
	assert.Equal(t, models.DomainStatusPending, store.sites[site.SiteID].CustomDomainStatus)
	assert.Nil(t, store.sites[site.SiteID].CustomDomainError, "previous failure is cleared")
}

func TestInitiateDomainKeepsTokenWhenReverifyingVerified(t *testing.T) {
	store := newFakeStore()
	verifier := &fakeVerifier{result: verifiedResult()}
	m := newTestManager(store, verifier)
	site := store.addSite("Docs")

	first, err := m.InitiateDomain(context.Background(), site.SiteID, "docs.example.com")
	require.NoError(t, err)

	_, err = m.CheckDomain(context.Background(), site.SiteID)
	require.NoError(t, err)
	require.Equal(t, models.DomainStatusVerified, store.sites[site.SiteID].CustomDomainStatus)

	again, err := m.InitiateDomain(context.Background(), site.SiteID, "docs.example.com")
	require.NoError(t, err)

	assert.Equal(t, first.VerificationToken, again.VerificationToken, "published TXT record stays valid")
	assert.Equal(t, models.DomainStatusPending, again.Status)
	assert.Nil(t, store.sites[site.SiteID].CustomDomainVerifiedAt)
}

func TestInitiateDomainSwitchingDomainsRotatesToken(t *testing.T) {
	store := newFakeStore()
	verifier := &fakeVerifier{result: verifiedResult()}
	m := newTestManager(store, verifier)
	site := store.addSite("Docs")

	first, err := m.InitiateDomain(context.Background(), site.SiteID, "docs.example.com")
	require.NoError(t, err)
	_, err = m.CheckDomain(context.Background(), site.SiteID)
	require.NoError(t, err)

	second, err := m.InitiateDomain(context.Background(), site.SiteID, "www.example.com")
	require.NoError(t, err)

	assert.NotEqual(t, first.VerificationToken, second.VerificationToken)
	assert.Equal(t, "www.example.com", store.sites[site.SiteID].Domain())
}

func TestInitiateDomainConflict(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(store, &fakeVerifier{})

	initiatePending(t, m, store, "shop.example.com")
	other := store.addSite("Other")

	_, err := m.InitiateDomain(context.Background(), other.SiteID, "SHOP.example.com")
	var conflict *DomainConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "shop.example.com", conflict.Domain)
}

func TestInitiateDomainAfterHolderDisconnects(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(store, &fakeVerifier{})

	holder := initiatePending(t, m, store, "shop.example.com")
	require.NoError(t, m.DisconnectDomain(context.Background(), holder.SiteID))

	other := store.addSite("Other")
	result, err := m.InitiateDomain(context.Background(), other.SiteID, "shop.example.com")
	require.NoError(t, err)
	assert.Equal(t, models.DomainStatusPending, result.Status)
}

func TestInitiateDomainRejectsInvalidInput(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(store, &fakeVerifier{})
	site := store.addSite("Docs")

	for _, raw := range []string{
		"",
		"*.example.com",
		"example.com/path",
		"has space.example.com",
		"localhost",
		"docs.example.com:8443",
		"edge.siteward.net",
		"anything.siteward.net",
	} {
		_, err := m.InitiateDomain(context.Background(), site.SiteID, raw)
		assert.ErrorIs(t, err, ErrInvalidDomain, raw)
	}
}

func TestInitiateDomainMapsRacingClaimToConflict(t *testing.T) {
	store := newFakeStore()
	store.storeErr = models.ErrDomainTaken
	m := newTestManager(store, &fakeVerifier{})
	site := store.addSite("Docs")

	_, err := m.InitiateDomain(context.Background(), site.SiteID, "docs.example.com")
	var conflict *DomainConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestInitiateDomainUnknownSite(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(store, &fakeVerifier{})

	_, err := m.InitiateDomain(context.Background(), uuid.New(), "docs.example.com")
	assert.ErrorIs(t, err, models.ErrSiteNotFound)
}

func TestCheckDomainVerifiedTransition(t *testing.T) {
	store := newFakeStore()
	verifier := &fakeVerifier{result: verifiedResult(), provider: "Cloudflare"}
	m := newTestManager(store, verifier)
	site := initiatePending(t, m, store, "docs.example.com")

	result, err := m.CheckDomain(context.Background(), site.SiteID)
	require.NoError(t, err)

	assert.Equal(t, models.DomainStatusVerified, result.Status)
	assert.Equal(t, "Cloudflare", result.DNSProvider)
	require.NotNil(t, result.Verification)
	assert.True(t, result.Verification.Verified)

	stored := store.sites[site.SiteID]
	assert.Equal(t, models.DomainStatusVerified, stored.CustomDomainStatus)
	require.NotNil(t, stored.CustomDomainVerifiedAt)
	assert.Equal(t, m.now().UTC(), *stored.CustomDomainVerifiedAt)
	require.NotNil(t, stored.LastDNSCheckAt)
	assert.Nil(t, stored.CustomDomainError)
}

func TestCheckDomainFailureRecordsMostSpecificError(t *testing.T) {
	store := newFakeStore()
	verifier := &fakeVerifier{result: &dnsverify.Result{
		CNAMEValid: false,
		TXTValid:   false,
		Errors: []string{
			"no CNAME record found for docs.example.com",
			"TXT mismatch at _siteward-verify.docs.example.com: expected a, found b",
		},
	}}
	m := newTestManager(store, verifier)
	site := initiatePending(t, m, store, "docs.example.com")

	result, err := m.CheckDomain(context.Background(), site.SiteID)
	require.NoError(t, err)

	assert.Equal(t, models.DomainStatusFailed, result.Status)
	stored := store.sites[site.SiteID]
	require.NotNil(t, stored.CustomDomainError)
	assert.Contains(t, *stored.CustomDomainError, "TXT mismatch", "mismatch beats absence")
	assert.Nil(t, stored.CustomDomainVerifiedAt)
}

func TestCheckDomainRateLimitWindow(t *testing.T) {
	store := newFakeStore()
	verifier := &fakeVerifier{result: verifiedResult()}
	m := newTestManager(store, verifier)
	site := initiatePending(t, m, store, "docs.example.com")

	recent := m.now().UTC().Add(-30 * time.Second)
	store.sites[site.SiteID].LastDNSCheckAt = &recent
	updatesBefore := store.updates

	result, err := m.CheckDomain(context.Background(), site.SiteID)
	require.NoError(t, err)

	assert.True(t, result.RateLimited)
	require.NotNil(t, result.NextCheckAvailable)
	assert.Equal(t, recent.Add(RecheckWindow), *result.NextCheckAvailable)
	assert.Equal(t, models.DomainStatusPending, result.Status, "status unchanged")
	assert.Zero(t, verifier.calls, "no DNS traffic inside the window")
	assert.Equal(t, updatesBefore, store.updates, "no write inside the window")

	// Outside the window the check proceeds.
	stale := m.now().UTC().Add(-(RecheckWindow + time.Second))
	store.sites[site.SiteID].LastDNSCheckAt = &stale

	result, err = m.CheckDomain(context.Background(), site.SiteID)
	require.NoError(t, err)
	assert.False(t, result.RateLimited)
	assert.Equal(t, 1, verifier.calls)
}

func TestCheckDomainStampsWindowBeforeLookup(t *testing.T) {
	store := newFakeStore()
	verifier := &fakeVerifier{result: verifiedResult()}
	m := newTestManager(store, verifier)
	site := initiatePending(t, m, store, "docs.example.com")

	var stampedDuringLookup *time.Time
	verifier.onVerify = func() {
		stampedDuringLookup = store.sites[site.SiteID].LastDNSCheckAt
	}

	_, err := m.CheckDomain(context.Background(), site.SiteID)
	require.NoError(t, err)

	require.NotNil(t, stampedDuringLookup, "window stamp is persisted before the lookup runs")
	assert.Equal(t, m.now().UTC(), *stampedDuringLookup)
}

func TestCheckDomainVerifiedIsReadOnly(t *testing.T) {
	store := newFakeStore()
	verifier := &fakeVerifier{result: verifiedResult()}
	m := newTestManager(store, verifier)
	site := initiatePending(t, m, store, "docs.example.com")

	_, err := m.CheckDomain(context.Background(), site.SiteID)
	require.NoError(t, err)
	require.Equal(t, 1, verifier.calls)

	result, err := m.CheckDomain(context.Background(), site.SiteID)
	require.NoError(t, err)

	assert.Equal(t, models.DomainStatusVerified, result.Status)
	assert.False(t, result.RateLimited)
	assert.Equal(t, 1, verifier.calls, "verified domains are not re-resolved")
}

func TestCheckDomainRequiresAttachment(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(store, &fakeVerifier{})

	fresh := store.addSite("Fresh")
	_, err := m.CheckDomain(context.Background(), fresh.SiteID)
	assert.ErrorIs(t, err, ErrDomainNotConfigured)

	disconnected := initiatePending(t, m, store, "gone.example.com")
	require.NoError(t, m.DisconnectDomain(context.Background(), disconnected.SiteID))
	_, err = m.CheckDomain(context.Background(), disconnected.SiteID)
	assert.ErrorIs(t, err, ErrDomainNotConfigured)
}

func TestCheckDomainLookupFailureSkipsProviderDetection(t *testing.T) {
	store := newFakeStore()
	verifier := &fakeVerifier{
		provider: "Cloudflare",
		result: &dnsverify.Result{
			LookupFailed: true,
			Errors:       []string{"CNAME lookup failed: 10.0.0.1:53: i/o timeout"},
		},
	}
	m := newTestManager(store, verifier)
	site := initiatePending(t, m, store, "docs.example.com")

	result, err := m.CheckDomain(context.Background(), site.SiteID)
	require.NoError(t, err)

	assert.Equal(t, models.DomainStatusFailed, result.Status)
	assert.Empty(t, result.DNSProvider)
	stored := store.sites[site.SiteID]
	assert.Nil(t, stored.DNSProvider)
	require.NotNil(t, stored.CustomDomainError)
	assert.Contains(t, *stored.CustomDomainError, "lookup failed")
}

func TestDisconnectDomainClearsOperationalFields(t *testing.T) {
	store := newFakeStore()
	verifier := &fakeVerifier{result: verifiedResult(), provider: "Cloudflare"}
	m := newTestManager(store, verifier)
	site := initiatePending(t, m, store, "docs.example.com")

	_, err := m.CheckDomain(context.Background(), site.SiteID)
	require.NoError(t, err)
	verifiedAt := store.sites[site.SiteID].CustomDomainVerifiedAt
	require.NotNil(t, verifiedAt)

	require.NoError(t, m.DisconnectDomain(context.Background(), site.SiteID))

	stored := store.sites[site.SiteID]
	assert.Equal(t, models.DomainStatusDisconnected, stored.CustomDomainStatus)
	assert.Equal(t, "docs.example.com", stored.Domain(), "domain survives for display")
	assert.Equal(t, verifiedAt, stored.CustomDomainVerifiedAt, "verification timestamp survives for audit")
	assert.Nil(t, stored.DNSVerificationToken)
	assert.Nil(t, stored.DNSRecords)
	assert.Nil(t, stored.DNSProvider)
	assert.Nil(t, stored.LastDNSCheckAt)
	assert.Nil(t, stored.CustomDomainError)

	updates := store.updates
	require.NoError(t, m.DisconnectDomain(context.Background(), site.SiteID), "disconnect is idempotent")
	assert.Equal(t, updates, store.updates)
}

func TestDisconnectDomainRequiresAttachment(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(store, &fakeVerifier{})
	site := store.addSite("Fresh")

	err := m.DisconnectDomain(context.Background(), site.SiteID)
	assert.ErrorIs(t, err, ErrDomainNotConfigured)
}

func TestDomainStatusSnapshotDoesNotTouchDNS(t *testing.T) {
	store := newFakeStore()
	verifier := &fakeVerifier{}
	m := newTestManager(store, verifier)

	fresh := store.addSite("Fresh")
	result, err := m.DomainStatus(context.Background(), fresh.SiteID)
	require.NoError(t, err)
	assert.Equal(t, models.DomainStatusNotStarted, result.Status)
	assert.Empty(t, result.Domain)

	pending := initiatePending(t, m, store, "docs.example.com")
	result, err = m.DomainStatus(context.Background(), pending.SiteID)
	require.NoError(t, err)
	assert.Equal(t, models.DomainStatusPending, result.Status)
	assert.Equal(t, "docs.example.com", result.Domain)
	require.NotNil(t, result.DNSRecords)
	assert.Zero(t, verifier.calls)
}

func TestVerificationErrorMessagePriority(t *testing.T) {
	mismatchFirst := &dnsverify.Result{Errors: []string{
		"CNAME lookup failed: timeout",
		"TXT mismatch at x: expected a, found b",
	}}
	assert.Contains(t, verificationErrorMessage(mismatchFirst), "mismatch")

	absence := &dnsverify.Result{Errors: []string{
		"CNAME lookup failed: timeout",
		"no TXT record found at x",
	}}
	assert.Contains(t, verificationErrorMessage(absence), "no TXT record")

	lookupOnly := &dnsverify.Result{Errors: []string{"CNAME lookup failed: timeout"}}
	assert.Contains(t, verificationErrorMessage(lookupOnly), "lookup failed")

	assert.Equal(t, "verification failed", verificationErrorMessage(&dnsverify.Result{}))
}
