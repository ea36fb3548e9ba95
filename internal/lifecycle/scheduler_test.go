package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitewardhq/siteward/internal/models"
)

type fakeChecker struct {
	mu      sync.Mutex
	checked []uuid.UUID
	results map[uuid.UUID]*StatusResult
	errs    map[uuid.UUID]error
	onCheck func()
}

func (f *fakeChecker) CheckDomain(_ context.Context, siteID uuid.UUID) (*StatusResult, error) {
	f.mu.Lock()
	f.checked = append(f.checked, siteID)
	f.mu.Unlock()
	if f.onCheck != nil {
		f.onCheck()
	}
	if err, ok := f.errs[siteID]; ok {
		return nil, err
	}
	if result, ok := f.results[siteID]; ok {
		return result, nil
	}
	return &StatusResult{SiteID: siteID, Status: models.DomainStatusVerified}, nil
}

func (f *fakeChecker) calls() []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uuid.UUID(nil), f.checked...)
}

func attachedSite(store *fakeStore, domain string, status models.DomainStatus) *models.Site {
	site := store.addSite("Site")
	site.CustomDomain = &domain
	site.CustomDomainStatus = status
	return site
}

func TestSweepChecksPendingAndFailedOnly(t *testing.T) {
	store := newFakeStore()
	pending := attachedSite(store, "a.example.com", models.DomainStatusPending)
	failed := attachedSite(store, "b.example.com", models.DomainStatusFailed)
	attachedSite(store, "c.example.com", models.DomainStatusVerified)
	attachedSite(store, "d.example.com", models.DomainStatusDisconnected)
	store.addSite("Fresh")

	checker := &fakeChecker{}
	rs := NewRecheckScheduler(checker, store, time.Hour)
	rs.sweep()

	assert.ElementsMatch(t, []uuid.UUID{pending.SiteID, failed.SiteID}, checker.calls())
}

func TestSweepContinuesPastErrorsAndRateLimits(t *testing.T) {
	store := newFakeStore()
	erroring := attachedSite(store, "a.example.com", models.DomainStatusPending)
	limited := attachedSite(store, "b.example.com", models.DomainStatusPending)
	healthy := attachedSite(store, "c.example.com", models.DomainStatusPending)

	checker := &fakeChecker{
		errs: map[uuid.UUID]error{erroring.SiteID: assert.AnError},
		results: map[uuid.UUID]*StatusResult{
			limited.SiteID: {SiteID: limited.SiteID, Status: models.DomainStatusPending, RateLimited: true},
		},
	}
	rs := NewRecheckScheduler(checker, store, time.Hour)
	rs.sweep()

	assert.ElementsMatch(t,
		[]uuid.UUID{erroring.SiteID, limited.SiteID, healthy.SiteID},
		checker.calls(),
		"one bad site does not end the sweep")
}

func TestSweepStopsMidPassWhenStopped(t *testing.T) {
	store := newFakeStore()
	attachedSite(store, "a.example.com", models.DomainStatusPending)
	attachedSite(store, "b.example.com", models.DomainStatusPending)
	attachedSite(store, "c.example.com", models.DomainStatusPending)

	checker := &fakeChecker{}
	rs := NewRecheckScheduler(checker, store, time.Hour)
	checker.onCheck = rs.Stop

	rs.sweep()

	assert.Len(t, checker.calls(), 1, "remaining sites are skipped after Stop")
}

func TestSweepSurvivesListError(t *testing.T) {
	store := newFakeStore()
	store.storeErr = assert.AnError

	checker := &fakeChecker{}
	rs := NewRecheckScheduler(checker, store, time.Hour)
	rs.sweep()

	assert.Empty(t, checker.calls())
}

func TestNewRecheckSchedulerInitializesStopChan(t *testing.T) {
	rs := NewRecheckScheduler(&fakeChecker{}, newFakeStore(), time.Minute)
	require.NotNil(t, rs.stopChan)
	require.Equal(t, time.Minute, rs.interval)
}

func TestStartDisabledIntervalNeverSweeps(t *testing.T) {
	store := newFakeStore()
	attachedSite(store, "a.example.com", models.DomainStatusPending)

	checker := &fakeChecker{}
	rs := NewRecheckScheduler(checker, store, 0)
	rs.Start()

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, checker.calls())
}

func TestStartRunsImmediateSweep(t *testing.T) {
	store := newFakeStore()
	attachedSite(store, "a.example.com", models.DomainStatusPending)

	swept := make(chan struct{})
	var once sync.Once
	checker := &fakeChecker{onCheck: func() {
		once.Do(func() { close(swept) })
	}}

	rs := NewRecheckScheduler(checker, store, time.Hour)
	rs.Start()
	defer rs.Stop()

	select {
	case <-swept:
	case <-time.After(2 * time.Second):
		t.Fatal("sweep did not run on start")
	}
}
