package models

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

var (
	// ErrSiteNotFound is returned when no site matches the lookup.
	ErrSiteNotFound = errors.New("site not found")
	// ErrDomainTaken is returned when the unique domain index rejects a
	// write because another site holds an active claim on the domain.
	ErrDomainTaken = errors.New("domain already attached to another site")
)

const siteColumns = `site_id, name, custom_domain, custom_domain_status, dns_provider,
	dns_verification_token, dns_records, last_dns_check_at, custom_domain_verified_at,
	custom_domain_error, created_at, updated_at`

// SiteStore persists sites and their domain attachment state.
type SiteStore struct {
	db *sql.DB
}

// NewSiteStore wraps the given pool.
func NewSiteStore(db *sql.DB) *SiteStore {
	return &SiteStore{db: db}
}

// CreateSite inserts a new site with no custom domain configured.
func (s *SiteStore) CreateSite(ctx context.Context, name string) (*Site, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO site (name)
		VALUES ($1)
		RETURNING `+siteColumns, name)

	site, err := scanSite(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create site: %w", err)
	}
	return site, nil
}

// GetByID fetches a site by primary key.
func (s *SiteStore) GetByID(ctx context.Context, siteID uuid.UUID) (*Site, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+siteColumns+`
		FROM site
		WHERE site_id = $1`, siteID)

	site, err := scanSite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSiteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load site: %w", err)
	}
	return site, nil
}

// GetByActiveDomain fetches the site holding an active claim on the domain.
// Disconnected sites keep the domain column for display but do not hold a
// claim, so they never match.
func (s *SiteStore) GetByActiveDomain(ctx context.Context, domain string) (*Site, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+siteColumns+`
		FROM site
		WHERE LOWER(custom_domain) = LOWER($1)
		  AND custom_domain_status <> 'disconnected'`, domain)

	site, err := scanSite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSiteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load site by domain: %w", err)
	}
	return site, nil
}

// UpdateDomainFields writes every domain column from the given site in one
// statement. A unique-index violation surfaces as ErrDomainTaken so racing
// attachments of the same domain resolve to exactly one winner.
func (s *SiteStore) UpdateDomainFields(ctx context.Context, site *Site) error {
	var records any
	if site.DNSRecords != nil {
		encoded, err := json.Marshal(site.DNSRecords)
		if err != nil {
			return fmt.Errorf("failed to encode dns records: %w", err)
		}
		records = encoded
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE site SET
			custom_domain = $2,
			custom_domain_status = $3,
			dns_provider = $4,
			dns_verification_token = $5,
			dns_records = $6,
			last_dns_check_at = $7,
			custom_domain_verified_at = $8,
			custom_domain_error = $9,
			updated_at = NOW()
		WHERE site_id = $1`,
		site.SiteID,
		site.CustomDomain,
		site.CustomDomainStatus,
		site.DNSProvider,
		site.DNSVerificationToken,
		records,
		site.LastDNSCheckAt,
		site.CustomDomainVerifiedAt,
		site.CustomDomainError,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDomainTaken
		}
		return fmt.Errorf("failed to update domain fields: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return ErrSiteNotFound
	}
	return nil
}

// ListSites returns every site ordered by creation time.
func (s *SiteStore) ListSites(ctx context.Context) ([]Site, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+siteColumns+`
		FROM site
		ORDER BY created_at, site_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectSites(rows)
}

// ListQuery controls ordering and paging for ListSitesPage.
type ListQuery struct {
	SortBy string // "created_at", "name", or "custom_domain_status"
	Desc   bool
	Limit  int
	Offset int
}

// orderExpr maps the sort key onto a fixed column expression, so caller
// input never reaches the SQL text.
func (q ListQuery) orderExpr() string {
	col := "created_at"
	switch q.SortBy {
	case "name":
		col = "LOWER(name)"
	case "custom_domain_status":
		col = "custom_domain_status"
	}
	dir := "ASC"
	if q.Desc {
		dir = "DESC"
	}
	return col + " " + dir + ", site_id"
}

// ListSitesPage returns one page of sites plus the total count.
func (s *SiteStore) ListSitesPage(ctx context.Context, q ListQuery) ([]Site, int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM site`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count sites: %w", err)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+siteColumns+`
		FROM site
		ORDER BY `+q.orderExpr()+`
		LIMIT $1 OFFSET $2`, limit, q.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list sites: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sites, err := collectSites(rows)
	if err != nil {
		return nil, 0, err
	}
	return sites, total, nil
}

// ListByDomainStatus returns sites whose domain attachment is in one of the
// given states, oldest check first so the sweep drains fairly.
func (s *SiteStore) ListByDomainStatus(ctx context.Context, statuses ...DomainStatus) ([]Site, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	values := make([]string, len(statuses))
	for i, st := range statuses {
		values[i] = string(st)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+siteColumns+`
		FROM site
		WHERE custom_domain IS NOT NULL
		  AND custom_domain_status = ANY($1)
		ORDER BY last_dns_check_at NULLS FIRST, site_id`, pq.Array(values))
	if err != nil {
		return nil, fmt.Errorf("failed to list sites by status: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectSites(rows)
}

// DeleteSite removes a site entirely.
func (s *SiteStore) DeleteSite(ctx context.Context, siteID uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM site WHERE site_id = $1`, siteID)
	if err != nil {
		return fmt.Errorf("failed to delete site: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		return ErrSiteNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSite(row rowScanner) (*Site, error) {
	var (
		site       Site
		rawRecords []byte
	)
	err := row.Scan(
		&site.SiteID,
		&site.Name,
		&site.CustomDomain,
		&site.CustomDomainStatus,
		&site.DNSProvider,
		&site.DNSVerificationToken,
		&rawRecords,
		&site.LastDNSCheckAt,
		&site.CustomDomainVerifiedAt,
		&site.CustomDomainError,
		&site.CreatedAt,
		&site.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(rawRecords) > 0 {
		var records DNSRecordSet
		if err := json.Unmarshal(rawRecords, &records); err != nil {
			return nil, fmt.Errorf("failed to decode dns records: %w", err)
		}
		site.DNSRecords = &records
	}
	return &site, nil
}

func collectSites(rows *sql.Rows) ([]Site, error) {
	var sites []Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan site: %w", err)
		}
		sites = append(sites, *site)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sites: %w", err)
	}
	return sites, nil
}
