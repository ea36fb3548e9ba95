package models

import (
	"time"

	"github.com/google/uuid"
)

// DomainStatus is the custom-domain lifecycle state of a site.
type DomainStatus string

const (
	DomainStatusNotStarted   DomainStatus = "not_started"
	DomainStatusPending      DomainStatus = "pending_verification"
	DomainStatusVerified     DomainStatus = "verified"
	DomainStatusFailed       DomainStatus = "failed"
	DomainStatusDisconnected DomainStatus = "disconnected"
)

// Valid reports whether s is one of the known lifecycle states.
func (s DomainStatus) Valid() bool {
	switch s {
	case DomainStatusNotStarted, DomainStatusPending, DomainStatusVerified,
		DomainStatusFailed, DomainStatusDisconnected:
		return true
	}
	return false
}

// DefaultRecordTTL is the TTL suggested for the records tenants create.
const DefaultRecordTTL = 300

// DNSRecord is one record a tenant must create at their registrar.
type DNSRecord struct {
	Type  string `json:"type"`
	Name  string `json:"name"`
	Value string `json:"value"`
	TTL   int    `json:"ttl"`
}

// DNSRecordSet holds the two records required for domain verification.
type DNSRecordSet struct {
	CNAME DNSRecord `json:"cname"`
	TXT   DNSRecord `json:"txt"`
}

// Site represents a tenant site and its custom-domain attachment state.
// The domain columns are written exclusively by the lifecycle manager.
type Site struct {
	SiteID                 uuid.UUID     `json:"siteId"`
	Name                   string        `json:"name"`
	CustomDomain           *string       `json:"customDomain,omitempty"`
	CustomDomainStatus     DomainStatus  `json:"customDomainStatus"`
	DNSProvider            *string       `json:"dnsProvider,omitempty"`
	DNSVerificationToken   *string       `json:"dnsVerificationToken,omitempty"`
	DNSRecords             *DNSRecordSet `json:"dnsRecords,omitempty"`
	LastDNSCheckAt         *time.Time    `json:"lastDnsCheckAt,omitempty"`
	CustomDomainVerifiedAt *time.Time    `json:"customDomainVerifiedAt,omitempty"`
	CustomDomainError      *string       `json:"customDomainError,omitempty"`
	CreatedAt              time.Time     `json:"createdAt"`
	UpdatedAt              time.Time     `json:"updatedAt"`
}

// Domain returns the attached custom domain or "".
func (s *Site) Domain() string {
	if s.CustomDomain == nil {
		return ""
	}
	return *s.CustomDomain
}
