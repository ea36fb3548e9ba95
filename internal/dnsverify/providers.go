package dnsverify

import "strings"

// providerPatterns maps nameserver host fragments to provider names. First
// match wins, so more specific fragments sort before generic ones.
var providerPatterns = []struct {
	fragment string
	name     string
}{
	{"cloudflare.com", "Cloudflare"},
	{"awsdns", "Amazon Route 53"},
	{"googledomains.com", "Google Cloud DNS"},
	{"azure-dns.", "Azure DNS"},
	{"domaincontrol.com", "GoDaddy"},
	{"registrar-servers.com", "Namecheap"},
	{"digitalocean.com", "DigitalOcean"},
	{"vercel-dns.com", "Vercel"},
	{"nsone.net", "NS1"},
	{"dnsimple.com", "DNSimple"},
	{"linode.com", "Linode"},
	{"gandi.net", "Gandi"},
	{"ovh.net", "OVH"},
	{"he.net", "Hurricane Electric"},
	{"porkbun.com", "Porkbun"},
	{"cloudns.net", "ClouDNS"},
	{"hetzner.com", "Hetzner"},
	{"hetzner.de", "Hetzner"},
}

// providerFromNS returns the provider behind an authoritative nameserver
// host, or "" when unrecognized.
func providerFromNS(host string) string {
	normalized := normalizeName(host)
	for _, p := range providerPatterns {
		if strings.Contains(normalized, p.fragment) {
			return p.name
		}
	}
	return ""
}
