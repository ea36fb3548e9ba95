// Package dnsverify compares live DNS against the records a tenant was asked
// to create. All outcomes are data: a lookup that cannot complete is reported
// inside the Result rather than as a returned error, so callers can persist
// it on the domain record.
package dnsverify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/miekg/dns"
	"go.uber.org/zap"

	"github.com/sitewardhq/siteward/internal/logging"
	"github.com/sitewardhq/siteward/internal/models"
)

const defaultTimeout = 5 * time.Second

// Result reports the outcome of a verification pass.
type Result struct {
	Verified   bool     `json:"verified"`
	CNAMEValid bool     `json:"cnameValid"`
	TXTValid   bool     `json:"txtValid"`
	Errors     []string `json:"errors,omitempty"`
	Details    Details  `json:"details"`

	// LookupFailed marks transport-level failures (resolver unreachable,
	// timeout, SERVFAIL) as opposed to records that are absent or wrong.
	LookupFailed bool `json:"-"`
}

// Details carries the expected/observed record values for operator display.
type Details struct {
	ExpectedCNAME string `json:"expectedCname"`
	ActualCNAME   string `json:"actualCname,omitempty"`
	ExpectedTXT   string `json:"expectedTxt"`
	ActualTXT     string `json:"actualTxt,omitempty"`
}

type exchangeFunc func(ctx context.Context, msg *dns.Msg, server string) (*dns.Msg, error)

// Verifier resolves CNAME, TXT, and NS records against a fixed resolver set.
type Verifier struct {
	servers  []string
	timeout  time.Duration
	exchange exchangeFunc
}

// NewVerifier builds a verifier using the given resolvers (host:port). With
// none given it uses the system resolvers from /etc/resolv.conf, falling back
// to public ones.
func NewVerifier(servers ...string) *Verifier {
	if len(servers) == 0 {
		servers = systemServers()
	}
	return &Verifier{
		servers:  servers,
		timeout:  defaultTimeout,
		exchange: defaultExchange,
	}
}

func systemServers() []string {
	cfg, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(cfg.Servers) == 0 {
		return []string{"1.1.1.1:53", "8.8.8.8:53"}
	}
	port := cfg.Port
	if port == "" {
		port = "53"
	}
	servers := make([]string, 0, len(cfg.Servers))
	for _, host := range cfg.Servers {
		servers = append(servers, joinHostPort(host, port))
	}
	return servers
}

func joinHostPort(host, port string) string {
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		return "[" + host + "]:" + port
	}
	return host + ":" + port
}

// defaultExchange queries over UDP and retries over TCP when the response is
// truncated.
func defaultExchange(ctx context.Context, msg *dns.Msg, server string) (*dns.Msg, error) {
	client := &dns.Client{}
	resp, _, err := client.ExchangeContext(ctx, msg, server)
	if err == nil && resp != nil && resp.Truncated {
		tcpClient := &dns.Client{Net: "tcp"}
		if tcpResp, _, tcpErr := tcpClient.ExchangeContext(ctx, msg, server); tcpErr == nil {
			return tcpResp, nil
		}
	}
	return resp, err
}

// VerifyDomain checks the domain's CNAME and the token TXT record against
// the expected set. Hostname comparison is case-insensitive with trailing
// dots stripped. verified is true only when both records match.
func (v *Verifier) VerifyDomain(ctx context.Context, domain string, expected models.DNSRecordSet) *Result {
	result := &Result{
		Details: Details{
			ExpectedCNAME: expected.CNAME.Value,
			ExpectedTXT:   expected.TXT.Value,
		},
	}

	targets, err := v.lookupCNAME(ctx, domain)
	switch {
	case err != nil:
		result.LookupFailed = true
		result.Errors = append(result.Errors, fmt.Sprintf("CNAME lookup failed: %v", err))
	case len(targets) == 0:
		result.Errors = append(result.Errors, fmt.Sprintf("no CNAME record found for %s", domain))
	default:
		result.Details.ActualCNAME = normalizeName(targets[0])
		want := normalizeName(expected.CNAME.Value)
		for _, target := range targets {
			if normalizeName(target) == want {
				result.CNAMEValid = true
				break
			}
		}
		if !result.CNAMEValid {
			result.Errors = append(result.Errors,
				fmt.Sprintf("CNAME mismatch: expected %s, found %s", want, normalizeName(targets[0])))
		}
	}

	txtName := expected.TXT.Name
	values, err := v.lookupTXT(ctx, txtName)
	switch {
	case err != nil:
		result.LookupFailed = true
		result.Errors = append(result.Errors, fmt.Sprintf("TXT lookup failed: %v", err))
	case len(values) == 0:
		result.Errors = append(result.Errors, fmt.Sprintf("no TXT record found at %s", txtName))
	default:
		result.Details.ActualTXT = values[0]
		for _, value := range values {
			if strings.EqualFold(strings.TrimSpace(value), strings.TrimSpace(expected.TXT.Value)) {
				result.TXTValid = true
				break
			}
		}
		if !result.TXTValid {
			result.Errors = append(result.Errors,
				fmt.Sprintf("TXT mismatch at %s: expected %s, found %s", txtName, expected.TXT.Value, values[0]))
		}
	}

	result.Verified = result.CNAMEValid && result.TXTValid

	logging.L().Debug("domain verification pass",
		zap.String("domain", domain),
		zap.Bool("verified", result.Verified),
		zap.Bool("cname_valid", result.CNAMEValid),
		zap.Bool("txt_valid", result.TXTValid),
		zap.Bool("lookup_failed", result.LookupFailed))

	return result
}

// DetectProvider maps the domain's authoritative nameservers to a known DNS
// provider name. Best effort, advisory only: unknown or unreachable yields "".
func (v *Verifier) DetectProvider(ctx context.Context, domain string) string {
	name := normalizeName(domain)
	// Walk toward the registrable parent: subdomains usually have no NS set
	// of their own.
	for depth := 0; depth < 3 && strings.Count(name, ".") >= 1; depth++ {
		hosts, err := v.lookupNS(ctx, name)
		if err != nil {
			return ""
		}
		for _, host := range hosts {
			if provider := providerFromNS(host); provider != "" {
				return provider
			}
		}
		if len(hosts) > 0 {
			// Authoritative servers found but none recognized.
			return ""
		}
		idx := strings.Index(name, ".")
		if idx < 0 {
			break
		}
		name = name[idx+1:]
	}
	return ""
}

// ResolveAddresses returns the IPv4 addresses the name currently resolves to,
// following any CNAME chain. Used by operational checks to confirm the edge
// hostname is live.
func (v *Verifier) ResolveAddresses(ctx context.Context, name string) ([]string, error) {
	answers, err := v.query(ctx, name, dns.TypeA)
	if err != nil {
		return nil, err
	}
	var addrs []string
	for _, rr := range answers {
		if a, ok := rr.(*dns.A); ok {
			addrs = append(addrs, a.A.String())
		}
	}
	return addrs, nil
}

func (v *Verifier) lookupCNAME(ctx context.Context, domain string) ([]string, error) {
	answers, err := v.query(ctx, domain, dns.TypeCNAME)
	if err != nil {
		return nil, err
	}
	var targets []string
	for _, rr := range answers {
		if cname, ok := rr.(*dns.CNAME); ok {
			targets = append(targets, cname.Target)
		}
	}
	return targets, nil
}

func (v *Verifier) lookupTXT(ctx context.Context, name string) ([]string, error) {
	answers, err := v.query(ctx, name, dns.TypeTXT)
	if err != nil {
		return nil, err
	}
	var values []string
	for _, rr := range answers {
		if txt, ok := rr.(*dns.TXT); ok {
			// Long values arrive split into 255-byte chunks.
			values = append(values, strings.Join(txt.Txt, ""))
		}
	}
	return values, nil
}

func (v *Verifier) lookupNS(ctx context.Context, name string) ([]string, error) {
	answers, err := v.query(ctx, name, dns.TypeNS)
	if err != nil {
		return nil, err
	}
	var hosts []string
	for _, rr := range answers {
		if ns, ok := rr.(*dns.NS); ok {
			hosts = append(hosts, ns.Ns)
		}
	}
	return hosts, nil
}

// query tries each resolver in order with a per-attempt deadline. NXDOMAIN
// and empty answers are absence, not failure; an error is returned only when
// no resolver produced a usable response.
func (v *Verifier) query(ctx context.Context, name string, qtype uint16) ([]dns.RR, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), qtype)
	msg.RecursionDesired = true

	var lastErr error
	for _, server := range v.servers {
		attemptCtx, cancel := context.WithTimeout(ctx, v.timeout)
		resp, err := v.exchange(attemptCtx, msg, server)
		cancel()

		if err != nil {
			lastErr = fmt.Errorf("%s: %w", server, err)
			logging.L().Debug("dns exchange failed",
				zap.String("server", server),
				zap.String("name", name),
				zap.Uint16("qtype", qtype),
				zap.Error(err))
			continue
		}

		switch resp.Rcode {
		case dns.RcodeSuccess:
			return resp.Answer, nil
		case dns.RcodeNameError:
			return nil, nil
		default:
			lastErr = fmt.Errorf("%s: rcode %s", server, dns.RcodeToString[resp.Rcode])
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no resolvers configured")
	}
	return nil, lastErr
}

func normalizeName(name string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(name)), ".")
}
