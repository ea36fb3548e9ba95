package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sitewardhq/siteward/internal/database"
	"github.com/sitewardhq/siteward/internal/dnsverify"
	"github.com/sitewardhq/siteward/internal/lifecycle"
	"github.com/sitewardhq/siteward/internal/models"
)

var domainCmd = &cobra.Command{
	Use:   "domain",
	Short: "Manage custom domains for sites",
	Long: `Manage custom domain attachments.

Attaching a domain issues the DNS records the domain owner must create at
their provider. Once the records are live, check verifies them and the
edge proxy starts serving the domain.`,
}

// Attach command flags
var (
	attachFormat string
)

var domainAttachCmd = &cobra.Command{
	Use:     "attach <site> <domain>",
	Aliases: []string{"initiate"},
	Short:   "Attach a custom domain to a site",
	Long: `Start (or restart) a custom domain attachment for a site.

The site may be given by ID or name. On success the command prints the
CNAME and TXT records to create at the DNS provider. Attaching the same
domain again while verification is pending returns the same records.

Examples:
  siteward domain attach docs docs.example.com
  siteward domain attach docs docs.example.com --format json`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDomainAttach(args[0], args[1], attachFormat)
	},
}

// Check command flags
var (
	checkFormat string
)

var domainCheckCmd = &cobra.Command{
	Use:   "check <site>",
	Short: "Run a live DNS verification pass",
	Long: `Verify the site's pending custom domain against live DNS.

Checks are spaced at least a minute apart per domain; inside that window
the command reports when the next check becomes available instead of
querying DNS again.

Examples:
  siteward domain check docs
  siteward domain check docs --format json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDomainCheck(args[0], checkFormat)
	},
}

// Status command flags
var (
	statusFormat string
)

var domainStatusCmd = &cobra.Command{
	Use:     "status <site>",
	Aliases: []string{"show"},
	Short:   "Show the stored domain attachment state",
	Long: `Display the stored custom domain state for a site without touching DNS.

Examples:
  siteward domain status docs
  siteward domain status docs --format yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDomainStatus(args[0], statusFormat)
	},
}

// Disconnect command flags
var (
	disconnectForce bool
)

var domainDisconnectCmd = &cobra.Command{
	Use:   "disconnect <site> [--force]",
	Short: "Disconnect a site's custom domain",
	Long: `Release the site's claim on its custom domain.

The domain stops being served and its verification token is discarded.
The domain name itself stays on the site record and can be re-attached
later, which issues fresh records.

Use --force to skip the confirmation prompt.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDomainDisconnect(args[0], disconnectForce)
	},
}

// List command flags
var (
	domainListFormat string
	domainListStatus string
)

var domainListCmd = &cobra.Command{
	Use:   "list [--status <status>] [--format table|json|yaml]",
	Short: "List custom domains across all sites",
	Long: `Display every site that has a custom domain, with its current state.

Supported formats:
  table  - Human-readable table (default)
  json   - JSON array format
  yaml   - YAML document

Examples:
  siteward domain list
  siteward domain list --status pending_verification`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDomainList(domainListFormat, domainListStatus)
	},
}

// Command implementations

func runDomainAttach(siteArg, domain, format string) error {
	if format == "" {
		format = "table"
	}

	if database.DB == nil {
		if err := database.Connect(); err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer func() { _ = database.Close() }()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store := models.NewSiteStore(database.DB)
	site, err := resolveSite(ctx, store, siteArg)
	if err != nil {
		return err
	}

	manager := lifecycle.NewManager(store, dnsverify.NewVerifier())
	result, err := manager.InitiateDomain(ctx, site.SiteID, domain)
	if err != nil {
		return err
	}

	switch format {
	case "json":
		return outputJSON(result)
	case "yaml":
		return outputYAML(result)
	case "table":
		fmt.Printf("\n✓ Domain '%s' attached to site '%s' (%s)\n\n", result.Domain, site.Name, result.Status)
		printRecordInstructions(result.DNSRecords)
		fmt.Println()
		fmt.Printf("Once the records are live, run: siteward domain check %s\n", siteArg)
		return nil
	default:
		return fmt.Errorf("invalid format: %s (use table, json, or yaml)", format)
	}
}

func runDomainCheck(siteArg, format string) error {
	if format == "" {
		format = "table"
	}

	if database.DB == nil {
		if err := database.Connect(); err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer func() { _ = database.Close() }()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store := models.NewSiteStore(database.DB)
	site, err := resolveSite(ctx, store, siteArg)
	if err != nil {
		return err
	}

	manager := lifecycle.NewManager(store, dnsverify.NewVerifier())
	result, err := manager.CheckDomain(ctx, site.SiteID)
	if err != nil {
		return err
	}

	switch format {
	case "json":
		return outputJSON(result)
	case "yaml":
		return outputYAML(result)
	case "table":
		printCheckVerdict(result)
		return nil
	default:
		return fmt.Errorf("invalid format: %s (use table, json, or yaml)", format)
	}
}

func printCheckVerdict(result *lifecycle.StatusResult) {
	switch {
	case result.RateLimited:
		fmt.Printf("Check skipped: domain '%s' was checked under %s ago\n", result.Domain, lifecycle.RecheckWindow)
		if result.NextCheckAvailable != nil {
			fmt.Printf("Next check available at %s\n", result.NextCheckAvailable.Format(time.RFC3339))
		}
	case result.Status == models.DomainStatusVerified:
		if result.DNSProvider != "" {
			fmt.Printf("✓ Domain '%s' is verified (provider: %s)\n", result.Domain, result.DNSProvider)
		} else {
			fmt.Printf("✓ Domain '%s' is verified\n", result.Domain)
		}
	default:
		fmt.Printf("✗ Domain '%s' is not verified yet\n", result.Domain)
		if result.Error != "" {
			fmt.Printf("  %s\n", result.Error)
		}
		fmt.Println("\nDNS changes can take a few minutes to propagate. Expected records:")
		if result.DNSRecords != nil {
			printRecordInstructions(*result.DNSRecords)
		}
	}
}

func runDomainStatus(siteArg, format string) error {
	if format == "" {
		format = "table"
	}

	if database.DB == nil {
		if err := database.Connect(); err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer func() { _ = database.Close() }()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store := models.NewSiteStore(database.DB)
	site, err := resolveSite(ctx, store, siteArg)
	if err != nil {
		return err
	}

	manager := lifecycle.NewManager(store, dnsverify.NewVerifier())
	result, err := manager.DomainStatus(ctx, site.SiteID)
	if err != nil {
		return err
	}

	switch format {
	case "json":
		return outputJSON(result)
	case "yaml":
		return outputYAML(result)
	case "table":
		printStatusTable(site.Name, result)
		return nil
	default:
		return fmt.Errorf("invalid format: %s (use table, json, or yaml)", format)
	}
}

func printStatusTable(siteName string, result *lifecycle.StatusResult) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Site:\t%s\n", siteName)
	if result.Domain != "" {
		_, _ = fmt.Fprintf(w, "Domain:\t%s\n", result.Domain)
	} else {
		_, _ = fmt.Fprintf(w, "Domain:\t(none)\n")
	}
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", result.Status)
	if result.DNSProvider != "" {
		_, _ = fmt.Fprintf(w, "DNS Provider:\t%s\n", result.DNSProvider)
	}
	if result.VerifiedAt != nil {
		_, _ = fmt.Fprintf(w, "Verified:\t%s\n", result.VerifiedAt.Format(time.RFC3339))
	}
	if result.LastCheckedAt != nil {
		_, _ = fmt.Fprintf(w, "Last Check:\t%s\n", result.LastCheckedAt.Format(time.RFC3339))
	}
	if result.Error != "" {
		_, _ = fmt.Fprintf(w, "Error:\t%s\n", result.Error)
	}
	_ = w.Flush()

	if result.Status == models.DomainStatusPending && result.DNSRecords != nil {
		fmt.Println("\nExpected records:")
		printRecordInstructions(*result.DNSRecords)
	}
}

func runDomainDisconnect(siteArg string, force bool) error {
	if database.DB == nil {
		if err := database.Connect(); err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer func() { _ = database.Close() }()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store := models.NewSiteStore(database.DB)
	site, err := resolveSite(ctx, store, siteArg)
	if err != nil {
		return err
	}

	if !force {
		fmt.Printf("Disconnect the custom domain from site '%s'? (yes/no): ", site.Name)
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Scan()
		response := strings.TrimSpace(strings.ToLower(scanner.Text()))
		if response != "yes" && response != "y" {
			fmt.Println("Disconnect cancelled")
			return nil
		}
	}

	manager := lifecycle.NewManager(store, dnsverify.NewVerifier())
	if err := manager.DisconnectDomain(ctx, site.SiteID); err != nil {
		return err
	}

	fmt.Printf("✓ Custom domain disconnected from site '%s'\n", site.Name)
	fmt.Println("The domain name stays on the site record and can be re-attached later")

	return nil
}

type domainRow struct {
	Domain     string              `json:"domain"`
	SiteID     uuid.UUID           `json:"siteId"`
	Site       string              `json:"site"`
	Status     models.DomainStatus `json:"status"`
	Provider   string              `json:"dnsProvider,omitempty"`
	VerifiedAt *time.Time          `json:"verifiedAt,omitempty"`
}

func runDomainList(format, statusFilter string) error {
	if format == "" {
		format = "table"
	}

	statuses := []models.DomainStatus{
		models.DomainStatusPending,
		models.DomainStatusVerified,
		models.DomainStatusFailed,
		models.DomainStatusDisconnected,
	}
	if statusFilter != "" {
		status := models.DomainStatus(statusFilter)
		if !status.Valid() {
			return fmt.Errorf("invalid status: %s", statusFilter)
		}
		statuses = []models.DomainStatus{status}
	}

	if database.DB == nil {
		if err := database.Connect(); err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer func() { _ = database.Close() }()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store := models.NewSiteStore(database.DB)
	sites, err := store.ListByDomainStatus(ctx, statuses...)
	if err != nil {
		return err
	}

	rows := make([]domainRow, 0, len(sites))
	for _, site := range sites {
		row := domainRow{
			Domain:     site.Domain(),
			SiteID:     site.SiteID,
			Site:       site.Name,
			Status:     site.CustomDomainStatus,
			VerifiedAt: site.CustomDomainVerifiedAt,
		}
		if site.DNSProvider != nil {
			row.Provider = *site.DNSProvider
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		if statusFilter != "" {
			fmt.Printf("No domains with status '%s' found\n", statusFilter)
		} else {
			fmt.Println("No custom domains found")
		}
		fmt.Println("\nAttach one with: siteward domain attach <site> <domain>")
		return nil
	}

	switch format {
	case "json":
		return outputJSON(rows)
	case "yaml":
		return outputYAML(rows)
	case "table":
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		defer func() { _ = w.Flush() }()

		_, _ = fmt.Fprintln(w, "DOMAIN\tSITE\tSTATUS\tPROVIDER\tVERIFIED AT")
		_, _ = fmt.Fprintln(w, "------\t----\t------\t--------\t-----------")
		for _, row := range rows {
			provider := row.Provider
			if provider == "" {
				provider = "-"
			}
			verified := "-"
			if row.VerifiedAt != nil {
				verified = row.VerifiedAt.Format("2006-01-02 15:04:05")
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				row.Domain, row.Site, row.Status, provider, verified)
		}
		return nil
	default:
		return fmt.Errorf("invalid format: %s (use table, json, or yaml)", format)
	}
}

func printRecordInstructions(records models.DNSRecordSet) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TYPE\tNAME\tVALUE\tTTL")
	_, _ = fmt.Fprintln(w, "----\t----\t-----\t---")
	for _, record := range []models.DNSRecord{records.CNAME, records.TXT} {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", record.Type, record.Name, record.Value, record.TTL)
	}
	_ = w.Flush()
}

func init() {
	// Add subcommands to domain
	domainCmd.AddCommand(domainAttachCmd)
	domainCmd.AddCommand(domainCheckCmd)
	domainCmd.AddCommand(domainStatusCmd)
	domainCmd.AddCommand(domainDisconnectCmd)
	domainCmd.AddCommand(domainListCmd)

	// Attach command flags
	domainAttachCmd.Flags().StringVarP(&attachFormat, "format", "f", "table", "Output format (table, json, yaml)")

	// Check command flags
	domainCheckCmd.Flags().StringVarP(&checkFormat, "format", "f", "table", "Output format (table, json, yaml)")

	// Status command flags
	domainStatusCmd.Flags().StringVarP(&statusFormat, "format", "f", "table", "Output format (table, json, yaml)")

	// Disconnect command flags
	domainDisconnectCmd.Flags().BoolVarP(&disconnectForce, "force", "f", false, "Skip confirmation prompt")

	// List command flags
	domainListCmd.Flags().StringVarP(&domainListFormat, "format", "f", "table", "Output format (table, json, yaml)")
	domainListCmd.Flags().StringVar(&domainListStatus, "status", "", "Filter by status (pending_verification, verified, failed, disconnected)")

	// Register with root command
	RootCmd.AddCommand(domainCmd)
}
