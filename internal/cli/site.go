package cli

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sitewardhq/siteward/internal/database"
	"github.com/sitewardhq/siteward/internal/models"
)

var siteCmd = &cobra.Command{
	Use:   "site",
	Short: "Manage sites",
	Long: `Manage sites and their configuration.

A site is the unit a custom domain attaches to. Site commands create,
inspect, and remove sites directly against the database.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(cmd.Help())
	},
}

var siteCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new site",
	Long: `Create a new site.

The name is used for display and for referencing the site in other
commands; the command prints the generated site ID.

Examples:
  siteward site create docs
  siteward site create "Marketing Site"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSiteCreate(args[0])
	},
}

// List command flags
var (
	siteListFormat string
)

var siteListCmd = &cobra.Command{
	Use:   "list [--format table|json|yaml|csv]",
	Short: "List all sites",
	Long: `Display all sites and their domain attachment state.

Supported formats:
  table  - Human-readable table (default)
  json   - JSON array format
  yaml   - YAML document
  csv    - Comma-separated values`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSiteList(siteListFormat)
	},
}

// Show command flags
var (
	siteShowFormat string
)

var siteShowCmd = &cobra.Command{
	Use:   "show <site>",
	Short: "Show detailed site information",
	Long: `Display detailed information about a site, including its custom
domain state.

The site may be given by ID or name.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSiteShow(args[0], siteShowFormat)
	},
}

// Delete command flags
var (
	siteDeleteForce bool
)

var siteDeleteCmd = &cobra.Command{
	Use:   "delete <site> [--force]",
	Short: "Delete a site",
	Long: `Delete a site permanently.

Deleting a site releases its custom domain claim as well. Use --force to
skip the confirmation prompt.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSiteDelete(args[0], siteDeleteForce)
	},
}

// resolveSite accepts a site ID or a site name. Names are matched
// case-insensitively; an ambiguous name is an error rather than a guess.
func resolveSite(ctx context.Context, store *models.SiteStore, identifier string) (*models.Site, error) {
	if id, err := uuid.Parse(identifier); err == nil {
		return store.GetByID(ctx, id)
	}

	sites, err := store.ListSites(ctx)
	if err != nil {
		return nil, err
	}

	var match *models.Site
	for i := range sites {
		if strings.EqualFold(sites[i].Name, identifier) {
			if match != nil {
				return nil, fmt.Errorf("site name '%s' is ambiguous, use the site ID", identifier)
			}
			match = &sites[i]
		}
	}
	if match == nil {
		return nil, fmt.Errorf("site '%s' not found", identifier)
	}
	return match, nil
}

// Command implementations

func runSiteCreate(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("site name must not be empty")
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
	site, err := store.CreateSite(ctx, name)
	if err != nil {
		return err
	}

	fmt.Println("Site created successfully!")
	fmt.Println()
	printSiteTable(site)
	fmt.Println()
	fmt.Printf("Next: attach a domain with 'siteward domain attach %s <domain>'\n", site.Name)

	return nil
}

func runSiteList(format string) error {
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
	sites, err := store.ListSites(ctx)
	if err != nil {
		return err
	}

	if len(sites) == 0 {
		fmt.Println("No sites found")
		fmt.Println("\nCreate one with: siteward site create <name>")
		return nil
	}

	switch format {
	case "json":
		return outputJSON(sites)
	case "yaml":
		return outputYAML(sites)
	case "csv":
		return outputSitesCSV(sites)
	case "table":
		return outputSitesTable(sites)
	default:
		return fmt.Errorf("invalid format: %s (use table, json, yaml, or csv)", format)
	}
}

func runSiteShow(identifier, format string) error {
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
	site, err := resolveSite(ctx, store, identifier)
	if err != nil {
		return err
	}

	switch format {
	case "json":
		return outputJSON(site)
	case "yaml":
		return outputYAML(site)
	case "table":
		printSiteTable(site)
		return nil
	default:
		return fmt.Errorf("invalid format: %s (use table, json, or yaml)", format)
	}
}

func runSiteDelete(identifier string, force bool) error {
	if database.DB == nil {
		if err := database.Connect(); err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer func() { _ = database.Close() }()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store := models.NewSiteStore(database.DB)
	site, err := resolveSite(ctx, store, identifier)
	if err != nil {
		return err
	}

	if !force {
		fmt.Printf("Are you sure you want to delete site '%s'? (yes/no): ", site.Name)
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Scan()
		response := strings.TrimSpace(strings.ToLower(scanner.Text()))
		if response != "yes" && response != "y" {
			fmt.Println("Deletion cancelled")
			return nil
		}
	}

	if err := store.DeleteSite(ctx, site.SiteID); err != nil {
		return err
	}

	fmt.Printf("✓ Site '%s' deleted\n", site.Name)
	if site.CustomDomain != nil {
		fmt.Printf("Domain '%s' is released and can be attached elsewhere\n", *site.CustomDomain)
	}

	return nil
}

// Output formatting functions

func displayStatus(status models.DomainStatus) string {
	if status == "" {
		return string(models.DomainStatusNotStarted)
	}
	return string(status)
}

func outputSitesCSV(sites []models.Site) error {
	w := csv.NewWriter(os.Stdout)
	defer w.Flush()

	if err := w.Write([]string{"site_id", "name", "custom_domain", "status", "created_at"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, site := range sites {
		if err := w.Write([]string{
			site.SiteID.String(),
			site.Name,
			site.Domain(),
			displayStatus(site.CustomDomainStatus),
			site.CreatedAt.Format(time.RFC3339),
		}); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	return nil
}

func outputSitesTable(sites []models.Site) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	_, _ = fmt.Fprintln(w, "NAME\tSITE ID\tDOMAIN\tSTATUS\tCREATED AT")
	_, _ = fmt.Fprintln(w, "----\t-------\t------\t------\t----------")

	for _, site := range sites {
		domain := site.Domain()
		if domain == "" {
			domain = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			site.Name,
			site.SiteID,
			domain,
			displayStatus(site.CustomDomainStatus),
			site.CreatedAt.Format("2006-01-02 15:04:05"),
		)
	}

	return nil
}

func printSiteTable(site *models.Site) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintf(w, "Site ID:\t%s\n", site.SiteID)
	_, _ = fmt.Fprintf(w, "Name:\t%s\n", site.Name)

	if site.CustomDomain != nil {
		_, _ = fmt.Fprintf(w, "Domain:\t%s\n", *site.CustomDomain)
	} else {
		_, _ = fmt.Fprintf(w, "Domain:\t(none)\n")
	}
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", displayStatus(site.CustomDomainStatus))

	if site.DNSProvider != nil {
		_, _ = fmt.Fprintf(w, "DNS Provider:\t%s\n", *site.DNSProvider)
	}
	if site.CustomDomainVerifiedAt != nil {
		_, _ = fmt.Fprintf(w, "Verified:\t%s\n", site.CustomDomainVerifiedAt.Format(time.RFC3339))
	}
	if site.CustomDomainError != nil {
		_, _ = fmt.Fprintf(w, "Error:\t%s\n", *site.CustomDomainError)
	}

	_, _ = fmt.Fprintf(w, "Created:\t%s\n", site.CreatedAt.Format(time.RFC3339))
	_, _ = fmt.Fprintf(w, "Updated:\t%s\n", site.UpdatedAt.Format(time.RFC3339))

	_ = w.Flush()
}

func init() {
	// Add subcommands to site
	siteCmd.AddCommand(siteCreateCmd)
	siteCmd.AddCommand(siteListCmd)
	siteCmd.AddCommand(siteShowCmd)
	siteCmd.AddCommand(siteDeleteCmd)

	// List command flags
	siteListCmd.Flags().StringVarP(&siteListFormat, "format", "f", "table", "Output format (table, json, yaml, csv)")

	// Show command flags
	siteShowCmd.Flags().StringVarP(&siteShowFormat, "format", "f", "table", "Output format (table, json, yaml)")

	// Delete command flags
	siteDeleteCmd.Flags().BoolVarP(&siteDeleteForce, "force", "f", false, "Skip confirmation prompt")

	// Register with root command
	RootCmd.AddCommand(siteCmd)
}
