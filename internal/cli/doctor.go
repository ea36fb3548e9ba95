package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/sitewardhq/siteward/internal/config"
	"github.com/sitewardhq/siteward/internal/database"
	"github.com/sitewardhq/siteward/internal/dnsverify"
	"github.com/sitewardhq/siteward/internal/lifecycle"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run health checks on Siteward installation",
	Long: `Run comprehensive health checks on Siteward installation.

Checks performed:
  - Config directory writable
  - Edge hostname resolves
  - Database connection
  - PostgreSQL version ≥14
  - Database migrations completed
  - Required indexes exist

Example:
  siteward doctor
  siteward doctor --json`,
	RunE: runDoctor,
}

type CheckResult struct {
	Name       string `json:"name"`
	Pass       bool   `json:"pass"`
	Error      string `json:"error,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
	Details    string `json:"details,omitempty"`
}

// requiredIndexes back the invariants the domain lifecycle depends on: the
// partial unique index keeps one active claim per domain, the status index
// keeps the recheck sweep off a sequential scan.
var requiredIndexes = []string{
	"idx_site_custom_domain",
	"idx_site_domain_status",
}

func checkConfigDirectory() CheckResult {
	dir := config.Dir()
	if dir == "" {
		return CheckResult{
			Name:       "Config Directory Writable",
			Pass:       false,
			Error:      "cannot determine config directory",
			Suggestion: "Set XDG_CONFIG_HOME or HOME",
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return CheckResult{
			Name:       "Config Directory Writable",
			Pass:       false,
			Error:      err.Error(),
			Suggestion: fmt.Sprintf("Ensure %s can be created", dir),
		}
	}

	testFile := filepath.Join(dir, ".siteward-write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return CheckResult{
			Name:       "Config Directory Writable",
			Pass:       false,
			Error:      err.Error(),
			Suggestion: fmt.Sprintf("Ensure %s has write permissions", dir),
		}
	}
	_ = os.Remove(testFile)
	return CheckResult{Name: "Config Directory Writable", Pass: true, Details: dir}
}

func checkEdgeHostname(verifier *dnsverify.Verifier, hostname string) CheckResult {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	addrs, err := verifier.ResolveAddresses(ctx, hostname)
	if err != nil {
		return CheckResult{
			Name:       "Edge Hostname Resolves",
			Pass:       false,
			Error:      err.Error(),
			Suggestion: "Check outbound DNS; tenant verification needs working resolvers",
		}
	}
	if len(addrs) == 0 {
		return CheckResult{
			Name:       "Edge Hostname Resolves",
			Pass:       false,
			Error:      fmt.Sprintf("no A records for %s", hostname),
			Suggestion: "Tenant CNAMEs point here; publish an A record for the edge",
		}
	}

	return CheckResult{
		Name:    "Edge Hostname Resolves",
		Pass:    true,
		Details: fmt.Sprintf("%s -> %s", hostname, strings.Join(addrs, ", ")),
	}
}

func checkDatabaseConnection(db *sql.DB) CheckResult {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return CheckResult{
			Name:       "Database Connection",
			Pass:       false,
			Error:      err.Error(),
			Suggestion: "Verify DATABASE_URL and ensure PostgreSQL is running",
		}
	}
	return CheckResult{Name: "Database Connection", Pass: true}
}

func checkPostgreSQLVersion(db *sql.DB) CheckResult {
	var version string
	err := db.QueryRow("SHOW server_version").Scan(&version)
	if err != nil {
		return CheckResult{Name: "PostgreSQL Version", Pass: false, Error: err.Error()}
	}

	// Parse version (e.g., "14.5 (Debian 14.5-1)")
	parts := strings.Split(version, " ")
	versionNum := strings.Split(parts[0], ".")
	major, _ := strconv.Atoi(versionNum[0])

	if major < 14 {
		return CheckResult{
			Name:       "PostgreSQL Version",
			Pass:       false,
			Error:      fmt.Sprintf("Version %s found, need ≥14", parts[0]),
			Suggestion: "Upgrade PostgreSQL to version 14 or higher",
		}
	}
	return CheckResult{Name: "PostgreSQL Version", Pass: true, Details: parts[0]}
}

func checkMigrations(cfg *config.Config) CheckResult {
	expectedVersion, err := database.LatestVersion()
	if err != nil {
		return CheckResult{Name: "Database Migrations", Pass: false, Error: err.Error()}
	}

	version, dirty, err := database.GetMigrationVersion(cfg.DatabaseURL)
	if err != nil {
		return CheckResult{
			Name:       "Database Migrations",
			Pass:       false,
			Error:      err.Error(),
			Suggestion: "Run migrations with: siteward serve",
		}
	}

	if version != expectedVersion {
		return CheckResult{
			Name:       "Database Migrations",
			Pass:       false,
			Error:      fmt.Sprintf("Migration version %d, expected %d", version, expectedVersion),
			Suggestion: "Run migrations with: siteward serve",
		}
	}

	if dirty {
		return CheckResult{
			Name:       "Database Migrations",
			Pass:       false,
			Error:      "Migration state is dirty",
			Suggestion: "Fix dirty migration state, may need manual intervention",
		}
	}

	return CheckResult{Name: "Database Migrations", Pass: true, Details: fmt.Sprintf("v%d", version)}
}

func checkRequiredIndexes(db *sql.DB) CheckResult {
	query := `
		SELECT indexname
		FROM pg_indexes
		WHERE schemaname = 'public' AND indexname = ANY($1)
	`

	rows, err := db.Query(query, pq.Array(requiredIndexes))
	if err != nil {
		return CheckResult{Name: "Required Indexes", Pass: false, Error: err.Error()}
	}
	defer func() { _ = rows.Close() }()

	foundIndexes := make(map[string]bool)
	for rows.Next() {
		var name string
		_ = rows.Scan(&name)
		foundIndexes[name] = true
	}

	var missing []string
	for _, idx := range requiredIndexes {
		if !foundIndexes[idx] {
			missing = append(missing, idx)
		}
	}

	if len(missing) > 0 {
		return CheckResult{
			Name:       "Required Indexes",
			Pass:       false,
			Error:      fmt.Sprintf("Missing indexes: %s", strings.Join(missing, ", ")),
			Suggestion: "Run migrations to create missing indexes",
		}
	}

	return CheckResult{
		Name:    "Required Indexes",
		Pass:    true,
		Details: fmt.Sprintf("%d/%d indexes found", len(requiredIndexes), len(requiredIndexes)),
	}
}

func runDoctor(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("✗ Configuration Error: %v\n", err)
		return err
	}

	results := []CheckResult{}

	// Non-DB checks first
	results = append(results, checkConfigDirectory())
	results = append(results, checkEdgeHostname(dnsverify.NewVerifier(), lifecycle.ProxyHostname))

	// Connect to database for remaining checks
	if cfg.DatabaseURL == "" {
		results = append(results, CheckResult{
			Name:       "Database Connection",
			Pass:       false,
			Error:      "DATABASE_URL is not set",
			Suggestion: "Set DATABASE_URL or database_url in the config file",
		})
	} else if db, err := sql.Open("pgx", cfg.DatabaseURL); err != nil {
		results = append(results, CheckResult{
			Name:       "Database Connection",
			Pass:       false,
			Error:      err.Error(),
			Suggestion: "Verify DATABASE_URL is valid",
		})
	} else {
		defer func() { _ = db.Close() }()

		results = append(results, checkDatabaseConnection(db))
		results = append(results, checkPostgreSQLVersion(db))
		results = append(results, checkMigrations(cfg))
		results = append(results, checkRequiredIndexes(db))
	}

	// Output results
	if jsonOutput {
		outputDoctorJSON(results)
	} else {
		outputDoctorHuman(results)
	}

	// Determine exit code
	allPassed := true
	for _, r := range results {
		if !r.Pass {
			allPassed = false
			break
		}
	}

	if !allPassed {
		os.Exit(1)
	}

	return nil
}

func outputDoctorHuman(results []CheckResult) {
	fmt.Println("\n🏥 Siteward Health Check")

	for _, r := range results {
		icon := "✓"
		if !r.Pass {
			icon = "✗"
		}

		fmt.Printf("%s %s", icon, r.Name)
		if r.Details != "" {
			fmt.Printf(" (%s)", r.Details)
		}
		fmt.Println()

		if !r.Pass {
			if r.Error != "" {
				fmt.Printf("  Error: %s\n", r.Error)
			}
			if r.Suggestion != "" {
				fmt.Printf("  💡 %s\n", r.Suggestion)
			}
		}
	}

	// Summary
	passed := 0
	for _, r := range results {
		if r.Pass {
			passed++
		}
	}

	fmt.Printf("\n%d/%d checks passed\n\n", passed, len(results))
}

func outputDoctorJSON(results []CheckResult) {
	data, _ := json.MarshalIndent(results, "", "  ")
	fmt.Println(string(data))
}

func init() {
	doctorCmd.Flags().Bool("json", false, "Output results as JSON")
	RootCmd.AddCommand(doctorCmd)
}
