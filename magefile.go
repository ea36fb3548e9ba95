//go:build mage

package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Build builds Siteward for Linux with Green Tea GC
func Build() error {
	fmt.Println("Building Siteward for Linux with Go 1.25 + Green Tea GC...")
	env := map[string]string{
		"GOOS":         "linux",
		"GOARCH":       "amd64",
		"GOEXPERIMENT": "greenteagc",
	}
	return sh.RunWith(env, "go", "build", "-o", "siteward-linux-amd64", "./cmd/siteward")
}

// BuildLocal builds Siteward for current platform
func BuildLocal() error {
	fmt.Printf("Building Siteward for %s/%s...\n", runtime.GOOS, runtime.GOARCH)
	return sh.Run("go", "build", "-o", "siteward", "./cmd/siteward")
}

// Test runs tests
func Test() error {
	fmt.Println("Running tests...")
	return sh.Run("go", "test", "-v", "./...")
}

// TestDocker runs the database integration tests (needs a local Postgres)
func TestDocker() error {
	fmt.Println("Running integration tests...")
	return sh.Run("go", "test", "-v", "-tags", "docker", "./...")
}

// Coverage runs tests with a coverage profile
func Coverage() error {
	fmt.Println("Running tests with coverage...")
	return sh.Run("go", "test", "-coverprofile=coverage.out", "./...")
}

// Lint runs golangci-lint
func Lint() error {
	fmt.Println("Linting code...")
	return sh.Run("golangci-lint", "run", "./...")
}

// Clean removes build artifacts
func Clean() error {
	fmt.Println("Cleaning build artifacts...")
	os.Remove("siteward")
	os.Remove("siteward-linux-amd64")
	os.Remove("coverage.out")
	return nil
}

// Deploy builds and deploys to production server
func Deploy() error {
	if err := Build(); err != nil {
		return err
	}

	fmt.Println("Deploying to production...")
	server := "root@edge1.siteward.net"

	// Upload binary
	if err := sh.Run("scp", "siteward-linux-amd64", server+":/usr/local/bin/siteward-new"); err != nil {
		return err
	}

	// Restart service
	cmd := "systemctl stop siteward && mv /usr/local/bin/siteward /usr/local/bin/siteward-old && mv /usr/local/bin/siteward-new /usr/local/bin/siteward && chmod +x /usr/local/bin/siteward && systemctl start siteward"
	if err := sh.Run("ssh", server, cmd); err != nil {
		return err
	}

	fmt.Println("Deployment complete!")
	return sh.Run("ssh", server, "systemctl status siteward")
}

// Update upgrades all Go dependencies
func Update() error {
	fmt.Println("Updating dependencies...")
	if err := sh.Run("go", "get", "-u", "./..."); err != nil {
		return err
	}
	return sh.Run("go", "mod", "tidy")
}

// Fmt runs gofmt on all Go files
func Fmt() error {
	fmt.Println("Formatting code...")
	return sh.Run("go", "fmt", "./...")
}

// Vet runs go vet on all Go files
func Vet() error {
	fmt.Println("Vetting code...")
	return sh.Run("go", "vet", "./...")
}

// Bench runs benchmarks
func Bench() error {
	fmt.Println("Running benchmarks...")
	return sh.Run("go", "test", "-bench=.", "./...")
}

// Deps downloads dependencies
func Deps() error {
	fmt.Println("Downloading dependencies...")
	return sh.Run("go", "mod", "download")
}

// Tidy tidies go.mod
func Tidy() error {
	fmt.Println("Tidying go.mod...")
	return sh.Run("go", "mod", "tidy")
}

// CI runs all checks for continuous integration
func CI() error {
	mg.SerialDeps(Deps, Fmt, Vet, Test)
	fmt.Println("All CI checks passed!")
	return nil
}
