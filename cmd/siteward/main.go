package main

import (
	_ "embed"
	"strings"

	"go.uber.org/zap"

	"github.com/sitewardhq/siteward/internal/cli"
	"github.com/sitewardhq/siteward/internal/logging"
)

//go:embed VERSION
var versionFile string

var executeCLI = cli.Execute

func run() error {
	return executeCLI(strings.TrimSpace(versionFile))
}

func main() {
	if err := run(); err != nil {
		logging.Fatal("siteward execution failed", zap.Error(err))
	}
}
