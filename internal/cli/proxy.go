package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sitewardhq/siteward/internal/config"
	"github.com/sitewardhq/siteward/internal/logging"
	"github.com/sitewardhq/siteward/internal/proxy"
)

var proxyPort string

var proxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "Start the edge proxy for custom domains",
	Long: `Start the edge proxy that serves traffic on tenant custom domains.

The proxy forwards requests for allow-listed hosts to the origin and
refuses everything else. It starts even when its configuration is broken
so a bad deploy surfaces as HTTP errors instead of a crash loop behind
tenant DNS.

Environment variables:
  ORIGIN_ENDPOINT  HTTPS base URL requests are forwarded to (required)
  ALLOWED_DOMAINS  JSON array of serveable hostnames (default: allow all)
  PROXY_PORT       Listen port (default: 8081)
  PROXY_TIMEOUT    Upstream request budget, e.g. 10s (default: 10s)

Example:
  ORIGIN_ENDPOINT="https://origin.siteward.net" siteward proxy`,
	RunE: runProxy,
}

func runProxy(cmd *cobra.Command, args []string) error {
	cfg, cfgErr := config.LoadProxy()
	if cfgErr != nil {
		logging.L().Error("proxy configuration invalid, serving errors until fixed", zap.Error(cfgErr))
	}

	port := proxyPort
	if port == "" {
		if cfg != nil {
			port = cfg.Port
		} else {
			port = getEnv("PROXY_PORT", "8081")
		}
	}

	app := proxy.NewApp(proxy.NewForwarder(cfg, cfgErr))
	return listenWithShutdown(app, port, "edge proxy")
}

func init() {
	proxyCmd.Flags().StringVarP(&proxyPort, "port", "p", "", "Port to listen on (overrides PROXY_PORT)")
}
