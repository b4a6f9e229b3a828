// Command wifimgrd is the provisioning appliance's single daemon binary:
// it boots one Core value wiring CredStore, CSM, CHS, LAS, and the DNS
// hijacker together, the way an ap.* daemon's main() wires its broker,
// mcp, and apcfg handles — collapsed to one process per this appliance's
// single-binary deployment model.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ruuvigw/wifimgr/internal/core"
	"github.com/ruuvigw/wifimgr/internal/radio"
	"github.com/ruuvigw/wifimgr/internal/wmdef"
	"github.com/ruuvigw/wifimgr/internal/wmlog"
)

var (
	version = "dev"

	flagCredStorePath string
	flagMetricsAddr   string
	flagLogLevel      string
	flagLanAuthType   string
	flagLanAuthUser   string
	flagLanAuthPass   string
)

func main() {
	root := &cobra.Command{
		Use:   "wifimgrd",
		Short: "Wi-Fi provisioning appliance control-plane daemon",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start the provisioning daemon",
		RunE:  runDaemon,
	}
	runCmd.Flags().StringVar(&flagCredStorePath, "cred-store", "/var/lib/wifimgr/creds.db", "path to the credential store")
	runCmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "127.0.0.1:9100", "developer metrics listen address, empty to disable")
	runCmd.Flags().StringVar(&flagLogLevel, "log-level", "info", "zap log level")
	runCmd.Flags().StringVar(&flagLanAuthType, "lan-auth-type", "allow", "LAN auth mode: allow, basic, digest, ruuvi, deny")
	runCmd.Flags().StringVar(&flagLanAuthUser, "lan-auth-user", "", "LAN auth username (basic/digest/ruuvi)")
	runCmd.Flags().StringVar(&flagLanAuthPass, "lan-auth-pass", "", "LAN auth password pre-image (basic/digest/ruuvi)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the daemon version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	root.AddCommand(runCmd, versionCmd)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	slog := wmlog.New("wifimgrd")
	defer slog.Sync() //nolint:errcheck

	if err := wmlog.SetLevel(flagLogLevel); err != nil {
		slog.Warnw("invalid log level, keeping default", "level", flagLogLevel, "err", err)
	}

	cfg := wmdef.DefaultConfig()
	cfg.CredStorePath = flagCredStorePath
	cfg.LanAuthType = flagLanAuthType
	cfg.LanAuthUser = flagLanAuthUser
	cfg.LanAuthPass = flagLanAuthPass

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if flagMetricsAddr != "" {
		go serveMetrics(ctx, flagMetricsAddr, slog)
	}

	driver := radio.NewSimulator()
	c, err := core.New(cfg, driver, slog)
	if err != nil {
		return fmt.Errorf("core init: %w", err)
	}

	slog.Infow("starting", "version", version, "ap_ssid", cfg.APSSID, "http_port", cfg.HTTPPort)
	if err := c.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("core run: %w", err)
	}
	slog.Infow("stopped")
	return nil
}

func serveMetrics(ctx context.Context, addr string, slog *zap.SugaredLogger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Warnw("metrics server stopped", "err", err)
	}
}
