// ClawWatch — fleet liveness & resource monitoring for machines running
// a periodic reporting agent.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/vesaa/clawwatch/internal/agent"
	"github.com/vesaa/clawwatch/internal/config"
	"github.com/vesaa/clawwatch/internal/engine"
	"github.com/vesaa/clawwatch/internal/server"
	"github.com/vesaa/clawwatch/internal/store"
)

const asciiLogo = `
  ██████╗██╗      █████╗ ██╗    ██╗██╗    ██╗ █████╗ ████████╗ ██████╗██╗  ██╗
 ██╔════╝██║     ██╔══██╗██║    ██║██║    ██║██╔══██╗╚══██╔══╝██╔════╝██║  ██║
 ██║     ██║     ███████║██║ █╗ ██║██║ █╗ ██║███████║   ██║   ██║     ███████║
 ██║     ██║     ██╔══██║██║███╗██║██║███╗██║██╔══██║   ██║   ██║     ██╔══██║
 ╚██████╗███████╗██║  ██║╚███╔███╔╝╚███╔███╔╝██║  ██║   ██║   ╚██████╗██║  ██║
  ╚═════╝╚══════╝╚═╝  ╚═╝ ╚══╝╚══╝  ╚══╝╚══╝ ╚═╝  ╚═╝   ╚═╝    ╚═════╝╚═╝  ╚═╝
`

const version = "v0.1.0"

func printBanner(mode string) {
	fmt.Print(asciiLogo, "\n")
	fmt.Printf("  ► ClawWatch %s  |  Mode: %s\n\n", version, mode)
}

func newLogger() zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func main() {
	root := &cobra.Command{
		Use:   "clawwatch",
		Short: "ClawWatch — fleet liveness & resource monitoring",
		Long: `ClawWatch is a single-binary C/S monitor for fleets of independently
owned machines: each runs the agent, which periodically reports resource
usage, token consumption and error logs; the server derives liveness
from report recency and serves dashboard queries.`,
		SilenceUsage: true,
	}

	// ── server subcommand ─────────────────────────────────────────────────────
	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "Start the ClawWatch server (control plane + agent data plane)",
		RunE: func(cmd *cobra.Command, args []string) error {
			printBanner("SERVER")
			log := newLogger()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			st, err := store.Open(cfg.DBPath, log.With().Str("component", "store").Logger())
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}

			eng, err := engine.New(engine.Rules{
				ReportInterval:   cfg.ReportPeriod(),
				OfflineThreshold: cfg.OfflineThreshold(),
				MetricRetention:  cfg.MetricRetention,
				LogCap:           cfg.LogCap,
				PricePerMillion:  cfg.TokenPricePerMillion,
			}, st, log.With().Str("component", "engine").Logger())
			if err != nil {
				return fmt.Errorf("initializing engine: %w", err)
			}

			server.SetJWTSecret(cfg.JWTSecret)
			if err := server.SetAdminCredentials(cfg.AdminUser, cfg.AdminPass); err != nil {
				return fmt.Errorf("hashing admin credentials: %w", err)
			}

			srv := server.New(eng, cfg.RequestDeadline(), log.With().Str("component", "server").Logger())

			gin.SetMode(gin.ReleaseMode)
			corsMiddleware := func(c *gin.Context) {
				c.Header("Access-Control-Allow-Origin", "*")
				c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
				c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				if c.Request.Method == "OPTIONS" {
					c.AbortWithStatus(204)
					return
				}
				c.Next()
			}

			// ── Control-plane engine ───────────────────────────────────────────
			ctrlEngine := gin.New()
			ctrlEngine.Use(gin.Recovery(), corsMiddleware)
			srv.RegisterControlRoutes(ctrlEngine)

			// ── Data-plane engine ──────────────────────────────────────────────
			dataEngine := gin.New()
			dataEngine.Use(gin.Recovery())
			srv.RegisterDataRoutes(dataEngine)

			ctrlAddr := fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ControlPort)
			dataAddr := fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.DataPort)

			fmt.Printf("  ✓ Control plane (dashboard + JWT API) → http://%s\n", ctrlAddr)
			fmt.Printf("  ✓ Data    plane (agent reports)       → http://%s\n", dataAddr)
			fmt.Printf("  ✓ Offline threshold: %s (sweep every %s)\n\n", cfg.OfflineThreshold(), cfg.SweepPeriod())

			// Background demotion sweep, canceled on shutdown.
			sweepCtx, stopSweep := context.WithCancel(context.Background())
			defer stopSweep()
			go eng.RunSweeper(sweepCtx, cfg.SweepPeriod())

			// Run both servers concurrently; shut down gracefully on SIGINT.
			ctrlSrv := &http.Server{Addr: ctrlAddr, Handler: ctrlEngine}
			dataSrv := &http.Server{Addr: dataAddr, Handler: dataEngine}

			errCh := make(chan error, 2)
			go func() { errCh <- ctrlSrv.ListenAndServe() }()
			go func() { errCh <- dataSrv.ListenAndServe() }()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, os.Interrupt) // os.Interrupt = SIGINT; works on all platforms

			select {
			case err := <-errCh:
				return err
			case <-quit:
				fmt.Println("\n  → Shutting down gracefully…")
				stopSweep()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = ctrlSrv.Shutdown(ctx)
				_ = dataSrv.Shutdown(ctx)
				return nil
			}
		},
	}

	// ── agent subcommand ──────────────────────────────────────────────────────
	agentCmd := &cobra.Command{
		Use:   "agent",
		Short: "Start the ClawWatch agent on this device",
		RunE: func(cmd *cobra.Command, args []string) error {
			printBanner("AGENT")
			log := newLogger()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			// CLI flags override config values.
			if join, _ := cmd.Flags().GetString("join"); join != "" {
				if !containsPort(join) {
					join = fmt.Sprintf("%s:%d", join, cfg.DataPort)
				}
				cfg.AgentJoinAddr = join
			}
			if key, _ := cmd.Flags().GetString("key"); key != "" {
				cfg.AgentKey = key
			}
			if interval, _ := cmd.Flags().GetInt("interval"); interval > 0 {
				cfg.AgentInterval = interval
			}

			return agent.Run(cfg, log.With().Str("component", "agent").Logger())
		},
	}
	agentCmd.Flags().String("join", "", "Data-plane address, e.g. 192.168.1.1 or 192.168.1.1:8081")
	agentCmd.Flags().String("key", "", "Device API key issued at device creation (overrides config)")
	agentCmd.Flags().Int("interval", 0, "Report interval in seconds (overrides config)")

	// ── version subcommand ────────────────────────────────────────────────────
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print ClawWatch version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ClawWatch %s\n", version)
		},
	}

	root.AddCommand(serverCmd, agentCmd, versionCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// containsPort checks whether addr already has a port suffix.
func containsPort(addr string) bool {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return true
		}
		if addr[i] == '/' {
			break
		}
	}
	return false
}
