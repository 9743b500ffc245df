package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/crdtsync/pkg/config"
	"github.com/cuemby/crdtsync/pkg/crdt"
	"github.com/cuemby/crdtsync/pkg/log"
	"github.com/cuemby/crdtsync/pkg/lwwsync"
	"github.com/cuemby/crdtsync/pkg/metrics"
	"github.com/cuemby/crdtsync/pkg/replica"
	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

const shutdownBudget = 5 * time.Second
const querySampleInterval = 30 * time.Second

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "crdtsync",
	Short:   "crdtsync runs one eventually-consistent CRDT replica",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("crdtsync version %s (%s)\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var runCmd = &cobra.Command{
	Use:   "run <config-path>",
	Short: "Start a replica from a node config file",
	Args:  cobra.ExactArgs(1),
	RunE:  runReplica,
}

func init() {
	runCmd.Flags().String("metrics-addr", "", "Optional address to serve /metrics and /healthz from (e.g. 127.0.0.1:9090)")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the crdtsync version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("crdtsync version %s (%s)\n", Version, Commit)
		return nil
	},
}

func runReplica(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(args[0])
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if lc, err := config.LoadLoggingConfig(cfg.LoggingConfig); err != nil {
		return fmt.Errorf("load logging config: %w", err)
	} else if lc != nil {
		log.Init(log.Config{Level: log.Level(lc.Level), JSONOutput: lc.JSON})
	}

	value, err := newValue(cfg)
	if err != nil {
		return fmt.Errorf("construct crdt value: %w", err)
	}

	node := replica.New(cfg, value)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := node.Start(ctx); err != nil {
		return fmt.Errorf("start replica: %w", err)
	}

	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	var metricsServer *http.Server
	var collector *metrics.Collector
	if metricsAddr != "" {
		metricsServer = startMetricsServer(metricsAddr, node)
		collector = metrics.NewCollector(querySampleInterval, node.Query)
		collector.Start()
	}

	fmt.Printf("crdtsync node %q listening on %s:%d (%s)\n", cfg.NodeID, cfg.Host, cfg.Port, cfg.CRDTType)
	<-ctx.Done()
	fmt.Println("shutting down...")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownBudget)
	defer cancel()

	if err := node.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop replica: %w", err)
	}
	if collector != nil {
		collector.Stop()
	}
	if metricsServer != nil {
		_ = metricsServer.Close()
	}
	fmt.Println("shutdown complete")
	return nil
}

func newValue(cfg *config.NodeConfig) (crdt.Value, error) {
	if cfg.CRDTType == config.KindLWW {
		return lwwsync.NewEngine(cfg.SyncFolder), nil
	}
	return crdt.New(cfg.CRDTType, cfg.NodeID)
}

func startMetricsServer(addr string, node *replica.Node) *http.Server {
	metrics.SetVersion(Version)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", healthzHandler(node))
	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())
	mux.HandleFunc("/live", metrics.LivenessHandler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "metrics server error: %v\n", err)
		}
	}()
	fmt.Printf("metrics: http://%s/metrics, health: http://%s/healthz\n", addr, addr)
	return srv
}

func healthzHandler(node *replica.Node) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := node.State()
		w.Header().Set("Content-Type", "application/json")
		if state != replica.StateRunning {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		fmt.Fprintf(w, `{"state":%q}`, state)
	}
}
