package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cuemby/wharf/pkg/analyzer"
	"github.com/cuemby/wharf/pkg/archive"
	"github.com/cuemby/wharf/pkg/cluster"
	"github.com/cuemby/wharf/pkg/config"
	"github.com/cuemby/wharf/pkg/events"
	"github.com/cuemby/wharf/pkg/log"
	"github.com/cuemby/wharf/pkg/metrics"
	"github.com/cuemby/wharf/pkg/probe"
	"github.com/cuemby/wharf/pkg/rollout"
	"github.com/cuemby/wharf/pkg/storage"
	"github.com/cuemby/wharf/pkg/webhook"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "wharf",
	Short: "Wharf - release rollout orchestrator for Kubernetes",
	Long: `Wharf takes a built image and rolls it out onto a Kubernetes cluster:
it prepares the namespace, applies the deployment, waits for healthy pods,
checks the logs and promotes the release to active.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Wharf version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to YAML config file")
	flags.String("data-dir", "", "Data directory for release state (default ./wharf-data)")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.Bool("log-json", false, "Log as JSON")
	flags.String("kubeconfig", "", "Path to kubeconfig (default KUBECONFIG or ~/.kube/config)")

	rootCmd.AddCommand(rolloutCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(releaseCmd)
}

// loadConfig reads the config file, then lets explicit flags win
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("data-dir") {
		cfg.DataDir, _ = flags.GetString("data-dir")
	}
	if flags.Changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-json") {
		cfg.Log.JSON, _ = flags.GetBool("log-json")
	}
	if flags.Changed("kubeconfig") {
		cfg.Kubeconfig, _ = flags.GetString("kubeconfig")
	}

	log.Init(log.Config{
		Level:      log.ParseLevel(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
	})
	metrics.SetVersion(Version)
	return cfg, nil
}

func openStore(cfg *config.Config) (*storage.BoltStore, error) {
	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %v", err)
	}
	return store, nil
}

// newOrchestrator wires the rollout collaborators from cfg. broker may be
// nil when nobody streams events.
func newOrchestrator(ctx context.Context, cfg *config.Config, store storage.Store, broker *events.Broker) (*rollout.Orchestrator, error) {
	kube := cluster.NewKubeManager(cfg.Kubeconfig, cluster.Registry{
		Server:   cfg.Registry.Server,
		Username: cfg.Registry.Username,
		Password: cfg.Registry.Password,
		Email:    cfg.Registry.Email,
	})

	deps := rollout.Deps{
		Store:    store,
		Cluster:  kube,
		Webhooks: webhook.NewDispatcher(store),
	}
	if broker != nil {
		deps.Events = broker
	}

	if cfg.Analyzer.Endpoint != "" {
		deps.Analyzer = analyzer.New(cfg.Analyzer.Endpoint, cfg.Analyzer.APIKey, cfg.Analyzer.Timeout)
	}

	if cfg.Archive.Endpoint != "" {
		archiver, err := archive.NewS3Archiver(archive.Config{
			Endpoint:  cfg.Archive.Endpoint,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			Region:    cfg.Archive.Region,
			Bucket:    cfg.Archive.Bucket,
			UseSSL:    cfg.Archive.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create log archiver: %v", err)
		}
		bucketCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := archiver.EnsureBucket(bucketCtx); err != nil {
			return nil, fmt.Errorf("failed to prepare archive bucket: %v", err)
		}
		deps.Archiver = archiver
	}

	if cfg.Rollout.ProbeEndpoint {
		prober := probe.NewHTTPProber()
		if cfg.Rollout.ProbeAttempts > 0 {
			prober.Attempts = cfg.Rollout.ProbeAttempts
		}
		deps.Prober = prober
	}

	r := cfg.Rollout
	return rollout.New(deps, rollout.Options{
		CreatingInterval: r.CreatingInterval,
		CreatingTimeout:  r.CreatingTimeout,
		RunningInterval:  r.RunningInterval,
		RunningTimeout:   r.RunningTimeout,
		ScaleInterval:    r.ScaleInterval,
		ScaleTimeout:     r.ScaleTimeout,
		LogTailLines:     r.LogTailLines,
	}), nil
}
