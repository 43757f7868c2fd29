package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"paladin/config"
	"paladin/internal/domain"
	"paladin/internal/infrastructure"
	"paladin/internal/metrics"
	"paladin/internal/usecase"
)

func newProtectCommand(opts *options) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "protect",
		Short: "Start real-time protection of the configured directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if path != "" {
				cfg.ProtectedPath = path
			}
			return runProtection(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&path, "path", "p", "", "directory to protect (overrides protected_path)")
	return cmd
}

// runProtection wires the agent and blocks until SIGINT/SIGTERM.
func runProtection(parent context.Context, cfg *config.Config) error {
	logger, closeLog := setupLogger(cfg)
	defer closeLog()

	if cfg.Source == config.SourceDefaults {
		logger.Warn().Msg("configuration file not found, using defaults")
	}

	root, err := filepath.Abs(cfg.ProtectedPath)
	if err != nil {
		return fmt.Errorf("resolve protected path: %w", err)
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, reg, logger); err != nil {
				logger.Error().Err(err).Msg("metrics endpoint failed")
			}
		}()
	}

	honeypots, err := domain.NewHoneypotManager(cfg.Honeypots.Names, cfg.Honeypots.Size)
	if err != nil {
		return err
	}
	classifier := domain.NewEntropyClassifier(cfg.Entropy.Threshold, cfg.Entropy.SampleSize, cfg.Entropy.LockedExtensions)

	var copier infrastructure.Copier = infrastructure.NativeCopier{}
	if cfg.Response.Copier == "rsync" {
		copier = infrastructure.NewRsyncCopier(infrastructure.ExecRunner{})
	}
	snapshots := infrastructure.NewSnapshotStore(copier, logger)

	matcher, err := domain.NewSignatureMatcher(cfg.Response.OffenderSignatures, int32(os.Getpid()))
	if err != nil {
		return err
	}
	processes := infrastructure.NewSystemProcesses()
	terminator := infrastructure.NewProcessTerminator(processes, processes, matcher, logger)

	grid, err := infrastructure.NewGrid(gridConfig(cfg), m, logger)
	if err != nil {
		return err
	}

	firewall, err := infrastructure.NewFirewall(infrastructure.ExecRunner{}, cfg.Isolation.Backend, cfg.Isolation.CIDR, logger)
	if err != nil {
		return err
	}

	watcher := infrastructure.NewFSWatcher(root, cfg.Watcher.QueueSize, logger)

	svc, err := usecase.NewProtectionService(usecase.ProtectionSettings{
		ProtectedPath:       root,
		SnapshotName:        cfg.SnapshotName,
		MinSuspiciousEvents: cfg.Entropy.MinSuspiciousEvents,
		StatsInterval:       cfg.Metrics.StatsInterval,
	}, usecase.ProtectionDeps{
		Honeypots:   honeypots,
		Classifier:  classifier,
		Snapshots:   snapshots,
		Terminator:  terminator,
		Broadcaster: grid,
		Listener:    grid,
		Isolator:    firewall,
		Events:      watcher,
	}, m, logger)
	if err != nil {
		return err
	}

	logger.Info().
		Str("path", root).
		Float64("entropy_threshold", classifier.Threshold).
		Uint("min_suspicious_events", cfg.Entropy.MinSuspiciousEvents).
		Int("grid_port", cfg.Grid.Port).
		Str("isolation", cfg.Isolation.Backend+" "+cfg.Isolation.CIDR).
		Strs("offender_signatures", cfg.Response.OffenderSignatures).
		Msg("paladin protection starting, press Ctrl+C to stop")

	if err := svc.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("protection failed")
		return err
	}

	if c := svc.Coordinator(); c != nil {
		logger.Info().Fields(c.GetStats()).Msg("final statistics")
	}
	logger.Info().Msg("paladin shutdown complete")
	return nil
}

// setupLogger returns the agent logger and a function closing its file.
// A file that cannot be opened degrades to console-only logging.
func setupLogger(cfg *config.Config) (zerolog.Logger, func()) {
	if !cfg.Logging.ToFile {
		return infrastructure.NewConsoleLogger(os.Stdout, cfg.Logging.Level), func() {}
	}

	logger, logFile, err := infrastructure.SetupLogging(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		logger = infrastructure.NewConsoleLogger(os.Stdout, cfg.Logging.Level)
		logger.Warn().Err(err).Msg("failed to set up file logging, using console only")
		return logger, func() {}
	}

	if cfg.Logging.Retention > 0 {
		if _, err := infrastructure.CleanupOldLogs(cfg.Logging.Dir, cfg.Logging.Retention, logger); err != nil {
			logger.Warn().Err(err).Msg("failed to clean up old logs")
		}
	}
	return logger, func() { logFile.Close() }
}

func gridConfig(cfg *config.Config) infrastructure.GridConfig {
	return infrastructure.GridConfig{
		Port:          cfg.Grid.Port,
		BroadcastAddr: cfg.Grid.BroadcastAddr,
		ListenAddr:    cfg.Grid.ListenAddr,
		SenderIP:      cfg.Grid.SenderIP,
		ThreatType:    cfg.Grid.ThreatType,
	}
}
