package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"paladin/internal/domain"
	"paladin/internal/metrics"
	"paladin/internal/repository"
)

// AlertListener delivers peer alerts to a sink until stopped.
type AlertListener interface {
	Listen(ctx context.Context, sink domain.AlertSink) error
	Stop()
}

// EventSource produces filesystem events for the protected root.
type EventSource interface {
	Start(ctx context.Context) error
	Events() <-chan domain.FileEvent
	Stop()
	GetStats() map[string]interface{}
}

// ProtectionSettings are the knobs of one protection run.
type ProtectionSettings struct {
	ProtectedPath       string
	SnapshotName        string
	MinSuspiciousEvents uint
	StatsInterval       time.Duration
}

// ProtectionService brings the agent up in order and runs it until ctx is done.
type ProtectionService struct {
	settings   ProtectionSettings
	honeypots  *domain.HoneypotManager
	classifier *domain.EntropyClassifier
	snapshots  repository.SnapshotStore
	terminator repository.OffenderTerminator
	grid       repository.AlertBroadcaster
	listener   AlertListener
	isolator   repository.NetworkIsolator
	events     EventSource
	metrics    *metrics.Metrics
	logger     zerolog.Logger

	coordinator *ResponseCoordinator
	monitor     *FileEventMonitor
	ready       chan struct{}
}

// ProtectionDeps groups the collaborators of a ProtectionService.
type ProtectionDeps struct {
	Honeypots   *domain.HoneypotManager
	Classifier  *domain.EntropyClassifier
	Snapshots   repository.SnapshotStore
	Terminator  repository.OffenderTerminator
	Broadcaster repository.AlertBroadcaster
	Listener    AlertListener
	Isolator    repository.NetworkIsolator
	Events      EventSource
}

// NewProtectionService creates the service. Nothing touches the disk or the
// network until Run.
func NewProtectionService(settings ProtectionSettings, deps ProtectionDeps, m *metrics.Metrics, logger zerolog.Logger) (*ProtectionService, error) {
	if settings.ProtectedPath == "" {
		return nil, domain.ErrProtectedPathUnset
	}
	if settings.SnapshotName == "" {
		settings.SnapshotName = domain.DefaultBaselineSnapshot
	}

	return &ProtectionService{
		settings:   settings,
		honeypots:  deps.Honeypots,
		classifier: deps.Classifier,
		snapshots:  deps.Snapshots,
		terminator: deps.Terminator,
		grid:       deps.Broadcaster,
		listener:   deps.Listener,
		isolator:   deps.Isolator,
		events:     deps.Events,
		metrics:    m,
		logger:     logger.With().Str("component", "protection").Logger(),
		ready:      make(chan struct{}),
	}, nil
}

// Run deploys the honeypots, takes the baseline snapshot, starts the grid
// listener and the watch service, then monitors events until ctx is done or
// the event source closes. Any startup failure is returned before monitoring starts.
func (ps *ProtectionService) Run(ctx context.Context) error {
	path := ps.settings.ProtectedPath

	ps.logger.Info().Str("path", path).Msg("starting protection")

	if err := ps.honeypots.Deploy(path); err != nil {
		return fmt.Errorf("failed to deploy honeypots: %w", err)
	}
	for _, p := range ps.honeypots.Paths(path) {
		ps.logger.Info().Str("path", p).Msg("trap set")
	}

	snapshotID, err := ps.snapshots.Create(ctx, path, ps.settings.SnapshotName)
	if err != nil {
		return fmt.Errorf("failed to create baseline snapshot: %w", err)
	}

	state := domain.NewProtectionState(path, snapshotID)
	ps.coordinator = NewResponseCoordinator(state, CoordinatorDeps{
		Terminator:  ps.terminator,
		Broadcaster: ps.grid,
		Isolator:    ps.isolator,
		Snapshots:   ps.snapshots,
		Honeypots:   ps.honeypots,
	}, ps.settings.MinSuspiciousEvents, ps.metrics, ps.logger)
	ps.monitor = NewFileEventMonitor(path, ps.honeypots, ps.classifier, ps.coordinator, ps.metrics, ps.logger)

	if err := ps.listener.Listen(ctx, ps.coordinator); err != nil {
		return fmt.Errorf("failed to start grid listener: %w", err)
	}
	defer ps.listener.Stop()

	if err := ps.events.Start(ctx); err != nil {
		return fmt.Errorf("failed to start filesystem watcher: %w", err)
	}
	defer ps.events.Stop()

	if ps.settings.StatsInterval > 0 {
		go ps.reportStatistics(ctx, ps.settings.StatsInterval)
	}

	ps.logger.Info().Str("snapshot", snapshotID).Msg("protection active, watching file system and traps")
	close(ps.ready)

	if err := ps.monitor.Run(ctx, ps.events.Events()); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// Ready is closed once startup has finished and monitoring has begun.
func (ps *ProtectionService) Ready() <-chan struct{} {
	return ps.ready
}

// Coordinator returns the response coordinator. It is nil before Run has
// taken the baseline snapshot.
func (ps *ProtectionService) Coordinator() *ResponseCoordinator {
	return ps.coordinator
}

// reportStatistics logs a summary every interval until ctx is done.
func (ps *ProtectionService) reportStatistics(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ps.logStatistics()
		}
	}
}

func (ps *ProtectionService) logStatistics() {
	coord := ps.coordinator.GetStats()
	mon := ps.monitor.GetStats()
	watch := ps.events.GetStats()

	ps.logger.Info().
		Interface("triggered", coord["triggered"]).
		Interface("suspicious_events", coord["suspicious_events"]).
		Interface("honeypot_hits", coord["honeypot_hits"]).
		Interface("alerts_received", coord["alerts_received"]).
		Interface("events_processed", mon["events_processed"]).
		Interface("files_scored", mon["files_scored"]).
		Interface("queue_depth", watch["queue_depth"]).
		Msg("statistics")
}
