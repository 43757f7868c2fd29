package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"paladin/internal/domain"
	"paladin/internal/metrics"
	"paladin/internal/repository"
)

// ResponseCoordinator owns the protection latch and runs the lockdown
// sequence exactly once, whichever signal arrives first.
type ResponseCoordinator struct {
	state       *domain.ProtectionState
	terminator  repository.OffenderTerminator
	broadcaster repository.AlertBroadcaster
	isolator    repository.NetworkIsolator
	snapshots   repository.SnapshotStore
	honeypots   repository.HoneypotDeployer

	minSuspiciousEvents uint

	metrics *metrics.Metrics
	logger  zerolog.Logger
	done    chan struct{}

	mu sync.RWMutex
	// Statistics
	stats struct {
		honeypotHits        int
		suspiciousEvents    int
		alertsReceived      int
		ignoredSignals      int
		offendersTerminated int
		stepFailures        int
		incidentID          string
		lockdownDuration    time.Duration
	}
}

// CoordinatorDeps groups the lockdown collaborators.
type CoordinatorDeps struct {
	Terminator  repository.OffenderTerminator
	Broadcaster repository.AlertBroadcaster
	Isolator    repository.NetworkIsolator
	Snapshots   repository.SnapshotStore
	Honeypots   repository.HoneypotDeployer
}

// NewResponseCoordinator creates a coordinator for state. minSuspiciousEvents
// is how many entropy-flagged events escalate; 0 and 1 both mean the first.
func NewResponseCoordinator(
	state *domain.ProtectionState,
	deps CoordinatorDeps,
	minSuspiciousEvents uint,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *ResponseCoordinator {
	if minSuspiciousEvents == 0 {
		minSuspiciousEvents = 1
	}
	return &ResponseCoordinator{
		state:               state,
		terminator:          deps.Terminator,
		broadcaster:         deps.Broadcaster,
		isolator:            deps.Isolator,
		snapshots:           deps.Snapshots,
		honeypots:           deps.Honeypots,
		minSuspiciousEvents: minSuspiciousEvents,
		metrics:             m,
		logger:              logger.With().Str("component", "coordinator").Logger(),
		done:                make(chan struct{}),
	}
}

// HoneypotTouched is the fast path: any event on a decoy locks down immediately.
func (rc *ResponseCoordinator) HoneypotTouched(ctx context.Context, path string, kind domain.EventKind) {
	rc.mu.Lock()
	rc.stats.honeypotHits++
	rc.mu.Unlock()
	rc.metrics.HoneypotHits.Inc()

	target, ok := rc.state.TryTrigger(domain.TriggerHoneypot)
	if !ok {
		rc.ignored(domain.TriggerHoneypot)
		return
	}

	rc.logger.Error().Str("path", path).Str("kind", string(kind)).Msg("HONEYPOT TOUCHED")
	rc.lockdown(ctx, target)
}

// SuspiciousContent is the slow path for a file whose content scored above the threshold.
func (rc *ResponseCoordinator) SuspiciousContent(ctx context.Context, path string, score float64) {
	rc.mu.Lock()
	rc.stats.suspiciousEvents++
	rc.mu.Unlock()
	rc.metrics.SuspiciousEvents.Inc()

	target, count, ok := rc.state.RecordSuspicious(rc.minSuspiciousEvents)
	if !ok {
		if rc.state.Triggered() {
			rc.ignored(domain.TriggerEntropy)
			return
		}
		rc.logger.Warn().
			Str("path", path).
			Float64("entropy", score).
			Uint("count", count).
			Uint("needed", rc.minSuspiciousEvents).
			Msg("suspicious content, below escalation minimum")
		return
	}

	rc.logger.Error().Str("path", path).Float64("entropy", score).Uint("count", count).Msg("ENCRYPTED CONTENT DETECTED")
	rc.lockdown(ctx, target)
}

// HandleAlert implements domain.AlertSink. A peer alert is trusted as is.
func (rc *ResponseCoordinator) HandleAlert(alert domain.Alert) {
	rc.mu.Lock()
	rc.stats.alertsReceived++
	rc.mu.Unlock()

	target, ok := rc.state.TryTrigger(domain.TriggerGrid)
	if !ok {
		rc.ignored(domain.TriggerGrid)
		return
	}

	rc.logger.Error().
		Str("sender_ip", alert.SenderIP).
		Str("threat_type", alert.ThreatType).
		Msg("PEER DISTRESS ALERT")
	rc.lockdown(context.Background(), target)
}

func (rc *ResponseCoordinator) ignored(source domain.TriggerSource) {
	rc.mu.Lock()
	rc.stats.ignoredSignals++
	rc.mu.Unlock()
	rc.logger.Debug().Str("source", string(source)).Msg("already triggered, signal ignored")
}

// lockdown runs terminate, broadcast, isolate and restore in that order. A
// failed step is logged and counted and never stops the steps after it.
func (rc *ResponseCoordinator) lockdown(ctx context.Context, target domain.LockdownTarget) {
	ctx = context.WithoutCancel(ctx)
	incidentID := uuid.NewString()
	started := time.Now()
	log := rc.logger.With().Str("incident", incidentID).Logger()

	rc.mu.Lock()
	rc.stats.incidentID = incidentID
	rc.mu.Unlock()
	rc.metrics.Lockdowns.WithLabelValues(string(target.Source)).Inc()
	rc.metrics.Triggered.Set(1)

	log.Error().
		Str("source", string(target.Source)).
		Str("path", target.ProtectedPath).
		Str("snapshot", target.BaselineSnapshotID).
		Msg("LOCKDOWN INITIATED")

	killed, err := rc.terminator.TerminateOffenders(ctx)
	rc.mu.Lock()
	rc.stats.offendersTerminated += killed
	rc.mu.Unlock()
	rc.metrics.OffendersTerminated.Add(float64(killed))
	if err != nil {
		rc.stepFailed(log, metrics.StepTerminate, err)
	} else {
		log.Warn().Int("killed", killed).Msg("[1/4] offender termination done")
	}

	if err := rc.broadcaster.Broadcast(rc.broadcaster.NewAlert()); err != nil {
		rc.stepFailed(log, metrics.StepBroadcast, err)
	} else {
		log.Warn().Msg("[2/4] distress alert sent")
	}

	if err := rc.isolator.Isolate(ctx); err != nil {
		rc.stepFailed(log, metrics.StepIsolate, err)
	} else {
		log.Warn().Msg("[3/4] host isolated")
	}

	if err := rc.snapshots.Restore(ctx, target.ProtectedPath, target.BaselineSnapshotID); err != nil {
		rc.stepFailed(log, metrics.StepRestore, err)
	} else {
		log.Warn().Str("snapshot", target.BaselineSnapshotID).Msg("[4/4] baseline restored")
	}
	if err := rc.honeypots.Deploy(target.ProtectedPath); err != nil {
		rc.stepFailed(log, metrics.StepRedeploy, err)
	}

	elapsed := time.Since(started)
	rc.mu.Lock()
	rc.stats.lockdownDuration = elapsed
	rc.mu.Unlock()

	log.Error().Dur("elapsed", elapsed).Msg("LOCKDOWN COMPLETE")
	close(rc.done)
}

func (rc *ResponseCoordinator) stepFailed(log zerolog.Logger, step string, err error) {
	rc.mu.Lock()
	rc.stats.stepFailures++
	rc.mu.Unlock()
	rc.metrics.LockdownStepFailures.WithLabelValues(step).Inc()
	log.Error().Err(err).Str("step", step).Msg("lockdown step failed")
}

// Triggered reports whether the lockdown has started.
func (rc *ResponseCoordinator) Triggered() bool {
	return rc.state.Triggered()
}

// Done is closed once the lockdown sequence has finished.
func (rc *ResponseCoordinator) Done() <-chan struct{} {
	return rc.done
}

// GetStats returns coordinator statistics merged with the protection state.
func (rc *ResponseCoordinator) GetStats() map[string]interface{} {
	stats := rc.state.GetStats()

	rc.mu.RLock()
	defer rc.mu.RUnlock()

	stats["honeypot_hits"] = rc.stats.honeypotHits
	stats["suspicious_signals"] = rc.stats.suspiciousEvents
	stats["alerts_received"] = rc.stats.alertsReceived
	stats["ignored_signals"] = rc.stats.ignoredSignals
	stats["offenders_terminated"] = rc.stats.offendersTerminated
	stats["step_failures"] = rc.stats.stepFailures
	if rc.stats.incidentID != "" {
		stats["incident_id"] = rc.stats.incidentID
		stats["lockdown_duration"] = rc.stats.lockdownDuration.String()
	}
	return stats
}
