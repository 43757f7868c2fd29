package usecase

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"paladin/internal/domain"
	"paladin/internal/metrics"
)

// ThreatResponder receives the signals raised by the monitor.
type ThreatResponder interface {
	HoneypotTouched(ctx context.Context, path string, kind domain.EventKind)
	SuspiciousContent(ctx context.Context, path string, score float64)
	Triggered() bool
}

// HoneypotMatcher recognises decoy paths.
type HoneypotMatcher interface {
	IsHoneypot(path string) bool
}

// FileEventMonitor routes filesystem events to the honeypot fast path or the
// entropy slow path.
type FileEventMonitor struct {
	root       string
	honeypots  HoneypotMatcher
	classifier *domain.EntropyClassifier
	responder  ThreatResponder
	metrics    *metrics.Metrics
	logger     zerolog.Logger

	mu sync.RWMutex
	// Statistics
	stats struct {
		eventsProcessed int
		filesScored     int
		scanErrors      int
		skipped         int
	}
}

// NewFileEventMonitor creates a monitor for the protected root.
func NewFileEventMonitor(
	root string,
	honeypots HoneypotMatcher,
	classifier *domain.EntropyClassifier,
	responder ThreatResponder,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *FileEventMonitor {
	return &FileEventMonitor{
		root:       root,
		honeypots:  honeypots,
		classifier: classifier,
		responder:  responder,
		metrics:    m,
		logger:     logger.With().Str("component", "monitor").Logger(),
	}
}

// Run consumes events until the channel is closed or ctx is done.
func (fm *FileEventMonitor) Run(ctx context.Context, events <-chan domain.FileEvent) error {
	fm.logger.Info().Str("root", fm.root).Float64("threshold", fm.classifier.Threshold).Msg("file event monitor started")

	for {
		select {
		case <-ctx.Done():
			fm.logger.Info().Msg("file event monitor stopped (context cancelled)")
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				fm.logger.Info().Msg("file event monitor stopped (channel closed)")
				return nil
			}
			fm.HandleEvent(ctx, event)
		}
	}
}

// HandleEvent processes one event.
func (fm *FileEventMonitor) HandleEvent(ctx context.Context, event domain.FileEvent) {
	fm.mu.Lock()
	fm.stats.eventsProcessed++
	fm.mu.Unlock()
	fm.metrics.FileEvents.WithLabelValues(string(event.Kind)).Inc()

	// restore and snapshot writes land here
	if domain.InSnapshotTree(fm.root, event.Path) {
		fm.skip()
		return
	}

	if fm.honeypots.IsHoneypot(event.Path) {
		fm.responder.HoneypotTouched(ctx, event.Path, event.Kind)
		return
	}

	if !event.HasContent() || fm.responder.Triggered() || fm.classifier.ShouldSkip(event.Path) {
		fm.skip()
		return
	}

	info, err := os.Lstat(event.Path)
	if err != nil || !info.Mode().IsRegular() {
		// gone already, or a directory, link or device
		fm.skip()
		return
	}

	score, n, err := fm.classifier.ScoreFile(event.Path)
	if err != nil {
		if errors.Is(err, domain.ErrEmptySample) {
			fm.skip()
			return
		}
		fm.mu.Lock()
		fm.stats.scanErrors++
		fm.mu.Unlock()
		fm.metrics.ScanErrors.Inc()
		fm.logger.Warn().Err(err).Str("path", event.Path).Msg("failed to score file")
		return
	}

	fm.mu.Lock()
	fm.stats.filesScored++
	fm.mu.Unlock()
	fm.metrics.EntropyScores.Observe(score)

	fm.logger.Debug().Str("path", event.Path).Float64("entropy", score).Int("bytes", n).Msg("file scored")

	if fm.classifier.IsSuspicious(score) {
		fm.responder.SuspiciousContent(ctx, event.Path, score)
	}
}

func (fm *FileEventMonitor) skip() {
	fm.mu.Lock()
	fm.stats.skipped++
	fm.mu.Unlock()
}

// GetStats returns monitor statistics.
func (fm *FileEventMonitor) GetStats() map[string]interface{} {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	return map[string]interface{}{
		"events_processed": fm.stats.eventsProcessed,
		"files_scored":     fm.stats.filesScored,
		"scan_errors":      fm.stats.scanErrors,
		"skipped":          fm.stats.skipped,
	}
}
