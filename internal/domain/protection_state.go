package domain

import (
	"sync"
	"time"
)

// TriggerSource identifies which signal caused a lockdown.
type TriggerSource string

const (
	TriggerHoneypot TriggerSource = "HONEYPOT"
	TriggerEntropy  TriggerSource = "ENTROPY"
	TriggerGrid     TriggerSource = "GRID"
)

// ProtectionState is the single shared state for one protected path.
// triggered moves false -> true exactly once and never back.
type ProtectionState struct {
	mu                   sync.Mutex
	suspiciousEventCount uint
	baselineSnapshotID   string
	protectedPath        string
	triggered            bool
	triggeredBy          TriggerSource
	triggeredAt          time.Time
}

// LockdownTarget is the state copied out of the lock before any I/O happens.
type LockdownTarget struct {
	ProtectedPath      string
	BaselineSnapshotID string
	Source             TriggerSource
	SuspiciousEvents   uint
	TriggeredAt        time.Time
}

// NewProtectionState creates an idle state for the given path and baseline.
func NewProtectionState(protectedPath, baselineSnapshotID string) *ProtectionState {
	return &ProtectionState{
		protectedPath:      protectedPath,
		baselineSnapshotID: baselineSnapshotID,
	}
}

// TryTrigger atomically checks and sets the latch. ok is false if the state was
// already triggered, in which case the caller must do nothing.
func (s *ProtectionState) TryTrigger(source TriggerSource) (target LockdownTarget, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.triggered {
		return LockdownTarget{}, false
	}
	return s.latch(source), true
}

// RecordSuspicious counts one entropy-flagged event and triggers once the count
// reaches minEvents. Events arriving after the latch is set are not counted.
func (s *ProtectionState) RecordSuspicious(minEvents uint) (target LockdownTarget, count uint, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.triggered {
		return LockdownTarget{}, s.suspiciousEventCount, false
	}

	s.suspiciousEventCount++
	if s.suspiciousEventCount < minEvents {
		return LockdownTarget{}, s.suspiciousEventCount, false
	}
	return s.latch(TriggerEntropy), s.suspiciousEventCount, true
}

// latch must be called with mu held.
func (s *ProtectionState) latch(source TriggerSource) LockdownTarget {
	s.triggered = true
	s.triggeredBy = source
	s.triggeredAt = time.Now()

	return LockdownTarget{
		ProtectedPath:      s.protectedPath,
		BaselineSnapshotID: s.baselineSnapshotID,
		Source:             source,
		SuspiciousEvents:   s.suspiciousEventCount,
		TriggeredAt:        s.triggeredAt,
	}
}

// Triggered reports whether the latch is set.
func (s *ProtectionState) Triggered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.triggered
}

// SuspiciousEvents returns the number of entropy-flagged events counted so far.
func (s *ProtectionState) SuspiciousEvents() uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suspiciousEventCount
}

// ProtectedPath returns the watched root.
func (s *ProtectionState) ProtectedPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.protectedPath
}

// BaselineSnapshotID returns the last known-good snapshot name.
func (s *ProtectionState) BaselineSnapshotID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baselineSnapshotID
}

// GetStats returns a point-in-time view of the state.
func (s *ProtectionState) GetStats() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := map[string]interface{}{
		"protected_path":    s.protectedPath,
		"baseline_snapshot": s.baselineSnapshotID,
		"suspicious_events": s.suspiciousEventCount,
		"triggered":         s.triggered,
	}
	if s.triggered {
		stats["triggered_by"] = string(s.triggeredBy)
		stats["triggered_at"] = s.triggeredAt.Format(time.RFC3339)
	}
	return stats
}
