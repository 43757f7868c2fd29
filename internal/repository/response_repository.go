package repository

import (
	"context"

	"paladin/internal/domain"
)

// AlertBroadcaster builds this host's distress alert and sends it to every
// peer on the segment.
type AlertBroadcaster interface {
	NewAlert() domain.Alert
	Broadcast(alert domain.Alert) error
}

// NetworkIsolator blocks lateral traffic from this host.
type NetworkIsolator interface {
	Isolate(ctx context.Context) error
}

// SnapshotStore creates and restores named copies of the protected root.
type SnapshotStore interface {
	Create(ctx context.Context, path, name string) (string, error)
	Restore(ctx context.Context, path, name string) error
}

// HoneypotDeployer (re)creates the decoy files in a directory.
type HoneypotDeployer interface {
	Deploy(baseDir string) error
}
