package repository

import (
	"context"

	"paladin/internal/domain"
)

// ProcessRepository lists running processes.
type ProcessRepository interface {
	FindAll(ctx context.Context) ([]domain.ProcessInfo, error)
}

// ProcessController defines the interface for process control operations
// Separated from query operations (Interface Segregation Principle)
type ProcessController interface {
	Kill(ctx context.Context, pid int32) error
}

// OffenderTerminator kills every process identified as the attacker.
// It returns how many were killed; a non-nil error does not mean none were.
type OffenderTerminator interface {
	TerminateOffenders(ctx context.Context) (int, error)
}
