package infrastructure

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"paladin/internal/domain"
	"paladin/internal/repository"
)

// ProcessTerminator kills every running process the matcher identifies as the attacker.
type ProcessTerminator struct {
	processes  repository.ProcessRepository
	controller repository.ProcessController
	matcher    domain.OffenderMatcher
	logger     zerolog.Logger
}

// NewProcessTerminator wires the process repository, controller and matcher.
func NewProcessTerminator(
	processes repository.ProcessRepository,
	controller repository.ProcessController,
	matcher domain.OffenderMatcher,
	logger zerolog.Logger,
) *ProcessTerminator {
	return &ProcessTerminator{
		processes:  processes,
		controller: controller,
		matcher:    matcher,
		logger:     logger.With().Str("component", "terminator").Logger(),
	}
}

// TerminateOffenders implements repository.OffenderTerminator. It keeps going
// after a failed kill and returns every failure joined.
func (pt *ProcessTerminator) TerminateOffenders(ctx context.Context) (int, error) {
	procs, err := pt.processes.FindAll(ctx)
	if err != nil {
		return 0, err
	}

	killed := 0
	var errs []error
	for _, p := range procs {
		if !pt.matcher.Match(p) {
			continue
		}

		if err := pt.controller.Kill(ctx, p.PID); err != nil {
			pt.logger.Error().Err(err).Int32("pid", p.PID).Str("name", p.Name).Msg("failed to kill offender")
			errs = append(errs, err)
			continue
		}

		killed++
		pt.logger.Warn().Int32("pid", p.PID).Str("name", p.Name).Str("cmdline", p.CommandLine).Msg("offender killed")
	}

	if killed == 0 && len(errs) == 0 {
		pt.logger.Info().Msg("no offending process found")
	}
	if len(errs) > 0 {
		return killed, fmt.Errorf("%d kills failed: %w", len(errs), errors.Join(errs...))
	}
	return killed, nil
}
