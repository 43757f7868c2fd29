package infrastructure

import (
	"context"
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v4/process"

	"paladin/internal/domain"
)

// SystemProcesses lists and kills processes on the local host through gopsutil.
type SystemProcesses struct{}

// NewSystemProcesses returns the gopsutil-backed process repository.
func NewSystemProcesses() *SystemProcesses {
	return &SystemProcesses{}
}

// FindAll returns every process visible to the agent. Processes that exit
// while being inspected keep whatever fields were read.
func (sp *SystemProcesses) FindAll(ctx context.Context) ([]domain.ProcessInfo, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate processes: %w", err)
	}

	result := make([]domain.ProcessInfo, 0, len(procs))
	for _, p := range procs {
		info := domain.ProcessInfo{PID: p.Pid}

		if name, err := p.NameWithContext(ctx); err == nil {
			info.Name = name
		}
		if cmdSlice, err := p.CmdlineSliceWithContext(ctx); err == nil && len(cmdSlice) > 0 {
			info.CommandLine = strings.Join(cmdSlice, " ")
		} else if cmdline, err := p.CmdlineWithContext(ctx); err == nil {
			info.CommandLine = cmdline
		}

		result = append(result, info)
	}
	return result, nil
}

// Kill sends SIGKILL (TerminateProcess on Windows) to pid.
func (sp *SystemProcesses) Kill(ctx context.Context, pid int32) error {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return fmt.Errorf("process %d: %w", pid, err)
	}
	if err := p.KillWithContext(ctx); err != nil {
		return fmt.Errorf("failed to kill process %d: %w", pid, err)
	}
	return nil
}
