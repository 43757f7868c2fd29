package infrastructure

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"paladin/internal/domain"
)

type fakeProcesses struct {
	procs   []domain.ProcessInfo
	findErr error
	killErr map[int32]error
	killed  []int32
}

func (f *fakeProcesses) FindAll(ctx context.Context) ([]domain.ProcessInfo, error) {
	return f.procs, f.findErr
}

func (f *fakeProcesses) Kill(ctx context.Context, pid int32) error {
	if err := f.killErr[pid]; err != nil {
		return err
	}
	f.killed = append(f.killed, pid)
	return nil
}

func TestProcessTerminator_TerminateOffenders(t *testing.T) {
	matcher, err := domain.NewSignatureMatcher([]string{"d-ransom"}, 1)
	if err != nil {
		t.Fatalf("NewSignatureMatcher failed: %v", err)
	}

	procs := &fakeProcesses{
		procs: []domain.ProcessInfo{
			{PID: 1, Name: "paladin", CommandLine: "paladin protect --signature d-ransom"},
			{PID: 10, Name: "bash"},
			{PID: 11, Name: "d-ransom", CommandLine: "./d-ransom /srv/data"},
			{PID: 12, Name: "python3", CommandLine: "python3 d-ransom.py"},
			{PID: 13, Name: "d-ransom"},
		},
		killErr: map[int32]error{13: errors.New("operation not permitted")},
	}

	pt := NewProcessTerminator(procs, procs, matcher, zerolog.Nop())
	killed, err := pt.TerminateOffenders(context.Background())

	if killed != 2 {
		t.Errorf("killed = %d, expected 2", killed)
	}
	if err == nil {
		t.Error("expected the failed kill to be reported")
	}
	if len(procs.killed) != 2 || procs.killed[0] != 11 || procs.killed[1] != 12 {
		t.Errorf("killed pids = %v, expected [11 12]", procs.killed)
	}
}

func TestProcessTerminator_NoOffenders(t *testing.T) {
	matcher, _ := domain.NewSignatureMatcher([]string{"d-ransom"}, 1)
	procs := &fakeProcesses{procs: []domain.ProcessInfo{{PID: 10, Name: "bash"}}}

	killed, err := NewProcessTerminator(procs, procs, matcher, zerolog.Nop()).TerminateOffenders(context.Background())
	if killed != 0 || err != nil {
		t.Errorf("TerminateOffenders = (%d, %v), expected (0, nil)", killed, err)
	}
}

func TestProcessTerminator_EnumerationFailure(t *testing.T) {
	matcher, _ := domain.NewSignatureMatcher([]string{"d-ransom"}, 1)
	procs := &fakeProcesses{findErr: errors.New("proc not mounted")}

	if _, err := NewProcessTerminator(procs, procs, matcher, zerolog.Nop()).TerminateOffenders(context.Background()); err == nil {
		t.Error("expected enumeration error")
	}
}

func TestSystemProcesses_FindAllIncludesSelf(t *testing.T) {
	procs, err := NewSystemProcesses().FindAll(context.Background())
	if err != nil {
		t.Skipf("process enumeration unavailable: %v", err)
	}
	if len(procs) == 0 {
		t.Fatal("no processes found")
	}
}
