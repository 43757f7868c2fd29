package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"paladin/internal/domain"
	"paladin/internal/metrics"
)

type serviceFixture struct {
	root        string
	log         *effectLog
	snapshots   *fakeSnapshots
	broadcaster *fakeBroadcaster
	listener    *fakeListener
	events      *fakeEventSource
	service     *ProtectionService
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	root := filepath.Join(t.TempDir(), "protected")
	log := &effectLog{}

	hm, err := domain.NewHoneypotManager(domain.DefaultHoneypots, 512)
	if err != nil {
		t.Fatalf("NewHoneypotManager failed: %v", err)
	}

	f := &serviceFixture{
		root:        root,
		log:         log,
		snapshots:   &fakeSnapshots{log: log},
		broadcaster: &fakeBroadcaster{log: log},
		listener:    &fakeListener{},
		events:      newFakeEventSource(),
	}

	svc, err := NewProtectionService(ProtectionSettings{
		ProtectedPath: root,
		SnapshotName:  domain.DefaultBaselineSnapshot,
	}, ProtectionDeps{
		Honeypots:   hm,
		Classifier:  domain.NewEntropyClassifier(7.0, 4096, domain.DefaultLockedExtensions),
		Snapshots:   f.snapshots,
		Terminator:  &fakeTerminator{log: log, killed: 1},
		Broadcaster: f.broadcaster,
		Listener:    f.listener,
		Isolator:    &fakeIsolator{log: log},
		Events:      f.events,
	}, metrics.NewNop(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewProtectionService failed: %v", err)
	}
	f.service = svc
	return f
}

func (f *serviceFixture) start(t *testing.T) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.service.Run(ctx) }()

	select {
	case <-f.service.Ready():
	case err := <-done:
		cancel()
		t.Fatalf("Run returned during startup: %v", err)
	case <-time.After(3 * time.Second):
		cancel()
		t.Fatal("service not ready")
	}
	return cancel, done
}

func waitLockdown(t *testing.T, c *ResponseCoordinator) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("lockdown did not finish")
	}
}

func TestNewProtectionService_RequiresPath(t *testing.T) {
	_, err := NewProtectionService(ProtectionSettings{}, ProtectionDeps{}, metrics.NewNop(), zerolog.Nop())
	if !errors.Is(err, domain.ErrProtectedPathUnset) {
		t.Errorf("error = %v, expected ErrProtectedPathUnset", err)
	}
}

func TestProtectionService_Startup(t *testing.T) {
	f := newServiceFixture(t)
	cancel, done := f.start(t)

	for _, name := range domain.DefaultHoneypots {
		if _, err := os.Stat(filepath.Join(f.root, name)); err != nil {
			t.Errorf("honeypot %s missing after startup: %v", name, err)
		}
	}
	if got := f.log.list(); !reflect.DeepEqual(got, []string{"create"}) {
		t.Errorf("startup effects = %v, expected [create]", got)
	}
	if f.listener.sink != f.service.Coordinator() {
		t.Error("grid listener not wired to the coordinator")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v, expected nil on cancel", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not stop")
	}
	if !f.events.stopped || !f.listener.stopped {
		t.Error("watch service or grid listener not stopped")
	}
}

// An encrypted file with entropy 7.5 appears: the offender is killed, the
// alert is sent, the host is isolated and the startup snapshot is restored.
func TestProtectionService_EntropyLockdown(t *testing.T) {
	f := newServiceFixture(t)
	cancel, _ := f.start(t)
	defer cancel()

	path := filepath.Join(f.root, "report.docx")
	if err := os.WriteFile(path, entropyBytes(4096, 7.5), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	f.events.ch <- domain.NewFileEvent(path, domain.EventModify)

	waitLockdown(t, f.service.Coordinator())

	expected := []string{"create", "terminate", "broadcast", "isolate", "restore"}
	if got := f.log.list(); !reflect.DeepEqual(got, expected) {
		t.Fatalf("effects = %v, expected %v", got, expected)
	}
	if len(f.snapshots.restored) != 1 || f.snapshots.restored[0] != f.root+"|"+domain.DefaultBaselineSnapshot {
		t.Errorf("restored = %v, expected the startup snapshot", f.snapshots.restored)
	}
	if f.broadcaster.sent[0].ThreatType != domain.ThreatRansomware {
		t.Errorf("alert threat type = %q", f.broadcaster.sent[0].ThreatType)
	}
}

// Two honeypots are touched back to back: only one lockdown runs.
func TestProtectionService_TwoHoneypotHits(t *testing.T) {
	f := newServiceFixture(t)
	cancel, _ := f.start(t)
	defer cancel()

	f.events.ch <- domain.NewFileEvent(filepath.Join(f.root, "00_ADMIN_PASSWORD.txt"), domain.EventModify)
	f.events.ch <- domain.NewFileEvent(filepath.Join(f.root, "ZZ_BACKUP.db"), domain.EventRemove)

	waitLockdown(t, f.service.Coordinator())

	// let the second event drain
	deadline := time.Now().Add(3 * time.Second)
	for len(f.events.ch) > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)

	if n := f.log.count("terminate"); n != 1 {
		t.Errorf("lockdowns = %d, expected 1", n)
	}
}

func TestProtectionService_GridAlert(t *testing.T) {
	f := newServiceFixture(t)
	cancel, _ := f.start(t)
	defer cancel()

	f.listener.sink.HandleAlert(domain.NewAlert("10.0.0.42", domain.ThreatRansomware))
	waitLockdown(t, f.service.Coordinator())

	if n := f.log.count("isolate"); n != 1 {
		t.Errorf("isolate ran %d times, expected 1", n)
	}
}

func TestProtectionService_StartupFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *serviceFixture)
	}{
		{"Snapshot creation", func(f *serviceFixture) { f.snapshots.createErr = errStep }},
		{"Grid bind", func(f *serviceFixture) { f.listener.err = errStep }},
		{"Watcher start", func(f *serviceFixture) { f.events.startErr = errStep }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServiceFixture(t)
			tt.setup(f)

			err := f.service.Run(context.Background())
			if !errors.Is(err, errStep) {
				t.Errorf("Run = %v, expected startup failure", err)
			}
		})
	}
}
