package usecase

import (
	"context"
	"errors"
	"sync"

	"paladin/internal/domain"
)

// effectLog records lockdown side effects in the order they happen.
type effectLog struct {
	mu      sync.Mutex
	effects []string
}

func (l *effectLog) add(effect string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.effects = append(l.effects, effect)
}

func (l *effectLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.effects...)
}

func (l *effectLog) count(effect string) int {
	n := 0
	for _, e := range l.list() {
		if e == effect {
			n++
		}
	}
	return n
}

type fakeTerminator struct {
	log    *effectLog
	killed int
	err    error
}

func (f *fakeTerminator) TerminateOffenders(ctx context.Context) (int, error) {
	f.log.add("terminate")
	return f.killed, f.err
}

type fakeBroadcaster struct {
	log  *effectLog
	err  error
	mu   sync.Mutex
	sent []domain.Alert
}

func (f *fakeBroadcaster) NewAlert() domain.Alert {
	return domain.NewAlert("10.0.0.1", domain.ThreatRansomware)
}

func (f *fakeBroadcaster) Broadcast(alert domain.Alert) error {
	f.log.add("broadcast")
	f.mu.Lock()
	f.sent = append(f.sent, alert)
	f.mu.Unlock()
	return f.err
}

type fakeIsolator struct {
	log *effectLog
	err error
}

func (f *fakeIsolator) Isolate(ctx context.Context) error {
	f.log.add("isolate")
	return f.err
}

type fakeSnapshots struct {
	log        *effectLog
	createErr  error
	restoreErr error

	mu       sync.Mutex
	restored []string
}

func (f *fakeSnapshots) Create(ctx context.Context, path, name string) (string, error) {
	f.log.add("create")
	if f.createErr != nil {
		return "", f.createErr
	}
	return name, nil
}

func (f *fakeSnapshots) Restore(ctx context.Context, path, name string) error {
	f.log.add("restore")
	f.mu.Lock()
	f.restored = append(f.restored, path+"|"+name)
	f.mu.Unlock()
	return f.restoreErr
}

type fakeDeployer struct {
	log *effectLog
	err error
}

func (f *fakeDeployer) Deploy(baseDir string) error {
	f.log.add("deploy")
	return f.err
}

type fakeListener struct {
	err     error
	mu      sync.Mutex
	sink    domain.AlertSink
	stopped bool
}

func (f *fakeListener) Listen(ctx context.Context, sink domain.AlertSink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sink = sink
	return f.err
}

func (f *fakeListener) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

type fakeEventSource struct {
	ch       chan domain.FileEvent
	startErr error
	mu       sync.Mutex
	stopped  bool
}

func newFakeEventSource() *fakeEventSource {
	return &fakeEventSource{ch: make(chan domain.FileEvent, 16)}
}

func (f *fakeEventSource) Start(ctx context.Context) error { return f.startErr }

func (f *fakeEventSource) Events() <-chan domain.FileEvent { return f.ch }

func (f *fakeEventSource) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeEventSource) GetStats() map[string]interface{} {
	return map[string]interface{}{"queue_depth": len(f.ch)}
}

var errStep = errors.New("step failed")
