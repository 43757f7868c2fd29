package domain

import (
	"errors"
	"testing"
)

func TestNewSignatureMatcher(t *testing.T) {
	if _, err := NewSignatureMatcher(nil, 1); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("nil signatures: error = %v, expected ErrInvalidSignature", err)
	}
	if _, err := NewSignatureMatcher([]string{"d-ransom", "  "}, 1); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("blank signature: error = %v, expected ErrInvalidSignature", err)
	}

	m, err := NewSignatureMatcher([]string{" d-ransom "}, 1)
	if err != nil {
		t.Fatalf("NewSignatureMatcher failed: %v", err)
	}
	if m.Signatures[0] != "d-ransom" {
		t.Errorf("signature = %q, expected trimmed", m.Signatures[0])
	}
}

func TestSignatureMatcher_Match(t *testing.T) {
	m, err := NewSignatureMatcher([]string{"d-ransom"}, 4242)
	if err != nil {
		t.Fatalf("NewSignatureMatcher failed: %v", err)
	}

	tests := []struct {
		name     string
		proc     ProcessInfo
		expected bool
	}{
		{"Name match", ProcessInfo{PID: 100, Name: "d-ransom"}, true},
		{"Command line match", ProcessInfo{PID: 101, Name: "python3", CommandLine: "python3 /tmp/d-ransom.py /srv"}, true},
		{"Unrelated", ProcessInfo{PID: 102, Name: "bash", CommandLine: "bash -l"}, false},
		{"Self is never matched", ProcessInfo{PID: 4242, Name: "paladin", CommandLine: "paladin --signature d-ransom"}, false},
		{"Invalid pid", ProcessInfo{PID: 0, Name: "d-ransom"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.Match(tt.proc); got != tt.expected {
				t.Errorf("Match(%+v) = %v, expected %v", tt.proc, got, tt.expected)
			}
		})
	}
}
