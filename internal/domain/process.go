package domain

import (
	"strings"
)

// ProcessInfo is the view of a running process used to identify offenders.
type ProcessInfo struct {
	PID         int32
	Name        string
	CommandLine string
}

// OffenderMatcher decides whether a process is the attacker to terminate.
type OffenderMatcher interface {
	Match(p ProcessInfo) bool
}

// SignatureMatcher matches processes whose name or full command line contains
// any of the signatures, the way `pkill -f` does. SelfPID is never matched.
type SignatureMatcher struct {
	Signatures []string
	SelfPID    int32
}

// NewSignatureMatcher validates the signatures and builds a matcher.
func NewSignatureMatcher(signatures []string, selfPID int32) (*SignatureMatcher, error) {
	cleaned := make([]string, 0, len(signatures))
	for _, s := range signatures {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, ErrInvalidSignature
		}
		cleaned = append(cleaned, s)
	}
	if len(cleaned) == 0 {
		return nil, ErrInvalidSignature
	}

	return &SignatureMatcher{
		Signatures: cleaned,
		SelfPID:    selfPID,
	}, nil
}

// Match implements OffenderMatcher.
func (m *SignatureMatcher) Match(p ProcessInfo) bool {
	if p.PID <= 0 || p.PID == m.SelfPID {
		return false
	}
	for _, sig := range m.Signatures {
		if strings.Contains(p.Name, sig) || strings.Contains(p.CommandLine, sig) {
			return true
		}
	}
	return false
}
