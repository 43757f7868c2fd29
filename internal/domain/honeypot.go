package domain

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// HoneypotMarker is written at the start of every decoy file.
const HoneypotMarker = "HONEYPOT DATA DO NOT TOUCH"

// DefaultHoneypots sort first and last in a directory listing so that an
// encryption loop walking the tree in order hits one of them early.
var DefaultHoneypots = []string{
	"00_ADMIN_PASSWORD.txt",
	"AA_CONFIDENTIAL.doc",
	"ZZ_BACKUP.db",
}

// HoneypotManager deploys decoy files and recognises paths that touch them.
// Any create, modify or remove on a decoy is treated as proof of compromise.
type HoneypotManager struct {
	names []string
	size  int
}

// NewHoneypotManager creates a manager for the given decoy names.
// size is the decoy file size in bytes; values smaller than the marker are raised to it.
func NewHoneypotManager(names []string, size int) (*HoneypotManager, error) {
	if len(names) == 0 {
		return nil, ErrNoHoneypots
	}
	for _, name := range names {
		if name == "" || strings.ContainsAny(name, `/\`) {
			return nil, fmt.Errorf("invalid honeypot name %q", name)
		}
	}
	if size < len(HoneypotMarker) {
		size = len(HoneypotMarker)
	}

	return &HoneypotManager{
		names: append([]string(nil), names...),
		size:  size,
	}, nil
}

// Deploy ensures baseDir exists and (re)writes every decoy in it.
func (hm *HoneypotManager) Deploy(baseDir string) error {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return fmt.Errorf("failed to create honeypot directory: %w", err)
	}

	for _, name := range hm.names {
		path := filepath.Join(baseDir, name)
		if err := os.WriteFile(path, decoyContent(filepath.Ext(name), hm.size), 0644); err != nil {
			return fmt.Errorf("failed to write honeypot %s: %w", name, err)
		}
	}
	return nil
}

// IsHoneypot reports whether the file name of path contains a decoy name.
// Matching is case sensitive and ignores the directory part.
func (hm *HoneypotManager) IsHoneypot(path string) bool {
	base := filepath.Base(path)
	for _, name := range hm.names {
		if strings.Contains(base, name) {
			return true
		}
	}
	return false
}

// Names returns the configured decoy names in order.
func (hm *HoneypotManager) Names() []string {
	return append([]string(nil), hm.names...)
}

// Paths returns the decoy paths under baseDir.
func (hm *HoneypotManager) Paths(baseDir string) []string {
	paths := make([]string, 0, len(hm.names))
	for _, name := range hm.names {
		paths = append(paths, filepath.Join(baseDir, name))
	}
	return paths
}

// Missing returns the decoys that do not currently exist under baseDir.
func (hm *HoneypotManager) Missing(baseDir string) []string {
	var missing []string
	for _, path := range hm.Paths(baseDir) {
		if _, err := os.Stat(path); err != nil {
			missing = append(missing, path)
		}
	}
	return missing
}

// decoyContent builds the marker followed by a low-entropy pattern that looks
// plausible for the extension. Decoys must never score as encrypted themselves.
func decoyContent(extension string, size int) []byte {
	var pattern []byte

	switch strings.ToLower(extension) {
	case ".txt":
		pattern = []byte("\nadmin password backup list. rotate quarterly. do not share outside IT.")
	case ".doc", ".docx", ".xls", ".xlsx", ".pdf":
		// ZIP-style header followed by zero padding
		pattern = []byte{
			0x50, 0x4B, 0x03, 0x04,
			0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
			0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		}
	case ".db", ".dat", ".bin", ".bak":
		pattern = []byte{
			0x53, 0x51, 0x4C, 0x00,
			0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		}
	default:
		pattern = []byte("\n" + HoneypotMarker)
	}

	content := make([]byte, 0, size)
	content = append(content, HoneypotMarker...)
	for len(content) < size {
		content = append(content, pattern...)
	}
	return content[:size]
}
