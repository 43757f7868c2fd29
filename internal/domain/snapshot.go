package domain

import (
	"path/filepath"
	"strings"
)

// SnapshotDirName is the reserved subtree of the protected root holding
// snapshots. It is never copied into a snapshot and never watched.
const SnapshotDirName = ".snapshots"

// DefaultBaselineSnapshot is the name of the snapshot taken at startup.
const DefaultBaselineSnapshot = "base_safe_state"

// InSnapshotTree reports whether path lies in the snapshot subtree of root.
func InSnapshotTree(root, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	first := strings.SplitN(filepath.ToSlash(rel), "/", 2)[0]
	return first == SnapshotDirName
}
