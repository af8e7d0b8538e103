// Package pathguard implements the folder-ingestion path-escape guard from
// spec §4.12: a requested path must resolve, after symlink resolution, to a
// subpath of a configured ingestion root. Grounded on the teacher's
// internal/sandbox/pathpolicy.go (SanitizeArg / ensureWithinRoot), adapted
// from "stay inside a workdir for a shell-tool argument" to "stay inside a
// configured ingest_root for a folder-ingestion request."
package pathguard

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Guard enforces that every resolved path lies under a fixed root.
type Guard struct {
	root string // already-canonicalized absolute path
}

// New builds a Guard rooted at root. root must already exist; it is
// resolved to its canonical absolute, symlink-free form once at
// construction (config.Load already guarantees existence).
func New(root string) (*Guard, error) {
	canon, err := canonicalize(root)
	if err != nil {
		return nil, fmt.Errorf("pathguard: resolving root %q: %w", root, err)
	}
	return &Guard{root: canon}, nil
}

// Root returns the guard's canonical root.
func (g *Guard) Root() string { return g.root }

// Resolve canonicalizes requested (following symlinks) and verifies it is a
// subpath of the configured root. It returns the canonical absolute path on
// success, or an error if the path escapes the root, does not exist, or is
// not a directory.
func (g *Guard) Resolve(requested string) (string, error) {
	canon, err := canonicalize(requested)
	if err != nil {
		return "", fmt.Errorf("pathguard: resolving %q: %w", requested, err)
	}
	info, err := os.Stat(canon)
	if err != nil {
		return "", fmt.Errorf("pathguard: stat %q: %w", canon, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("pathguard: %q is not a directory", canon)
	}
	if !withinRoot(g.root, canon) {
		return "", fmt.Errorf("pathguard: %q escapes ingest root %q", canon, g.root)
	}
	return canon, nil
}

func withinRoot(root, candidate string) bool {
	if candidate == root {
		return true
	}
	return strings.HasPrefix(candidate, root+string(filepath.Separator))
}

func canonicalize(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	return filepath.Clean(resolved), nil
}
