// Package writer commits stage output files to a directory.
package writer

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
)

var (
	// ErrInvalidName indicates an output name that does not denote a file.
	ErrInvalidName = errors.New("invalid output file name")

	// ErrNameCollision indicates two documents with the same base name.
	ErrNameCollision = errors.New("output file already written")
)

// Dir writes files into one output directory. Output files are named after
// the base name of the document, so every base name is claimed by the first
// document written under it until Reset.
type Dir struct {
	path string

	mu     sync.Mutex
	claims map[string]string
}

// NewDir creates the directory if absent and checks that it is writable.
func NewDir(dir string) (*Dir, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("output directory: %w", ErrInvalidName)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return nil, fmt.Errorf("output directory not writable: %w", err)
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)

	return &Dir{path: dir, claims: make(map[string]string)}, nil
}

// Path returns the directory path.
func (d *Dir) Path() string { return d.path }

// Reset forgets the claimed names, typically at the start of a run.
func (d *Dir) Reset() {
	d.mu.Lock()
	clear(d.claims)
	d.mu.Unlock()
}

// Write stores content under the base name of name, replacing any file left
// by an earlier run. Writing a base name claimed by a different name since
// the last Reset fails with ErrNameCollision. The file is written to a
// temporary name first and renamed, so a failed write never leaves a
// truncated output. It returns the final path.
func (d *Dir) Write(name, content string) (string, error) {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "" || base == "." || base == ".." || base == "/" {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if err := d.claim(base, name); err != nil {
		return "", err
	}
	target := filepath.Join(d.path, base)

	tmp, err := os.CreateTemp(d.path, "."+base+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write %s: %w", base, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close %s: %w", base, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("chmod %s: %w", base, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("rename %s: %w", base, err)
	}
	return target, nil
}

func (d *Dir) claim(base, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if owner, ok := d.claims[base]; ok && owner != name {
		return fmt.Errorf("%w: %s by %s", ErrNameCollision, base, owner)
	}
	d.claims[base] = name
	return nil
}
