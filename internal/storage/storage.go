package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"shareqr/internal/model"
)

var (
	// ErrFileNotFound is returned when the session has no matching file or
	// the file is gone from disk.
	ErrFileNotFound = errors.New("file not found")
	// ErrForbidden is returned when a candidate path would escape the
	// sandbox root. Always logged as a security event by the sandbox.
	ErrForbidden = errors.New("path escapes sandbox root")
)

// Sandbox confines all file storage to a single directory tree. Files live
// under root/<uploadID>/<storedName> and no resolved path may ever point
// outside the canonical root.
type Sandbox struct {
	root string // canonical absolute path, symlinks resolved
}

// NewSandbox creates the root directory if needed and canonicalizes it.
func NewSandbox(root string) (*Sandbox, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sandbox root %s: %w", root, err)
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve sandbox root: %w", err)
	}

	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize sandbox root: %w", err)
	}

	return &Sandbox{root: canonical}, nil
}

// Root returns the canonical sandbox root.
func (s *Sandbox) Root() string {
	return s.root
}

// Resolve maps an upload session and a requested display name to a validated
// on-disk path. The candidate path is canonicalized before the boundary
// check, and the check requires the canonical path to sit strictly inside
// the root (root plus separator, so a sibling directory sharing the root's
// name as a prefix cannot pass).
func (s *Sandbox) Resolve(session *model.UploadSession, requestedName string) (string, error) {
	if unsafeComponent(session.SessionID) || unsafeComponent(requestedName) {
		log.Printf("Warning: security event: traversal attempt for upload %q, name %q",
			session.SessionID, requestedName)
		return "", ErrForbidden
	}

	record, ok := session.FileByName(requestedName)
	if !ok {
		return "", ErrFileNotFound
	}

	if unsafeComponent(record.StoredName) {
		log.Printf("Warning: security event: unsafe stored name %q in upload %s",
			record.StoredName, session.SessionID)
		return "", ErrForbidden
	}

	candidate := filepath.Join(s.root, session.SessionID, record.StoredName)
	canonical, missing, err := canonicalize(candidate)
	if err != nil {
		return "", err
	}

	if !s.inside(canonical) {
		log.Printf("Warning: security event: resolved path %q escapes sandbox %q", canonical, s.root)
		return "", ErrForbidden
	}
	if missing {
		return "", ErrFileNotFound
	}

	return canonical, nil
}

// Save streams one uploaded file into the sandbox under the session's
// directory. Returns the number of bytes written.
func (s *Sandbox) Save(uploadID, storedName string, src io.Reader) (int64, error) {
	if unsafeComponent(uploadID) || unsafeComponent(storedName) {
		return 0, ErrForbidden
	}

	dir := filepath.Join(s.root, uploadID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create session directory: %w", err)
	}

	path := filepath.Join(dir, storedName)
	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}
	defer dst.Close()

	n, err := io.Copy(dst, src)
	if err != nil {
		os.Remove(path)
		return 0, fmt.Errorf("failed to save file: %w", err)
	}

	return n, nil
}

// RemoveSession deletes a session directory and everything under it. Used
// only to roll back a failed upload; committed sessions are never deleted.
func (s *Sandbox) RemoveSession(uploadID string) error {
	if unsafeComponent(uploadID) {
		return ErrForbidden
	}
	return os.RemoveAll(filepath.Join(s.root, uploadID))
}

// StoredNameFor derives a disk-safe stored name from a client-supplied file
// name, unique among the names already taken in the session.
func StoredNameFor(original string, taken map[string]struct{}) string {
	name := filepath.Base(strings.ReplaceAll(original, "\\", "/"))
	name = strings.Trim(name, ". ")
	if name == "" {
		name = "file"
	}

	if _, exists := taken[name]; !exists {
		return name
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s-%d%s", stem, i, ext)
		if _, exists := taken[candidate]; !exists {
			return candidate
		}
	}
}

// unsafeComponent reports whether a value cannot be used as a single path
// element below the root.
func unsafeComponent(name string) bool {
	if name == "" || name == "." || name == ".." {
		return true
	}
	if filepath.IsAbs(name) {
		return true
	}
	return strings.ContainsAny(name, "/\\")
}

// canonicalize resolves symlinks in the candidate path. A file that does not
// exist yet cannot be symlink-resolved; the cleaned absolute path is still
// boundary-checked by the caller, with missing=true so the caller can
// distinguish an absent file from an escape.
func canonicalize(candidate string) (path string, missing bool, err error) {
	abs, err := filepath.Abs(filepath.Clean(candidate))
	if err != nil {
		return "", false, err
	}

	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return abs, true, nil
		}
		return "", false, err
	}

	return canonical, false, nil
}

func (s *Sandbox) inside(canonical string) bool {
	return strings.HasPrefix(canonical, s.root+string(os.PathSeparator))
}
