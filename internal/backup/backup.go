// Package backup mirrors run outputs into a secondary store so a
// preempted hosted-notebook session can recover checkpoints that never
// reached the tracking backend.
//
// The store is a last-ditch fallback, not a system of record: restores
// verify content hashes and a corrupted mirror is reported, never
// silently restored.
package backup

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrBackupCorrupted indicates restored data failed its integrity check.
var ErrBackupCorrupted = errors.New("backup corrupted: content hash mismatch")

// hashSuffix names the per-file content-hash sidecar the mirror writes
// next to every backed-up file.
const hashSuffix = ".sha256"

// Store abstracts the secondary backup location. The directory mirror
// below serves the mounted-drive case; object-store implementations
// satisfy the same surface.
type Store interface {
	// PathFor maps a local path to its location in the backup store.
	PathFor(localPath string) string

	// Backup copies localPath (a file, or a directory tree when isDir)
	// into the store, recording content hashes for later verification.
	Backup(localPath string, isDir bool) error

	// Restore copies remotePath from the store into dst. Returns
	// found=false when the store has nothing at remotePath; a present
	// but corrupted backup returns an error wrapping
	// ErrBackupCorrupted.
	Restore(remotePath, dst string, isDir bool) (found bool, err error)
}

// DirectoryMirror is a Store backed by a plain directory, typically a
// mounted cloud drive. Local paths under base map to the same relative
// layout under root.
type DirectoryMirror struct {
	root string
	base string
}

// NewDirectoryMirror creates a mirror writing under root. Local paths
// are relativized against base; paths outside base fall back to a flat
// layout keyed by base name.
func NewDirectoryMirror(root, base string) *DirectoryMirror {
	return &DirectoryMirror{root: root, base: base}
}

// PathFor maps a local path into the mirror.
func (m *DirectoryMirror) PathFor(localPath string) string {
	if m.base != "" {
		if rel, err := filepath.Rel(m.base, localPath); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.Join(m.root, rel)
		}
	}
	return filepath.Join(m.root, filepath.Base(localPath))
}

// Backup copies localPath into the mirror with a content-hash sidecar
// per file.
func (m *DirectoryMirror) Backup(localPath string, isDir bool) error {
	remote := m.PathFor(localPath)
	if !isDir {
		return backupFile(localPath, remote)
	}

	return filepath.WalkDir(localPath, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(localPath, p)
		if err != nil {
			return err
		}
		return backupFile(p, filepath.Join(remote, rel))
	})
}

// Restore copies remotePath into dst, verifying each file against its
// recorded hash. Files without a recorded hash are copied unverified;
// the sidecar is advisory, not a gate on foreign writes to the mirror.
func (m *DirectoryMirror) Restore(remotePath, dst string, isDir bool) (bool, error) {
	info, err := os.Stat(remotePath)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat backup %s: %w", remotePath, err)
	}

	if !isDir {
		if info.IsDir() {
			return false, fmt.Errorf("backup %s: expected a file, found a directory", remotePath)
		}
		if err := restoreFile(remotePath, dst); err != nil {
			return false, err
		}
		return true, nil
	}

	if !info.IsDir() {
		return false, fmt.Errorf("backup %s: expected a directory, found a file", remotePath)
	}

	restored := false
	err = filepath.WalkDir(remotePath, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(p, hashSuffix) {
			return nil
		}
		rel, err := filepath.Rel(remotePath, p)
		if err != nil {
			return err
		}
		if err := restoreFile(p, filepath.Join(dst, rel)); err != nil {
			return err
		}
		restored = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return restored, nil
}

func backupFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	// Hash while copying; one pass over the bytes.
	hasher := sha256.New()
	if _, err := io.Copy(out, io.TeeReader(in, hasher)); err != nil {
		out.Close()
		return fmt.Errorf("copy to backup: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close backup file: %w", err)
	}

	sum := hex.EncodeToString(hasher.Sum(nil))
	if err := os.WriteFile(dst+hashSuffix, []byte(sum), 0o644); err != nil {
		return fmt.Errorf("write hash sidecar: %w", err)
	}
	return nil
}

func restoreFile(src, dst string) error {
	expected, err := readHashSidecar(src + hashSuffix)
	if err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open backup %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create restore dir: %w", err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	hasher := sha256.New()
	if _, err := io.Copy(out, io.TeeReader(in, hasher)); err != nil {
		out.Close()
		return fmt.Errorf("restore copy: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close restored file: %w", err)
	}

	if expected != "" {
		actual := hex.EncodeToString(hasher.Sum(nil))
		if actual != expected {
			return fmt.Errorf("%w: %s expected=%s actual=%s", ErrBackupCorrupted, src, expected, actual)
		}
	}
	return nil
}

// readHashSidecar returns the recorded hash, or "" when no sidecar
// exists.
func readHashSidecar(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read hash sidecar: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
