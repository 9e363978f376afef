package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/stele-ml/stele/internal/config"
	"github.com/stele-ml/stele/internal/tracking/sqlitestore"
)

// loadSnapshot reads a config snapshot, mapping the two failure classes
// to their exit codes: schema violations are validation failures, an
// unreadable file is a command error.
func loadSnapshot(path string) (*config.Snapshot, error) {
	snap, err := config.Load(path)
	if err == nil {
		return snap, nil
	}
	var se *config.SchemaError
	if errors.As(err, &se) {
		return nil, WrapExitError(ExitFailure, "invalid config snapshot", err)
	}
	return nil, WrapExitError(ExitCommandError, "failed to load config snapshot", err)
}

// openTrackingStore opens the local sqlite backend the snapshot points
// at. Only sqlite:/// URIs are supported here; an unset URI defaults to
// <state-dir>/tracking. Remote backends are reached through their own
// SDKs, not through this CLI.
func openTrackingStore(snap *config.Snapshot) (*sqlitestore.Store, error) {
	dir, err := trackingDir(snap)
	if err != nil {
		return nil, err
	}
	st, err := sqlitestore.Open(dir)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open tracking store", err)
	}
	return st, nil
}

// trackingDir resolves the store directory behind a tracking URI. A URI
// may name the database file itself or the directory holding it.
func trackingDir(snap *config.Snapshot) (string, error) {
	uri := snap.Tracking.URI
	if uri == "" {
		return filepath.Join(snap.Paths.StateDir, "tracking"), nil
	}
	path, ok := strings.CutPrefix(uri, "sqlite:///")
	if !ok {
		return "", NewExitError(ExitCommandError,
			fmt.Sprintf("unsupported tracking uri %q: this command works against sqlite:/// backends", uri))
	}
	if filepath.Base(path) == sqlitestore.DBFile {
		return filepath.Dir(path), nil
	}
	return path, nil
}
