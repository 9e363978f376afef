package discovery

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/stele-ml/stele/internal/index"
)

// SidecarFile is the metadata record written next to a run's outputs.
const SidecarFile = "run.json"

// Sidecar is a small co-located record of which tracked run produced a
// directory's outputs. A later process on the same machine resolves the
// run from it without any backend query.
type Sidecar struct {
	RunID         string    `json:"run_id"`
	ExperimentID  string    `json:"experiment_id,omitempty"`
	TrackingURI   string    `json:"tracking_uri,omitempty"`
	RunName       string    `json:"run_name,omitempty"`
	IdentityHash  string    `json:"identity_hash,omitempty"`
	SchemaVersion string    `json:"schema_version,omitempty"`
	CreatedAt     time.Time `json:"created_at,omitzero"`
}

// WriteSidecar persists the record as <dir>/run.json, atomically, so a
// crash mid-write never leaves a truncated record for a later finder.
func WriteSidecar(dir string, sc Sidecar) error {
	if sc.RunID == "" {
		return fmt.Errorf("sidecar for %s has no run id", dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create sidecar dir: %w", err)
	}
	data, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode sidecar: %w", err)
	}
	return index.WriteFileAtomic(filepath.Join(dir, SidecarFile), data, 0o644)
}

// ReadSidecar loads <dir>/run.json. A missing file surfaces as
// os.ErrNotExist; unknown fields are tolerated.
func ReadSidecar(dir string) (Sidecar, error) {
	data, err := os.ReadFile(filepath.Join(dir, SidecarFile))
	if err != nil {
		return Sidecar{}, err
	}
	var sc Sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return Sidecar{}, fmt.Errorf("parse sidecar in %s: %w", dir, err)
	}
	return sc, nil
}
