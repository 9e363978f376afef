package pipeline

import (
	"context"

	"github.com/stele-ml/stele/internal/artifacts"
	"github.com/stele-ml/stele/internal/backup"
	"github.com/stele-ml/stele/internal/config"
	"github.com/stele-ml/stele/internal/tracking"
)

// BackupMirrorFor returns the backup mirror a snapshot configures, or
// nil when the platform does not use one or no backup path is set. The
// mirror maps paths under the checkpoint cache to the same layout under
// the backup root.
func BackupMirrorFor(snap *config.Snapshot) backup.Store {
	if !snap.Platform.UsesBackupStore() || snap.Paths.BackupDir == "" {
		return nil
	}
	return backup.NewDirectoryMirror(snap.Paths.BackupDir, snap.Paths.CacheDir)
}

// ResolveCheckpoint locates a usable checkpoint directory for a run,
// walking the acquisition chain with the sources this snapshot's
// platform has: local caches and the legacy sweep layout everywhere,
// the backup mirror only where BackupMirrorFor configures one, and the
// tracking backend last.
func ResolveCheckpoint(ctx context.Context, client tracking.Client, snap *config.Snapshot, runID, identityHash string) (artifacts.Location, error) {
	var opts []artifacts.AcquirerOption
	if mirror := BackupMirrorFor(snap); mirror != nil {
		opts = append(opts, artifacts.WithBackupStore(mirror))
	}
	acq := artifacts.NewAcquirer(client, opts...)
	return acq.Acquire(ctx, artifacts.Request{
		RunID:          runID,
		IdentityHash:   identityHash,
		CacheDir:       snap.Paths.CacheDir,
		LegacySweepDir: snap.Paths.LegacySweepDir,
	})
}

// ResolveCheckpoint resolves against the coordinator's tracking client.
func (c *Coordinator) ResolveCheckpoint(ctx context.Context, snap *config.Snapshot, runID, identityHash string) (artifacts.Location, error) {
	return ResolveCheckpoint(ctx, c.client, snap, runID, identityHash)
}
