package artifacts

import (
	"context"
	"log/slog"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

func (a *Acquirer) fromRemote(ctx context.Context, req Request, attempted *[]string) (Location, bool) {
	if a.client == nil {
		slog.Debug("no tracking client; skipping remote tier")
		return Location{}, false
	}
	if req.RunID == "" {
		slog.Debug("no run id; skipping remote tier")
		return Location{}, false
	}

	*attempted = append(*attempted, "remote "+a.client.TrackingURI()+" run "+req.RunID)

	paths, err := a.client.ListArtifacts(ctx, req.RunID)
	if err != nil {
		slog.Warn("artifact listing failed", "run_id", req.RunID, "error", err)
		return Location{}, false
	}

	artifactPath, ok := pickCheckpointPath(paths)
	if !ok {
		slog.Debug("no checkpoint-shaped artifact on run",
			"run_id", req.RunID,
			"artifact_count", len(paths),
		)
		return Location{}, false
	}

	staging := filepath.Join(req.CacheDir, "downloads", req.RunID)
	local, err := a.client.DownloadArtifacts(ctx, req.RunID, artifactPath, staging)
	if err != nil {
		slog.Warn("artifact download failed",
			"run_id", req.RunID,
			"path", artifactPath,
			"error", err,
		)
		return Location{}, false
	}

	root := local
	if isArchive(local) {
		root, err = ExtractTarGz(local, filepath.Join(staging, "extracted"))
		if err != nil {
			slog.Warn("archive extraction failed", "archive", local, "error", err)
			return Location{}, false
		}
	}

	if !a.accept(root, SourceRemote, req) {
		return Location{}, false
	}
	return Location{Path: root, Source: SourceRemote, Strategy: "download"}, true
}

// pickCheckpointPath chooses the artifact most likely to be a
// checkpoint from a run's artifact listing:
//
//  1. the directory holding a known weight file,
//  2. a model/checkpoint archive,
//  3. the directory holding a config file.
//
// Candidates within a class are taken in sorted path order so the
// choice is deterministic across listings.
func pickCheckpointPath(paths []string) (string, bool) {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	for _, p := range sorted {
		if isWeightFile(path.Base(p)) {
			return dirOrRoot(p), true
		}
	}
	for _, p := range sorted {
		if isArchive(p) && looksLikeModelArchive(path.Base(p)) {
			return p, true
		}
	}
	for _, p := range sorted {
		if path.Base(p) == configFileName {
			return dirOrRoot(p), true
		}
	}
	return "", false
}

func looksLikeModelArchive(base string) bool {
	lower := strings.ToLower(base)
	return strings.Contains(lower, "model") || strings.Contains(lower, "checkpoint")
}

// dirOrRoot maps a root-level artifact to "" (the run's whole artifact
// root) and anything nested to its parent directory.
func dirOrRoot(p string) string {
	dir := path.Dir(p)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}
