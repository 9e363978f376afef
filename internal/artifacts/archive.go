package artifacts

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ExtractTarGz unpacks a gzipped tarball into destDir and returns the
// checkpoint root inside it.
//
// Archives produced by training jobs usually wrap everything in a
// single top-level directory ("checkpoint-500/config.json", ...). When
// every entry shares one such root, the returned path points at it;
// otherwise the archive was flat and destDir itself is the root.
func ExtractTarGz(archivePath, destDir string) (string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create extract dir: %w", err)
	}

	commonRoot := ""
	rootSeen := false

	err = tarGzWalk(f, func(hdr *tar.Header, payload io.Reader) error {
		name := filepath.ToSlash(hdr.Name)
		if name == "" || name == "." {
			return nil
		}

		// Reject entries that would escape destDir.
		target := filepath.Join(destDir, filepath.FromSlash(name))
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry %q escapes extraction dir", hdr.Name)
		}

		top := strings.SplitN(strings.TrimPrefix(name, "./"), "/", 2)[0]
		if !rootSeen {
			commonRoot = top
			rootSeen = true
		} else if top != commonRoot {
			commonRoot = ""
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			return os.MkdirAll(target, 0o755)
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, payload); err != nil {
				out.Close()
				return err
			}
			return out.Close()
		default:
			// Symlinks and specials are not part of any checkpoint
			// layout we accept.
			return nil
		}
	})
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", archivePath, err)
	}

	if commonRoot != "" {
		root := filepath.Join(destDir, commonRoot)
		if info, err := os.Stat(root); err == nil && info.IsDir() {
			return root, nil
		}
	}
	return destDir, nil
}

// tarGzWalk streams entries of a tar.gz to the walker.
func tarGzWalk(from io.Reader, walk func(hdr *tar.Header, payload io.Reader) error) error {
	gzin, err := gzip.NewReader(from)
	if err != nil {
		return err
	}
	defer gzin.Close()

	tarin := tar.NewReader(gzin)
	for {
		hdr, err := tarin.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := walk(hdr, tarin); err != nil {
			return err
		}
	}
}

// isArchive reports whether path names a compressed checkpoint archive.
func isArchive(path string) bool {
	return strings.HasSuffix(path, ".tar.gz") || strings.HasSuffix(path, ".tgz")
}
