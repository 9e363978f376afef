//go:build windows

package index

import "os"

// Rename cannot reliably replace an existing file on this platform, so
// unlink the destination first. A crash between the two steps loses the
// previous snapshot but never truncates the new one.
func atomicRename(src, dst string) error {
	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		return err
	}
	return os.Rename(src, dst)
}
