//go:build !windows

package index

import "os"

func atomicRename(src, dst string) error {
	return os.Rename(src, dst)
}
