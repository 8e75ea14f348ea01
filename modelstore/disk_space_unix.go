//go:build !windows

package modelstore

import "syscall"

// getDiskSpace returns total and free bytes for the filesystem containing
// path. Uses Bavail so the figure reflects space available to non-root users.
func getDiskSpace(path string) (total int64, free int64, err error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	total = int64(stat.Blocks) * int64(stat.Bsize)
	free = int64(stat.Bavail) * int64(stat.Bsize)
	return total, free, nil
}
