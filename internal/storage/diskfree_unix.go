//go:build !windows

package storage

import "golang.org/x/sys/unix"

// diskAvailable returns the bytes available to unprivileged writers on the
// filesystem holding path, or 0 if it cannot be determined.
func diskAvailable(path string) int64 {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0
	}
	return int64(st.Bavail) * int64(st.Bsize)
}
