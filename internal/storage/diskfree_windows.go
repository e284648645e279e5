//go:build windows

package storage

import "golang.org/x/sys/windows"

// diskAvailable returns the bytes available to the caller on the volume
// holding path, or 0 if it cannot be determined.
func diskAvailable(path string) int64 {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0
	}
	var free, total, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(p, &free, &total, &totalFree); err != nil {
		return 0
	}
	return int64(free)
}
