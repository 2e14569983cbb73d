//go:build windows

package supervisor

import "golang.org/x/sys/windows"

// diskUsage reports total/free bytes for the volume containing path.
func diskUsage(path string) (total, free uint64, err error) {
	var freeBytes, totalBytes, totalFree uint64
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, 0, err
	}
	if err := windows.GetDiskFreeSpaceEx(p, &freeBytes, &totalBytes, &totalFree); err != nil {
		return 0, 0, err
	}
	return totalBytes, freeBytes, nil
}
