package shm

import (
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
)

const devShm = "/dev/shm"

// CanCreateOnDevShm reports whether /dev/shm has size free bytes for path.
// Paths outside /dev/shm, and platforms other than Linux, always pass.
func CanCreateOnDevShm(size uint64, path string) bool {
	if runtime.GOOS != "linux" || !strings.HasPrefix(path, devShm) {
		return true
	}
	stat, err := disk.Usage(devShm)
	if err != nil {
		return false
	}
	return stat.Free >= size
}
