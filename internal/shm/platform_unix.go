//go:build unix

package shm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// MapRegion maps or creates a shared memory region.
// The file descriptor is closed once mapped; the mapping keeps the pages alive.
func MapRegion(ctx context.Context, opts MapOptions) (*MappedRegion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	flags := unix.O_RDWR | unix.O_CLOEXEC
	if opts.Create {
		if opts.Size <= 0 {
			return nil, fmt.Errorf("create %s: invalid size %d", opts.Path, opts.Size)
		}
		// ignore mkdir error, open reports it
		_ = os.MkdirAll(filepath.Dir(opts.Path), 0o755)
		flags |= unix.O_CREAT | unix.O_EXCL
	}
	fd, err := unix.Open(opts.Path, flags, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", opts.Path, err)
	}
	defer func() {
		_ = unix.Close(fd)
	}()

	size := opts.Size
	if opts.Create {
		if err := unix.Ftruncate(fd, int64(size)); err != nil {
			_ = unix.Unlink(opts.Path)
			return nil, fmt.Errorf("ftruncate %s: %w", opts.Path, err)
		}
	} else {
		var st unix.Stat_t
		if err := unix.Fstat(fd, &st); err != nil {
			return nil, fmt.Errorf("fstat %s: %w", opts.Path, err)
		}
		if size == 0 {
			size = int(st.Size)
		}
		if size <= 0 || int64(size) > st.Size {
			return nil, fmt.Errorf("map %s: want %d bytes, file has %d", opts.Path, size, st.Size)
		}
	}

	addr, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		if opts.Create {
			_ = unix.Unlink(opts.Path)
		}
		return nil, fmt.Errorf("mmap %s: %w", opts.Path, err)
	}
	return &MappedRegion{
		Addr: addr,
		Path: opts.Path,
	}, nil
}

// UnmapRegion unmaps the shared memory region. The backing file is kept.
func UnmapRegion(ctx context.Context, region *MappedRegion) error {
	if region == nil || region.Addr == nil {
		return nil
	}
	if err := unix.Munmap(region.Addr); err != nil {
		return fmt.Errorf("munmap %s: %w", region.Path, err)
	}
	region.Addr = nil
	return nil
}

// Sync flushes the mapping to its backing file.
func Sync(region *MappedRegion) error {
	if region == nil || region.Addr == nil {
		return nil
	}
	return unix.Msync(region.Addr, unix.MS_SYNC)
}

// RemoveRegion unlinks the backing file of a window.
func RemoveRegion(path string) error {
	if err := unix.Unlink(path); err != nil && err != unix.ENOENT {
		return fmt.Errorf("unlink %s: %w", path, err)
	}
	return nil
}
