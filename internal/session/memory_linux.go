//go:build linux

package session

import (
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// allocSecret maps an anonymous region for n bytes, locks it against swap
// and keeps it out of core dumps when the kernel allows.
func allocSecret(n int, logger *zap.Logger) ([]byte, error) {
	region, err := unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, err
	}
	// RLIMIT_MEMLOCK is often tiny in containers; the region is still
	// off-heap and zeroed on release.
	if err := unix.Mlock(region); err != nil {
		logger.Warn("mlock unavailable for session password", zap.Error(err))
	}
	if err := unix.Madvise(region, unix.MADV_DONTDUMP); err != nil {
		logger.Debug("MADV_DONTDUMP unavailable", zap.Error(err))
	}
	return region, nil
}

// freeSecret zeroes and unmaps a region from allocSecret
func freeSecret(region []byte, logger *zap.Logger) {
	clear(region)
	_ = unix.Munlock(region)
	if err := unix.Munmap(region); err != nil {
		logger.Warn("munmap failed", zap.Error(err))
	}
}
