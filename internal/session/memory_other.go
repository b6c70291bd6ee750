//go:build !linux

package session

import "go.uber.org/zap"

// allocSecret falls back to a heap buffer where anonymous locked mappings
// are not available. It is still zeroed on release.
func allocSecret(n int, _ *zap.Logger) ([]byte, error) {
	return make([]byte, n), nil
}

func freeSecret(region []byte, _ *zap.Logger) {
	clear(region)
}
