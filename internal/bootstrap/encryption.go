package bootstrap

import (
	"log/slog"

	"github.com/HenryT2023/YT-AI-Platform-sub000/internal/cryptoutil"
)

// CreateSealer creates an AES-GCM sealer from the provided key.
// A 64-char hex key is used as-is; any other string is hashed to 32 bytes.
// Returns a noop sealer if the key is empty or invalid (with warning log).
//
//nolint:ireturn // Returning interface is intentional for sealer abstraction
func CreateSealer(key string, logger *slog.Logger) cryptoutil.Sealer {
	if key == "" {
		if logger != nil {
			logger.Warn("encryption key is empty, using noop sealer")
		}
		return cryptoutil.NoopSealer{}
	}

	sealer, err := cryptoutil.NewAESGCMSealerFromString(key)
	if err != nil {
		if logger != nil {
			logger.Warn("failed to create sealer, using noop sealer", "error", err)
		}
		return cryptoutil.NoopSealer{}
	}

	return sealer
}
