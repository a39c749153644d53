package vault

import (
	"context"
	"fmt"

	"decoyftp/internal/config"
	"decoyftp/internal/honeypot"
)

// NewVaultFromConfig creates an ArtifactVault based on the capture config
// type. Returns nil (no vault, hash-and-discard) when capture is disabled.
func NewVaultFromConfig(ctx context.Context, cfg config.CaptureConfig) (honeypot.ArtifactVault, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch cfg.Type {
	case "memory":
		return NewMemoryVault(cfg.Name), nil
	case "filesystem":
		if cfg.FSVaultRoot == "" {
			return nil, fmt.Errorf("filesystem vault requires fs_vault_root to be set")
		}
		return NewFileSystemVault(cfg.Name, cfg.FSVaultRoot)
	case "s3":
		return NewS3Vault(ctx, cfg.Name, S3Options{
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.S3Prefix,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
	default:
		return nil, fmt.Errorf("unknown vault type: %s", cfg.Type)
	}
}
