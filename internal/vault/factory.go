package vault

import (
	"context"
	"fmt"

	"github.com/spf13/afero"

	"tourist-go/internal/config"
	"tourist-go/internal/tourist"
)

// NewVaultFromConfig creates a Vault implementation based on the vault config type.
// fs backs filesystem vaults.
func NewVaultFromConfig(ctx context.Context, fs afero.Fs, cfg config.VaultConfig) (tourist.Vault, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryVault(cfg.Name), nil
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 vault requires s3_bucket to be set")
		}
		v, err := NewS3Vault(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return v, nil
	case "filesystem":
		if cfg.FSVaultRoot == "" {
			return nil, fmt.Errorf("filesystem vault requires fs_vault_root to be set")
		}
		v, err := NewFileSystemVault(fs, cfg.Name, cfg.FSVaultRoot)
		if err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown vault type: %s", cfg.Type)
	}
}
