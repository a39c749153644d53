package database

import (
	"fmt"

	"decoyftp/internal/config"
)

// NewStoreFromConfig creates a telemetry store based on the storage config
// type.
func NewStoreFromConfig(cfg config.StorageConfig) (*SQLiteStore, error) {
	switch cfg.Type {
	case "sqlite", "":
		if cfg.Path == "" {
			return nil, fmt.Errorf("path required for sqlite storage")
		}
		return NewSQLiteStore(cfg.Path)
	case "memory":
		return NewSQLiteStore(":memory:")
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
