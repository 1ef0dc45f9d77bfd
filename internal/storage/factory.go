package storage

import (
	"fmt"
	"strings"
)

// NewStorage creates a storage backend based on configuration
func NewStorage(config *Config) (Storage, error) {
	switch strings.ToLower(config.Type) {
	case "sqlite":
		return NewSQLiteStorage(config), nil
	case "postgres", "postgresql":
		return NewPostgresStorage(config), nil
	case "memory":
		return NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", config.Type)
	}
}
