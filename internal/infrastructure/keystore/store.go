// Package keystore persists signing-key material as named byte blobs.
// Backends: local filesystem, HashiCorp Vault KVv2 and a SQL table via gorm.
package keystore

import (
	"context"

	"github.com/turtacn/txauth/internal/config"
	"github.com/turtacn/txauth/internal/infrastructure/persistence"
	"github.com/turtacn/txauth/pkg/errors"
	"github.com/turtacn/txauth/pkg/logger"
)

// KeyStore is a get/put byte-blob service. Get returns an error matching
// errors.ErrNotFound when the blob does not exist.
type KeyStore interface {
	Get(ctx context.Context, name string) ([]byte, error)
	Put(ctx context.Context, name string, data []byte) error
}

// New builds the key store selected by security.key_store.
func New(cfg *config.Config, log logger.Logger) (KeyStore, error) {
	switch cfg.Security.KeyStore {
	case "file", "":
		return NewFileStore("", log), nil
	case "vault":
		return NewVaultStore(&cfg.Vault, log)
	case "database":
		db, err := persistence.OpenDatabase(context.Background(), &cfg.Database, log)
		if err != nil {
			return nil, err
		}
		return NewGormStore(db, log)
	default:
		return nil, errors.NewInvalidArgumentError("unknown key store %q", cfg.Security.KeyStore)
	}
}

// IsNotFound reports whether err means the blob does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, errors.ErrNotFound)
}
