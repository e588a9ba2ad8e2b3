package keystore

import (
	"context"
	"encoding/base64"
	"strings"

	vault "github.com/hashicorp/vault/api"
	"github.com/turtacn/txauth/internal/config"
	"github.com/turtacn/txauth/pkg/constants"
	"github.com/turtacn/txauth/pkg/errors"
	"github.com/turtacn/txauth/pkg/logger"
)

// vaultBlobField is the KVv2 data field holding the base64 blob.
const vaultBlobField = "blob"

// VaultStore keeps blobs in a Vault KVv2 secrets engine.
type VaultStore struct {
	kv  *vault.KVv2
	log logger.Logger
}

// NewVaultStore creates and configures a Vault-backed store.
func NewVaultStore(cfg *config.VaultConfig, log logger.Logger) (*VaultStore, error) {
	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = cfg.Address
	// Key loading happens once at start; a failing store is fatal, not retried.
	vaultConfig.MaxRetries = 0

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, errors.WrapError(err, constants.ErrCodeInternal, "failed to create vault client")
	}
	client.SetToken(cfg.Token)

	mount := cfg.MountPath
	if mount == "" {
		mount = "secret"
	}

	return &VaultStore{
		kv:  client.KVv2(mount),
		log: log.WithComponent("VaultKeyStore"),
	}, nil
}

// secretPath maps a key path such as "keys/private.pem" to a KV path.
func secretPath(name string) string {
	return strings.TrimPrefix(name, "/")
}

// Get reads a blob from Vault.
func (s *VaultStore) Get(ctx context.Context, name string) ([]byte, error) {
	secret, err := s.kv.Get(ctx, secretPath(name))
	if err != nil {
		if errors.Is(err, vault.ErrSecretNotFound) {
			return nil, errors.NewNotFoundError(name).WithCause(err)
		}
		return nil, errors.WrapError(err, constants.ErrCodeInternal, "failed to read key from vault")
	}
	if secret == nil || secret.Data == nil {
		return nil, errors.NewNotFoundError(name)
	}

	encoded, ok := secret.Data[vaultBlobField].(string)
	if !ok {
		return nil, errors.NewNotFoundError(name)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.WrapError(err, constants.ErrCodeInternal, "vault key blob is not valid base64")
	}
	return data, nil
}

// Put writes a blob to Vault.
func (s *VaultStore) Put(ctx context.Context, name string, data []byte) error {
	_, err := s.kv.Put(ctx, secretPath(name), map[string]interface{}{
		vaultBlobField: base64.StdEncoding.EncodeToString(data),
	})
	if err != nil {
		return errors.WrapError(err, constants.ErrCodeInternal, "failed to write key to vault")
	}
	s.log.Debug(ctx, "Key blob written to vault", logger.String("path", name))
	return nil
}
