package config

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/turtacn/txauth/pkg/constants"
	"github.com/turtacn/txauth/pkg/errors"
	"github.com/turtacn/txauth/pkg/logger"
)

// ValueDecrypter decrypts a single ENC(...) payload.
type ValueDecrypter interface {
	DecryptValue(ciphertext string) (string, error)
}

// DecrypterFactory builds a ValueDecrypter from the crypto section once it
// has been read.
type DecrypterFactory func(cfg CryptoConfig) (ValueDecrypter, error)

// LoadOptions controls where configuration is read from.
type LoadOptions struct {
	// ConfigFile is an explicit path. When empty, config.yaml is searched in
	// /etc/txauth and the working directory.
	ConfigFile string
	// Decrypter, when set, decrypts ENC(...) values in secret fields.
	Decrypter DecrypterFactory
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.grpc_port", 50051)
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("security.signing_mode", int(constants.SigningModeSymmetric))
	v.SetDefault("security.issuer", constants.DefaultIssuer)
	v.SetDefault("security.audience", constants.DefaultAudience)
	v.SetDefault("security.public_key_path", constants.DefaultPublicKeyPath)
	v.SetDefault("security.private_key_path", constants.DefaultPrivateKeyPath)
	v.SetDefault("security.auth_ttl", constants.AuthTokenDefaultTTL)
	v.SetDefault("security.refresh_ttl", constants.RefreshTokenMinTTL)
	v.SetDefault("security.key_store", "file")
	v.SetDefault("security.revocation", "memory")
	v.SetDefault("crypto.digest", "SHA-512")
	v.SetDefault("crypto.cipher", "AES/CBC/PKCS5Padding")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.slow_threshold", 200*time.Millisecond)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)
	v.SetDefault("vault.mount_path", "secret")
	v.SetDefault("kafka.audit_topic", "txauth.audit")
	v.SetDefault("kafka.write_timeout", 10*time.Second)
	v.SetDefault("kafka.batch_timeout", 50*time.Millisecond)
	v.SetDefault("kafka.revocation_topic", "")
	v.SetDefault("kafka.group_id", "txauth")
	v.SetDefault("kafka.instance_id", "")
	v.SetDefault("audit.sink", "log")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "txauth")
	v.SetDefault("tracing.environment", "development")
	v.SetDefault("tracing.sampling_rate", 1.0)
	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.backend", "memory")
	v.SetDefault("rate_limit.requests_per_minute", 60)
	v.SetDefault("rate_limit.burst", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Keys without a meaningful default are still registered so that
	// AutomaticEnv can override them during Unmarshal.
	for _, key := range []string{
		"security.secret", "crypto.master_secret", "database.dsn", "database.password",
		"server.host", "redis.address", "redis.password", "vault.address", "vault.token",
		"audit.signing_key",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("redis.db", 0)
	v.SetDefault("kafka.brokers", []string{})
}

// LoadConfig loads the configuration from file and environment variables.
func LoadConfig(opts LoadOptions, log logger.Logger) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/txauth/")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || opts.ConfigFile != "" {
			return nil, errors.WrapError(err, constants.ErrCodeInvalidArgument, "failed to read config")
		}
		log.Info(context.Background(), "No config file found, using defaults and environment")
	}

	v.SetEnvPrefix("TXAUTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.WrapError(err, constants.ErrCodeInvalidArgument, "failed to unmarshal config")
	}

	if opts.Decrypter != nil {
		if err := decryptSecrets(&cfg, opts.Decrypter); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Info(context.Background(), "Configuration loaded", logger.String("summary", cfg.String()))
	return &cfg, nil
}

// IsEncrypted reports whether s is an ENC(...) wrapped value.
func IsEncrypted(s string) bool {
	return strings.HasPrefix(s, constants.EncryptedValuePrefix) && strings.HasSuffix(s, constants.EncryptedValueSuffix)
}

func unwrapEncrypted(s string) string {
	return strings.TrimSuffix(strings.TrimPrefix(s, constants.EncryptedValuePrefix), constants.EncryptedValueSuffix)
}

// decryptSecrets replaces ENC(...) values in secret-bearing fields.
func decryptSecrets(cfg *Config, factory DecrypterFactory) error {
	fields := []*string{
		&cfg.Security.Secret,
		&cfg.Database.DSN,
		&cfg.Database.Password,
		&cfg.Redis.Password,
		&cfg.Vault.Token,
		&cfg.Audit.SigningKey,
	}

	var dec ValueDecrypter
	for _, f := range fields {
		if !IsEncrypted(*f) {
			continue
		}
		if dec == nil {
			if cfg.Crypto.MasterSecret == "" {
				return errors.NewCryptoSecurityError("encrypted config value found but crypto.master_secret is not set", nil)
			}
			var err error
			if dec, err = factory(cfg.Crypto); err != nil {
				return err
			}
		}
		plain, err := dec.DecryptValue(unwrapEncrypted(*f))
		if err != nil {
			return err
		}
		*f = plain
	}
	return nil
}
