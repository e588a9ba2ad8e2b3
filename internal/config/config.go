package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/turtacn/txauth/pkg/constants"
	"github.com/turtacn/txauth/pkg/errors"
)

// Config holds the application's configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Security  SecurityConfig  `mapstructure:"security"`
	Crypto    CryptoConfig    `mapstructure:"crypto"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Vault     VaultConfig     `mapstructure:"vault"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	GRPCPort        int           `mapstructure:"grpc_port"`
	Environment     string        `mapstructure:"environment"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// HTTPAddress returns host:port of the HTTP listener.
func (s ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// GRPCAddress returns host:port of the gRPC listener.
func (s ServerConfig) GRPCAddress() string {
	return fmt.Sprintf("%s:%d", s.Host, s.GRPCPort)
}

// SecurityConfig is the configuration surface of the token core.
type SecurityConfig struct {
	// SigningMode is 1 for symmetric (HS512) or 2 for asymmetric (RS256).
	SigningMode    int           `mapstructure:"signing_mode"`
	Secret         string        `mapstructure:"secret"`
	PublicKeyPath  string        `mapstructure:"public_key_path"`
	PrivateKeyPath string        `mapstructure:"private_key_path"`
	Issuer         string        `mapstructure:"issuer"`
	AuthTTL        time.Duration `mapstructure:"auth_ttl"`
	RefreshTTL     time.Duration `mapstructure:"refresh_ttl"`
	Audience       string        `mapstructure:"audience"`
	// KeyStore selects where asymmetric key halves live: file, vault or database.
	KeyStore string `mapstructure:"key_store"`
	// Revocation selects the jti denylist backend: memory, redis or none.
	Revocation string `mapstructure:"revocation"`
}

// Mode returns the configured signing mode.
func (c *SecurityConfig) Mode() constants.SigningMode {
	return constants.SigningMode(c.SigningMode)
}

// CryptoConfig configures the at-rest secret cipher used for ENC() values.
type CryptoConfig struct {
	MasterSecret string `mapstructure:"master_secret"`
	Digest       string `mapstructure:"digest"`
	Cipher       string `mapstructure:"cipher"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	Password        string        `mapstructure:"password"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SlowThreshold   time.Duration `mapstructure:"slow_threshold"`
}

type RedisConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type VaultConfig struct {
	Address   string `mapstructure:"address"`
	Token     string `mapstructure:"token"`
	MountPath string `mapstructure:"mount_path"`
}

type KafkaConfig struct {
	Brokers    []string `mapstructure:"brokers"`
	AuditTopic string   `mapstructure:"audit_topic"`
	// RevocationTopic, when set, shares revocations between instances.
	RevocationTopic string        `mapstructure:"revocation_topic"`
	GroupID         string        `mapstructure:"group_id"`
	// InstanceID names this instance's revocation consumer group.
	InstanceID      string        `mapstructure:"instance_id"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	BatchTimeout    time.Duration `mapstructure:"batch_timeout"`
}

// AuditConfig selects where audit events go: log, kafka, database or none.
// Events are HMAC-signed when SigningKey is set.
type AuditConfig struct {
	Sink       string `mapstructure:"sink"`
	SigningKey string `mapstructure:"signing_key"`
}

// TracingConfig configures the OpenTelemetry tracer provider.
type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	ServiceName  string  `mapstructure:"service_name"`
	Environment  string  `mapstructure:"environment"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

// RateLimitConfig throttles the unauthenticated token endpoints per client.
type RateLimitConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	Backend           string `mapstructure:"backend"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
	Burst             int    `mapstructure:"burst"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate checks for essential configuration values.
func (c *Config) Validate() error {
	s := &c.Security
	switch s.Mode() {
	case constants.SigningModeSymmetric:
		if s.Secret == "" {
			return errors.NewInvalidArgumentError("security.secret is required when signing_mode is %d", s.SigningMode)
		}
	case constants.SigningModeAsymmetric:
		if s.PublicKeyPath == "" || s.PrivateKeyPath == "" {
			return errors.NewInvalidArgumentError("security.public_key_path and security.private_key_path are required when signing_mode is %d", s.SigningMode)
		}
	default:
		return errors.NewInvalidArgumentError("security.signing_mode must be 1 (symmetric) or 2 (asymmetric), got %d", s.SigningMode)
	}

	if strings.TrimSpace(s.Issuer) == "" {
		return errors.NewInvalidArgumentError("security.issuer is required")
	}

	switch s.KeyStore {
	case "file", "":
	case "vault":
		if c.Vault.Address == "" {
			return errors.NewInvalidArgumentError("vault.address is required when security.key_store is vault")
		}
	case "database":
		if c.Database.DSN == "" {
			return errors.NewInvalidArgumentError("database.dsn is required when security.key_store is database")
		}
	default:
		return errors.NewInvalidArgumentError("unknown security.key_store %q", s.KeyStore)
	}

	switch s.Revocation {
	case "memory", "none", "":
	case "redis":
		if c.Redis.Address == "" {
			return errors.NewInvalidArgumentError("redis.address is required when security.revocation is redis")
		}
	default:
		return errors.NewInvalidArgumentError("unknown security.revocation %q", s.Revocation)
	}
	if c.Kafka.RevocationTopic != "" {
		if len(c.Kafka.Brokers) == 0 {
			return errors.NewInvalidArgumentError("kafka.brokers is required when kafka.revocation_topic is set")
		}
		if s.Revocation == "none" {
			return errors.NewInvalidArgumentError("kafka.revocation_topic needs a revocation store")
		}
	}

	if c.RateLimit.Enabled && c.RateLimit.Backend == "redis" && c.Redis.Address == "" {
		return errors.NewInvalidArgumentError("redis.address is required when rate_limit.backend is redis")
	}

	switch c.Audit.Sink {
	case "log", "none", "":
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			return errors.NewInvalidArgumentError("kafka.brokers is required when audit.sink is kafka")
		}
	case "database":
		if c.Database.DSN == "" {
			return errors.NewInvalidArgumentError("database.dsn is required when audit.sink is database")
		}
	default:
		return errors.NewInvalidArgumentError("unknown audit.sink %q", c.Audit.Sink)
	}
	return nil
}

// String renders the config with secrets masked, for start-up logging.
func (c *Config) String() string {
	return fmt.Sprintf("signing_mode=%s issuer=%s audience=%s auth_ttl=%s refresh_ttl=%s key_store=%s revocation=%s audit=%s",
		c.Security.Mode(), c.Security.Issuer, c.Security.Audience,
		c.Security.AuthTTL, c.Security.RefreshTTL, c.Security.KeyStore, c.Security.Revocation, c.Audit.Sink)
}
