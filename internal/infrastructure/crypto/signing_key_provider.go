// Package crypto owns the token signing keys, the token codec built on them,
// and the at-rest secret cipher.
package crypto

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"io"

	"github.com/golang-jwt/jwt/v5"
	"github.com/turtacn/txauth/internal/config"
	"github.com/turtacn/txauth/internal/infrastructure/keystore"
	"github.com/turtacn/txauth/pkg/constants"
	"github.com/turtacn/txauth/pkg/errors"
	"github.com/turtacn/txauth/pkg/logger"
)

const (
	pemTypePrivateKey = "PRIVATE KEY"
	pemTypePublicKey  = "PUBLIC KEY"
)

// SigningKeyProvider owns the key material used to sign and verify tokens.
// Implementations are immutable after construction and safe for concurrent use.
// The algorithm is derived from the key mode and never configured separately.
type SigningKeyProvider interface {
	// Mode reports the key-management strategy.
	Mode() constants.SigningMode
	// Algorithm returns HS512 for symmetric keys and RS256 for RSA keys.
	Algorithm() jwt.SigningMethod
	// SigningKey returns the key passed to the signing method.
	SigningKey() interface{}
	// VerificationKey returns the key used to verify signatures.
	VerificationKey() interface{}
	// KeyID is a stable identifier stamped into the "kid" header.
	KeyID() string
}

// ================================================================================
// Symmetric
// ================================================================================

type symmetricProvider struct {
	key []byte
	kid string
}

// NewSymmetricProvider derives an HMAC key from secret. The derivation is a
// SHA-512 digest, so the same secret always yields the same key.
func NewSymmetricProvider(secret string) (SigningKeyProvider, error) {
	if secret == "" {
		return nil, errors.NewKeyLoadError("security.secret", errors.New("symmetric secret is empty"))
	}
	sum := sha512.Sum512([]byte(secret))
	key := sum[:]
	return &symmetricProvider{key: key, kid: keyIDFor(append([]byte("hs512:"), key...))}, nil
}

func (p *symmetricProvider) Mode() constants.SigningMode  { return constants.SigningModeSymmetric }
func (p *symmetricProvider) Algorithm() jwt.SigningMethod { return jwt.SigningMethodHS512 }
func (p *symmetricProvider) SigningKey() interface{}      { return p.key }
func (p *symmetricProvider) VerificationKey() interface{} { return p.key }
func (p *symmetricProvider) KeyID() string                { return p.kid }

// ================================================================================
// Asymmetric
// ================================================================================

type asymmetricProvider struct {
	privateKey   *rsa.PrivateKey
	publicKey    *rsa.PublicKey
	publicKeyPEM []byte
	kid          string
}

func (p *asymmetricProvider) Mode() constants.SigningMode  { return constants.SigningModeAsymmetric }
func (p *asymmetricProvider) Algorithm() jwt.SigningMethod { return jwt.SigningMethodRS256 }
func (p *asymmetricProvider) SigningKey() interface{}      { return p.privateKey }
func (p *asymmetricProvider) VerificationKey() interface{} { return p.publicKey }
func (p *asymmetricProvider) KeyID() string                { return p.kid }

// PublicKeyPEM returns the X.509 encoded public key for distribution to verifiers.
func (p *asymmetricProvider) PublicKeyPEM() []byte {
	out := make([]byte, len(p.publicKeyPEM))
	copy(out, p.publicKeyPEM)
	return out
}

// PublicKeyExporter is implemented by providers that can publish a public key.
type PublicKeyExporter interface {
	PublicKeyPEM() []byte
}

// AsymmetricOptions configures LoadOrGenerateRSAProvider.
type AsymmetricOptions struct {
	PublicKeyPath  string
	PrivateKeyPath string
	// Random is the entropy source for key generation; crypto/rand when nil.
	Random io.Reader
}

// LoadOrGenerateRSAProvider loads an RSA key pair from store, or generates and
// persists a new RSA-2048 pair when at least one half is absent. Partial
// presence counts as absent and both halves are rewritten.
func LoadOrGenerateRSAProvider(ctx context.Context, store keystore.KeyStore, opts AsymmetricOptions, log logger.Logger) (SigningKeyProvider, error) {
	log = log.WithComponent("SigningKeyProvider")

	pubPEM, pubErr := store.Get(ctx, opts.PublicKeyPath)
	if pubErr != nil && !keystore.IsNotFound(pubErr) {
		return nil, errors.NewKeyLoadError(opts.PublicKeyPath, pubErr)
	}
	privPEM, privErr := store.Get(ctx, opts.PrivateKeyPath)
	if privErr != nil && !keystore.IsNotFound(privErr) {
		return nil, errors.NewKeyLoadError(opts.PrivateKeyPath, privErr)
	}

	if pubErr == nil && privErr == nil {
		p, err := parseRSAKeyPair(pubPEM, privPEM, opts)
		if err != nil {
			return nil, err
		}
		log.Info(ctx, "Loaded existing RSA key pair",
			logger.String("public_key_path", opts.PublicKeyPath),
			logger.String("private_key_path", opts.PrivateKeyPath),
			logger.String("kid", p.kid),
		)
		return p, nil
	}

	if pubErr == nil || privErr == nil {
		log.Warn(ctx, "Only one half of the RSA key pair was found, regenerating both",
			logger.Bool("public_present", pubErr == nil),
			logger.Bool("private_present", privErr == nil),
		)
	}

	p, err := generateRSAKeyPair(opts.Random)
	if err != nil {
		return nil, err
	}
	// Public half first: a failure in between leaves no orphaned private key.
	if err := store.Put(ctx, opts.PublicKeyPath, p.publicKeyPEM); err != nil {
		return nil, errors.NewKeyGenerationError(err)
	}
	if err := store.Put(ctx, opts.PrivateKeyPath, p.privatePEM); err != nil {
		return nil, errors.NewKeyGenerationError(err)
	}

	log.Info(ctx, "Generated and persisted new RSA key pair",
		logger.Int("bits", constants.RSAKeyBits),
		logger.String("public_key_path", opts.PublicKeyPath),
		logger.String("private_key_path", opts.PrivateKeyPath),
		logger.String("kid", p.kid),
	)
	return p.asymmetricProvider, nil
}

type generatedPair struct {
	*asymmetricProvider
	privatePEM []byte
}

// generateRSAKeyPair generates an RSA key pair and its PEM encodings.
func generateRSAKeyPair(random io.Reader) (*generatedPair, error) {
	if random == nil {
		random = rand.Reader
	}
	privateKey, err := rsa.GenerateKey(random, constants.RSAKeyBits)
	if err != nil {
		return nil, errors.NewKeyGenerationError(fmt.Errorf("failed to generate RSA key: %w", err))
	}

	privateKeyBytes, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return nil, errors.NewKeyGenerationError(fmt.Errorf("failed to marshal private key: %w", err))
	}
	publicKeyBytes, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		return nil, errors.NewKeyGenerationError(fmt.Errorf("failed to marshal public key: %w", err))
	}

	privatePEM := pem.EncodeToMemory(&pem.Block{Type: pemTypePrivateKey, Bytes: privateKeyBytes})
	publicPEM := pem.EncodeToMemory(&pem.Block{Type: pemTypePublicKey, Bytes: publicKeyBytes})

	return &generatedPair{
		asymmetricProvider: &asymmetricProvider{
			privateKey:   privateKey,
			publicKey:    &privateKey.PublicKey,
			publicKeyPEM: publicPEM,
			kid:          keyIDFor(publicKeyBytes),
		},
		privatePEM: privatePEM,
	}, nil
}

// parseRSAKeyPair decodes PKCS#8 and X.509 PEM blocks and checks they match.
func parseRSAKeyPair(pubPEM, privPEM []byte, opts AsymmetricOptions) (*asymmetricProvider, error) {
	privBlock, _ := pem.Decode(privPEM)
	if privBlock == nil || privBlock.Type != pemTypePrivateKey {
		return nil, errors.NewKeyLoadError(opts.PrivateKeyPath, errors.New("no PKCS#8 PRIVATE KEY block found"))
	}
	parsedPriv, err := x509.ParsePKCS8PrivateKey(privBlock.Bytes)
	if err != nil {
		return nil, errors.NewKeyLoadError(opts.PrivateKeyPath, err)
	}
	privateKey, ok := parsedPriv.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.NewKeyLoadError(opts.PrivateKeyPath, errors.New("private key is not RSA"))
	}

	pubBlock, _ := pem.Decode(pubPEM)
	if pubBlock == nil || pubBlock.Type != pemTypePublicKey {
		return nil, errors.NewKeyLoadError(opts.PublicKeyPath, errors.New("no X.509 PUBLIC KEY block found"))
	}
	parsedPub, err := x509.ParsePKIXPublicKey(pubBlock.Bytes)
	if err != nil {
		return nil, errors.NewKeyLoadError(opts.PublicKeyPath, err)
	}
	publicKey, ok := parsedPub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.NewKeyLoadError(opts.PublicKeyPath, errors.New("public key is not RSA"))
	}

	if !privateKey.PublicKey.Equal(publicKey) {
		return nil, errors.NewKeyLoadError(opts.PublicKeyPath, errors.New("public key does not match private key"))
	}

	return &asymmetricProvider{
		privateKey:   privateKey,
		publicKey:    publicKey,
		publicKeyPEM: pubPEM,
		kid:          keyIDFor(pubBlock.Bytes),
	}, nil
}

// keyIDFor returns a short thumbprint of material.
func keyIDFor(material []byte) string {
	sum := sha256.Sum256(material)
	return hex.EncodeToString(sum[:8])
}

// ================================================================================
// Factory
// ================================================================================

// NewSigningKeyProvider builds the provider selected by the configured
// signing mode. It runs once at start-up; any error is fatal.
func NewSigningKeyProvider(ctx context.Context, cfg *config.SecurityConfig, store keystore.KeyStore, log logger.Logger) (SigningKeyProvider, error) {
	switch cfg.Mode() {
	case constants.SigningModeSymmetric:
		p, err := NewSymmetricProvider(cfg.Secret)
		if err != nil {
			return nil, err
		}
		log.Info(ctx, "Using symmetric signing key", logger.String("algorithm", p.Algorithm().Alg()), logger.String("kid", p.KeyID()))
		return p, nil
	case constants.SigningModeAsymmetric:
		if store == nil {
			return nil, errors.NewKeyLoadError(cfg.PrivateKeyPath, errors.New("no key store configured"))
		}
		return LoadOrGenerateRSAProvider(ctx, store, AsymmetricOptions{
			PublicKeyPath:  cfg.PublicKeyPath,
			PrivateKeyPath: cfg.PrivateKeyPath,
		}, log)
	default:
		return nil, errors.NewKeyLoadError("security.signing_mode",
			fmt.Errorf("unsupported signing mode %d", cfg.SigningMode))
	}
}
