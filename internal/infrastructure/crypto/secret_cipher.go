package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"hash"
	"io"
	"strings"

	"github.com/turtacn/txauth/internal/config"
	"github.com/turtacn/txauth/pkg/errors"
	"golang.org/x/crypto/sha3"
)

const (
	// DefaultDigest is used when no digest algorithm is named.
	DefaultDigest = "SHA-512"
	// DefaultCipherSpec is used when no cipher spec is named.
	DefaultCipherSpec = "AES/CBC/PKCS5Padding"

	gcmNonceSize = 12
)

type blockMode string

const (
	modeCBC blockMode = "CBC"
	modeECB blockMode = "ECB"
	modeGCM blockMode = "GCM"
	modeCTR blockMode = "CTR"
)

// cipherSpec is a parsed "ALG[_BITS]/MODE/PADDING" name.
type cipherSpec struct {
	keySize int
	mode    blockMode
}

func (s cipherSpec) ivSize() int {
	switch s.mode {
	case modeCBC, modeCTR:
		return aes.BlockSize
	case modeGCM:
		return gcmNonceSize
	default:
		return 0
	}
}

var digests = map[string]func() hash.Hash{
	"SHA256":  sha256.New,
	"SHA384":  sha512.New384,
	"SHA512":  sha512.New,
	"SHA3256": sha3.New256,
	"SHA3512": sha3.New512,
}

// SecretCipher encrypts and decrypts at-rest secrets with a key derived from
// a passphrase. Output is base64(IV || ciphertext). It is stateless.
type SecretCipher struct {
	random io.Reader
}

// NewSecretCipher creates a cipher using crypto/rand for IVs.
func NewSecretCipher() *SecretCipher {
	return &SecretCipher{random: rand.Reader}
}

// Encrypt encrypts plaintext. digestAlgo selects the key-derivation digest
// and cipherSpec the AES key size, block mode and padding. Empty values
// select the defaults.
func (c *SecretCipher) Encrypt(plaintext, secret, digestAlgo, cipherSpec string) (string, error) {
	spec, key, err := prepare(secret, digestAlgo, cipherSpec)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", errors.NewCryptoSecurityError("failed to create AES cipher", err)
	}

	iv := make([]byte, spec.ivSize())
	if len(iv) > 0 {
		if _, err := io.ReadFull(c.random, iv); err != nil {
			return "", errors.NewCryptoSecurityError("failed to generate IV", err)
		}
	}

	var ct []byte
	switch spec.mode {
	case modeCBC:
		padded := pkcs5Pad([]byte(plaintext), aes.BlockSize)
		ct = make([]byte, len(padded))
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(ct, padded)
	case modeECB:
		padded := pkcs5Pad([]byte(plaintext), aes.BlockSize)
		ct = make([]byte, len(padded))
		for i := 0; i < len(padded); i += aes.BlockSize {
			block.Encrypt(ct[i:i+aes.BlockSize], padded[i:i+aes.BlockSize])
		}
	case modeCTR:
		ct = make([]byte, len(plaintext))
		cipher.NewCTR(block, iv).XORKeyStream(ct, []byte(plaintext))
	case modeGCM:
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return "", errors.NewCryptoSecurityError("failed to create GCM", err)
		}
		ct = aead.Seal(nil, iv, []byte(plaintext), nil)
	}

	return base64.StdEncoding.EncodeToString(append(iv, ct...)), nil
}

// Decrypt reverses Encrypt. It never returns partial plaintext.
func (c *SecretCipher) Decrypt(ciphertext, secret, digestAlgo, cipherSpec string) (string, error) {
	spec, key, err := prepare(secret, digestAlgo, cipherSpec)
	if err != nil {
		return "", err
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(ciphertext))
	if err != nil {
		return "", errors.NewCryptoSecurityError("ciphertext is not valid base64", err)
	}
	ivSize := spec.ivSize()
	if len(raw) < ivSize {
		return "", errors.NewCryptoSecurityError("ciphertext is shorter than the IV", nil)
	}
	iv, ct := raw[:ivSize], raw[ivSize:]

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", errors.NewCryptoSecurityError("failed to create AES cipher", err)
	}

	var plain []byte
	switch spec.mode {
	case modeCBC, modeECB:
		if len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
			return "", errors.NewCryptoSecurityError("ciphertext is not a whole number of blocks", nil)
		}
		buf := make([]byte, len(ct))
		if spec.mode == modeCBC {
			cipher.NewCBCDecrypter(block, iv).CryptBlocks(buf, ct)
		} else {
			for i := 0; i < len(ct); i += aes.BlockSize {
				block.Decrypt(buf[i:i+aes.BlockSize], ct[i:i+aes.BlockSize])
			}
		}
		if plain, err = pkcs5Unpad(buf, aes.BlockSize); err != nil {
			return "", err
		}
	case modeCTR:
		plain = make([]byte, len(ct))
		cipher.NewCTR(block, iv).XORKeyStream(plain, ct)
	case modeGCM:
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return "", errors.NewCryptoSecurityError("failed to create GCM", err)
		}
		if plain, err = aead.Open(nil, iv, ct, nil); err != nil {
			return "", errors.NewCryptoSecurityError("ciphertext authentication failed", err)
		}
	}
	return string(plain), nil
}

// prepare parses the spec and derives the key.
func prepare(secret, digestAlgo, spec string) (cipherSpec, []byte, error) {
	if secret == "" {
		return cipherSpec{}, nil, errors.NewCryptoSecurityError("secret must not be empty", nil)
	}
	cs, err := parseCipherSpec(spec)
	if err != nil {
		return cipherSpec{}, nil, err
	}
	key, err := deriveKey(secret, digestAlgo, cs.keySize)
	if err != nil {
		return cipherSpec{}, nil, err
	}
	return cs, key, nil
}

// deriveKey hashes secret with the named digest and truncates to size.
func deriveKey(secret, digestAlgo string, size int) ([]byte, error) {
	if digestAlgo == "" {
		digestAlgo = DefaultDigest
	}
	name := strings.NewReplacer("-", "", "_", "").Replace(strings.ToUpper(digestAlgo))
	newHash, ok := digests[name]
	if !ok {
		return nil, errors.NewCryptoSecurityError(fmt.Sprintf("unsupported digest algorithm %q", digestAlgo), nil)
	}
	h := newHash()
	h.Write([]byte(secret))
	sum := h.Sum(nil)
	if len(sum) < size {
		return nil, errors.NewCryptoSecurityError(fmt.Sprintf("digest %s is too short for a %d-bit key", digestAlgo, size*8), nil)
	}
	return sum[:size], nil
}

// parseCipherSpec accepts "AES", "AES/MODE/PADDING" and the AES_128,
// AES_192 and AES_256 variants. A bare algorithm name means ECB.
func parseCipherSpec(spec string) (cipherSpec, error) {
	if spec == "" {
		spec = DefaultCipherSpec
	}
	unsupported := func() (cipherSpec, error) {
		return cipherSpec{}, errors.NewCryptoSecurityError(fmt.Sprintf("unsupported cipher spec %q", spec), nil)
	}

	parts := strings.Split(strings.ToUpper(strings.TrimSpace(spec)), "/")
	var cs cipherSpec
	switch parts[0] {
	case "AES", "AES_128":
		cs.keySize = 16
	case "AES_192":
		cs.keySize = 24
	case "AES_256":
		cs.keySize = 32
	default:
		return unsupported()
	}

	switch len(parts) {
	case 1:
		cs.mode = modeECB
		return cs, nil
	case 3:
	default:
		return unsupported()
	}

	cs.mode = blockMode(parts[1])
	padding := parts[2]
	switch cs.mode {
	case modeCBC, modeECB:
		if padding != "PKCS5PADDING" && padding != "PKCS7PADDING" {
			return unsupported()
		}
	case modeGCM, modeCTR:
		if padding != "NOPADDING" {
			return unsupported()
		}
	default:
		return unsupported()
	}
	return cs, nil
}

func pkcs5Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(append([]byte{}, data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs5Unpad(data []byte, blockSize int) ([]byte, error) {
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, errors.NewCryptoSecurityError("invalid padding", nil)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errors.NewCryptoSecurityError("invalid padding", nil)
		}
	}
	return data[:len(data)-n], nil
}

// configDecrypter adapts SecretCipher to config.ValueDecrypter.
type configDecrypter struct {
	cipher *SecretCipher
	cfg    config.CryptoConfig
}

// NewConfigDecrypter returns a decrypter for ENC(...) configuration values
// keyed by cfg.MasterSecret. It matches config.DecrypterFactory.
func NewConfigDecrypter(cfg config.CryptoConfig) (config.ValueDecrypter, error) {
	if cfg.MasterSecret == "" {
		return nil, errors.NewCryptoSecurityError("crypto.master_secret is not set", nil)
	}
	if _, err := parseCipherSpec(cfg.Cipher); err != nil {
		return nil, err
	}
	return &configDecrypter{cipher: NewSecretCipher(), cfg: cfg}, nil
}

func (d *configDecrypter) DecryptValue(ciphertext string) (string, error) {
	return d.cipher.Decrypt(ciphertext, d.cfg.MasterSecret, d.cfg.Digest, d.cfg.Cipher)
}
