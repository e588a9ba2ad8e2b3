package cli

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/turtacn/txauth/internal/config"
	"github.com/turtacn/txauth/internal/infrastructure/crypto"
	"github.com/turtacn/txauth/pkg/constants"
	"github.com/turtacn/txauth/pkg/errors"
)

// masterSecretEnv supplies the passphrase when --secret is omitted.
const masterSecretEnv = "TXAUTH_CRYPTO_MASTER_SECRET"

func newSecretCmd() *cobra.Command {
	var (
		secret string
		digest string
		spec   string
		wrap   bool
	)
	secretCmd := &cobra.Command{
		Use:   "secret",
		Short: "Encrypt and decrypt configuration secrets",
	}
	passphrase := func() (string, error) {
		if secret != "" {
			return secret, nil
		}
		if s := os.Getenv(masterSecretEnv); s != "" {
			return s, nil
		}
		return "", errors.NewInvalidArgumentError("--secret or %s is required", masterSecretEnv)
	}

	encryptCmd := &cobra.Command{
		Use:   "encrypt PLAINTEXT",
		Short: "Encrypt a value for use in config.yaml",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := passphrase()
			if err != nil {
				return err
			}
			out, err := crypto.NewSecretCipher().Encrypt(args[0], key, digest, spec)
			if err != nil {
				return err
			}
			if wrap {
				out = constants.EncryptedValuePrefix + out + constants.EncryptedValueSuffix
			}
			printf(cmd.OutOrStdout(), "%s\n", out)
			return nil
		},
	}
	encryptCmd.Flags().BoolVar(&wrap, "wrap", true, "wrap the output in ENC(...)")

	decryptCmd := &cobra.Command{
		Use:   "decrypt CIPHERTEXT",
		Short: "Decrypt a value produced by encrypt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := passphrase()
			if err != nil {
				return err
			}
			in := args[0]
			if config.IsEncrypted(in) {
				in = strings.TrimSuffix(strings.TrimPrefix(in, constants.EncryptedValuePrefix), constants.EncryptedValueSuffix)
			}
			out, err := crypto.NewSecretCipher().Decrypt(in, key, digest, spec)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "%s\n", out)
			return nil
		},
	}

	secretCmd.PersistentFlags().StringVar(&secret, "secret", "", "passphrase the cipher key is derived from")
	secretCmd.PersistentFlags().StringVar(&digest, "digest", crypto.DefaultDigest, "key-derivation digest")
	secretCmd.PersistentFlags().StringVar(&spec, "cipher", crypto.DefaultCipherSpec, "cipher spec, e.g. AES/GCM/NoPadding")
	secretCmd.AddCommand(encryptCmd, decryptCmd)
	return secretCmd
}
