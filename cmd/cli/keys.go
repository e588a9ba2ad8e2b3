package cli

import (
	"github.com/spf13/cobra"
	"github.com/turtacn/txauth/internal/infrastructure/crypto"
	"github.com/turtacn/txauth/internal/infrastructure/keystore"
	"github.com/turtacn/txauth/pkg/constants"
	"github.com/turtacn/txauth/pkg/errors"
)

func newKeysCmd(load configLoader) *cobra.Command {
	keysCmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage signing keys",
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Load the RSA key pair, generating it in the configured key store when absent",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load(cmd)
			if err != nil {
				return err
			}
			if cfg.Security.Mode() != constants.SigningModeAsymmetric {
				return errors.NewInvalidArgumentError("keys init requires security.signing_mode %d", constants.SigningModeAsymmetric)
			}
			store, err := keystore.New(cfg, log)
			if err != nil {
				return err
			}
			provider, err := crypto.NewSigningKeyProvider(cmd.Context(), &cfg.Security, store, log)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "kid=%s alg=%s store=%s\n", provider.KeyID(), provider.Algorithm().Alg(), cfg.Security.KeyStore)
			return nil
		},
	}

	keysCmd.AddCommand(initCmd)
	return keysCmd
}
