package cli

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"
	"github.com/turtacn/txauth/internal/config"
	"github.com/turtacn/txauth/internal/domain/models"
	"github.com/turtacn/txauth/internal/domain/service"
	"github.com/turtacn/txauth/internal/infrastructure/crypto"
	"github.com/turtacn/txauth/internal/infrastructure/keystore"
	"github.com/turtacn/txauth/pkg/constants"
	"github.com/turtacn/txauth/pkg/logger"
)

func newCodec(cmd *cobra.Command, cfg *config.Config, log logger.Logger) (*crypto.TokenCodec, error) {
	var store keystore.KeyStore
	if cfg.Security.Mode() == constants.SigningModeAsymmetric {
		var err error
		if store, err = keystore.New(cfg, log); err != nil {
			return nil, err
		}
	}
	provider, err := crypto.NewSigningKeyProvider(cmd.Context(), &cfg.Security, store, log)
	if err != nil {
		return nil, err
	}
	return crypto.NewTokenCodec(provider, cfg.Security.Audience), nil
}

func newTokenCmd(load configLoader) *cobra.Command {
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Mint and inspect tokens with the configured signing key",
	}

	var (
		subject   string
		tokenType string
		role      string
	)
	issueCmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue an auth/refresh pair or a transaction token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load(cmd)
			if err != nil {
				return err
			}
			codec, err := newCodec(cmd, cfg, log)
			if err != nil {
				return err
			}
			issuer := service.NewTokenIssuer(codec, &cfg.Security, nil, nil, log)

			var extra models.Claims
			if role != "" {
				extra = models.Claims{constants.ClaimRole: role}
			}
			out := map[string]interface{}{}
			switch constants.TokenType(tokenType) {
			case constants.TokenTypeAuth:
				pair, err := issuer.IssueAuthPair(cmd.Context(), subject, extra)
				if err != nil {
					return err
				}
				out["access_token"] = pair.Primary.Value
				out["refresh_token"] = pair.Secondary.Value
				out["expires_in"] = pair.Primary.ExpiresIn()
			default:
				tok, err := issuer.IssueTxToken(cmd.Context(), subject, constants.TokenType(tokenType), extra)
				if err != nil {
					return err
				}
				out["access_token"] = tok.Value
				out["expires_in"] = tok.ExpiresIn()
			}
			out["token_type"] = tokenType
			return writeJSON(cmd, out)
		},
	}
	issueCmd.Flags().StringVar(&subject, "subject", "", "token subject")
	issueCmd.Flags().StringVar(&tokenType, "type", string(constants.TokenTypeAuth), "auth, tx-users, tx-internal or tx-external")
	issueCmd.Flags().StringVar(&role, "role", "", "role claim: User, Service or Admin")
	_ = issueCmd.MarkFlagRequired("subject")

	var skipExpiry bool
	inspectCmd := &cobra.Command{
		Use:   "inspect TOKEN",
		Short: "Verify a token and print its claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load(cmd)
			if err != nil {
				return err
			}
			codec, err := newCodec(cmd, cfg, log)
			if err != nil {
				return err
			}
			var opts []crypto.DecodeOption
			if !skipExpiry {
				opts = append(opts, crypto.WithExpiryCheck())
			}
			claims, err := codec.Decode(strings.TrimPrefix(args[0], constants.BearerPrefix), cfg.Security.Issuer, opts...)
			if err != nil {
				return err
			}
			return writeJSON(cmd, claims)
		},
	}
	inspectCmd.Flags().BoolVar(&skipExpiry, "allow-expired", false, "print claims of an expired token")

	tokenCmd.AddCommand(issueCmd, inspectCmd)
	return tokenCmd
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
