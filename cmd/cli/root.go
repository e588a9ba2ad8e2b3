package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/turtacn/txauth/internal/config"
	"github.com/turtacn/txauth/internal/infrastructure/crypto"
	"github.com/turtacn/txauth/internal/infrastructure/monitoring"
	"github.com/turtacn/txauth/pkg/logger"
)

// NewRootCmd builds the `txauth-admin` command tree.
// NewRootCmd 构建 `txauth-admin` 命令树。
func NewRootCmd() *cobra.Command {
	var configFile string
	rootCmd := &cobra.Command{
		Use:   "txauth-admin",
		Short: "A CLI tool for administering the txauth token service.",
		Long: `txauth-admin performs offline administrative tasks for the txauth service,
such as generating signing keys, minting and inspecting tokens and
encrypting configuration secrets.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to config.yaml")

	loader := func(cmd *cobra.Command) (*config.Config, logger.Logger, error) {
		log := monitoring.NewLogger(&config.LogConfig{Level: "warn"}, cmd.ErrOrStderr())
		cfg, err := config.LoadConfig(config.LoadOptions{
			ConfigFile: configFile,
			Decrypter:  crypto.NewConfigDecrypter,
		}, log)
		return cfg, log, err
	}

	rootCmd.AddCommand(newKeysCmd(loader), newTokenCmd(loader), newSecretCmd())
	return rootCmd
}

type configLoader func(cmd *cobra.Command) (*config.Config, logger.Logger, error)

// Execute runs the CLI and exits non-zero on error.
// Execute 运行 CLI，出错时以非零状态退出。
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printf(w io.Writer, format string, args ...interface{}) {
	_, _ = fmt.Fprintf(w, format, args...)
}
