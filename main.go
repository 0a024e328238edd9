package main

import (
	"context"
	"os"

	"github.com/gogotex/gogotex/backend/device-auth/internal/config"
	"github.com/gogotex/gogotex/backend/device-auth/pkg/logger"
	"github.com/spf13/cobra"
)

type cfgKey struct{}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		logger.Errorf("%v", err)
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func newRootCommand() *cobra.Command {
	var logLevel string
	root := &cobra.Command{
		Use:           "device-auth",
		Short:         "OAuth device authorization login service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// LOG_LEVEL env: debug|info|warn|error|fatal; the flag wins
			if logLevel == "" {
				logLevel = os.Getenv("LOG_LEVEL")
			}
			logger.Init(logLevel)
			logger.Debugf("startup: LOG_LEVEL=%s", logger.LevelString())

			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), cfgKey{}, cfg))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.AddCommand(newServeCommand(), newSweepCommand())
	return root
}

func configFrom(cmd *cobra.Command) *config.Config {
	cfg, _ := cmd.Context().Value(cfgKey{}).(*config.Config)
	return cfg
}
