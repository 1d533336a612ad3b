// File: cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sift/internal/config"
	"github.com/xkilldash9x/sift/internal/observability"
	"github.com/xkilldash9x/sift/internal/service"
)

const envPrefix = "SIFT"

// rootOptions is the state shared between the root command and its children.
type rootOptions struct {
	cfgFile string
	v       *viper.Viper
	cfg     *config.Config
	launch  launcher
}

// NewRootCommand builds a fresh command tree. Each call has its own viper instance so
// repeated executions do not share flag or config state.
func NewRootCommand() *cobra.Command {
	return newRootCommand(factoryLauncher(service.NewComponentFactory()))
}

func newRootCommand(launch launcher) *cobra.Command {
	opts := &rootOptions{v: viper.New(), launch: launch}

	rootCmd := &cobra.Command{
		Use:           "sift",
		Short:         "Sift streams people-search results out of a signed-in browser session.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.load(); err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "sift"})
				return err
			}
			observability.InitializeLogger(opts.cfg.Logger())
			observability.GetLogger().Debug("Starting sift", zap.String("version", Version))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.cfgFile, "config", "c", "", "config file (default is ./sift.yaml or ~/.config/sift/sift.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newCrawlCmd(opts))
	rootCmd.AddCommand(newServeCmd(opts))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// Execute runs the command tree with a signal-aware context.
func Execute(ctx context.Context) error {
	err := NewRootCommand().ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		// Use the logger if available, otherwise fallback to stderr
		if logger := observability.GetLogger(); logger != nil {
			logger.Error("Command execution failed", zap.Error(err))
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	observability.Sync()
	return err
}

// load reads the config file and environment into a validated config.
func (o *rootOptions) load() error {
	config.SetDefaults(o.v)
	if err := initializeConfig(o.cfgFile, o.v); err != nil {
		return err
	}
	cfg, err := config.NewConfigFromViper(o.v)
	if err != nil {
		return err
	}
	o.cfg = cfg
	return nil
}

// initializeConfig reads in config file and ENV variables if set.
func initializeConfig(cfgFile string, v *viper.Viper) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		if dir, err := homedir.Expand("~/.config/sift"); err == nil {
			v.AddConfigPath(dir)
		}
		v.SetConfigName("sift")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults/env vars
	}
	return nil
}
