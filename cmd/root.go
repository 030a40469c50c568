package cmd

import (
	"github.com/spf13/cobra"

	"github.com/rsamf/mink/cmd/export"
	"github.com/rsamf/mink/cmd/serve"
	"github.com/rsamf/mink/cmd/status"
	"github.com/rsamf/mink/cmd/submit"
	"github.com/rsamf/mink/internal/buildinfo"
	"github.com/rsamf/mink/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	rootCmd := &cobra.Command{
		Use:           "mink",
		Short:         "Meeting knowledge extraction service",
		Version:       buildinfo.Current().Version(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config.yaml (default: search ., ~/.config/mink, /etc/mink)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug output")

	// Settings are loaded lazily so client commands never need a config file.
	// Subcommands pass their flag overrides; the result is never modified.
	load := func(overrides ...conf.Override) (*conf.Settings, error) {
		if debug {
			overrides = append(overrides, conf.WithDebug())
		}
		return conf.Load(configPath, overrides...)
	}

	rootCmd.AddCommand(
		serve.Command(load),
		export.Command(load),
		submit.Command(),
		status.Command(),
	)

	return rootCmd
}
