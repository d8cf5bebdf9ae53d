package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/EGF2/file/pkg/lifecycle/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "filed",
		Short: "File service - hosted asset lifecycle",
		Long: `File service

Creates hosted assets, produces resized image derivatives, tracks which
assets are referenced, removes storage objects of deleted assets and
garbage-collects assets that were never referenced.

Configuration is read from an optional file and the environment:

` + config.Usage(),
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (optional)")

	rootCmd.AddCommand(NewServeCommand())
	rootCmd.AddCommand(NewSweepCommand())
	rootCmd.AddCommand(NewMigrateCommand())

	return rootCmd
}

// loadConfig applies the config file named by --config, then the environment
func loadConfig(cmd *cobra.Command, extra ...config.Option) (*config.ServerConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	opts := append([]config.Option{config.WithFile(path), config.WithEnv()}, extra...)
	cfg, err := config.Load(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}
