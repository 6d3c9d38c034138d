package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yairfalse/auroratag/internal/app"
	"github.com/yairfalse/auroratag/internal/config"
)

var (
	version = "0.1.0"

	configPath string
	region     string
	profile    string
	dryRun     bool
	debug      bool

	rootCmd = &cobra.Command{
		Use:   "auroratag",
		Short: "Tag Aurora clusters and instances",
		Long: `auroratag keeps Aurora clusters and their instances tagged with the
cluster they belong to, and copies cluster tags onto new instances.

The same operations run as Lambda functions (aurora-sweep,
aurora-propagate); this command runs them by hand or on a schedule.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetVersionTemplate(`auroratag {{.Version}}
`)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "Config file (default $"+config.EnvConfigPath+")")
	flags.StringVar(&region, "region", "", "AWS region")
	flags.StringVar(&profile, "profile", "", "AWS shared config profile")
	flags.BoolVar(&dryRun, "dry-run", false, "Report what would change without writing tags")
	flags.BoolVar(&debug, "debug", false, "Enable debug logging to the console")
}

// loadConfig reads the config file and environment, then applies the
// global flags on top.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv(config.EnvConfigPath)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	applyFlags(cfg)
	return cfg, nil
}

func applyFlags(cfg *config.Config) {
	if region != "" {
		cfg.AWS.Region = region
	}
	if profile != "" {
		cfg.AWS.Profile = profile
	}
	if dryRun {
		cfg.Tagging.DryRun = true
	}
	if debug {
		cfg.Log.Level = "debug"
		cfg.Log.Format = "console"
	}
}

// newApp wires the components for a command. Logs go to stderr so command
// output on stdout stays clean.
func newApp(ctx context.Context, cfg *config.Config, opts app.Options) (*app.App, error) {
	logger, err := app.NewLogger(os.Stderr, cfg)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, logger, opts)
}
