package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/c360/netpublish/config"
)

// rootOptions holds the persistent flags.
type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   appName,
		Short: "Publish vision pipeline results over the network",
		Long: `netpublish runs publish steps that send points, sizes, numbers, booleans and
contour, line and blob reports to a network table, an HTTP data endpoint and a
robotics message bus.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       fmt.Sprintf("%s (build %s)", Version, BuildTime),
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("NETPUBLISH_CONFIG"),
		"Path to a .yaml, .json or .toml configuration file (env: NETPUBLISH_CONFIG)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "",
		"Override the log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "",
		"Override the log format: json, text")

	root.AddCommand(
		newServeCmd(opts),
		newValidateCmd(opts),
		newOperationsCmd(),
		newEchoCmd(opts),
	)
	return root
}

// loadConfig loads the configuration and applies the log flag overrides.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	l := config.NewLoader()
	if o.configPath != "" {
		l.AddLayer(o.configPath)
	}
	cfg, err := l.Load()
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadProject loads the project named by path, falling back to the one the
// configuration names. It returns nil when neither is set.
func loadProject(path string, cfg *config.Config) (*config.Project, error) {
	if path == "" {
		path = cfg.Pipeline.Project
	}
	if path == "" {
		return nil, nil
	}
	return config.LoadProject(path)
}
