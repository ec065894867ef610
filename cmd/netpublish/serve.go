package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/c360/netpublish/errors"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var projectPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the publish pipeline and the back-end servers",
		Long: `Loads the configuration and project, connects the enabled back ends, builds the
publish steps and runs them until interrupted. In headless mode the pipeline is
started and stopped through the table GRIP/run entry.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, root, projectPath)
		},
	}
	cmd.Flags().StringVarP(&projectPath, "project", "p", "",
		"Project file listing the publish steps (default: pipeline.project from the config)")
	return cmd
}

func serve(ctx context.Context, root *rootOptions, projectPath string) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Log, os.Stdout)
	logger.Info("starting netpublish", "version", Version, "build_time", BuildTime, "config_path", root.configPath)

	project, err := loadProject(projectPath, cfg)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return errors.Wrap(err, "serve", "serve", "start back ends")
	}

	if project == nil {
		logger.Warn("no project configured, the pipeline is empty")
	} else {
		handles, err := project.Apply(a.catalog, a.pipeline)
		if err != nil {
			a.close()
			return err
		}
		for _, h := range handles {
			logger.Info("step added", "step", h.Step.Name(), "id", h.ID)
		}
	}

	err = a.run(ctx)
	logger.Info("netpublish stopped")
	return err
}
