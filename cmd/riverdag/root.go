// Copyright (C) 2024 The RiverDAG Authors
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/riverdag/riverdag/internal/config"
	"github.com/riverdag/riverdag/internal/logger"
	"github.com/riverdag/riverdag/internal/step"
	"github.com/riverdag/riverdag/internal/store"

	_ "github.com/riverdag/riverdag/internal/steps/all"
)

// globalFlags mirrors the teacher's cmd/main.go persistent-flag set
// (cfgFile/quiet), extended with --debug and --log-format.
type globalFlags struct {
	debug     bool
	quiet     bool
	logFormat string
}

// app bundles the resources every subcommand needs: resolved config, a
// logger, the shared step registry and the four external stores. Built
// once in the root command's PersistentPreRunE and handed to each
// subcommand's RunE via the enclosing closure.
type app struct {
	cfg      *config.Config
	log      logger.Logger
	registry *step.Registry

	metrics     *store.MetricsStore
	kanban      *store.KanbanStore
	checkpoints *store.CheckpointStore
	hashes      *store.HashStore
}

func (a *app) Close() {
	if a.metrics != nil {
		_ = a.metrics.Close()
	}
}

func newRootCommand() *cobra.Command {
	var flags globalFlags
	var a app

	root := &cobra.Command{
		Use:           "riverdag",
		Short:         "Declarative data-automation pipeline engine",
		Long:          "riverdag loads a YAML pipeline description, plans it into an execution DAG, and runs it.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			built, err := buildApp(flags)
			if err != nil {
				return err
			}
			a = *built
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.Close()
		},
	}

	root.PersistentFlags().BoolVar(&flags.debug, "debug", false, "enable debug-level logging")
	root.PersistentFlags().BoolVarP(&flags.quiet, "quiet", "q", false, "suppress default stdout logging")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "log output format: text or json")

	root.AddCommand(
		newRunCommand(&a),
		newValidateCommand(&a),
		newInitCommand(&a),
		newMetricsCommand(&a),
		newBoardCommand(&a),
		newLintCommand(&a),
		newQueueCommand(&a),
		newWorkCommand(&a),
	)
	return root
}

// buildApp resolves config the way the teacher's cmd/config.go binds
// viper to persistent flags, then opens every store eagerly: each
// command only uses the subset it needs, but opening all of them up
// front keeps the lifecycle (open once, close in PersistentPostRun)
// uniform across commands, the way the teacher's single appConfig/
// appLogger pair is built once in its root command setup.
func buildApp(flags globalFlags) (*app, error) {
	v := viper.New()
	if flags.debug {
		v.Set("debug", true)
	}
	if flags.quiet {
		v.Set("quiet", true)
	}
	if flags.logFormat != "" {
		v.Set("log-format", flags.logFormat)
	}

	cfg, err := config.Load(v)
	if err != nil {
		return nil, fmt.Errorf("riverdag: %w", err)
	}

	opts := []logger.Option{logger.WithFormat(cfg.LogFormat)}
	if cfg.Debug {
		opts = append(opts, logger.WithDebug())
	}
	if cfg.Quiet {
		opts = append(opts, logger.WithQuiet())
	}
	log := logger.NewLogger(opts...)

	metrics, err := store.OpenMetricsStore(cfg.Paths.MetricsDBFile)
	if err != nil {
		return nil, fmt.Errorf("riverdag: %w", err)
	}

	return &app{
		cfg:         cfg,
		log:         log,
		registry:    step.Default,
		metrics:     metrics,
		kanban:      store.OpenKanbanStore(cfg.Paths.KanbanFile),
		checkpoints: store.OpenCheckpointStore(cfg.Paths.CheckpointDir),
		hashes:      store.OpenHashStore(cfg.Paths.HashFile),
	}, nil
}
