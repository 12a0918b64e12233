package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/liamcoop/rulepack/internal/logger"
	"github.com/liamcoop/rulepack/rules"
	"github.com/liamcoop/rulepack/watch"
)

func newWatchCmd(a *app) *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Reprocess a rule directory whenever its files change",
		Long: `Load a directory rule pack, then reload and reprocess it after every
burst of file changes until interrupted. Each reload prints a Result or
Error line.`,
		Example: `  rulepack watch ./rules --mode validate`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if mode == "" {
				mode = a.cfg.Pipeline.Mode
			}
			m, err := rules.ParseProcessMode(mode)
			if err != nil {
				return a.fail(err)
			}

			p, err := a.pipeline(ctx)
			if err != nil {
				return a.fail(err)
			}

			w, err := watch.New(watch.Config{
				Dir:      args[0],
				Pipeline: p,
				Mode:     m,
				Debounce: a.cfg.Watch.Debounce,
				Logger:   logger.Logger,
				OnReload: func(_ context.Context, result *rules.ProcessedResult, err error) {
					if err != nil {
						logger.RecordFailedPack()
						fmt.Fprintf(a.stderr, "Error: %v\n", err)
						return
					}
					a.result(result.String())
				},
			})
			if err != nil {
				return a.fail(err)
			}

			logger.Info("watching rule directory", "dir", args[0], "mode", m.String(), "debounce", a.cfg.Watch.Debounce)
			return w.Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", "", "process mode (summarize|normalize|validate); default from config")

	return cmd
}
