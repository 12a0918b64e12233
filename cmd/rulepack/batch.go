package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/liamcoop/rulepack/internal/logger"
	"github.com/liamcoop/rulepack/rules"
)

// slowPackThreshold marks a request as slow in the pipeline counters
const slowPackThreshold = 2 * time.Second

func newBatchCmd(a *app) *cobra.Command {
	var loadType, mode string
	var concurrency int

	cmd := &cobra.Command{
		Use:   "batch <identifier>...",
		Short: "Process several independent rule packs in parallel",
		Long: `Process every identifier with the same load type and mode, in parallel.
A failure in one pack never affects the others. Results are printed in
argument order; the exit code is 1 if any pack failed.`,
		Example: `  rulepack batch core.rules extra.rules
  rulepack batch core billing --type name --concurrency 2`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if mode == "" {
				mode = a.cfg.Pipeline.Mode
			}
			if !cmd.Flags().Changed("concurrency") {
				concurrency = a.cfg.Pipeline.Concurrency
			}

			reqs := make([]rules.Request, len(args))
			for i, id := range args {
				req, err := parseRequest(id, loadType, mode)
				if err != nil {
					return a.fail(err)
				}
				reqs[i] = req
			}

			p, err := a.pipeline(ctx)
			if err != nil {
				return a.fail(err)
			}

			results := p.RunBatch(ctx, reqs, concurrency)

			failed := 0
			resp := BatchResponse{Results: make([]ProcessResponse, 0, len(results))}
			for _, r := range results {
				if r.Duration > slowPackThreshold {
					logger.RecordSlowPack()
				}
				if r.Err != nil {
					failed++
					logger.RecordFailedPack()
				}

				pr := newProcessResponse(r.Request, r.Result, r.Err)
				pr.RequestID = r.RequestID
				pr.Duration = r.Duration.String()
				resp.Results = append(resp.Results, pr)

				if a.jsonOutput() {
					continue
				}
				if r.Err != nil {
					fmt.Fprintf(a.stderr, "Error: %v\n", r.Err)
				} else {
					a.result(r.Result.String())
				}
			}
			resp.Failed = failed

			if a.jsonOutput() {
				if err := a.writeJSON(resp); err != nil {
					return err
				}
			}

			logger.Info("batch complete", "packs", len(results), "failed", failed, "concurrency", concurrency)
			if failed > 0 {
				return errReported
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&loadType, "type", "t", "file", "load type (file|dir|name|class)")
	cmd.Flags().StringVarP(&mode, "mode", "m", "", "process mode (summarize|normalize|validate); default from config")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 0, "maximum packs processed at once (0 = unlimited); default from config")

	return cmd
}
