package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/liamcoop/rulepack/rules"
)

func newProcessCmd(a *app) *cobra.Command {
	var loadType, mode string

	cmd := &cobra.Command{
		Use:   "process <identifier>",
		Short: "Resolve, parse and process one rule pack",
		Long: `Resolve the identifier with the given load type, parse it and process it.

On success the result is printed as "Result: <text>" and the exit code is 0.
On failure "Error: <message>" is printed to stderr and the exit code is 1.`,
		Example: `  rulepack process rules.txt
  rulepack process ./rules --type dir --mode normalize
  rulepack process games.COC7 --type class --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if mode == "" {
				mode = a.cfg.Pipeline.Mode
			}

			p, err := a.pipeline(ctx)
			if err != nil {
				return a.fail(err)
			}

			if !a.jsonOutput() {
				text, err := p.ResolveAndProcess(ctx, args[0], loadType, mode)
				if err != nil {
					return a.fail(err)
				}
				a.result(text)
				return nil
			}

			req, err := parseRequest(args[0], loadType, mode)
			if err != nil {
				return a.fail(err)
			}
			start := time.Now()
			result, err := p.Run(ctx, req)
			if err != nil {
				return a.fail(err)
			}
			resp := newProcessResponse(req, result, nil)
			resp.Duration = time.Since(start).String()
			return a.writeJSON(resp)
		},
	}

	cmd.Flags().StringVarP(&loadType, "type", "t", "file", "load type (file|dir|name|class)")
	cmd.Flags().StringVarP(&mode, "mode", "m", "", "process mode (summarize|normalize|validate); default from config")

	return cmd
}

// parseRequest converts CLI tags into a pipeline request
func parseRequest(identifier, loadTypeTag, modeTag string) (rules.Request, error) {
	loadType, err := rules.ParseLoadType(loadTypeTag)
	if err != nil {
		return rules.Request{}, err
	}
	mode, err := rules.ParseProcessMode(modeTag)
	if err != nil {
		return rules.Request{}, err
	}
	if err := rules.ValidateIdentifier(identifier); err != nil {
		return rules.Request{}, err
	}
	return rules.Request{Identifier: identifier, LoadType: loadType, Mode: mode}, nil
}
