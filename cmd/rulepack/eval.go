package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/liamcoop/rulepack/rules"
)

func newEvalCmd(a *app) *cobra.Command {
	var loadType, factsPath string

	cmd := &cobra.Command{
		Use:   "eval <identifier>",
		Short: "Evaluate a rule pack's patterns as CEL predicates against facts",
		Long: `Load a rule pack and evaluate every rule pattern as a CEL expression.

Facts are a JSON object; each top-level key becomes a CEL variable, in
addition to "event" and "state". Rules run by ascending "priority"
metadata (default 0); a matching rule with block=true stops every rule with
a greater priority.`,
		Example: `  rulepack eval rules.txt --facts facts.json
  echo '{"event":{"age":21}}' | rulepack eval core --type name --facts -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			lt, err := rules.ParseLoadType(loadType)
			if err != nil {
				return a.fail(err)
			}

			facts, err := readFacts(cmd.InOrStdin(), factsPath)
			if err != nil {
				return a.fail(err)
			}

			p, err := a.pipeline(ctx)
			if err != nil {
				return a.fail(err)
			}
			pack, err := p.Load(ctx, args[0], lt)
			if err != nil {
				return a.fail(err)
			}

			engine, err := rules.NewEngine(rules.WithVariables(factVariables(facts)...))
			if err != nil {
				return a.fail(err)
			}

			start := time.Now()
			results, err := engine.Evaluate(ctx, pack, facts)
			if err != nil {
				return a.fail(err)
			}
			elapsed := time.Since(start)

			resp := EvaluateResponse{
				Identifier:     pack.ID(),
				Results:        make([]EvaluationResultResponse, 0, len(results)),
				EvaluationTime: elapsed.String(),
			}
			for _, r := range results {
				if r.Matched {
					resp.Matched++
				}
				resp.Results = append(resp.Results, newEvaluationResultResponse(r))
			}

			if a.jsonOutput() {
				return a.writeJSON(resp)
			}

			a.result(fmt.Sprintf("Evaluated rule pack: %s [%s] %d of %d rules matched", pack.ID(), pack.LoadType(), resp.Matched, len(results)))
			for _, r := range resp.Results {
				switch {
				case r.Error != nil:
					fmt.Fprintf(a.stdout, "  %s (priority %d): error: %s\n", r.RuleID, r.Priority, *r.Error)
				case r.Matched:
					fmt.Fprintf(a.stdout, "  %s (priority %d): matched\n", r.RuleID, r.Priority)
				default:
					fmt.Fprintf(a.stdout, "  %s (priority %d): no match\n", r.RuleID, r.Priority)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&loadType, "type", "t", "file", "load type (file|dir|name|class)")
	cmd.Flags().StringVar(&factsPath, "facts", "", `JSON facts file, or "-" for stdin`)
	_ = cmd.MarkFlagRequired("facts")

	return cmd
}

func readFacts(stdin io.Reader, path string) (map[string]any, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read facts: %w", err)
	}

	var facts map[string]any
	if err := json.Unmarshal(data, &facts); err != nil {
		return nil, fmt.Errorf("invalid facts: %w", err)
	}
	if facts == nil {
		facts = map[string]any{}
	}
	return facts, nil
}

// factVariables declares the default variables plus every top-level fact
func factVariables(facts map[string]any) []string {
	seen := make(map[string]bool, len(rules.DefaultVariables)+len(facts))
	vars := make([]string, 0, len(rules.DefaultVariables)+len(facts))
	for _, name := range rules.DefaultVariables {
		seen[name] = true
		vars = append(vars, name)
	}

	extra := make([]string, 0, len(facts))
	for name := range facts {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	return append(vars, extra...)
}
