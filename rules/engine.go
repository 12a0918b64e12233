package rules

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
)

// DefaultVariables are the CEL variables declared when no others are configured:
// the event being matched and the rule state.
var DefaultVariables = []string{"event", "state"}

// defaultCostLimit prevents runaway expressions
const defaultCostLimit = 1000000

// Engine compiles rule patterns as CEL predicates and evaluates packs against facts.
// Compiled programs are cached per engine, keyed by pattern text.
// Safe for concurrent use.
type Engine struct {
	env       *cel.Env
	costLimit uint64
	programs  map[string]cel.Program // pattern -> compiled program
	mu        sync.RWMutex
}

type engineOptions struct {
	variables []string
	costLimit uint64
}

// EngineOption configures an Engine
type EngineOption func(*engineOptions)

// WithVariables declares the top-level fact names available to patterns
func WithVariables(names ...string) EngineOption {
	return func(o *engineOptions) {
		o.variables = names
	}
}

// WithCostLimit overrides the per-evaluation CEL cost limit
func WithCostLimit(limit uint64) EngineOption {
	return func(o *engineOptions) {
		o.costLimit = limit
	}
}

// NewEngine creates an engine whose CEL environment declares each variable as a dynamic type
func NewEngine(opts ...EngineOption) (*Engine, error) {
	o := engineOptions{
		variables: DefaultVariables,
		costLimit: defaultCostLimit,
	}
	for _, opt := range opts {
		opt(&o)
	}

	envOpts := make([]cel.EnvOption, 0, len(o.variables))
	for _, name := range o.variables {
		envOpts = append(envOpts, cel.Variable(name, cel.DynType))
	}

	env, err := cel.NewEnv(envOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:       env,
		costLimit: o.costLimit,
		programs:  make(map[string]cel.Program),
	}, nil
}

// CompileRule compiles a rule pattern to a CEL program, reusing a cached program when possible
func (en *Engine) CompileRule(ruleID, expression string) (cel.Program, error) {
	en.mu.RLock()
	prog, ok := en.programs[expression]
	en.mu.RUnlock()
	if ok {
		return prog, nil
	}

	ast, issues := en.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("rule %s: compile error: %w", ruleID, issues.Err())
	}

	prog, err := en.env.Program(ast,
		cel.EvalOptions(cel.OptTrackState),
		cel.CostLimit(en.costLimit),
	)
	if err != nil {
		return nil, fmt.Errorf("rule %s: program creation error: %w", ruleID, err)
	}

	en.mu.Lock()
	en.programs[expression] = prog
	en.mu.Unlock()

	return prog, nil
}

// Check compiles every non-empty pattern in pack and returns the failures keyed by rule id
func (en *Engine) Check(pack *RulePack) map[string]error {
	issues := make(map[string]error)
	for _, e := range pack.entries {
		if e.Pattern == "" {
			continue
		}
		if _, err := en.CompileRule(e.ID, e.Pattern); err != nil {
			issues[e.ID] = err
		}
	}
	return issues
}

// Evaluate evaluates the rules of pack against facts.
//
// Rules run in priority order (lower first, declaration order among equals).
// Rules without a pattern are skipped. Non-boolean results count as no match.
// Compile and evaluation failures are recorded on the rule's result and do not
// stop the others. Once a blocking rule matches, the rest of its priority group
// still runs but rules with a greater priority are not evaluated.
func (en *Engine) Evaluate(ctx context.Context, pack *RulePack, facts map[string]any) ([]*EvaluationResult, error) {
	ordered := make([]RuleEntry, len(pack.entries))
	copy(ordered, pack.entries)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority() < ordered[j].Priority()
	})

	results := make([]*EvaluationResult, 0, len(ordered))
	blocked := false
	blockPriority := 0

	for _, rule := range ordered {
		priority := rule.Priority()
		if blocked && priority > blockPriority {
			break
		}
		if err := ctx.Err(); err != nil {
			return results, withContext(contextError(err), pack.ID(), pack.LoadType(), StageProcess)
		}
		if rule.Pattern == "" {
			continue
		}

		result := &EvaluationResult{RuleID: rule.ID, Priority: priority}
		results = append(results, result)

		prog, err := en.CompileRule(rule.ID, rule.Pattern)
		if err != nil {
			result.Error = err
			continue
		}

		out, details, err := prog.ContextEval(ctx, facts)
		if err != nil {
			result.Error = err
			continue
		}

		if boolVal, ok := out.Value().(bool); ok {
			result.Matched = boolVal
		}
		if details != nil {
			result.Trace = details.State()
		}

		if result.Matched && rule.Blocking() && !blocked {
			blocked = true
			blockPriority = priority
		}
	}

	return results, nil
}
