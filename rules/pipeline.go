package rules

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Request names one rule pack to resolve, parse and process
type Request struct {
	Identifier string
	LoadType   LoadType
	Mode       ProcessMode
}

// BatchResult is the outcome of one request in a batch
type BatchResult struct {
	RequestID string
	Request   Request
	Result    *ProcessedResult
	Err       error
	Duration  time.Duration
}

// Pipeline chains Resolver, Parser and Processor.
// It holds no mutable state, so one Pipeline serves any number of concurrent requests.
type Pipeline struct {
	resolver  *Resolver
	parser    *Parser
	processor *Processor
	logger    *slog.Logger
}

// PipelineOption configures a Pipeline
type PipelineOption func(*Pipeline)

// WithLogger sets the pipeline's logger
func WithLogger(l *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// WithParser replaces the default parser
func WithParser(parser *Parser) PipelineOption {
	return func(p *Pipeline) {
		p.parser = parser
	}
}

// NewPipeline creates a pipeline. A nil processor gets a default one.
func NewPipeline(resolver *Resolver, processor *Processor, opts ...PipelineOption) *Pipeline {
	if processor == nil {
		processor = NewProcessor()
	}
	p := &Pipeline{
		resolver:  resolver,
		parser:    defaultParser,
		processor: processor,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ResolveAndProcess is the functional boundary for external callers:
// it parses the tags, runs the pipeline and renders the result as text.
func (p *Pipeline) ResolveAndProcess(ctx context.Context, identifier, loadTypeTag, modeTag string) (string, error) {
	loadType, err := ParseLoadType(loadTypeTag)
	if err != nil {
		return "", withContext(err, identifier, 0, StageRequest)
	}
	mode, err := ParseProcessMode(modeTag)
	if err != nil {
		return "", withContext(err, identifier, loadType, StageRequest)
	}

	result, err := p.Run(ctx, Request{Identifier: identifier, LoadType: loadType, Mode: mode})
	if err != nil {
		return "", err
	}
	return result.String(), nil
}

// Run resolves, parses and processes a single request.
// Any failure ends the request; partial work is discarded.
func (p *Pipeline) Run(ctx context.Context, req Request) (*ProcessedResult, error) {
	return p.run(ctx, req, p.logger)
}

func (p *Pipeline) run(ctx context.Context, req Request, log *slog.Logger) (*ProcessedResult, error) {
	start := time.Now()
	log = log.With("identifier", req.Identifier, "load_type", req.LoadType.String())

	pack, err := p.load(ctx, req.Identifier, req.LoadType, log)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, withContext(contextError(err), req.Identifier, req.LoadType, StageProcess)
	}

	result, err := p.processor.Process(pack, req.Mode)
	if err != nil {
		log.Warn("rule pack process failed", "stage", StageProcess, "error", err)
		return nil, err
	}

	log.Debug("rule pack processed",
		"mode", req.Mode.String(),
		"rules", pack.Len(),
		"duration", time.Since(start),
	)
	return result, nil
}

// Load resolves and parses a pack without processing it
func (p *Pipeline) Load(ctx context.Context, identifier string, loadType LoadType) (*RulePack, error) {
	log := p.logger.With("identifier", identifier, "load_type", loadType.String())
	return p.load(ctx, identifier, loadType, log)
}

func (p *Pipeline) load(ctx context.Context, identifier string, loadType LoadType, log *slog.Logger) (*RulePack, error) {
	raw, err := p.resolver.Resolve(ctx, identifier, loadType)
	if err != nil {
		log.Warn("rule pack resolve failed", "stage", StageResolve, "error", err)
		return nil, err
	}

	pack, err := p.parser.Parse(raw)
	if err != nil {
		log.Warn("rule pack parse failed", "stage", StageParse, "error", err)
		return nil, err
	}
	return pack, nil
}

// RunBatch processes independent requests in parallel, at most concurrency at a time
// (unlimited when concurrency <= 0). A failed request never affects the others.
// Results are returned in request order.
func (p *Pipeline) RunBatch(ctx context.Context, reqs []Request, concurrency int) []BatchResult {
	results := make([]BatchResult, len(reqs))

	var g errgroup.Group
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}

	for i, req := range reqs {
		results[i] = BatchResult{RequestID: uuid.NewString(), Request: req}
		g.Go(func() error {
			start := time.Now()
			res, err := p.run(ctx, req, p.logger.With("request_id", results[i].RequestID))
			results[i].Result = res
			results[i].Err = err
			results[i].Duration = time.Since(start)
			// errors are reported per request, never to the group
			return nil
		})
	}

	_ = g.Wait()
	return results
}
