package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/liamcoop/rulepack/internal/config"
	"github.com/liamcoop/rulepack/internal/logger"
	"github.com/liamcoop/rulepack/packregistry"
	"github.com/liamcoop/rulepack/rules"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the CLI and returns the process exit code
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	defer a.close()

	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

// errReported signals a failure whose details were already written
var errReported = errors.New("failure already reported")

// app holds state shared by every subcommand
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	logLevel   string
	format     string

	cfg      *config.Config
	store    *rules.PostgresPackStore
	registry *packregistry.Registry
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "rulepack",
		Short: "rulepack - rule pack loader and processor",
		Long: `rulepack resolves rule packs from files, directories, a named store or a
class registry, parses them, and summarizes, normalizes or validates them.

Load types:
  file   read a single rule file
  dir    concatenate every file directly inside a directory, by filename
  name   look the identifier up in the named store
  class  look a dotted path up in the class registry`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Context())
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default ./"+config.ConfigFileName+" when present)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level override (trace|debug|info|warn|error)")
	root.PersistentFlags().StringVarP(&a.format, "format", "f", "text", "output format (text|json)")

	root.AddCommand(newProcessCmd(a))
	root.AddCommand(newBatchCmd(a))
	root.AddCommand(newEvalCmd(a))
	root.AddCommand(newWatchCmd(a))
	root.AddCommand(newStoreCmd(a))

	return root
}

// setup loads configuration and configures logging
func (a *app) setup(ctx context.Context) error {
	if a.format != "text" && a.format != "json" {
		return fmt.Errorf("invalid output format %q (must be text or json)", a.format)
	}

	cfg, path, err := config.Load(ctx, config.LoadOptions{ConfigFilePath: a.configPath})
	if err != nil {
		return err
	}
	a.cfg = cfg

	level := cfg.Log.Level
	if a.logLevel != "" {
		level = a.logLevel
	}
	if err := logger.Configure(level, cfg.Log.Format, a.stderr); err != nil {
		return err
	}
	if path != "" {
		logger.Debug("configuration loaded", "path", path)
	}
	return nil
}

// pipeline builds a pipeline over the configured named store and class registry
func (a *app) pipeline(ctx context.Context) (*rules.Pipeline, error) {
	var named rules.PackStore = rules.NewInMemoryPackStore(a.cfg.Named)
	if a.cfg.Store.DatabaseURL != "" {
		store, err := a.postgresStore(ctx)
		if err != nil {
			return nil, err
		}
		named = store
	}

	registry, err := a.classRegistry()
	if err != nil {
		return nil, err
	}

	checker, err := rules.NewEngine()
	if err != nil {
		return nil, err
	}

	resolver := rules.NewResolver(rules.ResolverConfig{
		Named:   named,
		Classes: registry,
		Timeout: a.cfg.Resolver.Timeout,
	})
	return rules.NewPipeline(resolver,
		rules.NewProcessor(rules.WithChecker(checker)),
		rules.WithLogger(logger.Logger),
	), nil
}

func (a *app) postgresStore(ctx context.Context) (*rules.PostgresPackStore, error) {
	if a.store != nil {
		return a.store, nil
	}
	if a.cfg.Store.DatabaseURL == "" {
		return nil, errors.New("no named store database configured (set store.database_url or RULEPACK_STORE_DATABASE_URL)")
	}
	store, err := rules.OpenPostgresPackStore(ctx, a.cfg.Store.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a.store = store
	return store, nil
}

func (a *app) classRegistry() (*packregistry.Registry, error) {
	if a.registry != nil {
		return a.registry, nil
	}
	if a.cfg.Classes.File == "" {
		a.registry = packregistry.New()
		return a.registry, nil
	}
	registry, err := packregistry.LoadFile(a.cfg.Classes.File)
	if err != nil {
		return nil, err
	}
	logger.Debug("class registry loaded", "file", a.cfg.Classes.File, "classes", registry.Len())
	a.registry = registry
	return registry, nil
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warn("close named store", "error", err)
		}
	}
}

func (a *app) jsonOutput() bool {
	return a.format == "json"
}

func (a *app) writeJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// fail reports err in the selected output format and returns errReported
func (a *app) fail(err error) error {
	if a.jsonOutput() {
		resp := ErrorResponse{Error: err.Error()}
		if kind := rules.KindOf(err); kind != rules.KindUnknown {
			resp.Kind = kind.String()
		}
		if encErr := a.writeJSON(resp); encErr != nil {
			return encErr
		}
	}
	fmt.Fprintf(a.stderr, "Error: %v\n", err)
	return errReported
}

func (a *app) result(text string) {
	fmt.Fprintf(a.stdout, "Result: %s\n", text)
}
