package rules

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

// ClassSource is a registry of already-structured packs keyed by dotted path
type ClassSource interface {
	Lookup(path string) (*RulePack, bool)
}

// ClassMap is the simplest ClassSource: a fixed map of dotted path to pack
type ClassMap map[string]*RulePack

// Lookup implements ClassSource
func (m ClassMap) Lookup(path string) (*RulePack, bool) {
	p, ok := m[path]
	return p, ok && p != nil
}

// ResolverConfig holds the backing stores a Resolver reads from.
// Every field is optional.
type ResolverConfig struct {
	// Named serves LoadTypeName lookups
	Named PackStore

	// Classes serves LoadTypeClass lookups
	Classes ClassSource

	// Timeout bounds a single Resolve call. Zero means no limit beyond the caller's context.
	Timeout time.Duration
}

// Resolver locates and reads raw rule content for an identifier and load type
type Resolver struct {
	named   PackStore
	classes ClassSource
	timeout time.Duration
}

// NewResolver creates a resolver over the configured backing stores
func NewResolver(cfg ResolverConfig) *Resolver {
	return &Resolver{
		named:   cfg.Named,
		classes: cfg.Classes,
		timeout: cfg.Timeout,
	}
}

// NewResolverFromMaps creates a resolver whose named and class registries are plain maps
func NewResolverFromMaps(named map[string]string, classes map[string]*RulePack) *Resolver {
	return NewResolver(ResolverConfig{
		Named:   NewInMemoryPackStore(named),
		Classes: ClassMap(classes),
	})
}

// ValidateIdentifier checks that a rule-pack identifier is non-empty and has no whitespace
func ValidateIdentifier(identifier string) error {
	if identifier == "" {
		return &Error{Kind: KindInvalidIdentifier, Stage: StageRequest, Err: errors.New("identifier cannot be empty")}
	}
	if strings.IndexFunc(identifier, unicode.IsSpace) >= 0 {
		return &Error{Kind: KindInvalidIdentifier, Identifier: identifier, Stage: StageRequest, Err: errors.New("identifier cannot contain whitespace")}
	}
	return nil
}

// Resolve reads the raw source named by identifier according to loadType.
// Storage is accessed read-only; on failure no partial content is returned.
func (r *Resolver) Resolve(ctx context.Context, identifier string, loadType LoadType) (*RawSource, error) {
	if err := ValidateIdentifier(identifier); err != nil {
		return nil, withContext(err, identifier, loadType, StageRequest)
	}
	if !loadType.Valid() {
		return nil, &Error{
			Kind:       KindInvalidLoadType,
			Identifier: identifier,
			Stage:      StageRequest,
			Err:        fmt.Errorf("unsupported load type %s", loadType),
		}
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	raw, err := r.resolve(ctx, identifier, loadType)
	if err != nil {
		return nil, withContext(err, identifier, loadType, StageResolve)
	}
	return raw, nil
}

func (r *Resolver) resolve(ctx context.Context, identifier string, loadType LoadType) (*RawSource, error) {
	if err := ctx.Err(); err != nil {
		return nil, contextError(err)
	}

	switch loadType {
	case LoadTypeDirectory:
		content, err := readDirectory(ctx, identifier)
		if err != nil {
			return nil, err
		}
		return &RawSource{Identifier: identifier, LoadType: loadType, Content: content}, nil

	case LoadTypeFile:
		content, err := readFile(ctx, identifier)
		if err != nil {
			return nil, err
		}
		return &RawSource{Identifier: identifier, LoadType: loadType, Content: content}, nil

	case LoadTypeName:
		if r.named == nil {
			return nil, &Error{Kind: KindSourceNotFound, Err: errors.New("no named registry configured")}
		}
		content, err := r.named.Get(ctx, identifier)
		if err != nil {
			switch {
			case errors.Is(err, ErrPackNotFound):
				return nil, &Error{Kind: KindSourceNotFound, Err: err}
			case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
				return nil, contextError(err)
			}
			return nil, &Error{Kind: KindSourceUnreadable, Err: err}
		}
		return &RawSource{Identifier: identifier, LoadType: loadType, Content: []byte(content)}, nil

	case LoadTypeClass:
		if r.classes == nil {
			return nil, &Error{Kind: KindSourceNotFound, Err: errors.New("no class registry configured")}
		}
		pack, ok := r.classes.Lookup(identifier)
		if !ok {
			return nil, &Error{Kind: KindSourceNotFound, Err: fmt.Errorf("no class registered at %s", identifier)}
		}
		// the result names the requested path, whatever id the registered pack carries
		if pack.ID() != identifier || pack.LoadType() != LoadTypeClass {
			pack = pack.derive(identifier, LoadTypeClass, pack.entries)
		}
		return &RawSource{Identifier: identifier, LoadType: loadType, Structured: pack}, nil
	}

	return nil, &Error{Kind: KindInvalidLoadType, Err: fmt.Errorf("unsupported load type %s", loadType)}
}

// readDirectory concatenates the regular files directly inside dir, ordered by
// filename, separated by a blank line so blocks from adjacent files never merge.
func readDirectory(ctx context.Context, dir string) ([]byte, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fsError(err)
	}
	if !info.IsDir() {
		return nil, &Error{Kind: KindSourceUnreadable, Err: fmt.Errorf("%s is not a directory", dir)}
	}

	// os.ReadDir returns entries sorted by filename
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &Error{Kind: KindSourceUnreadable, Err: err}
	}

	var parts [][]byte
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, contextError(err)
		}
		if entry.IsDir() {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		fi, err := os.Stat(path)
		if err != nil {
			return nil, &Error{Kind: KindSourceUnreadable, Err: err}
		}
		if !fi.Mode().IsRegular() {
			continue
		}

		data, err := readFile(ctx, path)
		if err != nil {
			return nil, err
		}
		parts = append(parts, data)
	}

	return bytes.Join(parts, []byte("\n\n")), nil
}

// readFile reads path in chunks, giving up as soon as ctx is done
func readFile(ctx context.Context, path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fsError(err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, &Error{Kind: KindSourceUnreadable, Err: err}
	}
	if info.IsDir() {
		return nil, &Error{Kind: KindSourceUnreadable, Err: fmt.Errorf("%s is a directory", path)}
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, &contextReader{ctx: ctx, r: f}); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, contextError(ctxErr)
		}
		return nil, &Error{Kind: KindSourceUnreadable, Err: fmt.Errorf("failed to read %s: %w", path, err)}
	}

	return buf.Bytes(), nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}

func fsError(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return &Error{Kind: KindSourceNotFound, Err: err}
	}
	return &Error{Kind: KindSourceUnreadable, Err: err}
}

func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindSourceTimeout, Err: err}
	}
	return &Error{Kind: KindCanceled, Err: err}
}
