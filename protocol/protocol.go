// Package protocol dispatches call requests of the form
// "callName:token1:token2" to the prepared or raw executor and renders the
// outcome as result text.
package protocol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tomyedwab/sqlcustom/binder"
	"github.com/tomyedwab/sqlcustom/calls"
	"github.com/tomyedwab/sqlcustom/coerce"
	"github.com/tomyedwab/sqlcustom/executor"
	"github.com/tomyedwab/sqlcustom/rawquery"
	"github.com/tomyedwab/sqlcustom/session"
)

// CallDir is the directory, relative to the service path, holding call files.
const CallDir = "sql_custom"

const (
	callNotFound   = `[0,"Error No Custom Call Not Found"]`
	stripCharFound = `[0,"Error Strip Char Found"]`
)

var (
	ErrUnknownDatabase = errors.New("no database connection")
	ErrNoCallFile      = errors.New("no call file given")
)

type Config struct {
	// Name identifies the protocol in logs and routes.
	Name string
	// Database is the id of the session pool the protocol runs on.
	Database string
	// Options names the call file under <Path>/sql_custom.
	Options  string
	Path     string
	Sessions *session.Manager
	Logger   *slog.Logger
}

// Protocol serves calls from one call file on one database.
type Protocol struct {
	name     string
	registry *calls.Registry
	pool     *session.Pool
	prepared *executor.Executor
	raw      *rawquery.Executor
	logger   *slog.Logger
}

// New loads the protocol's call file and binds it to its database pool. The
// call directory is created when missing.
func New(cfg Config) (*Protocol, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("protocol", cfg.Name)

	if cfg.Sessions == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDatabase, cfg.Database)
	}
	pool, ok := cfg.Sessions.Pool(cfg.Database)
	if !ok {
		logger.Warn("No database connection", "database", cfg.Database)
		return nil, fmt.Errorf("%w: %s", ErrUnknownDatabase, cfg.Database)
	}
	if cfg.Options == "" {
		logger.Warn("Missing call file name")
		return nil, ErrNoCallFile
	}

	dir := filepath.Join(cfg.Path, CallDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create call directory: %w", err)
	}

	registry, err := calls.Load(filepath.Join(dir, cfg.Options), logger)
	if err != nil {
		logger.Warn("Failed to load call file", "file", cfg.Options, "error", err)
		return nil, err
	}
	if !registry.OK() {
		return nil, fmt.Errorf("call file %s has errors: %w", cfg.Options, registry.Err())
	}
	return NewWithRegistry(cfg.Name, registry, pool, logger), nil
}

// NewWithRegistry serves an already loaded registry on pool.
func NewWithRegistry(name string, registry *calls.Registry, pool *session.Pool, logger *slog.Logger) *Protocol {
	if logger == nil {
		logger = slog.Default()
	}
	return &Protocol{
		name:     name,
		registry: registry,
		pool:     pool,
		prepared: executor.New(logger),
		raw:      rawquery.New(logger),
		logger:   logger,
	}
}

func (p *Protocol) Name() string {
	return p.name
}

// Database returns the id of the pool the protocol runs on.
func (p *Protocol) Database() string {
	if p.pool == nil {
		return ""
	}
	return p.pool.ID
}

func (p *Protocol) Registry() *calls.Registry {
	return p.registry
}

// Handle runs one request and returns its result text. It never fails:
// errors are returned as [0,"reason"].
func (p *Protocol) Handle(ctx context.Context, request string) (result string) {
	name, _, _ := strings.Cut(request, ":")
	def, ok := p.registry.Lookup(name)
	if !ok {
		p.logger.Warn("Custom call not found", "call", name, "input", request)
		return callNotFound
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Call panicked", "call", name, "input", request, "panic", r)
			result = errorResult(fmt.Errorf("internal error: %v", r))
		}
	}()

	res, err := p.run(ctx, def, strings.Split(request, ":"))
	if err != nil {
		var sv *coerce.StripCharViolationError
		if errors.As(err, &sv) && sv.Input {
			p.logger.Warn("Bad character detected", "call", name, "input", request, "value", sv.Value)
			return stripCharFound
		}
		p.logger.Error("Call failed", "call", name, "input", request, "error", err)
		return errorResult(err)
	}
	return Encode(res.Rows)
}

func (p *Protocol) run(ctx context.Context, def *calls.Definition, tokens []string) (executor.Result, error) {
	if got := len(tokens) - 1; got != def.HighestInputIndex {
		return executor.Result{}, &binder.ArityMismatchError{Scope: "request", Got: got, Expected: def.HighestInputIndex}
	}

	// Inputs are converted before a session is taken so a rejected value
	// never reaches the database.
	var (
		params []binder.BindParameter
		query  string
		err    error
	)
	if def.Prepared {
		params, err = binder.Bind(tokens, def, p.logger)
	} else {
		query, err = rawquery.Build(tokens, def, p.logger)
	}
	if err != nil {
		return executor.Result{}, err
	}

	sess, err := p.pool.Acquire(ctx)
	if err != nil {
		return executor.Result{}, err
	}
	defer p.pool.Release(sess)

	if def.Prepared {
		return p.prepared.Run(ctx, sess, def, params)
	}
	return p.raw.Send(ctx, sess, def, query)
}

// Encode renders rows as [1,[[f,f],[f]]]. Empty fields are written as "".
func Encode(rows [][]string) string {
	var b strings.Builder
	b.WriteString("[1,[")
	for i, row := range rows {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('[')
		for j, field := range row {
			if j > 0 {
				b.WriteByte(',')
			}
			if field == "" {
				field = `""`
			}
			b.WriteString(field)
		}
		b.WriteByte(']')
	}
	b.WriteString("]]")
	return b.String()
}

func errorResult(err error) string {
	return `[0,"` + strings.ReplaceAll(err.Error(), `"`, `""`) + `"]`
}
