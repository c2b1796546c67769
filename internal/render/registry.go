package render

import (
	"context"
	"errors"
	"fmt"
	"sort"

	fmerrors "fastmd/internal/errors"
	"fastmd/internal/parallel"

	"github.com/microcosm-cc/bluemonday"
)

// ErrUnknownEngine is returned for an engine name that is not registered.
var ErrUnknownEngine = errors.New("unknown render engine")

// Options configures a Registry.
type Options struct {
	// DefaultEngine is used when a task names no engine.
	DefaultEngine string
	// TerminalWidth is the word wrap of the terminal engine.
	TerminalWidth int
}

// Registry holds the named engines and renders tasks with them. It is the
// parallel.Renderer every pool worker calls.
type Registry struct {
	engines       map[string]Engine
	defaultEngine string
	sanitizer     *bluemonday.Policy
}

var _ parallel.Renderer = (*Registry)(nil)

// NewRegistry registers the goldmark, gomarkdown, terminal and ansi engines.
func NewRegistry(opts Options) (*Registry, error) {
	terminal, err := NewTerminalEngine(opts.TerminalWidth)
	if err != nil {
		return nil, err
	}

	r := &Registry{
		engines:       make(map[string]Engine),
		defaultEngine: opts.DefaultEngine,
		sanitizer:     bluemonday.UGCPolicy(),
	}
	if r.defaultEngine == "" {
		r.defaultEngine = EngineGoldmark
	}
	r.Register(NewGoldmarkEngine())
	r.Register(NewGomarkdownEngine())
	r.Register(terminal)
	r.Register(NewANSIEngine(opts.TerminalWidth))

	if _, ok := r.engines[r.defaultEngine]; !ok {
		return nil, fmt.Errorf("default engine %q: %w", r.defaultEngine, ErrUnknownEngine)
	}
	return r, nil
}

// Register adds or replaces an engine under its name.
func (r *Registry) Register(engine Engine) {
	r.engines[engine.Name()] = engine
}

// Lookup resolves an engine name. The empty name selects the default engine.
func (r *Registry) Lookup(name string) (Engine, error) {
	if name == "" {
		name = r.defaultEngine
	}
	engine, ok := r.engines[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, name)
	}
	return engine, nil
}

// Engines lists registered engine names in sorted order.
func (r *Registry) Engines() []string {
	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render applies the task's replacement rules, extracts frontmatter, and
// compiles the body. MDX files keep their import and export statements;
// every other file is converted by the selected engine and wrapped as an ES
// module.
func (r *Registry) Render(ctx context.Context, task parallel.Task) (parallel.Rendered, error) {
	opts := task.Options()
	engine, err := r.Lookup(opts.Engine)
	if err != nil {
		return parallel.Rendered{}, &fmerrors.TransformError{TaskID: task.ID(), File: task.File(), Err: err}
	}
	if err := ctx.Err(); err != nil {
		return parallel.Rendered{}, err
	}

	source := ApplyRules(task.Content(), opts.Rules)
	frontmatter, body := ExtractFrontmatter(source)

	metadata := map[string]any{
		"file":   task.File(),
		"engine": engine.Name(),
	}
	if frontmatter != nil {
		metadata["frontmatter"] = frontmatter
	}

	var out parallel.Rendered
	stats := Analyze(body)

	if IsMDX(task.File()) {
		module := CompileMDX(body, task.File())
		out.Code = module.Code
		out.Dependencies = module.Dependencies
	} else {
		document, err := engine.Convert([]byte(body))
		if err != nil {
			return parallel.Rendered{}, &fmerrors.TransformError{TaskID: task.ID(), File: task.File(), Err: err, Recoverable: true}
		}
		if engine.HTML() {
			if opts.Sanitize {
				document = r.sanitizer.Sanitize(document)
			}
			stats = stats.AnalyzeHTML(document)
		}
		out.Code = WrapModule(task.File(), document)
	}

	stats.apply(metadata)
	out.Metadata = metadata
	return out, nil
}
