package render

import (
	"bytes"
	"fmt"
	"sync"

	termmd "github.com/MichaelMure/go-term-markdown"
	"github.com/charmbracelet/glamour"
	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	mdparser "github.com/gomarkdown/markdown/parser"
	"github.com/yuin/goldmark"
	emoji "github.com/yuin/goldmark-emoji"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

// Engine names accepted in the transform "engine" option.
const (
	EngineGoldmark   = "goldmark"
	EngineGomarkdown = "gomarkdown"
	EngineTerminal   = "terminal"
	EngineANSI       = "ansi"
)

// DefaultTerminalWidth is the word wrap used by the terminal engine.
const DefaultTerminalWidth = 80

// Engine converts markdown source into a document. Engines are shared by all
// workers and must be safe for concurrent use.
type Engine interface {
	Name() string
	// HTML reports whether Convert produces HTML. Only HTML output is
	// sanitized and inspected for metadata.
	HTML() bool
	Convert(source []byte) (string, error)
}

type goldmarkEngine struct {
	md goldmark.Markdown
}

// NewGoldmarkEngine returns the default CommonMark engine with GFM,
// footnotes, typographic quotes, emoji shortcodes and heading ids.
func NewGoldmarkEngine() Engine {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Footnote,
			extension.Typographer,
			emoji.Emoji,
		),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)
	return &goldmarkEngine{md: md}
}

func (e *goldmarkEngine) Name() string { return EngineGoldmark }
func (e *goldmarkEngine) HTML() bool   { return true }

func (e *goldmarkEngine) Convert(source []byte) (string, error) {
	var buf bytes.Buffer
	if err := e.md.Convert(source, &buf); err != nil {
		return "", fmt.Errorf("goldmark convert: %w", err)
	}
	return buf.String(), nil
}

type gomarkdownEngine struct{}

// NewGomarkdownEngine returns an engine backed by gomarkdown. Its parser and
// renderer keep per-document state, so both are created per call.
func NewGomarkdownEngine() Engine {
	return gomarkdownEngine{}
}

func (gomarkdownEngine) Name() string { return EngineGomarkdown }
func (gomarkdownEngine) HTML() bool   { return true }

func (gomarkdownEngine) Convert(source []byte) (string, error) {
	p := mdparser.NewWithExtensions(mdparser.CommonExtensions | mdparser.AutoHeadingIDs | mdparser.Footnotes)
	r := mdhtml.NewRenderer(mdhtml.RendererOptions{Flags: mdhtml.CommonFlags})
	return string(markdown.ToHTML(source, p, r)), nil
}

// terminalEngine renders ANSI text for previews. The glamour renderer keeps
// render state on the instance, so calls are serialized.
type terminalEngine struct {
	mu       sync.Mutex
	renderer *glamour.TermRenderer
}

// NewTerminalEngine returns a glamour engine with the colourless "notty"
// style wrapped at width columns.
func NewTerminalEngine(width int) (Engine, error) {
	if width <= 0 {
		width = DefaultTerminalWidth
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("notty"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create terminal renderer: %w", err)
	}
	return &terminalEngine{renderer: renderer}, nil
}

func (e *terminalEngine) Name() string { return EngineTerminal }
func (e *terminalEngine) HTML() bool   { return false }

func (e *terminalEngine) Convert(source []byte) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out, err := e.renderer.RenderBytes(source)
	if err != nil {
		return "", fmt.Errorf("terminal render: %w", err)
	}
	return string(out), nil
}

type ansiEngine struct {
	width int
}

// NewANSIEngine returns a colour terminal engine for interactive previews.
func NewANSIEngine(width int) Engine {
	if width <= 0 {
		width = DefaultTerminalWidth
	}
	return ansiEngine{width: width}
}

func (e ansiEngine) Name() string { return EngineANSI }
func (e ansiEngine) HTML() bool   { return false }

func (e ansiEngine) Convert(source []byte) (string, error) {
	return string(termmd.Render(string(source), e.width, 0)), nil
}
