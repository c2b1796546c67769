package render

import (
	"path/filepath"
	"regexp"
	"strings"
)

var templateEscaper = strings.NewReplacer(`\`, `\\`, "`", "\\`", "${", `\${`)

// importSource matches the module specifier of an import statement.
var importSource = regexp.MustCompile(`(?:\bfrom\s*|^import\s*)["']([^"']+)["']`)

// IsMDX reports whether file should be compiled as MDX.
func IsMDX(file string) bool {
	return strings.EqualFold(filepath.Ext(file), ".mdx")
}

// EscapeTemplate escapes s for embedding in a JavaScript template literal.
func EscapeTemplate(s string) string {
	return templateEscaper.Replace(s)
}

// WrapModule emits an ES module whose default export is the rendered output.
func WrapModule(file, output string) string {
	var b strings.Builder
	b.Grow(len(output) + len(file) + 48)
	b.WriteString("// Generated from: ")
	b.WriteString(file)
	b.WriteString("\nexport default `")
	b.WriteString(EscapeTemplate(output))
	b.WriteString("`;\n")
	return b.String()
}

// MDXModule is the result of compiling an MDX body.
type MDXModule struct {
	Code         string
	Dependencies []string
}

// CompileMDX hoists import lines and named export lines above the body and
// exports the remaining body as a template literal. Import specifiers are
// reported as dependencies in source order.
func CompileMDX(body, file string) MDXModule {
	var imports, exports, rest []string
	var deps []string

	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "import "):
			imports = append(imports, line)
			if m := importSource.FindStringSubmatch(trimmed); m != nil {
				deps = append(deps, m[1])
			}
		case strings.HasPrefix(trimmed, "export ") && !strings.Contains(line, "export default"):
			exports = append(exports, line)
		default:
			rest = append(rest, line)
		}
	}

	var b strings.Builder
	b.WriteString("// Generated from: ")
	b.WriteString(file)
	b.WriteByte('\n')
	for _, line := range imports {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if len(exports) > 0 {
		b.WriteByte('\n')
		for _, line := range exports {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	b.WriteString("\nexport default `")
	b.WriteString(EscapeTemplate(strings.Join(rest, "\n")))
	b.WriteString("`;\n")

	return MDXModule{Code: b.String(), Dependencies: deps}
}
