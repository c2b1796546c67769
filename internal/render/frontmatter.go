package render

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const frontmatterDelimiter = "---"

// ExtractFrontmatter splits a leading YAML block delimited by "---" lines
// from the body. Without a closing delimiter the whole input is body. YAML
// that fails to parse is dropped and the body is still returned without it.
func ExtractFrontmatter(content string) (any, string) {
	lines := strings.Split(content, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != frontmatterDelimiter {
		return nil, content
	}

	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == frontmatterDelimiter {
			end = i
			break
		}
	}
	if end < 0 {
		return nil, content
	}

	body := strings.Join(lines[end+1:], "\n")

	var value any
	if err := yaml.Unmarshal([]byte(strings.Join(lines[1:end], "\n")), &value); err != nil {
		return nil, body
	}
	if value == nil {
		return nil, body
	}
	return jsonCompatible(value), body
}

// jsonCompatible rewrites yaml maps with non-string keys so the value can be
// encoded as JSON.
func jsonCompatible(value any) any {
	switch v := value.(type) {
	case map[string]any:
		for key, item := range v {
			v[key] = jsonCompatible(item)
		}
		return v
	case map[any]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[fmt.Sprint(key)] = jsonCompatible(item)
		}
		return out
	case []any:
		for i, item := range v {
			v[i] = jsonCompatible(item)
		}
		return v
	default:
		return v
	}
}
