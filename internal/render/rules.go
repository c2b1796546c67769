package render

import (
	"strings"

	"fastmd/internal/parallel"
)

// ApplyRules applies literal replacements in order. Rules with an empty
// pattern are skipped.
func ApplyRules(content string, rules []parallel.ReplaceRule) string {
	for _, rule := range rules {
		if rule.Pattern == "" {
			continue
		}
		content = strings.ReplaceAll(content, rule.Pattern, rule.Replacement)
	}
	return content
}
