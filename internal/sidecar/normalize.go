package sidecar

import "strings"

const byteOrderMark = "\uFEFF"

// Normalize strips one leading byte order mark when removeBOM is set and
// rewrites CRLF to LF when normalizeLF is set. A lone CR is left alone.
// changed reports whether the output differs from content.
func Normalize(content string, removeBOM, normalizeLF bool) (out string, changed bool) {
	out = content
	if removeBOM {
		out = strings.TrimPrefix(out, byteOrderMark)
	}
	if normalizeLF {
		out = strings.ReplaceAll(out, "\r\n", "\n")
	}
	return out, out != content
}
