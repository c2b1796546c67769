package jsonx

import "github.com/goccy/go-json"

// Thin wrapper so the frame codec and handlers can swap JSON implementations
// in one place.
var (
	Marshal       = json.Marshal
	MarshalIndent = json.MarshalIndent
	Unmarshal     = json.Unmarshal
	NewDecoder    = json.NewDecoder
	NewEncoder    = json.NewEncoder
	Valid         = json.Valid
)

type RawMessage = json.RawMessage
type Number = json.Number

// IsNull reports whether raw is absent or the JSON literal null.
func IsNull(raw RawMessage) bool {
	trimmed := trimSpace(raw)
	return len(trimmed) == 0 || string(trimmed) == "null"
}

func trimSpace(b []byte) []byte {
	start, end := 0, len(b)
	for start < end && isSpace(b[start]) {
		start++
	}
	for end > start && isSpace(b[end-1]) {
		end--
	}
	return b[start:end]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
