package sidecar

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		removeBOM   bool
		normalizeLF bool
		want        string
		changed     bool
	}{
		{"bom and crlf", "\uFEFFhi\r\nworld", true, true, "hi\nworld", true},
		{"bom kept when not requested", "\uFEFFhi", false, true, "\uFEFFhi", false},
		{"only one bom stripped", "\uFEFF\uFEFFhi", true, false, "\uFEFFhi", true},
		{"bom not at start", "hi\uFEFF", true, false, "hi\uFEFF", false},
		{"lone cr untouched", "a\rb\r\nc", false, true, "a\rb\nc", true},
		{"crlf kept when not requested", "a\r\nb", false, false, "a\r\nb", false},
		{"already clean", "a\nb", true, true, "a\nb", false},
		{"empty", "", true, true, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := Normalize(tt.content, tt.removeBOM, tt.normalizeLF)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.changed, changed)
		})
	}
}
