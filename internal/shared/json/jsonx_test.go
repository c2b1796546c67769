package jsonx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsNull(t *testing.T) {
	assert.True(t, IsNull(nil))
	assert.True(t, IsNull(RawMessage("  null ")))
	assert.False(t, IsNull(RawMessage(`"null"`)))
	assert.False(t, IsNull(RawMessage("0")))
}

func TestMarshalRoundTripsRawMessage(t *testing.T) {
	out, err := Marshal(struct {
		ID RawMessage `json:"id"`
	}{ID: RawMessage(`"abc"`)})
	assert.NoError(t, err)
	assert.Equal(t, `{"id":"abc"}`, string(out))
}
