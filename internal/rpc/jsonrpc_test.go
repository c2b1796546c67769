package rpc

import (
	"errors"
	"testing"

	fmerrors "fastmd/internal/errors"
	jsonx "fastmd/internal/shared/json"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRequest(t *testing.T) {
	msg, id, perr := Decode([]byte(`{"jsonrpc":"2.0","id":7,"method":"transform","params":{"file":"a.md"}}`))
	require.Nil(t, perr)
	assert.Equal(t, "7", string(id))
	assert.Equal(t, "transform", msg.Method)
	assert.False(t, msg.IsNotification())
	assert.True(t, msg.HasParams())

	var params struct {
		File string `json:"file"`
	}
	require.NoError(t, msg.DecodeParams(&params))
	assert.Equal(t, "a.md", params.File)
}

func TestDecodeWithoutVersion(t *testing.T) {
	msg, id, perr := Decode([]byte(`{"id":1,"method":"ping"}`))
	require.Nil(t, perr)
	assert.Equal(t, "1", string(id))
	assert.Equal(t, "ping", msg.Method)
}

func TestDecodeKeepsStringID(t *testing.T) {
	_, id, perr := Decode([]byte(`{"jsonrpc":"2.0","id":"req-42","method":"ping"}`))
	require.Nil(t, perr)
	assert.Equal(t, `"req-42"`, string(id))
}

func TestDecodeNotification(t *testing.T) {
	for _, frame := range []string{
		`{"jsonrpc":"2.0","method":"log","params":{"msg":"hi"}}`,
		`{"jsonrpc":"2.0","id":null,"method":"log"}`,
	} {
		msg, id, perr := Decode([]byte(frame))
		require.Nil(t, perr, frame)
		assert.True(t, msg.IsNotification(), frame)
		assert.Nil(t, id)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		code  int
		id    string
	}{
		{"not json", `{not json`, ParseError, `"null"`},
		{"truncated", `{"id":1,"method":"ping"`, ParseError, `"null"`},
		{"array", `[1,2,3]`, InvalidRequest, `"null"`},
		{"scalar", `42`, InvalidRequest, `"null"`},
		{"missing method", `{"id":3}`, InvalidRequest, `3`},
		{"numeric method", `{"id":3,"method":5}`, InvalidRequest, `3`},
		{"bad version", `{"jsonrpc":"1.0","id":"x","method":"ping"}`, InvalidRequest, `"x"`},
		{"object id", `{"id":{"a":1},"method":"ping"}`, InvalidRequest, `"null"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, id, perr := Decode([]byte(tt.frame))
			assert.Nil(t, msg)
			require.NotNil(t, perr)
			assert.Equal(t, tt.code, perr.Code)
			assert.Equal(t, tt.id, string(id))
		})
	}
}

func TestDecodeParamsErrors(t *testing.T) {
	msg, _, perr := Decode([]byte(`{"id":1,"method":"transform"}`))
	require.Nil(t, perr)

	var params struct {
		File string `json:"file"`
	}
	err := msg.DecodeParams(&params)
	protocolErr, ok := fmerrors.AsProtocolError(err)
	require.True(t, ok)
	assert.Equal(t, InvalidParams, protocolErr.Code)
	assert.Equal(t, "Missing params", protocolErr.Message)

	msg, _, perr = Decode([]byte(`{"id":1,"method":"transform","params":{"file":12}}`))
	require.Nil(t, perr)
	protocolErr, ok = fmerrors.AsProtocolError(msg.DecodeParams(&params))
	require.True(t, ok)
	assert.Equal(t, InvalidParams, protocolErr.Code)
}

func TestResponseEncoding(t *testing.T) {
	data, err := jsonx.Marshal(NewResponse(jsonx.RawMessage(`1`), map[string]any{"pong": true}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":{"pong":true}}`, string(data))

	data, err = jsonx.Marshal(NewParseErrorResponse())
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":"null","error":{"code":-32700,"message":"Parse error"}}`, string(data))
}

func TestErrorResponse(t *testing.T) {
	resp := ErrorResponse(jsonx.RawMessage(`"a"`), fmerrors.NewProtocolError(TransformError, "Transform failed", map[string]any{"recoverable": true}))
	require.NotNil(t, resp.Error)
	assert.Equal(t, TransformError, resp.Error.Code)
	assert.Equal(t, map[string]any{"recoverable": true}, resp.Error.Data)

	resp = ErrorResponse(jsonx.RawMessage(`"a"`), errors.New("boom"))
	assert.Equal(t, InternalError, resp.Error.Code)
	assert.Equal(t, "boom", resp.Error.Message)
	assert.Contains(t, resp.Error.Error(), "-32603")
}

func TestNewRequest(t *testing.T) {
	data, err := NewRequest(1, "ping", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"method":"ping"}`, string(data))

	data, err = NewRequest(nil, "log", map[string]any{"msg": "hi"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","method":"log","params":{"msg":"hi"}}`, string(data))
}
