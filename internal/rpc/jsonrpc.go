package rpc

import (
	"fmt"

	fmerrors "fastmd/internal/errors"
	jsonx "fastmd/internal/shared/json"
)

// Version is the protocol version stamped on every frame.
const Version = "2.0"

// Standard JSON-RPC error codes
const (
	ParseError     = -32700 // Invalid JSON was received
	InvalidRequest = -32600 // The JSON sent is not a valid Request object
	MethodNotFound = -32601 // The method does not exist / is not available
	InvalidParams  = -32602 // Invalid method parameter(s)
	InternalError  = -32603 // Internal JSON-RPC error
)

// Application error codes
const (
	TransformError = -32001 // Renderer failed on the task
	CacheError     = -32002 // Transform cache failure
	IOError        = -32003 // Filesystem failure while collecting inputs
)

// ParseErrorID is echoed when the failing frame's id could not be read.
var ParseErrorID = jsonx.RawMessage(`"null"`)

// Message is a decoded inbound frame. ID holds the caller's id verbatim so
// it is echoed back byte for byte.
type Message struct {
	JSONRPC string           `json:"jsonrpc,omitempty"`
	ID      jsonx.RawMessage `json:"id,omitempty"`
	Method  string           `json:"method"`
	Params  jsonx.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the message carries no id. A null id is
// treated as absent.
func (m *Message) IsNotification() bool {
	return jsonx.IsNull(m.ID)
}

// HasParams reports whether params were supplied and are not null.
func (m *Message) HasParams() bool {
	return !jsonx.IsNull(m.Params)
}

// DecodeParams unmarshals params into v. Missing params and type mismatches
// are reported as InvalidParams.
func (m *Message) DecodeParams(v any) error {
	if !m.HasParams() {
		return fmerrors.NewProtocolError(InvalidParams, "Missing params", nil)
	}
	if err := jsonx.Unmarshal(m.Params, v); err != nil {
		return fmerrors.NewProtocolError(InvalidParams, fmt.Sprintf("Invalid params: %v", err), nil)
	}
	return nil
}

// Response represents a JSON-RPC 2.0 response
type Response struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      jsonx.RawMessage `json:"id"`
	Result  any              `json:"result,omitempty"`
	Error   *Error           `json:"error,omitempty"`
}

// Error represents a JSON-RPC 2.0 error object
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("JSON-RPC error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("JSON-RPC error %d: %s", e.Code, e.Message)
}

// NewRequest encodes a request frame body. Used by clients and tests.
func NewRequest(id any, method string, params any) ([]byte, error) {
	frame := map[string]any{"jsonrpc": Version, "method": method}
	if id != nil {
		frame["id"] = id
	}
	if params != nil {
		frame["params"] = params
	}
	return jsonx.Marshal(frame)
}

// NewResponse creates a successful JSON-RPC response
func NewResponse(id jsonx.RawMessage, result any) *Response {
	return &Response{
		JSONRPC: Version,
		ID:      id,
		Result:  result,
	}
}

// NewErrorResponse creates a JSON-RPC error response
func NewErrorResponse(id jsonx.RawMessage, code int, message string, data any) *Response {
	return &Response{
		JSONRPC: Version,
		ID:      id,
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// ErrorResponse maps err onto an error response. Protocol errors keep their
// code; anything else is an InternalError.
func ErrorResponse(id jsonx.RawMessage, err error) *Response {
	if protocolErr, ok := fmerrors.AsProtocolError(err); ok {
		return NewErrorResponse(id, protocolErr.Code, protocolErr.Message, protocolErr.Data)
	}
	return NewErrorResponse(id, InternalError, err.Error(), nil)
}

// NewParseErrorResponse answers a frame that is not valid JSON.
func NewParseErrorResponse() *Response {
	return NewErrorResponse(ParseErrorID, ParseError, "Parse error", nil)
}

// envelope is the loosely typed shape used to classify a frame before
// committing to Message.
type envelope struct {
	JSONRPC jsonx.RawMessage `json:"jsonrpc"`
	ID      jsonx.RawMessage `json:"id"`
	Method  jsonx.RawMessage `json:"method"`
	Params  jsonx.RawMessage `json:"params"`
}

// Decode classifies one frame. Frames that are not JSON produce a ParseError;
// JSON that is not a request object produces an InvalidRequest. In both cases
// the returned id is what the error response must echo.
func Decode(frame []byte) (*Message, jsonx.RawMessage, *fmerrors.ProtocolError) {
	if !jsonx.Valid(frame) {
		return nil, ParseErrorID, fmerrors.NewProtocolError(ParseError, "Parse error", nil)
	}

	var env envelope
	if err := jsonx.Unmarshal(frame, &env); err != nil {
		return nil, ParseErrorID, fmerrors.NewProtocolError(InvalidRequest, "Invalid Request", "frame is not an object")
	}

	id := ParseErrorID
	if validID(env.ID) {
		id = env.ID
	} else if !jsonx.IsNull(env.ID) {
		return nil, ParseErrorID, fmerrors.NewProtocolError(InvalidRequest, "Invalid Request", "id must be a string or number")
	}

	msg := &Message{ID: env.ID, Params: env.Params}
	if jsonx.IsNull(env.ID) {
		msg.ID = nil
	}

	if !jsonx.IsNull(env.JSONRPC) {
		if err := jsonx.Unmarshal(env.JSONRPC, &msg.JSONRPC); err != nil || msg.JSONRPC != Version {
			return nil, id, fmerrors.NewProtocolError(InvalidRequest, "Invalid Request", fmt.Sprintf("unsupported jsonrpc version: %s", env.JSONRPC))
		}
	}

	if jsonx.IsNull(env.Method) {
		return nil, id, fmerrors.NewProtocolError(InvalidRequest, "Invalid Request", "method is required")
	}
	if err := jsonx.Unmarshal(env.Method, &msg.Method); err != nil || msg.Method == "" {
		return nil, id, fmerrors.NewProtocolError(InvalidRequest, "Invalid Request", "method must be a non-empty string")
	}

	return msg, msg.ID, nil
}

func validID(raw jsonx.RawMessage) bool {
	if jsonx.IsNull(raw) {
		return false
	}
	switch c := raw[0]; {
	case c == '"':
		return true
	case c == '-' || (c >= '0' && c <= '9'):
		return true
	default:
		return false
	}
}
