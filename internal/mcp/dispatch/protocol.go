package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

const jsonrpcVersion = "2.0"

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// MCP method names handled by the dispatcher.
const (
	methodInitialize  = "initialize"
	methodInitialized = "notifications/initialized"
	methodPing        = "ping"
	methodToolsList   = "tools/list"
	methodToolsCall   = "tools/call"
	methodCancelled   = "notifications/cancelled"
)

const latestProtocolRev = "2025-11-25"

// Keys of the _meta object attached to failed tool results.
const (
	metaErrorKind = "errorKind"
	metaParam     = "param"
	metaExpected  = "expected"
)

// supportedProtocolVersions lists the MCP revisions this server speaks,
// newest first.
var supportedProtocolVersions = []string{
	latestProtocolRev,
	"2025-06-18",
	"2025-03-26",
	"2024-11-05",
}

// negotiateVersion echoes the client's requested revision when supported and
// otherwise offers the newest one, leaving the client to disconnect if it
// cannot speak it.
func negotiateVersion(requested string) string {
	if slices.Contains(supportedProtocolVersions, requested) {
		return requested
	}
	return latestProtocolRev
}

// nullID is the id used when the request id cannot be determined.
var nullID = json.RawMessage("null")

// request is an incoming JSON-RPC request or notification. A notification
// has no id member at all; an explicit "id": null is kept as a request.
type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

func (r *request) isNotification() bool { return len(r.ID) == 0 }

// validate checks the envelope. The returned error message is sent to the
// client verbatim.
func (r *request) validate() error {
	if r.JSONRPC != jsonrpcVersion {
		return fmt.Errorf("jsonrpc must be %q", jsonrpcVersion)
	}
	if r.Method == "" {
		return fmt.Errorf("method is required")
	}
	if len(r.ID) > 0 && !validID(r.ID) {
		return fmt.Errorf("id must be a string, a number or null")
	}
	return nil
}

// validID reports whether a raw id is a JSON string, number or null.
func validID(id json.RawMessage) bool {
	id = bytes.TrimSpace(id)
	if len(id) == 0 {
		return false
	}
	switch id[0] {
	case '"', 'n', '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		return true
	}
	return false
}

// idKey returns a canonical form of a raw id for map lookups.
func idKey(id json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, id); err != nil {
		return string(id)
	}
	return buf.String()
}

// response is an outgoing JSON-RPC response. Exactly one of Result and Error
// is set.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError is the error member of a JSON-RPC response.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// callParams is the params object of tools/call. Arguments stay raw so they
// can be decoded with number preservation.
type callParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// cancelledParams is the params object of notifications/cancelled.
type cancelledParams struct {
	RequestID json.RawMessage `json:"requestId"`
	Reason    string          `json:"reason,omitempty"`
}

// decodeArguments parses the arguments object of a tools/call request.
// Numbers are kept as json.Number so integer precision survives binding.
// An absent or null value yields an empty mapping.
func decodeArguments(raw json.RawMessage) (map[string]any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return map[string]any{}, nil
	}
	if trimmed[0] != '{' {
		return nil, fmt.Errorf("arguments must be a JSON object")
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var args map[string]any
	if err := dec.Decode(&args); err != nil {
		return nil, fmt.Errorf("arguments: %w", err)
	}
	return args, nil
}
