// Package rpc implements the JSON-RPC Transport (spec §4.I): line-delimited
// JSON over stdin/stdout. Every physical newline terminates one message;
// stdout carries nothing but JSON-RPC response objects, and every
// diagnostic goes to stderr instead. Dispatch is strictly sequential —
// response N is written before response N+1 is read.
package rpc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/tchow-twistedxcom/remote-terminal-mcp/internal/logging"
)

var rpcLog = logging.ForComponent(logging.CompRPC)

// Request is one incoming JSON-RPC message. ID is nil for notifications.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// Response is one outgoing JSON-RPC message.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id,omitempty"`
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

const (
	CodeParseError     = -32700
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Handler routes a single method call to its implementation. Params is the
// raw, still-undecoded JSON params object; handlers decode it themselves.
type Handler func(method string, params json.RawMessage) (result interface{}, rpcErr *Error)

// IsNotification reports whether a decoded request has no id — a
// notification is defined purely by the absence of that field, so a
// present-but-null id is deliberately NOT treated as a notification here.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0
}

// Loop reads line-delimited JSON-RPC requests from r, dispatches each
// through handle, and writes the corresponding responses to w. It
// processes requests strictly sequentially: handle for request N returns
// and its response is flushed before the next line is read. Loop returns
// when r is exhausted (EOF) or a read error occurs.
func Loop(r io.Reader, w io.Writer, handle Handler) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 10*1024*1024)

	out := bufio.NewWriter(w)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			rpcLog.Warn("parse_error", "error", err.Error())
			if err := writeResponse(out, Response{
				JSONRPC: "2.0",
				Error:   &Error{Code: CodeParseError, Message: "parse error"},
				ID:      nil,
			}); err != nil {
				return err
			}
			continue
		}

		result, rpcErr := handle(req.Method, req.Params)

		if req.IsNotification() {
			// No reply is ever produced for a notification, successful or
			// not — not even an error frame.
			continue
		}

		resp := Response{JSONRPC: "2.0", ID: req.ID}
		if rpcErr != nil {
			resp.Error = rpcErr
		} else {
			resp.Result = result
		}
		if err := writeResponse(out, resp); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func writeResponse(out *bufio.Writer, resp Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("rpc: marshaling response: %w", err)
	}
	if _, err := out.Write(data); err != nil {
		return fmt.Errorf("rpc: writing response: %w", err)
	}
	if err := out.WriteByte('\n'); err != nil {
		return fmt.Errorf("rpc: writing newline: %w", err)
	}
	return out.Flush()
}

// MethodNotFound builds the standard "unknown method" error.
func MethodNotFound(method string) *Error {
	return &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("method not found: %s", method)}
}
