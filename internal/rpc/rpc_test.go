package rpc

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoopEchoesRequestAndWritesResponse(t *testing.T) {
	in := strings.NewReader(`{"jsonrpc":"2.0","method":"ping","id":1}` + "\n")
	var out bytes.Buffer

	err := Loop(in, &out, func(method string, params json.RawMessage) (interface{}, *Error) {
		require.Equal(t, "ping", method)
		return map[string]string{"pong": "true"}, nil
	})
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp))
	require.Nil(t, resp.Error)
	require.EqualValues(t, 1, resp.ID)
}

func TestLoopProducesZeroBytesForNotification(t *testing.T) {
	in := strings.NewReader(`{"jsonrpc":"2.0","method":"notifications/initialized"}` + "\n")
	var out bytes.Buffer

	called := false
	err := Loop(in, &out, func(method string, params json.RawMessage) (interface{}, *Error) {
		called = true
		return nil, nil
	})
	require.NoError(t, err)
	require.True(t, called)
	require.Empty(t, out.Bytes())
}

func TestLoopParseErrorKeepsStreamAlive(t *testing.T) {
	in := strings.NewReader("not json\n" + `{"jsonrpc":"2.0","method":"ping","id":2}` + "\n")
	var out bytes.Buffer

	calls := 0
	err := Loop(in, &out, func(method string, params json.RawMessage) (interface{}, *Error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)

	var first Response
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.Equal(t, CodeParseError, first.Error.Code)

	var second Response
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	require.Nil(t, second.Error)
}

func TestLoopMethodNotFound(t *testing.T) {
	in := strings.NewReader(`{"jsonrpc":"2.0","method":"bogus","id":3}` + "\n")
	var out bytes.Buffer

	err := Loop(in, &out, func(method string, params json.RawMessage) (interface{}, *Error) {
		return nil, MethodNotFound(method)
	})
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp))
	require.Equal(t, CodeMethodNotFound, resp.Error.Code)
}

func TestSequentialProcessingOrder(t *testing.T) {
	in := strings.NewReader(
		`{"jsonrpc":"2.0","method":"a","id":1}` + "\n" +
			`{"jsonrpc":"2.0","method":"b","id":2}` + "\n",
	)
	var out bytes.Buffer

	var order []string
	err := Loop(in, &out, func(method string, params json.RawMessage) (interface{}, *Error) {
		order = append(order, method)
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, order)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	var first, second Response
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	require.EqualValues(t, 1, first.ID)
	require.EqualValues(t, 2, second.ID)
}
