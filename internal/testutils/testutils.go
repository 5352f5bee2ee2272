package testutils

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

const (
	FakeUser     = "explorer"
	FakePassword = "hunter2"
)

// CreateTestDBPath returns a SQLite file path inside a per-test temp dir.
func CreateTestDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.db")
}

// AssertNoError is a helper to check for no error
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
}

// AssertEqual checks if two comparable values are equal
func AssertEqual(t *testing.T, got, want interface{}) {
	t.Helper()
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

// NodeCall is one request received by a FakeNode.
type NodeCall struct {
	Path   string
	Method string
	Params []json.RawMessage
}

// NodeReply describes how a FakeNode answers one method. Result is encoded
// as the envelope result; Code/Message produce an envelope error returned with
// Status (default 500, as Bitcoin Core does). RawBody bypasses the envelope.
type NodeReply struct {
	Result  interface{}
	Code    int
	Message string
	Status  int
	RawBody string
}

// NodeHandler computes a reply from the decoded params.
type NodeHandler func(params []json.RawMessage) NodeReply

// FakeNode is an httptest JSON-RPC server impersonating bitcoind.
type FakeNode struct {
	Server *httptest.Server

	mu       sync.Mutex
	handlers map[string]NodeHandler
	calls    []NodeCall
}

// NewFakeNode starts a fake node that requires FakeUser/FakePassword.
func NewFakeNode(t *testing.T) *FakeNode {
	t.Helper()
	node := &FakeNode{handlers: make(map[string]NodeHandler)}
	node.Server = httptest.NewServer(http.HandlerFunc(node.serve))
	t.Cleanup(node.Server.Close)
	return node
}

// URL returns the fake node's base URL.
func (n *FakeNode) URL() string {
	return n.Server.URL
}

// Handle registers a dynamic handler for method.
func (n *FakeNode) Handle(method string, h NodeHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[method] = h
}

// Reply registers a fixed reply for method.
func (n *FakeNode) Reply(method string, reply NodeReply) {
	n.Handle(method, func([]json.RawMessage) NodeReply { return reply })
}

// Calls returns the requests received so far, in arrival order.
func (n *FakeNode) Calls() []NodeCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]NodeCall, len(n.calls))
	copy(out, n.calls)
	return out
}

// Methods returns the method names received so far, in arrival order.
func (n *FakeNode) Methods() []string {
	calls := n.Calls()
	methods := make([]string, 0, len(calls))
	for _, c := range calls {
		methods = append(methods, c.Method)
	}
	return methods
}

func (n *FakeNode) serve(w http.ResponseWriter, r *http.Request) {
	user, pass, ok := r.BasicAuth()
	if !ok || user != FakeUser || pass != FakePassword {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	body, _ := io.ReadAll(r.Body)
	var req struct {
		ID     string            `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "bad envelope", http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	n.calls = append(n.calls, NodeCall{Path: r.URL.Path, Method: req.Method, Params: req.Params})
	handler, found := n.handlers[req.Method]
	n.mu.Unlock()

	if !found {
		writeEnvelope(w, http.StatusNotFound, req.ID, nil, -32601, "Method not found")
		return
	}

	reply := handler(req.Params)
	switch {
	case reply.RawBody != "":
		status := reply.Status
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply.RawBody)
	case reply.Message != "":
		status := reply.Status
		if status == 0 {
			status = http.StatusInternalServerError
		}
		writeEnvelope(w, status, req.ID, nil, reply.Code, reply.Message)
	default:
		status := reply.Status
		if status == 0 {
			status = http.StatusOK
		}
		writeEnvelope(w, status, req.ID, reply.Result, 0, "")
	}
}

func writeEnvelope(w http.ResponseWriter, status int, id string, result interface{}, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	var rpcErr interface{}
	if message != "" {
		rpcErr = map[string]interface{}{"code": code, "message": message}
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"result": result,
		"error":  rpcErr,
		"id":     id,
	})
}

// ParamString decodes params[i] as a JSON string.
func ParamString(params []json.RawMessage, i int) string {
	if i >= len(params) {
		return ""
	}
	var s string
	if err := json.Unmarshal(params[i], &s); err != nil {
		return strings.TrimSpace(string(params[i]))
	}
	return s
}

// ParamInt decodes params[i] as a JSON integer.
func ParamInt(params []json.RawMessage, i int) int64 {
	if i >= len(params) {
		return 0
	}
	var v int64
	if err := json.Unmarshal(params[i], &v); err != nil {
		panic(fmt.Sprintf("param %d is not an integer: %s", i, params[i]))
	}
	return v
}
