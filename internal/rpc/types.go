package rpc

import "encoding/json"

// Request is a JSON-RPC 1.0 envelope as accepted by Bitcoin Core.
// ID is advisory only; there is a single outstanding request per call.
type Request struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      string        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// Response is the envelope returned by the node. Exactly one of Result and
// Error is meaningful.
type Response struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
	ID     string          `json:"id"`
}
