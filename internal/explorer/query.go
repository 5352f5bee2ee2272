package explorer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/brewgator/block-explorer/internal/rpc"
)

// Kind names a lookup variant.
type Kind string

const (
	KindTransaction Kind = "transaction"
	KindBlock       Kind = "block"
	KindBalance     Kind = "balance"
	KindSearch      Kind = "search"
)

// ErrBlankQuery is returned for empty or whitespace-only input. Callers treat
// it as a no-op: nothing is sent to the node and no state changes.
var ErrBlankQuery = errors.New("blank query")

// Node is the part of the node RPC surface lookups and the feed use.
type Node interface {
	GetBlockCount(ctx context.Context) (int64, error)
	GetBlockHash(ctx context.Context, height int64) (string, error)
	GetBlock(ctx context.Context, hash string) (*btcjson.GetBlockVerboseTxResult, error)
	GetBlockSummary(ctx context.Context, hash string) (*btcjson.GetBlockVerboseResult, error)
	GetRawTransaction(ctx context.Context, txid string) (*btcjson.TxRawResult, error)
	GetBlockTransaction(ctx context.Context, txid, blockHash string) (*btcjson.TxRawResult, error)
	ListUnspent(ctx context.Context, address string) ([]btcjson.ListUnspentResult, error)
	ListTransactions(ctx context.Context, count int) ([]btcjson.ListTransactionsResult, error)
	Wallet() string
}

// Env is what a query runs against.
type Env struct {
	Node   Node
	Mapper Mapper
	// Net is used to validate addresses; nil skips local validation.
	Net *chaincfg.Params
}

// Query is one user lookup. Run issues the node calls and maps the result.
type Query interface {
	Kind() Kind
	Input() string
	Run(ctx context.Context, env Env) (Result, error)
}

// InputError rejects malformed input before any node call.
type InputError struct {
	Lookup Kind
	Input  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s input %q: %s", e.Lookup, e.Input, e.Reason)
}

func (e *InputError) Kind() rpc.Kind { return rpc.KindInvalidInput }

// HeightError is a well-formed height the node has no block for yet. Core
// answers getblockhash past the tip with RPC_INVALID_PARAMETER.
type HeightError struct {
	Height int64
	Err    error
}

func (e *HeightError) Error() string {
	return fmt.Sprintf("getblockhash %d: %v", e.Height, e.Err)
}

func (e *HeightError) Unwrap() error { return e.Err }

func (e *HeightError) Kind() rpc.Kind { return rpc.KindNotFound }

// TransactionQuery looks up a transaction by id with getrawtransaction.
type TransactionQuery struct {
	TxID string
}

func (q TransactionQuery) Kind() Kind    { return KindTransaction }
func (q TransactionQuery) Input() string { return q.TxID }

func (q TransactionQuery) Run(ctx context.Context, env Env) (Result, error) {
	txid := strings.TrimSpace(q.TxID)
	if txid == "" {
		return nil, ErrBlankQuery
	}
	if !isHash(txid) {
		return nil, &InputError{Lookup: KindTransaction, Input: txid, Reason: "expected 64 hex characters"}
	}
	return lookupTransaction(ctx, env, txid)
}

// BlockQuery looks up a block by height (all digits) or by hash.
type BlockQuery struct {
	Locator string
}

func (q BlockQuery) Kind() Kind    { return KindBlock }
func (q BlockQuery) Input() string { return q.Locator }

func (q BlockQuery) Run(ctx context.Context, env Env) (Result, error) {
	locator := strings.TrimSpace(q.Locator)
	switch {
	case locator == "":
		return nil, ErrBlankQuery
	case isHash(locator):
		return lookupBlockByHash(ctx, env, locator)
	case isDigits(locator):
		height, err := strconv.ParseInt(locator, 10, 64)
		if err != nil {
			return nil, &InputError{Lookup: KindBlock, Input: locator, Reason: "height out of range"}
		}
		return lookupBlockByHeight(ctx, env, height)
	default:
		return nil, &InputError{Lookup: KindBlock, Input: locator, Reason: "expected a height or a 64 hex character hash"}
	}
}

// BalanceQuery sums the fixed wallet's unspent outputs for one address.
type BalanceQuery struct {
	Address string
}

func (q BalanceQuery) Kind() Kind    { return KindBalance }
func (q BalanceQuery) Input() string { return q.Address }

func (q BalanceQuery) Run(ctx context.Context, env Env) (Result, error) {
	address := strings.TrimSpace(q.Address)
	if address == "" {
		return nil, ErrBlankQuery
	}
	if err := validateAddress(address, env.Net); err != nil {
		return nil, &InputError{Lookup: KindBalance, Input: address, Reason: err.Error()}
	}
	return lookupBalance(ctx, env, address)
}

// SearchQuery backs the unified search box. A 64 hex string is a
// transaction id or, failing that, a block hash; other digit strings are a
// block height and anything else is an address.
type SearchQuery struct {
	Text string
}

func (q SearchQuery) Kind() Kind    { return KindSearch }
func (q SearchQuery) Input() string { return q.Text }

func (q SearchQuery) Run(ctx context.Context, env Env) (Result, error) {
	text := strings.TrimSpace(q.Text)
	switch {
	case text == "":
		return nil, ErrBlankQuery
	case isHash(text):
		result, err := lookupTransaction(ctx, env, text)
		if rpc.Classify(err) == rpc.KindNotFound {
			return lookupBlockByHash(ctx, env, text)
		}
		return result, err
	case isDigits(text):
		return BlockQuery{Locator: text}.Run(ctx, env)
	default:
		if err := validateAddress(text, env.Net); err != nil {
			return nil, &InputError{Lookup: KindSearch, Input: text, Reason: "not a block height, hash, transaction id or address"}
		}
		return lookupBalance(ctx, env, text)
	}
}

// NewQuery builds the query for an explicit lookup kind.
func NewQuery(kind Kind, input string) (Query, error) {
	switch kind {
	case KindTransaction:
		return TransactionQuery{TxID: input}, nil
	case KindBlock:
		return BlockQuery{Locator: input}, nil
	case KindBalance:
		return BalanceQuery{Address: input}, nil
	case KindSearch, "":
		return SearchQuery{Text: input}, nil
	default:
		return nil, fmt.Errorf("unknown lookup kind %q", kind)
	}
}

// IsBlank reports whether q carries no usable input.
func IsBlank(q Query) bool {
	return q == nil || strings.TrimSpace(q.Input()) == ""
}

func lookupTransaction(ctx context.Context, env Env, txid string) (Result, error) {
	raw, err := env.Node.GetRawTransaction(ctx, txid)
	if err != nil {
		return nil, fmt.Errorf("getrawtransaction %s: %w", txid, err)
	}
	return env.Mapper.MapTransaction(raw), nil
}

// lookupBlockByHeight resolves the hash first; if that fails getblock is never sent.
func lookupBlockByHeight(ctx context.Context, env Env, height int64) (Result, error) {
	hash, err := env.Node.GetBlockHash(ctx, height)
	var rpcErr *rpc.RPCError
	if errors.As(err, &rpcErr) && rpcErr.Code == btcjson.ErrRPCInvalidParameter {
		return nil, &HeightError{Height: height, Err: err}
	}
	if err != nil {
		return nil, fmt.Errorf("getblockhash %d: %w", height, err)
	}
	return lookupBlockByHash(ctx, env, hash)
}

func lookupBlockByHash(ctx context.Context, env Env, hash string) (Result, error) {
	raw, err := env.Node.GetBlock(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("getblock %s: %w", hash, err)
	}
	return env.Mapper.MapBlock(raw), nil
}

func lookupBalance(ctx context.Context, env Env, address string) (Result, error) {
	utxos, err := env.Node.ListUnspent(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("listunspent %s: %w", address, err)
	}
	return env.Mapper.MapBalance(address, env.Node.Wallet(), utxos), nil
}

func validateAddress(address string, net *chaincfg.Params) error {
	if net == nil {
		return nil
	}
	decoded, err := btcutil.DecodeAddress(address, net)
	if err != nil {
		return errors.New("not a valid address")
	}
	if !decoded.IsForNet(net) {
		return fmt.Errorf("address is not for %s", net.Name)
	}
	return nil
}

func isHash(s string) bool {
	if len(s) != 2*chainhash.HashSize {
		return false
	}
	_, err := chainhash.NewHashFromStr(s)
	return err == nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
