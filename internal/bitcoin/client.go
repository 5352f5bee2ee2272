package bitcoin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcjson"

	"github.com/brewgator/block-explorer/internal/rpc"
)

const (
	// listunspent bounds: include unconfirmed outputs, no upper confirmation cap
	minConf = 0
	maxConf = 9999999
)

// Client exposes the handful of Bitcoin Core RPCs the explorer needs,
// decoded into btcjson result types. Chain calls go to the node root; wallet
// calls (listunspent, listtransactions) go to the fixed watch-only wallet.
type Client struct {
	chain      rpc.Caller
	wallet     rpc.Caller
	walletName string
}

// NewClient wraps a node-level caller and a wallet-scoped caller.
func NewClient(chain, wallet rpc.Caller, walletName string) *Client {
	return &Client{
		chain:      chain,
		wallet:     wallet,
		walletName: walletName,
	}
}

// NewClientFromRPC derives the wallet caller from root via WithWallet.
func NewClientFromRPC(root *rpc.Client, walletName string) *Client {
	return NewClient(root, root.WithWallet(walletName), walletName)
}

// Wallet returns the wallet label balance lookups are scoped to.
func (c *Client) Wallet() string {
	return c.walletName
}

// GetBlockCount returns the height of the most-work chain tip.
func (c *Client) GetBlockCount(ctx context.Context) (int64, error) {
	var count int64
	if err := call(ctx, c.chain, &count, "getblockcount"); err != nil {
		return 0, err
	}
	return count, nil
}

// GetBlockHash returns the hash of the block at height.
func (c *Client) GetBlockHash(ctx context.Context, height int64) (string, error) {
	var hash string
	if err := call(ctx, c.chain, &hash, "getblockhash", height); err != nil {
		return "", err
	}
	return hash, nil
}

// GetBlock returns a block with fully decoded transactions (verbosity 2).
func (c *Client) GetBlock(ctx context.Context, hash string) (*btcjson.GetBlockVerboseTxResult, error) {
	var block btcjson.GetBlockVerboseTxResult
	if err := call(ctx, c.chain, &block, "getblock", hash, 2); err != nil {
		return nil, err
	}
	return &block, nil
}

// GetBlockSummary returns a block with transaction ids only (verbosity 1),
// which is all the latest-blocks table needs.
func (c *Client) GetBlockSummary(ctx context.Context, hash string) (*btcjson.GetBlockVerboseResult, error) {
	var block btcjson.GetBlockVerboseResult
	if err := call(ctx, c.chain, &block, "getblock", hash, 1); err != nil {
		return nil, err
	}
	return &block, nil
}

// GetRawTransaction returns a decoded transaction. Requires txindex=1 for
// transactions outside the mempool and wallet.
func (c *Client) GetRawTransaction(ctx context.Context, txid string) (*btcjson.TxRawResult, error) {
	var tx btcjson.TxRawResult
	if err := call(ctx, c.chain, &tx, "getrawtransaction", txid, 1); err != nil {
		return nil, err
	}
	return &tx, nil
}

// GetBlockTransaction returns a transaction known to be in blockHash. Naming
// the block lets Core find it without txindex.
func (c *Client) GetBlockTransaction(ctx context.Context, txid, blockHash string) (*btcjson.TxRawResult, error) {
	var tx btcjson.TxRawResult
	if err := call(ctx, c.chain, &tx, "getrawtransaction", txid, 1, blockHash); err != nil {
		return nil, err
	}
	return &tx, nil
}

// ListUnspent returns the wallet's unspent outputs paying address.
// Note: the address must be imported into the wallet to be visible.
func (c *Client) ListUnspent(ctx context.Context, address string) ([]btcjson.ListUnspentResult, error) {
	var utxos []btcjson.ListUnspentResult
	if err := call(ctx, c.wallet, &utxos, "listunspent", minConf, maxConf, []string{address}); err != nil {
		return nil, err
	}
	return utxos, nil
}

// ListTransactions returns the wallet's most recent count transactions,
// watch-only included, oldest first as Core orders them.
func (c *Client) ListTransactions(ctx context.Context, count int) ([]btcjson.ListTransactionsResult, error) {
	var txs []btcjson.ListTransactionsResult
	if err := call(ctx, c.wallet, &txs, "listtransactions", "*", count, 0, true); err != nil {
		return nil, err
	}
	return txs, nil
}

func call(ctx context.Context, caller rpc.Caller, out interface{}, method string, params ...interface{}) error {
	raw, err := caller.Call(ctx, method, params...)
	if err != nil {
		return err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return fmt.Errorf("%w: %s", ErrEmptyResult, method)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &rpc.DecodeError{Method: method, Err: err}
	}
	return nil
}
