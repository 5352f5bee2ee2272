package explorer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brewgator/block-explorer/internal/bitcoin"
	"github.com/brewgator/block-explorer/internal/rpc"
	"github.com/brewgator/block-explorer/internal/testutils"
)

var (
	testTxID      = strings.Repeat("ab", 32)
	testBlockHash = "00000000000000000002a7c4c1e48d76c5a37902165a270156b7a8d72728a054"
	testAddress   = "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"
)

func newTestEnv(t *testing.T) (Env, *testutils.FakeNode) {
	t.Helper()
	node := testutils.NewFakeNode(t)
	root := rpc.NewClient(rpc.Config{
		URL:      node.URL(),
		User:     testutils.FakeUser,
		Password: testutils.FakePassword,
	}, nil, nil)
	t.Cleanup(root.Close)

	return Env{
		Node:   bitcoin.NewClientFromRPC(root, "tracker_watchonly"),
		Mapper: NewMapper(NewFormatter("", nil)),
		Net:    &chaincfg.MainNetParams,
	}, node
}

func blockReply(hash string, height int64, txCount int) testutils.NodeReply {
	txs := make([]map[string]interface{}, txCount)
	for i := range txs {
		txs[i] = map[string]interface{}{"txid": fmt.Sprintf("%064x", i)}
	}
	return testutils.NodeReply{Result: map[string]interface{}{
		"hash":              hash,
		"height":            height,
		"confirmations":     1,
		"time":              1736603700,
		"size":              1048576,
		"previousblockhash": "prev",
		"tx":                txs,
	}}
}

func TestBlockQueryByHeight(t *testing.T) {
	env, node := newTestEnv(t)
	node.Handle("getblockhash", func(params []json.RawMessage) testutils.NodeReply {
		assert.Equal(t, int64(807455), testutils.ParamInt(params, 0))
		return testutils.NodeReply{Result: "h1"}
	})
	node.Handle("getblock", func(params []json.RawMessage) testutils.NodeReply {
		assert.Equal(t, "h1", testutils.ParamString(params, 0))
		assert.Equal(t, int64(2), testutils.ParamInt(params, 1))
		return blockReply("h1", 807455, 2300)
	})

	result, err := BlockQuery{Locator: "807455"}.Run(context.Background(), env)
	require.NoError(t, err)

	block, ok := result.(*BlockView)
	require.True(t, ok, "expected *BlockView, got %T", result)
	assert.Equal(t, int64(807455), block.Height)
	assert.Equal(t, "h1", block.Hash)
	assert.Equal(t, 2300, block.TxCount)
	assert.Equal(t, int64(1048576), block.SizeBytes)
	assert.Equal(t, "2025-01-11 13:55:00", block.TimeText)
	assert.Equal(t, []string{"getblockhash", "getblock"}, node.Methods())
}

func TestBlockQueryHashFailureSkipsGetBlock(t *testing.T) {
	env, node := newTestEnv(t)
	node.Reply("getblockhash", testutils.NodeReply{Code: -32603, Message: "Internal error"})

	_, err := BlockQuery{Locator: "807455"}.Run(context.Background(), env)
	require.Error(t, err)
	assert.Equal(t, rpc.KindServerFault, rpc.Classify(err))
	assert.Equal(t, []string{"getblockhash"}, node.Methods())
}

func TestBlockQueryHeightPastTipIsNotFound(t *testing.T) {
	env, node := newTestEnv(t)
	node.Reply("getblockhash", testutils.NodeReply{Code: -8, Message: "Block height out of range"})

	q := BlockQuery{Locator: "999999999"}
	_, err := q.Run(context.Background(), env)
	require.Error(t, err)

	var heightErr *HeightError
	require.ErrorAs(t, err, &heightErr)
	assert.Equal(t, int64(999999999), heightErr.Height)
	assert.Equal(t, rpc.KindNotFound, rpc.Classify(err))
	assert.Equal(t, `No block found for "999999999".`, UserMessage(q, err))
	assert.Equal(t, []string{"getblockhash"}, node.Methods())
}

func TestBlockQueryByHash(t *testing.T) {
	env, node := newTestEnv(t)
	node.Reply("getblock", blockReply(testBlockHash, 800000, 3))

	result, err := BlockQuery{Locator: "  " + testBlockHash + " "}.Run(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, 3, result.(*BlockView).TxCount)
	assert.Equal(t, []string{"getblock"}, node.Methods())
}

func TestBlockQueryAllDigitHashIsAHash(t *testing.T) {
	env, node := newTestEnv(t)
	hash := strings.Repeat("0", 60) + "1234"
	node.Reply("getblock", blockReply(hash, 1, 1))

	_, err := BlockQuery{Locator: hash}.Run(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, []string{"getblock"}, node.Methods())
}

func TestInvalidInputMakesNoCall(t *testing.T) {
	tests := []struct {
		name  string
		query Query
	}{
		{"short txid", TransactionQuery{TxID: "deadbeef"}},
		{"non-hex txid", TransactionQuery{TxID: strings.Repeat("zz", 32)}},
		{"block words", BlockQuery{Locator: "latest"}},
		{"negative height", BlockQuery{Locator: "-1"}},
		{"bad address", BalanceQuery{Address: "not-an-address"}},
		{"testnet address on mainnet", BalanceQuery{Address: "mipcBbFg9gMiCh81Kj8tqqdgoZub1ZJRfn"}},
		{"search garbage", SearchQuery{Text: "hello world"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env, node := newTestEnv(t)

			_, err := tc.query.Run(context.Background(), env)
			require.Error(t, err)

			var inputErr *InputError
			assert.ErrorAs(t, err, &inputErr)
			assert.Equal(t, rpc.KindInvalidInput, rpc.Classify(err))
			assert.Empty(t, node.Calls())
		})
	}
}

func TestTransactionQuery(t *testing.T) {
	env, node := newTestEnv(t)
	node.Handle("getrawtransaction", func(params []json.RawMessage) testutils.NodeReply {
		assert.Equal(t, testTxID, testutils.ParamString(params, 0))
		assert.Equal(t, int64(1), testutils.ParamInt(params, 1))
		return testutils.NodeReply{Result: map[string]interface{}{
			"txid":          testTxID,
			"blockhash":     testBlockHash,
			"confirmations": 6,
			"blocktime":     1736603700,
			"vout": []map[string]interface{}{
				{"value": 0.5, "n": 0},
				{"value": 0.25, "n": 1},
			},
		}}
	})

	result, err := TransactionQuery{TxID: testTxID}.Run(context.Background(), env)
	require.NoError(t, err)

	tx := result.(*TransactionView)
	assert.Equal(t, testTxID, tx.TxID)
	assert.Equal(t, "0.75", tx.TotalAmount.String())
	assert.Equal(t, "2025-01-11 13:55:00", tx.TimeText)
}

func TestTransactionQueryServerFault(t *testing.T) {
	env, node := newTestEnv(t)
	node.Reply("getrawtransaction", testutils.NodeReply{Code: -32603, Message: "Internal error 500"})

	q := TransactionQuery{TxID: testTxID}
	_, err := q.Run(context.Background(), env)
	require.Error(t, err)
	assert.Equal(t, rpc.KindServerFault, rpc.Classify(err))
	assert.Contains(t, UserMessage(q, err), testTxID)
}

func TestBalanceQuery(t *testing.T) {
	env, node := newTestEnv(t)
	node.Handle("listunspent", func(params []json.RawMessage) testutils.NodeReply {
		return testutils.NodeReply{Result: []map[string]interface{}{
			{"txid": "u1", "vout": 0, "address": testAddress, "amount": 0.5},
			{"txid": "u2", "vout": 1, "address": testAddress, "amount": 0.25},
		}}
	})

	result, err := BalanceQuery{Address: testAddress}.Run(context.Background(), env)
	require.NoError(t, err)

	balance := result.(*BalanceView)
	assert.Equal(t, "0.75", balance.BalanceBTC.String())
	assert.Equal(t, 2, balance.UTXOCount)
	assert.Equal(t, "tracker_watchonly", balance.WalletLabel)

	calls := node.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "/wallet/tracker_watchonly", calls[0].Path)
}

func TestBalanceQueryNoUTXOs(t *testing.T) {
	env, node := newTestEnv(t)
	node.Reply("listunspent", testutils.NodeReply{Result: []interface{}{}})

	result, err := BalanceQuery{Address: testAddress}.Run(context.Background(), env)
	require.NoError(t, err)
	assert.True(t, result.(*BalanceView).BalanceBTC.IsZero())
	assert.Equal(t, 0, result.(*BalanceView).UTXOCount)
}

func TestBalanceQuerySkipsValidationWithoutNet(t *testing.T) {
	env, node := newTestEnv(t)
	env.Net = nil
	node.Reply("listunspent", testutils.NodeReply{Result: []interface{}{}})

	_, err := BalanceQuery{Address: "anything"}.Run(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, []string{"listunspent"}, node.Methods())
}

func TestSearchQueryFallsBackToBlockHash(t *testing.T) {
	env, node := newTestEnv(t)
	node.Reply("getrawtransaction", testutils.NodeReply{Code: -5, Message: "No such mempool or blockchain transaction"})
	node.Reply("getblock", blockReply(testBlockHash, 800000, 2))

	result, err := SearchQuery{Text: testBlockHash}.Run(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, KindBlock, result.ResultKind())
	assert.Equal(t, []string{"getrawtransaction", "getblock"}, node.Methods())
}

func TestSearchQueryDoesNotFallBackOnServerFault(t *testing.T) {
	env, node := newTestEnv(t)
	node.Reply("getrawtransaction", testutils.NodeReply{Code: -1, Message: "boom"})

	_, err := SearchQuery{Text: testTxID}.Run(context.Background(), env)
	require.Error(t, err)
	assert.Equal(t, []string{"getrawtransaction"}, node.Methods())
}

func TestSearchQueryRoutesByShape(t *testing.T) {
	env, node := newTestEnv(t)
	node.Reply("getblockhash", testutils.NodeReply{Result: "h1"})
	node.Reply("getblock", blockReply("h1", 1, 1))
	node.Reply("listunspent", testutils.NodeReply{Result: []interface{}{}})

	result, err := SearchQuery{Text: "1"}.Run(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, KindBlock, result.ResultKind())

	result, err = SearchQuery{Text: testAddress}.Run(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, KindBalance, result.ResultKind())

	assert.Equal(t, []string{"getblockhash", "getblock", "listunspent"}, node.Methods())
}

func TestNewQuery(t *testing.T) {
	q, err := NewQuery(KindBlock, "1")
	require.NoError(t, err)
	assert.Equal(t, BlockQuery{Locator: "1"}, q)

	q, err = NewQuery("", "x")
	require.NoError(t, err)
	assert.Equal(t, KindSearch, q.Kind())

	_, err = NewQuery("mempool", "x")
	assert.Error(t, err)
}

func TestIsBlank(t *testing.T) {
	assert.True(t, IsBlank(nil))
	assert.True(t, IsBlank(TransactionQuery{}))
	assert.True(t, IsBlank(BlockQuery{Locator: " \t\n"}))
	assert.False(t, IsBlank(SearchQuery{Text: "1"}))
}

func TestUserMessage(t *testing.T) {
	q := TransactionQuery{TxID: testTxID}

	notFound := &rpc.RPCError{Code: -5, Message: "No such mempool or blockchain transaction"}
	assert.Equal(t, fmt.Sprintf("No transaction found for %q.", testTxID), UserMessage(q, notFound))

	invalid := &InputError{Lookup: KindBalance, Input: "x", Reason: "bad"}
	assert.Equal(t, `"x" is not a valid address.`, UserMessage(BalanceQuery{Address: "x"}, invalid))

	network := &rpc.TransportError{Method: "getrawtransaction", Err: context.DeadlineExceeded}
	assert.Contains(t, UserMessage(q, network), "could not be reached")
}
