package explorer

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brewgator/block-explorer/internal/testutils"
)

func serveChain(node *testutils.FakeNode, height int64) {
	node.Reply("getblockcount", testutils.NodeReply{Result: height})
	node.Handle("getblockhash", func(params []json.RawMessage) testutils.NodeReply {
		return testutils.NodeReply{Result: fmt.Sprintf("hash-%d", testutils.ParamInt(params, 0))}
	})
	node.Handle("getblock", func(params []json.RawMessage) testutils.NodeReply {
		var h int64
		_, _ = fmt.Sscanf(testutils.ParamString(params, 0), "hash-%d", &h)
		return testutils.NodeReply{Result: map[string]interface{}{
			"hash":   testutils.ParamString(params, 0),
			"height": h,
			"time":   1736603700 + h*600,
			"size":   1000 + h,
			"tx":     []string{"a", "b"},
		}}
	})
	node.Handle("getrawtransaction", func(params []json.RawMessage) testutils.NodeReply {
		return testutils.NodeReply{Result: map[string]interface{}{
			"txid":      testutils.ParamString(params, 0),
			"blockhash": testutils.ParamString(params, 2),
			"vin":       []map[string]interface{}{{"coinbase": "031f510c2f4632506f6f6c2f", "sequence": 0}},
		}}
	})
}

func TestFeedRefresh(t *testing.T) {
	env, node := newTestEnv(t)
	serveChain(node, 100)
	node.Handle("listtransactions", func(params []json.RawMessage) testutils.NodeReply {
		assert.Equal(t, "*", testutils.ParamString(params, 0))
		assert.Equal(t, int64(3), testutils.ParamInt(params, 1))
		return testutils.NodeReply{Result: []map[string]interface{}{
			{"txid": "old", "address": testAddress, "category": "receive", "amount": 0.1, "time": 1736603000},
			{"txid": "new", "address": testAddress, "category": "send", "amount": -0.2, "time": 1736603700},
		}}
	})

	feed := NewFeed(env.Node, env.Mapper, FeedConfig{Size: 3}, nil, nil)
	require.NoError(t, feed.Refresh(context.Background()))

	snap := feed.Latest()
	assert.Equal(t, int64(100), snap.Height)
	assert.Empty(t, snap.Error)

	require.Len(t, snap.Blocks, 3)
	assert.Equal(t, []int64{100, 99, 98}, []int64{snap.Blocks[0].Height, snap.Blocks[1].Height, snap.Blocks[2].Height})
	assert.Equal(t, "hash-100", snap.Blocks[0].Hash)
	assert.Equal(t, 2, snap.Blocks[0].TxCount)
	assert.Equal(t, "F2Pool", snap.Blocks[0].Miner)

	var coinbaseCalls int
	for _, call := range node.Calls() {
		if call.Method == "getrawtransaction" {
			coinbaseCalls++
			assert.Equal(t, "a", testutils.ParamString(call.Params, 0))
		}
	}
	assert.Equal(t, 3, coinbaseCalls)

	require.Len(t, snap.Transactions, 2)
	assert.Equal(t, "new", snap.Transactions[0].TxID)
	assert.Equal(t, "-0.2", snap.Transactions[0].Amount.String())
	assert.Equal(t, "old", snap.Transactions[1].TxID)
}

func TestFeedShortChain(t *testing.T) {
	env, node := newTestEnv(t)
	serveChain(node, 1)
	node.Reply("listtransactions", testutils.NodeReply{Result: []interface{}{}})

	feed := NewFeed(env.Node, env.Mapper, FeedConfig{}, nil, nil)
	require.NoError(t, feed.Refresh(context.Background()))

	snap := feed.Latest()
	require.Len(t, snap.Blocks, 2)
	assert.Equal(t, int64(0), snap.Blocks[1].Height)
}

func TestFeedWalletFailureKeepsBlocks(t *testing.T) {
	env, node := newTestEnv(t)
	serveChain(node, 10)
	node.Reply("listtransactions", testutils.NodeReply{Code: -18, Message: "Requested wallet does not exist or is not loaded"})

	feed := NewFeed(env.Node, env.Mapper, FeedConfig{Size: 2}, nil, nil)
	require.NoError(t, feed.Refresh(context.Background()))

	snap := feed.Latest()
	assert.Len(t, snap.Blocks, 2)
	assert.Empty(t, snap.Transactions)
}

func TestFeedMinerIsBlankWhenCoinbaseFails(t *testing.T) {
	env, node := newTestEnv(t)
	serveChain(node, 10)
	node.Reply("getrawtransaction", testutils.NodeReply{Code: -5, Message: "No such transaction found in the provided block"})
	node.Reply("listtransactions", testutils.NodeReply{Result: []interface{}{}})

	feed := NewFeed(env.Node, env.Mapper, FeedConfig{Size: 2}, nil, nil)
	require.NoError(t, feed.Refresh(context.Background()))

	snap := feed.Latest()
	require.Len(t, snap.Blocks, 2)
	assert.Empty(t, snap.Blocks[0].Miner)
	assert.Empty(t, snap.Error)
}

func TestFeedFailureKeepsPreviousSnapshot(t *testing.T) {
	env, node := newTestEnv(t)
	serveChain(node, 10)
	node.Reply("listtransactions", testutils.NodeReply{Result: []interface{}{}})

	feed := NewFeed(env.Node, env.Mapper, FeedConfig{Size: 2}, nil, nil)
	require.NoError(t, feed.Refresh(context.Background()))

	node.Reply("getblockcount", testutils.NodeReply{Status: 503, RawBody: "Work queue depth exceeded"})
	require.Error(t, feed.Refresh(context.Background()))

	snap := feed.Latest()
	assert.Equal(t, int64(10), snap.Height)
	assert.Len(t, snap.Blocks, 2)
	assert.NotEmpty(t, snap.Error)
}

func TestFeedStartStop(t *testing.T) {
	env, node := newTestEnv(t)
	serveChain(node, 5)
	node.Reply("listtransactions", testutils.NodeReply{Result: []interface{}{}})

	feed := NewFeed(env.Node, env.Mapper, FeedConfig{Size: 1, Interval: 10 * time.Millisecond}, nil, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		feed.Start(context.Background())
	}()

	require.Eventually(t, func() bool {
		return feed.Latest().Height == 5
	}, time.Second, 5*time.Millisecond)

	feed.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("feed did not stop")
	}
}
