package explorer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/brewgator/block-explorer/internal/metrics"
)

const feedFetchLimit = 4

// Snapshot is the latest-blocks and latest-transactions data for the home page.
type Snapshot struct {
	Height       int64          `json:"height"`
	Blocks       []BlockSummary `json:"blocks"`
	Transactions []WalletTxView `json:"transactions"`
	UpdatedAt    time.Time      `json:"updated_at"`
	Error        string         `json:"error,omitempty"`
}

// FeedConfig sizes the feed and its polling interval.
type FeedConfig struct {
	Interval time.Duration
	Size     int
}

// Feed polls the node on a fixed interval for the newest blocks and wallet
// transactions. There is no backoff or jitter: a failed refresh keeps the
// previous data and records the error.
type Feed struct {
	node    Node
	mapper  Mapper
	config  FeedConfig
	logger  *zap.SugaredLogger
	metrics *metrics.Store

	mu     sync.RWMutex
	latest Snapshot

	ctx    context.Context
	cancel context.CancelFunc
}

func NewFeed(node Node, mapper Mapper, config FeedConfig, logger *zap.SugaredLogger, store *metrics.Store) *Feed {
	if config.Size <= 0 {
		config.Size = 6
	}
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Feed{
		node:    node,
		mapper:  mapper,
		config:  config,
		logger:  logger,
		metrics: store,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start refreshes immediately and then on every tick until ctx is done or
// Stop is called. It blocks.
func (f *Feed) Start(ctx context.Context) {
	f.logger.Infow("starting latest-blocks feed", "interval", f.config.Interval, "size", f.config.Size)

	f.refreshAndLog(ctx)

	ticker := time.NewTicker(f.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			f.refreshAndLog(ctx)
		case <-ctx.Done():
			f.logger.Info("latest-blocks feed stopped")
			return
		case <-f.ctx.Done():
			f.logger.Info("latest-blocks feed stopped")
			return
		}
	}
}

// Stop ends a running Start loop.
func (f *Feed) Stop() {
	f.cancel()
}

// Latest returns the most recent snapshot.
func (f *Feed) Latest() Snapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.latest
}

func (f *Feed) refreshAndLog(ctx context.Context) {
	if err := f.Refresh(ctx); err != nil {
		f.logger.Warnw("feed refresh failed", "error", err)
	}
}

// Refresh fetches one snapshot. Blocks are fetched with bounded concurrency;
// each block still needs getblockhash before its getblock, and its coinbase
// after.
func (f *Feed) Refresh(ctx context.Context) error {
	height, err := f.node.GetBlockCount(ctx)
	if err != nil {
		f.fail(err)
		return fmt.Errorf("getblockcount: %w", err)
	}

	n := f.config.Size
	if int64(n) > height+1 {
		n = int(height + 1)
	}
	blocks := make([]BlockSummary, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(feedFetchLimit)
	for i := 0; i < n; i++ {
		i := i
		h := height - int64(i)
		g.Go(func() error {
			hash, err := f.node.GetBlockHash(gctx, h)
			if err != nil {
				return fmt.Errorf("getblockhash %d: %w", h, err)
			}
			raw, err := f.node.GetBlockSummary(gctx, hash)
			if err != nil {
				return fmt.Errorf("getblock %s: %w", hash, err)
			}
			blocks[i] = f.mapper.MapBlockSummary(raw)
			blocks[i].Miner = f.miner(gctx, raw)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		f.fail(err)
		return err
	}

	var txs []WalletTxView
	raw, err := f.node.ListTransactions(ctx, f.config.Size)
	if err != nil {
		// the wallet is optional for the home page
		f.logger.Warnw("listtransactions failed", "wallet", f.node.Wallet(), "error", err)
	} else {
		txs = make([]WalletTxView, 0, len(raw))
		for i := len(raw) - 1; i >= 0; i-- {
			txs = append(txs, f.mapper.MapWalletTx(raw[i]))
		}
	}

	f.mu.Lock()
	f.latest = Snapshot{
		Height:       height,
		Blocks:       blocks,
		Transactions: txs,
		UpdatedAt:    time.Now(),
	}
	f.mu.Unlock()

	f.metrics.ObserveFeed(metrics.StatusOK)
	f.logger.Debugw("feed refreshed", "height", height, "blocks", len(blocks), "transactions", len(txs))
	return nil
}

// miner reads the pool tag from the block's coinbase. A failed lookup
// leaves it blank.
func (f *Feed) miner(ctx context.Context, block *btcjson.GetBlockVerboseResult) string {
	if len(block.Tx) == 0 {
		return ""
	}
	coinbase, err := f.node.GetBlockTransaction(ctx, block.Tx[0], block.Hash)
	if err != nil {
		f.logger.Debugw("coinbase lookup failed", "block", block.Hash, "error", err)
		return ""
	}
	if len(coinbase.Vin) == 0 {
		return ""
	}
	return MinerTag(coinbase.Vin[0].Coinbase)
}

func (f *Feed) fail(err error) {
	f.mu.Lock()
	f.latest.Error = err.Error()
	f.mu.Unlock()
	f.metrics.ObserveFeed("error")
}
