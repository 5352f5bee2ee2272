package explorer

import (
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/shopspring/decimal"
)

// Result is one of *TransactionView, *BlockView or *BalanceView.
type Result interface {
	ResultKind() Kind
}

// TransactionView is a display-ready transaction. TotalAmount is the sum of
// output values only; it ignores inputs and fees.
type TransactionView struct {
	TxID          string          `json:"txid"`
	BlockHash     string          `json:"block_hash,omitempty"`
	Confirmations uint64          `json:"confirmations"`
	Time          *time.Time      `json:"time,omitempty"`
	TimeText      string          `json:"time_text"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	OutputCount   int             `json:"output_count"`
}

func (*TransactionView) ResultKind() Kind { return KindTransaction }

// BlockView is a display-ready block. SizeBytes is zero when the node omits it.
type BlockView struct {
	Hash          string    `json:"hash"`
	Height        int64     `json:"height"`
	Confirmations int64     `json:"confirmations"`
	Time          time.Time `json:"time"`
	TimeText      string    `json:"time_text"`
	TxCount       int       `json:"tx_count"`
	SizeBytes     int64     `json:"size_bytes,omitempty"`
	PreviousHash  string    `json:"previous_hash,omitempty"`
}

func (*BlockView) ResultKind() Kind { return KindBlock }

// BalanceView is the summed unspent outputs of one address in one wallet.
// A zero balance is still a result.
type BalanceView struct {
	Address     string          `json:"address"`
	WalletLabel string          `json:"wallet_label"`
	BalanceBTC  decimal.Decimal `json:"balance_btc"`
	UTXOCount   int             `json:"utxo_count"`
}

func (*BalanceView) ResultKind() Kind { return KindBalance }

// BlockSummary is one row of the latest-blocks table.
type BlockSummary struct {
	Height   int64  `json:"height"`
	Hash     string `json:"hash"`
	TimeText string `json:"time_text"`
	TxCount  int    `json:"tx_count"`
	Size     int64  `json:"size_bytes,omitempty"`
	Miner    string `json:"miner,omitempty"`
}

// WalletTxView is one row of the latest-transactions table.
type WalletTxView struct {
	TxID          string          `json:"txid"`
	Address       string          `json:"address,omitempty"`
	Category      string          `json:"category"`
	Amount        decimal.Decimal `json:"amount"`
	Confirmations int64           `json:"confirmations"`
	TimeText      string          `json:"time_text"`
}

// Mapper turns raw node payloads into views. It has no side effects.
type Mapper struct {
	Format Formatter
}

func NewMapper(f Formatter) Mapper {
	return Mapper{Format: f}
}

func (m Mapper) MapTransaction(raw *btcjson.TxRawResult) *TransactionView {
	values := make([]float64, 0, len(raw.Vout))
	for _, out := range raw.Vout {
		values = append(values, out.Value)
	}

	// Core reports blocktime for confirmed transactions and time for both.
	epoch := raw.Time
	if epoch == 0 {
		epoch = raw.Blocktime
	}

	return &TransactionView{
		TxID:          raw.Txid,
		BlockHash:     raw.BlockHash,
		Confirmations: raw.Confirmations,
		Time:          unixTime(epoch),
		TimeText:      m.Format.FormatTimestamp(epoch),
		TotalAmount:   SumAmounts(values),
		OutputCount:   len(raw.Vout),
	}
}

func (m Mapper) MapBlock(raw *btcjson.GetBlockVerboseTxResult) *BlockView {
	view := &BlockView{
		Hash:          raw.Hash,
		Height:        raw.Height,
		Confirmations: raw.Confirmations,
		TimeText:      m.Format.FormatTimestamp(raw.Time),
		TxCount:       len(raw.Tx),
		SizeBytes:     int64(raw.Size),
		PreviousHash:  raw.PreviousHash,
	}
	if t := unixTime(raw.Time); t != nil {
		view.Time = *t
	}
	return view
}

func (m Mapper) MapBalance(address, wallet string, utxos []btcjson.ListUnspentResult) *BalanceView {
	amounts := make([]float64, 0, len(utxos))
	for _, u := range utxos {
		amounts = append(amounts, u.Amount)
	}
	return &BalanceView{
		Address:     address,
		WalletLabel: wallet,
		BalanceBTC:  SumAmounts(amounts),
		UTXOCount:   len(utxos),
	}
}

func (m Mapper) MapBlockSummary(raw *btcjson.GetBlockVerboseResult) BlockSummary {
	return BlockSummary{
		Height:   raw.Height,
		Hash:     raw.Hash,
		TimeText: m.Format.FormatTimestamp(raw.Time),
		TxCount:  len(raw.Tx),
		Size:     int64(raw.Size),
	}
}

func (m Mapper) MapWalletTx(raw btcjson.ListTransactionsResult) WalletTxView {
	epoch := raw.BlockTime
	if epoch == 0 {
		epoch = raw.Time
	}
	return WalletTxView{
		TxID:          raw.TxID,
		Address:       raw.Address,
		Category:      raw.Category,
		Amount:        decimal.NewFromFloat(raw.Amount),
		Confirmations: raw.Confirmations,
		TimeText:      m.Format.FormatTimestamp(epoch),
	}
}
