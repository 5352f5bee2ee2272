package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/brewgator/block-explorer/internal/explorer"
)

func lookupCmd(use, short string, connect func() (*app, error), build func(string) explorer.Query) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := build(args[0])
			if explorer.IsBlank(q) {
				return errors.New("nothing to look up")
			}

			a, err := connect()
			if err != nil {
				return err
			}
			defer a.close()

			state := explorer.NewSession(a.env, explorer.WithLogger(a.logger)).Submit(cmd.Context(), q)
			if state.Status == explorer.StatusError {
				return errors.New(state.Error)
			}
			printState(cmd.OutOrStdout(), state)
			return nil
		},
	}
}

func latestCmd(connect func() (*app, error)) *cobra.Command {
	var size int

	cmd := &cobra.Command{
		Use:   "latest",
		Short: "Show the newest blocks and wallet transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := connect()
			if err != nil {
				return err
			}
			defer a.close()

			feed := explorer.NewFeed(a.env.Node, a.env.Mapper, explorer.FeedConfig{Size: size}, a.logger, nil)
			if err := feed.Refresh(cmd.Context()); err != nil {
				return err
			}
			printSnapshot(cmd.OutOrStdout(), a.env.Node.Wallet(), feed.Latest())
			return nil
		},
	}
	cmd.Flags().IntVarP(&size, "count", "n", 6, "number of blocks and transactions to show")
	return cmd
}

func printState(out io.Writer, state explorer.ViewState) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	switch {
	case state.Transaction != nil:
		tx := state.Transaction
		header(w, "🔎 Transaction")
		block := tx.BlockHash
		if block == "" {
			block = "unconfirmed"
		}
		fmt.Fprintf(w, "Transaction ID:\t%s\n", tx.TxID)
		fmt.Fprintf(w, "Block:\t%s\n", block)
		fmt.Fprintf(w, "Confirmations:\t%d\n", tx.Confirmations)
		fmt.Fprintf(w, "Time:\t%s\n", tx.TimeText)
		fmt.Fprintf(w, "Outputs:\t%d\n", tx.OutputCount)
		fmt.Fprintf(w, "Total:\t%s\n", explorer.FormatBTC(tx.TotalAmount))
	case state.Block != nil:
		b := state.Block
		header(w, fmt.Sprintf("🧱 Block %d", b.Height))
		size := explorer.NotAvailable
		if b.SizeBytes > 0 {
			size = fmt.Sprintf("%d bytes", b.SizeBytes)
		}
		fmt.Fprintf(w, "Hash:\t%s\n", b.Hash)
		fmt.Fprintf(w, "Confirmations:\t%d\n", b.Confirmations)
		fmt.Fprintf(w, "Time:\t%s\n", b.TimeText)
		fmt.Fprintf(w, "Transactions:\t%d\n", b.TxCount)
		fmt.Fprintf(w, "Size:\t%s\n", size)
	case state.Balance != nil:
		bal := state.Balance
		header(w, "💰 Address Balance")
		fmt.Fprintf(w, "Address:\t%s\n", bal.Address)
		fmt.Fprintf(w, "Wallet:\t%s\n", bal.WalletLabel)
		fmt.Fprintf(w, "Unspent outputs:\t%d\n", bal.UTXOCount)
		fmt.Fprintf(w, "Balance:\t%s\n", explorer.FormatBTC(bal.BalanceBTC))
	}
}

func printSnapshot(out io.Writer, wallet string, snap explorer.Snapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	header(w, fmt.Sprintf("🧱 Latest Blocks (tip %d)", snap.Height))
	fmt.Fprintln(w, "Height\tHash\tTime\tMiner\tTxs\tSize")
	for _, b := range snap.Blocks {
		miner := b.Miner
		if miner == "" {
			miner = explorer.NotAvailable
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\n", b.Height, explorer.Truncate(b.Hash), b.TimeText, miner, b.TxCount, b.Size)
	}

	fmt.Fprintln(w)
	header(w, fmt.Sprintf("💸 Latest Transactions (%s)", wallet))
	if len(snap.Transactions) == 0 {
		fmt.Fprintln(w, "No wallet transactions")
		return
	}
	fmt.Fprintln(w, "TxID\tCategory\tAmount\tConfirmations\tTime")
	for _, tx := range snap.Transactions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", explorer.Truncate(tx.TxID), tx.Category, explorer.FormatBTC(tx.Amount), tx.Confirmations, tx.TimeText)
	}
}

func header(w io.Writer, title string) {
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, strings.Repeat("━", 60))
}
