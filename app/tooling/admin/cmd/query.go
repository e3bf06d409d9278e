package cmd

import (
	"fmt"
	"io"
	"net/http"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/spf13/cobra"
)

var chainCmd = &cobra.Command{
	Use:   "chain",
	Short: "Display the chain held by the node",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Chain   []database.Block `json:"chain"`
			Length  int              `json:"length"`
			IsValid bool             `json:"is_valid"`
		}
		if err := newClient(nodeURL, log).do(cmd.Context(), http.MethodGet, "/v1/chain", nil, &resp); err != nil {
			return fmt.Errorf("getting chain: %w", err)
		}

		printBlocks(cmd.OutOrStdout(), resp.Chain)
		fmt.Fprintf(cmd.OutOrStdout(), "Length: %d  Valid: %t\n", resp.Length, resp.IsValid)

		return nil
	},
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Display the transactions waiting to be mined",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Transactions []database.Tx `json:"pending_transactions"`
			Count        int           `json:"count"`
		}
		if err := newClient(nodeURL, log).do(cmd.Context(), http.MethodGet, "/v1/pending_transactions", nil, &resp); err != nil {
			return fmt.Errorf("getting pending transactions: %w", err)
		}

		for _, tx := range resp.Transactions {
			fmt.Fprintln(cmd.OutOrStdout(), tx)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Count: %d\n", resp.Count)

		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Ask the node to validate its chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Message string `json:"message"`
			Status  bool   `json:"status"`
		}
		if err := newClient(nodeURL, log).do(cmd.Context(), http.MethodGet, "/v1/validate", nil, &resp); err != nil {
			return fmt.Errorf("validating chain: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), resp.Message)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(chainCmd)
	rootCmd.AddCommand(pendingCmd)
	rootCmd.AddCommand(validateCmd)
}

// printBlocks writes one line per block followed by its transactions.
func printBlocks(w io.Writer, blocks []database.Block) {
	for _, b := range blocks {
		fmt.Fprintf(w, "Block: %d  Hash: %s  Prev: %s  Nonce: %d  TimeStamp: %d\n",
			b.Index, b.Hash, b.PrevHash, b.Nonce, b.TimeStamp)

		if b.Data.IsGenesis() {
			fmt.Fprintf(w, "    %s\n", database.GenesisMarker)
			continue
		}

		for _, tx := range b.Data.Trans() {
			fmt.Fprintf(w, "    %s\n", tx)
		}
	}
}
