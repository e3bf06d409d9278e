package cmd

import (
	"fmt"
	"net/http"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/spf13/cobra"
)

var (
	sender   string
	receiver string
	amount   int64
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a transaction to the node",
	RunE: func(cmd *cobra.Command, args []string) error {
		req := struct {
			Sender   string `json:"sender"`
			Receiver string `json:"receiver"`
			Amount   int64  `json:"amount"`
		}{
			Sender:   sender,
			Receiver: receiver,
			Amount:   amount,
		}

		var resp struct {
			Message     string      `json:"message"`
			Transaction database.Tx `json:"transaction"`
		}
		if err := newClient(nodeURL, log).do(cmd.Context(), http.MethodPost, "/v1/transaction", req, &resp); err != nil {
			return fmt.Errorf("submitting transaction: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", resp.Message, resp.Transaction)

		return nil
	},
}

var mineCmd = &cobra.Command{
	Use:   "mine",
	Short: "Mine the pending transactions into a new block",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Message string         `json:"message"`
			Block   database.Block `json:"block"`
		}
		if err := newClient(nodeURL, log).do(cmd.Context(), http.MethodPost, "/v1/mine", nil, &resp); err != nil {
			return fmt.Errorf("mining: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
		printBlocks(cmd.OutOrStdout(), []database.Block{resp.Block})

		return nil
	},
}

func init() {
	rootCmd.AddCommand(submitCmd)
	submitCmd.Flags().StringVarP(&sender, "sender", "s", "", "Sender of the transaction.")
	submitCmd.Flags().StringVarP(&receiver, "receiver", "r", "", "Receiver of the transaction.")
	submitCmd.Flags().Int64VarP(&amount, "amount", "a", 0, "Amount to transfer.")
	submitCmd.MarkFlagRequired("sender")
	submitCmd.MarkFlagRequired("receiver")
	submitCmd.MarkFlagRequired("amount")

	rootCmd.AddCommand(mineCmd)
}
