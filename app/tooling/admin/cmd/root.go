// Package cmd contains the admin commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/ardanlabs/powledger/foundation/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	nodeURL string
	log     *zap.SugaredLogger
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&nodeURL, "url", "u", "http://localhost:8080", "Url of the node.")
}

var rootCmd = &cobra.Command{
	Use:           "admin",
	Short:         "Administer a proof of work ledger",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		log, err = logger.New("ADMIN")
		return err
	},
}

// Execute runs the command named on the command line.
func Execute(build string) {
	rootCmd.Version = build

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		os.Exit(1)
	}
}
