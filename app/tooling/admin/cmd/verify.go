package cmd

import (
	"errors"
	"fmt"
	"os"
	"path"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/blockchain/storage/boltdb"
	"github.com/ardanlabs/powledger/foundation/blockchain/storage/disk"
	"github.com/spf13/cobra"
)

var (
	storageKind string
	dbPath      string
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Validate a stored chain without a running node",
	Long: "Reads every block from the storage a node writes to and checks the " +
		"hash of each block and the link to its parent. The node should be " +
		"stopped while this runs.",
	RunE: func(cmd *cobra.Command, args []string) error {
		strg, err := openStorage(storageKind, dbPath)
		if err != nil {
			return err
		}
		defer strg.Close()

		blocks, err := database.ReadAllBlocks(strg)
		if err != nil {
			return fmt.Errorf("reading blocks: %w", err)
		}

		pending, err := strg.ReadTxs()
		if err != nil {
			return fmt.Errorf("reading pending transactions: %w", err)
		}

		ev := func(v string, args ...any) {
			log.Infow(fmt.Sprintf(v, args...))
		}

		err = database.ValidateChain(blocks, ev)
		switch {
		case errors.Is(err, database.ErrIntegrity):
			fmt.Fprintf(cmd.OutOrStdout(), "Blockchain is NOT valid! %s\n", err)
			return err

		case err != nil:
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Blockchain is valid: blocks[%d] pending[%d]\n", len(blocks), len(pending))

		return nil
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().StringVarP(&storageKind, "storage", "s", "disk", "Storage used by the node: disk|bolt.")
	verifyCmd.Flags().StringVarP(&dbPath, "db-path", "d", "zblock/", "Path to the node storage.")
}

// openStorage opens the storage the same way the node does. The storage
// must already exist so a wrong path is not mistaken for an empty chain.
func openStorage(kind string, dbPath string) (database.Storage, error) {
	switch kind {
	case "disk":
		if err := mustExist(dbPath); err != nil {
			return nil, err
		}
		return disk.New(dbPath)

	case "bolt":
		file := path.Join(dbPath, "ledger.db")
		if err := mustExist(file); err != nil {
			return nil, err
		}
		return boltdb.New(file)
	}

	return nil, fmt.Errorf("unknown storage %q, expecting disk or bolt", kind)
}

// mustExist returns an error if nothing exists at the path.
func mustExist(name string) error {
	if _, err := os.Stat(name); err != nil {
		return fmt.Errorf("opening storage %q: %w", name, err)
	}
	return nil
}
