package state

import (
	"errors"
	"fmt"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
)

// RetrieveLatestBlock returns a copy the block with the highest index.
func (s *State) RetrieveLatestBlock() (database.Block, error) {
	return s.latestBlock()
}

// RetrieveChain returns a copy of every block in index order.
func (s *State) RetrieveChain() ([]database.Block, error) {
	blocks, err := database.ReadAllBlocks(s.storage)
	if err != nil {
		return nil, fmt.Errorf("reading blocks: %w", err)
	}

	return blocks, nil
}

// RetrieveMempool returns a copy of the mempool in submission order.
func (s *State) RetrieveMempool() []database.Tx {
	return s.mempool.Copy()
}

// QueryMempoolLength returns the current length of the mempool.
func (s *State) QueryMempoolLength() int {
	return s.mempool.Count()
}

// QueryBlockCount returns the number of blocks in the chain.
func (s *State) QueryBlockCount() (uint64, error) {
	return s.storage.Count()
}

// RetrieveDifficulty returns the number of leading zeros a mined block
// hash must have.
func (s *State) RetrieveDifficulty() uint {
	return s.difficulty
}

// =============================================================================

// latestBlock reads the block with the highest index from storage.
func (s *State) latestBlock() (database.Block, error) {
	count, err := s.storage.Count()
	if err != nil {
		return database.Block{}, fmt.Errorf("counting blocks: %w", err)
	}

	if count == 0 {
		return database.Block{}, errors.New("chain has not been initialized")
	}

	block, err := s.storage.GetBlock(count - 1)
	if err != nil {
		return database.Block{}, fmt.Errorf("reading latest block %d: %w", count-1, err)
	}

	return block, nil
}
