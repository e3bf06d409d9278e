package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/metrics"
)

// ErrNoTransactions is returned when a block is requested to be created
// and there are no transactions in the mempool.
var ErrNoTransactions = errors.New("no transactions in mempool")

// =============================================================================

// MineNewBlock takes the transactions currently in the mempool and mines
// them into the next block. With an empty mempool nothing is done and
// ErrNoTransactions is returned. Only the transactions that were included
// in the block are removed from the mempool, and only once the block has
// been written to storage.
func (s *State) MineNewBlock(ctx context.Context) (database.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evHandler("state: MineNewBlock: MINING: check mempool count")

	s.txMu.Lock()
	trans := s.mempool.Copy()
	s.txMu.Unlock()

	if len(trans) == 0 {
		return database.Block{}, ErrNoTransactions
	}

	count, err := s.storage.Count()
	if err != nil {
		return database.Block{}, fmt.Errorf("counting blocks: %w", err)
	}

	latest, err := s.latestBlock()
	if err != nil {
		return database.Block{}, err
	}

	s.evHandler("state: MineNewBlock: MINING: construct block: blk[%d]: txs[%d]", count, len(trans))

	block := database.NewBlock(count, latest.Hash, database.TransPayload(trans))

	block, err = s.addBlock(ctx, block)
	if err != nil {
		return database.Block{}, err
	}

	s.evHandler("state: MineNewBlock: MINING: remove mined transactions from mempool")

	s.removeMinedTxs(trans)

	return block, nil
}

// removeMinedTxs removes the transactions included in a block from the
// mempool and from storage.
func (s *State) removeMinedTxs(trans []database.Tx) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mempool.Delete(trans...)

	// The block is already part of the chain. Failing to remove the stored
	// copies only means they come back as pending after a restart.
	if err := s.storage.DeleteTxs(trans); err != nil {
		s.evHandler("state: MineNewBlock: MINING: WARNING: removing stored txs: %s", err)
	}

	metrics.MempoolTransactions.Set(float64(s.mempool.Count()))
}

// AddBlock links the block to the latest block in the chain, mines it, and
// writes it to storage. The previous hash provided with the block is
// replaced. Nothing is written if mining is cancelled or fails.
func (s *State) AddBlock(ctx context.Context, block database.Block) (database.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.addBlock(ctx, block)
}

// addBlock performs the work of AddBlock. It assumes the mining lock is held.
func (s *State) addBlock(ctx context.Context, block database.Block) (database.Block, error) {
	latest, err := s.latestBlock()
	if err != nil {
		return database.Block{}, err
	}

	block.PrevHash = latest.Hash

	s.evHandler("state: addBlock: MINING: perform POW: blk[%d]: difficulty[%d]", block.Index, s.difficulty)

	// Attempt to solve the POW puzzle. This can be cancelled.
	t := time.Now()
	if err := block.Mine(ctx, s.difficulty, database.EventHandler(s.evHandler)); err != nil {
		return database.Block{}, fmt.Errorf("mining block %d: %w", block.Index, err)
	}
	metrics.MiningDuration.Observe(time.Since(t).Seconds())

	// Just check one more time we were not cancelled.
	if ctx.Err() != nil {
		return database.Block{}, ctx.Err()
	}

	s.evHandler("state: addBlock: write to storage: blk[%d]: hash[%s]", block.Index, block.Hash)

	if err := s.storage.Write(block); err != nil {
		return database.Block{}, fmt.Errorf("writing block %d: %w", block.Index, err)
	}

	metrics.BlocksMined.Inc()
	metrics.ChainLength.Set(float64(block.Index + 1))

	return block, nil
}
