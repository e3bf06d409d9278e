// Package state is the core API for the blockchain and implements all the
// business rules and processing.
package state

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/blockchain/mempool"
	"github.com/ardanlabs/powledger/foundation/metrics"
)

// MaxDifficulty is the number of hex characters in a block hash. No hash can
// have more leading zeros than this.
const MaxDifficulty = 64

// =============================================================================

// EventHandler defines a function that is called when events
// occur in the processing of persisting blocks.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package providing support for running mining operations.
type Worker interface {
	Shutdown()
	SignalStartMining()
	Mine(ctx context.Context) (database.Block, error)
}

// =============================================================================

// Config represents the configuration required to start
// the blockchain node.
type Config struct {
	Storage    database.Storage
	Difficulty uint
	EvHandler  EventHandler
}

// State manages the blockchain database.
type State struct {
	difficulty uint
	evHandler  EventHandler

	// mu serializes mining so only one block is built on top of the
	// latest block at a time. Submitting transactions never takes it.
	mu sync.Mutex

	// txMu makes adding a transaction to the mempool and to storage one
	// step with respect to mining taking its snapshot and clearing the
	// mined transactions. It is never held during proof of work.
	txMu sync.Mutex

	mempool *mempool.Mempool
	storage database.Storage

	Worker Worker
}

// New constructs a new blockchain for data management. If the storage holds
// no blocks, the genesis block is created and written. Pending transactions
// found in storage are loaded into the mempool.
func New(cfg Config) (*State, error) {
	if cfg.Storage == nil {
		return nil, errors.New("storage is required")
	}

	if cfg.Difficulty > MaxDifficulty {
		return nil, fmt.Errorf("difficulty %d is larger than the max of %d", cfg.Difficulty, MaxDifficulty)
	}

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	state := State{
		difficulty: cfg.Difficulty,
		evHandler:  ev,
		mempool:    mempool.New(),
		storage:    cfg.Storage,
	}

	if err := state.initialize(); err != nil {
		return nil, err
	}

	// Reload the transactions that were pending when the node last ran.
	txs, err := cfg.Storage.ReadTxs()
	if err != nil {
		return nil, fmt.Errorf("reading pending transactions: %w", err)
	}

	for _, tx := range txs {
		if _, err := state.mempool.Add(tx); err != nil {
			ev("state: New: WARNING: pending tx[%s]: %s", tx, err)
		}
	}

	count, err := cfg.Storage.Count()
	if err != nil {
		return nil, fmt.Errorf("counting blocks: %w", err)
	}

	metrics.ChainLength.Set(float64(count))
	metrics.MempoolTransactions.Set(float64(state.mempool.Count()))

	ev("state: New: blocks[%d]: pending txs[%d]: difficulty[%d]", count, state.mempool.Count(), cfg.Difficulty)

	// The Worker is not set here. The call to worker.Run will assign itself
	// and start everything up and running for the node.

	return &state, nil
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {

	// Make sure the database file is properly closed.
	defer func() {
		s.storage.Close()
	}()

	// Stop all blockchain writing activity.
	if s.Worker != nil {
		s.Worker.Shutdown()
	}

	return nil
}

// initialize writes the genesis block when the storage is empty.
func (s *State) initialize() error {
	count, err := s.storage.Count()
	if err != nil {
		return fmt.Errorf("counting blocks: %w", err)
	}

	if count > 0 {
		return nil
	}

	genesis := database.NewGenesisBlock()

	s.evHandler("state: initialize: write genesis block: hash[%s]", genesis.Hash)

	if err := s.storage.Write(genesis); err != nil {
		return fmt.Errorf("writing genesis block: %w", err)
	}

	return nil
}
