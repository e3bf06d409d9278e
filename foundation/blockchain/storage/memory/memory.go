// Package memory implements the ability to read and write blocks and
// pending transactions to memory using slices.
package memory

import (
	"sync"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
)

// Memory represents the serialization implementation for reading and storing
// blocks in memory using a slice. This implements the database.Storage
// interface.
type Memory struct {
	mu     sync.RWMutex
	blocks []database.Block
	txs    []database.Tx
}

// New constructs an Memory value for use.
func New() (*Memory, error) {
	return &Memory{}, nil
}

// Close in this implementation has nothing to do since everything
// is in memory.
func (m *Memory) Close() error {
	return nil
}

// Write takes the specified block and stores it in memory.
func (m *Memory) Write(block database.Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if uint64(len(m.blocks)) != block.Index {
		return database.ErrOutOfOrder
	}

	m.blocks = append(m.blocks, block)

	return nil
}

// GetBlock searches the blockchain to locate and return the contents of
// the specified block by number.
func (m *Memory) GetBlock(num uint64) (database.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if num >= uint64(len(m.blocks)) {
		return database.Block{}, database.ErrNotFound
	}

	return m.blocks[num], nil
}

// Count returns the number of blocks stored.
func (m *Memory) Count() (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return uint64(len(m.blocks)), nil
}

// ForEach returns an iterator to walk through all the blocks
// starting with block number 0.
func (m *Memory) ForEach() database.Iterator {
	return &memoryIterator{storage: m}
}

// InsertTx stores a pending transaction.
func (m *Memory) InsertTx(tx database.Tx) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.txs = append(m.txs, tx)
	return nil
}

// DeleteTxs removes the specified pending transactions.
func (m *Memory) DeleteTxs(txs []database.Tx) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.txs = database.DeleteTxsFrom(m.txs, txs)
	return nil
}

// ReadTxs returns the pending transactions in the order they were inserted.
func (m *Memory) ReadTxs() ([]database.Tx, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cpy := make([]database.Tx, len(m.txs))
	copy(cpy, m.txs)
	return cpy, nil
}

// =============================================================================

// memoryIterator represents the iteration implementation for walking
// through and reading blocks in memory. This implements the database
// Iterator interface.
type memoryIterator struct {
	storage *Memory // Access to the storage API.
	current uint64  // Current block number being iterated over.
	eoc     bool    // Represents the iterator is at the end of the chain.
}

// Next retrieves the next block from memory.
func (mi *memoryIterator) Next() (database.Block, error) {
	if mi.eoc {
		return database.Block{}, database.ErrNotFound
	}

	block, err := mi.storage.GetBlock(mi.current)
	if err != nil {
		mi.eoc = true
	}

	mi.current++

	return block, err
}

// Done returns the end of chain value.
func (mi *memoryIterator) Done() bool {
	return mi.eoc
}
