// Package mempool maintains the mempool for the blockchain.
package mempool

import (
	"errors"
	"sync"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
)

// ErrDuplicate is returned when a transaction with the same fields is
// already pending.
var ErrDuplicate = errors.New("transaction already exists in mempool")

// Mempool represents a cache of pending transactions keyed by their fields
// and kept in the order they were added.
type Mempool struct {
	mu    sync.RWMutex
	pool  map[string]struct{}
	order []database.Tx
}

// New constructs a new mempool.
func New() *Mempool {
	return &Mempool{
		pool: make(map[string]struct{}),
	}
}

// Count returns the current number of transaction in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.order)
}

// Add appends a transaction to the mempool. A transaction equal to one that
// is already pending is rejected with ErrDuplicate.
func (mp *Mempool) Add(tx database.Tx) (int, error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	key := tx.UniqueKey()
	if _, exists := mp.pool[key]; exists {
		return len(mp.order), ErrDuplicate
	}

	mp.pool[key] = struct{}{}
	mp.order = append(mp.order, tx)

	return len(mp.order), nil
}

// Delete removes the specified transactions from the mempool. Transactions
// that are not pending are ignored, and transactions added after a copy was
// taken are never touched.
func (mp *Mempool) Delete(txs ...database.Tx) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	remove := make(map[string]struct{}, len(txs))
	for _, tx := range txs {
		key := tx.UniqueKey()
		if _, exists := mp.pool[key]; exists {
			remove[key] = struct{}{}
			delete(mp.pool, key)
		}
	}

	if len(remove) == 0 {
		return
	}

	keep := make([]database.Tx, 0, len(mp.order))
	for _, tx := range mp.order {
		if _, exists := remove[tx.UniqueKey()]; exists {
			continue
		}
		keep = append(keep, tx)
	}
	mp.order = keep
}

// Copy returns the pending transactions in the order they were added.
func (mp *Mempool) Copy() []database.Tx {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	cpy := make([]database.Tx, len(mp.order))
	copy(cpy, mp.order)
	return cpy
}
