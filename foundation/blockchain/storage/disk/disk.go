// Package disk implements the ability to read and write blocks to disk
// with each block in its own file, plus a file for the pending transactions.
package disk

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strconv"
	"sync"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
)

// mempoolFile is the name of the file holding the pending transactions.
const mempoolFile = "mempool.json"

// Disk represents the serialization implementation for reading and storing
// blocks in their own separate files on disk. This implements the
// database.Storage interface.
type Disk struct {
	mu     sync.RWMutex
	dbPath string
	count  uint64
}

// New constructs a Disk value for use. The directory is created if it
// doesn't exist and the number of blocks already on disk is counted.
func New(dbPath string) (*Disk, error) {
	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("creating db path: %w", err)
	}

	d := Disk{dbPath: dbPath}

	for {
		_, err := os.Stat(d.getPath(d.count))
		if errors.Is(err, fs.ErrNotExist) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("counting blocks: %w", err)
		}
		d.count++
	}

	return &d, nil
}

// Close in this implementation has nothing to do since a new file is
// written to disk for each new block and then immediately closed.
func (d *Disk) Close() error {
	return nil
}

// Write takes the specified block and stores it on disk in a
// file labeled with the block number.
func (d *Disk) Write(block database.Block) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if block.Index != d.count {
		return database.ErrOutOfOrder
	}

	// Marshal the block for writing to disk in a more human readable format.
	data, err := json.MarshalIndent(block, "", "  ")
	if err != nil {
		return err
	}

	// Write the block under a temporary name and link it into place once it
	// is on disk, so a reader never opens a partial block file. An existing
	// block file is never overwritten.
	tmp := d.getPath(block.Index) + ".tmp"
	defer os.Remove(tmp)

	if err := writeSynced(tmp, data); err != nil {
		return err
	}

	if err := os.Link(tmp, d.getPath(block.Index)); err != nil {
		return err
	}

	d.count++

	return nil
}

// GetBlock searches the blockchain on disk to locate and return the
// contents of the specified block by number.
func (d *Disk) GetBlock(num uint64) (database.Block, error) {
	d.mu.RLock()
	count := d.count
	d.mu.RUnlock()

	// Blocks at or past the count are not part of the chain yet.
	if num >= count {
		return database.Block{}, database.ErrNotFound
	}

	// Open the block file for the specified number.
	f, err := os.OpenFile(d.getPath(num), os.O_RDONLY, 0600)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return database.Block{}, database.ErrNotFound
		}
		return database.Block{}, err
	}
	defer f.Close()

	// Decode the contents of the block.
	var block database.Block
	if err := json.NewDecoder(f).Decode(&block); err != nil {
		return database.Block{}, fmt.Errorf("decoding block %d: %w", num, err)
	}

	return block, nil
}

// Count returns the number of blocks on disk.
func (d *Disk) Count() (uint64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.count, nil
}

// ForEach returns an iterator to walk through all the blocks
// starting with block number 0.
func (d *Disk) ForEach() database.Iterator {
	return &diskIterator{disk: d}
}

// InsertTx stores a pending transaction.
func (d *Disk) InsertTx(tx database.Tx) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	txs, err := d.readTxs()
	if err != nil {
		return err
	}

	return d.writeTxs(append(txs, tx))
}

// DeleteTxs removes the specified pending transactions.
func (d *Disk) DeleteTxs(txs []database.Tx) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	pending, err := d.readTxs()
	if err != nil {
		return err
	}

	return d.writeTxs(database.DeleteTxsFrom(pending, txs))
}

// ReadTxs returns the pending transactions in the order they were inserted.
func (d *Disk) ReadTxs() ([]database.Tx, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.readTxs()
}

// =============================================================================

// getPath forms the path to the specified block.
func (d *Disk) getPath(blockNum uint64) string {
	name := strconv.FormatUint(blockNum, 10)
	return path.Join(d.dbPath, fmt.Sprintf("%s.json", name))
}

// writeSynced creates the named file and flushes the data to disk.
func writeSynced(name string, data []byte) error {
	f, err := os.OpenFile(name, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return err
	}

	return f.Sync()
}

// readTxs reads the pending transaction file. A missing file means there
// are no pending transactions.
func (d *Disk) readTxs() ([]database.Tx, error) {
	data, err := os.ReadFile(path.Join(d.dbPath, mempoolFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var txs []database.Tx
	if err := json.Unmarshal(data, &txs); err != nil {
		return nil, fmt.Errorf("decoding pending transactions: %w", err)
	}

	return txs, nil
}

// writeTxs replaces the pending transaction file. The file is written to a
// temporary name first so a failed write leaves the previous file intact.
func (d *Disk) writeTxs(txs []database.Tx) error {
	if txs == nil {
		txs = []database.Tx{}
	}

	data, err := json.MarshalIndent(txs, "", "  ")
	if err != nil {
		return err
	}

	tmp := path.Join(d.dbPath, mempoolFile+".tmp")
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}

	return os.Rename(tmp, path.Join(d.dbPath, mempoolFile))
}

// =============================================================================

// diskIterator represents the iteration implementation for walking
// through and reading blocks on disk. This implements the database
// Iterator interface.
type diskIterator struct {
	disk    *Disk  // Access to the disk storage API.
	current uint64 // Current block number being iterated over.
	eoc     bool   // Represents the iterator is at the end of the chain.
}

// Next retrieves the next block from disk.
func (di *diskIterator) Next() (database.Block, error) {
	if di.eoc {
		return database.Block{}, database.ErrNotFound
	}

	block, err := di.disk.GetBlock(di.current)
	if errors.Is(err, database.ErrNotFound) {
		di.eoc = true
	}

	di.current++

	return block, err
}

// Done returns the end of chain value.
func (di *diskIterator) Done() bool {
	return di.eoc
}
