// Package boltdb implements the ability to read and write blocks and pending
// transactions to a BoltDB file. Keys are big endian numbers so the
// buckets are ordered by block number and by insertion.
package boltdb

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/boltdb/bolt"
)

// Set of buckets stored in the database file.
var (
	blocksBucket = []byte("blocks")
	txsBucket    = []byte("transactions")
)

// Bolt represents the serialization implementation for reading and storing
// blocks in a BoltDB file. This implements the database.Storage interface.
type Bolt struct {
	db *bolt.DB
}

// New opens or creates the database file and makes sure the buckets exist.
func New(dbPath string) (*Bolt, error) {
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt file: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{blocksBucket, txsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Bolt{db: db}, nil
}

// Close releases the database file.
func (b *Bolt) Close() error {
	return b.db.Close()
}

// Write stores the block under its block number. The block must be the
// next block in the chain.
func (b *Bolt) Write(block database.Block) error {
	data, err := json.Marshal(block)
	if err != nil {
		return err
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(blocksBucket)

		if count := nextKey(bkt); block.Index != count {
			return database.ErrOutOfOrder
		}

		return bkt.Put(itob(block.Index), data)
	})
}

// GetBlock locates and returns the specified block by number.
func (b *Bolt) GetBlock(num uint64) (database.Block, error) {
	var block database.Block

	err := b.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(blocksBucket).Get(itob(num))
		if data == nil {
			return database.ErrNotFound
		}

		if err := json.Unmarshal(data, &block); err != nil {
			return fmt.Errorf("decoding block %d: %w", num, err)
		}
		return nil
	})

	return block, err
}

// Count returns the number of blocks stored.
func (b *Bolt) Count() (uint64, error) {
	var count uint64

	err := b.db.View(func(tx *bolt.Tx) error {
		count = nextKey(tx.Bucket(blocksBucket))
		return nil
	})

	return count, err
}

// ForEach returns an iterator to walk through all the blocks
// starting with block number 0.
func (b *Bolt) ForEach() database.Iterator {
	return &boltIterator{storage: b}
}

// InsertTx stores a pending transaction after the ones already stored.
func (b *Bolt) InsertTx(dbTx database.Tx) error {
	data, err := json.Marshal(dbTx)
	if err != nil {
		return err
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(txsBucket)

		seq, err := bkt.NextSequence()
		if err != nil {
			return err
		}

		return bkt.Put(itob(seq), data)
	})
}

// DeleteTxs removes one stored occurrence of each specified transaction.
func (b *Bolt) DeleteTxs(dbTxs []database.Tx) error {
	remove := make(map[database.Tx]int, len(dbTxs))
	for _, dbTx := range dbTxs {
		remove[dbTx]++
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(txsBucket)

		var keys [][]byte
		err := bkt.ForEach(func(k, v []byte) error {
			var dbTx database.Tx
			if err := json.Unmarshal(v, &dbTx); err != nil {
				return fmt.Errorf("decoding pending transaction: %w", err)
			}

			if remove[dbTx] > 0 {
				remove[dbTx]--
				keys = append(keys, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range keys {
			if err := bkt.Delete(k); err != nil {
				return err
			}
		}

		return nil
	})
}

// ReadTxs returns the pending transactions in the order they were inserted.
func (b *Bolt) ReadTxs() ([]database.Tx, error) {
	var dbTxs []database.Tx

	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(txsBucket).ForEach(func(k, v []byte) error {
			var dbTx database.Tx
			if err := json.Unmarshal(v, &dbTx); err != nil {
				return fmt.Errorf("decoding pending transaction: %w", err)
			}

			dbTxs = append(dbTxs, dbTx)
			return nil
		})
	})

	return dbTxs, err
}

// =============================================================================

// boltIterator represents the iteration implementation for walking
// through and reading blocks in the database file. This implements the
// database Iterator interface.
type boltIterator struct {
	storage *Bolt  // Access to the bolt storage API.
	current uint64 // Current block number being iterated over.
	eoc     bool   // Represents the iterator is at the end of the chain.
}

// Next retrieves the next block from the database file.
func (bi *boltIterator) Next() (database.Block, error) {
	if bi.eoc {
		return database.Block{}, database.ErrNotFound
	}

	block, err := bi.storage.GetBlock(bi.current)
	if errors.Is(err, database.ErrNotFound) {
		bi.eoc = true
	}

	bi.current++

	return block, err
}

// Done returns the end of chain value.
func (bi *boltIterator) Done() bool {
	return bi.eoc
}

// =============================================================================

// itob returns an 8-byte big endian representation of v.
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// nextKey returns the number following the last key in the bucket, which is
// the number of blocks since block keys start at 0 with no gaps.
func nextKey(bkt *bolt.Bucket) uint64 {
	k, _ := bkt.Cursor().Last()
	if k == nil {
		return 0
	}

	return binary.BigEndian.Uint64(k) + 1
}
