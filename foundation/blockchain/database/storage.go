package database

import "errors"

// ErrNotFound is returned by storage when a requested block doesn't exist.
var ErrNotFound = errors.New("block does not exist")

// ErrOutOfOrder is returned by storage when a block is written that is not
// the next block in the chain.
var ErrOutOfOrder = errors.New("block is out of order")

// Storage interface represents the behavior required to be implemented by any
// package providing support for persisting the chain and the pending
// transactions. Blocks are append only.
type Storage interface {
	Write(block Block) error
	GetBlock(num uint64) (Block, error)
	Count() (uint64, error)
	ForEach() Iterator
	InsertTx(tx Tx) error
	DeleteTxs(txs []Tx) error
	ReadTxs() ([]Tx, error)
	Close() error
}

// Iterator interface represents the behavior required to be implemented by any
// package providing support to iterate over the blocks in index order.
type Iterator interface {
	Next() (Block, error)
	Done() bool
}

// ReadAllBlocks uses the iterator to read every block in index order.
func ReadAllBlocks(storage Storage) ([]Block, error) {
	var blocks []Block

	iter := storage.ForEach()
	for block, err := iter.Next(); !iter.Done(); block, err = iter.Next() {
		if err != nil {
			return nil, err
		}

		blocks = append(blocks, block)
	}

	return blocks, nil
}

// DeleteTxsFrom returns the transactions in pending with one occurrence of
// each transaction in included removed. Storage implementations use this to
// delete exactly the transactions that were mined.
func DeleteTxsFrom(pending []Tx, included []Tx) []Tx {
	remove := make(map[Tx]int, len(included))
	for _, tx := range included {
		remove[tx]++
	}

	keep := make([]Tx, 0, len(pending))
	for _, tx := range pending {
		if remove[tx] > 0 {
			remove[tx]--
			continue
		}
		keep = append(keep, tx)
	}

	return keep
}
