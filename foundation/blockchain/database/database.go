// Package database handles the lower level support for the blockchain: the
// transaction and block types, the block hash, proof of work, validation of
// the chain, and the storage interface the chain is persisted through.
package database
