package database

import (
	"errors"
	"fmt"
)

// ErrIntegrity is matched by every error reporting a chain that has been
// modified after the fact.
var ErrIntegrity = errors.New("chain integrity violated")

// IntegrityError identifies the block that failed validation and why.
type IntegrityError struct {
	Index  uint64
	Reason string
}

// Error implements the error interface.
func (ie *IntegrityError) Error() string {
	return fmt.Sprintf("%s: blk[%d]: %s", ErrIntegrity, ie.Index, ie.Reason)
}

// Is allows errors.Is to match an IntegrityError against ErrIntegrity.
func (ie *IntegrityError) Is(target error) bool {
	return target == ErrIntegrity
}

// =============================================================================

// ValidateChain walks the blocks in index order starting with the block after
// genesis. Each block must hash to its stored hash and must reference the
// hash of the block before it. The genesis block has no predecessor and its
// own hash is not recalculated. The first failure is returned.
func ValidateChain(blocks []Block, ev EventHandler) error {
	if ev == nil {
		ev = func(string, ...any) {}
	}

	for i := 1; i < len(blocks); i++ {
		block := blocks[i]
		prevBlock := blocks[i-1]

		ev("database: ValidateChain: validate: blk[%d]: check: block hash matches block contents", block.Index)

		if hash := block.CalculateHash(); hash != block.Hash {
			return &IntegrityError{
				Index:  block.Index,
				Reason: fmt.Sprintf("block hash doesn't match contents, got %s, exp %s", block.Hash, hash),
			}
		}

		ev("database: ValidateChain: validate: blk[%d]: check: parent hash does match parent block", block.Index)

		if block.PrevHash != prevBlock.Hash {
			return &IntegrityError{
				Index:  block.Index,
				Reason: fmt.Sprintf("parent block hash doesn't match our known parent, got %s, exp %s", block.PrevHash, prevBlock.Hash),
			}
		}
	}

	return nil
}
