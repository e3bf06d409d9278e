package database

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ZeroHash is the previous hash recorded in the genesis block.
const ZeroHash = "0"

// EventHandler defines a function that is called when events
// occur in the processing of blocks.
type EventHandler func(v string, args ...any)

// =============================================================================

// Block represents a group of transactions batched together and linked to
// the block before it.
type Block struct {
	Index     uint64  `json:"index"`         // Position in the chain, starting at 0.
	PrevHash  string  `json:"previous_hash"` // Hash of the previous block, ZeroHash for genesis.
	Data      Payload `json:"data"`          // Genesis marker or the transactions in this block.
	TimeStamp uint64  `json:"timestamp"`     // Unix milliseconds when the block was constructed.
	Nonce     uint64  `json:"nonce"`         // Value identified to solve the hash solution.
	Hash      string  `json:"hash"`          // Hash of all the fields above.
}

// BlockOption customizes the construction of a block.
type BlockOption func(b *Block)

// WithTimeStamp sets the timestamp instead of using the current time.
func WithTimeStamp(timeStamp uint64) BlockOption {
	return func(b *Block) {
		b.TimeStamp = timeStamp
	}
}

// WithNonce sets the starting nonce.
func WithNonce(nonce uint64) BlockOption {
	return func(b *Block) {
		b.Nonce = nonce
	}
}

// WithHash sets the hash instead of calculating it. This is used when a
// block is read back from storage.
func WithHash(hash string) BlockOption {
	return func(b *Block) {
		b.Hash = hash
	}
}

// NewBlock constructs a block. Unless provided, the timestamp is set to the
// current time and the hash is calculated with the nonce as given. Nothing
// about the index or previous hash is validated here.
func NewBlock(index uint64, prevHash string, data Payload, options ...BlockOption) Block {
	b := Block{
		Index:    index,
		PrevHash: prevHash,
		Data:     data,
	}

	for _, option := range options {
		option(&b)
	}

	if b.TimeStamp == 0 {
		b.TimeStamp = uint64(time.Now().UTC().UnixMilli())
	}

	if b.Hash == "" {
		b.Hash = b.CalculateHash()
	}

	return b
}

// NewGenesisBlock constructs the first block of a chain. The genesis hash is
// calculated at nonce 0 and is never mined. Chains persisted with this rule
// depend on it, so the genesis block must not go through proof of work.
func NewGenesisBlock(options ...BlockOption) Block {
	return NewBlock(0, ZeroHash, GenesisPayload(), options...)
}

// hashFields is the fixed layout of the fields that are hashed.
type hashFields struct {
	Index     uint64 `json:"index"`
	PrevHash  string `json:"previous_hash"`
	Data      string `json:"data"`
	TimeStamp uint64 `json:"timestamp"`
	Nonce     uint64 `json:"nonce"`
}

// CalculateHash returns the lowercase hex encoded SHA-256 digest of the
// block's index, previous hash, data, timestamp and nonce. The stored Hash
// field is not part of the calculation.
func (b Block) CalculateHash() string {
	fields := hashFields{
		Index:     b.Index,
		PrevHash:  b.PrevHash,
		Data:      b.Data.Canonical(),
		TimeStamp: b.TimeStamp,
		Nonce:     b.Nonce,
	}

	data, err := json.Marshal(fields)
	if err != nil {
		return ""
	}

	hash := sha256.Sum256(data)
	return common.Bytes2Hex(hash[:])
}

// Mine does the work of finding a nonce that produces a hash with the
// specified number of leading zeros. The nonce starts at its current value
// and is incremented by 1 for each attempt. Pointer semantics are being used
// since a nonce is being discovered. Mining stops with the context error if
// the context is cancelled before a solution is found.
func (b *Block) Mine(ctx context.Context, difficulty uint, ev EventHandler) error {
	if ev == nil {
		ev = func(string, ...any) {}
	}

	ev("database: Mine: MINING: started: blk[%d]", b.Index)
	defer ev("database: Mine: MINING: completed: blk[%d]", b.Index)

	// The hash must reflect the current fields. The previous hash may have
	// been replaced since the block was constructed.
	b.Hash = b.CalculateHash()

	target := strings.Repeat("0", int(difficulty))

	var attempts uint64
	for !strings.HasPrefix(b.Hash, target) {
		attempts++
		if attempts%1_000_000 == 0 {
			ev("database: Mine: MINING: attempts[%d]", attempts)
		}

		// Were we cancelled trying to solve the problem.
		if attempts%1024 == 0 && ctx.Err() != nil {
			ev("database: Mine: MINING: CANCELLED: blk[%d]", b.Index)
			return ctx.Err()
		}

		b.Nonce++
		b.Hash = b.CalculateHash()
	}

	ev("database: Mine: MINING: SOLVED: blk[%d]: nonce[%d]: hash[%s]: attempts[%d]", b.Index, b.Nonce, b.Hash, attempts)

	return nil
}

// IsHashSolved checks the hash to make sure it starts with the
// specified number of 0's.
func IsHashSolved(difficulty uint, hash string) bool {
	if int(difficulty) > len(hash) {
		return false
	}

	return strings.HasPrefix(hash, strings.Repeat("0", int(difficulty)))
}
