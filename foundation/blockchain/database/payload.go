package database

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// GenesisMarker is stored as the data of the genesis block in place of
// a list of transactions.
const GenesisMarker = "Genesis Block"

// Payload is the data carried by a block. It is either the genesis marker
// or an ordered list of transactions, never both.
type Payload struct {
	genesis bool
	trans   []Tx
}

// GenesisPayload returns the payload for the genesis block.
func GenesisPayload() Payload {
	return Payload{genesis: true}
}

// TransPayload returns a payload holding a copy of the specified
// transactions in the order provided.
func TransPayload(trans []Tx) Payload {
	cpy := make([]Tx, len(trans))
	copy(cpy, trans)

	return Payload{trans: cpy}
}

// IsGenesis reports whether this is the genesis marker.
func (p Payload) IsGenesis() bool {
	return p.genesis
}

// Trans returns a copy of the transactions in block order. The genesis
// payload has no transactions.
func (p Payload) Trans() []Tx {
	cpy := make([]Tx, len(p.trans))
	copy(cpy, p.trans)
	return cpy
}

// Canonical returns the stable string form of the payload used when
// hashing a block. The same logical content always produces the same
// string.
func (p Payload) Canonical() string {
	if p.genesis {
		return GenesisMarker
	}

	trans := p.trans
	if trans == nil {
		trans = []Tx{}
	}

	// A slice of a struct with only string and integer fields can't fail
	// to marshal and the field order follows the struct definition.
	data, err := json.Marshal(trans)
	if err != nil {
		return ""
	}

	return string(data)
}

// MarshalJSON implements the json.Marshaler interface. The genesis marker
// is written as a string and transactions as an array.
func (p Payload) MarshalJSON() ([]byte, error) {
	if p.genesis {
		return json.Marshal(GenesisMarker)
	}

	trans := p.trans
	if trans == nil {
		trans = []Tx{}
	}

	return json.Marshal(trans)
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (p *Payload) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	if len(data) > 0 && data[0] == '"' {
		var marker string
		if err := json.Unmarshal(data, &marker); err != nil {
			return err
		}
		if marker != GenesisMarker {
			return fmt.Errorf("unknown block data marker %q", marker)
		}

		*p = GenesisPayload()
		return nil
	}

	var trans []Tx
	if err := json.Unmarshal(data, &trans); err != nil {
		return fmt.Errorf("decoding block transactions: %w", err)
	}

	*p = Payload{trans: trans}
	return nil
}
