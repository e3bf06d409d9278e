package state

import (
	"errors"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
)

// ValidateChain reads the chain and checks every block after genesis against
// its own hash and its parent's hash. A chain that was modified returns an
// error matching database.ErrIntegrity. Any other error comes from storage.
func (s *State) ValidateChain() error {
	blocks, err := s.RetrieveChain()
	if err != nil {
		return err
	}

	return database.ValidateChain(blocks, database.EventHandler(s.evHandler))
}

// IsChainValid reports whether the chain passes validation. A storage error
// is reported as an invalid chain.
func (s *State) IsChainValid() bool {
	err := s.ValidateChain()
	if err != nil && !errors.Is(err, database.ErrIntegrity) {
		s.evHandler("state: IsChainValid: ERROR: %s", err)
	}

	return err == nil
}
