package state

import (
	"fmt"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/metrics"
)

// SubmitTransaction accepts a transaction for inclusion in a future block.
// A transaction equal to one already pending is rejected with
// mempool.ErrDuplicate and the mempool is left unchanged.
func (s *State) SubmitTransaction(tx database.Tx) error {
	s.evHandler("state: SubmitTransaction: tx[%s]", tx)

	if err := s.addTx(tx); err != nil {
		return err
	}

	if s.Worker != nil {
		s.Worker.SignalStartMining()
	}

	return nil
}

// addTx adds the transaction to the mempool and to storage. Mining can't
// take its snapshot or clear mined transactions in between.
func (s *State) addTx(tx database.Tx) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if _, err := s.mempool.Add(tx); err != nil {
		return err
	}

	if err := s.storage.InsertTx(tx); err != nil {
		s.mempool.Delete(tx)
		return fmt.Errorf("storing transaction: %w", err)
	}

	metrics.MempoolTransactions.Set(float64(s.mempool.Count()))

	return nil
}
