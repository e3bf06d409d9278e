package database

import (
	"fmt"
)

// Tx is the transactional information between two parties.
type Tx struct {
	Sender   string `json:"sender"`   // Identifier of the party sending the amount.
	Receiver string `json:"receiver"` // Identifier of the party receiving the amount.
	Amount   int64  `json:"amount"`   // Opaque amount. Sign and sufficiency are not checked.
}

// NewTx constructs a new transaction.
func NewTx(sender string, receiver string, amount int64) Tx {
	return Tx{
		Sender:   sender,
		Receiver: receiver,
		Amount:   amount,
	}
}

// Equals reports whether two transactions carry the same fields. Two equal
// transactions can't be pending in the mempool at the same time.
func (tx Tx) Equals(otherTx Tx) bool {
	return tx == otherTx
}

// UniqueKey returns a key that is the same for transactions that are equal.
func (tx Tx) UniqueKey() string {
	return fmt.Sprintf("%q:%q:%d", tx.Sender, tx.Receiver, tx.Amount)
}

// String implements the fmt.Stringer interface for logging.
func (tx Tx) String() string {
	return fmt.Sprintf("Transaction from %s to %s for %d", tx.Sender, tx.Receiver, tx.Amount)
}
