package public

import (
	"github.com/ardanlabs/powledger/foundation/blockchain/database"
)

// NewTx is what a client provides to submit a transaction. Amount is a
// pointer so a missing amount can be told apart from a zero amount.
type NewTx struct {
	Sender   string `json:"sender" validate:"required"`
	Receiver string `json:"receiver" validate:"required"`
	Amount   *int64 `json:"amount" validate:"required"`
}

// toDBTx converts the request into a ledger transaction.
func toDBTx(ntx NewTx) database.Tx {
	return database.NewTx(ntx.Sender, ntx.Receiver, *ntx.Amount)
}

// chainInfo is returned when the chain is requested.
type chainInfo struct {
	Chain   []database.Block `json:"chain"`
	Length  int              `json:"length"`
	IsValid bool             `json:"is_valid"`
}

// minedBlock is returned when a new block has been mined.
type minedBlock struct {
	Message string         `json:"message"`
	Block   database.Block `json:"block"`
}

// submittedTx is returned when a transaction has been accepted.
type submittedTx struct {
	Message     string      `json:"message"`
	Transaction database.Tx `json:"transaction"`
}

// validation is returned when the chain is validated.
type validation struct {
	Message string `json:"message"`
	Status  bool   `json:"status"`
}

// pending is returned when the mempool is requested.
type pending struct {
	Transactions []database.Tx `json:"pending_transactions"`
	Count        int           `json:"count"`
}
