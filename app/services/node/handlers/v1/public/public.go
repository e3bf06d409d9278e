// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ardanlabs/powledger/business/sys/validate"
	"github.com/ardanlabs/powledger/business/web/errs"
	"github.com/ardanlabs/powledger/foundation/blockchain/mempool"
	"github.com/ardanlabs/powledger/foundation/blockchain/state"
	"github.com/ardanlabs/powledger/foundation/events"
	"github.com/ardanlabs/powledger/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of ledger endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Chain returns every block in the chain and whether the chain is valid.
func (h Handlers) Chain(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	blocks, err := h.State.RetrieveChain()
	if err != nil {
		return err
	}

	resp := chainInfo{
		Chain:   blocks,
		Length:  len(blocks),
		IsValid: h.State.IsChainValid(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Mine mines the pending transactions into a new block.
func (h Handlers) Mine(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	block, err := h.State.Worker.Mine(ctx)
	if err != nil {
		if errors.Is(err, state.ErrNoTransactions) {
			return errs.NewTrusted(errors.New("No transactions exist to mine"), http.StatusBadRequest)
		}
		return fmt.Errorf("mining block: %w", err)
	}

	resp := minedBlock{
		Message: "New block mined",
		Block:   block,
	}

	return web.Respond(ctx, w, resp, http.StatusCreated)
}

// SubmitTransaction adds a new transaction to the mempool.
func (h Handlers) SubmitTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var ntx NewTx
	if err := web.Decode(r, &ntx); err != nil {
		return errs.NewTrusted(errors.New("Invalid transaction data"), http.StatusBadRequest)
	}

	if err := validate.Check(ntx); err != nil {
		return err
	}

	tx := toDBTx(ntx)

	h.Log.Infow("submit tran", "traceid", v.TraceID, "sender", tx.Sender, "receiver", tx.Receiver, "amount", tx.Amount)

	if err := h.State.SubmitTransaction(tx); err != nil {
		if errors.Is(err, mempool.ErrDuplicate) {
			return errs.NewTrusted(errors.New("Transaction already exists in mempool"), http.StatusBadRequest)
		}
		return err
	}

	resp := submittedTx{
		Message:     "Transaction added successfully",
		Transaction: tx,
	}

	return web.Respond(ctx, w, resp, http.StatusCreated)
}

// Validate checks the integrity of the chain.
func (h Handlers) Validate(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	resp := validation{
		Message: "Blockchain is valid",
		Status:  true,
	}

	if err := h.State.ValidateChain(); err != nil {
		h.Log.Infow("validate", "traceid", web.GetTraceID(ctx), "result", err)
		resp = validation{
			Message: "Blockchain is NOT valid!",
			Status:  false,
		}
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Mempool returns the set of transactions waiting to be mined.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	trans := h.State.RetrieveMempool()

	resp := pending{
		Transactions: trans,
		Count:        len(trans),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	// Need this to handle CORS on the websocket.
	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	// This upgrades the HTTP connection to a websocket connection.
	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	// This provides a channel for receiving events from the blockchain.
	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	// Starting a ticker to send a ping message over the websocket.
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	// Block waiting for events from the blockchain or ticker.
	for {
		select {
		case msg, wd := <-ch:

			// If the channel is closed, release the websocket.
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return nil
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}

		case <-ctx.Done():
			return nil
		}
	}
}
