// Package worker implements the mining workflow for the blockchain. Mining
// runs on a dedicated goroutine so the unbounded nonce search never blocks
// the callers handling transactions and queries.
package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/blockchain/state"
)

// ErrShutdown is returned when a mining request is made after the worker
// has been told to shut down.
var ErrShutdown = errors.New("worker is shutting down")

// =============================================================================

// Config represents the configuration of the mining worker.
type Config struct {

	// AutoMine starts a mining operation every time a transaction is
	// submitted. When false, blocks are only mined on request.
	AutoMine bool
}

// job represents a request to mine the next block.
type job struct {
	ctx    context.Context
	result chan result
}

// result represents the outcome of a mining job.
type result struct {
	block database.Block
	err   error
}

// Worker manages the POW workflows for the blockchain.
type Worker struct {
	state        *state.State
	autoMine     bool
	wg           sync.WaitGroup
	shut         chan struct{}
	startMining  chan bool
	cancelMining chan bool
	jobs         chan job
	evHandler    state.EventHandler
}

// Run creates a worker, registers the worker with the state package, and
// starts up all the background processes.
func Run(st *state.State, cfg Config, evHandler state.EventHandler) {
	if evHandler == nil {
		evHandler = func(string, ...any) {}
	}

	w := Worker{
		state:        st,
		autoMine:     cfg.AutoMine,
		shut:         make(chan struct{}),
		startMining:  make(chan bool, 1),
		cancelMining: make(chan bool, 1),
		jobs:         make(chan job),
		evHandler:    evHandler,
	}

	// Register this worker with the state package.
	st.Worker = &w

	// Load the set of operations we need to run.
	operations := []func(){
		w.miningOperations,
	}

	// Set waitgroup to match the number of G's we need for the set
	// of operations we have.
	g := len(operations)
	w.wg.Add(g)

	// We don't want to return until we know all the G's are up and running.
	hasStarted := make(chan bool)

	// Start all the operational G's.
	for _, op := range operations {
		go func(op func()) {
			defer w.wg.Done()
			hasStarted <- true
			op()
		}(op)
	}

	// Wait for the G's to report they are running.
	for i := 0; i < g; i++ {
		<-hasStarted
	}

	// Mine anything left over from the last time the node ran.
	if w.state.QueryMempoolLength() > 0 {
		w.SignalStartMining()
	}
}

// =============================================================================
// These methods implement the state.Worker interface.

// Shutdown terminates the goroutine performing work. Any mining operation
// in flight is cancelled.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	w.evHandler("worker: shutdown: signal cancel mining")
	w.SignalCancelMining()

	w.evHandler("worker: shutdown: terminate goroutines")
	close(w.shut)
	w.wg.Wait()
}

// SignalStartMining starts a mining operation when auto mining is on. If
// there is already a signal pending in the channel, just return since a
// mining operation will start.
func (w *Worker) SignalStartMining() {
	if !w.autoMine {
		return
	}

	select {
	case w.startMining <- true:
	default:
	}
	w.evHandler("worker: SignalStartMining: mining signaled")
}

// SignalCancelMining signals the G executing the runMiningOperation function
// to stop immediately.
func (w *Worker) SignalCancelMining() {
	select {
	case w.cancelMining <- true:
	default:
	}
	w.evHandler("worker: SignalCancelMining: MINING: CANCEL: signaled")
}

// Mine asks the mining goroutine to mine the pending transactions into the
// next block and waits for the result. Mining stops early if the context is
// cancelled or the worker shuts down.
func (w *Worker) Mine(ctx context.Context) (database.Block, error) {
	j := job{
		ctx:    ctx,
		result: make(chan result, 1),
	}

	select {
	case w.jobs <- j:
	case <-ctx.Done():
		return database.Block{}, ctx.Err()
	case <-w.shut:
		return database.Block{}, ErrShutdown
	}

	// The job runs with the caller's context so waiting here can't
	// outlive a cancellation by more than the time mining takes to notice.
	r := <-j.result
	return r.block, r.err
}

// =============================================================================

// isShutdown is used to test if a shutdown has been signaled.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}
