package state_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/blockchain/mempool"
	"github.com/ardanlabs/powledger/foundation/blockchain/state"
	"github.com/ardanlabs/powledger/foundation/blockchain/storage/memory"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// testDifficulty keeps the tests fast while still requiring real work.
const testDifficulty = 2

func ifErrFailNow(t *testing.T, err error) {
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
}

func newState(t *testing.T, strg database.Storage, ev state.EventHandler) *state.State {
	st, err := state.New(state.Config{
		Storage:    strg,
		Difficulty: testDifficulty,
		EvHandler:  ev,
	})
	ifErrFailNow(t, err)

	return st
}

// =============================================================================

func Test_Genesis(t *testing.T) {
	t.Log("Given the need to start a new chain.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen the storage is empty.", testID)
		{
			strg, err := memory.New()
			ifErrFailNow(t, err)

			st := newState(t, strg, nil)

			blocks, err := st.RetrieveChain()
			ifErrFailNow(t, err)

			if len(blocks) != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould have exactly one block: got %d", failed, testID, len(blocks))
			}
			t.Logf("\t%s\tTest %d:\tShould have exactly one block.", success, testID)

			genesis := blocks[0]
			if genesis.Index != 0 || genesis.PrevHash != "0" || !genesis.Data.IsGenesis() {
				t.Fatalf("\t%s\tTest %d:\tShould have a genesis block: %+v", failed, testID, genesis)
			}
			t.Logf("\t%s\tTest %d:\tShould have a genesis block.", success, testID)

			if genesis.Nonce != 0 || genesis.Hash != genesis.CalculateHash() {
				t.Fatalf("\t%s\tTest %d:\tShould hash the genesis block without mining it.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould hash the genesis block without mining it.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the storage already holds a chain.", testID)
		{
			strg, err := memory.New()
			ifErrFailNow(t, err)

			first := newState(t, strg, nil)
			genesis, err := first.RetrieveLatestBlock()
			ifErrFailNow(t, err)

			second := newState(t, strg, nil)
			count, err := second.QueryBlockCount()
			ifErrFailNow(t, err)

			latest, err := second.RetrieveLatestBlock()
			ifErrFailNow(t, err)

			if count != 1 || latest.Hash != genesis.Hash {
				t.Fatalf("\t%s\tTest %d:\tShould reuse the existing genesis block.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould reuse the existing genesis block.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the difficulty is impossible.", testID)
		{
			strg, err := memory.New()
			ifErrFailNow(t, err)

			_, err = state.New(state.Config{Storage: strg, Difficulty: state.MaxDifficulty + 1})
			if err == nil {
				t.Fatalf("\t%s\tTest %d:\tShould reject the difficulty.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould reject the difficulty.", success, testID)
		}
	}
}

func Test_MineAndValidate(t *testing.T) {
	t.Log("Given the need to mine pending transactions.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen mining two submitted transactions.", testID)
		{
			strg, err := memory.New()
			ifErrFailNow(t, err)

			st := newState(t, strg, nil)

			tx1 := database.NewTx("Jack", "Bob", 50)
			tx2 := database.NewTx("Charlie", "Jack", 30)

			ifErrFailNow(t, st.SubmitTransaction(tx1))
			ifErrFailNow(t, st.SubmitTransaction(tx2))

			block, err := st.MineNewBlock(context.Background())
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to mine a block: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to mine a block.", success, testID)

			count, err := st.QueryBlockCount()
			ifErrFailNow(t, err)
			if count != 2 || block.Index != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould have a chain of 2 with the new block at index 1: count %d, index %d", failed, testID, count, block.Index)
			}
			t.Logf("\t%s\tTest %d:\tShould have a chain of 2 with the new block at index 1.", success, testID)

			trans := block.Data.Trans()
			if len(trans) != 2 || trans[0] != tx1 || trans[1] != tx2 {
				t.Fatalf("\t%s\tTest %d:\tShould have both transactions in submission order: %v", failed, testID, trans)
			}
			t.Logf("\t%s\tTest %d:\tShould have both transactions in submission order.", success, testID)

			if !strings.HasPrefix(block.Hash, strings.Repeat("0", testDifficulty)) {
				t.Fatalf("\t%s\tTest %d:\tShould have a solved hash: %s", failed, testID, block.Hash)
			}
			t.Logf("\t%s\tTest %d:\tShould have a solved hash.", success, testID)

			blocks, err := st.RetrieveChain()
			ifErrFailNow(t, err)
			if blocks[1].PrevHash != blocks[0].Hash {
				t.Fatalf("\t%s\tTest %d:\tShould link the block to genesis.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould link the block to genesis.", success, testID)

			if st.QueryMempoolLength() != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould have an empty mempool: %d", failed, testID, st.QueryMempoolLength())
			}
			t.Logf("\t%s\tTest %d:\tShould have an empty mempool.", success, testID)

			stored, err := strg.ReadTxs()
			ifErrFailNow(t, err)
			if len(stored) != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould remove the stored pending transactions: %d", failed, testID, len(stored))
			}
			t.Logf("\t%s\tTest %d:\tShould remove the stored pending transactions.", success, testID)

			if !st.IsChainValid() {
				t.Fatalf("\t%s\tTest %d:\tShould have a valid chain.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould have a valid chain.", success, testID)

			_, err = st.MineNewBlock(context.Background())
			if !errors.Is(err, state.ErrNoTransactions) {
				t.Fatalf("\t%s\tTest %d:\tShould have nothing to mine: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould have nothing to mine.", success, testID)

			count, err = st.QueryBlockCount()
			ifErrFailNow(t, err)
			if count != 2 {
				t.Fatalf("\t%s\tTest %d:\tShould leave the chain length at 2: %d", failed, testID, count)
			}
			t.Logf("\t%s\tTest %d:\tShould leave the chain length at 2.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen a duplicate transaction is submitted.", testID)
		{
			strg, err := memory.New()
			ifErrFailNow(t, err)

			st := newState(t, strg, nil)

			tx := database.NewTx("Jack", "Bob", 50)
			ifErrFailNow(t, st.SubmitTransaction(tx))

			if err := st.SubmitTransaction(tx); !errors.Is(err, mempool.ErrDuplicate) {
				t.Fatalf("\t%s\tTest %d:\tShould reject the duplicate: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject the duplicate.", success, testID)

			stored, err := strg.ReadTxs()
			ifErrFailNow(t, err)
			if st.QueryMempoolLength() != 1 || len(stored) != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould keep one pending transaction.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould keep one pending transaction.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen a transaction is submitted while mining.", testID)
		{
			strg, err := memory.New()
			ifErrFailNow(t, err)

			late := database.NewTx("Bob", "Charlie", 10)

			var st *state.State
			var lateErr error
			ev := func(v string, args ...any) {
				if strings.HasPrefix(v, "database: Mine: MINING: started") && st.QueryMempoolLength() == 1 {
					lateErr = st.SubmitTransaction(late)
				}
			}
			st = newState(t, strg, ev)

			ifErrFailNow(t, st.SubmitTransaction(database.NewTx("Jack", "Bob", 50)))

			block, err := st.MineNewBlock(context.Background())
			ifErrFailNow(t, err)
			ifErrFailNow(t, lateErr)

			if len(block.Data.Trans()) != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould only mine the transactions pending at the start.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould only mine the transactions pending at the start.", success, testID)

			pending := st.RetrieveMempool()
			if len(pending) != 1 || pending[0] != late {
				t.Fatalf("\t%s\tTest %d:\tShould keep the transaction submitted while mining: %v", failed, testID, pending)
			}
			t.Logf("\t%s\tTest %d:\tShould keep the transaction submitted while mining.", success, testID)
		}
	}
}

func Test_Tampering(t *testing.T) {
	t.Log("Given the need to detect a modified chain.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen a mined block is changed in storage.", testID)
		{
			strg := &tamperStorage{}
			var err error
			strg.Memory, err = memory.New()
			ifErrFailNow(t, err)

			st := newState(t, strg, nil)

			for _, tx := range []database.Tx{database.NewTx("Jack", "Bob", 50), database.NewTx("Charlie", "Jack", 30)} {
				ifErrFailNow(t, st.SubmitTransaction(tx))
				_, err := st.MineNewBlock(context.Background())
				ifErrFailNow(t, err)
			}

			if !st.IsChainValid() {
				t.Fatalf("\t%s\tTest %d:\tShould start with a valid chain.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould start with a valid chain.", success, testID)

			strg.tamper = func(b *database.Block) {
				if b.Index == 1 {
					b.Data = database.TransPayload([]database.Tx{database.NewTx("Jack", "Bob", 5000)})
				}
			}

			err = st.ValidateChain()
			if !errors.Is(err, database.ErrIntegrity) || st.IsChainValid() {
				t.Fatalf("\t%s\tTest %d:\tShould detect the modified block: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould detect the modified block.", success, testID)
		}
	}
}

func Test_StorageFailure(t *testing.T) {
	t.Log("Given the need to handle storage failures.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen the mined block can't be written.", testID)
		{
			strg := &failingStorage{}
			var err error
			strg.Memory, err = memory.New()
			ifErrFailNow(t, err)

			st := newState(t, strg, nil)

			tx := database.NewTx("Jack", "Bob", 50)
			ifErrFailNow(t, st.SubmitTransaction(tx))

			strg.failWrite = true

			if _, err := st.MineNewBlock(context.Background()); !errors.Is(err, errStorage) {
				t.Fatalf("\t%s\tTest %d:\tShould return the storage error: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould return the storage error.", success, testID)

			pending := st.RetrieveMempool()
			if len(pending) != 1 || pending[0] != tx {
				t.Fatalf("\t%s\tTest %d:\tShould leave the transaction pending.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould leave the transaction pending.", success, testID)

			count, err := st.QueryBlockCount()
			ifErrFailNow(t, err)
			if count != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould not append a block: %d", failed, testID, count)
			}
			t.Logf("\t%s\tTest %d:\tShould not append a block.", success, testID)

			strg.failWrite = false

			block, err := st.MineNewBlock(context.Background())
			ifErrFailNow(t, err)
			if block.Index != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould mine the transaction once storage recovers.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould mine the transaction once storage recovers.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen a transaction can't be stored.", testID)
		{
			strg := &failingStorage{}
			var err error
			strg.Memory, err = memory.New()
			ifErrFailNow(t, err)

			st := newState(t, strg, nil)
			strg.failInsertTx = true

			if err := st.SubmitTransaction(database.NewTx("Jack", "Bob", 50)); !errors.Is(err, errStorage) {
				t.Fatalf("\t%s\tTest %d:\tShould return the storage error: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould return the storage error.", success, testID)

			if st.QueryMempoolLength() != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould not keep the transaction pending.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould not keep the transaction pending.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen mining is cancelled.", testID)
		{
			strg, err := memory.New()
			ifErrFailNow(t, err)

			st, err := state.New(state.Config{Storage: strg, Difficulty: state.MaxDifficulty})
			ifErrFailNow(t, err)
			ifErrFailNow(t, st.SubmitTransaction(database.NewTx("Jack", "Bob", 50)))

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			if _, err := st.MineNewBlock(ctx); !errors.Is(err, context.Canceled) {
				t.Fatalf("\t%s\tTest %d:\tShould stop with a cancel error: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould stop with a cancel error.", success, testID)

			if st.QueryMempoolLength() != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould leave the transaction pending.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould leave the transaction pending.", success, testID)
		}
	}
}

func Test_Reload(t *testing.T) {
	t.Log("Given the need to restart a node.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen transactions were pending at shutdown.", testID)
		{
			strg, err := memory.New()
			ifErrFailNow(t, err)

			first := newState(t, strg, nil)
			ifErrFailNow(t, first.SubmitTransaction(database.NewTx("Jack", "Bob", 50)))
			ifErrFailNow(t, first.SubmitTransaction(database.NewTx("Charlie", "Jack", 30)))

			second := newState(t, strg, nil)
			pending := second.RetrieveMempool()
			if len(pending) != 2 || pending[0].Sender != "Jack" || pending[1].Sender != "Charlie" {
				t.Fatalf("\t%s\tTest %d:\tShould reload the pending transactions in order: %v", failed, testID, pending)
			}
			t.Logf("\t%s\tTest %d:\tShould reload the pending transactions in order.", success, testID)
		}
	}
}

func Test_SubmitWhileMining(t *testing.T) {
	t.Log("Given the need to keep a mined transaction from coming back.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen mining starts while a transaction is being stored.", testID)
		{
			strg := &blockingStorage{
				entered: make(chan struct{}),
				release: make(chan struct{}),
			}
			var err error
			strg.Memory, err = memory.New()
			ifErrFailNow(t, err)

			st := newState(t, strg, nil)

			tx := database.NewTx("Jack", "Bob", 50)

			submitErr := make(chan error, 1)
			go func() {
				submitErr <- st.SubmitTransaction(tx)
			}()
			<-strg.entered

			type mineResult struct {
				block database.Block
				err   error
			}
			mined := make(chan mineResult, 1)
			go func() {
				block, err := st.MineNewBlock(context.Background())
				mined <- mineResult{block, err}
			}()

			select {
			case <-mined:
				t.Fatalf("\t%s\tTest %d:\tShould wait for the transaction to be stored.", failed, testID)
			case <-time.After(100 * time.Millisecond):
			}
			t.Logf("\t%s\tTest %d:\tShould wait for the transaction to be stored.", success, testID)

			close(strg.release)
			ifErrFailNow(t, <-submitErr)

			res := <-mined
			ifErrFailNow(t, res.err)

			trans := res.block.Data.Trans()
			if len(trans) != 1 || trans[0] != tx {
				t.Fatalf("\t%s\tTest %d:\tShould mine the transaction: %v", failed, testID, trans)
			}
			t.Logf("\t%s\tTest %d:\tShould mine the transaction.", success, testID)

			stored, err := strg.ReadTxs()
			ifErrFailNow(t, err)
			if len(stored) != 0 || st.QueryMempoolLength() != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould not keep the mined transaction as pending: stored %v", failed, testID, stored)
			}
			t.Logf("\t%s\tTest %d:\tShould not keep the mined transaction as pending.", success, testID)

			restarted := newState(t, strg, nil)
			if _, err := restarted.MineNewBlock(context.Background()); !errors.Is(err, state.ErrNoTransactions) {
				t.Fatalf("\t%s\tTest %d:\tShould have nothing to mine after a restart: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould have nothing to mine after a restart.", success, testID)
		}
	}
}

// =============================================================================

var errStorage = errors.New("storage unavailable")

// failingStorage fails writes on request.
type failingStorage struct {
	*memory.Memory
	failWrite    bool
	failInsertTx bool
}

func (fs *failingStorage) Write(block database.Block) error {
	if fs.failWrite {
		return errStorage
	}
	return fs.Memory.Write(block)
}

func (fs *failingStorage) InsertTx(tx database.Tx) error {
	if fs.failInsertTx {
		return errStorage
	}
	return fs.Memory.InsertTx(tx)
}

// blockingStorage holds the first InsertTx until released.
type blockingStorage struct {
	*memory.Memory
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (bs *blockingStorage) InsertTx(tx database.Tx) error {
	bs.once.Do(func() { close(bs.entered) })
	<-bs.release
	return bs.Memory.InsertTx(tx)
}

// tamperStorage modifies blocks as they are read back.
type tamperStorage struct {
	*memory.Memory
	tamper func(b *database.Block)
}

func (ts *tamperStorage) GetBlock(num uint64) (database.Block, error) {
	block, err := ts.Memory.GetBlock(num)
	if err == nil && ts.tamper != nil {
		ts.tamper(&block)
	}
	return block, err
}

func (ts *tamperStorage) ForEach() database.Iterator {
	return &tamperIterator{storage: ts}
}

type tamperIterator struct {
	storage *tamperStorage
	current uint64
	eoc     bool
}

func (ti *tamperIterator) Next() (database.Block, error) {
	block, err := ti.storage.GetBlock(ti.current)
	if err != nil {
		ti.eoc = true
	}
	ti.current++
	return block, err
}

func (ti *tamperIterator) Done() bool {
	return ti.eoc
}
