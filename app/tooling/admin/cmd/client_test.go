package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/blockchain/storage/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestClientDo(t *testing.T) {
	tests := map[string]struct {
		status      int
		body        string
		expectedErr *apiError
		expectedTx  database.Tx
	}{
		"created": {
			status:     http.StatusCreated,
			body:       `{"message":"Transaction added successfully","transaction":{"sender":"Jack","receiver":"Bob","amount":50}}`,
			expectedTx: database.NewTx("Jack", "Bob", 50),
		},
		"duplicate": {
			status: http.StatusBadRequest,
			body:   `{"message":"Transaction already exists in mempool"}`,
			expectedErr: &apiError{
				Status:  http.StatusBadRequest,
				Message: "Transaction already exists in mempool",
			},
		},
		"not json": {
			status: http.StatusInternalServerError,
			body:   `boom`,
			expectedErr: &apiError{
				Status:  http.StatusInternalServerError,
				Message: "boom",
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			var got database.Tx
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/transaction", r.URL.Path)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

				w.WriteHeader(test.status)
				w.Write([]byte(test.body))
			}))
			defer srv.Close()

			var resp struct {
				Transaction database.Tx `json:"transaction"`
			}
			err := newClient(srv.URL, zap.NewNop().Sugar()).do(context.Background(), http.MethodPost, "/v1/transaction", database.NewTx("Jack", "Bob", 50), &resp)
			assert.Equal(t, database.NewTx("Jack", "Bob", 50), got)

			if test.expectedErr != nil {
				var ae *apiError
				require.True(t, errors.As(err, &ae))
				assert.Equal(t, test.expectedErr, ae)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, test.expectedTx, resp.Transaction)
		})
	}
}

func TestClientCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := newClient("http://127.0.0.1:1", zap.NewNop().Sugar()).do(ctx, http.MethodGet, "/v1/chain", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

// failingTransport fails every request without reaching a node.
type failingTransport struct {
	calls atomic.Int32
}

func (ft *failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	ft.calls.Add(1)
	return nil, errors.New("connection reset by peer")
}

func TestClientRetries(t *testing.T) {
	t.Run("post is sent once", func(t *testing.T) {
		ft := failingTransport{}
		c := newClient("http://node", zap.NewNop().Sugar())
		c.httpClient = &http.Client{Transport: &ft}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		err := c.do(ctx, http.MethodPost, "/v1/mine", nil, nil)
		require.Error(t, err)
		assert.NotErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, int32(1), ft.calls.Load())
	})

	t.Run("get is retried", func(t *testing.T) {
		ft := failingTransport{}
		c := newClient("http://node", zap.NewNop().Sugar())
		c.httpClient = &http.Client{Transport: &ft}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		err := c.do(ctx, http.MethodGet, "/v1/chain", nil, nil)
		require.Error(t, err)
		assert.Greater(t, ft.calls.Load(), int32(1))
	})
}

func TestVerifyMissingStorage(t *testing.T) {
	log = zap.NewNop().Sugar()

	for _, kind := range []string{"disk", "bolt"} {
		t.Run(kind, func(t *testing.T) {
			missing := filepath.Join(t.TempDir(), "wrong")
			storageKind = kind
			dbPath = missing

			var out bytes.Buffer
			verifyCmd.SetOut(&out)

			err := verifyCmd.RunE(verifyCmd, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, fs.ErrNotExist)

			_, err = os.Stat(missing)
			assert.ErrorIs(t, err, fs.ErrNotExist)
		})
	}
}

func TestVerify(t *testing.T) {
	dir := t.TempDir()

	strg, err := disk.New(dir)
	require.NoError(t, err)

	genesis := database.NewGenesisBlock()
	require.NoError(t, strg.Write(genesis))

	block := database.NewBlock(1, genesis.Hash, database.TransPayload([]database.Tx{database.NewTx("Jack", "Bob", 50)}))
	require.NoError(t, block.Mine(context.Background(), 1, nil))
	require.NoError(t, strg.Write(block))
	require.NoError(t, strg.Close())

	log = zap.NewNop().Sugar()
	storageKind = "disk"
	dbPath = dir

	t.Run("valid", func(t *testing.T) {
		var out bytes.Buffer
		verifyCmd.SetOut(&out)

		require.NoError(t, verifyCmd.RunE(verifyCmd, nil))
		assert.Contains(t, out.String(), "Blockchain is valid: blocks[2] pending[0]")
	})

	t.Run("tampered", func(t *testing.T) {
		tampered := block
		tampered.Data = database.TransPayload([]database.Tx{database.NewTx("Jack", "Bob", 5000)})
		data, err := json.Marshal(tampered)
		require.NoError(t, err)

		require.NoError(t, os.WriteFile(filepath.Join(dir, "1.json"), data, 0600))

		var out bytes.Buffer
		verifyCmd.SetOut(&out)

		err = verifyCmd.RunE(verifyCmd, nil)
		assert.ErrorIs(t, err, database.ErrIntegrity)
		assert.Contains(t, out.String(), "Blockchain is NOT valid!")
	})
}
