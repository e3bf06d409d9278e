package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// client calls the ledger node api.
type client struct {
	url        string
	httpClient *http.Client
	log        *zap.SugaredLogger
}

func newClient(url string, log *zap.SugaredLogger) *client {
	return &client{
		url:        url,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		log:        log,
	}
}

// apiError is returned when the node responds with a failure status.
type apiError struct {
	Status  int
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields"`
}

func (ae *apiError) Error() string {
	if len(ae.Fields) > 0 {
		return fmt.Sprintf("%d: %s: %v", ae.Status, ae.Message, ae.Fields)
	}
	return fmt.Sprintf("%d: %s", ae.Status, ae.Message)
}

// do performs the call and decodes a successful response into resp. Only
// failures to reach the node on a GET are retried. A response from the
// node, successful or not, is final.
func (c *client) do(ctx context.Context, method string, path string, body any, resp any) error {
	var data []byte
	if body != nil {
		var err error
		if data, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
	}

	bk := backoff.WithContext(newExponentialBackoffConfig(), ctx)
	r, err := backoff.RetryWithData(func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.url+path, bytes.NewReader(data))
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("creating request: %w", err))
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		r, err := c.httpClient.Do(req)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return nil, backoff.Permanent(fmt.Errorf("calling node: %w", err))
			}

			// The node may have acted on a request that isn't a read before
			// the connection failed, so only reads are retried.
			if method != http.MethodGet {
				return nil, backoff.Permanent(fmt.Errorf("calling node: %w", err))
			}

			c.log.Infow("calling node, retrying", "method", method, "path", path, "ERROR", err)
			return nil, fmt.Errorf("calling node: %w", err)
		}
		return r, nil
	}, bk)
	if err != nil {
		return err
	}
	defer r.Body.Close()

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if r.StatusCode >= http.StatusBadRequest {
		ae := apiError{Status: r.StatusCode}
		if err := json.Unmarshal(payload, &ae); err != nil {
			ae.Message = string(payload)
		}
		return &ae
	}

	if resp == nil {
		return nil
	}

	if err := json.Unmarshal(payload, resp); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	return nil
}

func newExponentialBackoffConfig() *backoff.ExponentialBackOff {
	return backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(5*time.Second),
		backoff.WithMaxInterval(time.Second),
		backoff.WithInitialInterval(100*time.Millisecond),
		backoff.WithMultiplier(2),
		backoff.WithRandomizationFactor(0.2),
	)
}
