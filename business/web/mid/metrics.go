package mid

import (
	"context"
	"net/http"
	"strconv"

	"github.com/ardanlabs/powledger/foundation/metrics"
	"github.com/ardanlabs/powledger/foundation/web"
)

// Metrics updates the request counters. It expects to run outside of the
// Errors middleware so the final status code is known.
func Metrics() web.Middleware {

	// This is the actual middleware function to be executed.
	m := func(handler web.Handler) web.Handler {

		// Create the handler that will be attached in the middleware chain.
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

			// Call the next handler.
			err := handler(ctx, w, r)

			// Handle updating the metrics that can be handled here.
			code := http.StatusOK
			if v, verr := web.GetValues(ctx); verr == nil && v.StatusCode != 0 {
				code = v.StatusCode
			}
			metrics.Requests.WithLabelValues(r.Method, strconv.Itoa(code)).Inc()

			if err != nil || code >= http.StatusBadRequest {
				metrics.Errors.Inc()
			}

			// Return the error so it can be handled further up the chain.
			return err
		}

		return h
	}

	return m
}
