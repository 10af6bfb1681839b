// Package analytics provides the client for the remote analytics
// collaborator that answers audience size queries.
//
// The collaborator exposes a single POST-style RPC: it accepts a
// types.QueryRequest and returns a JSON document whose data[0] row holds
// the count. The response shape is not fully normalized, so extraction is
// tolerant (see ExtractCount). Transport failures surface as errors; the
// estimator, not this package, decides how to degrade.
package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/cohortlab/cohort/internal/types"
)

// Client dispatches a query and returns the raw response body.
type Client interface {
	Query(ctx context.Context, req types.QueryRequest) ([]byte, error)
}

// TokenProvider supplies a bearer token for outbound requests.
// Implemented by identity.Client; nil disables auth entirely.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// HTTPClient is the production Client backed by retryablehttp.
// Retries with backoff are delegated to the underlying client; this type
// adds only request construction and status handling.
type HTTPClient struct {
	endpoint string
	http     *retryablehttp.Client
	tokens   TokenProvider
	log      zerolog.Logger
}

// NewHTTPClient builds a client for the query endpoint URL.
// retryMax retries with default backoff; timeout bounds each attempt.
func NewHTTPClient(endpoint string, timeout time.Duration, retryMax int, tokens TokenProvider, log zerolog.Logger) *HTTPClient {
	rc := retryablehttp.NewClient()
	rc.RetryMax = retryMax
	rc.HTTPClient.Timeout = timeout
	rc.Logger = nil

	return &HTTPClient{
		endpoint: endpoint,
		http:     rc,
		tokens:   tokens,
		log:      log,
	}
}

// Query POSTs the request and returns the raw body for any 2xx response.
func (c *HTTPClient) Query(ctx context.Context, query types.QueryRequest) ([]byte, error) {
	payload, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.tokens != nil {
		token, err := c.tokens.AccessToken(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire access token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrQueryFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", types.ErrQueryFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Warn().Int("status", resp.StatusCode).Msg("analytics query rejected")
		return nil, fmt.Errorf("%w: status %d", types.ErrQueryFailed, resp.StatusCode)
	}

	return body, nil
}

// ExtractCount reads the scalar count from a query response body.
//
// The collaborator returns the count in data[0] under either the measure
// alias "measure_1" or a field literally named after the measure
// expression, holding a number or a numeric string. Both keys are probed;
// a missing row, missing key, or non-numeric value yields 0.
func ExtractCount(body []byte, measure string) int64 {
	row := gjson.GetBytes(body, "data.0")
	if !row.Exists() {
		return 0
	}

	value := row.Get("measure_1")
	if !value.Exists() {
		value = row.Get(escapePath(measure))
	}

	switch value.Type {
	case gjson.Number:
		return value.Int()
	case gjson.String:
		return value.Int()
	default:
		return 0
	}
}

// escapePath escapes gjson path metacharacters so a measure expression like
// "count(distinct(user_id))" is treated as one literal object key.
func escapePath(key string) string {
	replacer := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`)
	return replacer.Replace(key)
}
