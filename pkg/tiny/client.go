// Package tiny is a client for the Tiny ERP product API (api2).
package tiny

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// DefaultBaseURL is the public api2 endpoint.
const DefaultBaseURL = "https://api.tiny.com.br/api2"

const (
	searchPath = "/produtos.pesquisa.php"
	getPath    = "/produto.obter.php"

	maxBodySize = 4 << 20
)

// ErrNoToken is returned when the client has no API token.
var ErrNoToken = errors.New("tiny: token not configured")

// Config holds client settings.
type Config struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	MaxRetries uint64
}

// Client calls Tiny over HTTP. Transient failures (network errors, 5xx, 429
// and Tiny's quota error) are retried with exponential backoff.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     zerolog.Logger
	newBackOff func() backoff.BackOff
}

// NewClient creates a client. Zero config values fall back to defaults.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.With().Str("component", "tiny").Logger(),
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}
}

// SearchProducts runs produtos.pesquisa for term. A query without matches
// returns an empty slice, not an error.
func (c *Client) SearchProducts(ctx context.Context, term string) ([]ProductSummary, error) {
	var resp searchResponse
	if err := c.call(ctx, searchPath, url.Values{"pesquisa": {term}}, &resp); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == codeNoRecords {
			return []ProductSummary{}, nil
		}
		return nil, fmt.Errorf("search %q: %w", term, err)
	}

	out := make([]ProductSummary, 0, len(resp.Return.Products))
	for _, p := range resp.Return.Products {
		out = append(out, p.Product)
	}
	return out, nil
}

// GetProduct runs produto.obter for a product id.
func (c *Client) GetProduct(ctx context.Context, id string) (*Product, error) {
	var resp getResponse
	if err := c.call(ctx, getPath, url.Values{"id": {id}}, &resp); err != nil {
		return nil, fmt.Errorf("get product %s: %w", id, err)
	}
	p := resp.Return.Product
	return &p, nil
}

type enveloped interface {
	header() returnHeader
}

func (r *searchResponse) header() returnHeader { return r.Return.returnHeader }
func (r *getResponse) header() returnHeader { return r.Return.returnHeader }

func (c *Client) call(ctx context.Context, path string, params url.Values, out enveloped) error {
	if c.cfg.Token == "" {
		return ErrNoToken
	}

	params.Set("token", c.cfg.Token)
	params.Set("formato", "json")
	endpoint := c.cfg.BaseURL + path + "?" + params.Encode()

	policy := backoff.WithContext(
		backoff.WithMaxRetries(c.newBackOff(), c.cfg.MaxRetries),
		ctx,
	)

	attempt := 0
	op := func() error {
		attempt++
		return c.do(ctx, endpoint, out)
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn().
			Err(err).
			Str("path", path).
			Int("attempt", attempt).
			Dur("next_attempt_in", wait).
			Msg("Tiny request failed, retrying")
	}

	start := time.Now()
	err := backoff.RetryNotify(op, policy, notify)
	c.logger.Debug().
		Str("path", path).
		Int("attempts", attempt).
		Dur("duration", time.Since(start)).
		Bool("ok", err == nil).
		Msg("Tiny request")
	return err
}

// do performs one request. Errors not worth retrying are wrapped as permanent.
func (c *Client) do(ctx context.Context, endpoint string, out enveloped) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(fmt.Errorf("do request: %w", err))
		}
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return backoff.Permanent(fmt.Errorf("unexpected status: %d", resp.StatusCode))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}

	if err := out.header().err(); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == codeRateLimit {
			return err
		}
		return backoff.Permanent(err)
	}
	return nil
}
