// Package tezosrpc implements chain.Client against the HTTP RPC of a Tezos node.
package tezosrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/contract-calculator/internal/chain"
	"github.com/openkcm/contract-calculator/internal/serviceerr"
)

const maxErrorBody = 1024

type Config struct {
	Endpoint string
	// PollInterval paces the confirmation wait. It is expected to be close
	// to the block time of the network.
	PollInterval time.Duration
	// EntrypointCacheTTL bounds how long resolved entry points are reused.
	EntrypointCacheTTL time.Duration
}

type Client struct {
	endpoint     *url.URL
	httpClient   *http.Client
	signer       chain.Signer
	pollInterval time.Duration

	// entrypoints caches contract entry points by address. Balances and
	// storage are never cached.
	entrypoints *cache.Cache
}

var _ chain.Client = (*Client)(nil)

func NewClient(cfg Config, signer chain.Signer, httpClient *http.Client) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("rpc endpoint is required")
	}

	endpoint, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parsing rpc endpoint: %w", err)
	}

	if cfg.PollInterval <= 0 {
		return nil, errors.New("poll interval must be positive")
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		endpoint:     endpoint,
		httpClient:   httpClient,
		signer:       signer,
		pollInterval: cfg.PollInterval,
		entrypoints:  cache.New(cfg.EntrypointCacheTTL, 2*cfg.EntrypointCacheTTL),
	}, nil
}

// GetBalance returns the balance of address in mutez.
func (c *Client) GetBalance(ctx context.Context, address string) (uint64, error) {
	var balance string
	if err := c.getJSON(ctx, &balance, "chains", "main", "blocks", "head", "context", "contracts", address, "balance"); err != nil {
		return 0, fmt.Errorf("getting balance of %s: %w", address, err)
	}

	mutez, err := strconv.ParseUint(balance, 10, 64)
	if err != nil {
		return 0, serviceerr.Wrap(serviceerr.ErrNetwork, fmt.Errorf("parsing balance %q: %w", balance, err))
	}

	return mutez, nil
}

func (c *Client) ResolveContract(ctx context.Context, address string) (chain.ContractRef, error) {
	if cached, ok := c.entrypoints.Get(address); ok {
		return &contract{client: c, address: address, entrypoints: cached.(map[string]json.RawMessage)}, nil
	}

	var resp struct {
		Entrypoints map[string]json.RawMessage `json:"entrypoints"`
	}

	err := c.getJSON(ctx, &resp, "chains", "main", "blocks", "head", "context", "contracts", address, "entrypoints")
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && (statusErr.Code == http.StatusNotFound || statusErr.Code == http.StatusBadRequest) {
			return nil, serviceerr.Wrap(serviceerr.ErrContractNotFound, fmt.Errorf("resolving %s: %w", address, err))
		}

		return nil, fmt.Errorf("resolving %s: %w", address, err)
	}

	c.entrypoints.Set(address, resp.Entrypoints, cache.DefaultExpiration)
	slogctx.Debug(ctx, "Resolved contract", "contract", address, "entrypoints", len(resp.Entrypoints))

	return &contract{client: c, address: address, entrypoints: resp.Entrypoints}, nil
}

func (c *Client) headLevel(ctx context.Context) (int64, error) {
	var header struct {
		Level int64 `json:"level"`
	}
	if err := c.getJSON(ctx, &header, "chains", "main", "blocks", "head", "header"); err != nil {
		return 0, fmt.Errorf("getting head header: %w", err)
	}

	return header.Level, nil
}

// operationStatus searches the manager operations of the block at level
// for hash and returns the status of its first non-applied content, or
// "applied".
func (c *Client) operationStatus(ctx context.Context, level int64, hash string) (string, bool, error) {
	var ops []struct {
		Hash     string `json:"hash"`
		Contents []struct {
			Kind     string `json:"kind"`
			Metadata struct {
				OperationResult struct {
					Status string `json:"status"`
				} `json:"operation_result"`
			} `json:"metadata"`
		} `json:"contents"`
	}

	if err := c.getJSON(ctx, &ops, "chains", "main", "blocks", strconv.FormatInt(level, 10), "operations", "3"); err != nil {
		return "", false, fmt.Errorf("getting operations of block %d: %w", level, err)
	}

	for _, op := range ops {
		if op.Hash != hash {
			continue
		}

		for _, content := range op.Contents {
			if status := content.Metadata.OperationResult.Status; status != "" && status != statusApplied {
				return status, true, nil
			}
		}

		return statusApplied, true, nil
	}

	return "", false, nil
}

// StatusError is returned for any non-200 node response.
type StatusError struct {
	Code int
	Path string
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("node returned status %d for %s: %s", e.Code, e.Path, e.Body)
}

func (c *Client) getJSON(ctx context.Context, into any, segments ...string) error {
	u := c.endpoint.JoinPath(segments...)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("creating an HTTP request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return serviceerr.Wrap(serviceerr.ErrNetwork, fmt.Errorf("doing an HTTP request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return serviceerr.Wrap(serviceerr.ErrNetwork, &StatusError{Code: resp.StatusCode, Path: u.Path, Body: string(body)})
	}

	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return serviceerr.Wrap(serviceerr.ErrNetwork, fmt.Errorf("decoding response of %s: %w", u.Path, err))
	}

	return nil
}
