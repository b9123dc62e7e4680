package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/fjod/watch_orders/pkg/circuitbreaker"
)

// httpCollaborator carries the shared plumbing of one collaborator endpoint:
// bounded per-call timeout and a circuit breaker that only counts transport
// failures, never not-found answers.
type httpCollaborator struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
	breaker *circuitbreaker.Breaker
}

func newHTTPCollaborator(baseURL string, timeout time.Duration) httpCollaborator {
	return httpCollaborator{
		baseURL: baseURL,
		client:  &http.Client{},
		timeout: timeout,
		breaker: circuitbreaker.New(5, 30*time.Second),
	}
}

func isTransport(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// getJSON fetches baseURL/{id} and decodes into out. A 404 maps to ErrNotFound;
// any transport error, timeout or non-2xx status maps to ErrUnavailable.
func (c httpCollaborator) getJSON(ctx context.Context, id string, out interface{}) error {
	return c.breaker.Do(func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		target := c.baseURL + "/" + url.PathEscape(id)
		req, err := http.NewRequestWithContext(callCtx, http.MethodGet, target, nil)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return ErrNotFound
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return fmt.Errorf("%w: unexpected status %d from %s", ErrUnavailable, resp.StatusCode, c.baseURL)
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode failed: %v", ErrUnavailable, err)
		}
		return nil
	}, isTransport)
}

func (c httpCollaborator) exists(ctx context.Context, id string, out interface{}) (bool, error) {
	err := c.getJSON(ctx, id, out)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrOpen) {
			return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return false, err
	}
	return true, nil
}

type HTTPCustomerClient struct {
	httpCollaborator
}

func NewHTTPCustomerClient(baseURL string, timeout time.Duration) *HTTPCustomerClient {
	return &HTTPCustomerClient{newHTTPCollaborator(baseURL, timeout)}
}

func (c *HTTPCustomerClient) Exists(ctx context.Context, customerID string) (bool, error) {
	var snap CustomerSnapshot
	return c.exists(ctx, customerID, &snap)
}

func (c *HTTPCustomerClient) Snapshot(ctx context.Context, customerID string) (*CustomerSnapshot, error) {
	var snap CustomerSnapshot
	if err := c.snapshot(ctx, customerID, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

type HTTPCatalogClient struct {
	httpCollaborator
}

func NewHTTPCatalogClient(baseURL string, timeout time.Duration) *HTTPCatalogClient {
	return &HTTPCatalogClient{newHTTPCollaborator(baseURL, timeout)}
}

func (c *HTTPCatalogClient) Exists(ctx context.Context, catalogID string) (bool, error) {
	var snap CatalogSnapshot
	return c.exists(ctx, catalogID, &snap)
}

func (c *HTTPCatalogClient) Snapshot(ctx context.Context, catalogID string) (*CatalogSnapshot, error) {
	var snap CatalogSnapshot
	if err := c.snapshot(ctx, catalogID, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

type HTTPWatchClient struct {
	httpCollaborator
}

func NewHTTPWatchClient(baseURL string, timeout time.Duration) *HTTPWatchClient {
	return &HTTPWatchClient{newHTTPCollaborator(baseURL, timeout)}
}

func (c *HTTPWatchClient) Exists(ctx context.Context, watchID string) (bool, error) {
	var snap WatchSnapshot
	return c.exists(ctx, watchID, &snap)
}

func (c *HTTPWatchClient) Snapshot(ctx context.Context, watchID string) (*WatchSnapshot, error) {
	var snap WatchSnapshot
	if err := c.snapshot(ctx, watchID, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

type HTTPServicePlanClient struct {
	httpCollaborator
}

func NewHTTPServicePlanClient(baseURL string, timeout time.Duration) *HTTPServicePlanClient {
	return &HTTPServicePlanClient{newHTTPCollaborator(baseURL, timeout)}
}

func (c *HTTPServicePlanClient) Exists(ctx context.Context, planID string) (bool, error) {
	var snap ServicePlanSnapshot
	return c.exists(ctx, planID, &snap)
}

func (c *HTTPServicePlanClient) Snapshot(ctx context.Context, planID string) (*ServicePlanSnapshot, error) {
	var snap ServicePlanSnapshot
	if err := c.snapshot(ctx, planID, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c httpCollaborator) snapshot(ctx context.Context, id string, out interface{}) error {
	err := c.getJSON(ctx, id, out)
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
