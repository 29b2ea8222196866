// Package client is the terminal's HTTP client for the remote PDV server.
// It maps transport-level failures to TransportError so callers can route
// them to the offline durability queue, while validation and transaction
// rejections surface as ordinary errors.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/quitanda/pdv/internal/domain/product"
	"github.com/quitanda/pdv/internal/domain/sale"
)

// TransportError marks failures where the remote service was unreachable or
// did not produce a usable response. It is the trigger for offline fallback.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("remote unreachable: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransport reports whether err is a transport-level failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// errorBody is the server's JSON error envelope.
type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Client talks to the remote PDV API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client for the given base URL. The timeout bounds every
// request; a commit that has reached the server runs to completion there
// regardless of what happens to this call.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

var _ sale.Committer = (*Client)(nil)

// Commit posts a sale to the remote commit endpoint.
//
// A 409 means a sale with this client id was already committed; the
// existing sale is returned with sale.ErrDuplicateClientID so replay
// callers can confirm the entry without recommitting.
func (c *Client) Commit(ctx context.Context, req sale.CommitRequest) (*sale.Sale, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "marshal commit request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/sales", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "create commit request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusCreated:
		var s sale.Sale
		if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
			return nil, &TransportError{Err: errors.Wrap(err, "decode sale")}
		}
		return &s, nil

	case http.StatusConflict:
		var s sale.Sale
		if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
			return nil, &TransportError{Err: errors.Wrap(err, "decode duplicate sale")}
		}
		return &s, sale.ErrDuplicateClientID

	case http.StatusBadRequest:
		return nil, decodeValidationError(resp.Body)

	case http.StatusUnprocessableEntity:
		msg := readErrorMessage(resp.Body)
		if id, ok := strings.CutPrefix(msg, "product "); ok {
			return nil, &sale.ProductNotFoundError{ProductID: strings.TrimSuffix(id, " not found")}
		}
		return nil, errors.New(msg)

	default:
		// 5xx and anything unexpected: the commit outcome is unknown, treat
		// as transport failure and let the idempotent replay sort it out.
		return nil, &TransportError{Err: errors.Errorf("unexpected status %d", resp.StatusCode)}
	}
}

// List fetches the full product catalog.
func (c *Client) List(ctx context.Context) ([]product.Product, error) {
	var products []product.Product
	if err := c.getJSON(ctx, "/api/products", &products); err != nil {
		return nil, err
	}
	return products, nil
}

// GetByBarcode fetches a single product.
func (c *Client) GetByBarcode(ctx context.Context, barcode string) (*product.Product, error) {
	var p product.Product
	err := c.getJSON(ctx, "/api/products/"+url.PathEscape(barcode), &p)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Ping checks whether the remote service is reachable and ready.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/readyz", nil)
	if err != nil {
		return errors.Wrap(err, "create ping request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return &TransportError{Err: errors.Errorf("readiness status %d", resp.StatusCode)}
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return errors.Wrapf(err, "create request %s", path)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &TransportError{Err: errors.Wrapf(err, "decode %s", path)}
		}
		return nil
	case http.StatusNotFound:
		return product.ErrNotFound
	default:
		return &TransportError{Err: errors.Errorf("unexpected status %d for %s", resp.StatusCode, path)}
	}
}

func decodeValidationError(body io.Reader) error {
	switch msg := readErrorMessage(body); msg {
	case sale.ErrEmptyCart.Error():
		return sale.ErrEmptyCart
	case sale.ErrNoTender.Error():
		return sale.ErrNoTender
	default:
		return errors.New(msg)
	}
}

func readErrorMessage(body io.Reader) string {
	var eb errorBody
	if err := json.NewDecoder(body).Decode(&eb); err != nil || eb.Message == "" {
		return "request rejected"
	}
	return eb.Message
}
