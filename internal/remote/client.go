package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/raymonnguyen/baubiz-sub000/internal/domain"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Typed failures surfaced to the engine. The client performs no retries
// itself beyond the single credential refresh on 401; retry policy belongs
// to the engine.
var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrRemoteUnavailable = errors.New("remote cart unavailable")
	ErrNotFound          = errors.New("cart line not found")
)

// Client is a thin HTTP wrapper over the remote cart resource. Every call
// attaches a bearer credential obtained from the TokenProvider immediately
// before the request.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenProvider
	breaker *gobreaker.CircuitBreaker[*http.Response]
}

func NewClient(baseURL string, tokens TokenProvider) *Client {
	breaker := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:    "cart-api",
		Timeout: 10 * time.Second,
	})

	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   10 * time.Second,
		},
		tokens:  tokens,
		breaker: breaker,
	}
}

// Wire payloads of the cart resource. Optional joins (products, profiles)
// are pointers; rows missing them are normalized with zero snapshots rather
// than dropped.
type productPayload struct {
	ID     string  `json:"id"`
	Title  string  `json:"title"`
	Price  float64 `json:"price"`
	Seller string  `json:"seller_id,omitempty"`
}

type profilePayload struct {
	ID         string `json:"id"`
	FullName   string `json:"full_name"`
	IsBusiness bool   `json:"is_business"`
	IsVerified bool   `json:"is_verified"`
}

type cartItemPayload struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Products  *productPayload `json:"products"`
	Profiles  *profilePayload `json:"profiles"`
}

type fetchResponse struct {
	CartItems []cartItemPayload `json:"cartItems"`
}

type addRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type addResponse struct {
	ID string `json:"id"`
}

type updateRequest struct {
	Quantity int `json:"quantity"`
}

// FetchAll performs the authoritative read of the user's remote cart.
func (c *Client) FetchAll(ctx context.Context) ([]domain.CartLine, error) {
	resp, err := c.do(ctx, http.MethodGet, "/cart", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode)
	}

	var body fetchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decoding cart response: %v", ErrRemoteUnavailable, err)
	}

	lines := make([]domain.CartLine, 0, len(body.CartItems))
	for _, item := range body.CartItems {
		if item.ID == "" || item.ProductID == "" {
			continue // malformed row, never let it into cart state
		}
		line := domain.CartLine{
			ProductID:    item.ProductID,
			RemoteLineID: item.ID,
			Quantity:     domain.ClampQuantity(item.Quantity),
		}
		if item.Products != nil {
			line.Title = item.Products.Title
			line.UnitPrice = item.Products.Price
		}
		if item.Profiles != nil {
			line.Seller = domain.Seller{
				ID:         item.Profiles.ID,
				Name:       item.Profiles.FullName,
				IsBusiness: item.Profiles.IsBusiness,
				IsVerified: item.Profiles.IsVerified,
			}
		}
		lines = append(lines, line)
	}

	return lines, nil
}

// Add creates a remote line and returns its identifier. Calling Add twice
// for the same product is the engine's mistake to avoid; once a line id is
// known it must call Update instead.
func (c *Client) Add(ctx context.Context, productID string, quantity int) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, "/cart", addRequest{ProductID: productID, Quantity: quantity})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", statusError(resp.StatusCode)
	}

	var body addResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: decoding add response: %v", ErrRemoteUnavailable, err)
	}
	if body.ID == "" {
		return "", fmt.Errorf("%w: add response missing line id", ErrRemoteUnavailable)
	}

	return body.ID, nil
}

// Update sets the quantity of an existing remote line.
func (c *Client) Update(ctx context.Context, remoteLineID string, quantity int) error {
	resp, err := c.do(ctx, http.MethodPut, "/cart/"+remoteLineID, updateRequest{Quantity: quantity})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return statusError(resp.StatusCode)
	}
	return nil
}

// Remove deletes one remote line by its remote identifier.
func (c *Client) Remove(ctx context.Context, remoteLineID string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/cart/"+remoteLineID, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return statusError(resp.StatusCode)
	}
	return nil
}

// ClearAll removes every remote line for the authenticated user. Used only
// as the first step of a full resync.
func (c *Client) ClearAll(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodDelete, "/cart/clear", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return statusError(resp.StatusCode)
	}
	return nil
}

// do issues one request with the current bearer token. On 401 it refreshes
// the credential exactly once and retries; a second 401 surfaces as
// ErrUnauthorized.
func (c *Client) do(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	resp, err := c.send(ctx, method, path, body, token)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		token, err = c.tokens.Refresh(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: refresh failed: %v", ErrUnauthorized, err)
		}

		resp, err = c.send(ctx, method, path, body, token)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil, ErrUnauthorized
		}
	}

	return resp, nil
}

func (c *Client) send(ctx context.Context, method, path string, body []byte, token string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		return c.http.Do(req)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}

	return resp, nil
}

func statusError(status int) error {
	switch status {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return fmt.Errorf("%w: unexpected status %d", ErrRemoteUnavailable, status)
	}
}
