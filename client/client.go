package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
)

// Prover produces a serialized proof for req, as the Zupass popup would:
// a JSON object with "type" and "pcd".
type Prover interface {
	Prove(ctx context.Context, req ProofRequest) (string, error)
}

// ProverFunc adapts a function to [Prover].
type ProverFunc func(ctx context.Context, req ProofRequest) (string, error)

func (f ProverFunc) Prove(ctx context.Context, req ProofRequest) (string, error) {
	return f(ctx, req)
}

// FailureMode controls what Login does when the server rejects a proof.
type FailureMode uint8

const (
	// FailSilently keeps the previous ticket and reports no error.
	FailSilently FailureMode = iota
	// FailWithError returns an *AuthError.
	FailWithError
)

var ErrNotAuthenticated = errors.New("not authenticated")

// AuthError is a non-200 answer from the authenticate endpoint.
type AuthError struct {
	Status int
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authenticate: %d %s", e.Status, e.Reason)
}

// Ticket is the partial ticket the server returns after login. Which
// fields are set depends on the server's disclosure policy.
type Ticket struct {
	TicketID            string `json:"ticketId,omitempty"`
	AttendeeSemaphoreID string `json:"attendeeSemaphoreId,omitempty"`
	AttendeeEmail       string `json:"attendeeEmail,omitempty"`
}

// Client runs the login handshake against a zuauth server. The session
// cookie lives in the client's cookie jar.
type Client struct {
	baseURL         string
	http            *http.Client
	prover          Prover
	failureMode     FailureMode
	validEventIDs   []string
	validProductIDs []string
	fields          FieldsToReveal

	mu     sync.RWMutex
	ticket *Ticket
}

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient replaces the default client. It should carry a cookie
// jar, otherwise the nonce is lost between requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

func WithFailureMode(mode FailureMode) Option {
	return func(c *Client) {
		c.failureMode = mode
	}
}

// WithEvents restricts the prove screen to tickets of these events.
func WithEvents(eventIDs ...string) Option {
	return func(c *Client) {
		c.validEventIDs = append([]string(nil), eventIDs...)
	}
}

func WithProducts(productIDs ...string) Option {
	return func(c *Client) {
		c.validProductIDs = append([]string(nil), productIDs...)
	}
}

func WithFieldsToReveal(fields FieldsToReveal) Option {
	return func(c *Client) {
		c.fields = fields
	}
}

func New(baseURL string, prover Prover, opts ...Option) (*Client, error) {
	if prover == nil {
		return nil, errors.New("client: prover required")
	}
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		prover:  prover,
		fields:  DefaultFields(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		c.http = &http.Client{Jar: jar}
	}
	return c, nil
}

// Ticket returns the ticket from the last successful login, if any.
func (c *Client) Ticket() (Ticket, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.ticket == nil {
		return Ticket{}, false
	}
	return *c.ticket, true
}

// Login fetches a nonce, has the prover answer it and submits the proof.
// Transport failures are always returned. A rejected proof is handled per
// the client's [FailureMode].
func (c *Client) Login(ctx context.Context) (Ticket, error) {
	nonce, err := c.Nonce(ctx)
	if err != nil {
		return Ticket{}, err
	}

	serialized, err := c.prover.Prove(ctx, ProofRequest{
		Watermark:       nonce,
		ValidEventIDs:   c.validEventIDs,
		ValidProductIDs: c.validProductIDs,
		Fields:          c.fields,
	})
	if err != nil {
		return Ticket{}, fmt.Errorf("prove: %w", err)
	}

	return c.Authenticate(ctx, serialized)
}

// Nonce requests a fresh challenge for the client's session.
func (c *Client) Nonce(ctx context.Context) (string, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/api/auth/nonce", nil)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", &AuthError{Status: status, Reason: strings.TrimSpace(string(body))}
	}
	return string(body), nil
}

// Authenticate submits a serialized proof as returned by the popup.
func (c *Client) Authenticate(ctx context.Context, serialized string) (Ticket, error) {
	status, body, err := c.do(ctx, http.MethodPost, "/api/auth/authenticate", []byte(serialized))
	if err != nil {
		return Ticket{}, err
	}

	if status != http.StatusOK {
		if c.failureMode == FailWithError {
			return Ticket{}, &AuthError{Status: status, Reason: strings.TrimSpace(string(body))}
		}
		prev, _ := c.Ticket()
		return prev, nil
	}

	var t Ticket
	if err := json.Unmarshal(body, &t); err != nil {
		return Ticket{}, fmt.Errorf("decode ticket: %w", err)
	}
	c.mu.Lock()
	c.ticket = &t
	c.mu.Unlock()
	return t, nil
}

// User returns the logged-in user, or ErrNotAuthenticated.
func (c *Client) User(ctx context.Context) (string, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/api/auth/user", nil)
	if err != nil {
		return "", err
	}
	if status == http.StatusUnauthorized {
		return "", ErrNotAuthenticated
	}
	if status != http.StatusOK {
		return "", &AuthError{Status: status, Reason: strings.TrimSpace(string(body))}
	}

	var out struct {
		User string `json:"user"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode user: %w", err)
	}
	return out.User, nil
}

// Logout ends the session and forgets the stored ticket.
func (c *Client) Logout(ctx context.Context) error {
	status, body, err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return &AuthError{Status: status, Reason: strings.TrimSpace(string(body))}
	}
	c.mu.Lock()
	c.ticket = nil
	c.mu.Unlock()
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, raw, nil
}
