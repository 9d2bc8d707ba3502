package controls

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultRequestTimeout = 10 * time.Second

// Config carries everything needed to open a gateway session.
type Config struct {
	BaseURL  string // e.g. http://localhost:8080
	Username string
	Password string
	Timeout  time.Duration // per-request; zero means defaultRequestTimeout
}

// HTTPClient talks to a parameter gateway over REST with a bearer token
// obtained at Dial time.
type HTTPClient struct {
	base  string
	token string
	hc    *http.Client
}

var _ ParameterClient = (*HTTPClient)(nil)

// Dial signs in against the gateway and returns a ready client. Session
// establishment happens exactly once, at process start; operations reuse the
// issued token.
func Dial(ctx context.Context, cfg Config) (*HTTPClient, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	c := &HTTPClient{
		base: cfg.BaseURL,
		hc:   &http.Client{Timeout: timeout},
	}

	body, err := json.Marshal(map[string]string{
		"username": cfg.Username,
		"password": cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal credentials: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/auth/sign-in", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build sign-in request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: sign-in returned %s", ErrRejected, resp.Status)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode sign-in response: %w", err)
	}
	if out.Token == "" {
		return nil, fmt.Errorf("%w: sign-in returned empty token", ErrRejected)
	}
	c.token = out.Token
	return c, nil
}

// GetParameter reads one named parameter.
func (c *HTTPClient) GetParameter(ctx context.Context, name string) (Value, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/parameters/"+name, nil)
	if err != nil {
		return Value{}, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return Value{}, fmt.Errorf("%w: get %s: %v", ErrUnreachable, name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkStatus(resp, "get "+name); err != nil {
		return Value{}, err
	}
	var v Value
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return Value{}, fmt.Errorf("decode %s: %w", name, err)
	}
	return v, nil
}

// SetParameter writes one named parameter.
func (c *HTTPClient) SetParameter(ctx context.Context, name string, v Value) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	req, err := c.newRequest(ctx, http.MethodPut, "/api/v1/parameters/"+name, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: set %s: %v", ErrUnreachable, name, err)
	}
	defer func() { _ = resp.Body.Close() }()
	return checkStatus(resp, "set "+name)
}

// PostEntry appends a free-text logbook entry, timestamped by the gateway.
func (c *HTTPClient) PostEntry(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("marshal logbook entry: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/logbook", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: post logbook entry: %v", ErrUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	return checkStatus(resp, "post logbook entry")
}

// Close releases idle connections. The bearer token simply expires.
func (c *HTTPClient) Close() error {
	c.hc.CloseIdleConnections()
	return nil
}

func (c *HTTPClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	return req, nil
}

func checkStatus(resp *http.Response, op string) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, op)
	default:
		var out struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&out)
		if out.Error != "" {
			return fmt.Errorf("%w: %s: %s", ErrRejected, op, out.Error)
		}
		return fmt.Errorf("%w: %s: %s", ErrRejected, op, resp.Status)
	}
}
