package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

type (
	// Client talks to the Mimic protocol API
	Client struct {
		baseURL    *url.URL
		httpClient *http.Client
		apiKey     string
		log        zerolog.Logger

		mu        sync.Mutex
		manifests map[string]Manifest
	}

	// Option configures a Client
	Option func(*Client)
)

const (
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 1 << 20
	apiKeyHeader   = "x-api-key"
)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithAPIKey authenticates requests with the given key
func WithAPIKey(key string) Option {
	return func(cl *Client) {
		cl.apiKey = key
	}
}

// WithLogger sets the client logger
func WithLogger(log zerolog.Logger) Option {
	return func(cl *Client) {
		cl.log = log
	}
}

// NewClient creates a client for the API at baseURL
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}

	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: defaultTimeout},
		log:        zerolog.Nop(),
		manifests:  map[string]Manifest{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Manifest fetches the manifest of a task. Manifests are immutable per CID
// and cached after the first successful fetch
func (c *Client) Manifest(ctx context.Context, cid string) (Manifest, error) {
	c.mu.Lock()
	m, ok := c.manifests[cid]
	c.mu.Unlock()
	if ok {
		return m, nil
	}

	var res json.RawMessage
	path := c.baseURL.JoinPath("tasks", cid, "manifest")
	if err := c.do(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, fmt.Errorf("get manifest %s: %w", cid, err)
	}

	m = Manifest(res)
	c.mu.Lock()
	c.manifests[cid] = m
	c.mu.Unlock()
	return m, nil
}

// SignAndCreate signs the config with the signer and submits it
func (c *Client) SignAndCreate(
	ctx context.Context, spec ConfigSpec, signer Signer,
) (*Config, error) {
	if spec.Signer != signer.Address() {
		return nil, fmt.Errorf("config signer %s does not match wallet %s",
			spec.Signer.Hex(), signer.Address().Hex())
	}

	td, err := ConfigTypedData(spec)
	if err != nil {
		return nil, err
	}
	sig, err := signer.SignTypedData(td)
	if err != nil {
		return nil, fmt.Errorf("sign config: %w", err)
	}

	req := Config{ConfigSpec: spec, Sig: sig}
	var res Config
	if err := c.do(ctx, http.MethodPost, c.baseURL.JoinPath("configs"), req, &res); err != nil {
		return nil, fmt.Errorf("create config: %w", err)
	}
	if res.Sig == "" {
		res.ConfigSpec = spec
		res.Sig = sig
	}

	c.log.Info().
		Str("sig", res.Sig).
		Str("task_cid", spec.TaskCID).
		Str("schedule", spec.Trigger.Schedule).
		Msg("Config created")
	return &res, nil
}

// Executions lists the executions of the config with the given signature
func (c *Client) Executions(ctx context.Context, configSig string) ([]Execution, error) {
	u := c.baseURL.JoinPath("executions")
	q := u.Query()
	q.Set("configSig", configSig)
	u.RawQuery = q.Encode()

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, u, nil, &raw); err != nil {
		return nil, fmt.Errorf("get executions: %w", err)
	}

	// Accept both a bare array and a {"data": [...]} envelope
	body := gjson.ParseBytes(raw)
	if data := body.Get("data"); data.IsArray() {
		raw = json.RawMessage(data.Raw)
	}

	var res []Execution
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode executions: %w", err)
	}
	return res, nil
}

// IntentByHash fetches an intent
func (c *Client) IntentByHash(ctx context.Context, hash string) (*Intent, error) {
	var res Intent
	if err := c.do(ctx, http.MethodGet, c.baseURL.JoinPath("intents", hash), nil, &res); err != nil {
		return nil, fmt.Errorf("get intent %s: %w", hash, err)
	}
	if res.Hash == "" {
		res.Hash = hash
	}
	return &res, nil
}

func (c *Client) do(
	ctx context.Context, method string, u *url.URL, body, out any,
) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("method", method).
		Str("path", u.Path).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("Protocol request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return readAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// readAPIError extracts the server message from an error response
func readAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	res := &APIError{StatusCode: resp.StatusCode}
	if gjson.ValidBytes(data) {
		body := gjson.ParseBytes(data)
		for _, key := range []string{"message", "error.message", "error"} {
			if v := body.Get(key); v.Exists() && v.Type == gjson.String {
				res.Message = v.String()
				return res
			}
		}
	}
	res.Message = string(bytes.TrimSpace(data))
	return res
}
