// Package auth signs the wallet in to the protocol API and keeps the
// resulting access token and API key per address
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"
)

type (
	// MessageSigner is the wallet capability sign-in needs
	MessageSigner interface {
		Address() common.Address
		SignMessage(msg string) (string, error)
	}

	// Session is an authenticated address
	Session struct {
		Address     common.Address
		AccessToken string
		APIKey      string
	}

	// Client runs the nonce, signature and API key exchange
	Client struct {
		baseURL    *url.URL
		httpClient *http.Client
		store      Store
		ttl        time.Duration
		log        zerolog.Logger
		inflight   singleflight.Group
	}
)

const (
	DefaultSessionTTL = 24 * time.Hour

	authTokenHeader = "x-auth-token"
	maxErrorBody    = 1 << 20
)

var (
	ErrEmptyNonce  = errors.New("server returned an empty nonce")
	ErrEmptyToken  = errors.New("server returned an empty access token")
	ErrEmptyAPIKey = errors.New("server returned an empty api key")
)

// NewClient creates an auth client for the API at baseURL
func NewClient(
	baseURL string, store Store, ttl time.Duration, log zerolog.Logger,
) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		store:      store,
		ttl:        ttl,
		log:        log.With().Str("component", "auth").Logger(),
	}, nil
}

// SignInMessage is the text the wallet signs to prove address ownership
func SignInMessage(nonce string) string {
	return "Sign in with nonce: " + nonce
}

// AccessTokenKey is the store key of an address's access token
func AccessTokenKey(addr common.Address) string {
	return "access_token_" + addr.Hex()
}

// APIKeyKey is the store key of an address's API key
func APIKeyKey(addr common.Address) string {
	return "api_key_" + addr.Hex()
}

// Load returns the stored session for addr
func (c *Client) Load(ctx context.Context, addr common.Address) (*Session, error) {
	token, err := c.store.Get(ctx, AccessTokenKey(addr))
	if err != nil {
		return nil, err
	}
	key, err := c.store.Get(ctx, APIKeyKey(addr))
	if err != nil {
		return nil, err
	}
	return &Session{Address: addr, AccessToken: token, APIKey: key}, nil
}

// Ensure returns the stored session for the signer, signing in when either
// value is missing. Concurrent calls for one address share a single sign-in
func (c *Client) Ensure(ctx context.Context, signer MessageSigner) (*Session, error) {
	addr := signer.Address()
	s, err := c.Load(ctx, addr)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}

	res, err, _ := c.inflight.Do(addr.Hex(), func() (any, error) {
		// a sign-in may have finished since the first lookup
		if s, err := c.Load(ctx, addr); err == nil {
			return s, nil
		}
		return c.SignIn(ctx, signer)
	})
	if err != nil {
		return nil, err
	}
	return res.(*Session), nil
}

// SignIn runs the full exchange and stores both values
func (c *Client) SignIn(ctx context.Context, signer MessageSigner) (*Session, error) {
	addr := signer.Address()
	log := c.log.With().Str("address", addr.Hex()).Logger()

	nonce, err := c.nonce(ctx, addr)
	if err != nil {
		return nil, err
	}
	sig, err := signer.SignMessage(SignInMessage(nonce))
	if err != nil {
		return nil, fmt.Errorf("sign nonce: %w", err)
	}
	token, err := c.authenticate(ctx, addr, sig)
	if err != nil {
		return nil, err
	}
	key, err := c.apiKey(ctx, token)
	if err != nil {
		return nil, err
	}

	if err := c.store.Set(ctx, AccessTokenKey(addr), token, c.ttl); err != nil {
		return nil, err
	}
	if err := c.store.Set(ctx, APIKeyKey(addr), key, c.ttl); err != nil {
		return nil, err
	}

	log.Info().Dur("ttl", c.ttl).Msg("Signed in")
	return &Session{Address: addr, AccessToken: token, APIKey: key}, nil
}

// Logout forgets the stored session of addr
func (c *Client) Logout(ctx context.Context, addr common.Address) error {
	return c.store.Delete(ctx, AccessTokenKey(addr), APIKeyKey(addr))
}

func (c *Client) nonce(ctx context.Context, addr common.Address) (string, error) {
	body := map[string]string{"address": addr.Hex()}
	res, err := c.do(ctx, http.MethodPost, "nonce", body, "")
	if err != nil {
		return "", fmt.Errorf("get nonce: %w", err)
	}
	nonce := gjson.GetBytes(res, "nonce").String()
	if nonce == "" {
		return "", ErrEmptyNonce
	}
	return nonce, nil
}

func (c *Client) authenticate(
	ctx context.Context, addr common.Address, sig string,
) (string, error) {
	body := map[string]string{"address": addr.Hex(), "signature": sig}
	res, err := c.do(ctx, http.MethodPost, "authenticate", body, "")
	if err != nil {
		return "", fmt.Errorf("authenticate: %w", err)
	}
	token := gjson.GetBytes(res, "token").String()
	if token == "" {
		return "", ErrEmptyToken
	}
	return token, nil
}

func (c *Client) apiKey(ctx context.Context, token string) (string, error) {
	res, err := c.do(ctx, http.MethodGet, "api-key", nil, token)
	if err != nil {
		return "", fmt.Errorf("get api key: %w", err)
	}
	key := gjson.GetBytes(res, "apiKey").String()
	if key == "" {
		return "", ErrEmptyAPIKey
	}
	return key, nil
}

func (c *Client) do(
	ctx context.Context, method, endpoint string, body any, token string,
) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	u := c.baseURL.JoinPath("users", endpoint)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(authTokenHeader, token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := gjson.GetBytes(data, "message").String()
		if msg == "" {
			msg = "Unknown error"
		}
		return nil, fmt.Errorf("error %d: %s", resp.StatusCode, msg)
	}
	return data, nil
}
