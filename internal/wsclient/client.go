// Package wsclient is the Web Service Client collaborator (spec
// §4/§6): it speaks OAuth2 client-credentials and the license request
// contract over HTTP, classifying every failure as retryable or
// terminal so internal/retry can apply the two-tier backoff without
// knowing anything about HTTP.
//
// There is no HTTP client library anywhere in the retrieved corpus —
// every example repo that makes outbound calls uses net/http directly
// — so this is one of the few components built on the standard
// library rather than a third-party package.
package wsclient

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

	"github.com/fpga-edge/drm-agent-go/internal/config"
	"github.com/fpga-edge/drm-agent-go/internal/drmerr"
)

// Client is the Web Service Client: it owns the cached bearer token
// and the HTTP transport, and exposes exactly the two round trips the
// license continuity worker needs.
type Client struct {
	httpClient *http.Client
	creds      *config.Credentials
	log        zerolog.Logger

	mu    sync.Mutex
	token Token
}

// New builds a Client against the credentials loaded from the
// credentials file. requestTimeout bounds every individual HTTP call,
// independent of the caller's overall licensing deadline.
func New(creds *config.Credentials, requestTimeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		creds:      creds,
		log:        log,
	}
}

// Authenticate ensures the client holds a non-expired bearer token,
// fetching a new one via the OAuth2 client-credentials grant only when
// the cached one is missing or near expiry. Transport failures and 5xx
// responses are classified WebServiceRetryable; a rejected request
// (drmerr.WebServiceError) or a malformed token response
// (drmerr.WebServiceResponseError) is terminal, so internal/retry
// knows whether trying again can possibly help.
func (c *Client) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.token.Expired(time.Now()) {
		return nil
	}
	token, err := c.requestOAuth2Token(ctx)
	if err != nil {
		return err
	}
	c.token = token
	return nil
}

func (c *Client) requestOAuth2Token(ctx context.Context) (Token, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.creds.ClientID)
	form.Set("client_secret", c.creds.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.creds.TokenURL, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return Token{}, drmerr.Wrap(drmerr.WebServiceError, err, "build OAuth2 token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Token{}, drmerr.Wrap(drmerr.WebServiceRetryable, err, "OAuth2 token request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Token{}, drmerr.Wrap(drmerr.WebServiceRetryable, err, "read OAuth2 token response")
	}

	if resp.StatusCode >= 500 {
		return Token{}, drmerr.New(drmerr.WebServiceRetryable, "OAuth2 server error: %s", resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return Token{}, drmerr.New(drmerr.WebServiceError, "OAuth2 token request rejected: %s: %s", resp.Status, string(body))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return Token{}, drmerr.Wrap(drmerr.WebServiceResponseError, err, "decode OAuth2 token response")
	}
	if tr.AccessToken == "" {
		return Token{}, drmerr.New(drmerr.WebServiceResponseError, "OAuth2 token response missing access_token")
	}
	now := time.Now()
	return Token{Value: tr.AccessToken, ExpiresAt: expiryFromAccessToken(tr, now)}, nil
}

// RequestLicense posts the license request payload built by
// internal/license and returns the raw response body for the
// installer to parse. The caller must have called Authenticate first;
// RequestLicense does not authenticate on its own so the retry engine
// can distinguish an expired token (retry after Authenticate) from a
// rejected request (terminal).
func (c *Client) RequestLicense(ctx context.Context, payload []byte) ([]byte, error) {
	c.mu.Lock()
	token := c.token.Value
	c.mu.Unlock()
	if token == "" {
		return nil, drmerr.New(drmerr.BadUsage, "RequestLicense called before Authenticate")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.creds.LicenseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, drmerr.Wrap(drmerr.WebServiceError, err, "build license request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, drmerr.Wrap(drmerr.WebServiceRetryable, err, "license request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, drmerr.Wrap(drmerr.WebServiceRetryable, err, "read license response")
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized:
		c.mu.Lock()
		c.token = Token{}
		c.mu.Unlock()
		return nil, drmerr.New(drmerr.WebServiceRetryable, "license request unauthorized, token invalidated")
	case resp.StatusCode >= 500:
		return nil, drmerr.New(drmerr.WebServiceRetryable, "license server error: %s", resp.Status)
	default:
		var eb responseErrorBody
		_ = json.Unmarshal(body, &eb)
		return nil, drmerr.New(drmerr.WebServiceError, "license request rejected: %s: %s %s", resp.Status, eb.ErrorCode, eb.ErrorMessage)
	}
}

// TokenState reports whether the client currently holds a non-expired
// bearer token, without triggering a fetch — the "token state" entry
// of the parameter surface (spec §6).
func (c *Client) TokenState() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.token.Expired(time.Now())
}

// Close releases the underlying HTTP transport's idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
