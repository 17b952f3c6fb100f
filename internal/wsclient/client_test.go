package wsclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/fpga-edge/drm-agent-go/internal/config"
	"github.com/fpga-edge/drm-agent-go/internal/drmerr"
)

func newTestClient(t *testing.T, tokenURL, licenseURL string) *Client {
	t.Helper()
	creds := &config.Credentials{ClientID: "id", ClientSecret: "secret", TokenURL: tokenURL, LicenseURL: licenseURL}
	return New(creds, 2*time.Second, zerolog.Nop())
}

func TestAuthenticateCachesToken(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(tokenResponse{AccessToken: "tok", ExpiresIn: 3600})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, srv.URL)
	ctx := context.Background()
	if err := c.Authenticate(ctx); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if err := c.Authenticate(ctx); err != nil {
		t.Fatalf("second Authenticate: %v", err)
	}
	if calls != 1 {
		t.Fatalf("token endpoint called %d times, want 1 (cached token should not refetch)", calls)
	}
}

func TestAuthenticateServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, srv.URL)
	err := c.Authenticate(context.Background())
	if kind, ok := drmerr.KindOf(err); !ok || kind != drmerr.WebServiceRetryable {
		t.Fatalf("kind = %v, want WebServiceRetryable", kind)
	}
}

func TestAuthenticateRejectedCredentialsIsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, srv.URL)
	err := c.Authenticate(context.Background())
	if kind, ok := drmerr.KindOf(err); !ok || kind != drmerr.WebServiceError {
		t.Fatalf("kind = %v, want WebServiceError", kind)
	}
}

func TestRequestLicenseWithoutAuthenticateFails(t *testing.T) {
	c := newTestClient(t, "http://unused", "http://unused")
	_, err := c.RequestLicense(context.Background(), []byte(`{}`))
	if kind, ok := drmerr.KindOf(err); !ok || kind != drmerr.BadUsage {
		t.Fatalf("kind = %v, want BadUsage", kind)
	}
}

func TestRequestLicenseUnauthorizedInvalidatesToken(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(tokenResponse{AccessToken: "tok", ExpiresIn: 3600})
	}))
	defer tokenSrv.Close()
	licenseSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer licenseSrv.Close()

	c := newTestClient(t, tokenSrv.URL, licenseSrv.URL)
	ctx := context.Background()
	if err := c.Authenticate(ctx); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	_, err := c.RequestLicense(ctx, []byte(`{}`))
	if kind, ok := drmerr.KindOf(err); !ok || kind != drmerr.WebServiceRetryable {
		t.Fatalf("kind = %v, want WebServiceRetryable", kind)
	}
	c.mu.Lock()
	tok := c.token.Value
	c.mu.Unlock()
	if tok != "" {
		t.Fatalf("token = %q, want cleared after 401", tok)
	}
}

func TestRequestLicenseSuccess(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(tokenResponse{AccessToken: "tok", ExpiresIn: 3600})
	}))
	defer tokenSrv.Close()
	licenseSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization header = %q, want %q", got, "Bearer tok")
		}
		_, _ = w.Write([]byte(`{"license":"abc"}`))
	}))
	defer licenseSrv.Close()

	c := newTestClient(t, tokenSrv.URL, licenseSrv.URL)
	ctx := context.Background()
	if err := c.Authenticate(ctx); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	body, err := c.RequestLicense(ctx, []byte(`{"request":"open"}`))
	if err != nil {
		t.Fatalf("RequestLicense: %v", err)
	}
	if string(body) != `{"license":"abc"}` {
		t.Fatalf("body = %q", body)
	}
}
