// Package provider talks to the external identity provider on behalf of the
// device flow: issuing device codes, polling the token endpoint and fetching
// the identity behind an access token. Implementations never touch local
// state.
package provider

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// GrantTypeDeviceCode is the RFC 8628 grant type used when polling.
const GrantTypeDeviceCode = "urn:ietf:params:oauth:grant-type:device_code"

// Client is the contract the device flow depends on.
type Client interface {
	// Name returns the provider tag stored on users (e.g. "github").
	Name() string
	// RequestDeviceCode starts a new authorization attempt.
	RequestDeviceCode(ctx context.Context) (*DeviceCode, error)
	// PollForToken returns the access token once the user approved the
	// device code, ErrAuthorizationPending / ErrSlowDown while waiting, and
	// ErrExpiredToken / ErrAccessDenied for terminal refusals.
	PollForToken(ctx context.Context, deviceCode string) (*oauth2.Token, error)
	// FetchIdentity resolves the account behind an access token.
	FetchIdentity(ctx context.Context, accessToken string) (*Identity, error)
}

// DeviceCode is the provider's answer to a device authorization request.
type DeviceCode struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete,omitempty"`
	ExpiresIn               int    `json:"expires_in"`
	Interval                int    `json:"interval"`
}

// Identity is a normalized provider account. It is never persisted as is.
type Identity struct {
	ExternalID  string
	DisplayName string
	AvatarURL   string
	Provider    string
}

// Config carries the client credentials shared by every provider kind.
type Config struct {
	ClientID     string
	ClientSecret string
	Scopes       []string
	// Timeout bounds every single provider call. Zero means no extra bound
	// beyond the caller's context.
	Timeout    time.Duration
	HTTPClient *http.Client
}

func (c Config) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: c.Timeout}
}
