package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// OIDCName is the provider tag stored on users signed in through a generic
// OpenID Connect issuer.
const OIDCName = "oidc"

// OIDC implements Client for any OpenID Connect issuer that advertises a
// device_authorization_endpoint.
type OIDC struct {
	device   deviceClient
	provider *oidc.Provider
}

type discoveryClaims struct {
	DeviceAuthorizationEndpoint string `json:"device_authorization_endpoint"`
}

// NewOIDC discovers the issuer's endpoints and returns a device-flow client.
func NewOIDC(ctx context.Context, issuer string, cfg Config) (*OIDC, error) {
	hc := cfg.httpClient()
	p, err := oidc.NewProvider(oidc.ClientContext(ctx, hc), issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}
	var dc discoveryClaims
	if err := p.Claims(&dc); err != nil {
		return nil, fmt.Errorf("failed to decode OIDC discovery document: %w", err)
	}
	if dc.DeviceAuthorizationEndpoint == "" {
		return nil, errors.New("device authorization endpoint not advertised")
	}
	tokenURL := p.Endpoint().TokenURL
	if tokenURL == "" {
		return nil, errors.New("token endpoint not advertised")
	}
	cfg.HTTPClient = hc
	return &OIDC{device: newDeviceClient(cfg, dc.DeviceAuthorizationEndpoint, tokenURL), provider: p}, nil
}

func (o *OIDC) Name() string { return OIDCName }

func (o *OIDC) RequestDeviceCode(ctx context.Context) (*DeviceCode, error) {
	return o.device.requestDeviceCode(ctx)
}

func (o *OIDC) PollForToken(ctx context.Context, deviceCode string) (*oauth2.Token, error) {
	return o.device.pollForToken(ctx, deviceCode)
}

type oidcProfile struct {
	PreferredUsername string `json:"preferred_username"`
	Name              string `json:"name"`
	Picture           string `json:"picture"`
}

// FetchIdentity calls the issuer's userinfo endpoint.
func (o *OIDC) FetchIdentity(ctx context.Context, accessToken string) (*Identity, error) {
	const op = "fetch identity"
	ctx, cancel := o.device.withTimeout(ctx)
	defer cancel()
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	info, err := o.provider.UserInfo(oidc.ClientContext(ctx, o.device.http), ts)
	if err != nil {
		return nil, classify(op, err)
	}
	var prof oidcProfile
	if err := info.Claims(&prof); err != nil {
		return nil, &ProtocolError{Op: op, StatusCode: 200, Err: err}
	}
	id := firstNonEmpty(prof.PreferredUsername, info.Email, info.Subject)
	if id == "" {
		return nil, &ProtocolError{Op: op, StatusCode: 200, Err: errors.New("userinfo without subject")}
	}
	return &Identity{
		ExternalID:  id,
		DisplayName: firstNonEmpty(prof.Name, id),
		AvatarURL:   prof.Picture,
		Provider:    OIDCName,
	}, nil
}

// classify maps errors from libraries that do their own HTTP onto the
// transport/protocol split.
func classify(op string, err error) error {
	var ue *url.Error
	var ne net.Error
	if errors.As(err, &ue) || errors.As(err, &ne) || errors.Is(err, context.DeadlineExceeded) {
		return &TransportError{Op: op, Err: err}
	}
	return &ProtocolError{Op: op, Err: err}
}
