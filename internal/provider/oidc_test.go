package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newOIDCFake(t *testing.T, advertiseDevice bool) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/.well-known/openid-configuration":
			doc := map[string]interface{}{
				"issuer":                 srv.URL,
				"authorization_endpoint": srv.URL + "/auth",
				"token_endpoint":         srv.URL + "/token",
				"userinfo_endpoint":      srv.URL + "/userinfo",
				"jwks_uri":               srv.URL + "/keys",
			}
			if advertiseDevice {
				doc["device_authorization_endpoint"] = srv.URL + "/device"
			}
			_ = json.NewEncoder(w).Encode(doc)
		case "/device":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"device_code":               "dev-1",
				"user_code":                 "ABCD-EFGH",
				"verification_uri":          srv.URL + "/activate",
				"verification_uri_complete": srv.URL + "/activate?user_code=ABCD-EFGH",
				"expires_in":                600,
				"interval":                  5,
			})
		case "/token":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"authorization_pending"}`))
		case "/userinfo":
			if r.Header.Get("Authorization") != "Bearer tok" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"sub":                "8f0c",
				"email":              "carol@example.com",
				"email_verified":     true,
				"preferred_username": "carol",
				"name":               "Carol C",
				"picture":            "http://x/c.png",
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOIDCClient(t *testing.T) {
	srv := newOIDCFake(t, true)
	ctx := context.Background()
	c, err := NewOIDC(ctx, srv.URL, Config{ClientID: "cid", Timeout: 2 * time.Second})
	require.NoError(t, err)
	require.Equal(t, "oidc", c.Name())

	dc, err := c.RequestDeviceCode(ctx)
	require.NoError(t, err)
	require.Equal(t, "dev-1", dc.DeviceCode)
	require.Contains(t, dc.VerificationURIComplete, "user_code=ABCD-EFGH")

	_, err = c.PollForToken(ctx, "dev-1")
	require.ErrorIs(t, err, ErrAuthorizationPending)

	id, err := c.FetchIdentity(ctx, "tok")
	require.NoError(t, err)
	require.Equal(t, "carol", id.ExternalID)
	require.Equal(t, "Carol C", id.DisplayName)
	require.Equal(t, "http://x/c.png", id.AvatarURL)
	require.Equal(t, "oidc", id.Provider)

	_, err = c.FetchIdentity(ctx, "bad")
	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
}

func TestOIDCClient_NoDeviceEndpoint(t *testing.T) {
	srv := newOIDCFake(t, false)
	_, err := NewOIDC(context.Background(), srv.URL, Config{ClientID: "cid"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "device authorization endpoint")
}
