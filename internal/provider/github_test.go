package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGitHubFake(t *testing.T, token http.HandlerFunc) (*GitHub, *httptest.Server) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login/device/code", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "cid", r.PostForm.Get("client_id"))
		assert.Equal(t, "read:user", r.PostForm.Get("scope"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"device_code":      "abc123",
			"user_code":        "WDJB-MJHT",
			"verification_uri": "https://github.com/login/device",
			"expires_in":       900,
			"interval":         5,
		})
	})
	if token != nil {
		mux.HandleFunc("/login/oauth/access_token", token)
	}
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Bad credentials"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"login": "alice", "avatar_url": "http://x/a.png"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	gh := NewGitHub(Config{ClientID: "cid", Scopes: []string{"read:user"}, Timeout: 2 * time.Second}, GitHubEndpoints{
		DeviceURL: srv.URL + "/login/device/code",
		TokenURL:  srv.URL + "/login/oauth/access_token",
		UserURL:   srv.URL + "/user",
	})
	return gh, srv
}

func TestGitHubRequestDeviceCode(t *testing.T) {
	gh, _ := newGitHubFake(t, nil)
	dc, err := gh.RequestDeviceCode(context.Background())
	require.NoError(t, err)
	require.Equal(t, "abc123", dc.DeviceCode)
	require.Equal(t, "WDJB-MJHT", dc.UserCode)
	require.Equal(t, "https://github.com/login/device", dc.VerificationURI)
	require.Equal(t, 900, dc.ExpiresIn)
	require.Equal(t, 5, dc.Interval)
}

func TestGitHubRequestDeviceCode_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"unauthorized_client","error_description":"device flow disabled"}`))
	}))
	defer srv.Close()
	gh := NewGitHub(Config{ClientID: "cid"}, GitHubEndpoints{DeviceURL: srv.URL})

	_, err := gh.RequestDeviceCode(context.Background())
	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, http.StatusBadRequest, perr.StatusCode)
	require.Equal(t, "unauthorized_client", perr.Code)
}

func TestGitHubRequestDeviceCode_NonJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`device_code=abc&user_code=x`))
	}))
	defer srv.Close()
	gh := NewGitHub(Config{ClientID: "cid"}, GitHubEndpoints{DeviceURL: srv.URL})

	_, err := gh.RequestDeviceCode(context.Background())
	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
}

func TestGitHubRequestDeviceCode_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()
	gh := NewGitHub(Config{ClientID: "cid"}, GitHubEndpoints{DeviceURL: url})

	_, err := gh.RequestDeviceCode(context.Background())
	require.True(t, IsTransport(err), "expected transport error, got %v", err)
}

func TestGitHubPollForToken_Outcomes(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{"pending", 200, `{"error":"authorization_pending"}`, func(t *testing.T, err error) {
			require.ErrorIs(t, err, ErrAuthorizationPending)
			require.True(t, IsPending(err))
		}},
		{"pending rfc status", 400, `{"error":"authorization_pending"}`, func(t *testing.T, err error) {
			require.ErrorIs(t, err, ErrAuthorizationPending)
		}},
		{"slow down", 200, `{"error":"slow_down","interval":10}`, func(t *testing.T, err error) {
			require.ErrorIs(t, err, ErrSlowDown)
			require.True(t, IsPending(err))
		}},
		{"expired", 200, `{"error":"expired_token"}`, func(t *testing.T, err error) {
			require.ErrorIs(t, err, ErrExpiredToken)
		}},
		{"denied", 200, `{"error":"access_denied"}`, func(t *testing.T, err error) {
			require.ErrorIs(t, err, ErrAccessDenied)
		}},
		{"unknown error code", 200, `{"error":"incorrect_client_credentials"}`, func(t *testing.T, err error) {
			var perr *ProtocolError
			require.ErrorAs(t, err, &perr)
			require.Equal(t, "incorrect_client_credentials", perr.Code)
		}},
		{"server error", 502, `<html>bad gateway</html>`, func(t *testing.T, err error) {
			var perr *ProtocolError
			require.ErrorAs(t, err, &perr)
			require.Equal(t, 502, perr.StatusCode)
		}},
		{"no token", 200, `{}`, func(t *testing.T, err error) {
			var perr *ProtocolError
			require.ErrorAs(t, err, &perr)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gh, _ := newGitHubFake(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			tok, err := gh.PollForToken(context.Background(), "abc123")
			require.Nil(t, tok)
			tc.check(t, err)
		})
	}
}

func TestGitHubPollForToken_Success(t *testing.T) {
	gh, _ := newGitHubFake(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, GrantTypeDeviceCode, r.PostForm.Get("grant_type"))
		assert.Equal(t, "abc123", r.PostForm.Get("device_code"))
		assert.Equal(t, "cid", r.PostForm.Get("client_id"))
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"bearer","scope":"read:user"}`))
	})
	tok, err := gh.PollForToken(context.Background(), "abc123")
	require.NoError(t, err)
	require.Equal(t, "tok", tok.AccessToken)
	require.Equal(t, "bearer", tok.TokenType)
	require.Equal(t, "read:user", TokenScope(tok))
}

func TestGitHubPollForToken_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)
	gh := NewGitHub(Config{ClientID: "cid", Timeout: 50 * time.Millisecond}, GitHubEndpoints{TokenURL: srv.URL})

	start := time.Now()
	_, err := gh.PollForToken(context.Background(), "abc123")
	require.True(t, IsTransport(err), "expected transport error, got %v", err)
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestGitHubFetchIdentity(t *testing.T) {
	gh, _ := newGitHubFake(t, nil)
	id, err := gh.FetchIdentity(context.Background(), "tok")
	require.NoError(t, err)
	require.Equal(t, &Identity{ExternalID: "alice", DisplayName: "alice", AvatarURL: "http://x/a.png", Provider: "github"}, id)

	_, err = gh.FetchIdentity(context.Background(), "wrong")
	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, http.StatusUnauthorized, perr.StatusCode)
}

func TestGitHubFetchIdentity_EmailFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"email":"bob@example.com","avatar_url":"http://x/b.png"}`))
	}))
	defer srv.Close()
	gh := NewGitHub(Config{ClientID: "cid"}, GitHubEndpoints{UserURL: srv.URL})

	id, err := gh.FetchIdentity(context.Background(), "tok")
	require.NoError(t, err)
	require.Equal(t, "bob@example.com", id.ExternalID)
	require.Equal(t, "bob@example.com", id.DisplayName)
}

func TestGitHubDefaults(t *testing.T) {
	gh := NewGitHub(Config{ClientID: "cid"}, GitHubEndpoints{})
	require.Equal(t, "https://github.com/login/device/code", gh.device.deviceURL)
	require.Equal(t, "https://github.com/login/oauth/access_token", gh.device.tokenURL)
	require.Equal(t, DefaultGitHubUserURL, gh.userURL)
	require.Equal(t, "github", gh.Name())
}

func TestProtocolErrorMessage(t *testing.T) {
	err := &ProtocolError{Op: "poll for token", StatusCode: 400, Code: "bad", Description: "nope"}
	require.Equal(t, "poll for token: protocol error (status 400): bad (nope)", err.Error())
	require.False(t, errors.Is(err, ErrAuthorizationPending))
}
