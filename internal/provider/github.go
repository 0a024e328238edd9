package provider

import (
	"context"
	"errors"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// GitHubName is the provider tag stored on users signed in through GitHub.
const GitHubName = "github"

// DefaultGitHubUserURL is the identity endpoint of github.com.
const DefaultGitHubUserURL = "https://api.github.com/user"

// GitHubEndpoints overrides the github.com endpoints (GitHub Enterprise,
// tests). Empty fields keep the defaults.
type GitHubEndpoints struct {
	DeviceURL string
	TokenURL  string
	UserURL   string
}

// GitHub implements Client for GitHub's device flow.
type GitHub struct {
	device  deviceClient
	userURL string
}

// NewGitHub creates a GitHub device-flow client.
func NewGitHub(cfg Config, ep GitHubEndpoints) *GitHub {
	deviceURL := firstNonEmpty(ep.DeviceURL, github.Endpoint.DeviceAuthURL)
	tokenURL := firstNonEmpty(ep.TokenURL, github.Endpoint.TokenURL)
	return &GitHub{
		device:  newDeviceClient(cfg, deviceURL, tokenURL),
		userURL: firstNonEmpty(ep.UserURL, DefaultGitHubUserURL),
	}
}

func (g *GitHub) Name() string { return GitHubName }

func (g *GitHub) RequestDeviceCode(ctx context.Context) (*DeviceCode, error) {
	return g.device.requestDeviceCode(ctx)
}

func (g *GitHub) PollForToken(ctx context.Context, deviceCode string) (*oauth2.Token, error) {
	return g.device.pollForToken(ctx, deviceCode)
}

type githubUser struct {
	Login     string `json:"login"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

// FetchIdentity loads the authenticated GitHub user. The login is the stable
// identifier; accounts without one fall back to their public email.
func (g *GitHub) FetchIdentity(ctx context.Context, accessToken string) (*Identity, error) {
	const op = "fetch identity"
	var u githubUser
	if err := g.device.getJSON(ctx, op, g.userURL, accessToken, &u); err != nil {
		return nil, err
	}
	id := firstNonEmpty(u.Login, u.Email)
	if id == "" {
		return nil, &ProtocolError{Op: op, StatusCode: 200, Err: errors.New("user without login or email")}
	}
	return &Identity{
		ExternalID:  id,
		DisplayName: id,
		AvatarURL:   u.AvatarURL,
		Provider:    GitHubName,
	}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
