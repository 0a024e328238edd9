package deviceflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gogotex/gogotex/backend/device-auth/internal/models"
	"github.com/gogotex/gogotex/backend/device-auth/internal/provider"
	"github.com/gogotex/gogotex/backend/device-auth/internal/tokens"
	"github.com/gogotex/gogotex/backend/device-auth/pkg/logger"
	"github.com/gogotex/gogotex/backend/device-auth/pkg/metrics"
)

// ErrMissingCredential means a completion request named neither a device
// code nor an access token.
var ErrMissingCredential = errors.New("deviceflow: device_code or access_token required")

// IdentityResolver maps a provider identity to a stored user.
type IdentityResolver interface {
	Resolve(ctx context.Context, id *provider.Identity) (*models.User, error)
}

// SessionIssuer signs the session handed back to the client.
type SessionIssuer interface {
	Issue(u *models.User) (*tokens.Credential, error)
}

// StartResult is what a client needs to show the user and poll.
type StartResult struct {
	DeviceCode              string    `json:"deviceCode"`
	UserCode                string    `json:"userCode"`
	VerificationURI         string    `json:"verificationUri"`
	VerificationURIComplete string    `json:"verificationUriComplete,omitempty"`
	Interval                int       `json:"interval"`
	ExpiresIn               int       `json:"expiresIn"`
	ExpiresAt               time.Time `json:"expiresAt,omitempty"`
}

// CompleteRequest carries either the device code returned by Start or a
// provider access token the client obtained itself.
type CompleteRequest struct {
	DeviceCode  string
	AccessToken string
}

type CompleteResult struct {
	User    *models.User
	Session *tokens.Credential
}

// Service implements the client-facing half of the device flow.
type Service struct {
	store    Store
	client   provider.Client
	resolver IdentityResolver
	issuer   SessionIssuer
	now      func() time.Time
	log      *zap.SugaredLogger
}

func NewService(store Store, client provider.Client, resolver IdentityResolver, issuer SessionIssuer) *Service {
	return &Service{
		store:    store,
		client:   client,
		resolver: resolver,
		issuer:   issuer,
		now:      time.Now,
		log:      logger.With("component", "deviceflow-service"),
	}
}

// Start asks the provider for a device code and registers it for polling.
func (s *Service) Start(ctx context.Context) (*StartResult, error) {
	dc, err := s.client.RequestDeviceCode(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	f := &models.PendingDeviceFlow{
		DeviceCode: dc.DeviceCode,
		CreatedAt:  now,
		Interval:   dc.Interval,
	}
	if dc.ExpiresIn > 0 {
		f.ExpiresAt = now.Add(time.Duration(dc.ExpiresIn) * time.Second)
	}
	if err := s.store.Create(ctx, f); err != nil {
		return nil, fmt.Errorf("register device flow: %w", err)
	}
	metrics.DeviceFlowsStarted.Inc()
	s.log.Infof("device flow %s started via %s", redact(dc.DeviceCode), s.client.Name())
	return &StartResult{
		DeviceCode:              dc.DeviceCode,
		UserCode:                dc.UserCode,
		VerificationURI:         dc.VerificationURI,
		VerificationURIComplete: dc.VerificationURIComplete,
		Interval:                dc.Interval,
		ExpiresIn:               dc.ExpiresIn,
		ExpiresAt:               f.ExpiresAt,
	}, nil
}

// Complete turns a finished device flow (or a provider access token) into a
// signed session for the resolved user.
func (s *Service) Complete(ctx context.Context, req CompleteRequest) (res *CompleteResult, err error) {
	defer func() { metrics.DeviceFlowLogins.WithLabelValues(loginResult(err)).Inc() }()

	accessToken := strings.TrimSpace(req.AccessToken)
	var completion *models.DeviceFlowCompletion
	if accessToken == "" {
		code := strings.TrimSpace(req.DeviceCode)
		if code == "" {
			return nil, ErrMissingCredential
		}
		completion, err = s.takeCompletion(ctx, code)
		if err != nil {
			return nil, err
		}
		accessToken = completion.AccessToken
	}

	id, err := s.client.FetchIdentity(ctx, accessToken)
	if err != nil {
		if completion != nil && provider.IsTransport(err) {
			s.restore(ctx, completion)
		}
		return nil, err
	}
	u, err := s.resolver.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	cred, err := s.issuer.Issue(u)
	if err != nil {
		return nil, err
	}
	s.log.Infof("user %s signed in via %s", u.ID, id.Provider)
	return &CompleteResult{User: u, Session: cred}, nil
}

func (s *Service) takeCompletion(ctx context.Context, code string) (*models.DeviceFlowCompletion, error) {
	// the scheduler saves a completion before deleting the pending entry,
	// so checking pending first never misses an approved flow
	pending, err := s.store.Exists(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("check pending device flow: %w", err)
	}
	c, err := s.store.ConsumeCompletion(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("load device flow completion: %w", err)
	}
	if c == nil {
		if pending {
			return nil, provider.ErrAuthorizationPending
		}
		return nil, ErrUnknownFlow
	}
	if c.Status == models.CompletionStatusDenied {
		return nil, provider.ErrAccessDenied
	}
	return c, nil
}

// restore puts a consumed completion back so the client can retry after a
// transient provider outage.
func (s *Service) restore(ctx context.Context, c *models.DeviceFlowCompletion) {
	if !c.ExpiresAt.IsZero() && s.now().After(c.ExpiresAt) {
		return
	}
	if err := s.store.SaveCompletion(ctx, c); err != nil {
		s.log.Warnf("failed to restore completion for device code %s: %v", redact(c.DeviceCode), err)
	}
}

func loginResult(err error) string {
	var (
		transport *provider.TransportError
		protocol  *provider.ProtocolError
		signing   *tokens.SigningError
	)
	switch {
	case err == nil:
		return "success"
	case provider.IsPending(err):
		return "pending"
	case errors.Is(err, provider.ErrAccessDenied):
		return "denied"
	case errors.Is(err, ErrUnknownFlow), errors.Is(err, ErrMissingCredential):
		return "unknown"
	case errors.As(err, &transport), errors.As(err, &protocol):
		return "provider_error"
	case errors.As(err, &signing):
		return "signing_error"
	default:
		return "resolution_error"
	}
}
