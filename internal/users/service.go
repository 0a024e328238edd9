package users

import (
	"context"
	"errors"
	"time"

	"github.com/gogotex/gogotex/backend/device-auth/internal/models"
	"github.com/gogotex/gogotex/backend/device-auth/internal/provider"
)

// ErrMissingExternalID is returned when the provider identity carries no
// usable identifier.
var ErrMissingExternalID = errors.New("users: identity without external id")

// ResolutionError means a provider identity could not be mapped to a user.
type ResolutionError struct {
	ExternalID string
	Err        error
}

func (e *ResolutionError) Error() string {
	if e.ExternalID == "" {
		return "resolve user: " + e.Err.Error()
	}
	return "resolve user " + e.ExternalID + ": " + e.Err.Error()
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// Service encapsulates user-related business logic
type Service struct {
	repo UserRepository
	now  func() time.Time
}

func NewService(r UserRepository) *Service {
	return &Service{repo: r, now: time.Now}
}

// Resolve finds or creates the user behind a provider identity and records
// the sign-in.
func (s *Service) Resolve(ctx context.Context, id *provider.Identity) (*models.User, error) {
	if id == nil || id.ExternalID == "" {
		return nil, &ResolutionError{Err: ErrMissingExternalID}
	}
	name := id.DisplayName
	if name == "" {
		name = id.ExternalID
	}
	u := &models.User{
		ID:          id.ExternalID,
		DisplayName: name,
		AvatarURL:   id.AvatarURL,
		Provider:    id.Provider,
	}
	// Mongo stores milliseconds
	now := s.now().UTC().Truncate(time.Millisecond)
	out, err := s.repo.FindOrCreate(ctx, u, now)
	if err != nil {
		return nil, &ResolutionError{ExternalID: id.ExternalID, Err: err}
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.User, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
