// Package deviceflow tracks in-flight device authorization attempts, sweeps
// them against the identity provider and completes logins once the provider
// reports an approved device code.
package deviceflow

import (
	"context"
	"errors"

	"github.com/gogotex/gogotex/backend/device-auth/internal/models"
)

var (
	// ErrFlowExists is returned by Create for a device code already pending.
	ErrFlowExists = errors.New("deviceflow: device code already pending")
	// ErrUnknownFlow means the device code is neither pending nor completed.
	ErrUnknownFlow = errors.New("deviceflow: unknown device code")
)

// Store persists pending device flows and their one-shot completions.
// Implementations must be safe for concurrent use.
type Store interface {
	// Create inserts a pending flow; ErrFlowExists on duplicate device code.
	Create(ctx context.Context, f *models.PendingDeviceFlow) error
	// ListAll returns a snapshot of every pending flow.
	ListAll(ctx context.Context) ([]models.PendingDeviceFlow, error)
	// Delete removes a pending flow. Deleting an absent code is not an error.
	Delete(ctx context.Context, deviceCode string) error
	// Exists reports whether a device code is still pending.
	Exists(ctx context.Context, deviceCode string) (bool, error)
	// SaveCompletion stores (or replaces) the outcome for a device code.
	SaveCompletion(ctx context.Context, c *models.DeviceFlowCompletion) error
	// ConsumeCompletion atomically returns and removes the outcome for a
	// device code. It returns (nil, nil) when there is none or it expired.
	ConsumeCompletion(ctx context.Context, deviceCode string) (*models.DeviceFlowCompletion, error)
	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error
}
