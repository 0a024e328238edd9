package models

import "time"

// PendingDeviceFlow is a device code issued by the provider that is still
// waiting for the user to approve it.
type PendingDeviceFlow struct {
	DeviceCode string    `bson:"deviceCode" json:"deviceCode"`
	CreatedAt  time.Time `bson:"createdAt" json:"createdAt"`
	// ExpiresAt is zero when the provider did not advertise expires_in.
	ExpiresAt time.Time `bson:"expiresAt,omitempty" json:"expiresAt,omitempty"`
	Interval  int       `bson:"interval,omitempty" json:"interval,omitempty"`
}

// Expired reports whether the flow is past its advertised lifetime.
func (f PendingDeviceFlow) Expired(now time.Time) bool {
	if f.ExpiresAt.IsZero() {
		return false
	}
	return now.After(f.ExpiresAt)
}

// Completion statuses.
const (
	CompletionStatusCompleted = "completed"
	CompletionStatusDenied    = "denied"
)

// DeviceFlowCompletion records the terminal provider outcome of a device
// flow until the client that started it picks it up.
type DeviceFlowCompletion struct {
	DeviceCode  string    `bson:"deviceCode" json:"deviceCode"`
	Status      string    `bson:"status" json:"status"`
	AccessToken string    `bson:"accessToken,omitempty" json:"accessToken,omitempty"`
	TokenType   string    `bson:"tokenType,omitempty" json:"tokenType,omitempty"`
	Scope       string    `bson:"scope,omitempty" json:"scope,omitempty"`
	CompletedAt time.Time `bson:"completedAt" json:"completedAt"`
	ExpiresAt   time.Time `bson:"expiresAt" json:"expiresAt"`
}
