package models

import "time"

// User represents an application user resolved from a provider identity.
// ID is the provider's external identifier (login name or email).
type User struct {
	ID             string    `bson:"_id" json:"id"`
	DisplayName    string    `bson:"displayName" json:"displayName"`
	AvatarURL      string    `bson:"avatarUrl,omitempty" json:"avatarUrl,omitempty"`
	Provider       string    `bson:"provider" json:"provider"`
	CreationTime   time.Time `bson:"creationTime" json:"creationTime"`
	LastSignInTime time.Time `bson:"lastSignInTime" json:"lastSignInTime"`
	LastUpdated    time.Time `bson:"lastUpdated" json:"lastUpdated"`
}
