package domain

import "time"

// AccessType labels how access to a product was obtained.
type AccessType string

const (
	AccessPurchase     AccessType = "purchase"
	AccessRental       AccessType = "rental"
	AccessSubscription AccessType = "subscription"
	AccessTrial        AccessType = "trial"
)

// Grant is the resolved answer to "can this user use this product right now".
// ExpiresAt is nil for access with no expiry.
type Grant struct {
	Granted   bool       `json:"granted"`
	Type      AccessType `json:"type,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Trial is a time-boxed free access row.
type Trial struct {
	UserID      string
	ProductSlug string
	Status      string
	ExpiresAt   time.Time
	StartedAt   time.Time
}

const (
	TrialStatusActive  = "active"
	TrialStatusExpired = "expired"
)

// CustomerProduct is a purchased or rented product row. AccessExpiresAt is
// nil for purchases, which never expire.
type CustomerProduct struct {
	UserID          string
	ProductSlug     string
	AcquisitionType AcquisitionType
	IsActive        bool
	AccessExpiresAt *time.Time
}
