package domain

import "time"

// Stage is the coarse lifecycle label of a purchase funnel record.
type Stage string

const (
	StageCart      Stage = "cart"
	StageCheckout  Stage = "checkout"
	StagePurchased Stage = "purchased"
	StageCleared   Stage = "cleared"
)

// Open reports whether a record in this stage still tracks live intent.
func (s Stage) Open() bool {
	return s == StageCart || s == StageCheckout
}

func (s Stage) String() string {
	return string(s)
}

// AbandonedCart is the server-side mirror of a user's cart. At most one open
// record exists per user.
type AbandonedCart struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Stage      Stage      `json:"stage"`
	Items      []CartItem `json:"items"`
	TotalCents int64      `json:"total_cents"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

const (
	EventCartUpdated = "cart_updated"
	EventCartCleared = "cart_cleared"
)

// FunnelEvent is the payload published for re-engagement consumers.
type FunnelEvent struct {
	Type       string    `json:"type"`
	UserID     string    `json:"user_id"`
	ItemCount  int       `json:"item_count"`
	TotalCents int64     `json:"total_cents"`
	OccurredAt time.Time `json:"occurred_at"`
}
