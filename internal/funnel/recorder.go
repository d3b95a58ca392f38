package funnel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"storefront/internal/domain"
)

var ErrNoOpenCart = errors.New("no open abandoned cart")

// Repository persists abandoned-cart records. At most one open record exists
// per user; UpsertOpen updates it or opens a new one.
type Repository interface {
	UpsertOpen(ctx context.Context, userID string, items []domain.CartItem, totalCents int64) error
	SetStage(ctx context.Context, userID string, stage domain.Stage) error
}

const defaultWindow = 800 * time.Millisecond

// Recorder mirrors cart snapshots to the server with a per-user debounce:
// each Record resets the window, and only the snapshot present when the
// window elapses is written. Mirror failures are logged and swallowed; the
// in-session cart is authoritative.
type Recorder struct {
	repo    Repository
	pub     EventPublisher
	window  time.Duration
	timeout time.Duration
	log     zerolog.Logger

	mu      sync.Mutex
	closed  bool
	pending map[string]*pendingFlush
}

type pendingFlush struct {
	timer *time.Timer
	items []domain.CartItem
}

func NewRecorder(repo Repository, pub EventPublisher, window time.Duration, log zerolog.Logger) *Recorder {
	if window <= 0 {
		window = defaultWindow
	}
	return &Recorder{
		repo:    repo,
		pub:     pub,
		window:  window,
		timeout: 5 * time.Second,
		log:     log,
		pending: make(map[string]*pendingFlush),
	}
}

// Record arms or resets the user's debounce window with the given snapshot.
// Unauthenticated sessions are never mirrored.
func (r *Recorder) Record(userID string, items []domain.CartItem) {
	if userID == "" {
		return
	}

	snapshot := make([]domain.CartItem, len(items))
	copy(snapshot, items)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	if p, ok := r.pending[userID]; ok {
		p.items = snapshot
		p.timer.Reset(r.window)
		return
	}

	p := &pendingFlush{items: snapshot}
	p.timer = time.AfterFunc(r.window, func() {
		r.flush(userID)
	})
	r.pending[userID] = p
}

// MarkStage moves the user's open record to checkout or purchased. A pending
// snapshot is flushed first so the record exists even when the debounce
// window has not elapsed yet.
func (r *Recorder) MarkStage(ctx context.Context, userID string, stage domain.Stage) error {
	if stage != domain.StageCheckout && stage != domain.StagePurchased {
		return fmt.Errorf("stage %q is not a checkout transition", stage)
	}

	r.mu.Lock()
	if p, ok := r.pending[userID]; ok {
		p.timer.Stop()
	}
	r.mu.Unlock()
	r.flush(userID)

	if err := r.repo.SetStage(ctx, userID, stage); err != nil {
		return fmt.Errorf("set funnel stage: %w", err)
	}
	return nil
}

// Close stops all pending timers. Snapshots not yet flushed are dropped.
func (r *Recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for userID, p := range r.pending {
		p.timer.Stop()
		delete(r.pending, userID)
	}
}

// flush writes the pending snapshot for the user, if any. Safe to call from
// both the timer and MarkStage; the pending entry is claimed under the lock.
func (r *Recorder) flush(userID string) {
	r.mu.Lock()
	p, ok := r.pending[userID]
	if ok {
		delete(r.pending, userID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	c := domain.Cart{Items: p.items}
	if c.Empty() {
		err := r.repo.SetStage(ctx, userID, domain.StageCleared)
		if err != nil && !errors.Is(err, ErrNoOpenCart) {
			r.log.Error().Err(err).Str("user_id", userID).Msg("failed to close abandoned cart")
		}
		r.publish(ctx, domain.EventCartCleared, userID, &c)
		return
	}

	if err := r.repo.UpsertOpen(ctx, userID, p.items, c.TotalCents()); err != nil {
		r.log.Error().Err(err).Str("user_id", userID).Msg("failed to upsert abandoned cart")
	}
	r.publish(ctx, domain.EventCartUpdated, userID, &c)
}

func (r *Recorder) publish(ctx context.Context, eventType, userID string, c *domain.Cart) {
	if r.pub == nil {
		return
	}
	event := domain.FunnelEvent{
		Type:       eventType,
		UserID:     userID,
		ItemCount:  c.ItemCount(),
		TotalCents: c.TotalCents(),
		OccurredAt: time.Now(),
	}
	if err := r.pub.Publish(ctx, event); err != nil {
		r.log.Error().Err(err).Str("user_id", userID).Str("event_type", eventType).Msg("failed to publish funnel event")
	}
}
