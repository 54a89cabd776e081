package repository

import (
	"context"
	"errors"
	"time"

	"github.com/utafrali/CitizenPortal/services/portal/internal/domain"
)

// ErrLockHeld is returned by SubmissionGuard.Acquire when another checkout
// for the same session is in flight.
var ErrLockHeld = errors.New("checkout already in progress for session")

// CartChange is the cross-replica notification published after a cart write.
type CartChange struct {
	SessionID string            `json:"session_id"`
	Revision  int64             `json:"revision"`
	Origin    string            `json:"origin"`
	Lines     []domain.CartLine `json:"lines"`
}

// CartStorage persists cart snapshots per session and fans out changes to
// every subscriber, including other replicas.
type CartStorage interface {
	// Load returns the stored cart, or an empty cart with revision 0 when
	// none exists.
	Load(ctx context.Context, sessionID string) (*domain.Cart, error)

	// Save writes the full line set and notifies subscribers. An empty line
	// set removes the stored cart.
	Save(ctx context.Context, cart *domain.Cart) error

	// Subscribe delivers every change until the returned cancel is called
	// or ctx ends.
	Subscribe(ctx context.Context, fn func(CartChange)) (cancel func(), err error)
}

// ContactRepository stores the checkout phone and address per session.
type ContactRepository interface {
	SaveContact(ctx context.Context, sessionID string, c domain.Contact) error
	LoadContact(ctx context.Context, sessionID string) (domain.Contact, error)
}

// SubmissionGuard serializes checkouts per session.
type SubmissionGuard interface {
	// Acquire takes the session lock for at most ttl. The returned release
	// only frees the lock if it is still owned by this caller.
	Acquire(ctx context.Context, sessionID string, ttl time.Duration) (release func(context.Context) error, err error)
}

// AttemptJournal records payment initialization attempts.
type AttemptJournal interface {
	RecordAttempt(ctx context.Context, a *domain.PaymentAttempt) error
	ListAttempts(ctx context.Context, orderID string) ([]domain.PaymentAttempt, error)
}
