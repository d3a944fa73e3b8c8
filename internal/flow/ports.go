package flow

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/voyago/booking-flow/internal/domain"
)

// Store persists flow attempts. Update is compare-and-swap on Version: a
// write against a version other than the stored one fails with ErrStaleFlow,
// which is how results of superseded network operations get dropped instead
// of clobbering newer state.
type Store interface {
	Create(ctx context.Context, f *Flow) error
	Get(ctx context.Context, id uuid.UUID) (*Flow, error)
	Update(ctx context.Context, f *Flow) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Guard is the per-flow mutual exclusion for network operations: at most one
// lock/initiate/verify call in flight per attempt. A second submission while
// one is outstanding is refused, never queued.
type Guard interface {
	TryAcquire(ctx context.Context, id uuid.UUID) (bool, error)
	Release(ctx context.Context, id uuid.UUID) error
}

// BookingAPI is the remote reservation and payment-verification service.
type BookingAPI interface {
	LockTickets(ctx context.Context, identity domain.Identity, req domain.LockRequest) (*domain.LockRecord, error)
	InitiatePayment(ctx context.Context, identity domain.Identity, lockID, method string) (*domain.PaymentSession, error)
	VerifyPayment(ctx context.Context, identity domain.Identity, proof domain.PaymentProof) (*domain.ConfirmedBooking, error)
}

// CheckoutIntent is everything the front end needs to open the external
// payment-collection surface for one session.
type CheckoutIntent struct {
	KeyID            string              `json:"key_id"`
	GatewayOrderID   string              `json:"gateway_order_id"`
	AmountMinorUnits int64               `json:"amount_minor_units"`
	Currency         string              `json:"currency"`
	CheckoutURL      string              `json:"checkout_url"`
	Prefill          domain.AttendeeInfo `json:"prefill"`
}

// Collector wraps the third-party payment-collection surface. Each flow
// holds a lease on the surface from Acquire until Release or the lease
// deadline, whichever comes first, so attempts that die without a release
// (value expiry, the sweeper) cannot pin the surface. Release is idempotent:
// releasing a flow that holds no lease is a no-op. Checkout hands a session
// to the surface.
type Collector interface {
	Acquire(ctx context.Context, id uuid.UUID, deadline time.Time) error
	Release(ctx context.Context, id uuid.UUID) error
	Checkout(ctx context.Context, session domain.PaymentSession, prefill domain.AttendeeInfo) (CheckoutIntent, error)
}

// ReceiptStore keeps confirmed bookings for later listing and export.
type ReceiptStore interface {
	SaveConfirmed(ctx context.Context, booking domain.ConfirmedBooking) error
}

// Auditor records flow lifecycle events. Best effort: failures are logged by
// implementations and never fail the flow.
type Auditor interface {
	Record(ctx context.Context, action, customerID string, data map[string]any)
}

// Publisher emits flow events to the message broker.
type Publisher interface {
	PublishJSON(ctx context.Context, key string, payload any) error
}
