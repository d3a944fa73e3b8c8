package flow

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/voyago/booking-flow/internal/domain"
	"github.com/voyago/booking-flow/internal/observability"
)

// Controller drives booking attempts through the wizard. All network
// operations are strictly sequential per flow: the guard refuses a second
// submission while one is in flight, and the store's version check drops
// results that arrive after the flow moved on or closed.
type Controller struct {
	store     Store
	guard     Guard
	api       BookingAPI
	collector Collector
	receipts  ReceiptStore
	audit     Auditor
	pub       Publisher
	logger    observability.Logger
	ttl       time.Duration
}

func NewController(store Store, guard Guard, api BookingAPI, collector Collector, receipts ReceiptStore, audit Auditor, pub Publisher, logger observability.Logger, ttl time.Duration) *Controller {
	return &Controller{
		store:     store,
		guard:     guard,
		api:       api,
		collector: collector,
		receipts:  receipts,
		audit:     audit,
		pub:       pub,
		logger:    logger,
		ttl:       ttl,
	}
}

// Open starts a new attempt in the select step. Identity is injected here
// and carried by the flow; it is never read from ambient state. The payment
// surface is acquired for the lifetime of the attempt.
func (c *Controller) Open(ctx context.Context, identity domain.Identity, eventID string) (*Flow, error) {
	if eventID == "" {
		return nil, domain.ErrInvalidInput
	}
	if !identity.Complete() {
		return nil, domain.ErrMissingDetails
	}
	f := New(identity, eventID, c.ttl)
	if err := c.collector.Acquire(ctx, f.ID, f.Deadline); err != nil {
		return nil, errors.Wrap(err, "acquire payment surface")
	}
	if err := c.store.Create(ctx, f); err != nil {
		c.collector.Release(ctx, f.ID)
		return nil, err
	}
	c.audit.Record(ctx, "flow.opened", identity.CustomerID, map[string]any{
		"flow_id":  f.ID.String(),
		"event_id": eventID,
	})
	return f, nil
}

func (c *Controller) Get(ctx context.Context, id uuid.UUID) (*Flow, error) {
	return c.store.Get(ctx, id)
}

func (c *Controller) SelectTicket(ctx context.Context, id uuid.UUID, ticketTypeID, displayName string, unitPrice float64) (*Flow, error) {
	return c.mutate(ctx, id, func(f *Flow) error {
		return f.SelectTicket(ticketTypeID, displayName, unitPrice)
	})
}

func (c *Controller) SetQuantity(ctx context.Context, id uuid.UUID, n int) (*Flow, error) {
	return c.mutate(ctx, id, func(f *Flow) error {
		return f.SetQuantity(n)
	})
}

func (c *Controller) UpdateAttendee(ctx context.Context, id uuid.UUID, fullName, email, phone string) (*Flow, error) {
	return c.mutate(ctx, id, func(f *Flow) error {
		return f.UpdateAttendee(fullName, email, phone)
	})
}

func (c *Controller) Advance(ctx context.Context, id uuid.UUID) (*Flow, error) {
	return c.mutate(ctx, id, func(f *Flow) error {
		from := f.State
		if err := f.Advance(); err != nil {
			return err
		}
		countTransition(from, f.State)
		return nil
	})
}

func (c *Controller) Back(ctx context.Context, id uuid.UUID) (*Flow, error) {
	return c.mutate(ctx, id, func(f *Flow) error {
		from := f.State
		if err := f.Back(); err != nil {
			return err
		}
		countTransition(from, f.State)
		return nil
	})
}

// LockTickets converts the tentative selection into a server-acknowledged
// reservation. Preconditions are checked before any network call; a missing
// identity or selection surfaces the banner without touching the wire.
func (c *Controller) LockTickets(ctx context.Context, id uuid.UUID) (*Flow, error) {
	f, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if f.State != StateAttendee {
		return f, domain.ErrInvalidTransition
	}
	if !f.Attendee.Complete() {
		// refused silently, mirrors the disabled continue control
		return f, domain.ErrInvalidInput
	}
	if !f.Identity.Complete() || f.Selection == nil || f.Selection.TicketTypeID == "" || f.EventID == "" {
		f.Banner = MsgMissingDetails
		if uerr := c.save(ctx, f); uerr != nil {
			return nil, uerr
		}
		return f, domain.ErrMissingDetails
	}

	ok, err := c.guard.TryAcquire(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return f, domain.ErrBusy
	}
	defer c.guard.Release(ctx, id)

	lock, lockErr := c.api.LockTickets(ctx, f.Identity, domain.LockRequest{
		EventID:       f.EventID,
		EventTicketID: f.Selection.TicketTypeID,
		CustomerID:    f.Identity.CustomerID,
		TicketQty:     f.Selection.Quantity,
	})

	cur, err := c.reload(ctx, id, f.Version)
	if err != nil {
		return cur, err
	}
	if lockErr != nil {
		cur.Banner = upstreamMessage(lockErr, MsgLockFailed)
		if uerr := c.save(ctx, cur); uerr != nil {
			return nil, uerr
		}
		return cur, lockErr
	}

	from := cur.State
	cur.Lock = lock
	if err := cur.transitionTo(StateSummary); err != nil {
		return cur, err
	}
	countTransition(from, cur.State)
	cur.Banner = ""
	if err := c.save(ctx, cur); err != nil {
		return nil, err
	}
	c.audit.Record(ctx, "lock.acquired", cur.Identity.CustomerID, map[string]any{
		"flow_id":      cur.ID.String(),
		"lock_id":      lock.LockID,
		"ticket_qty":   lock.Quantity,
		"total_amount": lock.TotalAmount,
	})
	return cur, nil
}

// InitiatePayment requests a payment session for the lock and hands it to
// the collection surface. On failure the flow returns to the summary step
// with the server message; the customer may retry manually.
func (c *Controller) InitiatePayment(ctx context.Context, id uuid.UUID, method string) (*Flow, CheckoutIntent, error) {
	var none CheckoutIntent
	f, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, none, err
	}
	if f.State != StateSummary || f.Lock == nil {
		return f, none, domain.ErrInvalidTransition
	}
	if method == "" {
		method = "card"
	}

	ok, err := c.guard.TryAcquire(ctx, id)
	if err != nil {
		return nil, none, err
	}
	if !ok {
		return f, none, domain.ErrBusy
	}
	defer c.guard.Release(ctx, id)

	from := f.State
	if err := f.transitionTo(StateInitiating); err != nil {
		return f, none, err
	}
	countTransition(from, f.State)
	if err := c.save(ctx, f); err != nil {
		return nil, none, err
	}

	sess, initErr := c.api.InitiatePayment(ctx, f.Identity, f.Lock.LockID, method)

	cur, err := c.reload(ctx, id, f.Version)
	if err != nil {
		return cur, none, err
	}
	if initErr != nil {
		c.stepBack(cur, StateSummary)
		cur.Banner = upstreamMessage(initErr, MsgInitiateFailed)
		if uerr := c.save(ctx, cur); uerr != nil {
			return nil, none, uerr
		}
		return cur, none, initErr
	}

	intent, chkErr := c.collector.Checkout(ctx, *sess, cur.Attendee)
	if chkErr != nil {
		c.stepBack(cur, StateSummary)
		cur.Banner = MsgInitiateFailed
		if uerr := c.save(ctx, cur); uerr != nil {
			return nil, none, uerr
		}
		return cur, none, chkErr
	}

	cur.Session = sess
	from = cur.State
	if err := cur.transitionTo(StateAwaitingPayment); err != nil {
		return cur, none, err
	}
	countTransition(from, cur.State)
	cur.Banner = ""
	if err := c.save(ctx, cur); err != nil {
		return nil, none, err
	}
	c.audit.Record(ctx, "payment.initiated", cur.Identity.CustomerID, map[string]any{
		"flow_id":          cur.ID.String(),
		"gateway_order_id": sess.GatewayOrderID,
		"amount_minor":     sess.AmountMinorUnits,
	})
	return cur, intent, nil
}

// SubmitProof verifies the payment exactly once. Any failure here, network
// or business, lands on the same fixed banner and the failed terminal state;
// there is no in-flow retry.
func (c *Controller) SubmitProof(ctx context.Context, id uuid.UUID, proof domain.PaymentProof) (*Flow, error) {
	f, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if f.State != StateAwaitingPayment || f.Session == nil {
		return f, domain.ErrInvalidTransition
	}
	if proof.GatewayOrderID == "" || proof.GatewayPaymentID == "" || proof.GatewaySignature == "" {
		return f, domain.ErrInvalidInput
	}

	ok, err := c.guard.TryAcquire(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return f, domain.ErrBusy
	}
	defer c.guard.Release(ctx, id)

	from := f.State
	if err := f.transitionTo(StateVerifying); err != nil {
		return f, err
	}
	countTransition(from, f.State)
	// the session is consumed by this handoff, success or not
	f.Session = nil
	if err := c.save(ctx, f); err != nil {
		return nil, err
	}

	booking, verifyErr := c.api.VerifyPayment(ctx, f.Identity, proof)

	cur, err := c.reload(ctx, id, f.Version)
	if err != nil {
		return cur, err
	}
	if verifyErr != nil {
		c.stepBack(cur, StateFailed)
		cur.Banner = MsgVerificationFailed
		observability.VerificationFailures.Inc()
		if uerr := c.save(ctx, cur); uerr != nil {
			return nil, uerr
		}
		c.audit.Record(ctx, "verification.failed", cur.Identity.CustomerID, map[string]any{
			"flow_id":          cur.ID.String(),
			"gateway_order_id": proof.GatewayOrderID,
		})
		c.collector.Release(ctx, cur.ID)
		return cur, verifyErr
	}

	cur.Booking = booking
	from = cur.State
	if err := cur.transitionTo(StateConfirmed); err != nil {
		return cur, err
	}
	countTransition(from, cur.State)
	cur.Banner = ""
	if err := c.save(ctx, cur); err != nil {
		return nil, err
	}

	if err := c.receipts.SaveConfirmed(ctx, *booking); err != nil {
		c.logger.WithError(err).WithField("receipt_id", booking.ReceiptID).Error("failed to persist receipt")
	}
	c.audit.Record(ctx, "booking.confirmed", cur.Identity.CustomerID, map[string]any{
		"flow_id":      cur.ID.String(),
		"receipt_id":   booking.ReceiptID,
		"total_amount": booking.TotalAmount,
	})
	if err := c.pub.PublishJSON(ctx, "booking.confirmed", map[string]any{
		"receipt_id":  booking.ReceiptID,
		"customer_id": booking.Customer.CustomerID,
		"event_id":    booking.Event.EventID,
		"ticket_qty":  booking.Quantity,
		"total":       booking.TotalAmount,
	}); err != nil {
		c.logger.WithError(err).Error("failed to publish confirmation event")
	}
	c.collector.Release(ctx, cur.ID)
	return cur, nil
}

// DismissPayment handles the customer closing the payment surface without
// paying: back to the summary, no error banner, guard already clear.
func (c *Controller) DismissPayment(ctx context.Context, id uuid.UUID) (*Flow, error) {
	return c.mutate(ctx, id, func(f *Flow) error {
		if f.State != StateAwaitingPayment {
			return domain.ErrInvalidTransition
		}
		from := f.State
		if err := f.transitionTo(StateSummary); err != nil {
			return err
		}
		countTransition(from, f.State)
		f.Session = nil
		c.audit.Record(ctx, "payment.dismissed", f.Identity.CustomerID, map[string]any{
			"flow_id": f.ID.String(),
		})
		return nil
	})
}

// Abandon closes the attempt and discards local state. No unlock call is
// made: the server-side reservation expires on its own. The surface release
// is a no-op for terminal flows, which released when verification settled.
func (c *Controller) Abandon(ctx context.Context, id uuid.UUID) error {
	f, err := c.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := c.store.Delete(ctx, id); err != nil {
		return err
	}
	c.guard.Release(ctx, id)
	c.collector.Release(ctx, id)

	action := "flow.closed"
	if !f.State.Terminal() {
		action = "flow.abandoned"
		observability.FlowsAbandoned.Inc()
	}
	c.audit.Record(ctx, action, f.Identity.CustomerID, map[string]any{
		"flow_id": f.ID.String(),
		"state":   string(f.State),
	})
	return nil
}

// mutate applies a local (non-network) change and persists it. Any
// successful mutation clears the error banner.
func (c *Controller) mutate(ctx context.Context, id uuid.UUID, fn func(f *Flow) error) (*Flow, error) {
	f, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(f); err != nil {
		return f, err
	}
	f.Banner = ""
	if err := c.save(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

func (c *Controller) save(ctx context.Context, f *Flow) error {
	f.UpdatedAt = time.Now().UTC()
	return c.store.Update(ctx, f)
}

// reload fetches the flow after a network call and fences out results for a
// flow that moved on or closed while the request was in flight.
func (c *Controller) reload(ctx context.Context, id uuid.UUID, version int64) (*Flow, error) {
	cur, err := c.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrStaleFlow
		}
		return nil, err
	}
	if cur.Version != version {
		return cur, domain.ErrStaleFlow
	}
	return cur, nil
}

// stepBack is the recovery transition after a failed or dismissed network
// step. Targets used here are always legal per the table.
func (c *Controller) stepBack(f *Flow, to State) {
	from := f.State
	if f.transitionTo(to) == nil {
		countTransition(from, to)
	}
}

func countTransition(from, to State) {
	observability.FlowTransitions.WithLabelValues(string(from), string(to)).Inc()
}

func upstreamMessage(err error, fallback string) string {
	var ue *domain.UpstreamError
	if errors.As(err, &ue) && ue.Message != "" {
		return ue.Message
	}
	return fallback
}
