package flow

import (
	"time"

	"github.com/google/uuid"

	"github.com/voyago/booking-flow/internal/domain"
)

// Banner texts shown to the customer. Verification failures deliberately
// collapse to a single message regardless of cause.
const (
	MsgMissingDetails     = "Missing booking details"
	MsgLockFailed         = "Failed to lock tickets"
	MsgInitiateFailed     = "Failed to initiate payment"
	MsgVerificationFailed = "Payment successful but verification failed"
)

// Flow is one booking attempt. It exclusively owns its entities for the
// lifetime of the attempt; nothing here is shared across attempts. Version
// is bumped on every persisted write and fences out late updates from
// superseded operations.
type Flow struct {
	ID        uuid.UUID                `json:"id"`
	EventID   string                   `json:"event_id"`
	Identity  domain.Identity          `json:"identity"`
	State     State                    `json:"state"`
	Selection *domain.TicketSelection  `json:"selection,omitempty"`
	Attendee  domain.AttendeeInfo      `json:"attendee"`
	Lock      *domain.LockRecord       `json:"lock,omitempty"`
	Session   *domain.PaymentSession   `json:"session,omitempty"`
	Booking   *domain.ConfirmedBooking `json:"booking,omitempty"`
	Banner    string                   `json:"banner,omitempty"`
	Version   int64                    `json:"version"`
	Deadline  time.Time                `json:"deadline"`
	CreatedAt time.Time                `json:"created_at"`
	UpdatedAt time.Time                `json:"updated_at"`
}

func New(identity domain.Identity, eventID string, ttl time.Duration) *Flow {
	now := time.Now().UTC()
	return &Flow{
		ID:        uuid.New(),
		EventID:   eventID,
		Identity:  identity,
		State:     StateSelect,
		CreatedAt: now,
		UpdatedAt: now,
		Deadline:  now.Add(ttl),
	}
}

// RunningTotal is the display total: quantity times unit price before a lock
// exists, the server-computed amount once it does.
func (f *Flow) RunningTotal() float64 {
	if f.Lock != nil {
		return f.Lock.TotalAmount
	}
	if f.Selection != nil {
		return f.Selection.Total()
	}
	return 0
}

// SelectTicket replaces the chosen tier and resets quantity to one. Only
// valid while the attempt is on the selection step.
func (f *Flow) SelectTicket(ticketTypeID, displayName string, unitPrice float64) error {
	if f.State != StateSelect {
		return domain.ErrInvalidTransition
	}
	if ticketTypeID == "" || unitPrice < 0 {
		return domain.ErrInvalidInput
	}
	f.Selection = &domain.TicketSelection{
		TicketTypeID: ticketTypeID,
		DisplayName:  displayName,
		UnitPrice:    unitPrice,
		Quantity:     1,
	}
	return nil
}

// SetQuantity clamps to a minimum of one. No upper bound is enforced here;
// the backing service rejects oversized locks.
func (f *Flow) SetQuantity(n int) error {
	if f.State != StateSelect {
		return domain.ErrInvalidTransition
	}
	if f.Selection == nil {
		return domain.ErrInvalidInput
	}
	if n < 1 {
		n = 1
	}
	f.Selection.Quantity = n
	return nil
}

// UpdateAttendee mutates buyer fields. Attendee details freeze once the lock
// request has been sent, so this is only legal on the attendee step.
func (f *Flow) UpdateAttendee(fullName, email, phone string) error {
	if f.State != StateAttendee {
		return domain.ErrInvalidTransition
	}
	f.Attendee = domain.AttendeeInfo{FullName: fullName, Email: email, Phone: phone}
	return nil
}

// Advance moves select -> attendee. Leaving the attendee step happens through
// the lock operation, and the payment states advance through their own
// operations, so any other advance is rejected.
func (f *Flow) Advance() error {
	if f.State != StateSelect {
		return domain.ErrInvalidTransition
	}
	if f.Selection == nil {
		// refused silently: the front end keeps the control disabled
		return domain.ErrInvalidInput
	}
	f.State = StateAttendee
	return nil
}

// Back steps to the previous wizard step. Stepping back out of the summary
// discards the lock locally; the server-side reservation simply expires.
func (f *Flow) Back() error {
	target, ok := backTargets[f.State]
	if !ok {
		return domain.ErrInvalidTransition
	}
	if f.State == StateSummary {
		f.Lock = nil
		f.Session = nil
	}
	f.State = target
	return nil
}

func (f *Flow) transitionTo(to State) error {
	if !canTransition(f.State, to) {
		return domain.ErrInvalidTransition
	}
	f.State = to
	return nil
}
