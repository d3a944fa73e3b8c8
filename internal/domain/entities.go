package domain

import (
	"time"
)

// Identity is the authenticated customer/token pair. Both values are opaque
// strings supplied by the caller on every request; the flow never reads them
// from ambient state.
type Identity struct {
	CustomerID string
	Token      string
}

func (i Identity) Complete() bool {
	return i.CustomerID != "" && i.Token != ""
}

// TicketSelection is the tentative choice made in the first step. The total
// it computes is for display only; the lock response carries the
// authoritative amount.
type TicketSelection struct {
	TicketTypeID string
	DisplayName  string
	UnitPrice    float64
	Quantity     int
}

func (s TicketSelection) Total() float64 {
	return float64(s.Quantity) * s.UnitPrice
}

type AttendeeInfo struct {
	FullName string
	Email    string
	Phone    string
}

// Complete reports whether the attendee step may be left. Phone is optional.
func (a AttendeeInfo) Complete() bool {
	return a.FullName != "" && a.Email != ""
}

// LockRecord is a server-acknowledged inventory reservation. Once present it
// supersedes the client-side selection as the source of truth for the amount.
// Expiry is owned by the backing service and not modeled here.
type LockRecord struct {
	LockID       string
	EventID      string
	TicketTypeID string
	CustomerID   string
	Quantity     int
	TotalAmount  float64
}

// PaymentSession is handed to the payment-collection surface exactly once.
type PaymentSession struct {
	OrderReference   string
	GatewayOrderID   string
	AmountMinorUnits int64
	Currency         string
}

// PaymentProof is produced by the payment surface after the customer pays.
// It is submitted to verification exactly once; terminal failure is never
// retried with the same values.
type PaymentProof struct {
	GatewayOrderID   string
	GatewayPaymentID string
	GatewaySignature string
}

type EventSnapshot struct {
	EventID  string
	Name     string
	Venue    string
	StartsAt time.Time
}

type TicketSnapshot struct {
	TicketTypeID string
	DisplayName  string
	UnitPrice    float64
}

type CustomerSnapshot struct {
	CustomerID string
	FullName   string
	Email      string
	Phone      string
}

// ConfirmedBooking is the terminal record produced by a successful
// verification. Immutable once created.
type ConfirmedBooking struct {
	ReceiptID   string
	Event       EventSnapshot
	Ticket      TicketSnapshot
	Customer    CustomerSnapshot
	Quantity    int
	TotalAmount float64
	ConfirmedAt time.Time
}

// LockRequest is the body of the upstream reservation call.
type LockRequest struct {
	EventID       string
	EventTicketID string
	CustomerID    string
	TicketQty     int
}
