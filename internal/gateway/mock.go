package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voyago/booking-flow/internal/domain"
	"github.com/voyago/booking-flow/internal/flow"
)

// BookingAPIMock records calls and serves canned responses. Override the Fn
// fields to script failures.
type BookingAPIMock struct {
	mock sync.Mutex

	LockCalls     int
	InitiateCalls int
	VerifyCalls   int

	LockFn     func(req domain.LockRequest) (*domain.LockRecord, error)
	InitiateFn func(lockID, method string) (*domain.PaymentSession, error)
	VerifyFn   func(proof domain.PaymentProof) (*domain.ConfirmedBooking, error)
}

func (m *BookingAPIMock) LockTickets(ctx context.Context, identity domain.Identity, req domain.LockRequest) (*domain.LockRecord, error) {
	m.mock.Lock()
	m.LockCalls++
	fn := m.LockFn
	m.mock.Unlock()

	if fn != nil {
		return fn(req)
	}
	return &domain.LockRecord{
		LockID:       "lock-1",
		EventID:      req.EventID,
		TicketTypeID: req.EventTicketID,
		CustomerID:   req.CustomerID,
		Quantity:     req.TicketQty,
		TotalAmount:  float64(req.TicketQty) * 500,
	}, nil
}

func (m *BookingAPIMock) InitiatePayment(ctx context.Context, identity domain.Identity, lockID, method string) (*domain.PaymentSession, error) {
	m.mock.Lock()
	m.InitiateCalls++
	fn := m.InitiateFn
	m.mock.Unlock()

	if fn != nil {
		return fn(lockID, method)
	}
	return &domain.PaymentSession{
		OrderReference:   "ref-" + lockID,
		GatewayOrderID:   "gw-order-1",
		AmountMinorUnits: 100000,
		Currency:         "INR",
	}, nil
}

func (m *BookingAPIMock) VerifyPayment(ctx context.Context, identity domain.Identity, proof domain.PaymentProof) (*domain.ConfirmedBooking, error) {
	m.mock.Lock()
	m.VerifyCalls++
	fn := m.VerifyFn
	m.mock.Unlock()

	if fn != nil {
		return fn(proof)
	}
	return &domain.ConfirmedBooking{
		ReceiptID:   "rcpt-1",
		Event:       domain.EventSnapshot{EventID: "evt-1", Name: "Mock Event"},
		Ticket:      domain.TicketSnapshot{TicketTypeID: "tt-1", DisplayName: "General", UnitPrice: 500},
		Customer:    domain.CustomerSnapshot{CustomerID: "cust-1"},
		Quantity:    2,
		TotalAmount: 1000,
		ConfirmedAt: time.Now().UTC(),
	}, nil
}

// CollectorMock satisfies flow.Collector without touching the network. It
// keeps the live lease set so tests can assert the acquire/release balance,
// and like the real surface it refuses a checkout with no lease held.
type CollectorMock struct {
	mock sync.Mutex

	Acquired  int
	Released  int
	Leases    map[uuid.UUID]time.Time
	Checkouts []domain.PaymentSession

	AcquireErr  error
	CheckoutErr error
}

func (m *CollectorMock) Acquire(ctx context.Context, id uuid.UUID, deadline time.Time) error {
	m.mock.Lock()
	defer m.mock.Unlock()
	if m.AcquireErr != nil {
		return m.AcquireErr
	}
	if m.Leases == nil {
		m.Leases = make(map[uuid.UUID]time.Time)
	}
	m.Leases[id] = deadline
	m.Acquired++
	return nil
}

func (m *CollectorMock) Release(ctx context.Context, id uuid.UUID) error {
	m.mock.Lock()
	defer m.mock.Unlock()
	delete(m.Leases, id)
	m.Released++
	return nil
}

// LiveLeases is the number of flows currently holding the surface.
func (m *CollectorMock) LiveLeases() int {
	m.mock.Lock()
	defer m.mock.Unlock()
	return len(m.Leases)
}

func (m *CollectorMock) Checkout(ctx context.Context, session domain.PaymentSession, prefill domain.AttendeeInfo) (flow.CheckoutIntent, error) {
	m.mock.Lock()
	defer m.mock.Unlock()
	if m.CheckoutErr != nil {
		return flow.CheckoutIntent{}, m.CheckoutErr
	}
	if len(m.Leases) == 0 {
		return flow.CheckoutIntent{}, errors.New("payment surface not acquired")
	}
	m.Checkouts = append(m.Checkouts, session)
	return flow.CheckoutIntent{
		KeyID:            "key-test",
		GatewayOrderID:   session.GatewayOrderID,
		AmountMinorUnits: session.AmountMinorUnits,
		Currency:         session.Currency,
		Prefill:          prefill,
	}, nil
}
