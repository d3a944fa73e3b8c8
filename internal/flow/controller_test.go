package flow_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/voyago/booking-flow/internal/domain"
	"github.com/voyago/booking-flow/internal/flow"
	"github.com/voyago/booking-flow/internal/gateway"
	"github.com/voyago/booking-flow/internal/observability"
)

type memStore struct {
	mu    sync.Mutex
	flows map[uuid.UUID]*flow.Flow
}

func newMemStore() *memStore {
	return &memStore{flows: make(map[uuid.UUID]*flow.Flow)}
}

func (s *memStore) Create(ctx context.Context, f *flow.Flow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.flows[f.ID]; ok {
		return domain.ErrConflict
	}
	cp := *f
	s.flows[f.ID] = &cp
	return nil
}

func (s *memStore) Get(ctx context.Context, id uuid.UUID) (*flow.Flow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.flows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (s *memStore) Update(ctx context.Context, f *flow.Flow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.flows[f.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Version != f.Version {
		return domain.ErrStaleFlow
	}
	f.Version++
	cp := *f
	s.flows[f.ID] = &cp
	return nil
}

func (s *memStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flows, id)
	return nil
}

// bump simulates a concurrent writer racing the in-flight network call.
func (s *memStore) bump(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.flows[id]; ok {
		f.Version++
	}
}

type memGuard struct {
	mu   sync.Mutex
	held map[uuid.UUID]bool
}

func newMemGuard() *memGuard {
	return &memGuard{held: make(map[uuid.UUID]bool)}
}

func (g *memGuard) TryAcquire(ctx context.Context, id uuid.UUID) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held[id] {
		return false, nil
	}
	g.held[id] = true
	return true, nil
}

func (g *memGuard) Release(ctx context.Context, id uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.held, id)
	return nil
}

type memReceipts struct {
	mu    sync.Mutex
	Saved []domain.ConfirmedBooking
	Err   error
}

func (r *memReceipts) SaveConfirmed(ctx context.Context, booking domain.ConfirmedBooking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.Saved = append(r.Saved, booking)
	return nil
}

type memAudit struct {
	mu      sync.Mutex
	Actions []string
}

func (a *memAudit) Record(ctx context.Context, action, customerID string, data map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Actions = append(a.Actions, action)
}

func (a *memAudit) has(action string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, got := range a.Actions {
		if got == action {
			return true
		}
	}
	return false
}

type memPublisher struct {
	mu   sync.Mutex
	Keys []string
}

func (p *memPublisher) PublishJSON(ctx context.Context, key string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Keys = append(p.Keys, key)
	return nil
}

type nopLogger struct{}

func (nopLogger) Info(args ...interface{})  {}
func (nopLogger) Error(args ...interface{}) {}
func (nopLogger) Debug(args ...interface{}) {}
func (nopLogger) Warn(args ...interface{})  {}
func (nopLogger) WithField(key string, value interface{}) observability.Logger {
	return nopLogger{}
}

func (nopLogger) WithFields(fields map[string]interface{}) observability.Logger {
	return nopLogger{}
}

func (nopLogger) WithError(err error) observability.Logger {
	return nopLogger{}
}

type testEnv struct {
	ctrl      *flow.Controller
	store     *memStore
	guard     *memGuard
	api       *gateway.BookingAPIMock
	collector *gateway.CollectorMock
	receipts  *memReceipts
	audit     *memAudit
	pub       *memPublisher
}

func newTestEnv() *testEnv {
	env := &testEnv{
		store:     newMemStore(),
		guard:     newMemGuard(),
		api:       &gateway.BookingAPIMock{},
		collector: &gateway.CollectorMock{},
		receipts:  &memReceipts{},
		audit:     &memAudit{},
		pub:       &memPublisher{},
	}
	env.ctrl = flow.NewController(env.store, env.guard, env.api, env.collector, env.receipts, env.audit, env.pub, nopLogger{}, 15*time.Minute)
	return env
}

func testIdentity() domain.Identity {
	return domain.Identity{CustomerID: "cust-1", Token: "tok-1"}
}

func openToAttendee(t *testing.T, env *testEnv) *flow.Flow {
	t.Helper()
	ctx := context.Background()

	f, err := env.ctrl.Open(ctx, testIdentity(), "evt-1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.ctrl.SelectTicket(ctx, f.ID, "tt-1", "General", 500); err != nil {
		t.Fatal(err)
	}
	if _, err := env.ctrl.SetQuantity(ctx, f.ID, 2); err != nil {
		t.Fatal(err)
	}
	if _, err := env.ctrl.Advance(ctx, f.ID); err != nil {
		t.Fatal(err)
	}
	f, err = env.ctrl.UpdateAttendee(ctx, f.ID, "Asha Rao", "asha@example.com", "9999999999")
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func openToSummary(t *testing.T, env *testEnv) *flow.Flow {
	t.Helper()
	f := openToAttendee(t, env)
	f, err := env.ctrl.LockTickets(context.Background(), f.ID)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func openToAwaitingPayment(t *testing.T, env *testEnv) *flow.Flow {
	t.Helper()
	f := openToSummary(t, env)
	f, _, err := env.ctrl.InitiatePayment(context.Background(), f.ID, "card")
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestOpenRequiresIdentity(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	_, err := env.ctrl.Open(ctx, domain.Identity{CustomerID: "cust-1"}, "evt-1")
	if !errors.Is(err, domain.ErrMissingDetails) {
		t.Errorf("expected missing details without a token, got %v", err)
	}
	if env.collector.Acquired != 0 {
		t.Error("expected no collector acquire on refused open")
	}

	f, err := env.ctrl.Open(ctx, testIdentity(), "evt-1")
	if err != nil {
		t.Fatal(err)
	}
	if f.State != flow.StateSelect {
		t.Errorf("expected select state, got %s", f.State)
	}
	if env.collector.Acquired != 1 {
		t.Errorf("expected one collector acquire, got %d", env.collector.Acquired)
	}
	if !env.audit.has("flow.opened") {
		t.Error("expected flow.opened audit entry")
	}
}

func TestLockTicketsHappyPath(t *testing.T) {
	env := newTestEnv()
	f := openToAttendee(t, env)

	f, err := env.ctrl.LockTickets(context.Background(), f.ID)
	if err != nil {
		t.Fatal(err)
	}
	if f.State != flow.StateSummary {
		t.Errorf("expected summary state, got %s", f.State)
	}
	if f.Lock == nil || f.Lock.LockID != "lock-1" {
		t.Fatalf("expected lock-1, got %+v", f.Lock)
	}
	if f.Banner != "" {
		t.Errorf("expected no banner, got %q", f.Banner)
	}
	if got := f.RunningTotal(); got != 1000 {
		t.Errorf("expected server total 1000, got %v", got)
	}
	if env.api.LockCalls != 1 {
		t.Errorf("expected one lock call, got %d", env.api.LockCalls)
	}
	if !env.audit.has("lock.acquired") {
		t.Error("expected lock.acquired audit entry")
	}
}

func TestLockTicketsServerTotalSupersedesDisplay(t *testing.T) {
	env := newTestEnv()
	env.api.LockFn = func(req domain.LockRequest) (*domain.LockRecord, error) {
		return &domain.LockRecord{
			LockID:      "lock-1",
			EventID:     req.EventID,
			CustomerID:  req.CustomerID,
			Quantity:    req.TicketQty,
			TotalAmount: 1050,
		}, nil
	}
	f := openToAttendee(t, env)

	if got := f.RunningTotal(); got != 1000 {
		t.Fatalf("expected display total 1000 before lock, got %v", got)
	}
	f, err := env.ctrl.LockTickets(context.Background(), f.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got := f.RunningTotal(); got != 1050 {
		t.Errorf("expected authoritative total 1050, got %v", got)
	}
}

func TestLockTicketsIncompleteAttendee(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	f, err := env.ctrl.Open(ctx, testIdentity(), "evt-1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.ctrl.SelectTicket(ctx, f.ID, "tt-1", "General", 500); err != nil {
		t.Fatal(err)
	}
	if _, err := env.ctrl.Advance(ctx, f.ID); err != nil {
		t.Fatal(err)
	}

	f, err = env.ctrl.LockTickets(ctx, f.ID)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected silent invalid input, got %v", err)
	}
	if f.Banner != "" {
		t.Errorf("expected no banner on silent refusal, got %q", f.Banner)
	}
	if env.api.LockCalls != 0 {
		t.Errorf("expected no network call, got %d", env.api.LockCalls)
	}
}

func TestAdvanceFromAttendeeIsInvalidTransition(t *testing.T) {
	env := newTestEnv()
	f := openToAttendee(t, env)

	// the only way past attendee is the lock operation
	_, err := env.ctrl.Advance(context.Background(), f.ID)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("expected invalid transition, got %v", err)
	}
}

func TestLockTicketsMissingSelection(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	f, err := env.ctrl.Open(ctx, testIdentity(), "evt-1")
	if err != nil {
		t.Fatal(err)
	}
	// force the flow onto the attendee step without a selection
	stored, err := env.store.Get(ctx, f.ID)
	if err != nil {
		t.Fatal(err)
	}
	stored.State = flow.StateAttendee
	stored.Attendee = domain.AttendeeInfo{FullName: "Asha Rao", Email: "asha@example.com"}
	if err := env.store.Update(ctx, stored); err != nil {
		t.Fatal(err)
	}

	f, err = env.ctrl.LockTickets(ctx, f.ID)
	if !errors.Is(err, domain.ErrMissingDetails) {
		t.Errorf("expected missing details, got %v", err)
	}
	if f.Banner != flow.MsgMissingDetails {
		t.Errorf("expected %q banner, got %q", flow.MsgMissingDetails, f.Banner)
	}
	if env.api.LockCalls != 0 {
		t.Errorf("expected no network call, got %d", env.api.LockCalls)
	}
}

func TestLockTicketsUpstreamFailure(t *testing.T) {
	env := newTestEnv()
	env.api.LockFn = func(req domain.LockRequest) (*domain.LockRecord, error) {
		return nil, &domain.UpstreamError{StatusCode: 409, Message: "tickets no longer available"}
	}
	f := openToAttendee(t, env)

	f, err := env.ctrl.LockTickets(context.Background(), f.ID)
	if err == nil {
		t.Fatal("expected an error")
	}
	if f.State != flow.StateAttendee {
		t.Errorf("expected flow to stay on attendee, got %s", f.State)
	}
	if f.Banner != "tickets no longer available" {
		t.Errorf("expected server message banner, got %q", f.Banner)
	}
}

func TestLockTicketsNetworkFailureFallbackBanner(t *testing.T) {
	env := newTestEnv()
	env.api.LockFn = func(req domain.LockRequest) (*domain.LockRecord, error) {
		return nil, errors.New("connection refused")
	}
	f := openToAttendee(t, env)

	f, err := env.ctrl.LockTickets(context.Background(), f.ID)
	if err == nil {
		t.Fatal("expected an error")
	}
	if f.Banner != flow.MsgLockFailed {
		t.Errorf("expected %q banner, got %q", flow.MsgLockFailed, f.Banner)
	}
}

func TestLockTicketsBusyGuard(t *testing.T) {
	env := newTestEnv()
	f := openToAttendee(t, env)
	ctx := context.Background()

	if ok, err := env.guard.TryAcquire(ctx, f.ID); err != nil || !ok {
		t.Fatalf("failed to pre-hold guard: ok=%v err=%v", ok, err)
	}

	_, err := env.ctrl.LockTickets(ctx, f.ID)
	if !errors.Is(err, domain.ErrBusy) {
		t.Errorf("expected busy, got %v", err)
	}
	if env.api.LockCalls != 0 {
		t.Errorf("expected no network call while busy, got %d", env.api.LockCalls)
	}
}

func TestLockTicketsStaleResultDropped(t *testing.T) {
	env := newTestEnv()
	f := openToAttendee(t, env)
	ctx := context.Background()

	env.api.LockFn = func(req domain.LockRequest) (*domain.LockRecord, error) {
		env.store.bump(f.ID)
		return &domain.LockRecord{LockID: "lock-late", TotalAmount: 1000}, nil
	}

	_, err := env.ctrl.LockTickets(ctx, f.ID)
	if !errors.Is(err, domain.ErrStaleFlow) {
		t.Fatalf("expected stale flow, got %v", err)
	}

	cur, err := env.store.Get(ctx, f.ID)
	if err != nil {
		t.Fatal(err)
	}
	if cur.Lock != nil {
		t.Error("expected late lock result dropped")
	}
	if cur.State != flow.StateAttendee {
		t.Errorf("expected flow unchanged on attendee, got %s", cur.State)
	}
}

func TestInitiatePaymentHappyPath(t *testing.T) {
	env := newTestEnv()
	f := openToSummary(t, env)

	f, intent, err := env.ctrl.InitiatePayment(context.Background(), f.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if f.State != flow.StateAwaitingPayment {
		t.Errorf("expected awaiting_payment, got %s", f.State)
	}
	if f.Session == nil || f.Session.GatewayOrderID != "gw-order-1" {
		t.Fatalf("expected session gw-order-1, got %+v", f.Session)
	}
	if intent.GatewayOrderID != "gw-order-1" {
		t.Errorf("expected checkout intent for gw-order-1, got %q", intent.GatewayOrderID)
	}
	if len(env.collector.Checkouts) != 1 {
		t.Errorf("expected one checkout handoff, got %d", len(env.collector.Checkouts))
	}
	if !env.audit.has("payment.initiated") {
		t.Error("expected payment.initiated audit entry")
	}
}

func TestInitiatePaymentRequiresLock(t *testing.T) {
	env := newTestEnv()
	f := openToAttendee(t, env)

	_, _, err := env.ctrl.InitiatePayment(context.Background(), f.ID, "card")
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("expected invalid transition before summary, got %v", err)
	}
	if env.api.InitiateCalls != 0 {
		t.Errorf("expected no initiate call, got %d", env.api.InitiateCalls)
	}
}

func TestInitiatePaymentUpstreamFailure(t *testing.T) {
	env := newTestEnv()
	env.api.InitiateFn = func(lockID, method string) (*domain.PaymentSession, error) {
		return nil, &domain.UpstreamError{StatusCode: 502, Message: "gateway unavailable"}
	}
	f := openToSummary(t, env)

	f, _, err := env.ctrl.InitiatePayment(context.Background(), f.ID, "card")
	if err == nil {
		t.Fatal("expected an error")
	}
	if f.State != flow.StateSummary {
		t.Errorf("expected flow back on summary, got %s", f.State)
	}
	if f.Banner != "gateway unavailable" {
		t.Errorf("expected server message banner, got %q", f.Banner)
	}
	if f.Session != nil {
		t.Error("expected no session after failed initiation")
	}
}

func TestInitiatePaymentCheckoutFailure(t *testing.T) {
	env := newTestEnv()
	env.collector.CheckoutErr = errors.New("surface not loaded")
	f := openToSummary(t, env)

	f, _, err := env.ctrl.InitiatePayment(context.Background(), f.ID, "card")
	if err == nil {
		t.Fatal("expected an error")
	}
	if f.State != flow.StateSummary {
		t.Errorf("expected flow back on summary, got %s", f.State)
	}
	if f.Banner != flow.MsgInitiateFailed {
		t.Errorf("expected %q banner, got %q", flow.MsgInitiateFailed, f.Banner)
	}
}

func TestSubmitProofConfirms(t *testing.T) {
	env := newTestEnv()
	f := openToAwaitingPayment(t, env)

	proof := domain.PaymentProof{
		GatewayOrderID:   "gw-order-1",
		GatewayPaymentID: "gw-pay-1",
		GatewaySignature: "sig-1",
	}
	f, err := env.ctrl.SubmitProof(context.Background(), f.ID, proof)
	if err != nil {
		t.Fatal(err)
	}
	if f.State != flow.StateConfirmed {
		t.Errorf("expected confirmed, got %s", f.State)
	}
	if f.Booking == nil || f.Booking.ReceiptID != "rcpt-1" {
		t.Fatalf("expected receipt rcpt-1, got %+v", f.Booking)
	}
	if f.Session != nil {
		t.Error("expected session consumed")
	}
	if len(env.receipts.Saved) != 1 {
		t.Errorf("expected one saved receipt, got %d", len(env.receipts.Saved))
	}
	if len(env.pub.Keys) != 1 || env.pub.Keys[0] != "booking.confirmed" {
		t.Errorf("expected booking.confirmed published, got %v", env.pub.Keys)
	}
	if env.collector.Released != 1 {
		t.Errorf("expected collector released once, got %d", env.collector.Released)
	}
}

func TestSubmitProofVerificationFailure(t *testing.T) {
	env := newTestEnv()
	env.api.VerifyFn = func(proof domain.PaymentProof) (*domain.ConfirmedBooking, error) {
		return nil, &domain.UpstreamError{StatusCode: 400, Message: "signature mismatch"}
	}
	f := openToAwaitingPayment(t, env)

	proof := domain.PaymentProof{
		GatewayOrderID:   "gw-order-1",
		GatewayPaymentID: "gw-pay-1",
		GatewaySignature: "sig-bad",
	}
	f, err := env.ctrl.SubmitProof(context.Background(), f.ID, proof)
	if err == nil {
		t.Fatal("expected an error")
	}
	if f.State != flow.StateFailed {
		t.Errorf("expected failed terminal state, got %s", f.State)
	}
	// every verification failure shows the same fixed banner, never the cause
	if f.Banner != flow.MsgVerificationFailed {
		t.Errorf("expected %q banner, got %q", flow.MsgVerificationFailed, f.Banner)
	}
	if len(env.receipts.Saved) != 0 {
		t.Errorf("expected no receipt, got %d", len(env.receipts.Saved))
	}
	if !env.audit.has("verification.failed") {
		t.Error("expected verification.failed audit entry")
	}
}

func TestSubmitProofRejectsEmptyProof(t *testing.T) {
	env := newTestEnv()
	f := openToAwaitingPayment(t, env)

	_, err := env.ctrl.SubmitProof(context.Background(), f.ID, domain.PaymentProof{GatewayOrderID: "gw-order-1"})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected invalid input, got %v", err)
	}
	if env.api.VerifyCalls != 0 {
		t.Errorf("expected no verify call, got %d", env.api.VerifyCalls)
	}
}

func TestSubmitProofReceiptStoreFailureDoesNotFailFlow(t *testing.T) {
	env := newTestEnv()
	env.receipts.Err = errors.New("crdb down")
	f := openToAwaitingPayment(t, env)

	proof := domain.PaymentProof{
		GatewayOrderID:   "gw-order-1",
		GatewayPaymentID: "gw-pay-1",
		GatewaySignature: "sig-1",
	}
	f, err := env.ctrl.SubmitProof(context.Background(), f.ID, proof)
	if err != nil {
		t.Fatal(err)
	}
	if f.State != flow.StateConfirmed {
		t.Errorf("expected confirmed despite receipt store failure, got %s", f.State)
	}
}

func TestDismissPayment(t *testing.T) {
	env := newTestEnv()
	f := openToAwaitingPayment(t, env)

	f, err := env.ctrl.DismissPayment(context.Background(), f.ID)
	if err != nil {
		t.Fatal(err)
	}
	if f.State != flow.StateSummary {
		t.Errorf("expected summary after dismiss, got %s", f.State)
	}
	if f.Banner != "" {
		t.Errorf("expected no banner on dismiss, got %q", f.Banner)
	}
	if f.Session != nil {
		t.Error("expected session cleared on dismiss")
	}
	if f.Lock == nil {
		t.Error("expected lock kept for manual retry")
	}

	// retry works: the lock is still there
	f, _, err = env.ctrl.InitiatePayment(context.Background(), f.ID, "card")
	if err != nil {
		t.Fatal(err)
	}
	if f.State != flow.StateAwaitingPayment {
		t.Errorf("expected awaiting_payment after retry, got %s", f.State)
	}
}

func TestAbandon(t *testing.T) {
	env := newTestEnv()
	f := openToSummary(t, env)
	ctx := context.Background()

	if err := env.ctrl.Abandon(ctx, f.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.store.Get(ctx, f.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected flow deleted, got %v", err)
	}
	if env.collector.Released != 1 {
		t.Errorf("expected collector released, got %d", env.collector.Released)
	}
	if !env.audit.has("flow.abandoned") {
		t.Error("expected flow.abandoned audit entry")
	}
}

func TestAbandonTerminalFlowIsClose(t *testing.T) {
	env := newTestEnv()
	f := openToAwaitingPayment(t, env)
	ctx := context.Background()

	proof := domain.PaymentProof{
		GatewayOrderID:   "gw-order-1",
		GatewayPaymentID: "gw-pay-1",
		GatewaySignature: "sig-1",
	}
	if _, err := env.ctrl.SubmitProof(ctx, f.ID, proof); err != nil {
		t.Fatal(err)
	}
	if err := env.ctrl.Abandon(ctx, f.ID); err != nil {
		t.Fatal(err)
	}
	if env.audit.has("flow.abandoned") {
		t.Error("expected a terminal flow to close, not abandon")
	}
	if !env.audit.has("flow.closed") {
		t.Error("expected flow.closed audit entry")
	}
	// verification already released the lease; closing must not release again
	if env.collector.Released != 2 {
		t.Errorf("expected one release for confirm and one no-op for close, got %d", env.collector.Released)
	}
}

func TestAbandonAfterConfirmLeavesOtherLeases(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	other, err := env.ctrl.Open(ctx, testIdentity(), "evt-2")
	if err != nil {
		t.Fatal(err)
	}

	f := openToAwaitingPayment(t, env)
	proof := domain.PaymentProof{
		GatewayOrderID:   "gw-order-1",
		GatewayPaymentID: "gw-pay-1",
		GatewaySignature: "sig-1",
	}
	if _, err := env.ctrl.SubmitProof(ctx, f.ID, proof); err != nil {
		t.Fatal(err)
	}
	if err := env.ctrl.Abandon(ctx, f.ID); err != nil {
		t.Fatal(err)
	}

	// the confirmed flow released once on verification; closing it again
	// must not take the still-open flow's lease with it
	if got := env.collector.LiveLeases(); got != 1 {
		t.Fatalf("expected the open flow to keep its lease, got %d live", got)
	}

	if _, err := env.ctrl.SelectTicket(ctx, other.ID, "tt-1", "General", 500); err != nil {
		t.Fatal(err)
	}
	if _, err := env.ctrl.SetQuantity(ctx, other.ID, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := env.ctrl.Advance(ctx, other.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.ctrl.UpdateAttendee(ctx, other.ID, "Ravi Iyer", "ravi@example.com", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := env.ctrl.LockTickets(ctx, other.ID); err != nil {
		t.Fatal(err)
	}
	got, _, err := env.ctrl.InitiatePayment(ctx, other.ID, "card")
	if err != nil {
		t.Fatalf("expected the open flow to still reach payment, got %v", err)
	}
	if got.State != flow.StateAwaitingPayment {
		t.Errorf("expected awaiting_payment, got %s", got.State)
	}
}

func TestMutationClearsBanner(t *testing.T) {
	env := newTestEnv()
	env.api.LockFn = func(req domain.LockRequest) (*domain.LockRecord, error) {
		return nil, errors.New("connection refused")
	}
	f := openToAttendee(t, env)
	ctx := context.Background()

	f, err := env.ctrl.LockTickets(ctx, f.ID)
	if err == nil {
		t.Fatal("expected an error")
	}
	if f.Banner == "" {
		t.Fatal("expected a banner after failed lock")
	}

	f, err = env.ctrl.UpdateAttendee(ctx, f.ID, "Asha Rao", "asha@example.com", "")
	if err != nil {
		t.Fatal(err)
	}
	if f.Banner != "" {
		t.Errorf("expected banner cleared by the next mutation, got %q", f.Banner)
	}
}
