package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/voyago/booking-flow/internal/domain"
	"github.com/voyago/booking-flow/internal/flow"
)

// HostedCheckout adapts the third-party hosted payment surface. Flows hold
// leases keyed by flow id: the first lease probes the surface (the
// equivalent of loading the checkout script once per mount) and the surface
// drops when the last lease is released or expires. Leases carry the flow
// deadline, so an attempt that dies without releasing, by value expiry or
// the sweeper, stops counting on its own and can never pin the surface for
// other flows.
type HostedCheckout struct {
	keyID   string
	baseURL string
	httpc   *http.Client

	mu     sync.Mutex
	leases map[uuid.UUID]time.Time
}

func NewHostedCheckout(keyID, baseURL string) *HostedCheckout {
	return &HostedCheckout{
		keyID:   keyID,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		leases: make(map[uuid.UUID]time.Time),
	}
}

// prune drops expired leases. Callers hold mu.
func (h *HostedCheckout) prune(now time.Time) {
	for id, deadline := range h.leases {
		if deadline.Before(now) {
			delete(h.leases, id)
		}
	}
}

func (h *HostedCheckout) Acquire(ctx context.Context, id uuid.UUID, deadline time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.prune(time.Now())
	if len(h.leases) == 0 && h.baseURL != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, h.baseURL+"/checkout.js", nil)
		if err != nil {
			return errors.Wrap(err, "build checkout probe")
		}
		resp, err := h.httpc.Do(req)
		if err != nil {
			return errors.Wrap(err, "payment surface unreachable")
		}
		resp.Body.Close()
		if resp.StatusCode >= http.StatusBadRequest {
			return errors.Newf("payment surface returned %d", resp.StatusCode)
		}
	}
	h.leases[id] = deadline
	return nil
}

func (h *HostedCheckout) Release(ctx context.Context, id uuid.UUID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.leases, id)
	return nil
}

// Checkout builds the handoff the front end needs to open the surface for
// one payment session. The session is consumed by this single handoff.
func (h *HostedCheckout) Checkout(ctx context.Context, session domain.PaymentSession, prefill domain.AttendeeInfo) (flow.CheckoutIntent, error) {
	if session.GatewayOrderID == "" {
		return flow.CheckoutIntent{}, domain.ErrInvalidInput
	}
	h.mu.Lock()
	h.prune(time.Now())
	acquired := len(h.leases) > 0
	h.mu.Unlock()
	if !acquired {
		return flow.CheckoutIntent{}, errors.New("payment surface not acquired")
	}

	q := url.Values{}
	q.Set("order_id", session.GatewayOrderID)
	q.Set("key_id", h.keyID)
	return flow.CheckoutIntent{
		KeyID:            h.keyID,
		GatewayOrderID:   session.GatewayOrderID,
		AmountMinorUnits: session.AmountMinorUnits,
		Currency:         session.Currency,
		CheckoutURL:      h.baseURL + "/checkout?" + q.Encode(),
		Prefill:          prefill,
	}, nil
}
