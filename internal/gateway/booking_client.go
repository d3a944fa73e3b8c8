package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/voyago/booking-flow/internal/domain"
	"github.com/voyago/booking-flow/internal/observability"
)

// BookingClient talks to the remote reservation and verification REST API.
// No client-side timeout is set; cancellation comes from the request context.
type BookingClient struct {
	baseURL string
	httpc   *http.Client
}

func NewBookingClient(baseURL string) *BookingClient {
	return &BookingClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type lockResponse struct {
	LockID        string  `json:"lock_id"`
	EventID       string  `json:"event_id"`
	EventTicketID string  `json:"event_ticket_id"`
	CustomerID    string  `json:"customer_id"`
	TicketQty     int     `json:"ticket_qty"`
	TotalAmount   float64 `json:"total_amount"`
}

func (c *BookingClient) LockTickets(ctx context.Context, identity domain.Identity, req domain.LockRequest) (*domain.LockRecord, error) {
	body := map[string]any{
		"event_id":        req.EventID,
		"event_ticket_id": req.EventTicketID,
		"customer_id":     req.CustomerID,
		"ticket_qty":      req.TicketQty,
	}
	var resp lockResponse
	if err := c.post(ctx, identity, "/bookings/lock", "lock", body, &resp); err != nil {
		return nil, err
	}
	return &domain.LockRecord{
		LockID:       resp.LockID,
		EventID:      resp.EventID,
		TicketTypeID: resp.EventTicketID,
		CustomerID:   resp.CustomerID,
		Quantity:     resp.TicketQty,
		TotalAmount:  resp.TotalAmount,
	}, nil
}

type initiateResponse struct {
	OrderReference   string `json:"order_reference"`
	GatewayOrderID   string `json:"gateway_order_id"`
	AmountMinorUnits int64  `json:"amount"`
	Currency         string `json:"currency"`
}

func (c *BookingClient) InitiatePayment(ctx context.Context, identity domain.Identity, lockID, method string) (*domain.PaymentSession, error) {
	if lockID == "" {
		return nil, domain.ErrInvalidInput
	}
	path := "/bookings/" + url.PathEscape(lockID) + "/payment/initiate"
	body := map[string]any{"payment_method": method}
	var resp initiateResponse
	if err := c.post(ctx, identity, path, "initiate", body, &resp); err != nil {
		return nil, err
	}
	return &domain.PaymentSession{
		OrderReference:   resp.OrderReference,
		GatewayOrderID:   resp.GatewayOrderID,
		AmountMinorUnits: resp.AmountMinorUnits,
		Currency:         resp.Currency,
	}, nil
}

type confirmedResponse struct {
	ReceiptID string `json:"receipt_id"`
	Event     struct {
		EventID  string    `json:"event_id"`
		Name     string    `json:"name"`
		Venue    string    `json:"venue"`
		StartsAt time.Time `json:"starts_at"`
	} `json:"event"`
	Ticket struct {
		TicketTypeID string  `json:"ticket_type_id"`
		DisplayName  string  `json:"display_name"`
		UnitPrice    float64 `json:"unit_price"`
	} `json:"ticket"`
	Customer struct {
		CustomerID string `json:"customer_id"`
		FullName   string `json:"full_name"`
		Email      string `json:"email"`
		Phone      string `json:"phone"`
	} `json:"customer"`
	TicketQty   int       `json:"ticket_qty"`
	TotalAmount float64   `json:"total_amount"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

func (c *BookingClient) VerifyPayment(ctx context.Context, identity domain.Identity, proof domain.PaymentProof) (*domain.ConfirmedBooking, error) {
	body := map[string]any{
		"gateway_order_id":   proof.GatewayOrderID,
		"gateway_payment_id": proof.GatewayPaymentID,
		"gateway_signature":  proof.GatewaySignature,
	}
	var resp confirmedResponse
	if err := c.post(ctx, identity, "/bookings/payment/success", "verify", body, &resp); err != nil {
		return nil, err
	}
	return &domain.ConfirmedBooking{
		ReceiptID: resp.ReceiptID,
		Event: domain.EventSnapshot{
			EventID:  resp.Event.EventID,
			Name:     resp.Event.Name,
			Venue:    resp.Event.Venue,
			StartsAt: resp.Event.StartsAt,
		},
		Ticket: domain.TicketSnapshot{
			TicketTypeID: resp.Ticket.TicketTypeID,
			DisplayName:  resp.Ticket.DisplayName,
			UnitPrice:    resp.Ticket.UnitPrice,
		},
		Customer: domain.CustomerSnapshot{
			CustomerID: resp.Customer.CustomerID,
			FullName:   resp.Customer.FullName,
			Email:      resp.Customer.Email,
			Phone:      resp.Customer.Phone,
		},
		Quantity:    resp.TicketQty,
		TotalAmount: resp.TotalAmount,
		ConfirmedAt: resp.ConfirmedAt,
	}, nil
}

func (c *BookingClient) post(ctx context.Context, identity domain.Identity, path, endpoint string, body, out any) error {
	start := time.Now()
	defer func() {
		observability.UpstreamRequestSeconds.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	buf, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "encode request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if identity.Token != "" {
		req.Header.Set("Authorization", "Bearer "+identity.Token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrapf(err, "POST %s", path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		var apiErr struct {
			Message string `json:"message"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		_ = json.Unmarshal(data, &apiErr)
		return &domain.UpstreamError{StatusCode: resp.StatusCode, Message: apiErr.Message}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode response for %s", path)
	}
	return nil
}
