package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/voyago/booking-flow/internal/config"
	"github.com/voyago/booking-flow/internal/domain"
	"github.com/voyago/booking-flow/internal/flow"
)

// ReceiptReader is the read side of the receipt repository.
type ReceiptReader interface {
	GetReceipt(ctx context.Context, receiptID string) (*domain.ConfirmedBooking, error)
	ListByCustomer(ctx context.Context, customerID string, limit int) ([]domain.ConfirmedBooking, error)
}

type Handlers struct {
	cfg      *config.Config
	ctrl     *flow.Controller
	receipts ReceiptReader
}

func NewHandlers(cfg *config.Config, ctrl *flow.Controller, receipts ReceiptReader) *Handlers {
	return &Handlers{cfg: cfg, ctrl: ctrl, receipts: receipts}
}

func identityFrom(r *http.Request) domain.Identity {
	token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer"))
	return domain.Identity{
		CustomerID: r.Header.Get("X-Customer-Id"),
		Token:      token,
	}
}

func (h *Handlers) OpenFlow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EventID string `json:"event_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f, err := h.ctrl.Open(r.Context(), identityFrom(r), req.EventID)
	if err != nil {
		if errors.Is(err, domain.ErrMissingDetails) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": flow.MsgMissingDetails})
			return
		}
		h.respondFlow(w, f, err, 0)
		return
	}
	h.respondFlow(w, f, nil, http.StatusCreated)
}

func (h *Handlers) GetFlow(w http.ResponseWriter, r *http.Request) {
	f, ok := h.ownedFlow(w, r)
	if !ok {
		return
	}
	h.respondFlow(w, f, nil, 0)
}

func (h *Handlers) SelectTicket(w http.ResponseWriter, r *http.Request) {
	f, ok := h.ownedFlow(w, r)
	if !ok {
		return
	}
	var req struct {
		TicketTypeID string  `json:"ticket_type_id"`
		DisplayName  string  `json:"display_name"`
		UnitPrice    float64 `json:"unit_price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f, err := h.ctrl.SelectTicket(r.Context(), f.ID, req.TicketTypeID, req.DisplayName, req.UnitPrice)
	h.respondFlow(w, f, err, 0)
}

func (h *Handlers) SetQuantity(w http.ResponseWriter, r *http.Request) {
	f, ok := h.ownedFlow(w, r)
	if !ok {
		return
	}
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f, err := h.ctrl.SetQuantity(r.Context(), f.ID, req.Quantity)
	h.respondFlow(w, f, err, 0)
}

func (h *Handlers) UpdateAttendee(w http.ResponseWriter, r *http.Request) {
	f, ok := h.ownedFlow(w, r)
	if !ok {
		return
	}
	var req struct {
		FullName string `json:"full_name"`
		Email    string `json:"email"`
		Phone    string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f, err := h.ctrl.UpdateAttendee(r.Context(), f.ID, req.FullName, req.Email, req.Phone)
	h.respondFlow(w, f, err, 0)
}

func (h *Handlers) Advance(w http.ResponseWriter, r *http.Request) {
	f, ok := h.ownedFlow(w, r)
	if !ok {
		return
	}
	f, err := h.ctrl.Advance(r.Context(), f.ID)
	h.respondFlow(w, f, err, 0)
}

func (h *Handlers) Back(w http.ResponseWriter, r *http.Request) {
	f, ok := h.ownedFlow(w, r)
	if !ok {
		return
	}
	f, err := h.ctrl.Back(r.Context(), f.ID)
	h.respondFlow(w, f, err, 0)
}

func (h *Handlers) LockTickets(w http.ResponseWriter, r *http.Request) {
	f, ok := h.ownedFlow(w, r)
	if !ok {
		return
	}
	f, err := h.ctrl.LockTickets(r.Context(), f.ID)
	h.respondFlow(w, f, err, 0)
}

func (h *Handlers) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	f, ok := h.ownedFlow(w, r)
	if !ok {
		return
	}
	var req struct {
		PaymentMethod string `json:"payment_method"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	f, intent, err := h.ctrl.InitiatePayment(r.Context(), f.ID, req.PaymentMethod)
	if err != nil {
		h.respondFlow(w, f, err, 0)
		return
	}
	body := flowJSON(f)
	body["checkout"] = intent
	writeJSON(w, http.StatusOK, body)
}

func (h *Handlers) SubmitProof(w http.ResponseWriter, r *http.Request) {
	f, ok := h.ownedFlow(w, r)
	if !ok {
		return
	}
	var req struct {
		GatewayOrderID   string `json:"gateway_order_id"`
		GatewayPaymentID string `json:"gateway_payment_id"`
		GatewaySignature string `json:"gateway_signature"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f, err := h.ctrl.SubmitProof(r.Context(), f.ID, domain.PaymentProof{
		GatewayOrderID:   req.GatewayOrderID,
		GatewayPaymentID: req.GatewayPaymentID,
		GatewaySignature: req.GatewaySignature,
	})
	h.respondFlow(w, f, err, 0)
}

func (h *Handlers) DismissPayment(w http.ResponseWriter, r *http.Request) {
	f, ok := h.ownedFlow(w, r)
	if !ok {
		return
	}
	f, err := h.ctrl.DismissPayment(r.Context(), f.ID)
	h.respondFlow(w, f, err, 0)
}

func (h *Handlers) AbandonFlow(w http.ResponseWriter, r *http.Request) {
	f, ok := h.ownedFlow(w, r)
	if !ok {
		return
	}
	if err := h.ctrl.Abandon(r.Context(), f.ID); err != nil {
		h.respondFlow(w, nil, err, 0)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ListBookings(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)
	if !identity.Complete() {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": flow.MsgMissingDetails})
		return
	}
	bookings, err := h.receipts.ListByCustomer(r.Context(), identity.CustomerID, 20)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	result := make([]map[string]any, 0, len(bookings))
	for _, b := range bookings {
		result = append(result, bookingJSON(b))
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) GetBooking(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)
	booking, err := h.receipts.GetReceipt(r.Context(), chi.URLParam(r, "receiptID"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "booking not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if booking.Customer.CustomerID != identity.CustomerID {
		http.Error(w, "booking not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, bookingJSON(*booking))
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

// ownedFlow loads the flow from the URL and refuses access for a different
// customer. Missing and foreign flows are indistinguishable to the caller.
func (h *Handlers) ownedFlow(w http.ResponseWriter, r *http.Request) (*flow.Flow, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid flow id", http.StatusBadRequest)
		return nil, false
	}
	f, err := h.ctrl.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "flow not found", http.StatusNotFound)
			return nil, false
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	if f.Identity.CustomerID != identityFrom(r).CustomerID {
		http.Error(w, "flow not found", http.StatusNotFound)
		return nil, false
	}
	return f, true
}

func (h *Handlers) respondFlow(w http.ResponseWriter, f *flow.Flow, err error, okStatus int) {
	if err == nil {
		if okStatus == 0 {
			okStatus = http.StatusOK
		}
		writeJSON(w, okStatus, flowJSON(f))
		return
	}
	status := statusFor(err)
	if f != nil {
		body := flowJSON(f)
		if f.Banner != "" {
			body["error"] = f.Banner
		} else {
			body["error"] = err.Error()
		}
		writeJSON(w, status, body)
		return
	}
	http.Error(w, err.Error(), status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrMissingDetails):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrBusy),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrStaleFlow),
		errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	}
	var ue *domain.UpstreamError
	if errors.As(err, &ue) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func flowJSON(f *flow.Flow) map[string]any {
	resp := map[string]any{
		"id":            f.ID,
		"event_id":      f.EventID,
		"state":         f.State,
		"running_total": f.RunningTotal(),
		"version":       f.Version,
		"attendee": map[string]any{
			"full_name": f.Attendee.FullName,
			"email":     f.Attendee.Email,
			"phone":     f.Attendee.Phone,
		},
	}
	if f.Selection != nil {
		resp["selection"] = map[string]any{
			"ticket_type_id": f.Selection.TicketTypeID,
			"display_name":   f.Selection.DisplayName,
			"unit_price":     f.Selection.UnitPrice,
			"quantity":       f.Selection.Quantity,
		}
	}
	if f.Lock != nil {
		resp["lock"] = map[string]any{
			"lock_id":      f.Lock.LockID,
			"ticket_qty":   f.Lock.Quantity,
			"total_amount": f.Lock.TotalAmount,
		}
	}
	if f.Booking != nil {
		resp["booking"] = bookingJSON(*f.Booking)
	}
	if f.Banner != "" {
		resp["banner"] = f.Banner
	}
	return resp
}

func bookingJSON(b domain.ConfirmedBooking) map[string]any {
	return map[string]any{
		"receipt_id": b.ReceiptID,
		"event": map[string]any{
			"event_id":  b.Event.EventID,
			"name":      b.Event.Name,
			"venue":     b.Event.Venue,
			"starts_at": b.Event.StartsAt,
		},
		"ticket": map[string]any{
			"ticket_type_id": b.Ticket.TicketTypeID,
			"display_name":   b.Ticket.DisplayName,
			"unit_price":     b.Ticket.UnitPrice,
		},
		"customer": map[string]any{
			"customer_id": b.Customer.CustomerID,
			"full_name":   b.Customer.FullName,
			"email":       b.Customer.Email,
			"phone":       b.Customer.Phone,
		},
		"ticket_qty":   b.Quantity,
		"total_amount": b.TotalAmount,
		"confirmed_at": b.ConfirmedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
