package controller

import (
	"net/http"
	"strconv"
	"time"

	domainErrors "github.com/cassiomorais/paysecure/internal/domain/errors"
	"github.com/cassiomorais/paysecure/internal/domain/payment"
	"github.com/cassiomorais/paysecure/internal/service"
	"github.com/go-chi/chi/v5"
)

const idempotencyHeader = "Idempotency-Key"

// PaymentController handles payment-related HTTP requests.
type PaymentController struct {
	paymentService *service.PaymentService
}

// NewPaymentController creates a new PaymentController.
func NewPaymentController(paymentService *service.PaymentService) *PaymentController {
	return &PaymentController{paymentService: paymentService}
}

// CreatePayment handles POST /api/v1/payments
func (h *PaymentController) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	key := r.Header.Get(idempotencyHeader)
	if key == "" {
		writeError(w, r, domainErrors.NewValidationError("idempotency_key", "Idempotency-Key header is required"))
		return
	}

	resp, err := h.paymentService.CreatePayment(r.Context(), service.CreatePaymentRequest{
		IdempotencyKey: key,
		OrderID:        req.OrderID,
		Amount:         req.Amount,
		Currency:       req.Currency,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if !resp.Created {
		w.Header().Set("X-Idempotency-Replayed", "true")
		status = http.StatusOK
	}
	writeJSON(w, status, FromPayment(resp.Payment))
}

// GetPayment handles GET /api/v1/payments/{id}
func (h *PaymentController) GetPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.paymentService.GetPayment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FromPayment(p))
}

// ListPayments handles GET /api/v1/payments?status=&order_id=&created_before=&limit=
func (h *PaymentController) ListPayments(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	payments, err := h.paymentService.ListPayments(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := ListPaymentsResponse{Payments: make([]*PaymentResponse, 0, len(payments))}
	for _, p := range payments {
		resp.Payments = append(resp.Payments, FromPayment(p))
	}
	resp.Count = len(resp.Payments)
	writeJSON(w, http.StatusOK, resp)
}

func parseListFilter(r *http.Request) (payment.ListFilter, error) {
	q := r.URL.Query()
	filter := payment.ListFilter{OrderID: q.Get("order_id")}

	if s := q.Get("status"); s != "" {
		status := payment.Status(s)
		if !status.Valid() {
			return filter, domainErrors.NewValidationError("status", "unknown status "+s)
		}
		filter.Status = &status
	}
	if s := q.Get("created_before"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return filter, domainErrors.NewValidationError("created_before", "must be an RFC 3339 timestamp")
		}
		filter.CreatedBefore = &t
	}
	if s := q.Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 0 {
			return filter, domainErrors.NewValidationError("limit", "must be a non-negative integer")
		}
		filter.Limit = limit
	}
	return filter, nil
}

// Authorize handles POST /api/v1/payments/{id}/authorize
func (h *PaymentController) Authorize(w http.ResponseWriter, r *http.Request) {
	p, err := h.paymentService.Authorize(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FromPayment(p))
}

// RefreshStatus handles POST /api/v1/payments/{id}/refresh
func (h *PaymentController) RefreshStatus(w http.ResponseWriter, r *http.Request) {
	p, err := h.paymentService.RefreshStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FromPayment(p))
}

// Capture handles POST /api/v1/payments/{id}/capture
func (h *PaymentController) Capture(w http.ResponseWriter, r *http.Request) {
	var req CaptureRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	p, err := h.paymentService.Capture(r.Context(), chi.URLParam(r, "id"), service.CaptureRequest{Amount: req.Amount})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FromPayment(p))
}

// Refund handles POST /api/v1/payments/{id}/refund
func (h *PaymentController) Refund(w http.ResponseWriter, r *http.Request) {
	var req RefundRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	resp, err := h.paymentService.Refund(r.Context(), chi.URLParam(r, "id"), service.RefundRequest{
		Amount:         req.Amount,
		Reason:         req.Reason,
		IdempotencyKey: r.Header.Get(idempotencyHeader),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := RefundResultResponse{Payment: FromPayment(resp.Payment)}
	if resp.Refund != nil {
		out.Refund = FromRefund(resp.Refund, resp.Payment.Currency)
	}
	writeJSON(w, http.StatusCreated, out)
}

// ListRefunds handles GET /api/v1/payments/{id}/refunds
func (h *PaymentController) ListRefunds(w http.ResponseWriter, r *http.Request) {
	p, err := h.paymentService.GetPayment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := make([]*RefundResponse, 0, len(p.Refunds))
	for i := range p.Refunds {
		resp = append(resp, FromRefund(&p.Refunds[i], p.Currency))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Cancel handles POST /api/v1/payments/{id}/cancel
func (h *PaymentController) Cancel(w http.ResponseWriter, r *http.Request) {
	p, err := h.paymentService.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FromPayment(p))
}
