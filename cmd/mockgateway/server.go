package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	domainErrors "github.com/cassiomorais/paysecure/internal/domain/errors"
	"github.com/cassiomorais/paysecure/internal/domain/payment"
	"github.com/cassiomorais/paysecure/internal/infrastructure/gateway"
	"github.com/cassiomorais/paysecure/internal/webhook"
	"github.com/cassiomorais/paysecure/pkg/retry"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/shopspring/decimal"
)

// server exposes a MockGateway over the same JSON API HTTPClient speaks, plus
// /approve and /decline pages that play the payer and fire the signed webhook.
type server struct {
	gw     *gateway.MockGateway
	apiKey string
	signer signer
	client *http.Client
	retry  retry.Config
	logger zerolog.Logger
}

type signer struct {
	secret   string
	header   string
	encoding webhook.Encoding
}

type createRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	OrderID     string          `json:"orderId"`
	Reference   string          `json:"reference"`
	CallbackURL string          `json:"callbackUrl"`
}

type amountRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Reason   string          `json:"reason"`
}

type paymentResponse struct {
	ID             string           `json:"id"`
	Status         gateway.Status   `json:"status"`
	ApprovalURL    string           `json:"approval_url,omitempty"`
	Amount         *decimal.Decimal `json:"amount,omitempty"`
	CapturedAmount *decimal.Decimal `json:"captured_amount,omitempty"`
	Currency       string           `json:"currency,omitempty"`
}

type refundResponse struct {
	ID     string               `json:"id"`
	Status gateway.RefundStatus `json:"status"`
	Amount decimal.Decimal      `json:"amount"`
}

type settleResponse struct {
	ID      string         `json:"id"`
	Status  gateway.Status `json:"status"`
	Webhook string         `json:"webhook"`
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(hlog.NewHandler(s.logger))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(chimw.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(s.requireKey)
		r.Post("/payments", s.create)
		r.Get("/payments/{id}", s.status)
		r.Post("/payments/{id}/capture", s.capture)
		r.Post("/payments/{id}/refund", s.refund)
		r.Post("/payments/{id}/cancel", s.cancel)
	})

	// the payer's side; no API key
	r.Get("/approve/{id}", s.approve)
	r.Post("/approve/{id}", s.approve)
	r.Get("/decline/{id}", s.decline)
	r.Post("/decline/{id}", s.decline)
	return r
}

func (s *server) requireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get("Authorization") != "Bearer "+s.apiKey {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid api key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if !payment.IsSupportedCurrency(req.Currency) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported currency"})
		return
	}
	amount, err := payment.FromMajorUnits(req.Amount, req.Currency)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	res, err := s.gw.CreatePayment(r.Context(), gateway.CreatePaymentParams{
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		Reference:      req.Reference,
		OrderID:        req.OrderID,
		Amount:         amount,
		Currency:       req.Currency,
		CallbackURL:    req.CallbackURL,
	})
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, paymentResponse{
		ID:          res.GatewayPaymentID,
		Status:      res.Status,
		ApprovalURL: res.ApprovalURL,
		Amount:      &req.Amount,
		Currency:    req.Currency,
	})
}

func (s *server) status(w http.ResponseWriter, r *http.Request) {
	res, err := s.gw.GetStatus(r.Context(), gateway.GetStatusParams{GatewayPaymentID: chi.URLParam(r, "id")})
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	amount := payment.ToMajorUnits(res.Amount, res.Currency)
	captured := payment.ToMajorUnits(res.CapturedAmount, res.Currency)
	writeJSON(w, http.StatusOK, paymentResponse{
		ID:             res.GatewayPaymentID,
		Status:         res.Status,
		Amount:         &amount,
		CapturedAmount: &captured,
		Currency:       res.Currency,
	})
}

func (s *server) capture(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	req, amount, ok := decodeAmount(w, r, s.gw, id)
	if !ok {
		return
	}
	res, err := s.gw.Capture(r.Context(), gateway.CaptureParams{
		IdempotencyKey:   r.Header.Get("Idempotency-Key"),
		GatewayPaymentID: id,
		Amount:           amount,
		Currency:         req.Currency,
	})
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	captured := payment.ToMajorUnits(res.CapturedAmount, req.Currency)
	writeJSON(w, http.StatusOK, paymentResponse{ID: id, Status: res.Status, Amount: &captured, Currency: req.Currency})
}

func (s *server) refund(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	req, amount, ok := decodeAmount(w, r, s.gw, id)
	if !ok {
		return
	}
	res, err := s.gw.Refund(r.Context(), gateway.RefundParams{
		IdempotencyKey:   r.Header.Get("Idempotency-Key"),
		GatewayPaymentID: id,
		Amount:           amount,
		Currency:         req.Currency,
		Reason:           req.Reason,
	})
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, refundResponse{
		ID:     res.RefundID,
		Status: res.Status,
		Amount: payment.ToMajorUnits(res.Amount, req.Currency),
	})
}

func (s *server) cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := s.gw.Cancel(r.Context(), gateway.CancelParams{
		IdempotencyKey:   r.Header.Get("Idempotency-Key"),
		GatewayPaymentID: id,
	})
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, paymentResponse{ID: id, Status: res.Status})
}

func (s *server) approve(w http.ResponseWriter, r *http.Request) {
	s.settle(w, r, s.gw.Approve, webhook.EventPaymentSuccess, "")
}

func (s *server) decline(w http.ResponseWriter, r *http.Request) {
	s.settle(w, r, s.gw.Decline, webhook.EventPaymentFailed, "declined by payer")
}

func (s *server) settle(w http.ResponseWriter, r *http.Request, fn func(string) (gateway.MockPayment, error), event, reason string) {
	mp, err := fn(chi.URLParam(r, "id"))
	if err != nil {
		writeGatewayError(w, err)
		return
	}

	amount := payment.ToMajorUnits(mp.Amount, mp.Currency)
	env := webhook.Envelope{
		Event: event,
		Data: webhook.EventData{
			EventID:          uuid.NewString(),
			PaymentID:        mp.Reference,
			OrderID:          mp.OrderID,
			GatewayPaymentID: mp.ID,
			Amount:           &amount,
			Reason:           reason,
		},
	}

	delivery := "skipped"
	if mp.CallbackURL != "" {
		delivery = "delivered"
		if err := s.sendWebhook(r.Context(), mp.CallbackURL, env); err != nil {
			hlog.FromRequest(r).Error().Err(err).Str("payment_id", mp.ID).Str("event", event).Msg("Webhook delivery failed")
			delivery = "failed"
		}
	}
	writeJSON(w, http.StatusOK, settleResponse{ID: mp.ID, Status: mp.Status, Webhook: delivery})
}

// sendWebhook posts a signed event, retrying 5xx and transport failures.
func (s *server) sendWebhook(ctx context.Context, url string, env webhook.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal webhook: %w", err)
	}

	return retry.Do(ctx, s.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return retry.Unrecoverable(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if s.signer.secret != "" {
			req.Header.Set(s.signer.header, webhook.Sign(s.signer.secret, body, s.signer.encoding))
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		switch {
		case resp.StatusCode >= 500:
			return fmt.Errorf("webhook receiver returned %d", resp.StatusCode)
		case resp.StatusCode >= 400:
			return retry.Unrecoverable(fmt.Errorf("webhook receiver rejected event with %d", resp.StatusCode))
		}
		return nil
	})
}

// decodeAmount reads a capture or refund body. The currency defaults to the
// payment's own so callers may send the amount alone.
func decodeAmount(w http.ResponseWriter, r *http.Request, gw *gateway.MockGateway, id string) (amountRequest, int64, bool) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return req, 0, false
	}
	if req.Currency == "" {
		if mp, ok := gw.Lookup(id); ok {
			req.Currency = mp.Currency
		}
	}
	amount, err := payment.FromMajorUnits(req.Amount, req.Currency)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return req, 0, false
	}
	return req, amount, true
}

func writeGatewayError(w http.ResponseWriter, err error) {
	var gwErr *domainErrors.GatewayError
	if !errors.As(err, &gwErr) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	status := gwErr.StatusCode
	if status == 0 {
		status = http.StatusBadGateway
		if gwErr.Kind == domainErrors.GatewayTimeout {
			status = http.StatusGatewayTimeout
		}
	}
	writeJSON(w, status, map[string]string{"error": gwErr.Message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
