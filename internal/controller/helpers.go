package controller

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	domainErrors "github.com/cassiomorais/paysecure/internal/domain/errors"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

const maxBodySize = 1 << 20

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type errorMapping struct {
	err    error
	status int
	code   string
	// opaque replaces the error text with the sentinel's own message.
	opaque bool
}

var errorMappings = []errorMapping{
	{domainErrors.ErrPaymentNotFound, http.StatusNotFound, "not_found", false},
	{domainErrors.ErrAuthorizationPending, http.StatusConflict, "authorization_pending", false},
	{domainErrors.ErrInvalidStateTransition, http.StatusConflict, "invalid_state_transition", false},
	{domainErrors.ErrUnauthorized, http.StatusUnauthorized, "unauthorized", true},
	{domainErrors.ErrProviderTimeout, http.StatusGatewayTimeout, "gateway_timeout", true},
	{domainErrors.ErrProviderRejected, http.StatusBadGateway, "gateway_rejected", false},
	{domainErrors.ErrProviderAuth, http.StatusBadGateway, "gateway_auth", true},
	{domainErrors.ErrProviderUnavailable, http.StatusBadGateway, "gateway_unavailable", true},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps err onto the HTTP error taxonomy and logs the failure once.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := errorResponse(err)

	log := zerolog.Ctx(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("request failed")
	} else {
		log.Info().Err(err).Int("status", status).Str("code", resp.Code).Msg("request rejected")
	}

	writeJSON(w, status, resp)
}

func errorResponse(err error) (int, ErrorResponse) {
	resp := ErrorResponse{Error: err.Error()}

	var validationErr *domainErrors.ValidationError
	if errors.As(err, &validationErr) {
		resp.Code = "validation_error"
		resp.Field = validationErr.Field
		return http.StatusBadRequest, resp
	}

	for _, m := range errorMappings {
		if !errors.Is(err, m.err) {
			continue
		}
		resp.Code = m.code
		if m.opaque {
			resp.Error = m.err.Error()
		}
		var domainErr *domainErrors.DomainError
		if errors.As(err, &domainErr) && domainErr.Code != "" {
			resp.Code = domainErr.Code
		}
		return m.status, resp
	}

	return http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Code: "internal_error"}
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return domainErrors.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	if err := validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			return domainErrors.NewValidationError(ve[0].Field(), ve[0].Tag()+" validation failed")
		}
		return domainErrors.NewValidationError("body", err.Error())
	}
	return nil
}
