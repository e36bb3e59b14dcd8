package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/erazemk/zaloga/internal/barcode"
	"github.com/erazemk/zaloga/internal/importer"
	"github.com/erazemk/zaloga/internal/model"
)

var validate = validator.New()

func init() {
	// Lets tags like required and gt work on decimal fields.
	validate.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if v, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := v.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
}

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode response", "error", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

// bindAndValidate decodes the body and runs validator tags. On failure it
// writes a 400 response and returns false.
func bindAndValidate(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := decodeJSON(r, req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			jsonError(w, http.StatusBadRequest, err.Error())
			return false
		}
		fields := make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			fields[fe.Field()] = fe.Tag()
		}
		jsonResponse(w, http.StatusBadRequest, map[string]any{"error": "validation failed", "fields": fields})
		return false
	}
	return true
}

// writeError maps domain errors to status codes. Anything unrecognised is
// logged and reported as an internal error.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		jsonError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrInvalidQuantity),
		errors.Is(err, model.ErrInsufficientQuantity),
		errors.Is(err, model.ErrInvalidStateTransition),
		errors.Is(err, model.ErrNotExpired),
		errors.Is(err, model.ErrPriceNotSet),
		errors.Is(err, model.ErrInvalidState),
		errors.Is(err, importer.ErrUnsupportedFormat),
		errors.Is(err, importer.ErrUnreadable),
		errors.Is(err, importer.ErrMissingColumn):
		jsonError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, barcode.ErrAllocationExhausted):
		slog.Error("barcode allocation failed", "path", r.URL.Path, "error", err)
		jsonError(w, http.StatusInternalServerError, "no barcode available")
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
	}
}

// pathID parses a numeric URL parameter.
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}
