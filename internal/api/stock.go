package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/erazemk/zaloga/internal/inventory"
	"github.com/erazemk/zaloga/internal/model"
)

// StockHandler handles stock queries and lifecycle transitions.
type StockHandler struct {
	Inventory    *inventory.Service
	ExpiringDays int
}

type transferRequest struct {
	Quantity int `json:"quantity" validate:"required,gt=0"`
}

type sellRequest struct {
	Quantity *int `json:"quantity"`
}

type discountRequest struct {
	Percent *decimal.Decimal `json:"percent"`
}

type sellResponse struct {
	Source *model.StockRecord `json:"source"`
	Sold   *model.StockRecord `json:"sold"`
}

// List handles GET /api/stock. Status defaults to showcase and may list
// several statuses separated by commas.
func (h *StockHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := model.StockFilter{
		Category: q.Get("category"),
		Search:   q.Get("q"),
	}
	statuses := q.Get("status")
	if statuses == "" {
		statuses = string(model.StatusShowcase)
	}
	for _, raw := range strings.Split(statuses, ",") {
		st, err := model.ParseStatus(strings.TrimSpace(raw))
		if err != nil {
			jsonError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Statuses = append(filter.Statuses, st)
	}

	records, err := h.Inventory.Query(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if records == nil {
		records = []model.StockRecord{}
	}
	jsonResponse(w, http.StatusOK, records)
}

// Get handles GET /api/stock/{id}.
func (h *StockHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid stock id")
		return
	}
	rec, err := h.Inventory.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, rec)
}

type scanResponse struct {
	*model.StockRecord
	OnHand int `json:"on_hand"`
}

// Scan handles GET /api/stock/scan/{barcode}.
func (h *StockHandler) Scan(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Inventory.Scan(r.Context(), chi.URLParam(r, "barcode"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	onHand, err := h.Inventory.OnHand(r.Context(), rec.Barcode)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, scanResponse{StockRecord: rec, OnHand: onHand})
}

// Expiring handles GET /api/stock/expiring.
func (h *StockHandler) Expiring(w http.ResponseWriter, r *http.Request) {
	days := h.ExpiringDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			jsonError(w, http.StatusBadRequest, "days must be a non-negative integer")
			return
		}
		days = n
	}

	records, err := h.Inventory.Expiring(r.Context(), days)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if records == nil {
		records = []model.StockRecord{}
	}
	jsonResponse(w, http.StatusOK, records)
}

// Forecast handles GET /api/forecast.
func (h *StockHandler) Forecast(w http.ResponseWriter, r *http.Request) {
	forecasts, err := h.Inventory.Forecast(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, forecasts)
}

// History handles GET /api/stock/{id}/history.
func (h *StockHandler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid stock id")
		return
	}
	moves, err := h.Inventory.History(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if moves == nil {
		moves = []model.Movement{}
	}
	jsonResponse(w, http.StatusOK, moves)
}

// ToShowcase handles POST /api/stock/{id}/showcase.
func (h *StockHandler) ToShowcase(w http.ResponseWriter, r *http.Request) {
	h.transfer(w, r, h.Inventory.ToShowcase)
}

// ToWarehouse handles POST /api/stock/{id}/warehouse.
func (h *StockHandler) ToWarehouse(w http.ResponseWriter, r *http.Request) {
	h.transfer(w, r, h.Inventory.ToWarehouse)
}

type transferFunc func(ctx context.Context, id int64, quantity int, actor *int64) (*inventory.Result, error)

func (h *StockHandler) transfer(w http.ResponseWriter, r *http.Request, move transferFunc) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid stock id")
		return
	}
	var req transferRequest
	if !bindAndValidate(w, r, &req) {
		return
	}

	res, err := move(r.Context(), id, req.Quantity, actorID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}

// Sell handles POST /api/stock/{id}/sell. Without a body one unit is sold.
func (h *StockHandler) Sell(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid stock id")
		return
	}

	var req sellRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	res, err := h.Inventory.Sell(r.Context(), id, quantity, actorID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, sellResponse{Source: res.Source, Sold: res.Target})
}

// Remove handles POST /api/stock/{id}/remove.
func (h *StockHandler) Remove(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid stock id")
		return
	}
	rec, err := h.Inventory.Remove(r.Context(), id, actorID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, rec)
}

// Discount handles POST /api/stock/{id}/discount.
func (h *StockHandler) Discount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid stock id")
		return
	}
	var req discountRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Percent == nil {
		jsonError(w, http.StatusBadRequest, "percent required")
		return
	}

	out, err := h.Inventory.ApplyDiscount(r.Context(), id, *req.Percent)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, out)
}
