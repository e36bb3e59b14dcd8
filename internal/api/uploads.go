package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/erazemk/zaloga/internal/auth"
	"github.com/erazemk/zaloga/internal/inventory"
	"github.com/erazemk/zaloga/internal/model"
)

// UploadsHandler handles spreadsheet imports and their provenance.
type UploadsHandler struct {
	Inventory *inventory.Service
	Policy    *auth.Policy
	MaxBytes  int64
}

// Create handles POST /api/uploads with a multipart "file" field.
func (h *UploadsHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.MaxBytes)
	if err := r.ParseMultipartForm(h.MaxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		jsonError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "file required")
		return
	}
	defer file.Close()

	out, err := h.Inventory.Import(r.Context(), header.Filename, file, &claims.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if _, err := h.Policy.AfterImport(r.Context(), claims.UserID); err != nil {
		slog.Error("failed to apply import role policy", "user", claims.Email, "error", err)
	}

	slog.Info("file imported", "user", claims.Email, "file", header.Filename,
		"imported", out.Imported, "skipped", out.Skipped)
	jsonResponse(w, http.StatusCreated, out)
}

// List handles GET /api/uploads.
func (h *UploadsHandler) List(w http.ResponseWriter, r *http.Request) {
	uploads, err := h.Inventory.Uploads(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if uploads == nil {
		uploads = []model.UploadBatch{}
	}
	jsonResponse(w, http.StatusOK, uploads)
}

// Items handles GET /api/uploads/{id}/items.
func (h *UploadsHandler) Items(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid upload id")
		return
	}
	records, err := h.Inventory.UploadItems(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if records == nil {
		records = []model.StockRecord{}
	}
	jsonResponse(w, http.StatusOK, records)
}
