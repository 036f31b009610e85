package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/erazemk/izposoja/internal/imaging"
	"github.com/erazemk/izposoja/internal/model"
	"github.com/erazemk/izposoja/internal/reservation"
	"github.com/erazemk/izposoja/internal/store"
)

// maxImageUpload bounds the multipart body of an image upload.
const maxImageUpload = 5 << 20

// EquipmentHandler handles equipment catalog endpoints.
type EquipmentHandler struct {
	DB      *sql.DB
	Manager *reservation.Manager
}

type createEquipmentRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description"`
	Category    string `json:"category" validate:"max=100"`
}

type updateEquipmentRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description"`
	Category    string `json:"category" validate:"max=100"`
	Status      string `json:"status" validate:"omitempty,oneof=available maintenance retired"`
}

// List handles GET /api/equipment.
func (h *EquipmentHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := store.ListEquipment(r.Context(), h.DB, q.Get("status"), q.Get("category"))
	if err != nil {
		slog.Error("failed to list equipment", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list equipment")
		return
	}
	if list == nil {
		list = []model.Equipment{}
	}
	jsonResponse(w, http.StatusOK, list)
}

// Create handles POST /api/equipment.
func (h *EquipmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createEquipmentRequest
	if !decodeValid(w, r, &req) {
		return
	}

	e, err := store.CreateEquipment(r.Context(), h.DB, req.Name, req.Description, req.Category)
	if err != nil {
		slog.Error("failed to create equipment", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to create equipment")
		return
	}

	slog.Info("equipment created", "user", GetClaims(r.Context()).Username, "equipment", e.Name, "id", e.ID)
	jsonResponse(w, http.StatusCreated, e)
}

// Get handles GET /api/equipment/{id}.
func (h *EquipmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	e, ok := h.load(w, r)
	if !ok {
		return
	}
	jsonResponse(w, http.StatusOK, e)
}

// Update handles PUT /api/equipment/{id}.
func (h *EquipmentHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid equipment id")
		return
	}

	var req updateEquipmentRequest
	if !decodeValid(w, r, &req) {
		return
	}
	if req.Status == "" {
		req.Status = model.EquipmentAvailable
	}

	if err := store.UpdateEquipment(r.Context(), h.DB, id, req.Name, req.Description, req.Category, req.Status); err != nil {
		slog.Error("failed to update equipment", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to update equipment")
		return
	}

	e, ok := h.load(w, r)
	if !ok {
		return
	}
	slog.Info("equipment updated", "user", GetClaims(r.Context()).Username, "id", id, "status", req.Status)
	jsonResponse(w, http.StatusOK, e)
}

// Delete handles DELETE /api/equipment/{id}.
func (h *EquipmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid equipment id")
		return
	}

	if err := store.DeleteEquipment(r.Context(), h.DB, id); err != nil {
		slog.Error("failed to delete equipment", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to delete equipment")
		return
	}

	slog.Info("equipment deleted", "user", GetClaims(r.Context()).Username, "id", id)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "equipment deleted"})
}

// UploadImage handles PUT /api/equipment/{id}/image. The upload is
// re-encoded into a photo and a thumbnail before it is stored.
func (h *EquipmentHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid equipment id")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImageUpload)
	if err := r.ParseMultipartForm(maxImageUpload); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "image file required")
		return
	}
	defer file.Close()

	photo, err := imaging.Process(file)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := store.SetEquipmentImage(r.Context(), h.DB, id, photo.Image, photo.Thumbnail, photo.MIME); err != nil {
		slog.Error("failed to save image", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to save image")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]string{"message": "image uploaded"})
}

// GetImage handles GET /api/equipment/{id}/image. ?thumb=1 returns the
// thumbnail.
func (h *EquipmentHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid equipment id")
		return
	}

	thumb := r.URL.Query().Get("thumb") == "1"
	data, mime, err := store.GetEquipmentImage(r.Context(), h.DB, id, thumb)
	if err != nil {
		slog.Error("failed to get image", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get image")
		return
	}
	if data == nil {
		jsonError(w, http.StatusNotFound, "no image")
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}

// Slots handles GET /api/equipment/{id}/slots?date=YYYY-MM-DD.
func (h *EquipmentHandler) Slots(w http.ResponseWriter, r *http.Request) {
	e, ok := h.load(w, r)
	if !ok {
		return
	}

	date, err := reservation.ParseDate(r.URL.Query().Get("date"), h.Manager.Location())
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"equipment_id": e.ID,
		"date":         date.Format("2006-01-02"),
		"slots":        h.Manager.ListTimeSlots(r.Context(), e.ID, date),
	})
}

// load fetches the {id} equipment, writing the error response itself.
func (h *EquipmentHandler) load(w http.ResponseWriter, r *http.Request) (*model.Equipment, bool) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid equipment id")
		return nil, false
	}

	e, err := store.GetEquipment(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get equipment", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get equipment")
		return nil, false
	}
	if e == nil || e.DeletedAt != nil {
		jsonError(w, http.StatusNotFound, "equipment not found")
		return nil, false
	}
	return e, true
}
