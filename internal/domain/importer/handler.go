package importer

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mkravets/priceport/internal/domain/catalog"
)

// Handler exposes the import workflow over JSON. Authentication lives
// outside this core; the acting user arrives in the X-User-ID header.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Routes mounts the session endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/sessions", h.createFromUpload)
	r.Post("/sessions/paste", h.createFromPaste)
	r.Get("/sessions/{id}", h.get)
	r.Put("/sessions/{id}/mapping", h.applyMapping)
	r.Post("/sessions/{id}/dry-run", h.dryRun)
	r.Get("/sessions/{id}/queue", h.queue)
	r.Get("/sessions/{id}/queue.csv", h.queueCSV)
	r.Post("/sessions/{id}/queue/actions", h.resolve)
	r.Post("/sessions/{id}/execute", h.execute)
	r.Post("/sessions/{id}/cancel", h.cancel)
}

func (h *Handler) createFromUpload(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "missing file part")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "unreadable file part")
		return
	}

	in := CreateUploadInput{
		UserID:     userID,
		Kind:       catalog.ItemKind(r.FormValue("kind")),
		FileName:   header.Filename,
		Data:       data,
		SheetIndex: formInt(r, "sheet_index", 0),
		HeaderRow:  formInt(r, "header_row", -1),
	}
	if in.SupplierID, err = formUUID(r, "supplier_id"); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid supplier_id")
		return
	}
	if in.VersionID, err = formUUID(r, "version_id"); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid version_id")
		return
	}

	sess, err := h.service.CreateFromUpload(r.Context(), in)
	if err != nil {
		h.mapError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, sess)
}

type pasteRequest struct {
	Kind       catalog.ItemKind `json:"kind"`
	Text       string           `json:"text"`
	SupplierID *uuid.UUID       `json:"supplier_id,omitempty"`
	VersionID  *uuid.UUID       `json:"version_id,omitempty"`
	HeaderRow  *int             `json:"header_row,omitempty"`
}

func (h *Handler) createFromPaste(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req pasteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	headerRow := -1
	if req.HeaderRow != nil {
		headerRow = *req.HeaderRow
	}
	sess, err := h.service.CreateFromPaste(r.Context(), CreatePasteInput{
		UserID:     userID,
		SupplierID: req.SupplierID,
		VersionID:  req.VersionID,
		Kind:       req.Kind,
		Text:       req.Text,
		HeaderRow:  headerRow,
	})
	if err != nil {
		h.mapError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, sess)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	sess, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.mapError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) applyMapping(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var req struct {
		Mapping map[string]Field `json:"mapping"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	mapping := make(ColumnMapping, len(req.Mapping))
	for col, field := range req.Mapping {
		idx, err := strconv.Atoi(col)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "column keys must be integers")
			return
		}
		mapping[idx] = field
	}

	sess, err := h.service.ApplyMapping(r.Context(), id, mapping)
	if err != nil {
		h.mapError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) dryRun(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	sess, err := h.service.DryRun(r.Context(), id)
	if err != nil {
		h.mapError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) queue(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	items, err := h.service.Queue(r.Context(), id, Verdict(r.URL.Query().Get("verdict")))
	if err != nil {
		h.mapError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) queueCSV(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	out, err := h.service.ExportQueueCSV(r.Context(), id)
	if err != nil {
		h.mapError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="queue.csv"`)
	_, _ = w.Write(out)
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var req struct {
		Actions []BulkAction `json:"actions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	sess, err := h.service.Resolve(r.Context(), id, req.Actions)
	if err != nil {
		h.mapError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) execute(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var req struct {
		Decisions map[int]Decision `json:"decisions"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
	}
	sess, err := h.service.Execute(r.Context(), id, req.Decisions)
	if err != nil {
		// A failed execution still carries the session with its partial
		// result for diagnostics.
		if sess != nil && sess.Status == StatusExecutionFailed {
			h.writeJSON(w, http.StatusUnprocessableEntity, sess)
			return
		}
		h.mapError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	sess, err := h.service.Cancel(r.Context(), id)
	if err != nil {
		h.mapError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.Header.Get("X-User-ID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "missing or invalid X-User-ID header")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid session id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) mapError(w http.ResponseWriter, err error) {
	var dup *DuplicateError
	switch {
	case errors.As(err, &dup):
		h.writeJSON(w, http.StatusConflict, map[string]any{
			"error":               "duplicate_import",
			"existing_session_id": dup.ExistingSessionID,
		})
	case errors.Is(err, ErrSessionNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrIllegalTransition):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrVersionRequired), errors.Is(err, ErrUnresolvedRow):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.writeError(w, http.StatusBadRequest, err.Error())
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("write response", slog.String("error", err.Error()))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func formInt(r *http.Request, key string, fallback int) int {
	v := r.FormValue(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func formUUID(r *http.Request, key string) (*uuid.UUID, error) {
	v := r.FormValue(key)
	if v == "" {
		return nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
