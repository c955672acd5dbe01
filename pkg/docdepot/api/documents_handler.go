// Package api provides HTTP handlers for the document service.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/docdepot/docdepot/pkg/docdepot"
)

// maxMultipartMemory bounds how much of an upload is held in memory
// before the multipart reader spills to disk.
const maxMultipartMemory = 32 << 20

// DocumentsHandler handles the document API endpoints.
type DocumentsHandler struct {
	service docdepot.Service
	logger  *slog.Logger
}

// NewDocumentsHandler creates a new documents handler.
func NewDocumentsHandler(service docdepot.Service, logger *slog.Logger) *DocumentsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentsHandler{service: service, logger: logger}
}

// Routes returns the router for document endpoints.
func (h *DocumentsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.IngestDocument)
	r.Get("/", h.ListDocuments)
	r.Route("/{fileID}", func(r chi.Router) {
		r.Get("/", h.GetDocument)
		r.Patch("/", h.UpdateDocument)
		r.Delete("/", h.DeleteDocument)
		r.Get("/download", h.DownloadDocument)
		r.Get("/events", h.ListEvents)
	})

	return r
}

// IngestDocument handles POST /documents as multipart/form-data with a
// "file" part and optional form fields. It answers 201 for a newly
// stored document and 200 when deduplication resolved the upload to an
// existing one.
func (h *DocumentsHandler) IngestDocument(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		h.respondError(w, r, fmt.Errorf("parse multipart form: %w", err), http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.respondError(w, r, fmt.Errorf("file part is required: %w", err), http.StatusBadRequest)
		return
	}
	defer file.Close()

	req := docdepot.IngestRequest{
		Reader:         file,
		FileID:         r.FormValue("file_id"),
		FileName:       header.Filename,
		MimeType:       header.Header.Get("Content-Type"),
		SourceType:     docdepot.SourceType(r.FormValue("source_type")),
		SourceLocation: r.FormValue("source_location"),
		StorageBackend: r.FormValue("storage_backend"),
	}
	if name := r.FormValue("file_name"); name != "" {
		req.FileName = name
	}
	if mime := r.FormValue("mime_type"); mime != "" {
		req.MimeType = mime
	}
	if req.SourceType == "" {
		req.SourceType = docdepot.SourceTypeUpload
	}
	if raw := r.FormValue("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Metadata); err != nil {
			h.respondError(w, r, fmt.Errorf("metadata must be a JSON object: %w", err), http.StatusBadRequest)
			return
		}
	}
	if raw := r.FormValue("tags"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Tags); err != nil {
			h.respondError(w, r, fmt.Errorf("tags must be a JSON array of strings: %w", err), http.StatusBadRequest)
			return
		}
	}
	if raw := r.FormValue("dedup"); raw != "" {
		dedup, err := strconv.ParseBool(raw)
		if err != nil {
			h.respondError(w, r, fmt.Errorf("dedup must be a boolean: %w", err), http.StatusBadRequest)
			return
		}
		req.DisableDeduplication = !dedup
	}

	result, err := h.service.Ingest(r.Context(), req)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.DuplicateDetected {
		status = http.StatusOK
	}
	render.Status(r, status)
	render.JSON(w, r, result)
}

// GetDocument handles GET /documents/{fileID}.
func (h *DocumentsHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")

	doc, err := h.service.GetDocument(r.Context(), fileID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	render.JSON(w, r, doc)
}

// DownloadDocument handles GET /documents/{fileID}/download, streaming
// the stored content.
func (h *DocumentsHandler) DownloadDocument(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")

	result, err := h.service.Retrieve(r.Context(), fileID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	defer result.Data.Close()

	w.Header().Set("Content-Type", result.Document.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Document.FileName))
	if result.Document.SizeBytes > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(result.Document.SizeBytes, 10))
	}
	if _, err := io.Copy(w, result.Data); err != nil {
		h.logger.Error("streaming download failed", "file_id", fileID, "error", err)
	}
}

type updateDocumentRequest struct {
	Metadata         map[string]interface{} `json:"metadata"`
	Tags             []string               `json:"tags"`
	ProcessingStatus string                 `json:"processing_status"`
}

// UpdateDocument handles PATCH /documents/{fileID}. Absent fields are
// left alone; "tags": [] clears the tags.
func (h *DocumentsHandler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")

	var body updateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.respondError(w, r, fmt.Errorf("invalid JSON body: %w", err), http.StatusBadRequest)
		return
	}

	doc, err := h.service.UpdateMetadata(r.Context(), docdepot.UpdateMetadataRequest{
		FileID:           fileID,
		MetadataPatch:    body.Metadata,
		Tags:             body.Tags,
		ProcessingStatus: docdepot.ProcessingStatus(body.ProcessingStatus),
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	render.JSON(w, r, doc)
}

// DeleteDocument handles DELETE /documents/{fileID}.
func (h *DocumentsHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")

	if err := h.service.Delete(r.Context(), fileID); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListEvents handles GET /documents/{fileID}/events.
func (h *DocumentsHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")

	events, err := h.service.ListEvents(r.Context(), fileID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	render.JSON(w, r, events)
}

// ListDocuments handles GET /documents with optional source_type,
// mime_type, name, page and page_size query parameters.
func (h *DocumentsHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	req := docdepot.ListDocumentsRequest{
		SourceType:       docdepot.SourceType(r.URL.Query().Get("source_type")),
		MimeTypeContains: r.URL.Query().Get("mime_type"),
		NameContains:     r.URL.Query().Get("name"),
	}
	var err error
	if req.Page, err = queryInt(r, "page"); err != nil {
		h.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	if req.PageSize, err = queryInt(r, "page_size"); err != nil {
		h.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	list, err := h.service.List(r.Context(), req)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	render.JSON(w, r, list)
}

// handleServiceError maps service errors onto HTTP status codes.
func (h *DocumentsHandler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, docdepot.ErrDocumentNotFound),
		errors.Is(err, docdepot.ErrBlobMissing):
		h.respondError(w, r, err, http.StatusNotFound)
	case errors.Is(err, docdepot.ErrNoUpdatableFields),
		errors.Is(err, docdepot.ErrInvalidSource),
		errors.Is(err, docdepot.ErrMissingReader),
		errors.Is(err, docdepot.ErrMissingFileName),
		errors.Is(err, docdepot.ErrStorageBackendNotFound):
		h.respondError(w, r, err, http.StatusBadRequest)
	default:
		h.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
		h.respondError(w, r, errors.New("internal server error"), http.StatusInternalServerError)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *DocumentsHandler) respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Error: err.Error()})
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return v, nil
}
