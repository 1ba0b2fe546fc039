package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/insuredocs/docquery/internal/auth"
	"github.com/insuredocs/docquery/internal/document"
	"github.com/insuredocs/docquery/internal/models"
)

// maxUploadBytes caps a single document upload.
const maxUploadBytes = 50 << 20

type DocumentsHandler struct {
	docs *document.Service
}

func NewDocumentsHandler(docs *document.Service) *DocumentsHandler {
	return &DocumentsHandler{docs: docs}
}

// Upload accepts a multipart file and returns the created document together
// with its processing job, so the client can start polling progress right
// away.
func (h *DocumentsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field required")
		return
	}
	defer file.Close()

	result, err := h.docs.Upload(r.Context(), document.UploadRequest{
		TenantID: id.TenantID,
		Title:    r.FormValue("title"),
		Filename: header.Filename,
		Size:     header.Size,
		Data:     file,
	})
	if err != nil {
		if errors.Is(err, models.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *DocumentsHandler) List(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	docs, err := h.docs.List(r.Context(), id.TenantID, limit, offset)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (h *DocumentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	docID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return
	}

	doc, err := h.docs.Get(r.Context(), id.TenantID, docID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *DocumentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	docID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return
	}

	if err := h.docs.Delete(r.Context(), id.TenantID, docID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reprocess queues a new processing pass, typically after a segmenter or
// embedding model change.
func (h *DocumentsHandler) Reprocess(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	docID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return
	}

	job, err := h.docs.Reprocess(r.Context(), id.TenantID, docID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}
