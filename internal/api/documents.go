package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/docgate/internal/auth"
	"github.com/nerrad567/docgate/internal/document"
)

// queryFilter parses the optional q parameter: a JSON object of top-level
// fields that must match exactly.
func queryFilter(r *http.Request) (map[string]any, bool) {
	var filter map[string]any
	if raw := r.URL.Query().Get("q"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &filter); err != nil {
			return nil, false
		}
	}
	return filter, true
}

// handleFindDocuments lists a collection, filtered by q.
func (s *Server) handleFindDocuments(w http.ResponseWriter, r *http.Request) {
	filter, ok := queryFilter(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "q must be a JSON object")
		return
	}

	docs, err := s.documents.Find(r.Context(), chi.URLParam(r, "collection"), filter)
	if err != nil {
		s.writeDocumentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.documents.Get(r.Context(), chi.URLParam(r, "collection"), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDocumentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleInsertDocument(w http.ResponseWriter, r *http.Request) {
	var doc document.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil || doc == nil {
		writeError(w, http.StatusBadRequest, "body must be a JSON object")
		return
	}

	stored, err := s.documents.Insert(r.Context(), chi.URLParam(r, "collection"), doc)
	if err != nil {
		s.writeDocumentError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

func (s *Server) handleReplaceDocument(w http.ResponseWriter, r *http.Request) {
	var doc document.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil || doc == nil {
		writeError(w, http.StatusBadRequest, "body must be a JSON object")
		return
	}

	stored, err := s.documents.Replace(r.Context(), chi.URLParam(r, "collection"), chi.URLParam(r, "id"), doc)
	if err != nil {
		s.writeDocumentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

func (s *Server) handleRemoveDocument(w http.ResponseWriter, r *http.Request) {
	removed, err := s.documents.Remove(r.Context(), chi.URLParam(r, "collection"), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDocumentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, removed)
}

// handleUpdateDocuments applies the body's fields to every document
// matching q.
func (s *Server) handleUpdateDocuments(w http.ResponseWriter, r *http.Request) {
	filter, ok := queryFilter(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "q must be a JSON object")
		return
	}
	var patch document.Document
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil || patch == nil {
		writeError(w, http.StatusBadRequest, "body must be a JSON object")
		return
	}

	docs, err := s.documents.Update(r.Context(), chi.URLParam(r, "collection"), filter, patch)
	if err != nil {
		s.writeDocumentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handlePatchDocument(w http.ResponseWriter, r *http.Request) {
	var patch document.Document
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil || patch == nil {
		writeError(w, http.StatusBadRequest, "body must be a JSON object")
		return
	}

	doc, err := s.documents.Patch(r.Context(), chi.URLParam(r, "collection"), chi.URLParam(r, "id"), patch)
	if err != nil {
		s.writeDocumentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleRemoveDocuments deletes every document matching q; without q the
// collection is emptied.
func (s *Server) handleRemoveDocuments(w http.ResponseWriter, r *http.Request) {
	filter, ok := queryFilter(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "q must be a JSON object")
		return
	}

	removed, err := s.documents.RemoveWhere(r.Context(), chi.URLParam(r, "collection"), filter)
	if err != nil {
		s.writeDocumentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": len(removed)})
}

func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	names, err := s.documents.Collections(r.Context())
	if err != nil {
		s.writeDocumentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, names)
}

type createCollectionRequest struct {
	Collection string `json:"collection"`
}

func (s *Server) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	var req createCollectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.documents.CreateCollection(r.Context(), req.Collection); err != nil {
		s.writeDocumentError(w, err)
		return
	}
	username, _ := auth.UsernameFromContext(r.Context())
	s.logger.Info("collection created", "collection", req.Collection, "username", username)
	writeJSON(w, http.StatusCreated, map[string]string{"collection": req.Collection})
}

func (s *Server) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	if err := s.documents.DeleteCollection(r.Context(), collection); err != nil {
		s.writeDocumentError(w, err)
		return
	}
	username, _ := auth.UsernameFromContext(r.Context())
	s.logger.Info("collection deleted", "collection", collection, "username", username)
	w.WriteHeader(http.StatusNoContent)
}

// writeDocumentError maps store errors onto HTTP responses.
func (s *Server) writeDocumentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, document.ErrNotFound),
		errors.Is(err, document.ErrCollectionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, document.ErrInvalidCollection),
		errors.Is(err, document.ErrInvalidDocument):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, document.ErrDuplicateID),
		errors.Is(err, document.ErrCollectionExists):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("document operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "document operation failed")
	}
}
