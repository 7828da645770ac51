package api

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/outlineworks/outliner/internal/pipeline"
	"github.com/outlineworks/outliner/internal/report"
	"github.com/outlineworks/outliner/internal/store"
)

// handleOutline accepts a PDF upload and queues an outline build job.
// Multipart form fields: "file" (required, PDF bytes), "doc_name" (optional,
// defaults to the filename without extension).
func (s *Server) handleOutline(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
		writeError(w, http.StatusUnsupportedMediaType, "only PDF uploads are supported")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read upload: "+err.Error())
		return
	}

	docName := r.FormValue("doc_name")
	if docName == "" {
		docName = strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename))
	}

	now := time.Now()
	job := &pipeline.Job{
		ID:        uuid.NewString(),
		DocID:     uuid.NewString(),
		Filename:  header.Filename,
		DocName:   docName,
		Status:    pipeline.StatusQueued,
		Phase:     "queued",
		CreatedAt: now,
		UpdatedAt: now,
	}
	job.SetFileData(data)

	if err := s.orchestrator.Submit(job); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, job.Snapshot())
}

func (s *Server) handleOutlineStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

func (s *Server) handleLLMStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.llmClient.Stats().Snapshot())
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.orchestrator.Store().List(r.Context())
	if err != nil {
		s.log.Error("list documents", "error", err)
		writeError(w, http.StatusInternalServerError, "list documents failed")
		return
	}
	if docs == nil {
		docs = []store.DocumentInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	tree, err := s.orchestrator.Store().GetTree(r.Context(), docID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		s.log.Error("get document", "doc_id", docID, "error", err)
		writeError(w, http.StatusInternalServerError, "get document failed")
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

func (s *Server) handleDocumentReport(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	tree, err := s.orchestrator.Store().GetTree(r.Context(), docID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		s.log.Error("get document", "doc_id", docID, "error", err)
		writeError(w, http.StatusInternalServerError, "get document failed")
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	if err := report.WriteMarkdown(w, tree); err != nil {
		s.log.Error("render report", "doc_id", docID, "error", err)
	}
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	if err := s.orchestrator.Store().Delete(r.Context(), docID); err != nil {
		s.log.Error("delete document", "doc_id", docID, "error", err)
		writeError(w, http.StatusInternalServerError, "delete document failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": docID})
}
