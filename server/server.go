// Package server exposes the question-answering pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/richinex/delphi/artifact"
	"github.com/richinex/delphi/orchestrate"
)

// Runner executes one question-answering run.
type Runner interface {
	Run(ctx context.Context, question string, files map[string]artifact.Ref) (any, error)
}

// Server handles one POST endpoint: a multipart request carrying the
// question plus zero or more auxiliary files.
type Server struct {
	orchestrator   Runner
	store          *artifact.Store
	logger         *slog.Logger
	maxUploadBytes int64
}

func New(orchestrator Runner, store *artifact.Store, logger *slog.Logger, maxUploadBytes int64) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = 16 << 20
	}
	return &Server{
		orchestrator:   orchestrator,
		store:          store,
		logger:         logger,
		maxUploadBytes: maxUploadBytes,
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/", s.handleAsk)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// handleAsk reads the multipart request, stores uploads, runs the
// orchestrator and writes the structured response. Every failure comes
// back as a status=error object, never as an empty success.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid multipart request: "+err.Error())
		return
	}

	question, uploads, err := s.readRequest(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	files, err := s.store.SaveUploads(uploads)
	if err != nil {
		s.logger.Error("storing uploads failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to store uploaded files")
		return
	}

	s.logger.Info("run started", "question_chars", len(question), "files", len(files))
	result, err := s.orchestrator.Run(r.Context(), question, files)
	if err != nil {
		s.logger.Error("run failed", "error", err, "elapsed", time.Since(start))
		var runErr *orchestrate.RunError
		body := map[string]any{"status": "error", "error": err.Error()}
		if errors.As(err, &runErr) {
			body["context"] = runErr.Snapshot.DisplaySummary()
		}
		s.writeJSON(w, http.StatusInternalServerError, body)
		return
	}

	s.logger.Info("run finished", "elapsed", time.Since(start))
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "success", "result": result})
}

// readRequest pulls the question document and any auxiliary files out of
// the multipart form. The part named "questions.txt" (or the form field
// "question") is the question; every other file part is an upload.
func (s *Server) readRequest(r *http.Request) (string, map[string][]byte, error) {
	var question string
	uploads := make(map[string][]byte)

	for field, headers := range r.MultipartForm.File {
		for _, header := range headers {
			file, err := header.Open()
			if err != nil {
				return "", nil, errors.New("cannot open uploaded file " + header.Filename)
			}
			data, err := io.ReadAll(file)
			file.Close()
			if err != nil {
				return "", nil, errors.New("cannot read uploaded file " + header.Filename)
			}
			if field == "questions.txt" || header.Filename == "questions.txt" {
				question = string(data)
				continue
			}
			uploads[header.Filename] = data
		}
	}
	if question == "" {
		question = r.FormValue("question")
	}
	if question == "" {
		return "", nil, errors.New("request must include a question (file part questions.txt or form field question)")
	}
	return question, uploads, nil
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]any{"status": "error", "error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("writing response failed", "error", err)
	}
}
