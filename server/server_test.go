package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/richinex/delphi/artifact"
)

type stubRunner struct {
	result   any
	err      error
	question string
	files    map[string]artifact.Ref
}

func (s *stubRunner) Run(_ context.Context, question string, files map[string]artifact.Ref) (any, error) {
	s.question = question
	s.files = files
	return s.result, s.err
}

func multipartRequest(t *testing.T, question string, files map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if question != "" {
		part, err := writer.CreateFormFile("questions.txt", "questions.txt")
		if err != nil {
			t.Fatalf("create question part: %v", err)
		}
		part.Write([]byte(question))
	}
	for name, content := range files {
		part, err := writer.CreateFormFile(name, name)
		if err != nil {
			t.Fatalf("create file part: %v", err)
		}
		part.Write([]byte(content))
	}
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func newTestServer(t *testing.T, runner Runner) *Server {
	t.Helper()
	store, err := artifact.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return New(runner, store, nil, 0)
}

func TestHandleAskSuccess(t *testing.T) {
	runner := &stubRunner{result: map[string]any{"count": 3}}
	srv := newTestServer(t, runner)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, multipartRequest(t, "how many items?", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "success" {
		t.Errorf("expected success status, got %v", resp["status"])
	}
	if runner.question != "how many items?" {
		t.Errorf("unexpected question passed through: %q", runner.question)
	}
}

func TestHandleAskStoresUploads(t *testing.T) {
	runner := &stubRunner{result: "ok"}
	srv := newTestServer(t, runner)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, multipartRequest(t, "sum the sales", map[string]string{
		"sales.csv": "a,b\n1,2\n",
	}))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	ref, ok := runner.files["sales.csv"]
	if !ok {
		t.Fatalf("expected sales.csv in file mapping, got %v", runner.files)
	}
	if ref.Category != artifact.CategoryUpload {
		t.Errorf("expected upload category, got %s", ref.Category)
	}
}

func TestHandleAskMissingQuestion(t *testing.T) {
	srv := newTestServer(t, &stubRunner{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, multipartRequest(t, "", map[string]string{"x.csv": "a\n1\n"}))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var resp map[string]any
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["status"] != "error" {
		t.Errorf("expected error status, got %v", resp["status"])
	}
}

func TestHandleAskRunFailure(t *testing.T) {
	srv := newTestServer(t, &stubRunner{err: errors.New("analysis blew up")})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, multipartRequest(t, "q", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "error" {
		t.Errorf("expected error status, got %v", resp["status"])
	}
	if resp["error"] != "analysis blew up" {
		t.Errorf("expected cause in error field, got %v", resp["error"])
	}
	if _, ok := resp["result"]; ok {
		t.Error("a failed run must never carry a result")
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, &stubRunner{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
