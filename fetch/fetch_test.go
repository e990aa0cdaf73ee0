package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFetchReturnsBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Error("expected a User-Agent header")
		}
		w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer ts.Close()

	f := NewHTTPFetcher(5 * time.Second)
	body, err := f.Fetch(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if body != "<html><body>hello</body></html>" {
		t.Errorf("unexpected body: %q", body)
	}
}

func TestFetchNonSuccessStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer ts.Close()

	f := NewHTTPFetcher(5 * time.Second)
	if _, err := f.Fetch(context.Background(), ts.URL); !errors.Is(err, ErrBadStatus) {
		t.Errorf("expected ErrBadStatus, got %v", err)
	}
}

func TestFetchHonorsContextCancellation(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(time.Second)
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	f := NewHTTPFetcher(5 * time.Second)
	if _, err := f.Fetch(ctx, ts.URL); err == nil {
		t.Fatal("expected error after context timeout")
	}
}
