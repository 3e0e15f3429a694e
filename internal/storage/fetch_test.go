package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchReturnsBytesAndContentType(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client(), 0)
	data, contentType, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if string(data) != "png-bytes" || contentType != "image/png" {
		t.Fatalf("data = %q, contentType = %q", data, contentType)
	}
}

func TestFetchRejectsOversizedBody(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 64))
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client(), 16)
	if _, _, err := f.Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error for oversized asset")
	}
}

func TestFetchRejectsErrorStatus(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client(), 0)
	if _, _, err := f.Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error for 410 response")
	}
}
