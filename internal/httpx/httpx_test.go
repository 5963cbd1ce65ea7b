package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestJSONRequest(t *testing.T) {
	req, err := JSONRequest(context.Background(), http.MethodPost, "https://example.com/x", map[string]string{"path": "/a"})
	if err != nil {
		t.Fatal(err)
	}
	if got := req.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
}

func TestDoSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	body, err := Do(srv.Client(), req)
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != `{"ok":true}` {
		t.Errorf("body = %q", body)
	}
}

func TestDoMapsNonSuccessToStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error_summary":"shared_link_already_exists"}`))
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL, nil)
	_, err := Do(srv.Client(), req)
	if !IsStatus(err, http.StatusConflict) {
		t.Fatalf("err = %v, want 409 StatusError", err)
	}
	if !strings.Contains(err.Error(), "shared_link_already_exists") {
		t.Errorf("error drops the body: %v", err)
	}
	if IsStatus(err, http.StatusNotFound) {
		t.Error("IsStatus matched the wrong code")
	}
}

func TestDoTruncatesLargeErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(strings.Repeat("x", maxErrorBody*2)))
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	_, err := Do(srv.Client(), req)
	se, ok := err.(*StatusError)
	if !ok {
		t.Fatalf("err = %v", err)
	}
	if len(se.Body) > maxErrorBody {
		t.Errorf("error body not truncated: %d bytes", len(se.Body))
	}
}

func TestDoJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"url":"https://example.com/share"}`))
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	var out struct {
		URL string `json:"url"`
	}
	if err := DoJSON(srv.Client(), req, &out); err != nil {
		t.Fatal(err)
	}
	if out.URL != "https://example.com/share" {
		t.Errorf("URL = %q", out.URL)
	}
}

func TestDoJSONNilOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodDelete, srv.URL, nil)
	if err := DoJSON(srv.Client(), req, nil); err != nil {
		t.Fatal(err)
	}
}
