package table

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFetchNodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/nodes" {
			t.Errorf("path = %s, want /nodes", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"nodes":["DOCK","KITCHEN","TABLE_1"]}`))
	}))
	defer srv.Close()

	c := NewClient(2 * time.Second)
	nodes, err := c.FetchNodes(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("FetchNodes: %v", err)
	}
	if len(nodes) != 3 || nodes[0] != "DOCK" {
		t.Errorf("nodes = %v", nodes)
	}
}

func TestFetchNodesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(2 * time.Second)
	if _, err := c.FetchNodes(context.Background(), srv.URL); err == nil {
		t.Errorf("expected error on HTTP 500")
	}
}

func TestHealthReturnsStatusCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path = %s, want /health", r.URL.Path)
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(2 * time.Second)
	code, err := c.Health(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if code != http.StatusServiceUnavailable {
		t.Errorf("code = %d, want 503", code)
	}
}

func TestHealthUnreachable(t *testing.T) {
	c := NewClient(200 * time.Millisecond)
	if _, err := c.Health(context.Background(), "http://127.0.0.1:1"); err == nil {
		t.Errorf("expected error for unreachable host")
	}
}
