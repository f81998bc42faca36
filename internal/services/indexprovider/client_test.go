package indexprovider_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"medcast/internal/services/indexprovider"
)

func TestCreateIndexSuccess(t *testing.T) {
	var gotAuth, gotName string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/indexes" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		var body struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		gotName = body.Name
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"indexId":"idx-42"}`))
	}))
	defer server.Close()

	client := indexprovider.NewClient(server.URL, "secret")
	indexID, err := client.CreateIndex(context.Background(), "run-abc-sources")
	if err != nil {
		t.Fatalf("CreateIndex failed: %v", err)
	}
	if indexID != "idx-42" {
		t.Fatalf("unexpected index id: %q", indexID)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("expected bearer auth, got %q", gotAuth)
	}
	if gotName != "run-abc-sources" {
		t.Fatalf("unexpected index name: %q", gotName)
	}
}

func TestCreateIndexProviderFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"quota exceeded"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := indexprovider.NewClient(server.URL, "")
	_, err := client.CreateIndex(context.Background(), "sources")
	if err == nil {
		t.Fatal("expected provider error")
	}
	var providerErr *indexprovider.ProviderError
	if !errors.As(err, &providerErr) {
		t.Fatalf("expected *ProviderError, got %T", err)
	}
	if providerErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("unexpected status: %d", providerErr.StatusCode)
	}
}

func TestCreateIndexRejectsMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	client := indexprovider.NewClient(server.URL, "")
	if _, err := client.CreateIndex(context.Background(), "sources"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestCreateIndexUnconfiguredClient(t *testing.T) {
	client := indexprovider.NewClient("", "")
	if client.Enabled() {
		t.Fatal("expected client without base url to be disabled")
	}
	if _, err := client.CreateIndex(context.Background(), "sources"); err == nil {
		t.Fatal("expected configuration error")
	}
}

func TestAttachFilesEmptySetIsNoop(t *testing.T) {
	// No server: a request would fail, proving none is made.
	client := indexprovider.NewClient("http://127.0.0.1:0", "")
	if err := client.AttachFiles(context.Background(), "idx-1", nil); err != nil {
		t.Fatalf("expected no-op for empty file set, got %v", err)
	}
}

func TestAttachFilesPostsBatch(t *testing.T) {
	var gotPath string
	var gotFiles []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		var body struct {
			FileIDs []string `json:"fileIds"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		gotFiles = body.FileIDs
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := indexprovider.NewClient(server.URL, "")
	err := client.AttachFiles(context.Background(), "idx-1", []string{"f1", "f2"})
	if err != nil {
		t.Fatalf("AttachFiles failed: %v", err)
	}
	if gotPath != "/indexes/idx-1/files/batch" {
		t.Fatalf("unexpected path: %q", gotPath)
	}
	if len(gotFiles) != 2 || gotFiles[0] != "f1" {
		t.Fatalf("unexpected files: %v", gotFiles)
	}
}

func TestAttachFilesFailurePropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	client := indexprovider.NewClient(server.URL, "")
	err := client.AttachFiles(context.Background(), "idx-1", []string{"f1"})
	var providerErr *indexprovider.ProviderError
	if !errors.As(err, &providerErr) || providerErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected bad gateway provider error, got %v", err)
	}
}

func TestExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if got := indexprovider.Expiry(now, 7); !got.Equal(now.AddDate(0, 0, 7)) {
		t.Fatalf("unexpected expiry: %v", got)
	}
	// Retention below one day clamps up.
	if got := indexprovider.Expiry(now, 0); !got.Equal(now.AddDate(0, 0, 1)) {
		t.Fatalf("unexpected clamped expiry: %v", got)
	}
}
