package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/SaladTechnologies/comfyui-api-sub000/internal/catalog"
	"github.com/SaladTechnologies/comfyui-api-sub000/internal/downloadcache"
	"github.com/SaladTechnologies/comfyui-api-sub000/internal/models"
)

type stubStore struct{ bytes []byte }

func (s stubStore) Download(ctx context.Context, url, destDir, filenameOverride string) (string, error) {
	name := filenameOverride
	if name == "" {
		name = "model.safetensors"
	}
	path := filepath.Join(destDir, name)
	if err := os.WriteFile(path, s.bytes, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func newTestDownloadHandler(t *testing.T) *DownloadHandler {
	t.Helper()
	cache, err := downloadcache.New(t.TempDir())
	if err != nil {
		t.Fatalf("downloadcache.New: %v", err)
	}
	cat := catalog.New(map[string]string{"checkpoints": t.TempDir()})
	return &DownloadHandler{Cache: cache, Store: stubStore{bytes: []byte("weights")}, Catalog: cat}
}

func TestDownloadHandlerSyncCompletes(t *testing.T) {
	h := newTestDownloadHandler(t)

	body, _ := json.Marshal(models.DownloadRequest{URL: "https://example.test/model.bin", ModelType: "checkpoints", Wait: true})
	req := httptest.NewRequest("POST", "/download", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp models.DownloadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Status != "completed" || resp.Size == 0 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if got := h.Catalog.Enum("checkpoints"); len(got) != 1 {
		t.Fatalf("expected catalog to record the download, got %v", got)
	}
}

func TestDownloadHandlerAsyncReturns202(t *testing.T) {
	h := newTestDownloadHandler(t)

	body, _ := json.Marshal(models.DownloadRequest{URL: "https://example.test/model.bin", ModelType: "checkpoints"})
	req := httptest.NewRequest("POST", "/download", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != 202 {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
}

func TestDownloadHandlerUnknownModelTypeIs400(t *testing.T) {
	h := newTestDownloadHandler(t)

	body, _ := json.Marshal(models.DownloadRequest{URL: "https://example.test/model.bin", ModelType: "loras", Wait: true})
	req := httptest.NewRequest("POST", "/download", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != 400 {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
