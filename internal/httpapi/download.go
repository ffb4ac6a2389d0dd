package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/SaladTechnologies/comfyui-api-sub000/internal/catalog"
	"github.com/SaladTechnologies/comfyui-api-sub000/internal/downloadcache"
	"github.com/SaladTechnologies/comfyui-api-sub000/internal/models"
)

// Downloader is the subset of blobstore.Registry the handler needs,
// mirroring promptgraph.Downloader.
type Downloader interface {
	Download(ctx context.Context, url, destDir, filenameOverride string) (string, error)
}

// DownloadHandler serves POST /download: fetch a model file by URL into a
// named model-type directory, synchronously or in the background
// depending on the wait flag (spec §6).
type DownloadHandler struct {
	Cache    *downloadcache.Cache
	Store    Downloader
	Catalog  *catalog.Catalog
	Log      *slog.Logger
}

func (h *DownloadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req models.DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}
	if req.URL == "" || req.ModelType == "" {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "invalid_request", Message: "url and model_type are required"})
		return
	}

	dir, ok := h.Catalog.Dir(req.ModelType)
	if !ok {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "unknown_model_type", Message: req.ModelType})
		return
	}

	if !req.Wait {
		go h.download(context.Background(), req, dir)
		writeJSON(w, http.StatusAccepted, models.DownloadResponse{Status: "started"})
		return
	}

	start := time.Now()
	filename, size, err := h.fetchAndCatalog(r.Context(), req, dir)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "download_failed", Message: err.Error()})
		return
	}
	setPromptID(r, filename)
	writeJSON(w, http.StatusOK, models.DownloadResponse{
		Status:   "completed",
		Filename: filename,
		Size:     size,
		Duration: time.Since(start).Seconds(),
	})
}

// download runs the fetch in the background for the async (wait=false)
// path, logging the outcome since there's no caller left to report it to.
func (h *DownloadHandler) download(ctx context.Context, req models.DownloadRequest, dir string) {
	filename, size, err := h.fetchAndCatalog(ctx, req, dir)
	if err != nil {
		h.logger().Error("background model download failed", "url", req.URL, "error", err)
		return
	}
	h.logger().Info("background model download completed", "url", req.URL, "filename", filename, "size", size)
}

func (h *DownloadHandler) fetchAndCatalog(ctx context.Context, req models.DownloadRequest, dir string) (string, int64, error) {
	path, err := h.Cache.Get(ctx, req.URL, dir, req.Filename, h.fetch)
	if err != nil {
		return "", 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", 0, err
	}
	filename := filepath.Base(path)
	h.Catalog.Add(req.ModelType, filename)
	return filename, info.Size(), nil
}

// fetch adapts h.Store (directory-oriented) into a downloadcache.Fetcher
// (writer-oriented), the same shape the preprocessor uses.
func (h *DownloadHandler) fetch(ctx context.Context, rawURL string, dst io.Writer) error {
	tmpDir, err := os.MkdirTemp("", "comfy-download-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmpDir)

	localPath, err := h.Store.Download(ctx, rawURL, tmpDir, "")
	if err != nil {
		return err
	}
	in, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer in.Close()
	_, err = io.Copy(dst, in)
	return err
}

func (h *DownloadHandler) logger() *slog.Logger {
	if h.Log != nil {
		return h.Log
	}
	return slog.Default()
}
