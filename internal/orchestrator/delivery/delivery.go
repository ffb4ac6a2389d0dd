// Package delivery implements two of the three output delivery strategies
// from spec §4.6 step 4: inline base64 and upload to object storage (sync
// or fire-and-forget async). The third, per-file webhook v1 push, is done
// by the Prompt Orchestrator itself, which picks exactly one per request.
package delivery

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/SaladTechnologies/comfyui-api-sub000/internal/blobstore"
	"github.com/SaladTechnologies/comfyui-api-sub000/internal/models"
)

// File is one named output ready for delivery.
type File struct {
	Name  string
	Bytes []byte
}

// Result is what a delivery strategy hands back to the orchestrator.
type Result struct {
	Images []string // base64, parallel to input file order; inline strategy only
	URLs   []string // parallel to input file order; upload strategy only
	Async  bool     // true if uploads are still running in the background
}

// Inline returns each file's bytes base64-encoded, preserving order.
func Inline(files []File) Result {
	images := make([]string, len(files))
	for i, f := range files {
		images[i] = base64.StdEncoding.EncodeToString(f.Bytes)
	}
	return Result{Images: images}
}

// UploadSpec carries the resolved upload-field values for one request, as
// selected by SpecFromRequest.
type UploadSpec struct {
	UploadKey string // "s3", "azure_blob_upload", "http_upload", "hf_upload"
	Fields    map[string]any
	Async     bool
}

// SpecFromRequest derives an UploadSpec from the subset of PromptRequest
// upload fields. Requests that set several are not rejected: the first
// set field in the order s3, azure_blob_upload, http_upload, hf_upload
// is used and the others are ignored.
func SpecFromRequest(req models.PromptRequest) (UploadSpec, bool) {
	switch {
	case req.S3 != nil:
		return UploadSpec{UploadKey: "s3", Fields: fieldsFromJSON(req.S3), Async: req.S3.Async}, true
	case req.AzureBlobUpload != nil:
		return UploadSpec{UploadKey: "azure_blob_upload", Fields: fieldsFromJSON(req.AzureBlobUpload), Async: req.AzureBlobUpload.Async}, true
	case req.HTTPUpload != nil:
		return UploadSpec{UploadKey: "http_upload", Fields: fieldsFromJSON(req.HTTPUpload), Async: req.HTTPUpload.Async}, true
	case req.HFUpload != nil:
		return UploadSpec{UploadKey: "hf_upload", Fields: fieldsFromJSON(req.HFUpload), Async: req.HFUpload.Async}, true
	default:
		return UploadSpec{}, false
	}
}

// fieldsFromJSON round-trips an upload-options struct (models.S3Upload
// etc.) through JSON to obtain the map[string]any shape each provider's
// CreateURL expects, keyed by its JSON tags.
func fieldsFromJSON(v any) map[string]any {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// Registry is the blobstore surface the Upload strategy drives.
type Registry interface {
	ProviderForUploadKey(key string) (blobstore.Provider, bool)
	Upload(ctx context.Context, url string, src io.Reader, contentType string) (*blobstore.UploadHandle, error)
	GetSignedURL(ctx context.Context, url string) (string, error)
}

// destinationURL computes the per-file destination URL for an upload
// strategy: providers implementing blobstore.URLCreator (s3, azure)
// compute it from the request fields; http_upload builds it directly
// from url_prefix since the plain HTTP provider doesn't implement
// URLCreator.
func destinationURL(provider blobstore.Provider, spec UploadSpec, filename string) (string, error) {
	if creator, ok := provider.(blobstore.URLCreator); ok {
		return creator.CreateURL(spec.Fields, filename)
	}
	if spec.UploadKey == "http_upload" {
		prefix, _ := spec.Fields["url_prefix"].(string)
		prefix = strings.TrimRight(prefix, "/")
		if prefix == "" {
			return "", fmt.Errorf("delivery: http_upload requires url_prefix")
		}
		return prefix + "/" + filename, nil
	}
	return "", fmt.Errorf("delivery: provider for %q does not support computed destination URLs", spec.UploadKey)
}

func contentTypeFor(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".png"):
		return "image/png"
	case strings.HasSuffix(lower, ".jpg"), strings.HasSuffix(lower, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(lower, ".webp"):
		return "image/webp"
	case strings.HasSuffix(lower, ".mp4"):
		return "video/mp4"
	case strings.HasSuffix(lower, ".webm"):
		return "video/webm"
	case strings.HasSuffix(lower, ".zip"):
		return "application/zip"
	default:
		return "application/octet-stream"
	}
}

// Upload pushes every file to its computed destination URL, returning
// destination URLs signed per spec §4.6 step 5 when signedURL is set. If
// spec.Async is true, per-file uploads are started and Upload returns
// immediately with Result.Async=true and no URLs (the caller has nothing
// synchronous to report — the 202 response carries no destination until
// the upload completes, matching spec §4.6's "uploads complete in the
// background"). log is used for logging background failures with nothing
// left to report them to; a nil log falls back to slog.Default().
func Upload(ctx context.Context, reg Registry, spec UploadSpec, files []File, signedURL bool, log *slog.Logger) (Result, error) {
	if log == nil {
		log = slog.Default()
	}

	provider, ok := reg.ProviderForUploadKey(spec.UploadKey)
	if !ok {
		return Result{}, fmt.Errorf("delivery: no provider registered for upload key %q", spec.UploadKey)
	}

	urls := make([]string, len(files))
	for i, f := range files {
		url, err := destinationURL(provider, spec, f.Name)
		if err != nil {
			return Result{}, err
		}
		urls[i] = url
	}

	if spec.Async {
		go func() {
			var wg sync.WaitGroup
			for i, f := range files {
				wg.Add(1)
				go func(url string, f File) {
					defer wg.Done()
					handle, err := reg.Upload(context.Background(), url, bytes.NewReader(f.Bytes), contentTypeFor(f.Name))
					if err != nil {
						log.Error("async upload failed", "url", url, "error", err)
						return
					}
					if handle.State() == blobstore.UploadFailed {
						log.Error("async upload failed", "url", url, "error", handle.Err())
					}
				}(urls[i], f)
			}
			wg.Wait()
		}()
		return Result{Async: true}, nil
	}

	var wg sync.WaitGroup
	errCh := make(chan error, len(files))
	for i, f := range files {
		wg.Add(1)
		go func(url string, f File) {
			defer wg.Done()
			handle, err := reg.Upload(ctx, url, bytes.NewReader(f.Bytes), contentTypeFor(f.Name))
			if err != nil {
				errCh <- err
				return
			}
			if handle.State() == blobstore.UploadFailed {
				errCh <- handle.Err()
			}
		}(urls[i], f)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			return Result{}, err
		}
	}

	if signedURL {
		for i, url := range urls {
			signed, err := reg.GetSignedURL(ctx, url)
			if err == nil {
				urls[i] = signed
			}
		}
	}

	return Result{URLs: urls}, nil
}
