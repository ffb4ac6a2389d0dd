// Package localprovider implements blobstore.Provider for file:// URLs and
// bare absolute filesystem paths — the "local" backend named in spec §2's
// provider table but not detailed in spec §4.1's prose (supplemented here,
// see SPEC_FULL.md §4.1).
package localprovider

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/SaladTechnologies/comfyui-api-sub000/internal/blobstore"
)

// Provider resolves file:// URLs and absolute paths by copying from the
// source path into the caller's destination directory.
type Provider struct{}

// New creates a local filesystem Provider.
func New() *Provider { return &Provider{} }

func (p *Provider) Name() string { return "local" }

func (p *Provider) TestURL(rawURL string) bool {
	path := toPath(rawURL)
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func (p *Provider) Download(ctx context.Context, rawURL, destDir, filenameOverride string, auth *blobstore.Auth) (string, error) {
	src := toPath(rawURL)
	if src == "" {
		return "", &blobstore.ProviderError{Provider: p.Name(), Op: "download", Err: fmt.Errorf("not a local path: %s", rawURL)}
	}

	in, err := os.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			return "", &blobstore.ProviderError{Provider: p.Name(), Op: "download", Err: blobstore.ErrNotFound}
		}
		return "", &blobstore.ProviderError{Provider: p.Name(), Op: "download", Err: err}
	}
	defer in.Close()

	filename := filenameOverride
	if filename == "" {
		filename = filepath.Base(src)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", &blobstore.ProviderError{Provider: p.Name(), Op: "download", Err: err}
	}
	dest := filepath.Join(destDir, filename)
	out, err := os.Create(dest)
	if err != nil {
		return "", &blobstore.ProviderError{Provider: p.Name(), Op: "download", Err: err}
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return "", &blobstore.ProviderError{Provider: p.Name(), Op: "download", Err: err}
	}
	return dest, nil
}

func (p *Provider) Upload(ctx context.Context, rawURL string, src io.Reader, contentType string) (*blobstore.UploadHandle, error) {
	dest := toPath(rawURL)
	if dest == "" {
		return nil, &blobstore.ProviderError{Provider: p.Name(), Op: "upload", Err: fmt.Errorf("not a local path: %s", rawURL)}
	}

	uploadCtx, cancel := context.WithCancel(ctx)
	handle := blobstore.NewUploadHandle(rawURL, contentType, cancel)

	go func() {
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			handle.MarkFailed(err)
			return
		}
		out, err := os.Create(dest)
		if err != nil {
			handle.MarkFailed(err)
			return
		}
		defer out.Close()

		done := make(chan error, 1)
		go func() { _, err := io.Copy(out, src); done <- err }()

		select {
		case <-uploadCtx.Done():
			// Aborted: state already flipped by Abort(); nothing else to do.
			return
		case err := <-done:
			if err != nil {
				handle.MarkFailed(err)
				return
			}
			handle.MarkCompleted()
		}
	}()

	return handle, nil
}

// toPath normalizes a file:// URL or bare absolute path to a filesystem
// path, returning "" if rawURL is neither.
func toPath(rawURL string) string {
	if strings.HasPrefix(rawURL, "file://") {
		u, err := url.Parse(rawURL)
		if err != nil {
			return ""
		}
		return u.Path
	}
	if filepath.IsAbs(rawURL) {
		return rawURL
	}
	return ""
}
