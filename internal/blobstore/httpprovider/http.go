// Package httpprovider implements blobstore.Provider over plain HTTP(S),
// grounded on the teacher's internal/proxy/upstream.go: an explicit
// *http.Client with a tuned Transport rather than http.DefaultClient.
package httpprovider

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"

	"github.com/SaladTechnologies/comfyui-api-sub000/internal/blobstore"
)

// Provider handles http:// and https:// URLs. Connection/header/body
// timeouts are disabled on the bulk transfer client (spec §5: "model
// downloads and uploads can be arbitrarily long"); only the small
// control-plane client (HEAD/validation probes) retries with backoff.
type Provider struct {
	transferClient *http.Client
	controlClient  *retryablehttp.Client
	globalAuth     map[string]string // host -> "Authorization" header value
}

// New creates an HTTP(S) Provider. globalAuth is the process-global
// fallback auth header map (spec §4.1) keyed by request host.
func New(globalAuth map[string]string) *Provider {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
		// Deliberately no ResponseHeaderTimeout/TLSHandshakeTimeout cap on
		// the body read itself: model downloads/uploads may run for a very
		// long time (spec §5, "Timeouts").
	}

	control := retryablehttp.NewClient()
	control.RetryMax = 2
	control.Logger = nil

	return &Provider{
		transferClient: &http.Client{Transport: transport},
		controlClient:  control,
		globalAuth:     globalAuth,
	}
}

func (p *Provider) Name() string { return "http" }

func (p *Provider) TestURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

func (p *Provider) Download(ctx context.Context, rawURL, destDir, filenameOverride string, auth *blobstore.Auth) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", &blobstore.ProviderError{Provider: p.Name(), Op: "download", Err: err}
	}
	p.applyAuth(req, auth)

	resp, err := p.transferClient.Do(req)
	if err != nil {
		return "", &blobstore.ProviderError{Provider: p.Name(), Op: "download", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", &blobstore.ProviderError{Provider: p.Name(), Op: "download", Err: blobstore.ErrAuthFailed}
	}
	if resp.StatusCode == http.StatusNotFound {
		return "", &blobstore.ProviderError{Provider: p.Name(), Op: "download", Err: blobstore.ErrNotFound}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &blobstore.ProviderError{Provider: p.Name(), Op: "download", Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	filename := filenameOverride
	if filename == "" {
		filename = inferFilename(rawURL, resp)
	}

	dest, err := writeTo(destDir, filename, resp.Body)
	if err != nil {
		return "", &blobstore.ProviderError{Provider: p.Name(), Op: "download", Err: err}
	}
	return dest, nil
}

func (p *Provider) Upload(ctx context.Context, rawURL string, src io.Reader, contentType string) (*blobstore.UploadHandle, error) {
	uploadCtx, cancel := context.WithCancel(ctx)
	handle := blobstore.NewUploadHandle(rawURL, contentType, cancel)

	go func() {
		req, err := http.NewRequestWithContext(uploadCtx, http.MethodPut, rawURL, src)
		if err != nil {
			handle.MarkFailed(err)
			return
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := p.transferClient.Do(req)
		if err != nil {
			if uploadCtx.Err() != nil {
				return // aborted — state already Aborted
			}
			handle.MarkFailed(err)
			return
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			handle.MarkCompleted()
			return
		}
		handle.MarkFailed(fmt.Errorf("unexpected status %d", resp.StatusCode))
	}()

	return handle, nil
}

// CreateURL is unused for the plain HTTP(S) provider (the caller always
// supplies an explicit url_prefix-derived URL); http_upload activation is
// keyed directly by the request's http_upload field instead.
func (p *Provider) RequestBodyUploadKey() string { return "http_upload" }

// validate performs a HEAD request, falling back to a Range GET of the
// first byte on 405 (some origins reject HEAD entirely).
func (p *Provider) validate(ctx context.Context, rawURL string, auth *blobstore.Auth) (*http.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.controlClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusMethodNotAllowed {
		resp.Body.Close()
		req2, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		req2.Header.Set("Range", "bytes=0-0")
		return p.controlClient.Do(req2)
	}
	return resp, nil
}

func (p *Provider) applyAuth(req *http.Request, auth *blobstore.Auth) {
	if u := req.URL.User; u != nil {
		if pass, ok := u.Password(); ok {
			req.SetBasicAuth(u.Username(), pass)
		}
		req.URL.User = nil
	}
	if auth != nil {
		switch {
		case auth.Bearer != "":
			req.Header.Set("Authorization", "Bearer "+auth.Bearer)
		case auth.BasicUser != "":
			req.SetBasicAuth(auth.BasicUser, auth.BasicPass)
		case auth.HeaderName != "":
			req.Header.Set(auth.HeaderName, auth.HeaderValue)
		case auth.QueryParam != "":
			q := req.URL.Query()
			q.Set(auth.QueryParam, auth.QueryValue)
			req.URL.RawQuery = q.Encode()
		}
		return
	}
	if v, ok := p.globalAuth[req.URL.Host]; ok {
		req.Header.Set("Authorization", v)
	}
}

// extensionByContentType covers the common media types this gateway deals
// with; inferFilename falls back through Content-Disposition, URL path
// extension, then this table.
var extensionByContentType = map[string]string{
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
	"image/webp":      ".webp",
	"video/mp4":       ".mp4",
	"video/webm":      ".webm",
	"audio/mpeg":      ".mp3",
	"audio/wav":       ".wav",
	"audio/ogg":       ".ogg",
	"application/zip": ".zip",
	"application/octet-stream": ".bin",
}

func writeTo(destDir, filename string, body io.Reader) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}
	dest := filepath.Join(destDir, filename)
	out, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	defer out.Close()
	if _, err := io.Copy(out, body); err != nil {
		return "", err
	}
	return dest, nil
}

func inferFilename(rawURL string, resp *http.Response) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name := params["filename"]; name != "" {
				return name
			}
		}
	}
	if u, err := url.Parse(rawURL); err == nil {
		base := path.Base(u.Path)
		if base != "" && base != "." && base != "/" && path.Ext(base) != "" {
			return base
		}
	}
	ct := resp.Header.Get("Content-Type")
	if idx := strings.IndexByte(ct, ';'); idx >= 0 {
		ct = ct[:idx]
	}
	if ext, ok := extensionByContentType[strings.TrimSpace(ct)]; ok {
		return "download" + ext
	}
	return "download.bin"
}
