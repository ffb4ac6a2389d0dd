package blobstore

import (
	"context"
	"fmt"
	"io"
)

// Registry holds an ordered list of providers. Download/TestURL use the
// first provider whose TestURL matches; a separate lookup by request-body
// field name selects the provider for output delivery (spec §4.1,
// "requestBodyUploadKey").
type Registry struct {
	providers   []Provider
	byUploadKey map[string]Provider
	uploads     *Tracker
}

// NewRegistry builds a Registry from an ordered provider list. Providers
// implementing RequestBodyKeyed are indexed for upload-strategy selection.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: providers, byUploadKey: make(map[string]Provider), uploads: NewTracker()}
	for _, p := range providers {
		if rbk, ok := p.(RequestBodyKeyed); ok {
			r.byUploadKey[rbk.RequestBodyUploadKey()] = p
		}
	}
	return r
}

// Resolve returns the first provider whose TestURL matches url.
func (r *Registry) Resolve(url string) (Provider, error) {
	for _, p := range r.providers {
		if p.TestURL(url) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("blobstore: no provider recognizes url %q", url)
}

// ProviderForUploadKey returns the provider registered under a top-level
// request field name (e.g. "s3", "azure_blob_upload").
func (r *Registry) ProviderForUploadKey(key string) (Provider, bool) {
	p, ok := r.byUploadKey[key]
	return p, ok
}

// Download resolves and invokes the right provider for url.
func (r *Registry) Download(ctx context.Context, url, destDir, filenameOverride string, auth *Auth) (string, error) {
	p, err := r.Resolve(url)
	if err != nil {
		return "", err
	}
	return p.Download(ctx, url, destDir, filenameOverride, auth)
}

// Upload resolves and invokes the right provider for url, tracking the
// resulting handle so a later upload to the same URL supersedes it.
func (r *Registry) Upload(ctx context.Context, url string, src io.Reader, contentType string) (*UploadHandle, error) {
	p, err := r.Resolve(url)
	if err != nil {
		return nil, err
	}
	h, err := p.Upload(ctx, url, src, contentType)
	if err != nil {
		return nil, err
	}
	r.uploads.Start(h)
	return h, nil
}

// GetSignedURL delegates to the resolved provider if it implements
// URLSigner; otherwise returns url unchanged (spec §8, "Signed-URL
// identity").
func (r *Registry) GetSignedURL(ctx context.Context, url string) (string, error) {
	p, err := r.Resolve(url)
	if err != nil {
		return url, nil
	}
	signer, ok := p.(URLSigner)
	if !ok {
		return url, nil
	}
	return signer.GetSignedURL(ctx, url)
}
