// Package blobstore implements the Blob Store Registry (spec §4.1):
// pluggable providers for HTTP(S), S3, Azure Blob, HuggingFace, and local
// filesystem URLs, exposing a uniform testUrl/download/upload contract.
package blobstore

import (
	"context"
	"errors"
	"io"
)

// Auth carries per-request authentication a caller wants applied to a
// single download, independent of any process-global fallback the
// provider itself may hold.
type Auth struct {
	Bearer      string
	BasicUser   string
	BasicPass   string
	HeaderName  string
	HeaderValue string
	QueryParam  string
	QueryValue  string
}

// Provider is the contract every blob-store backend implements.
type Provider interface {
	// Name identifies the provider for logging ("http", "s3", "azure",
	// "huggingface", "local").
	Name() string

	// TestURL reports whether this provider recognizes url's scheme/shape.
	// The registry tries providers in order and uses the first match.
	TestURL(url string) bool

	// Download fetches url into destDir, optionally under filenameOverride,
	// returning the local path written. auth may be nil.
	Download(ctx context.Context, url, destDir, filenameOverride string, auth *Auth) (string, error)

	// Upload pushes src (read fully, then closed by the caller) to url
	// with the given content type, returning a handle tracking completion.
	Upload(ctx context.Context, url string, src io.Reader, contentType string) (*UploadHandle, error)
}

// URLCreator is implemented by providers whose destination URLs are
// computed from request fields (e.g. an S3 bucket/prefix) rather than
// supplied directly by the caller.
type URLCreator interface {
	CreateURL(fields map[string]any, filename string) (string, error)
}

// RequestBodyKeyed is implemented by providers that activate for output
// delivery when a specific top-level request field is present (e.g. "s3",
// "azure_blob_upload", "http_upload", "hf_upload").
type RequestBodyKeyed interface {
	RequestBodyUploadKey() string
}

// URLSigner is implemented by providers that can turn a plain URL into a
// time-limited signed URL for client-side access.
type URLSigner interface {
	GetSignedURL(ctx context.Context, url string) (string, error)
}

// Typed failures so callers can distinguish auth problems from the rest.
var (
	ErrAuthFailed = errors.New("blobstore: authentication failed")
	ErrNotFound   = errors.New("blobstore: object not found")
)

// ProviderError wraps a provider-specific failure with its classification.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return "blobstore: " + e.Provider + ": " + e.Op + ": " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error { return e.Err }
