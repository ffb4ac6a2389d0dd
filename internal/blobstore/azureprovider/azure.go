// Package azureprovider implements blobstore.Provider for Azure Blob
// Storage, grounded on rescale-labs-Rescale_Interlink's
// internal/cloud/providers/azure client: a credential chain that tries
// connection-string, then shared-key, then SAS-token, then default
// Azure identity, using whichever form is configured first, and an
// azblob.Client wrapping the winning credential.
package azureprovider

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"

	"github.com/SaladTechnologies/comfyui-api-sub000/internal/blobstore"
)

// Credentials bundles the four supported auth forms; New tries
// them in the order documented on the struct fields, first non-empty
// wins.
type Credentials struct {
	ConnectionString string
	AccountName      string
	AccountKey       string
	SASToken         string
	// UseDefaultIdentity activates azidentity.NewDefaultAzureCredential
	// when none of the above are set.
	UseDefaultIdentity bool
}

// Provider handles azure:// (and host-form https://<acct>.blob.core.windows.net/...,
// and path-style emulator URLs) blob references.
type Provider struct {
	client *azblob.Client
}

// New builds a Provider from whichever credential form is configured.
func New(creds Credentials, serviceURL string) (*Provider, error) {
	switch {
	case creds.ConnectionString != "":
		client, err := azblob.NewClientFromConnectionString(creds.ConnectionString, nil)
		if err != nil {
			return nil, fmt.Errorf("azure: connection string client: %w", err)
		}
		return &Provider{client: client}, nil

	case creds.AccountName != "" && creds.AccountKey != "":
		cred, err := azblob.NewSharedKeyCredential(creds.AccountName, creds.AccountKey)
		if err != nil {
			return nil, fmt.Errorf("azure: shared key credential: %w", err)
		}
		client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("azure: shared key client: %w", err)
		}
		return &Provider{client: client}, nil

	case creds.SASToken != "":
		sasURL := serviceURL
		if !strings.Contains(sasURL, "?") {
			sasURL += "?" + strings.TrimPrefix(creds.SASToken, "?")
		}
		client, err := azblob.NewClientWithNoCredential(sasURL, nil)
		if err != nil {
			return nil, fmt.Errorf("azure: SAS client: %w", err)
		}
		return &Provider{client: client}, nil

	case creds.UseDefaultIdentity:
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("azure: default credential: %w", err)
		}
		client, err := azblob.NewClient(serviceURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("azure: default identity client: %w", err)
		}
		return &Provider{client: client}, nil
	}

	return nil, fmt.Errorf("azure: no credential form configured")
}

func (p *Provider) Name() string { return "azure" }

// TestURL recognizes azure:// URLs and *.blob.core.windows.net host-style
// URLs, plus path-style URLs used by the Azurite emulator
// (http://127.0.0.1:10000/<account>/<container>/<blob>).
func (p *Provider) TestURL(rawURL string) bool {
	if strings.HasPrefix(rawURL, "azure://") {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if strings.Contains(u.Host, ".blob.core.windows.net") {
		return true
	}
	return strings.Contains(u.Host, "127.0.0.1") && strings.Count(strings.Trim(u.Path, "/"), "/") >= 2
}

// containerAndBlob extracts {container, blob} from any of the supported
// URL shapes.
func containerAndBlob(rawURL string) (container, blob string, err error) {
	if strings.HasPrefix(rawURL, "azure://") {
		u, err := url.Parse(rawURL)
		if err != nil {
			return "", "", err
		}
		return u.Host, strings.TrimPrefix(u.Path, "/"), nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", err
	}
	segments := strings.SplitN(strings.Trim(u.Path, "/"), "/", 3)

	if strings.Contains(u.Host, ".blob.core.windows.net") {
		// host-style: /<container>/<blob...>
		if len(segments) < 2 {
			return "", "", fmt.Errorf("azure: url missing container or blob: %s", rawURL)
		}
		return segments[0], strings.Join(segments[1:], "/"), nil
	}

	// path-style (emulator): /<account>/<container>/<blob...>
	if len(segments) < 3 {
		return "", "", fmt.Errorf("azure: path-style url missing account/container/blob: %s", rawURL)
	}
	return segments[1], segments[2], nil
}

func (p *Provider) Download(ctx context.Context, rawURL, destDir, filenameOverride string, auth *blobstore.Auth) (string, error) {
	container, blobName, err := containerAndBlob(rawURL)
	if err != nil {
		return "", &blobstore.ProviderError{Provider: p.Name(), Op: "download", Err: err}
	}

	resp, err := p.client.DownloadStream(ctx, container, blobName, nil)
	if err != nil {
		return "", &blobstore.ProviderError{Provider: p.Name(), Op: "download", Err: classifyAzureError(err)}
	}
	defer resp.Body.Close()

	filename := filenameOverride
	if filename == "" {
		parts := strings.Split(blobName, "/")
		filename = parts[len(parts)-1]
	}

	dest, err := writeTo(destDir, filename, resp.Body)
	if err != nil {
		return "", &blobstore.ProviderError{Provider: p.Name(), Op: "download", Err: err}
	}
	return dest, nil
}

func (p *Provider) Upload(ctx context.Context, rawURL string, src io.Reader, contentType string) (*blobstore.UploadHandle, error) {
	container, blobName, err := containerAndBlob(rawURL)
	if err != nil {
		return nil, &blobstore.ProviderError{Provider: p.Name(), Op: "upload", Err: err}
	}

	uploadCtx, cancel := context.WithCancel(ctx)
	handle := blobstore.NewUploadHandle(rawURL, contentType, cancel)

	go func() {
		var opts *azblob.UploadStreamOptions
		if contentType != "" {
			opts = &azblob.UploadStreamOptions{
				HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
			}
		}
		_, err := p.client.UploadStream(uploadCtx, container, blobName, src, opts)
		if err != nil {
			if uploadCtx.Err() != nil {
				return
			}
			handle.MarkFailed(classifyAzureError(err))
			return
		}
		handle.MarkCompleted()
	}()

	return handle, nil
}

// RequestBodyUploadKey activates this provider for /prompt's
// azure_blob_upload field.
func (p *Provider) RequestBodyUploadKey() string { return "azure_blob_upload" }

// CreateURL computes the destination azure://container/blob_prefix/filename
// URL from request fields ({container, blob_prefix}).
func (p *Provider) CreateURL(fields map[string]any, filename string) (string, error) {
	container, _ := fields["container"].(string)
	if container == "" {
		return "", fmt.Errorf("azure upload requires a container field")
	}
	prefix, _ := fields["blob_prefix"].(string)
	prefix = strings.Trim(prefix, "/")
	blob := filename
	if prefix != "" {
		blob = prefix + "/" + filename
	}
	return fmt.Sprintf("azure://%s/%s", container, blob), nil
}

// GetSignedURL is intentionally unimplemented: SAS generation requires
// account-key or user-delegation-key material this provider may not hold
// (e.g. when running under default identity). Per spec §8 ("Signed-URL
// identity"), callers fall back to the plain URL when a provider doesn't
// implement URLSigner, so this type deliberately does not implement it.

func classifyAzureError(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "AuthenticationFailed") || strings.Contains(msg, "AuthorizationFailure") || strings.Contains(msg, "403") {
		return blobstore.ErrAuthFailed
	}
	if strings.Contains(msg, "BlobNotFound") || strings.Contains(msg, "404") {
		return blobstore.ErrNotFound
	}
	return err
}

