package delivery

import (
	"context"
	"io"
	"testing"

	"github.com/SaladTechnologies/comfyui-api-sub000/internal/blobstore"
	"github.com/SaladTechnologies/comfyui-api-sub000/internal/models"
)

func TestInlineEncodesBase64(t *testing.T) {
	files := []File{{Name: "a.png", Bytes: []byte("hello")}}
	result := Inline(files)
	if len(result.Images) != 1 {
		t.Fatalf("expected 1 image, got %d", len(result.Images))
	}
	if result.Images[0] != "aGVsbG8=" {
		t.Errorf("got %q", result.Images[0])
	}
}

func TestSpecFromRequestPicksExactlyOne(t *testing.T) {
	req := models.PromptRequest{S3: &models.S3Upload{Bucket: "b", Prefix: "p"}}
	spec, ok := SpecFromRequest(req)
	if !ok {
		t.Fatal("expected an upload spec")
	}
	if spec.UploadKey != "s3" {
		t.Errorf("got upload key %q", spec.UploadKey)
	}
	if spec.Fields["bucket"] != "b" || spec.Fields["prefix"] != "p" {
		t.Errorf("unexpected fields: %+v", spec.Fields)
	}
}

func TestSpecFromRequestNoneConfigured(t *testing.T) {
	if _, ok := SpecFromRequest(models.PromptRequest{}); ok {
		t.Fatal("expected no upload spec")
	}
}

// fakeProvider is a minimal blobstore.Provider + URLCreator double.
type fakeProvider struct {
	name      string
	uploadKey string
	uploaded  map[string][]byte
}

func (p *fakeProvider) Name() string          { return p.name }
func (p *fakeProvider) TestURL(url string) bool { return false }
func (p *fakeProvider) Download(ctx context.Context, url, destDir, filenameOverride string, auth *blobstore.Auth) (string, error) {
	return "", nil
}
func (p *fakeProvider) Upload(ctx context.Context, url string, src io.Reader, contentType string) (*blobstore.UploadHandle, error) {
	data, _ := io.ReadAll(src)
	if p.uploaded == nil {
		p.uploaded = make(map[string][]byte)
	}
	p.uploaded[url] = data
	h := blobstore.NewUploadHandle(url, contentType, func() {})
	h.MarkCompleted()
	return h, nil
}
func (p *fakeProvider) CreateURL(fields map[string]any, filename string) (string, error) {
	bucket, _ := fields["bucket"].(string)
	return "s3://" + bucket + "/" + filename, nil
}
func (p *fakeProvider) RequestBodyUploadKey() string { return p.uploadKey }

type fakeRegistry struct {
	provider *fakeProvider
}

func (r *fakeRegistry) ProviderForUploadKey(key string) (blobstore.Provider, bool) {
	if key != r.provider.uploadKey {
		return nil, false
	}
	return r.provider, true
}

func (r *fakeRegistry) Upload(ctx context.Context, url string, src io.Reader, contentType string) (*blobstore.UploadHandle, error) {
	return r.provider.Upload(ctx, url, src, contentType)
}

func (r *fakeRegistry) GetSignedURL(ctx context.Context, url string) (string, error) {
	return url + "?signed=1", nil
}

func TestUploadSyncReturnsURLs(t *testing.T) {
	provider := &fakeProvider{name: "s3", uploadKey: "s3"}
	reg := &fakeRegistry{provider: provider}
	spec := UploadSpec{UploadKey: "s3", Fields: map[string]any{"bucket": "my-bucket"}}
	files := []File{{Name: "out.png", Bytes: []byte("data")}}

	result, err := Upload(context.Background(), reg, spec, files, false, nil)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if len(result.URLs) != 1 || result.URLs[0] != "s3://my-bucket/out.png" {
		t.Fatalf("unexpected urls: %v", result.URLs)
	}
	if string(provider.uploaded["s3://my-bucket/out.png"]) != "data" {
		t.Error("expected uploaded bytes to match")
	}
}

func TestUploadSignedURLPostProcessing(t *testing.T) {
	provider := &fakeProvider{name: "s3", uploadKey: "s3"}
	reg := &fakeRegistry{provider: provider}
	spec := UploadSpec{UploadKey: "s3", Fields: map[string]any{"bucket": "b"}}
	files := []File{{Name: "out.png", Bytes: []byte("data")}}

	result, err := Upload(context.Background(), reg, spec, files, true, nil)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if result.URLs[0] != "s3://b/out.png?signed=1" {
		t.Errorf("expected signed URL, got %q", result.URLs[0])
	}
}

func TestUploadAsyncReturnsImmediately(t *testing.T) {
	provider := &fakeProvider{name: "s3", uploadKey: "s3"}
	reg := &fakeRegistry{provider: provider}
	spec := UploadSpec{UploadKey: "s3", Fields: map[string]any{"bucket": "b"}, Async: true}
	files := []File{{Name: "out.png", Bytes: []byte("data")}}

	result, err := Upload(context.Background(), reg, spec, files, false, nil)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !result.Async {
		t.Error("expected Result.Async to be true")
	}
	if len(result.URLs) != 0 {
		t.Errorf("expected no synchronous URLs, got %v", result.URLs)
	}
}

func TestUploadUnknownKeyFails(t *testing.T) {
	provider := &fakeProvider{name: "s3", uploadKey: "s3"}
	reg := &fakeRegistry{provider: provider}
	spec := UploadSpec{UploadKey: "azure_blob_upload", Fields: map[string]any{}}

	if _, err := Upload(context.Background(), reg, spec, nil, false, nil); err == nil {
		t.Fatal("expected an error for an unregistered upload key")
	}
}
