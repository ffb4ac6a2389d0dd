// Package s3provider implements blobstore.Provider for s3:// URLs,
// grounded directly on the teacher's internal/cache/s3.go: the same
// aws-sdk-go-v2 client construction, streaming GetObject/PutObject, and
// presigned-URL pattern, adapted from an OCI blob cache to an arbitrary
// s3://bucket/key blob store.
package s3provider

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/SaladTechnologies/comfyui-api-sub000/internal/blobstore"
)

// Provider handles s3://bucket/key URLs, with optional endpoint override
// for S3-compatible object stores (MinIO, R2, etc.).
type Provider struct {
	client        *s3.Client
	presignClient *s3.PresignClient
}

// New creates an S3 Provider. endpoint, when non-empty, overrides the
// default AWS endpoint resolution (for S3-compatible stores); credentials
// and region are resolved via the SDK's default credential chain, exactly
// as the teacher's NewS3Store does.
func New(ctx context.Context, endpoint string, forcePathStyle bool) (*Provider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = forcePathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return &Provider{
		client:        client,
		presignClient: s3.NewPresignClient(client),
	}, nil
}

func (p *Provider) Name() string { return "s3" }

func (p *Provider) TestURL(rawURL string) bool {
	return strings.HasPrefix(rawURL, "s3://")
}

// parseS3URL splits s3://bucket/key into its parts.
func parseS3URL(rawURL string) (bucket, key string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("not an s3:// url: %s", rawURL)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 url missing bucket or key: %s", rawURL)
	}
	return bucket, key, nil
}

func (p *Provider) Download(ctx context.Context, rawURL, destDir, filenameOverride string, auth *blobstore.Auth) (string, error) {
	bucket, key, err := parseS3URL(rawURL)
	if err != nil {
		return "", &blobstore.ProviderError{Provider: p.Name(), Op: "download", Err: err}
	}

	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return "", &blobstore.ProviderError{Provider: p.Name(), Op: "download", Err: classifyS3Error(err)}
	}
	defer out.Body.Close()

	filename := filenameOverride
	if filename == "" {
		parts := strings.Split(key, "/")
		filename = parts[len(parts)-1]
	}

	dest, err := writeTo(destDir, filename, out.Body)
	if err != nil {
		return "", &blobstore.ProviderError{Provider: p.Name(), Op: "download", Err: err}
	}
	return dest, nil
}

func (p *Provider) Upload(ctx context.Context, rawURL string, src io.Reader, contentType string) (*blobstore.UploadHandle, error) {
	bucket, key, err := parseS3URL(rawURL)
	if err != nil {
		return nil, &blobstore.ProviderError{Provider: p.Name(), Op: "upload", Err: err}
	}

	uploadCtx, cancel := context.WithCancel(ctx)
	handle := blobstore.NewUploadHandle(rawURL, contentType, cancel)

	go func() {
		input := &s3.PutObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
			Body:   src,
		}
		if contentType != "" {
			input.ContentType = aws.String(contentType)
		}

		_, err := p.client.PutObject(uploadCtx, input)
		if err != nil {
			if uploadCtx.Err() != nil {
				return // aborted
			}
			handle.MarkFailed(classifyS3Error(err))
			return
		}
		handle.MarkCompleted()
	}()

	return handle, nil
}

// CreateURL computes the destination s3://bucket/prefix/filename URL from
// request fields ({bucket, prefix}), per spec §4.1's createUrl contract.
func (p *Provider) CreateURL(fields map[string]any, filename string) (string, error) {
	bucket, _ := fields["bucket"].(string)
	if bucket == "" {
		return "", fmt.Errorf("s3 upload requires a bucket field")
	}
	prefix, _ := fields["prefix"].(string)
	prefix = strings.Trim(prefix, "/")
	key := filename
	if prefix != "" {
		key = prefix + "/" + filename
	}
	return fmt.Sprintf("s3://%s/%s", bucket, key), nil
}

func (p *Provider) RequestBodyUploadKey() string { return "s3" }

// GetSignedURL presigns a GET for the s3://bucket/key URL.
func (p *Provider) GetSignedURL(ctx context.Context, rawURL string) (string, error) {
	bucket, key, err := parseS3URL(rawURL)
	if err != nil {
		return rawURL, nil
	}
	presigned, err := p.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(15*time.Minute))
	if err != nil {
		return "", fmt.Errorf("presigning GetObject: %w", err)
	}
	return presigned.URL, nil
}

func classifyS3Error(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "AccessDenied") || strings.Contains(msg, "Forbidden") || strings.Contains(msg, "403") {
		return blobstore.ErrAuthFailed
	}
	if strings.Contains(msg, "NoSuchKey") || strings.Contains(msg, "NotFound") || strings.Contains(msg, "404") {
		return blobstore.ErrNotFound
	}
	return err
}
