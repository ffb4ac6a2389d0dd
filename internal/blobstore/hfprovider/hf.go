// Package hfprovider implements blobstore.Provider for hf:// URLs by
// shelling out to the huggingface-cli download command, the same
// subprocess-driven approach the teacher uses nowhere directly but which
// mirrors its general posture toward external tooling it doesn't want to
// reimplement (see internal/media's ffmpeg subprocess for the same
// pattern). This provider self-disables when huggingface-cli isn't on
// PATH, per spec §2's "best effort, optional" provider note.
package hfprovider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/SaladTechnologies/comfyui-api-sub000/internal/blobstore"
)

// Provider handles hf://<repo>/<revision>/<path-within-repo> URLs by
// invoking the huggingface-cli download command as a subprocess.
type Provider struct {
	cliPath string
}

// New probes PATH for huggingface-cli and returns a Provider bound to it,
// or nil if the tool isn't installed — callers should skip registering
// this provider in that case rather than registering a provider that
// always errors.
func New() *Provider {
	path, err := exec.LookPath("huggingface-cli")
	if err != nil {
		return nil
	}
	return &Provider{cliPath: path}
}

func (p *Provider) Name() string { return "huggingface" }

func (p *Provider) TestURL(rawURL string) bool {
	return strings.HasPrefix(rawURL, "hf://")
}

// parseHFURL splits hf://repo/revision/path/within/repo into its parts.
// repo may itself contain a single slash (org/model), so this takes the
// first two slash-separated segments as the repo id and treats the third
// onward as revision + path.
func parseHFURL(rawURL string) (repo, revision, path string, err error) {
	u, parseErr := url.Parse(rawURL)
	if parseErr != nil {
		return "", "", "", parseErr
	}
	segments := strings.Split(strings.Trim(u.Host+"/"+strings.Trim(u.Path, "/"), "/"), "/")
	if len(segments) < 4 {
		return "", "", "", fmt.Errorf("hf url needs org/model/revision/path, got: %s", rawURL)
	}
	repo = segments[0] + "/" + segments[1]
	revision = segments[2]
	path = strings.Join(segments[3:], "/")
	return repo, revision, path, nil
}

func (p *Provider) Download(ctx context.Context, rawURL, destDir, filenameOverride string, auth *blobstore.Auth) (string, error) {
	repo, revision, repoPath, err := parseHFURL(rawURL)
	if err != nil {
		return "", &blobstore.ProviderError{Provider: p.Name(), Op: "download", Err: err}
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", &blobstore.ProviderError{Provider: p.Name(), Op: "download", Err: err}
	}

	args := []string{
		"download", repo, repoPath,
		"--revision", revision,
		"--local-dir", destDir,
	}
	if auth != nil && auth.Bearer != "" {
		args = append(args, "--token", auth.Bearer)
	}

	cmd := exec.CommandContext(ctx, p.cliPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", &blobstore.ProviderError{Provider: p.Name(), Op: "download", Err: fmt.Errorf("huggingface-cli download: %w: %s", err, stderr.String())}
	}

	fetched := filepath.Join(destDir, repoPath)
	filename := filenameOverride
	if filename == "" {
		filename = filepath.Base(repoPath)
	}
	dest := filepath.Join(destDir, filename)
	if fetched == dest {
		return dest, nil
	}
	if err := os.Rename(fetched, dest); err != nil {
		return "", &blobstore.ProviderError{Provider: p.Name(), Op: "download", Err: err}
	}
	return dest, nil
}

// Upload is not supported: huggingface-cli upload requires a write-scoped
// token and a dataset/model repo target shape the gateway has no use case
// for (spec §4.1 only requires upload targets for the configured blob
// stores and the HTTP PUT destination). Returning an error here rather
// than silently no-op-ing keeps the Registry's provider selection honest.
func (p *Provider) Upload(ctx context.Context, rawURL string, src io.Reader, contentType string) (*blobstore.UploadHandle, error) {
	return nil, &blobstore.ProviderError{Provider: p.Name(), Op: "upload", Err: fmt.Errorf("huggingface provider is download-only")}
}
