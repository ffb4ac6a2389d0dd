package promptgraph

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/SaladTechnologies/comfyui-api-sub000/internal/catalog"
	"github.com/SaladTechnologies/comfyui-api-sub000/internal/downloadcache"
	"github.com/SaladTechnologies/comfyui-api-sub000/internal/media"
	"github.com/SaladTechnologies/comfyui-api-sub000/internal/models"
)

// Downloader is the subset of blobstore.Registry the preprocessor needs,
// narrowed so this package doesn't import blobstore directly and tests
// can supply a stub. It mirrors blobstore.Registry.Download's signature
// minus the Auth parameter, which the preprocessor never supplies
// per-request auth for.
type Downloader interface {
	Download(ctx context.Context, url, destDir, filenameOverride string) (string, error)
}

// Preprocessor implements spec §4.3.
type Preprocessor struct {
	cache         *downloadcache.Cache
	store         Downloader
	catalog       *catalog.Catalog
	inputDir      string // shared scratch dir for media-loader downloads
	prependPrefix bool   // filename_prefix becomes "<promptId>_<orig>" when true
}

// Config bundles the collaborators and knobs a Preprocessor needs.
type Config struct {
	Cache         *downloadcache.Cache
	Store         Downloader
	Catalog       *catalog.Catalog
	InputDir      string
	PrependPrefix bool
}

// New builds a Preprocessor.
func New(cfg Config) *Preprocessor {
	return &Preprocessor{
		cache:         cfg.Cache,
		store:         cfg.Store,
		catalog:       cfg.Catalog,
		inputDir:      cfg.InputDir,
		prependPrefix: cfg.PrependPrefix,
	}
}

// fetch adapts p.store (directory-oriented) into a downloadcache.Fetcher
// (writer-oriented): it downloads to a throwaway temp directory, then
// streams the result into dst.
func (p *Preprocessor) fetch(ctx context.Context, rawURL string, dst io.Writer) error {
	tmpDir, err := os.MkdirTemp("", "comfy-fetch-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmpDir)

	localPath, err := p.store.Download(ctx, rawURL, tmpDir, "")
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

// download fetches rawURL into destDir via the dedup cache, returning the
// local path of the linked copy.
func (p *Preprocessor) download(ctx context.Context, rawURL, destDir, filename string) (string, error) {
	return p.cache.Get(ctx, rawURL, destDir, filename, p.fetch)
}

// Result is the preprocessor's output: the mutated prompt and whether it
// contains at least one active output-saver node.
type Result struct {
	Prompt   models.Prompt
	HasSaver bool
}

// Process walks promptID's graph, rewriting model/media loader inputs and
// stamping output-saver prefixes, per spec §4.3. Downloads for distinct
// nodes proceed in parallel; the first failure cancels the rest and is
// returned wrapped in a *models.GatewayError with a JSON-pointer
// location.
func (p *Preprocessor) Process(ctx context.Context, promptID string, prompt models.Prompt) (Result, error) {
	out := prompt.Clone()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		hasSaver bool
	)

	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	for nodeID, node := range out {
		nodeID, node := nodeID, node

		if fields, ok := modelLoadClasses[node.ClassType]; ok {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := p.processModelNode(ctx, nodeID, node, fields); err != nil {
					fail(err)
				}
			}()
			continue
		}

		if fields, ok := mediaLoadClasses[node.ClassType]; ok {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := p.processMediaNode(ctx, promptID, nodeID, node, fields); err != nil {
					fail(err)
				}
			}()
			continue
		}

		if isSaver, active := p.processSaverNode(promptID, node); isSaver && active {
			mu.Lock()
			hasSaver = true
			mu.Unlock()
		}
	}

	wg.Wait()

	if firstErr != nil {
		return Result{}, firstErr
	}
	return Result{Prompt: out, HasSaver: hasSaver}, nil
}

// processModelNode downloads any URL-valued field in fields into the
// model directory for node's class_type, rewriting the input to the bare
// filename and recording it in the Catalog.
func (p *Preprocessor) processModelNode(ctx context.Context, nodeID string, node models.Node, fields []string) error {
	modelType := modelTypeForClass[node.ClassType]
	dir, ok := p.catalog.Dir(modelType)
	if !ok {
		return models.NewPreprocessError(pointer(nodeID, fields[0]), fmt.Sprintf("unknown model type %q for %s", modelType, node.ClassType), nil)
	}

	for _, field := range fields {
		raw, ok := node.StringInput(field)
		if !ok || !looksLikeURL(raw) {
			continue
		}
		localPath, err := p.download(ctx, raw, dir, "")
		if err != nil {
			return models.NewPreprocessError(pointer(nodeID, field), "downloading model file", err)
		}
		filename := filepath.Base(localPath)
		node.Inputs[field] = filename
		p.catalog.Add(modelType, filename)
	}
	return nil
}

// processMediaNode rewrites URL, base64, and verbatim path inputs on a
// media-loader node, downloading as needed into the shared per-request
// input subdirectory.
func (p *Preprocessor) processMediaNode(ctx context.Context, promptID, nodeID string, node models.Node, fields []string) error {
	destDir := filepath.Join(p.inputDir, promptID)

	for _, field := range fields {
		raw, exists := node.Inputs[field]
		if !exists {
			continue
		}

		if isDirectoryLoader(node.ClassType) {
			items, ok := raw.([]any)
			if !ok {
				continue
			}
			for i, item := range items {
				s, ok := item.(string)
				if !ok {
					continue
				}
				if _, err := p.resolveMediaRef(ctx, s, destDir); err != nil {
					return models.NewPreprocessError(pointer(nodeID, fmt.Sprintf("%s/%d", field, i)), "resolving directory loader entry", err)
				}
			}
			node.Inputs[field] = destDir
			continue
		}

		s, ok := raw.(string)
		if !ok {
			continue
		}
		resolved, err := p.resolveMediaRef(ctx, s, destDir)
		if err != nil {
			return models.NewPreprocessError(pointer(nodeID, field), "resolving media input", err)
		}
		node.Inputs[field] = resolved
	}
	return nil
}

// resolveMediaRef handles the three input shapes spec §4.3 describes for
// media-loader fields: URL (download), base64 (sniff+write), or a
// filesystem path (passed through verbatim).
func (p *Preprocessor) resolveMediaRef(ctx context.Context, ref, destDir string) (string, error) {
	switch {
	case looksLikeURL(ref):
		localPath, err := p.download(ctx, ref, destDir, "")
		if err != nil {
			return "", err
		}
		return filepath.Base(localPath), nil

	case looksLikeBase64(ref):
		format, raw, err := media.SniffBase64(ref)
		if err != nil {
			return "", err
		}
		filename := uuid.NewString() + "." + string(format)
		if err := writeFile(destDir, filename, raw); err != nil {
			return "", err
		}
		return filename, nil

	default:
		// Absolute or relative filesystem path: accepted verbatim.
		return ref, nil
	}
}

// processSaverNode stamps an output-saver node's filename_prefix. Returns
// isSaver=true if the node carries a string filename_prefix input at
// all, and active=true unless save_output is explicitly false.
func (p *Preprocessor) processSaverNode(promptID string, node models.Node) (isSaver, active bool) {
	orig, ok := node.StringInput("filename_prefix")
	if !ok {
		return false, false
	}

	if save, present := node.BoolInput("save_output"); present && !save {
		return true, false
	}

	prefix := promptID
	if p.prependPrefix {
		prefix = promptID + "_" + orig
	}
	node.Inputs["filename_prefix"] = prefix
	return true, true
}

func pointer(nodeID, field string) string {
	return "/" + nodeID + "/inputs/" + field
}

func writeFile(destDir, filename string, data []byte) error {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(destDir, filename), data, 0o644)
}

func looksLikeURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https" || u.Scheme == "s3" || u.Scheme == "azure" || u.Scheme == "hf"
}

func looksLikeBase64(s string) bool {
	if len(s) < 8 {
		return false
	}
	if strings.HasPrefix(s, "data:") {
		return true
	}
	// A conservative heuristic: long strings containing only base64
	// alphabet characters and no path separators. Absolute/relative paths
	// are the only other string shape this function needs to exclude.
	if strings.ContainsAny(s, "/\\") {
		return false
	}
	for _, c := range s {
		if !(c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '+' || c == '/' || c == '=') {
			return false
		}
	}
	return len(s) > 64
}
