// Command comfy-gateway boots the HTTP gateway in front of the Engine:
// wires every internal collaborator together from environment
// configuration, serves the HTTP Surface, and shuts down gracefully on
// SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/SaladTechnologies/comfyui-api-sub000/internal/blobstore"
	"github.com/SaladTechnologies/comfyui-api-sub000/internal/blobstore/azureprovider"
	"github.com/SaladTechnologies/comfyui-api-sub000/internal/blobstore/hfprovider"
	"github.com/SaladTechnologies/comfyui-api-sub000/internal/blobstore/httpprovider"
	"github.com/SaladTechnologies/comfyui-api-sub000/internal/blobstore/localprovider"
	"github.com/SaladTechnologies/comfyui-api-sub000/internal/blobstore/s3provider"
	"github.com/SaladTechnologies/comfyui-api-sub000/internal/catalog"
	"github.com/SaladTechnologies/comfyui-api-sub000/internal/completion"
	"github.com/SaladTechnologies/comfyui-api-sub000/internal/config"
	"github.com/SaladTechnologies/comfyui-api-sub000/internal/correlation"
	"github.com/SaladTechnologies/comfyui-api-sub000/internal/downloadcache"
	"github.com/SaladTechnologies/comfyui-api-sub000/internal/engineclient"
	"github.com/SaladTechnologies/comfyui-api-sub000/internal/eventbridge"
	"github.com/SaladTechnologies/comfyui-api-sub000/internal/eventbridge/natspublisher"
	"github.com/SaladTechnologies/comfyui-api-sub000/internal/httpapi"
	"github.com/SaladTechnologies/comfyui-api-sub000/internal/media"
	"github.com/SaladTechnologies/comfyui-api-sub000/internal/orchestrator"
	"github.com/SaladTechnologies/comfyui-api-sub000/internal/promptgraph"
	"github.com/SaladTechnologies/comfyui-api-sub000/internal/telemetry"
	"github.com/SaladTechnologies/comfyui-api-sub000/internal/webhook"
)

func main() {
	cfg := config.Load()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("fatal startup error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	table := correlation.New(time.Second)

	engine := engineclient.New(cfg.EngineBaseURL, table)

	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	dlCache, err := downloadcache.New(cfg.CacheDir)
	if err != nil {
		return err
	}

	cat := catalog.New(cfg.ModelDirs)

	pre := promptgraph.New(promptgraph.Config{
		Cache:         dlCache,
		Store:         registryDownloader{registry},
		Catalog:       cat,
		InputDir:      filepath.Join(cfg.CacheDir, "inputs"),
		PrependPrefix: cfg.PreprocessPrependPrefix,
	})

	coordinator := completion.New(engine, engine, os.ReadFile, cfg.EngineOutputDir, slog.Default())

	encoder, encErr := media.NewEncoder(cfg.MediaEncoderPath, cfg.MediaEncoderTimeout)
	if encErr != nil {
		slog.Warn("media encoder unavailable; video/audio/webp transcodes will fail", "error", encErr)
	}
	transcoder := media.NewTranscoder(encoder)

	wh := webhook.New(cfg.WebhookSecret, cfg.WebhookRetryMax, slog.Default())

	telem := telemetry.New()

	orch := &orchestrator.Orchestrator{
		Preprocess: pre,
		Dispatch:   engine,
		Correlate:  table,
		Await:      coordinator,
		Transcode:  transcoder,
		Registry:   registry,
		Webhook:    wh,
		Telemetry:  telem,
		ClientID:   "comfy-gateway",
		Log:        slog.Default(),
	}

	var publisher eventbridge.Publisher
	if cfg.EventBridgeNATSURL != "" {
		natsPub, err := natspublisher.New(cfg.EventBridgeNATSURL)
		if err != nil {
			return err
		}
		publisher = natsPub
	}
	eventbridge.New(eventbridge.Config{
		Events:     engine,
		Publisher:  publisher,
		Webhook:    wh,
		WebhookURL: cfg.WebhookURL,
		Kinds:      cfg.EventBridgeKinds,
		Log:        slog.Default(),
	})

	ready := &httpapi.Readiness{}

	srv := &httpapi.Server{
		Prompt: &httpapi.PromptHandler{Orchestrator: orch, Log: slog.Default()},
		Download: &httpapi.DownloadHandler{
			Cache:   dlCache,
			Store:   registryDownloader{registry},
			Catalog: cat,
			Log:     slog.Default(),
		},
		Probes: &httpapi.ProbeHandler{
			Catalog:       cat,
			Queue:         engine,
			Cache:         dlCache,
			Readiness:     ready,
			MaxQueueDepth: cfg.MaxQueueDepth,
			CacheMaxBytes: cfg.CacheMaxBytes,
		},
		Log: slog.Default(),
	}

	startupCtx, cancel := context.WithTimeout(ctx, cfg.EngineStartupTO)
	defer cancel()
	if err := engine.Connect(startupCtx, cfg.EngineWSURL, "comfy-gateway", true, slog.Default()); err != nil {
		return err
	}
	ready.MarkWarm()

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down gracefully")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	_ = engine.Close()
	slog.Info("shutdown complete")
	return nil
}

// buildRegistry wires every blobstore.Provider the configuration enables.
// Local and HTTP(S) are always present; S3 is added whenever the AWS
// SDK's default configuration loads, Azure only when a connection string
// is configured, and HuggingFace only when huggingface-cli is on PATH.
func buildRegistry(cfg config.Config) (*blobstore.Registry, error) {
	providers := []blobstore.Provider{
		localprovider.New(),
		httpprovider.New(cfg.HTTPAuthHeaders),
	}

	s3, err := s3provider.New(context.Background(), cfg.S3Endpoint, cfg.S3ForcePathStyle)
	if err != nil {
		slog.Warn("s3 provider unavailable", "error", err)
	} else {
		providers = append(providers, s3)
	}

	if cfg.AzureConnectionString != "" {
		az, err := azureprovider.New(azureprovider.Credentials{ConnectionString: cfg.AzureConnectionString}, "")
		if err != nil {
			return nil, err
		}
		providers = append(providers, az)
	}

	if hf := hfprovider.New(); hf != nil {
		providers = append(providers, hf)
	}

	return blobstore.NewRegistry(providers...), nil
}

// registryDownloader adapts *blobstore.Registry (which accepts a
// per-request *Auth override) into the Downloader shape the preprocessor
// and /download handler consume, which never supply per-request auth —
// authentication for those paths is resolved by the provider from the
// process-global HTTPAuthHeaders fallback instead.
type registryDownloader struct {
	registry *blobstore.Registry
}

func (d registryDownloader) Download(ctx context.Context, url, destDir, filenameOverride string) (string, error) {
	return d.registry.Download(ctx, url, destDir, filenameOverride, nil)
}
