// Package config loads gateway configuration from the process environment.
//
// AWS SDK environment variables (AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY,
// AWS_REGION, AWS_ENDPOINT_URL) are read directly by the SDK's default
// credential chain and do not appear in this struct. Azure is configured
// only through AZURE_STORAGE_CONNECTION_STRING (the connection-string
// form); internal/blobstore/azureprovider reads no env vars itself.
package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the fully resolved gateway configuration.
type Config struct {
	ListenAddr string
	LogLevel   slog.Level

	EngineBaseURL   string
	EngineWSURL     string
	EngineStartupTO time.Duration
	EngineOutputDir string // filesystem path the Engine writes output files under

	ModelDirs map[string]string // model type -> directory, from MODEL_DIR_<TYPE>

	CacheDir      string
	CacheMaxBytes int64

	MaxQueueDepth int

	WebhookURL      string
	WebhookSecret   string
	WebhookRetryMax int

	S3Endpoint            string
	S3ForcePathStyle      bool
	AzureConnectionString string

	HTTPAuthHeaders map[string]string // process-global fallback auth, by host

	EventBridgeNATSURL string
	EventBridgeKinds   []string

	MediaEncoderPath    string
	MediaEncoderTimeout time.Duration

	ManifestPath     string
	WarmupPromptPath string

	PreprocessPrependPrefix bool // true: "<id>_<orig>", false: "<id>"
}

// Load reads Config from the process environment, applying the same
// defaults-with-override idiom (envOr) used throughout the gateway.
func Load() Config {
	modelDirs := map[string]string{}
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if modelType, ok := strings.CutPrefix(k, "MODEL_DIR_"); ok && v != "" {
			modelDirs[strings.ToLower(modelType)] = v
		}
	}

	maxQueueDepth, _ := strconv.Atoi(envOr("MAX_QUEUE_DEPTH", "0"))
	webhookRetryMax, _ := strconv.Atoi(envOr("WEBHOOK_RETRY_MAX", "3"))
	cacheMaxBytes, _ := strconv.ParseInt(envOr("CACHE_MAX_BYTES", "0"), 10, 64)
	startupTimeout, _ := time.ParseDuration(envOr("ENGINE_START_TIMEOUT", "60s"))
	encoderTimeout, _ := time.ParseDuration(envOr("MEDIA_ENCODER_TIMEOUT", "5s"))

	var authHeaders map[string]string
	if raw := os.Getenv("HTTP_AUTH_HEADERS"); raw != "" {
		_ = json.Unmarshal([]byte(raw), &authHeaders)
	}

	var kinds []string
	if raw := os.Getenv("EVENTBRIDGE_KINDS"); raw != "" {
		kinds = strings.Split(raw, ",")
	}

	return Config{
		ListenAddr: envOr("GATEWAY_LISTEN_ADDR", ":8188"),
		LogLevel:   parseLogLevel(envOr("LOG_LEVEL", "info")),

		EngineBaseURL:   envOr("ENGINE_BASE_URL", "http://127.0.0.1:8188"),
		EngineWSURL:     envOr("ENGINE_WS_URL", "ws://127.0.0.1:8188/ws"),
		EngineStartupTO: startupTimeout,
		EngineOutputDir: envOr("ENGINE_OUTPUT_DIR", "/data/output"),

		ModelDirs: modelDirs,

		CacheDir:      envOr("CACHE_DIR", "/data/cache"),
		CacheMaxBytes: cacheMaxBytes,

		MaxQueueDepth: maxQueueDepth,

		WebhookURL:      os.Getenv("WEBHOOK_URL"),
		WebhookSecret:   os.Getenv("WEBHOOK_SECRET"),
		WebhookRetryMax: webhookRetryMax,

		S3Endpoint:            os.Getenv("S3_ENDPOINT"),
		S3ForcePathStyle:      envOr("S3_FORCE_PATH_STYLE", "false") == "true",
		AzureConnectionString: os.Getenv("AZURE_STORAGE_CONNECTION_STRING"),

		HTTPAuthHeaders: authHeaders,

		EventBridgeNATSURL: os.Getenv("EVENTBRIDGE_NATS_URL"),
		EventBridgeKinds:   kinds,

		MediaEncoderPath:    envOr("MEDIA_ENCODER_PATH", "ffmpeg"),
		MediaEncoderTimeout: encoderTimeout,

		ManifestPath:     os.Getenv("MANIFEST_PATH"),
		WarmupPromptPath: os.Getenv("WARMUP_PROMPT_PATH"),

		PreprocessPrependPrefix: envOr("PREPROCESS_PREPEND_PREFIX", "true") == "true",
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
