// Package eventbridge implements the System Event Bridge: it subscribes
// to the Engine Client for a configurable subset of event kinds and fans
// each out to a signed outbound webhook and/or a message-bus publisher,
// namespacing event names (comfy.* / storage.*) per spec §4.7.
package eventbridge

import (
	"context"
	"log/slog"

	"github.com/SaladTechnologies/comfyui-api-sub000/internal/engineclient"
)

// Publisher fans a namespaced event out to a message bus, keyed by the
// event's prompt id. The no-op default is used when no bus is
// configured.
type Publisher interface {
	Publish(ctx context.Context, subject, promptID string, payload map[string]any) error
}

// Webhook is the subset of webhook.Client the bridge needs to fan events
// out to the signed v2 outbound system webhook (spec §4.7).
type Webhook interface {
	DeliverEvent(ctx context.Context, url string, payload map[string]any) error
}

// noopWebhook discards every event; used when WebhookURL is unconfigured.
type noopWebhook struct{}

func (noopWebhook) DeliverEvent(ctx context.Context, url string, payload map[string]any) error {
	return nil
}

// noopPublisher discards every event; used when EventBridgeNATSURL is
// unconfigured.
type noopPublisher struct{}

func (noopPublisher) Publish(ctx context.Context, subject, promptID string, payload map[string]any) error {
	return nil
}

// EventSource is the subset of engineclient.Client the bridge subscribes
// through.
type EventSource interface {
	Subscribe(kind, callerID string, handler engineclient.Handler)
}

// engineEventNamespace maps raw Engine WebSocket event kinds to their
// namespaced outbound name ("comfy.*").
var engineEventNamespace = map[string]string{
	"status":                 "comfy.status",
	"progress":               "comfy.progress",
	"executing":              "comfy.executing",
	"executed":               "comfy.executed",
	"execution_start":        "comfy.execution_start",
	"execution_cached":       "comfy.execution_cached",
	"execution_success":      "comfy.execution_success",
	"execution_interrupted":  "comfy.execution_interrupted",
	"execution_error":        "comfy.execution_error",
	"progress_state":         "comfy.progress_state",
}

// storageEventNamespace maps the gateway's own synthetic file lifecycle
// events to their namespaced outbound name ("storage.*").
var storageEventNamespace = map[string]string{
	"file_downloaded": "storage.file_downloaded",
	"file_uploaded":   "storage.file_uploaded",
	"file_deleted":    "storage.file_deleted",
}

// Bridge fans namespaced events out to a publisher and/or a signed system
// webhook, merging in static metadata.
type Bridge struct {
	events     EventSource
	publisher  Publisher
	webhook    Webhook
	webhookURL string
	kinds      map[string]struct{} // configured subset of raw kinds to forward
	metadata   map[string]any      // static config merged into every event
	log        *slog.Logger
}

// Config configures a Bridge.
type Config struct {
	Events     EventSource
	Publisher  Publisher // nil defaults to a no-op publisher
	Webhook    Webhook   // nil defaults to a no-op webhook
	WebhookURL string    // destination for the signed system webhook; empty disables it
	Kinds      []string  // raw Engine event kinds to forward; empty means all
	Metadata   map[string]any
	Log        *slog.Logger
}

// New builds a Bridge and subscribes to every configured kind.
func New(cfg Config) *Bridge {
	pub := cfg.Publisher
	if pub == nil {
		pub = noopPublisher{}
	}
	wh := cfg.Webhook
	if wh == nil {
		wh = noopWebhook{}
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	kinds := make(map[string]struct{}, len(cfg.Kinds))
	for _, k := range cfg.Kinds {
		kinds[k] = struct{}{}
	}

	b := &Bridge{
		events:     cfg.Events,
		publisher:  pub,
		webhook:    wh,
		webhookURL: cfg.WebhookURL,
		kinds:      kinds,
		metadata:   cfg.Metadata,
		log:        log,
	}
	b.subscribeAll()
	return b
}

func (b *Bridge) subscribeAll() {
	for kind := range engineEventNamespace {
		kind := kind
		b.events.Subscribe(kind, "", func(ev engineclient.Event) {
			b.forward(kind, ev.CallerID, ev.Raw)
		})
	}
}

func (b *Bridge) forward(kind, promptID string, raw []byte) {
	if len(b.kinds) > 0 {
		if _, ok := b.kinds[kind]; !ok {
			return
		}
	}
	subject, ok := engineEventNamespace[kind]
	if !ok {
		subject, ok = storageEventNamespace[kind]
		if !ok {
			return
		}
	}

	payload := map[string]any{"kind": subject, "prompt_id": promptID, "raw": string(raw)}
	for k, v := range b.metadata {
		payload[k] = v
	}

	b.fanOut(subject, promptID, payload)
}

// fanOut delivers one namespaced event payload to both configured
// destinations per spec §4.7: the signed system webhook and the
// message-bus publisher. Either, both, or neither may be active.
func (b *Bridge) fanOut(subject, promptID string, payload map[string]any) {
	if err := b.publisher.Publish(context.Background(), subject, promptID, payload); err != nil {
		b.log.Warn("event bridge publish failed", "subject", subject, "error", err)
	}
	if b.webhookURL != "" {
		if err := b.webhook.DeliverEvent(context.Background(), b.webhookURL, payload); err != nil {
			b.log.Warn("event bridge webhook delivery failed", "subject", subject, "error", err)
		}
	}
}

// ForwardStorageEvent lets the orchestrator/download-cache layer emit a
// synthetic storage.* event (file_downloaded/uploaded/deleted) that has
// no corresponding Engine WebSocket frame.
func (b *Bridge) ForwardStorageEvent(kind, promptID string, detail map[string]any) {
	subject, ok := storageEventNamespace[kind]
	if !ok {
		return
	}
	payload := map[string]any{"kind": subject, "prompt_id": promptID}
	for k, v := range detail {
		payload[k] = v
	}
	for k, v := range b.metadata {
		payload[k] = v
	}
	b.fanOut(subject, promptID, payload)
}
