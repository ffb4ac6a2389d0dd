package eventbridge

import (
	"context"
	"sync"
	"testing"

	"github.com/SaladTechnologies/comfyui-api-sub000/internal/engineclient"
)

// fakeSource records every Subscribe call and lets the test fire events
// synchronously, the way the real WebSocket reader dispatches them.
type fakeSource struct {
	mu       sync.Mutex
	handlers map[string]engineclient.Handler
}

func newFakeSource() *fakeSource {
	return &fakeSource{handlers: map[string]engineclient.Handler{}}
}

func (f *fakeSource) Subscribe(kind, callerID string, handler engineclient.Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[kind] = handler
}

func (f *fakeSource) fire(kind string, ev engineclient.Event) {
	f.mu.Lock()
	h := f.handlers[kind]
	f.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

type fakePublisher struct {
	mu    sync.Mutex
	calls []string // subjects
}

func (f *fakePublisher) Publish(ctx context.Context, subject, promptID string, payload map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, subject)
	return nil
}

type fakeWebhook struct {
	mu      sync.Mutex
	urls    []string
	payload []map[string]any
}

func (f *fakeWebhook) DeliverEvent(ctx context.Context, url string, payload map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	f.payload = append(f.payload, payload)
	return nil
}

func TestBridgeFansOutToPublisherAndWebhook(t *testing.T) {
	src := newFakeSource()
	pub := &fakePublisher{}
	wh := &fakeWebhook{}

	New(Config{Events: src, Publisher: pub, Webhook: wh, WebhookURL: "https://hooks.example/events"})

	src.fire("executed", engineclient.Event{Type: "executed", CallerID: "prompt-1", Raw: []byte(`{"ok":true}`)})

	pub.mu.Lock()
	gotPub := append([]string(nil), pub.calls...)
	pub.mu.Unlock()
	if len(gotPub) != 1 || gotPub[0] != "comfy.executed" {
		t.Fatalf("expected one comfy.executed publish, got %v", gotPub)
	}

	wh.mu.Lock()
	defer wh.mu.Unlock()
	if len(wh.urls) != 1 || wh.urls[0] != "https://hooks.example/events" {
		t.Fatalf("expected one webhook delivery to the configured URL, got %v", wh.urls)
	}
	if wh.payload[0]["prompt_id"] != "prompt-1" {
		t.Fatalf("expected prompt_id in webhook payload, got %v", wh.payload[0])
	}
}

func TestBridgeWithoutWebhookURLSkipsWebhook(t *testing.T) {
	src := newFakeSource()
	pub := &fakePublisher{}
	wh := &fakeWebhook{}

	New(Config{Events: src, Publisher: pub, Webhook: wh})

	src.fire("executed", engineclient.Event{Type: "executed", CallerID: "prompt-2", Raw: []byte(`{}`)})

	wh.mu.Lock()
	defer wh.mu.Unlock()
	if len(wh.urls) != 0 {
		t.Fatalf("expected no webhook delivery when WebhookURL is unset, got %v", wh.urls)
	}
}

func TestBridgeKindFilterExcludesUnconfiguredKinds(t *testing.T) {
	src := newFakeSource()
	pub := &fakePublisher{}

	New(Config{Events: src, Publisher: pub, Kinds: []string{"executed"}})

	src.fire("progress", engineclient.Event{Type: "progress", CallerID: "prompt-3", Raw: []byte(`{}`)})
	src.fire("executed", engineclient.Event{Type: "executed", CallerID: "prompt-3", Raw: []byte(`{}`)})

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.calls) != 1 || pub.calls[0] != "comfy.executed" {
		t.Fatalf("expected only the configured 'executed' kind to forward, got %v", pub.calls)
	}
}

func TestForwardStorageEventFansOutBoth(t *testing.T) {
	src := newFakeSource()
	pub := &fakePublisher{}
	wh := &fakeWebhook{}

	b := New(Config{Events: src, Publisher: pub, Webhook: wh, WebhookURL: "https://hooks.example/events"})
	b.ForwardStorageEvent("file_downloaded", "prompt-4", map[string]any{"filename": "model.safetensors"})

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.calls) != 1 || pub.calls[0] != "storage.file_downloaded" {
		t.Fatalf("expected one storage.file_downloaded publish, got %v", pub.calls)
	}

	wh.mu.Lock()
	defer wh.mu.Unlock()
	if len(wh.urls) != 1 {
		t.Fatalf("expected one webhook delivery for the storage event, got %v", wh.urls)
	}
}
