package completion

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/SaladTechnologies/comfyui-api-sub000/internal/engineclient"
)

type fakeEvents struct {
	mu       sync.Mutex
	handlers map[string]map[string]engineclient.Handler
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{handlers: make(map[string]map[string]engineclient.Handler)}
}

func (f *fakeEvents) Subscribe(kind, callerID string, handler engineclient.Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handlers[kind] == nil {
		f.handlers[kind] = make(map[string]engineclient.Handler)
	}
	f.handlers[kind][callerID] = handler
}

func (f *fakeEvents) Unsubscribe(kind, callerID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers[kind], callerID)
}

func (f *fakeEvents) fire(kind, callerID string, ev engineclient.Event) {
	f.mu.Lock()
	h := f.handlers[kind][callerID]
	f.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

type fakeHistory struct {
	mu     sync.Mutex
	status engineclient.HistoryStatus
	outputs map[string]any
	err    error
}

func (f *fakeHistory) History(ctx context.Context, engineID string) (engineclient.HistoryStatus, map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, f.outputs, f.err
}

func (f *fakeHistory) setCompleted(outputs map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = engineclient.HistoryCompleted
	f.outputs = outputs
}

func TestAwaitWSSuccessFirstReadsHistory(t *testing.T) {
	events := newFakeEvents()
	hist := &fakeHistory{}
	files := map[string][]byte{"/out/result.png": []byte("png-bytes")}
	readFile := func(path string) ([]byte, error) {
		data, ok := files[path]
		if !ok {
			return nil, fmt.Errorf("not found: %s", path)
		}
		return data, nil
	}

	c := New(events, hist, readFile, "/out", nil)

	go func() {
		time.Sleep(10 * time.Millisecond)
		events.fire("execution_success", "caller-1", engineclient.Event{})
		time.Sleep(10 * time.Millisecond)
		hist.setCompleted(map[string]any{
			"9": map[string]any{
				"images": []any{map[string]any{"filename": "result.png", "subfolder": "", "type": "output"}},
			},
		})
	}()

	outputs, _, err := c.Await(context.Background(), "caller-1", "engine-1")
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if string(outputs["result.png"]) != "png-bytes" {
		t.Errorf("got outputs %v", outputs)
	}
}

func TestAwaitExecutionErrorFails(t *testing.T) {
	events := newFakeEvents()
	hist := &fakeHistory{}
	c := New(events, hist, func(string) ([]byte, error) { return nil, nil }, "/out", nil)

	go func() {
		time.Sleep(10 * time.Millisecond)
		events.fire("execution_error", "caller-2", engineclient.Event{})
	}()

	_, _, err := c.Await(context.Background(), "caller-2", "engine-2")
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestAwaitHistoryFirstStillWaitsForWSStats(t *testing.T) {
	events := newFakeEvents()
	hist := &fakeHistory{}
	hist.setCompleted(map[string]any{
		"9": map[string]any{"images": []any{map[string]any{"filename": "a.png", "subfolder": "", "type": "output"}}},
	})
	files := map[string][]byte{"/out/a.png": []byte("bytes-a")}
	readFile := func(path string) ([]byte, error) { return files[path], nil }

	c := New(events, hist, readFile, "/out", nil)

	go func() {
		time.Sleep(20 * time.Millisecond)
		events.fire("execution_success", "caller-3", engineclient.Event{})
	}()

	outputs, _, err := c.Await(context.Background(), "caller-3", "engine-3")
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if string(outputs["a.png"]) != "bytes-a" {
		t.Errorf("got outputs %v", outputs)
	}
}
