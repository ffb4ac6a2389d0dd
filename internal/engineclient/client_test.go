package engineclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/SaladTechnologies/comfyui-api-sub000/internal/correlation"
	"github.com/SaladTechnologies/comfyui-api-sub000/internal/models"
)

func TestQueueReturnsEngineID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/prompt" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(queueResponse{PromptID: "engine-abc"})
	}))
	defer srv.Close()

	c := New(srv.URL, correlation.New(0))
	id, err := c.Queue(context.Background(), models.Prompt{}, "client-1")
	if err != nil {
		t.Fatalf("Queue: %v", err)
	}
	if id != "engine-abc" {
		t.Errorf("got %q, want engine-abc", id)
	}
}

func TestQueueNonOKStatusIsDispatchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, correlation.New(0))
	_, err := c.Queue(context.Background(), models.Prompt{}, "client-1")
	if err == nil {
		t.Fatal("expected an error")
	}
	if _, ok := err.(*models.GatewayError); !ok {
		t.Errorf("expected *models.GatewayError, got %T", err)
	}
}

func TestHistoryPendingWhenMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]historyEntry{})
	}))
	defer srv.Close()

	c := New(srv.URL, correlation.New(0))
	status, outputs, err := c.History(context.Background(), "engine-missing")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if status != HistoryPending || outputs != nil {
		t.Errorf("got status=%v outputs=%v, want pending/nil", status, outputs)
	}
}

func TestHistoryCompleted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entries := map[string]historyEntry{}
		e := historyEntry{Outputs: map[string]any{"1": map[string]any{"filenames": []any{"out.png"}}}}
		e.Status.StatusStr = "success"
		entries["engine-1"] = e
		json.NewEncoder(w).Encode(entries)
	}))
	defer srv.Close()

	c := New(srv.URL, correlation.New(0))
	status, outputs, err := c.History(context.Background(), "engine-1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if status != HistoryCompleted {
		t.Errorf("got status=%v, want completed", status)
	}
	if outputs == nil {
		t.Error("expected non-nil outputs")
	}
}

func TestInterruptRequiresMapping(t *testing.T) {
	c := New("http://unused", correlation.New(0))
	if err := c.Interrupt(context.Background(), "caller-unmapped"); err == nil {
		t.Fatal("expected an error for an unmapped caller id")
	}
}
