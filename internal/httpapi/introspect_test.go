package httpapi

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/SaladTechnologies/comfyui-api-sub000/internal/catalog"
)

type stubQueueDepth struct{ depth int }

func (s stubQueueDepth) QueueDepth() int { return s.depth }

func TestReadyNotWarmIs503(t *testing.T) {
	h := &ProbeHandler{Readiness: &Readiness{}}

	req := httptest.NewRequest("GET", "/ready", nil)
	rec := httptest.NewRecorder()
	h.Ready(rec, req)

	if rec.Code != 503 {
		t.Fatalf("expected 503 before warm-up, got %d", rec.Code)
	}
}

func TestReadyWarmUnderQueueLimitIs200(t *testing.T) {
	ready := &Readiness{}
	ready.MarkWarm()
	h := &ProbeHandler{Readiness: ready, Queue: stubQueueDepth{depth: 1}, MaxQueueDepth: 2}

	req := httptest.NewRequest("GET", "/ready", nil)
	rec := httptest.NewRecorder()
	h.Ready(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestReadyQueueFullIs503(t *testing.T) {
	ready := &Readiness{}
	ready.MarkWarm()
	h := &ProbeHandler{Readiness: ready, Queue: stubQueueDepth{depth: 2}, MaxQueueDepth: 2}

	req := httptest.NewRequest("GET", "/ready", nil)
	rec := httptest.NewRecorder()
	h.Ready(rec, req)

	if rec.Code != 503 {
		t.Fatalf("expected 503 at queue capacity, got %d", rec.Code)
	}
}

func TestModelsReportsEnum(t *testing.T) {
	cat := catalog.New(map[string]string{"checkpoints": "/models/checkpoints"})
	cat.Seed("checkpoints", []string{"a.safetensors", "b.safetensors"})
	h := &ProbeHandler{Catalog: cat}

	req := httptest.NewRequest("GET", "/models", nil)
	rec := httptest.NewRecorder()
	h.Models(rec, req)

	var body map[string][]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(body["checkpoints"]) != 2 {
		t.Fatalf("unexpected models body: %v", body)
	}
}
