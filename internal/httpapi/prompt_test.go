package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/SaladTechnologies/comfyui-api-sub000/internal/completion"
	"github.com/SaladTechnologies/comfyui-api-sub000/internal/models"
	"github.com/SaladTechnologies/comfyui-api-sub000/internal/orchestrator"
	"github.com/SaladTechnologies/comfyui-api-sub000/internal/promptgraph"
)

type stubPreprocessor struct{}

func (stubPreprocessor) Process(ctx context.Context, promptID string, prompt models.Prompt) (promptgraph.Result, error) {
	return promptgraph.Result{Prompt: prompt, HasSaver: true}, nil
}

type stubDispatcher struct{}

func (stubDispatcher) Queue(ctx context.Context, prompt models.Prompt, clientID string) (string, error) {
	return "engine-1", nil
}

type stubCorrelator struct{}

func (stubCorrelator) Put(engineID, callerID string) {}

func (stubCorrelator) EvictAfterDelay(engineID, callerID string) {}

type stubAwaiter struct{}

func (stubAwaiter) Await(ctx context.Context, callerID, engineID string) (completion.Outputs, map[string]models.NodeStats, error) {
	return completion.Outputs{"out.png": []byte("pngbytes")}, nil, nil
}

func newTestOrchestrator() *orchestrator.Orchestrator {
	return &orchestrator.Orchestrator{
		Preprocess: stubPreprocessor{},
		Dispatch:   stubDispatcher{},
		Correlate:  stubCorrelator{},
		Await:      stubAwaiter{},
	}
}

func TestPromptHandlerInline(t *testing.T) {
	h := &PromptHandler{Orchestrator: newTestOrchestrator()}

	body, _ := json.Marshal(models.PromptRequest{Prompt: models.Prompt{"1": {ClassType: "X"}}})
	req := httptest.NewRequest("POST", "/prompt", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp models.PromptResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Images) != 1 {
		t.Fatalf("expected 1 inline image, got %d", len(resp.Images))
	}
}

func TestPromptHandlerMissingPromptIs400(t *testing.T) {
	h := &PromptHandler{Orchestrator: newTestOrchestrator()}

	body, _ := json.Marshal(models.PromptRequest{})
	req := httptest.NewRequest("POST", "/prompt", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != 400 {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPromptHandlerBadJSONIs400(t *testing.T) {
	h := &PromptHandler{Orchestrator: newTestOrchestrator()}

	req := httptest.NewRequest("POST", "/prompt", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != 400 {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
