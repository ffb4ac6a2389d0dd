package orchestrator

import (
	"context"
	"fmt"
	"testing"

	"github.com/SaladTechnologies/comfyui-api-sub000/internal/completion"
	"github.com/SaladTechnologies/comfyui-api-sub000/internal/models"
	"github.com/SaladTechnologies/comfyui-api-sub000/internal/promptgraph"
	"github.com/SaladTechnologies/comfyui-api-sub000/internal/webhook"
)

type fakePreprocessor struct {
	result promptgraph.Result
	err    error
}

func (f fakePreprocessor) Process(ctx context.Context, promptID string, prompt models.Prompt) (promptgraph.Result, error) {
	if f.err != nil {
		return promptgraph.Result{}, f.err
	}
	if f.result.Prompt == nil {
		f.result.Prompt = prompt
	}
	return f.result, nil
}

type fakeDispatcher struct {
	engineID string
	err      error
}

func (f fakeDispatcher) Queue(ctx context.Context, prompt models.Prompt, clientID string) (string, error) {
	return f.engineID, f.err
}

type fakeCorrelator struct {
	puts    int
	evicted int
}

func (f *fakeCorrelator) Put(engineID, callerID string) { f.puts++ }

func (f *fakeCorrelator) EvictAfterDelay(engineID, callerID string) { f.evicted++ }

type fakeAwaiter struct {
	outputs completion.Outputs
	err     error
}

func (f fakeAwaiter) Await(ctx context.Context, callerID, engineID string) (completion.Outputs, map[string]models.NodeStats, error) {
	return f.outputs, nil, f.err
}

type fakeWebhook struct {
	v1Calls []webhook.V1Payload
	v2Calls []webhook.V2Payload
}

func (f *fakeWebhook) DeliverV1(ctx context.Context, url string, payload webhook.V1Payload) error {
	f.v1Calls = append(f.v1Calls, payload)
	return nil
}

func (f *fakeWebhook) DeliverV2(ctx context.Context, url string, payload webhook.V2Payload) error {
	f.v2Calls = append(f.v2Calls, payload)
	return nil
}

func basicOrchestrator() (*Orchestrator, *fakeWebhook) {
	wh := &fakeWebhook{}
	o := &Orchestrator{
		Preprocess: fakePreprocessor{result: promptgraph.Result{HasSaver: true}},
		Dispatch:   fakeDispatcher{engineID: "engine-1"},
		Correlate:  &fakeCorrelator{},
		Await:      fakeAwaiter{outputs: completion.Outputs{"out.png": []byte("pngdata")}},
		Webhook:    wh,
	}
	return o, wh
}

func TestRunInlineDelivery(t *testing.T) {
	o, _ := basicOrchestrator()
	req := models.PromptRequest{Prompt: models.Prompt{}}

	resp := Run(context.Background(), o, req)

	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d (%v)", resp.StatusCode, resp.GatewayErr)
	}
	if len(resp.Body.Images) != 1 {
		t.Fatalf("expected 1 inline image, got %d", len(resp.Body.Images))
	}
	if len(resp.Body.Filenames) != 1 || resp.Body.Filenames[0] != "out.png" {
		t.Errorf("unexpected filenames: %v", resp.Body.Filenames)
	}
}

func TestRunPreprocessFailureIs400(t *testing.T) {
	o, wh := basicOrchestrator()
	o.Preprocess = fakePreprocessor{err: models.NewValidationError("/n1/inputs/image", "bad url", nil)}
	req := models.PromptRequest{Prompt: models.Prompt{}, WebhookV2: "http://example.invalid/hook"}

	resp := Run(context.Background(), o, req)

	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if resp.GatewayErr == nil || resp.GatewayErr.Code != "validation" {
		t.Fatalf("expected validation GatewayError, got %+v", resp.GatewayErr)
	}
	if len(wh.v2Calls) != 1 || wh.v2Calls[0].Event != webhook.V2PromptFailed {
		t.Fatalf("expected one prompt.failed webhook call, got %+v", wh.v2Calls)
	}
}

func TestRunNoSaverIs400(t *testing.T) {
	o, wh := basicOrchestrator()
	o.Preprocess = fakePreprocessor{result: promptgraph.Result{HasSaver: false}}
	req := models.PromptRequest{Prompt: models.Prompt{}, WebhookV2: "http://example.invalid/hook"}

	resp := Run(context.Background(), o, req)

	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if resp.GatewayErr == nil || resp.GatewayErr.Code != "validation" {
		t.Fatalf("expected validation GatewayError, got %+v", resp.GatewayErr)
	}
	if len(wh.v2Calls) != 1 || wh.v2Calls[0].Event != webhook.V2PromptFailed {
		t.Fatalf("expected one prompt.failed webhook call, got %+v", wh.v2Calls)
	}
}

func TestRunDispatchFailureIs502(t *testing.T) {
	o, _ := basicOrchestrator()
	o.Dispatch = fakeDispatcher{err: models.NewDispatchError("boom", fmt.Errorf("connection refused"))}

	resp := Run(context.Background(), o, models.PromptRequest{Prompt: models.Prompt{}})

	if resp.StatusCode != 502 {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
}

func TestRunWebhookV1PushReturns202(t *testing.T) {
	o, wh := basicOrchestrator()
	req := models.PromptRequest{Prompt: models.Prompt{}, Webhook: "http://example.invalid/hook"}

	resp := Run(context.Background(), o, req)

	if resp.StatusCode != 202 {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	if len(wh.v1Calls) != 1 || wh.v1Calls[0].Filename != "out.png" {
		t.Fatalf("expected one v1 push for out.png, got %+v", wh.v1Calls)
	}
}

func TestRunUploadWithoutRegistryFails(t *testing.T) {
	o, _ := basicOrchestrator()
	req := models.PromptRequest{Prompt: models.Prompt{}, S3: &models.S3Upload{Bucket: "b"}}

	resp := Run(context.Background(), o, req)

	if resp.StatusCode != 502 {
		t.Fatalf("expected 502 when upload requested with no registry, got %d", resp.StatusCode)
	}
}

func TestRunEvictsCorrelationOnSuccessAndFailure(t *testing.T) {
	o, _ := basicOrchestrator()
	corr := &fakeCorrelator{}
	o.Correlate = corr

	Run(context.Background(), o, models.PromptRequest{Prompt: models.Prompt{}})
	if corr.evicted != 1 {
		t.Fatalf("expected eviction after successful completion, got %d", corr.evicted)
	}

	o.Await = fakeAwaiter{err: models.NewExecutionError("boom", fmt.Errorf("lost connection"))}
	Run(context.Background(), o, models.PromptRequest{Prompt: models.Prompt{}})
	if corr.evicted != 2 {
		t.Fatalf("expected eviction after post-dispatch failure too, got %d", corr.evicted)
	}
}

func TestRunCompressOutputsCollapsesFilenames(t *testing.T) {
	o, _ := basicOrchestrator()
	o.Await = fakeAwaiter{outputs: completion.Outputs{
		"a.png": []byte("a"),
		"b.png": []byte("b"),
	}}
	req := models.PromptRequest{Prompt: models.Prompt{}, CompressOutputs: true}

	resp := Run(context.Background(), o, req)

	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d (%v)", resp.StatusCode, resp.GatewayErr)
	}
	if len(resp.Body.Filenames) != 1 || resp.Body.Filenames[0] != "outputs.zip" {
		t.Fatalf("expected a single outputs.zip filename, got %v", resp.Body.Filenames)
	}
}
