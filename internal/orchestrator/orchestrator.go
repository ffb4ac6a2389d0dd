// Package orchestrator implements the Prompt Orchestrator: the
// end-to-end six-step pipeline from spec §4.6 — preprocess, dispatch,
// await, post-process, deliver, and (optionally) notify a v2 completion
// webhook — wiring together every other internal package behind one
// Run call the HTTP Surface invokes per request.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/SaladTechnologies/comfyui-api-sub000/internal/completion"
	"github.com/SaladTechnologies/comfyui-api-sub000/internal/media"
	"github.com/SaladTechnologies/comfyui-api-sub000/internal/models"
	"github.com/SaladTechnologies/comfyui-api-sub000/internal/orchestrator/delivery"
	"github.com/SaladTechnologies/comfyui-api-sub000/internal/promptgraph"
	"github.com/SaladTechnologies/comfyui-api-sub000/internal/telemetry"
	"github.com/SaladTechnologies/comfyui-api-sub000/internal/webhook"
)

// Preprocessor is the subset of promptgraph.Preprocessor the orchestrator
// needs.
type Preprocessor interface {
	Process(ctx context.Context, promptID string, prompt models.Prompt) (promptgraph.Result, error)
}

// Dispatcher is the subset of engineclient.Client needed to queue a
// prompt and map its engine-assigned id back to the caller id.
type Dispatcher interface {
	Queue(ctx context.Context, prompt models.Prompt, clientID string) (string, error)
}

// Correlator maps between the Engine's prompt id and the caller's id.
type Correlator interface {
	Put(engineID, callerID string)
	EvictAfterDelay(engineID, callerID string)
}

// Awaiter is the subset of completion.Coordinator the orchestrator needs.
type Awaiter interface {
	Await(ctx context.Context, callerID, engineID string) (completion.Outputs, map[string]models.NodeStats, error)
}

// Transcoder is the subset of media.Transcoder the orchestrator needs.
type Transcoder interface {
	Transcode(ctx context.Context, filename string, raw []byte, dst media.Format) (media.Result, error)
}

// Webhook is the subset of webhook.Client the orchestrator needs.
type Webhook interface {
	DeliverV1(ctx context.Context, url string, payload webhook.V1Payload) error
	DeliverV2(ctx context.Context, url string, payload webhook.V2Payload) error
}

// Orchestrator wires the lifecycle pipeline together.
type Orchestrator struct {
	Preprocess Preprocessor
	Dispatch   Dispatcher
	Correlate  Correlator
	Await      Awaiter
	Transcode  Transcoder
	Registry   delivery.Registry // nil is valid when no upload provider is configured
	Webhook    Webhook
	Telemetry  *telemetry.Aggregator

	ClientID string // the gateway's own WebSocket client id used when queuing
	Log      *slog.Logger
}

// Response is what Run hands the HTTP Surface to render as JSON.
type Response struct {
	StatusCode int
	Body       models.PromptResponse
	GatewayErr *models.GatewayError // non-nil on failure; StatusCode already reflects it
}

// Run executes the full pipeline for one prompt request.
func Run(ctx context.Context, o *Orchestrator, req models.PromptRequest) Response {
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	var engineID string
	stats := models.ExecutionStats{Start: nowMs(), QueuedAt: nowMs()}
	fail := func(code int, gerr *models.GatewayError) Response {
		stats.End = nowMs()
		stats.TotalMs = stats.End - stats.Start
		o.notifyFailure(ctx, req, id, gerr, stats)
		if o.Telemetry != nil {
			o.Telemetry.RecordFailure(stats.TotalMs)
		}
		if engineID != "" {
			o.Correlate.EvictAfterDelay(engineID, id)
		}
		return Response{StatusCode: code, GatewayErr: gerr}
	}

	// 1. Preprocess.
	preStart := time.Now()
	result, err := o.Preprocess.Process(ctx, id, req.Prompt)
	stats.PreprocessMs = time.Since(preStart).Milliseconds()
	if err != nil {
		gerr := asGatewayError(err, models.NewPreprocessError("", "preprocessing failed", err))
		return fail(400, gerr)
	}
	if !result.HasSaver {
		gerr := models.NewValidationError("", "prompt graph has no output-saving node", nil)
		return fail(400, gerr)
	}

	// 2. Dispatch.
	stats.DispatchedAt = nowMs()
	engineID, err = o.Dispatch.Queue(ctx, result.Prompt, o.ClientID)
	if err != nil {
		gerr := asGatewayError(err, models.NewDispatchError("dispatching to engine", err))
		return fail(502, gerr)
	}
	o.Correlate.Put(engineID, id)

	// 3. Await.
	engineStart := time.Now()
	rawOutputs, perNode, err := o.Await.Await(ctx, id, engineID)
	stats.EngineMs = time.Since(engineStart).Milliseconds()
	stats.PerNode = perNode
	if err != nil {
		gerr := asGatewayError(err, models.NewExecutionError("awaiting engine execution", err))
		return fail(502, gerr)
	}

	// 4. Post-process.
	postStart := time.Now()
	files, err := o.postProcess(ctx, req, rawOutputs)
	stats.PostprocessMs = time.Since(postStart).Milliseconds()
	if err != nil {
		gerr := asGatewayError(err, models.NewDeliveryError("post-processing outputs", err))
		return fail(500, gerr)
	}

	// 5/6. Deliver, then signed-URL post-processing where applicable.
	uploadStart := time.Now()
	delivered, statusCode, err := o.deliver(ctx, req, id, files)
	stats.UploadMs = time.Since(uploadStart).Milliseconds()
	if err != nil {
		gerr := asGatewayError(err, models.NewDeliveryError("delivering outputs", err))
		return fail(502, gerr)
	}

	stats.End = nowMs()
	stats.TotalMs = stats.End - stats.Start

	filenames := make([]string, len(files))
	for i, f := range files {
		filenames[i] = f.Name
	}

	body := models.PromptResponse{
		ID:        id,
		Prompt:    result.Prompt,
		Filenames: filenames,
		Images:    delivered.Images,
		URLs:      delivered.URLs,
		Stats:     &stats,
	}
	if statusCode == 202 {
		body.Status = "ok"
	}

	o.notifySuccess(ctx, req, id, files, delivered, stats)
	if o.Telemetry != nil {
		o.Telemetry.RecordSuccess(stats.TotalMs)
	}
	o.Correlate.EvictAfterDelay(engineID, id)

	return Response{StatusCode: statusCode, Body: body}
}

// postProcess applies the requested transcode (if any) to every output
// file and, if compress_outputs is set, archives the result into a
// single outputs.zip per spec §4.6 step 3.
func (o *Orchestrator) postProcess(ctx context.Context, req models.PromptRequest, raw map[string][]byte) ([]delivery.File, error) {
	var dstFormat media.Format
	if req.ConvertOutput != nil {
		dstFormat = media.Format(req.ConvertOutput.Format)
		if dstFormat == "jpg" {
			dstFormat = media.FormatJPEG
		}
	}

	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	files := make([]delivery.File, 0, len(names))
	for _, name := range names {
		data := raw[name]
		outName := name
		if dstFormat != "" {
			result, err := o.Transcode.Transcode(ctx, name, data, dstFormat)
			if err != nil {
				return nil, fmt.Errorf("orchestrator: transcoding %s: %w", name, err)
			}
			data = result.Bytes
			outName = replaceExt(name, result.Extension)
		}
		files = append(files, delivery.File{Name: outName, Bytes: data})
	}

	if req.CompressOutputs && len(files) > 0 {
		mediaFiles := make([]media.File, len(files))
		for i, f := range files {
			mediaFiles[i] = media.File{Name: f.Name, Bytes: f.Bytes}
		}
		zipped, err := media.Zip(mediaFiles)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: archiving outputs: %w", err)
		}
		files = []delivery.File{{Name: zipped.Name, Bytes: zipped.Bytes}}
	}

	return files, nil
}

// deliver picks exactly one of the three delivery strategies per spec
// §4.6 step 4: upload (sync or async), per-file v1 webhook push, or
// inline base64.
func (o *Orchestrator) deliver(ctx context.Context, req models.PromptRequest, id string, files []delivery.File) (delivery.Result, int, error) {
	if spec, ok := delivery.SpecFromRequest(req); ok {
		if o.Registry == nil {
			return delivery.Result{}, 0, fmt.Errorf("orchestrator: upload requested but no storage registry is configured")
		}
		result, err := delivery.Upload(ctx, o.Registry, spec, files, req.SignedURL, o.logger())
		if err != nil {
			return delivery.Result{}, 0, err
		}
		if result.Async {
			return result, 202, nil
		}
		return result, 200, nil
	}

	if req.Webhook != "" {
		for _, f := range files {
			payload := webhook.NewV1Payload(id, f.Name, f.Bytes, req.Prompt, models.ExecutionStats{})
			if err := o.Webhook.DeliverV1(ctx, req.Webhook, payload); err != nil {
				o.logger().Error("v1 webhook delivery failed", "filename", f.Name, "error", err)
			}
		}
		return delivery.Result{}, 202, nil
	}

	return delivery.Inline(files), 200, nil
}

func (o *Orchestrator) notifySuccess(ctx context.Context, req models.PromptRequest, id string, files []delivery.File, delivered delivery.Result, stats models.ExecutionStats) {
	if req.WebhookV2 == "" || o.Webhook == nil {
		return
	}
	outputs := make([]webhook.V2Output, len(files))
	for i, f := range files {
		outputs[i] = webhook.V2Output{Filename: f.Name}
		if i < len(delivered.Images) {
			outputs[i].Image = delivered.Images[i]
		}
		if i < len(delivered.URLs) {
			outputs[i].URL = delivered.URLs[i]
		}
	}
	payload := webhook.NewV2Complete(id, outputs, stats)
	if err := o.Webhook.DeliverV2(ctx, req.WebhookV2, payload); err != nil {
		o.logger().Error("v2 completion webhook failed", "id", id, "error", err)
	}
}

// notifyFailure sends a prompt.failed v2 event to whichever webhook URL
// the request configured (webhook_v2 preferred; the deprecated v1 field
// is accepted as a fallback target since v1 has no failure shape of its
// own to carry the error).
func (o *Orchestrator) notifyFailure(ctx context.Context, req models.PromptRequest, id string, gerr *models.GatewayError, stats models.ExecutionStats) {
	if o.Webhook == nil {
		return
	}
	url := req.WebhookV2
	if url == "" {
		url = req.Webhook
	}
	if url == "" {
		return
	}
	payload := webhook.NewV2Failed(id, gerr, stats)
	if err := o.Webhook.DeliverV2(ctx, url, payload); err != nil {
		o.logger().Error("prompt.failed webhook delivery failed", "id", id, "error", err)
	}
}

func asGatewayError(err error, fallback *models.GatewayError) *models.GatewayError {
	var gerr *models.GatewayError
	if errors.As(err, &gerr) {
		return gerr
	}
	return fallback
}

func replaceExt(name, ext string) string {
	if ext == "" {
		return name
	}
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[:i+1] + ext
		}
	}
	return name + "." + ext
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Log != nil {
		return o.Log
	}
	return slog.Default()
}
