// Package webhook builds and delivers the gateway's two outbound webhook
// shapes: the deprecated v1 per-file push and the signed v2 lifecycle
// events, grounded on CodeTease-quirm's hmac.New/hmac.Equal signing
// pattern and the corpus's hashicorp/go-retryablehttp use for outbound
// delivery.
package webhook

import (
	"encoding/base64"

	"github.com/SaladTechnologies/comfyui-api-sub000/internal/models"
)

// V1Payload is the deprecated per-file push: one POST per output file.
type V1Payload struct {
	Event  string                `json:"event"`
	Image  string                `json:"image"` // base64
	ID     string                `json:"id"`
	Filename string              `json:"filename"`
	Prompt models.Prompt         `json:"prompt"`
	Stats  models.ExecutionStats `json:"stats"`
}

// NewV1Payload builds an "output.complete" v1 payload for one output
// file.
func NewV1Payload(id, filename string, data []byte, prompt models.Prompt, stats models.ExecutionStats) V1Payload {
	return V1Payload{
		Event:    "output.complete",
		Image:    base64.StdEncoding.EncodeToString(data),
		ID:       id,
		Filename: filename,
		Prompt:   prompt,
		Stats:    stats,
	}
}

// V2Event names the two lifecycle events v2 webhooks deliver.
type V2Event string

const (
	V2PromptComplete V2Event = "prompt.complete"
	V2PromptFailed   V2Event = "prompt.failed"
)

// V2Payload is the single-POST completion/failure event. Outputs carries
// either inline base64 bytes or destination URLs, depending on the
// delivery strategy selected for the request.
type V2Payload struct {
	Event  V2Event               `json:"event"`
	ID     string                `json:"id"`
	Outputs []V2Output           `json:"outputs,omitempty"`
	Error  string                `json:"error,omitempty"`
	Stats  models.ExecutionStats `json:"stats"`
}

// V2Output is one delivered file, inline or by reference.
type V2Output struct {
	Filename string `json:"filename"`
	Image    string `json:"image,omitempty"` // base64, when delivered inline
	URL      string `json:"url,omitempty"`   // when delivered by upload
}

// NewV2Complete builds a "prompt.complete" payload.
func NewV2Complete(id string, outputs []V2Output, stats models.ExecutionStats) V2Payload {
	return V2Payload{Event: V2PromptComplete, ID: id, Outputs: outputs, Stats: stats}
}

// NewV2Failed builds a "prompt.failed" payload.
func NewV2Failed(id string, err error, stats models.ExecutionStats) V2Payload {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return V2Payload{Event: V2PromptFailed, ID: id, Error: msg, Stats: stats}
}
