package models

// ConvertOutput selects a post-processing transcode target for every
// output file of a prompt (spec §6, POST /prompt.convert_output).
type ConvertOutput struct {
	Format  string         `json:"format"`
	Options map[string]any `json:"options,omitempty"`
}

// S3Upload configures the S3-compatible delivery strategy.
type S3Upload struct {
	Bucket string `json:"bucket"`
	Prefix string `json:"prefix,omitempty"`
	Async  bool   `json:"async,omitempty"`
}

// AzureBlobUpload configures the Azure Blob delivery strategy.
type AzureBlobUpload struct {
	Container string `json:"container"`
	BlobPrefix string `json:"blob_prefix,omitempty"`
	Async     bool    `json:"async,omitempty"`
}

// HTTPUpload configures the generic HTTP PUT/POST delivery strategy.
type HTTPUpload struct {
	URLPrefix string `json:"url_prefix"`
	Async     bool   `json:"async,omitempty"`
}

// HFUpload configures delivery via upload to a HuggingFace repo.
type HFUpload struct {
	Repo      string `json:"repo"`
	RepoType  string `json:"repo_type"`
	Directory string `json:"directory"`
	Async     bool   `json:"async,omitempty"`
}

// PromptRequest is the decoded body of POST /prompt (spec §6). Exactly
// one of the upload fields should be set; when none are set delivery is
// inline (base64 in the response) unless a webhook is configured.
type PromptRequest struct {
	Prompt          Prompt           `json:"prompt"`
	ID              string           `json:"id,omitempty"`
	Webhook         string           `json:"webhook,omitempty"`
	WebhookV2       string           `json:"webhook_v2,omitempty"`
	ConvertOutput   *ConvertOutput   `json:"convert_output,omitempty"`
	CompressOutputs bool             `json:"compress_outputs,omitempty"`
	SignedURL       bool             `json:"signed_url,omitempty"`
	S3              *S3Upload        `json:"s3,omitempty"`
	AzureBlobUpload *AzureBlobUpload `json:"azure_blob_upload,omitempty"`
	HTTPUpload      *HTTPUpload      `json:"http_upload,omitempty"`
	HFUpload        *HFUpload        `json:"hf_upload,omitempty"`
}

// HasUpload reports whether any upload delivery strategy was requested.
func (r PromptRequest) HasUpload() bool {
	return r.S3 != nil || r.AzureBlobUpload != nil || r.HTTPUpload != nil || r.HFUpload != nil
}

// IsAsyncUpload reports whether the configured upload strategy, if any,
// requested async (fire-and-forget, 202) delivery.
func (r PromptRequest) IsAsyncUpload() bool {
	switch {
	case r.S3 != nil:
		return r.S3.Async
	case r.AzureBlobUpload != nil:
		return r.AzureBlobUpload.Async
	case r.HTTPUpload != nil:
		return r.HTTPUpload.Async
	case r.HFUpload != nil:
		return r.HFUpload.Async
	default:
		return false
	}
}

// PromptResponse is the 200/202 JSON body of POST /prompt.
type PromptResponse struct {
	ID        string            `json:"id"`
	Status    string            `json:"status,omitempty"`
	Prompt    Prompt            `json:"prompt,omitempty"`
	Images    []string          `json:"images,omitempty"`
	Filenames []string          `json:"filenames,omitempty"`
	URLs      []string          `json:"urls,omitempty"`
	Stats     *ExecutionStats   `json:"stats,omitempty"`
}

// ErrorResponse is the 400/5xx JSON error body.
type ErrorResponse struct {
	Error    string `json:"error"`
	Location string `json:"location,omitempty"`
	Message  string `json:"message,omitempty"`
}

// DownloadRequest is the decoded body of POST /download (spec §6).
type DownloadRequest struct {
	URL       string `json:"url"`
	ModelType string `json:"model_type"`
	Filename  string `json:"filename,omitempty"`
	Wait      bool   `json:"wait,omitempty"`
}

// DownloadResponse is the 200/202 JSON body of POST /download.
type DownloadResponse struct {
	Status   string  `json:"status"`
	Filename string  `json:"filename,omitempty"`
	Size     int64   `json:"size,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}
