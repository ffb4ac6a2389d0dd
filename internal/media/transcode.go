package media

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Transcoder implements the post-processing output routing described in
// spec step 3: audio/video targets (or audio/video-shaped inputs) go
// through the external encoder subprocess; everything else goes through
// the native image codec path, with WebP output falling back to the
// subprocess since no pure-Go WebP encoder exists in this stack.
type Transcoder struct {
	encoder *Encoder // nil when no encoder binary was found at boot
}

// NewTranscoder wraps an optional Encoder. A nil encoder is valid: image
// png/jpeg transcodes still work, audio/video/webp requests fail with
// ErrEncoderUnavailable.
func NewTranscoder(encoder *Encoder) *Transcoder {
	return &Transcoder{encoder: encoder}
}

// Result carries the transcoded bytes, the filename extension to apply,
// and how long the transcode took (for ExecutionStats.PostprocessMs).
type Result struct {
	Bytes     []byte
	Extension string
	Elapsed   time.Duration
}

// Transcode converts raw file bytes (as produced by the Engine) to
// dstFormat, routing through the media encoder subprocess or the native
// image codec path per spec step 3. filename's extension serves two
// purposes: when dstFormat is empty, an audio/video extension picks the
// target; and an audio/video *input* extension routes the transcode
// through the encoder whatever dstFormat is.
func (t *Transcoder) Transcode(ctx context.Context, filename string, raw []byte, dstFormat Format) (Result, error) {
	srcFormat, err := Sniff(raw)
	if err != nil {
		return Result{}, err
	}

	target := dstFormat
	if target == "" {
		if ext := strings.TrimPrefix(filepath.Ext(filename), "."); ext != "" {
			if f, ok := FormatFromExtension(ext); ok {
				target = f
			}
		}
		if target == "" {
			target = srcFormat
		}
	}

	_, inputIsMedia := FormatFromExtension(strings.TrimPrefix(filepath.Ext(filename), "."))
	needsEncoder := IsMediaFormat(target) || inputIsMedia || target == FormatWebP

	if needsEncoder {
		if t.encoder == nil {
			return Result{}, fmt.Errorf("media: transcode to %s requires an encoder: %w", target, ErrEncoderUnavailable)
		}
		out, elapsed, err := t.encoder.Transcode(ctx, raw, srcFormat, target)
		if err != nil {
			return Result{}, err
		}
		return Result{Bytes: out, Extension: string(target), Elapsed: elapsed}, nil
	}

	start := time.Now()
	out, err := TranscodeImage(raw, target)
	if err != nil {
		return Result{}, err
	}
	return Result{Bytes: out, Extension: string(target), Elapsed: time.Since(start)}, nil
}
