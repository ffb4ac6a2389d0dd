package httpapi

import (
	"net/http"
	"sync/atomic"

	"github.com/SaladTechnologies/comfyui-api-sub000/internal/catalog"
)

// QueueDepther reports how many prompts the Engine currently has queued
// or executing, mirroring engineclient.Client.QueueDepth.
type QueueDepther interface {
	QueueDepth() int
}

// DiskUsageReporter reports the download cache's on-disk footprint.
type DiskUsageReporter interface {
	DiskUsageBytes() (int64, error)
}

// Readiness tracks whether the gateway has ever completed its warm-up
// sequence (spec §4.8: "/ready returns 200 iff the gateway was ever warm
// AND ..."), a one-way latch set once by the boot sequence.
type Readiness struct {
	warm atomic.Bool
}

// MarkWarm latches readiness on; it never turns back off once set.
func (r *Readiness) MarkWarm() { r.warm.Store(true) }

// IsWarm reports whether MarkWarm has ever been called.
func (r *Readiness) IsWarm() bool { return r.warm.Load() }

// ProbeHandler serves GET /models, /health, /ready.
type ProbeHandler struct {
	Catalog       *catalog.Catalog
	Queue         QueueDepther
	Cache         DiskUsageReporter
	Readiness     *Readiness
	MaxQueueDepth int
	CacheMaxBytes int64
}

// Models reports the known filenames per model type, the shape the
// external workflow/template pack's schema validator consults.
func (h *ProbeHandler) Models(w http.ResponseWriter, r *http.Request) {
	out := make(map[string][]string, len(h.Catalog.KnownTypes()))
	for _, t := range h.Catalog.KnownTypes() {
		out[t] = h.Catalog.Enum(t)
	}
	writeJSON(w, http.StatusOK, out)
}

// Health reports a liveness snapshot, including cache disk usage against
// the configured quota (see DESIGN.md's download-cache eviction decision).
func (h *ProbeHandler) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if h.Queue != nil {
		body["queue_depth"] = h.Queue.QueueDepth()
	}
	if h.Cache != nil {
		if used, err := h.Cache.DiskUsageBytes(); err == nil {
			body["cache_bytes"] = used
			body["cache_max_bytes"] = h.CacheMaxBytes
		}
	}
	writeJSON(w, http.StatusOK, body)
}

// Ready implements the readiness gate from spec §4.8/§8.
func (h *ProbeHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.Readiness == nil || !h.Readiness.IsWarm() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "warming up"})
		return
	}
	if h.MaxQueueDepth > 0 && h.Queue != nil && h.Queue.QueueDepth() >= h.MaxQueueDepth {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "queue full", "queue_depth": h.Queue.QueueDepth()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}
