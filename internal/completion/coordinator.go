// Package completion implements the Completion Coordinator: for a given
// prompt it races a WebSocket success/failure signal against polling of
// the Engine's history endpoint, taking whichever resolves first, per
// spec §4.5.
package completion

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/SaladTechnologies/comfyui-api-sub000/internal/engineclient"
	"github.com/SaladTechnologies/comfyui-api-sub000/internal/models"
)

// EventSource is the subset of engineclient.Client the coordinator needs,
// narrowed for testability.
type EventSource interface {
	Subscribe(kind, callerID string, handler engineclient.Handler)
	Unsubscribe(kind, callerID string)
}

// HistorySource is the subset of engineclient.Client needed for polling.
type HistorySource interface {
	History(ctx context.Context, engineID string) (engineclient.HistoryStatus, map[string]any, error)
}

// FileReader reads a completed output file from disk into memory.
type FileReader func(path string) ([]byte, error)

// Coordinator races the two signals described in spec §4.5.
type Coordinator struct {
	events   EventSource
	history  HistorySource
	readFile FileReader
	outputDir string
	log      *slog.Logger
}

// New builds a Coordinator. outputDir is the Engine's output directory,
// used to resolve history entries' {filename, subfolder} pairs to
// absolute paths.
func New(events EventSource, history HistorySource, readFile FileReader, outputDir string, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{events: events, history: history, readFile: readFile, outputDir: outputDir, log: log}
}

// Outputs maps an output filename to its bytes, per spec §4.5.
type Outputs map[string][]byte

// wsResult carries the outcome of the WebSocket signal.
type wsResult struct {
	err error
}

// histResult carries the outcome of one history poll attempt.
type histResult struct {
	status engineclient.HistoryStatus
	files  map[string]string // filename -> absolute path
	err    error
}

// stats accumulates per-node timing from execution_start/executing
// frames while a prompt is in flight.
type stats struct {
	mu      sync.Mutex
	perNode map[string]models.NodeStats
}

func (s *stats) nodeStart(nodeID string, at int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.perNode[nodeID] = models.NodeStats{Start: at}
}

func (s *stats) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.perNode = make(map[string]models.NodeStats)
}

func (s *stats) snapshot() map[string]models.NodeStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]models.NodeStats, len(s.perNode))
	for k, v := range s.perNode {
		out[k] = v
	}
	return out
}

// Await blocks until engineID's prompt completes or fails, returning the
// collected output bytes and per-node stats observed over the WebSocket.
func (c *Coordinator) Await(ctx context.Context, callerID, engineID string) (Outputs, map[string]models.NodeStats, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	st := &stats{perNode: make(map[string]models.NodeStats)}
	wsCh := make(chan wsResult, 1)
	c.listenWS(callerID, st, wsCh)
	defer c.unsubscribeWS(callerID)

	histCh := make(chan histResult, 1)
	go c.pollHistory(ctx, engineID, time.Second, 0, histCh)

	select {
	case ws := <-wsCh:
		if ws.err != nil {
			return nil, st.snapshot(), ws.err
		}
		// WS-success came first: reconfigure the poller to fast/bounded and
		// await it — successful history is the authoritative source of file
		// bytes.
		fastCh := make(chan histResult, 1)
		go c.pollHistory(ctx, engineID, 30*time.Millisecond, 200, fastCh)
		select {
		case hist := <-fastCh:
			if hist.err != nil {
				return nil, st.snapshot(), hist.err
			}
			outputs, err := c.readOutputs(hist)
			return outputs, st.snapshot(), err
		case <-ctx.Done():
			return nil, st.snapshot(), ctx.Err()
		}

	case hist := <-histCh:
		if hist.err != nil {
			return nil, st.snapshot(), hist.err
		}
		// History-first (unexpected but tolerated): await the WS signal for
		// stats only; history is already authoritative for bytes.
		select {
		case ws := <-wsCh:
			outputs, err := c.readOutputs(hist)
			if err != nil {
				return nil, st.snapshot(), err
			}
			return outputs, st.snapshot(), ws.err
		case <-ctx.Done():
			outputs, err := c.readOutputs(hist)
			return outputs, st.snapshot(), err
		}

	case <-ctx.Done():
		return nil, st.snapshot(), ctx.Err()
	}
}

func (c *Coordinator) listenWS(callerID string, st *stats, wsCh chan<- wsResult) {
	c.events.Subscribe("execution_start", callerID, func(ev engineclient.Event) { st.reset() })
	c.events.Subscribe("executing", callerID, func(ev engineclient.Event) {
		var d struct {
			Node string `json:"node"`
		}
		if json.Unmarshal(ev.Raw, &d) == nil && d.Node != "" {
			st.nodeStart(d.Node, nowUnixMilli())
		}
	})
	c.events.Subscribe("execution_success", callerID, func(ev engineclient.Event) {
		select {
		case wsCh <- wsResult{}:
		default:
		}
	})
	failHandler := func(ev engineclient.Event) {
		select {
		case wsCh <- wsResult{err: models.NewExecutionError("engine reported "+ev.Type, nil)}:
		default:
		}
	}
	c.events.Subscribe("execution_error", callerID, failHandler)
	c.events.Subscribe("execution_interrupted", callerID, failHandler)
	c.events.Subscribe("close", "", func(ev engineclient.Event) {
		select {
		case wsCh <- wsResult{err: models.NewExecutionError("engine websocket connection lost", nil)}:
		default:
		}
	})
}

func (c *Coordinator) unsubscribeWS(callerID string) {
	c.events.Unsubscribe("execution_start", callerID)
	c.events.Unsubscribe("executing", callerID)
	c.events.Unsubscribe("execution_success", callerID)
	c.events.Unsubscribe("execution_error", callerID)
	c.events.Unsubscribe("execution_interrupted", callerID)
	c.events.Unsubscribe("close", "")
}

// pollHistory repeatedly GETs history for engineID, reporting a result
// once status moves out of HistoryPending or maxTries is exhausted
// (maxTries<=0 means unbounded).
func (c *Coordinator) pollHistory(ctx context.Context, engineID string, interval time.Duration, maxTries int, out chan<- histResult) {
	tries := 0
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, outputs, err := c.history.History(ctx, engineID)
		if err != nil {
			select {
			case out <- histResult{err: err}:
			default:
			}
			return
		}
		switch status {
		case engineclient.HistoryCompleted:
			select {
			case out <- histResult{status: status, files: c.resolveFiles(outputs)}:
			default:
			}
			return
		case engineclient.HistoryError:
			select {
			case out <- histResult{err: models.NewExecutionError("engine reported an execution error", nil)}:
			default:
			}
			return
		}

		tries++
		if maxTries > 0 && tries >= maxTries {
			select {
			case out <- histResult{err: fmt.Errorf("completion: history poll exceeded %d tries", maxTries)}:
			default:
			}
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// outputRef models one {filename, subfolder, type} entry the Engine's
// history reports per node.
type outputRef struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// resolveFiles flattens the Engine's { nodeId: { images: [...], ... } }
// outputs map into filename -> absolute path, scanning every array-typed
// field for {filename,...} shaped entries.
func (c *Coordinator) resolveFiles(outputs map[string]any) map[string]string {
	files := make(map[string]string)
	for _, nodeOutput := range outputs {
		fields, ok := nodeOutput.(map[string]any)
		if !ok {
			continue
		}
		for _, v := range fields {
			entries, ok := v.([]any)
			if !ok {
				continue
			}
			for _, e := range entries {
				raw, err := json.Marshal(e)
				if err != nil {
					continue
				}
				var ref outputRef
				if json.Unmarshal(raw, &ref) != nil || ref.Filename == "" {
					continue
				}
				path := filepath.Join(c.outputDir, ref.Subfolder, ref.Filename)
				files[ref.Filename] = path
			}
		}
	}
	return files
}

// readOutputs reads every file in hist.files from disk into memory,
// logging and skipping any missing file (spec §4.5: "nodes legitimately
// emit optional outputs"), then removes the Engine-produced original
// (spec §4.6 step 3: "Original Engine-produced files are deleted from
// disk after read").
func (c *Coordinator) readOutputs(hist histResult) (Outputs, error) {
	out := make(Outputs)
	for filename, path := range hist.files {
		data, err := c.readFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				c.log.Warn("history-referenced output file missing on disk", "filename", filename, "path", path)
				continue
			}
			return nil, fmt.Errorf("completion: reading output %s: %w", filename, err)
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			c.log.Warn("failed to remove engine output file after read", "path", path, "error", err)
		}
		out[filename] = data
	}
	return out, nil
}

func nowUnixMilli() int64 {
	return time.Now().UnixMilli()
}
