package blobstore

import (
	"context"
	"sync"
)

// UploadState is one of the finite states an Upload moves through: always
// starting at InProgress, ending at exactly one of Completed, Failed, or
// Aborted.
type UploadState string

const (
	UploadInProgress UploadState = "in_progress"
	UploadCompleted  UploadState = "completed"
	UploadFailed     UploadState = "failed"
	UploadAborted    UploadState = "aborted"
)

// UploadHandle tracks one upload's lifecycle. Abort is idempotent: calling
// it when the upload is already terminal is a no-op, and calling it twice
// is equivalent to calling it once (spec §8, "Abort idempotence").
type UploadHandle struct {
	URL         string
	ContentType string

	mu     sync.Mutex
	state  UploadState
	err    error
	cancel context.CancelFunc
}

// NewUploadHandle creates a handle in the InProgress state, wired to
// cancel via the given context.CancelFunc when aborted.
func NewUploadHandle(url, contentType string, cancel context.CancelFunc) *UploadHandle {
	return &UploadHandle{URL: url, ContentType: contentType, state: UploadInProgress, cancel: cancel}
}

// State returns the current terminal or in-progress state.
func (u *UploadHandle) State() UploadState {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// Err returns the failure reason once State() == Failed, else nil.
func (u *UploadHandle) Err() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.err
}

// Abort transitions an in-progress upload to Aborted and cancels its
// context. A no-op when the upload is already terminal.
func (u *UploadHandle) Abort() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.state != UploadInProgress {
		return
	}
	u.state = UploadAborted
	if u.cancel != nil {
		u.cancel()
	}
}

// MarkCompleted transitions InProgress -> Completed. A no-op if the
// upload was already aborted or failed (abort/fail race with the
// provider's own completion signal; the first terminal state wins).
func (u *UploadHandle) MarkCompleted() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.state == UploadInProgress {
		u.state = UploadCompleted
	}
}

// MarkFailed transitions InProgress -> Failed, recording err. A no-op if
// the upload was already aborted or completed.
func (u *UploadHandle) MarkFailed(err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.state == UploadInProgress {
		u.state = UploadFailed
		u.err = err
	}
}

// Tracker supersedes an in-flight upload to the same URL when a new one
// is requested, aborting the prior one first (spec §5, "Cancellation").
type Tracker struct {
	mu     sync.Mutex
	active map[string]*UploadHandle
}

// NewTracker creates an empty upload tracker.
func NewTracker() *Tracker {
	return &Tracker{active: make(map[string]*UploadHandle)}
}

// Start registers h as the active upload for its URL, aborting and
// replacing any prior active upload to the same URL.
func (t *Tracker) Start(h *UploadHandle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if prior, ok := t.active[h.URL]; ok {
		prior.Abort()
	}
	t.active[h.URL] = h
}

// Finish removes h from the active set if it is still the tracked upload
// for its URL (a superseded upload has already been replaced and should
// not clear the newer one's entry).
func (t *Tracker) Finish(h *UploadHandle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active[h.URL] == h {
		delete(t.active, h.URL)
	}
}

// Active returns the currently tracked upload for a URL, if any.
func (t *Tracker) Active(url string) (*UploadHandle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.active[url]
	return h, ok
}
