// Package downloadcache implements the content-addressed-by-URL disk
// cache described in spec §4.2: at most one network fetch per URL is ever
// in flight across the process, and every caller asking for that URL is
// satisfied by linking from a single canonical copy into their own
// destination directory.
package downloadcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Fetcher dispatches a provider download for a URL, writing the fetched
// bytes to dst. It is supplied by the caller (internal/blobstore.Registry
// in production) so this package stays independent of the provider
// registry.
type Fetcher func(ctx context.Context, url string, dst io.Writer) error

// Cache is the download cache. dir is the root under which canonical
// copies and their in-progress temp files live.
type Cache struct {
	dir string

	mu      sync.Mutex
	entries map[string]string // url -> canonical path
	inflight map[string]*pending
}

type pending struct {
	done chan struct{}
	path string
	err  error
}

// New creates a Cache rooted at dir, creating it if necessary.
func New(dir string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Join(dir, "objects"), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}
	return &Cache{
		dir:      dir,
		entries:  make(map[string]string),
		inflight: make(map[string]*pending),
	}, nil
}

// canonicalPath returns the stable on-disk path for a URL, independent of
// any caller-supplied filename.
func (c *Cache) canonicalPath(url string) string {
	sum := sha256.Sum256([]byte(url))
	return filepath.Join(c.dir, "objects", hex.EncodeToString(sum[:]))
}

// Get returns destDir/filename (or destDir/<basename of canonical file> if
// filename is empty) populated with the bytes for url, fetching at most
// once process-wide. fetch is invoked only by the single caller that wins
// the race to populate the cache; all others wait on it and then link.
func (c *Cache) Get(ctx context.Context, url, destDir, filename string, fetch Fetcher) (string, error) {
	canonical := c.canonicalPath(url)

	c.mu.Lock()
	if _, ok := c.entries[url]; ok {
		c.mu.Unlock()
		return c.link(canonical, destDir, filename)
	}
	if p, ok := c.inflight[url]; ok {
		c.mu.Unlock()
		select {
		case <-p.done:
		case <-ctx.Done():
			return "", ctx.Err()
		}
		if p.err != nil {
			return "", p.err
		}
		return c.link(p.path, destDir, filename)
	}

	p := &pending{done: make(chan struct{})}
	c.inflight[url] = p
	c.mu.Unlock()

	start := time.Now()
	n, err := c.populate(ctx, url, canonical, fetch)

	c.mu.Lock()
	delete(c.inflight, url)
	if err != nil {
		p.err = err
	} else {
		p.path = canonical
		c.entries[url] = canonical
	}
	c.mu.Unlock()
	close(p.done)

	if err != nil {
		slog.Error("download failed", "url", url, "error", err)
		return "", err
	}
	slog.Info("downloaded", "url", url, "bytes", n, "duration", time.Since(start))

	return c.link(canonical, destDir, filename)
}

// populate dispatches fetch into a randomly-named temp file under the
// cache dir, then renames it into place atomically. A failed fetch never
// leaves a partial file at the canonical path.
func (c *Cache) populate(ctx context.Context, url, canonical string, fetch Fetcher) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(canonical), ".download-*")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	counter := &countingWriter{w: tmp}
	fetchErr := fetch(ctx, url, counter)
	closeErr := tmp.Close()

	if fetchErr != nil || closeErr != nil {
		os.Remove(tmpName)
		if fetchErr != nil {
			return 0, fetchErr
		}
		return 0, closeErr
	}

	if err := os.Rename(tmpName, canonical); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("renaming into cache: %w", err)
	}
	return counter.n, nil
}

// link exposes the canonical file at destDir/filename via hardlink,
// falling back to a symlink on EXDEV (cross-device) and to a plain copy
// if neither linking mechanism is available. An existing destination is
// replaced for idempotence.
func (c *Cache) link(canonical, destDir, filename string) (string, error) {
	if filename == "" {
		filename = filepath.Base(canonical)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("creating destination dir: %w", err)
	}
	dest := filepath.Join(destDir, filename)

	os.Remove(dest) // idempotent overwrite

	if err := os.Link(canonical, dest); err == nil {
		return dest, nil
	}
	// Hardlink failed — cross-device (EXDEV) is the expected case when the
	// cache dir and destination dir sit on different filesystems/container
	// mounts, but any other failure (overlayfs quirks, tmpfs variants) also
	// falls through to a symlink attempt rather than failing outright.
	if err := os.Symlink(canonical, dest); err == nil {
		return dest, nil
	}

	// Last resort: copy the bytes. Keeps Get() usable even on filesystems
	// that support neither hardlinks nor symlinks (e.g. some network
	// mounts mapped read-only into a destination container).
	if err := copyFile(canonical, dest); err != nil {
		return "", fmt.Errorf("linking into destination: %w", err)
	}
	return dest, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

// DiskUsageBytes walks the cache directory and sums canonical object
// sizes. Deliberately not called on any hot path — see DESIGN.md Open
// Question 1 for why no eviction policy runs against this number.
func (c *Cache) DiskUsageBytes() (int64, error) {
	var total int64
	err := filepath.WalkDir(filepath.Join(c.dir, "objects"), func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}

// countingWriter tracks bytes written through it.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
