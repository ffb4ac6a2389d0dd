package downloadcache

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
)

func TestGetDedupesConcurrentFetches(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var fetchCount int32
	fetch := func(ctx context.Context, url string, dst io.Writer) error {
		atomic.AddInt32(&fetchCount, 1)
		_, err := dst.Write([]byte("model-bytes"))
		return err
	}

	const n = 10
	var wg sync.WaitGroup
	paths := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			destDir := filepath.Join(dir, fmt.Sprintf("dest-%d", i))
			paths[i], errs[i] = c.Get(context.Background(), "https://example.com/model.safetensors", destDir, "model.safetensors", fetch)
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt32(&fetchCount); got != 1 {
		t.Fatalf("fetch called %d times, want exactly 1", got)
	}

	for i, err := range errs {
		if err != nil {
			t.Fatalf("Get[%d] error: %v", i, err)
		}
		data, err := os.ReadFile(paths[i])
		if err != nil {
			t.Fatalf("reading linked file %d: %v", i, err)
		}
		if string(data) != "model-bytes" {
			t.Fatalf("linked file %d content = %q, want model-bytes", i, data)
		}
	}
}

func TestGetFailedFetchDoesNotPopulateCache(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	boom := fmt.Errorf("boom")
	failingFetch := func(ctx context.Context, url string, dst io.Writer) error { return boom }

	_, err = c.Get(context.Background(), "https://example.com/bad.bin", filepath.Join(dir, "dest"), "bad.bin", failingFetch)
	if err == nil {
		t.Fatal("expected error from failing fetch")
	}

	var calls int32
	okFetch := func(ctx context.Context, url string, dst io.Writer) error {
		atomic.AddInt32(&calls, 1)
		_, err := dst.Write([]byte("ok"))
		return err
	}
	path, err := c.Get(context.Background(), "https://example.com/bad.bin", filepath.Join(dir, "dest2"), "bad.bin", okFetch)
	if err != nil {
		t.Fatalf("retry Get: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected retry to actually fetch, got %d calls", calls)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "ok" {
		t.Fatalf("content = %q, want ok", data)
	}
}

func TestGetDefaultFilename(t *testing.T) {
	dir := t.TempDir()
	c, _ := New(dir)
	fetch := func(ctx context.Context, url string, dst io.Writer) error {
		_, err := dst.Write([]byte("x"))
		return err
	}
	path, err := c.Get(context.Background(), "https://example.com/thing", filepath.Join(dir, "dest"), "", fetch)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if filepath.Base(path) == "" {
		t.Fatal("expected a non-empty basename when filename is omitted")
	}
}
