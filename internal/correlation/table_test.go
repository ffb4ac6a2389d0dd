package correlation

import (
	"testing"
	"time"
)

func TestBijection(t *testing.T) {
	tbl := New(50 * time.Millisecond)
	tbl.Put("eng-1", "caller-1")

	if got, ok := tbl.CallerID("eng-1"); !ok || got != "caller-1" {
		t.Fatalf("CallerID = %q, %v; want caller-1, true", got, ok)
	}
	if got, ok := tbl.EngineID("caller-1"); !ok || got != "eng-1" {
		t.Fatalf("EngineID = %q, %v; want eng-1, true", got, ok)
	}
}

func TestEvictAfterDelay(t *testing.T) {
	tbl := New(20 * time.Millisecond)
	tbl.Put("eng-2", "caller-2")
	tbl.EvictAfterDelay("eng-2", "caller-2")

	time.Sleep(80 * time.Millisecond)

	if _, ok := tbl.CallerID("eng-2"); ok {
		t.Fatal("expected eng-2 to be evicted")
	}
	if _, ok := tbl.EngineID("caller-2"); ok {
		t.Fatal("expected caller-2 to be evicted")
	}
}

func TestOverwrite(t *testing.T) {
	tbl := New(time.Second)
	tbl.Put("eng-3", "caller-3")
	tbl.Put("eng-3", "caller-3b")

	if got, _ := tbl.CallerID("eng-3"); got != "caller-3b" {
		t.Fatalf("CallerID after overwrite = %q, want caller-3b", got)
	}
}
