package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestDeduper(t *testing.T) (*Deduper, *miniredis.Miniredis) {
	t.Helper()

	srv := miniredis.RunT(t)
	d, err := New("redis://"+srv.Addr(), time.Minute)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d, srv
}

func TestFirstSeenMarksDuplicates(t *testing.T) {
	d, _ := newTestDeduper(t)
	ctx := context.Background()

	if !d.FirstSeen(ctx, "call_abc") {
		t.Fatal("first delivery should be first seen")
	}
	if d.FirstSeen(ctx, "call_abc") {
		t.Fatal("second delivery should be deduplicated")
	}
	if !d.FirstSeen(ctx, "call_def") {
		t.Fatal("different key should be first seen")
	}
}

func TestForgetAllowsReprocessing(t *testing.T) {
	d, _ := newTestDeduper(t)
	ctx := context.Background()

	if !d.FirstSeen(ctx, "call_abc") {
		t.Fatal("first delivery should be first seen")
	}
	d.Forget(ctx, "call_abc")
	if !d.FirstSeen(ctx, "call_abc") {
		t.Fatal("forgotten key should be first seen again")
	}
}

func TestMarkerExpires(t *testing.T) {
	d, srv := newTestDeduper(t)
	ctx := context.Background()

	if !d.FirstSeen(ctx, "call_abc") {
		t.Fatal("first delivery should be first seen")
	}
	srv.FastForward(2 * time.Minute)
	if !d.FirstSeen(ctx, "call_abc") {
		t.Fatal("expired marker should be first seen again")
	}
}

func TestNilDeduperIsNoop(t *testing.T) {
	var d *Deduper
	if !d.FirstSeen(context.Background(), "anything") {
		t.Fatal("nil deduper must report first seen")
	}
	d.Forget(context.Background(), "anything")
	if err := d.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
}
