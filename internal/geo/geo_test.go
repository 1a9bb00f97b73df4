package geo

import (
	"context"
	"testing"
	"time"

	"github.com/example/ride-hailing/internal/models"
)

func TestHaversineZero(t *testing.T) {
	d := Haversine(0, 0, 0, 0)
	if d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestMemoryIndexRadius(t *testing.T) {
	idx := NewMemoryIndex(5 * time.Minute)
	ctx := context.Background()

	// near: ~0.7 miles north of origin; far: ~69 miles
	_ = idx.Upsert(ctx, "near", models.Coord{Lat: 0.01, Lng: 0})
	_ = idx.Upsert(ctx, "far", models.Coord{Lat: 1, Lng: 0})

	got, err := idx.Nearby(ctx, models.Coord{}, 3)
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	if len(got) != 1 || got[0].CaptainID != "near" {
		t.Fatalf("expected only near captain, got %+v", got)
	}
}

func TestMemoryIndexStalenessExcluded(t *testing.T) {
	idx := NewMemoryIndex(5 * time.Minute)
	ctx := context.Background()

	now := time.Now()
	idx.now = func() time.Time { return now }
	_ = idx.Upsert(ctx, "c1", models.Coord{Lat: 0.001, Lng: 0})

	// advance past the staleness bound without removing the entry
	idx.now = func() time.Time { return now.Add(5*time.Minute + time.Second) }
	got, err := idx.Nearby(ctx, models.Coord{}, 3)
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("stale entry should be excluded, got %+v", got)
	}

	// a fresh upsert makes it visible again
	_ = idx.Upsert(ctx, "c1", models.Coord{Lat: 0.001, Lng: 0})
	got, _ = idx.Nearby(ctx, models.Coord{}, 3)
	if len(got) != 1 {
		t.Fatalf("refreshed entry should be visible, got %+v", got)
	}
}

func TestMemoryIndexRemove(t *testing.T) {
	idx := NewMemoryIndex(5 * time.Minute)
	ctx := context.Background()
	_ = idx.Upsert(ctx, "c1", models.Coord{Lat: 0.001, Lng: 0})
	_ = idx.Remove(ctx, "c1")
	got, _ := idx.Nearby(ctx, models.Coord{}, 3)
	if len(got) != 0 {
		t.Fatalf("removed entry still returned: %+v", got)
	}
}
