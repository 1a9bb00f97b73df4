package geo

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/example/ride-hailing/internal/models"
)

// Index is the proximity store consulted by dispatch and fed by the
// location pipeline. Entries expire after a staleness bound so a captain
// whose connection died uncleanly stops being offered rides.
type Index interface {
	Upsert(ctx context.Context, captainID string, c models.Coord) error
	Nearby(ctx context.Context, center models.Coord, radiusMiles float64) ([]models.Candidate, error)
	Remove(ctx context.Context, captainID string) error
}

const metersPerMile = 1609.34

type memoryEntry struct {
	coord models.Coord
	seen  time.Time
}

// MemoryIndex is the in-process fallback used when Redis is not configured,
// and by tests. Same staleness contract as the Redis index.
type MemoryIndex struct {
	mu        sync.RWMutex
	staleness time.Duration
	captains  map[string]memoryEntry
	now       func() time.Time
}

func NewMemoryIndex(staleness time.Duration) *MemoryIndex {
	return &MemoryIndex{
		staleness: staleness,
		captains:  make(map[string]memoryEntry),
		now:       time.Now,
	}
}

func (m *MemoryIndex) Upsert(_ context.Context, captainID string, c models.Coord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.captains[captainID] = memoryEntry{coord: c, seen: m.now()}
	return nil
}

func (m *MemoryIndex) Nearby(_ context.Context, center models.Coord, radiusMiles float64) ([]models.Candidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cutoff := m.now().Add(-m.staleness)
	var out []models.Candidate
	for id, e := range m.captains {
		if e.seen.Before(cutoff) {
			continue
		}
		if Haversine(center.Lat, center.Lng, e.coord.Lat, e.coord.Lng) > radiusMiles*metersPerMile {
			continue
		}
		out = append(out, models.Candidate{CaptainID: id, Coord: e.coord})
	}
	return out, nil
}

func (m *MemoryIndex) Remove(_ context.Context, captainID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.captains, captainID)
	return nil
}

// Haversine distance in meters
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
