package usage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Qnatz/Qrews-sub000/internal/logging"
	"github.com/Qnatz/Qrews-sub000/internal/types"
)

// Tracker accumulates token usage for one pipeline run.
// Safe for concurrent use by parallel specialists.
type Tracker struct {
	mu   sync.Mutex
	data UsageData
	now  func() time.Time
}

// NewTracker creates an empty tracker for the given run.
func NewTracker(runID string) *Tracker {
	return &Tracker{
		data: UsageData{
			Version: "1.0",
			RunID:   runID,
			Aggregate: AggregatedStats{
				ByBackend:    make(map[string]TokenCounts),
				ByModel:      make(map[string]TokenCounts),
				BySpecialist: make(map[string]TokenCounts),
			},
		},
		now: time.Now,
	}
}

// Record adds one successful generation.
func (t *Tracker) Record(specialist string, gen types.Generation) {
	t.mu.Lock()
	defer t.mu.Unlock()

	in, out := gen.Usage.InputTokens, gen.Usage.OutputTokens
	t.data.Events = append(t.data.Events, UsageEvent{
		Timestamp:    t.now(),
		Backend:      gen.Backend,
		Model:        gen.Model,
		Specialist:   specialist,
		InputTokens:  in,
		OutputTokens: out,
		FellBack:     gen.FellBack,
	})

	agg := &t.data.Aggregate
	agg.TotalRun.Add(in, out)
	agg.Calls++
	if gen.FellBack {
		agg.Fallbacks++
	}
	addToMap(agg.ByBackend, gen.Backend, in, out)
	addToMap(agg.ByModel, gen.Model, in, out)
	addToMap(agg.BySpecialist, specialist, in, out)

	logging.Get(logging.CategoryUsage).Debug("%s on %s/%s: in=%d out=%d", specialist, gen.Backend, gen.Model, in, out)
}

// Stats returns a copy of the aggregated stats.
func (t *Tracker) Stats() AggregatedStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	stats := t.data.Aggregate
	stats.ByBackend = copyTokenCountsMap(stats.ByBackend)
	stats.ByModel = copyTokenCountsMap(stats.ByModel)
	stats.BySpecialist = copyTokenCountsMap(stats.BySpecialist)
	return stats
}

// Snapshot returns a copy of the full usage data.
func (t *Tracker) Snapshot() UsageData {
	stats := t.Stats()
	t.mu.Lock()
	defer t.mu.Unlock()
	data := t.data
	data.Events = append([]UsageEvent(nil), t.data.Events...)
	data.Aggregate = stats
	return data
}

// Save writes the usage data to path as indented JSON.
func (t *Tracker) Save(path string) error {
	data, err := json.MarshalIndent(t.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal usage: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create usage dir: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func copyTokenCountsMap(src map[string]TokenCounts) map[string]TokenCounts {
	if src == nil {
		return nil
	}
	dst := make(map[string]TokenCounts, len(src))
	for key, counts := range src {
		dst[key] = counts
	}
	return dst
}

func addToMap(m map[string]TokenCounts, key string, input, output int) {
	entry := m[key]
	entry.Add(input, output)
	m[key] = entry
}
