package usage

import "time"

// UsageData is the persisted form of one run's token usage.
type UsageData struct {
	Version   string          `json:"version"`
	RunID     string          `json:"run_id,omitempty"`
	Events    []UsageEvent    `json:"events,omitempty"`
	Aggregate AggregatedStats `json:"aggregate"`
}

// UsageEvent represents a single backend call.
type UsageEvent struct {
	Timestamp    time.Time `json:"timestamp"`
	Backend      string    `json:"backend"`
	Model        string    `json:"model"`
	Specialist   string    `json:"specialist"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	FellBack     bool      `json:"fell_back,omitempty"`
}

// AggregatedStats holds counters broken down by various dimensions.
type AggregatedStats struct {
	TotalRun     TokenCounts            `json:"total_run"`
	Calls        int                    `json:"calls"`
	Fallbacks    int                    `json:"fallbacks"`
	ByBackend    map[string]TokenCounts `json:"by_backend"`
	ByModel      map[string]TokenCounts `json:"by_model"`
	BySpecialist map[string]TokenCounts `json:"by_specialist"`
}

// TokenCounts holds input/output sums.
type TokenCounts struct {
	Input  int64 `json:"input"`
	Output int64 `json:"output"`
	Total  int64 `json:"total"`
}

func (tc *TokenCounts) Add(input, output int) {
	tc.Input += int64(input)
	tc.Output += int64(output)
	tc.Total += int64(input + output)
}
