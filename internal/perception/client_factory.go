package perception

import (
	"context"
	"fmt"
	"sort"

	"github.com/Qnatz/Qrews-sub000/internal/config"
)

// NewClientFromConfig creates the client for one backend identity.
func NewClientFromConfig(ctx context.Context, cfg *config.Config, id string) (Client, error) {
	b, ok := cfg.Backend(id)
	if !ok {
		return nil, fmt.Errorf("unknown backend identity: %s", id)
	}

	switch b.Provider {
	case config.ProviderHosted:
		return NewGeminiClient(ctx, GeminiConfig{
			Backend:     id,
			APIKey:      cfg.APIKey,
			Model:       b.Model,
			BaseURL:     b.BaseURL,
			Timeout:     cfg.GetCallTimeout(),
			MinInterval: cfg.GetMinInterval(),
			Safety:      cfg.Safety,
		}), nil

	case config.ProviderLocal:
		return NewLocalClient(id, b.BaseURL, b.Model, cfg.GetCallTimeout(), cfg.GetMinInterval()), nil

	default:
		return nil, fmt.Errorf("unknown provider: %s", b.Provider)
	}
}

// NewClients creates one client per configured backend identity.
func NewClients(ctx context.Context, cfg *config.Config) (map[string]Client, error) {
	ids := make([]string, 0, len(cfg.Backends))
	for id := range cfg.Backends {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	clients := make(map[string]Client, len(ids))
	for _, id := range ids {
		c, err := NewClientFromConfig(ctx, cfg, id)
		if err != nil {
			return nil, fmt.Errorf("backend %s: %w", id, err)
		}
		clients[id] = c
	}
	return clients, nil
}
