package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/greamown/stockCheck/internal/domain"
)

// Watchlist maps each market to its ordered symbol list with optional
// per-symbol metadata (financial-statement identifiers, search queries).
type Watchlist struct {
	Markets map[domain.Market][]domain.SymbolMeta `yaml:"markets"`
}

// LoadWatchlist reads and validates the watchlist YAML file.
func LoadWatchlist(path string) (*Watchlist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read watchlist: %w", err)
	}

	var wl Watchlist
	if err := yaml.Unmarshal(data, &wl); err != nil {
		return nil, fmt.Errorf("failed to parse watchlist: %w", err)
	}

	for market, symbols := range wl.Markets {
		if !market.Valid() {
			return nil, fmt.Errorf("unknown market %q in watchlist", market)
		}
		for _, meta := range symbols {
			if meta.Symbol == "" {
				return nil, fmt.Errorf("watchlist entry without symbol in market %q", market)
			}
		}
	}
	return &wl, nil
}

// Symbols returns the watchlist entries for one market, preserving file
// order.
func (w *Watchlist) Symbols(market domain.Market) []domain.SymbolMeta {
	return w.Markets[market]
}
