package provider

import (
	"context"
	"sync"

	"holdings-tracker/internal/models"
)

// StaticFundamentals serves P/E and EPS from a fixed table keyed by symbol.
// Symbols missing from the table get empty fundamentals.
type StaticFundamentals struct {
	mu    sync.RWMutex
	table map[string]Fundamentals
}

// NewStaticFundamentals creates a table-backed fundamentals source.
func NewStaticFundamentals(table map[string]Fundamentals) *StaticFundamentals {
	t := make(map[string]Fundamentals, len(table))
	for symbol, f := range table {
		t[NormalizeSymbol(symbol)] = f
	}
	return &StaticFundamentals{table: t}
}

// Name returns the source name.
func (s *StaticFundamentals) Name() string { return "static" }

// Set replaces the row for symbol.
func (s *StaticFundamentals) Set(symbol string, f Fundamentals) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table[NormalizeSymbol(symbol)] = f
}

// Fundamentals returns the table row for symbol.
func (s *StaticFundamentals) Fundamentals(_ context.Context, symbol string, _ models.Exchange) (Fundamentals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table[NormalizeSymbol(symbol)], nil
}
