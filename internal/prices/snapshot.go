package prices

import (
	"sort"
	"time"
)

// Snapshot is an immutable name to price mapping. It is fully built before
// anyone else can see it and never modified afterwards.
type Snapshot struct {
	prices    map[string]float64
	fetchedAt time.Time
}

// NewSnapshot copies entries whose price is positive.
func NewSnapshot(entries map[string]float64, fetchedAt time.Time) *Snapshot {
	m := make(map[string]float64, len(entries))
	for name, price := range entries {
		if price > 0 {
			m[name] = price
		}
	}
	return &Snapshot{prices: m, fetchedAt: fetchedAt}
}

// BuildSnapshot normalizes candidate names. Later duplicates win.
func BuildSnapshot(cands []Candidate, fetchedAt time.Time) *Snapshot {
	m := make(map[string]float64, len(cands))
	for _, c := range cands {
		m[Normalize(c.Name)] = c.Price
	}
	return NewSnapshot(m, fetchedAt)
}

func (s *Snapshot) Price(name string) (float64, bool) {
	if s == nil {
		return 0, false
	}
	p, ok := s.prices[name]
	return p, ok
}

func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.prices)
}

func (s *Snapshot) FetchedAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.fetchedAt
}

// Names returns the keys in sorted order.
func (s *Snapshot) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.prices))
	for n := range s.prices {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Prices returns a copy of the mapping.
func (s *Snapshot) Prices() map[string]float64 {
	out := make(map[string]float64, s.Len())
	if s == nil {
		return out
	}
	for n, p := range s.prices {
		out[n] = p
	}
	return out
}
