package prices

import (
	"context"
	"errors"
	"sync"
	"time"

	"skinprice/internal/model"
)

type fakeStore struct {
	mu       sync.Mutex
	records  map[string]model.PriceRecord
	readErr  error
	failFor  map[string]bool
	failAll  bool
	upserted [][]model.PriceRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[string]model.PriceRecord{}, failFor: map[string]bool{}}
}

func (s *fakeStore) put(name string, price float64) {
	s.records[name] = model.PriceRecord{Name: name, Price: &price, UpdatedAt: time.Unix(0, 0)}
}

func (s *fakeStore) FindByKey(_ context.Context, name string) (*model.PriceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	rec, ok := s.records[name]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *fakeStore) FindByKeys(_ context.Context, names []string) (map[string]model.PriceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	out := map[string]model.PriceRecord{}
	for _, n := range names {
		if rec, ok := s.records[n]; ok {
			out[n] = rec
		}
	}
	return out, nil
}

func (s *fakeStore) BatchUpsert(_ context.Context, recs []model.PriceRecord) []model.UpsertResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserted = append(s.upserted, recs)
	results := make([]model.UpsertResult, 0, len(recs))
	for _, rec := range recs {
		if s.failAll || s.failFor[rec.Name] {
			results = append(results, model.UpsertResult{Name: rec.Name, Err: errors.New("connection refused")})
			continue
		}
		s.records[rec.Name] = rec
		results = append(results, model.UpsertResult{Name: rec.Name})
	}
	return results
}

// scriptedSource returns its payloads in order, repeating the last one.
type scriptedSource struct {
	mu       sync.Mutex
	calls    int
	payloads []RawPayload
	errs     []error
}

func (s *scriptedSource) Fetch(ctx context.Context) (RawPayload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i >= len(s.payloads) {
		i = len(s.payloads) - 1
	}
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return s.payloads[i], err
}

func (s *scriptedSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeMirror struct {
	mu        sync.Mutex
	prices    map[string]float64
	publishes int
	err       error
}

func (m *fakeMirror) Publish(_ context.Context, prices map[string]float64, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishes++
	if m.err != nil {
		return m.err
	}
	m.prices = prices
	return nil
}

func (m *fakeMirror) Price(_ context.Context, name string) (float64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, false, m.err
	}
	p, ok := m.prices[name]
	return p, ok, nil
}

// clock is a manually advanced time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
