package prices

import (
	"context"
	"strings"

	"skinprice/internal/logger"
)

// Service answers price lookups. It owns the cache and the clients behind it
// and is built once at startup.
type Service struct {
	Cache  *Cache
	Store  PriceStore // optional
	Mirror Mirror     // optional
	Log    *logger.Entry
}

func NewService(cache *Cache, store PriceStore, mirror Mirror) *Service {
	return &Service{
		Cache:  cache,
		Store:  store,
		Mirror: mirror,
		Log:    logger.GetLogger().WithComponent("lookup"),
	}
}

// PriceFor resolves a normalized or display name against the cache, then the
// mirror, then the store. Each source is tried with the name as given, its
// normalized form and the form without star markers.
func (s *Service) PriceFor(ctx context.Context, name string) (float64, bool) {
	keys := LookupKeys(name)
	if len(keys) == 0 {
		return 0, false
	}

	if s.Cache != nil {
		for _, k := range keys {
			if p, ok := s.Cache.Price(k); ok {
				return p, true
			}
		}
	}

	if s.Mirror != nil {
		for _, k := range keys {
			p, ok, err := s.Mirror.Price(ctx, k)
			if err != nil {
				s.Log.WithError(err).Debug("mirror lookup failed")
				break
			}
			if ok && p > 0 {
				return p, true
			}
		}
	}

	if s.Store != nil {
		for _, k := range keys {
			rec, err := s.Store.FindByKey(ctx, k)
			if err != nil {
				s.Log.WithError(err).Debug("store lookup failed")
				break
			}
			if rec != nil && rec.Price != nil && *rec.Price > 0 {
				return *rec.Price, true
			}
		}
	}
	return 0, false
}

// LookupKeys lists the distinct keys tried for name, most specific first.
func LookupKeys(name string) []string {
	var keys []string
	seen := map[string]bool{}
	for _, k := range []string{strings.TrimSpace(name), Normalize(name), Relaxed(Normalize(name))} {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	return keys
}
