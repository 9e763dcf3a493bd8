package prices

import (
	"context"
	"errors"
	"sort"
	"time"

	"skinprice/internal/logger"
	"skinprice/internal/model"
	"skinprice/internal/observability"
)

// PriceStore is the durable keyed record store.
type PriceStore interface {
	FindByKey(ctx context.Context, name string) (*model.PriceRecord, error)
	FindByKeys(ctx context.Context, names []string) (map[string]model.PriceRecord, error)
	BatchUpsert(ctx context.Context, recs []model.PriceRecord) []model.UpsertResult
}

// Persister diffs snapshots against the store and writes what changed.
type Persister struct {
	Store     PriceStore
	Threshold float64
	Now       func() time.Time
	Log       *logger.Entry
}

func NewPersister(store PriceStore, threshold float64) *Persister {
	return &Persister{
		Store:     store,
		Threshold: threshold,
		Now:       time.Now,
		Log:       logger.GetLogger().WithComponent("persister"),
	}
}

// Reconcile writes the part of snap that differs from the store and returns
// the number of records written. When the store cannot be read every entry
// counts as changed.
func (p *Persister) Reconcile(ctx context.Context, snap *Snapshot, log *logger.Entry) (int, error) {
	if log == nil {
		log = p.Log
	}
	persisted, err := p.Store.FindByKeys(ctx, snap.Names())
	if err != nil {
		log.WithError(err).Warn("could not read stored prices, treating all as changed")
		persisted = nil
	}

	changes := ComputeChanges(snap, persisted, p.Threshold)
	if len(changes) == 0 {
		return 0, nil
	}
	return p.Apply(ctx, changes, log)
}

// Apply upserts every change with a fresh timestamp. Individual failures are
// logged and retried naturally on the next tick; a PersistError is returned
// only when nothing could be written. Neither case blocks publishing.
func (p *Persister) Apply(ctx context.Context, changes ChangeSet, log *logger.Entry) (int, error) {
	if log == nil {
		log = p.Log
	}
	if len(changes) == 0 {
		return 0, nil
	}

	now := p.Now()
	names := make([]string, 0, len(changes))
	for name := range changes {
		names = append(names, name)
	}
	sort.Strings(names)

	recs := make([]model.PriceRecord, 0, len(names))
	for _, name := range names {
		price := changes[name]
		recs = append(recs, model.PriceRecord{Name: name, Price: &price, UpdatedAt: now})
	}

	results := p.Store.BatchUpsert(ctx, recs)
	written := 0
	var errs []error
	for _, res := range results {
		if res.Err != nil {
			errs = append(errs, res.Err)
			log.WithError(res.Err).WithField("name", res.Name).Debug("price upsert failed")
			continue
		}
		written++
	}
	observability.RecordsWrittenTotal.WithLabelValues("ok").Add(float64(written))
	observability.RecordsWrittenTotal.WithLabelValues("failed").Add(float64(len(errs)))

	if len(errs) > 0 {
		if written == 0 {
			return 0, &PersistError{Failed: len(errs), Err: errors.Join(errs[:min(len(errs), 3)]...)}
		}
		log.WithFields(logger.Fields{"failed": len(errs), "written": written}).
			WithError(errs[0]).Warn("some price upserts failed")
	}
	return written, nil
}
