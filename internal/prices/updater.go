package prices

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"skinprice/internal/logger"
	"skinprice/internal/observability"
)

// State is where the scheduler is in its cycle.
type State int32

const (
	Idle State = iota
	Fetching
	Published
	Skipped
	Aborted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case Published:
		return "published"
	case Skipped:
		return "skipped"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Source produces one raw price payload per call.
type Source interface {
	Fetch(ctx context.Context) (RawPayload, error)
}

// Mirror shares published snapshots with other processes.
type Mirror interface {
	Publish(ctx context.Context, prices map[string]float64, loadedAt time.Time) error
	Price(ctx context.Context, name string) (float64, bool, error)
}

// TickResult summarises one scheduler tick.
type TickResult struct {
	Outcome   State
	CycleID   string
	Items     int
	Written   int
	UsedRelay bool
	Err       error
	// PersistErr is set when the store rejected every changed record. The
	// snapshot is still published.
	PersistErr error
}

type UpdaterOptions struct {
	Source    Source
	Cache     *Cache
	Persister *Persister // nil disables diffing and persistence
	Mirror    Mirror     // nil disables mirroring
	Interval  time.Duration
	TTL       time.Duration
	Now       func() time.Time
	Log       *logger.Entry
}

// Updater is the single background worker that refreshes the cache.
type Updater struct {
	source    Source
	cache     *Cache
	persister *Persister
	mirror    Mirror
	interval  time.Duration
	ttl       time.Duration
	now       func() time.Time
	log       *logger.Entry
	state     atomic.Int32
}

func NewUpdater(opts UpdaterOptions) *Updater {
	u := &Updater{
		source:    opts.Source,
		cache:     opts.Cache,
		persister: opts.Persister,
		mirror:    opts.Mirror,
		interval:  opts.Interval,
		ttl:       opts.TTL,
		now:       opts.Now,
		log:       opts.Log,
	}
	if u.cache == nil {
		u.cache = NewCache()
	}
	if u.interval <= 0 {
		u.interval = 5 * time.Minute
	}
	if u.now == nil {
		u.now = time.Now
	}
	if u.log == nil {
		u.log = logger.GetLogger().WithComponent("updater")
	}
	return u
}

func (u *Updater) Cache() *Cache { return u.cache }

func (u *Updater) State() State { return State(u.state.Load()) }

// Run ticks until ctx is cancelled, sleeping Interval between ticks.
func (u *Updater) Run(ctx context.Context) {
	u.log.WithFields(logger.Fields{
		"interval_ms": u.interval.Milliseconds(),
		"ttl_ms":      u.ttl.Milliseconds(),
	}).Info("starting price updater")
	defer u.log.Info("price updater stopped")

	for ctx.Err() == nil {
		u.Tick(ctx)
		u.state.Store(int32(Idle))
		if !sleep(ctx, u.interval) {
			return
		}
	}
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Tick runs one cycle. It never returns an error: failures end the tick as
// Aborted and the cache keeps its previous snapshot.
func (u *Updater) Tick(ctx context.Context) TickResult {
	now := u.now()
	if u.cache.Fresh(now, u.ttl) {
		u.state.Store(int32(Skipped))
		observability.TicksTotal.WithLabelValues(Skipped.String()).Inc()
		return TickResult{Outcome: Skipped}
	}

	res := TickResult{CycleID: uuid.NewString()}
	log := u.log.WithField("cycle_id", res.CycleID)
	u.state.Store(int32(Fetching))

	err := u.sync(ctx, now, log, &res)
	if err != nil {
		res.Outcome = Aborted
		res.Err = err
		observability.AbortsTotal.WithLabelValues(stage(err)).Inc()
		log.WithError(err).WithField("stage", stage(err)).Warn("price sync aborted, keeping previous snapshot")
	} else {
		res.Outcome = Published
	}
	u.state.Store(int32(res.Outcome))
	observability.TicksTotal.WithLabelValues(res.Outcome.String()).Inc()
	return res
}

func (u *Updater) sync(ctx context.Context, now time.Time, log *logger.Entry, res *TickResult) error {
	payload, err := u.source.Fetch(ctx)
	if err != nil {
		return err
	}
	res.UsedRelay = payload.UsedRelay

	text, err := Decode(payload)
	if err != nil {
		return err
	}

	cands, report, err := Parse(text)
	if err != nil {
		return err
	}
	if len(report.Skipped) > 0 {
		fields := logger.Fields{"elements": report.Elements, "accepted": report.Accepted}
		for reason, n := range report.Skipped {
			fields["skipped_"+reason] = n
			observability.SkippedElementsTotal.WithLabelValues(reason).Add(float64(n))
		}
		log.WithFields(fields).Debug("dropped elements without name or price")
	}

	snap := BuildSnapshot(cands, now)
	if snap.Len() == 0 {
		return errEmptySnapshot
	}
	res.Items = snap.Len()

	if u.persister != nil {
		written, err := u.persister.Reconcile(ctx, snap, log)
		if err != nil {
			res.PersistErr = err
			log.WithError(err).Error("could not persist prices, publishing snapshot anyway")
		}
		res.Written = written
	}

	u.cache.Publish(snap, now)
	observability.SnapshotSize.Set(float64(snap.Len()))
	observability.LastPublishSeconds.Set(float64(now.Unix()))

	via := "direct"
	if payload.UsedRelay {
		via = "relay"
	}
	log.WithFields(logger.Fields{"items": snap.Len(), "written": res.Written, "via": via}).Info("loaded prices")

	if u.mirror != nil {
		if err := u.mirror.Publish(ctx, snap.Prices(), now); err != nil {
			log.WithError(err).Warn("could not mirror snapshot")
		}
	}
	return nil
}
