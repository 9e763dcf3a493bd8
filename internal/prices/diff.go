package prices

import (
	"math"

	"skinprice/internal/model"
)

// DefaultChangeThreshold absorbs float noise while catching real market moves.
const DefaultChangeThreshold = 0.01

// ChangeSet maps normalized names to prices that must be written.
type ChangeSet map[string]float64

// ComputeChanges returns the snapshot entries that are new, whose stored row
// has no price, or whose price moved by at least threshold.
func ComputeChanges(snap *Snapshot, persisted map[string]model.PriceRecord, threshold float64) ChangeSet {
	changes := ChangeSet{}
	if snap == nil {
		return changes
	}
	for name, price := range snap.prices {
		rec, ok := persisted[name]
		if !ok || rec.Price == nil || math.Abs(*rec.Price-price) >= threshold {
			changes[name] = price
		}
	}
	return changes
}
