package model

import "time"

// PriceRecord is the durable row for one normalized item name.
// Price is nil when the row exists without a usable price.
type PriceRecord struct {
	Name      string
	Price     *float64
	UpdatedAt time.Time
}
