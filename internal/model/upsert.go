package model

// UpsertResult reports the outcome of one record in a batch write.
type UpsertResult struct {
	Name string
	Err  error
}
