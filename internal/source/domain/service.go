package domain

import "context"

// Loader reads one consistent snapshot of the source tables.
type Loader interface {
	LoadSnapshot(ctx context.Context) (*Snapshot, error)
}
