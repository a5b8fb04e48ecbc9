package dataset

import "context"

// Repository persists datasets. Get and Delete return an
// ErrCodeDatasetNotFound error for unknown IDs. Save replaces an existing
// dataset with the same ID.
type Repository interface {
	Save(ctx context.Context, d *Dataset) error
	Get(ctx context.Context, id string) (*Dataset, error)
	List(ctx context.Context) ([]Summary, error)
	Delete(ctx context.Context, id string) error
}

// Source loads one dataset from outside the process (files, object storage).
type Source interface {
	Load(ctx context.Context) (*Dataset, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (*Dataset, error)

// Load calls f.
func (f SourceFunc) Load(ctx context.Context) (*Dataset, error) { return f(ctx) }

// RepositorySource loads a stored dataset by ID.
type RepositorySource struct {
	Repo Repository
	ID   string
}

// Load implements Source.
func (s RepositorySource) Load(ctx context.Context) (*Dataset, error) {
	return s.Repo.Get(ctx, s.ID)
}
