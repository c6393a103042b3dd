package analyses

import "context"

// Repo persists jobs. UpdateFields is guarded: it applies only while the job
// is pending or processing and returns ErrTerminal otherwise.
type Repo interface {
	Insert(ctx context.Context, job Job) error
	// FindByID returns the job with id. A non-empty ownerID scopes the lookup.
	FindByID(ctx context.Context, id, ownerID string) (Job, error)
	UpdateFields(ctx context.Context, id string, upd JobUpdate) error
	Delete(ctx context.Context, id string) error
	ListByOwner(ctx context.Context, ownerID string, filter ListFilter, page Page) ([]Job, error)
}
