package analyses

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo stores jobs in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]Job
	now  func() time.Time
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byID: make(map[string]Job),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Insert stores the job.
func (r *MemoryRepo) Insert(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[job.ID] = job
	return nil
}

// FindByID returns a job by its ID, scoped to ownerID when set.
func (r *MemoryRepo) FindByID(ctx context.Context, id, ownerID string) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.byID[id]
	if !ok || (ownerID != "" && job.OwnerID != ownerID) {
		return Job{}, ErrNotFound
	}
	return job, nil
}

// UpdateFields applies upd while the job is non-terminal.
func (r *MemoryRepo) UpdateFields(ctx context.Context, id string, upd JobUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	if IsTerminal(job.Status) {
		return ErrTerminal
	}
	upd.apply(&job, r.now())
	r.byID[id] = job
	return nil
}

// Delete removes a job in any state.
func (r *MemoryRepo) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return ErrNotFound
	}
	delete(r.byID, id)
	return nil
}

// ListByOwner returns an owner's jobs, newest first, with limit/offset.
func (r *MemoryRepo) ListByOwner(ctx context.Context, ownerID string, filter ListFilter, page Page) ([]Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page = page.normalize()

	r.mu.RLock()
	var jobs []Job
	for _, job := range r.byID {
		if job.OwnerID == ownerID && filter.matches(job) {
			jobs = append(jobs, job)
		}
	}
	r.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID > jobs[j].ID
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})

	if page.Offset >= len(jobs) {
		return []Job{}, nil
	}
	end := len(jobs)
	if page.Offset+page.Limit < end {
		end = page.Offset + page.Limit
	}
	return jobs[page.Offset:end], nil
}

var _ Repo = (*MemoryRepo)(nil)
