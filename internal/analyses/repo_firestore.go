package analyses

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"consensus-backend/internal/consensus"
)

// FirestoreRepo stores one document per job in a Firestore collection.
type FirestoreRepo struct {
	Client     *firestore.Client
	Collection string
}

// NewFirestoreClient creates a Firestore client for projectID.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	return client, nil
}

func (r *FirestoreRepo) doc(id string) *firestore.DocumentRef {
	return r.Client.Collection(r.Collection).Doc(id)
}

// Insert creates the job document. It fails if the id already exists.
func (r *FirestoreRepo) Insert(ctx context.Context, job Job) error {
	if job.Results == nil {
		job.Results = map[string]map[string]consensus.ProviderResult{}
	}
	if job.FrameworkConsensus == nil {
		job.FrameworkConsensus = map[string]consensus.FrameworkConsensus{}
	}
	_, err := r.doc(job.ID).Create(ctx, job)
	return err
}

// FindByID reads the job document, scoped to ownerID when set.
func (r *FirestoreRepo) FindByID(ctx context.Context, id, ownerID string) (Job, error) {
	snap, err := r.doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return Job{}, ErrNotFound
		}
		return Job{}, err
	}
	job, err := decodeJob(snap)
	if err != nil {
		return Job{}, err
	}
	if ownerID != "" && job.OwnerID != ownerID {
		return Job{}, ErrNotFound
	}
	return job, nil
}

// UpdateFields applies upd in a transaction that first checks the job is
// still pending or processing. Framework entries are written by field path
// so concurrent frameworks touch disjoint keys.
func (r *FirestoreRepo) UpdateFields(ctx context.Context, id string, upd JobUpdate) error {
	ref := r.doc(id)
	updates := firestoreUpdates(upd, time.Now().UTC())
	return r.Client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return ErrNotFound
			}
			return err
		}
		current, err := snap.DataAt("status")
		if err != nil {
			return err
		}
		if s, _ := current.(string); IsTerminal(s) {
			return ErrTerminal
		}
		return tx.Update(ref, updates)
	})
}

// Delete removes the job document. Missing documents report ErrNotFound.
func (r *FirestoreRepo) Delete(ctx context.Context, id string) error {
	_, err := r.doc(id).Delete(ctx, firestore.Exists)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// ListByOwner queries the owner's documents newest first. Search and status
// filters run client-side so the query needs only the owner/created_at index.
func (r *FirestoreRepo) ListByOwner(ctx context.Context, ownerID string, filter ListFilter, page Page) ([]Job, error) {
	page = page.normalize()
	iter := r.Client.Collection(r.Collection).
		Where("owner_id", "==", ownerID).
		OrderBy("created_at", firestore.Desc).
		Documents(ctx)
	defer iter.Stop()

	jobs := []Job{}
	skipped := 0
	for len(jobs) < page.Limit {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		job, err := decodeJob(snap)
		if err != nil {
			return nil, err
		}
		if !filter.matches(job) {
			continue
		}
		if skipped < page.Offset {
			skipped++
			continue
		}
		jobs = append(jobs, job)
	}
	sort.SliceStable(jobs, func(i, j int) bool { return jobs[i].CreatedAt.After(jobs[j].CreatedAt) })
	return jobs, nil
}

// Ping reads at most one document to confirm the collection is reachable.
func (r *FirestoreRepo) Ping(ctx context.Context) error {
	iter := r.Client.Collection(r.Collection).Limit(1).Documents(ctx)
	defer iter.Stop()
	if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return err
	}
	return nil
}

func decodeJob(snap *firestore.DocumentSnapshot) (Job, error) {
	var job Job
	if err := snap.DataTo(&job); err != nil {
		return Job{}, fmt.Errorf("decode job %s: %w", snap.Ref.ID, err)
	}
	job.ID = snap.Ref.ID
	return job, nil
}

func firestoreUpdates(upd JobUpdate, now time.Time) []firestore.Update {
	var updates []firestore.Update
	if upd.Status != nil {
		updates = append(updates, firestore.Update{Path: "status", Value: *upd.Status})
	}
	if upd.Error != nil {
		updates = append(updates, firestore.Update{Path: "error", Value: *upd.Error})
	}
	for _, fw := range sortedKeys(upd.FrameworkResults) {
		updates = append(updates, firestore.Update{FieldPath: firestore.FieldPath{"results", fw}, Value: upd.FrameworkResults[fw]})
	}
	for _, fw := range sortedKeys(upd.FrameworkConsensus) {
		updates = append(updates, firestore.Update{FieldPath: firestore.FieldPath{"framework_consensus", fw}, Value: upd.FrameworkConsensus[fw]})
	}
	if upd.Consensus != nil {
		updates = append(updates, firestore.Update{Path: "consensus", Value: *upd.Consensus})
	}
	if upd.ConfidenceScore != nil {
		updates = append(updates, firestore.Update{Path: "confidence_score", Value: *upd.ConfidenceScore})
	}
	if upd.ProcessingTime != nil {
		updates = append(updates, firestore.Update{Path: "processing_time", Value: *upd.ProcessingTime})
	}
	if upd.StartedAt != nil {
		updates = append(updates, firestore.Update{Path: "started_at", Value: *upd.StartedAt})
	}
	if upd.CompletedAt != nil {
		updates = append(updates, firestore.Update{Path: "completed_at", Value: *upd.CompletedAt})
	}
	return append(updates, firestore.Update{Path: "updated_at", Value: now})
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var _ Repo = (*FirestoreRepo)(nil)
