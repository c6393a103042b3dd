package analyses

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"consensus-backend/internal/consensus"
	"consensus-backend/internal/llm"
	"consensus-backend/internal/shared/metrics"
	"consensus-backend/internal/shared/telemetry"
)

const (
	defaultFramework            = "swot"
	defaultFrameworkConcurrency = 4
	minBusinessInputLen         = 3
)

var validDepths = map[string]struct{}{
	"quick":         {},
	"standard":      {},
	"comprehensive": {},
}

// Runner fans one framework out to providers and returns every outcome.
type Runner interface {
	Run(ctx context.Context, frameworkID, promptContext string, providerIDs []string) map[string]consensus.ProviderResult
}

// Options configures a Service. Providers lists the registered adapter ids.
type Options struct {
	Providers            []string
	DefaultProviders     []string
	FrameworkConcurrency int
}

// Service creates analysis jobs and drives them to a terminal state in the
// background.
type Service struct {
	Repo Repo

	runner           Runner
	providers        map[string]struct{}
	defaultProviders []string
	concurrency      int
	aggregate        func(frameworkID string, results map[string]consensus.ProviderResult, order []string) consensus.FrameworkConsensus
	newID            func() string
	now              func() time.Time

	mu   sync.Mutex
	runs map[string]*runState
	wg   sync.WaitGroup
}

type runState struct {
	stop atomic.Bool

	mu      sync.Mutex
	results map[string]map[string]consensus.ProviderResult
	fcs     map[string]consensus.FrameworkConsensus
}

// NewService wires a Service over repo and runner.
func NewService(repo Repo, runner Runner, opts Options) *Service {
	providers := make(map[string]struct{}, len(opts.Providers))
	for _, id := range opts.Providers {
		providers[id] = struct{}{}
	}
	defaults := dedupeIDs(opts.DefaultProviders)
	if len(defaults) == 0 {
		defaults = sortedKeys(providers)
	}
	concurrency := opts.FrameworkConcurrency
	if concurrency <= 0 {
		concurrency = defaultFrameworkConcurrency
	}
	return &Service{
		Repo:             repo,
		runner:           runner,
		providers:        providers,
		defaultProviders: defaults,
		concurrency:      concurrency,
		aggregate:        consensus.Aggregate,
		newID:            uuid.NewString,
		now:              func() time.Time { return time.Now().UTC() },
		runs:             make(map[string]*runState),
	}
}

// Providers returns the registered provider ids, sorted.
func (s *Service) Providers() []string {
	return sortedKeys(s.providers)
}

// DefaultProviders returns the providers used when a request names none.
func (s *Service) DefaultProviders() []string {
	return append([]string(nil), s.defaultProviders...)
}

// Create validates req, stores a pending job, and starts evaluating it in
// the background. It returns as soon as the job is stored.
func (s *Service) Create(ctx context.Context, ownerID string, req Request) (Job, error) {
	job, err := s.buildJob(ownerID, req)
	if err != nil {
		return Job{}, err
	}
	if err := s.Repo.Insert(ctx, job); err != nil {
		return Job{}, err
	}

	metrics.IncJobSubmitted()
	telemetry.Info("analysis.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"user_id":           ownerID,
		"analysis_id":       job.ID,
		"status":            StatusPending,
		"status_transition": "->pending",
		"frameworks":        job.Frameworks,
		"providers":         job.Providers,
	})

	state := &runState{
		results: make(map[string]map[string]consensus.ProviderResult, len(job.Frameworks)),
		fcs:     make(map[string]consensus.FrameworkConsensus, len(job.Frameworks)),
	}
	s.mu.Lock()
	s.runs[job.ID] = state
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(detach(ctx), job, state)
	return job, nil
}

func (s *Service) buildJob(ownerID string, req Request) (Job, error) {
	input := strings.TrimSpace(req.BusinessInput)
	if utf8.RuneCountInString(input) < minBusinessInputLen {
		return Job{}, fmt.Errorf("%w: business_input must be at least %d characters", ErrInvalidInput, minBusinessInputLen)
	}

	frameworks := dedupeIDs(req.Frameworks)
	if len(frameworks) == 0 {
		frameworks = []string{defaultFramework}
	}
	for _, fw := range frameworks {
		if _, ok := llm.LookupFramework(fw); !ok {
			return Job{}, fmt.Errorf("%w: unknown framework: %s", ErrInvalidInput, fw)
		}
	}

	providers := dedupeIDs(req.Providers)
	if len(providers) == 0 {
		providers = append([]string(nil), s.defaultProviders...)
	}
	if len(providers) == 0 {
		return Job{}, fmt.Errorf("%w: no providers configured", ErrInvalidInput)
	}
	for _, p := range providers {
		if _, ok := s.providers[p]; !ok {
			return Job{}, fmt.Errorf("%w: unknown provider: %s", ErrInvalidInput, p)
		}
	}

	depth := strings.ToLower(strings.TrimSpace(req.Depth))
	if depth == "" {
		depth = DefaultDepth
	}
	if _, ok := validDepths[depth]; !ok {
		return Job{}, fmt.Errorf("%w: unknown depth: %s", ErrInvalidInput, depth)
	}

	now := s.now()
	return Job{
		ID:                 s.newID(),
		OwnerID:            ownerID,
		BusinessInput:      input,
		Depth:              depth,
		Frameworks:         frameworks,
		Providers:          providers,
		Status:             StatusPending,
		Results:            map[string]map[string]consensus.ProviderResult{},
		FrameworkConsensus: map[string]consensus.FrameworkConsensus{},
		Consensus:          consensus.ComputeJobConsensus(nil, nil),
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

func (s *Service) run(ctx context.Context, job Job, state *runState) {
	defer s.wg.Done()
	defer s.forgetRun(job.ID)

	startedAt := s.now()
	defer func() {
		if r := recover(); r != nil {
			s.failJob(ctx, job, fmt.Errorf("panic: %v", r), startedAt)
		}
	}()

	// A job cancelled or deleted while pending fails this guarded write.
	processing := StatusProcessing
	if err := s.Repo.UpdateFields(ctx, job.ID, JobUpdate{Status: &processing, StartedAt: &startedAt}); err != nil {
		if isGone(err) {
			return
		}
		s.failJob(ctx, job, fmt.Errorf("set processing: %w", err), startedAt)
		return
	}
	telemetry.Info("analysis.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"user_id":           job.OwnerID,
		"analysis_id":       job.ID,
		"status":            StatusProcessing,
		"status_transition": "pending->processing",
	})

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, fw := range job.Frameworks {
		g.Go(func() error {
			return s.evaluate(ctx, job, fw, state)
		})
	}
	if err := g.Wait(); err != nil {
		s.failJob(ctx, job, err, startedAt)
		return
	}
	if state.stop.Load() {
		return
	}

	completedAt := s.now()
	seconds := completedAt.Sub(startedAt).Seconds()
	completed := StatusCompleted
	state.mu.Lock()
	final := consensus.ComputeJobConsensus(state.results, state.fcs)
	state.mu.Unlock()
	score := final.ConsensusScore
	err := s.Repo.UpdateFields(ctx, job.ID, JobUpdate{
		Status:          &completed,
		Consensus:       &final,
		ConfidenceScore: &score,
		ProcessingTime:  &seconds,
		CompletedAt:     &completedAt,
	})
	if err != nil {
		if isGone(err) {
			return
		}
		s.failJob(ctx, job, fmt.Errorf("complete job: %w", err), startedAt)
		return
	}

	durationMs := float64(completedAt.Sub(startedAt).Milliseconds())
	metrics.IncJobCompleted()
	metrics.ObserveJobDurationMs(durationMs)
	telemetry.Info("analysis.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"user_id":           job.OwnerID,
		"analysis_id":       job.ID,
		"status":            StatusCompleted,
		"status_transition": "processing->completed",
		"duration_ms":       durationMs,
		"consensus_score":   score,
		"models_used":       final.ModelsUsed,
	})
}

// evaluate runs one framework and records its results. It returns an error
// only when the store rejects the write for a reason other than the job
// having been cancelled or deleted.
func (s *Service) evaluate(ctx context.Context, job Job, frameworkID string, state *runState) error {
	if state.stop.Load() {
		return nil
	}
	promptContext := llm.BuildPromptContext(job.BusinessInput, job.Depth, frameworkID)
	results := s.runner.Run(ctx, frameworkID, promptContext, job.Providers)
	if results == nil {
		results = map[string]consensus.ProviderResult{}
	}
	results, fc := s.safeAggregate(ctx, job, frameworkID, results)

	state.mu.Lock()
	defer state.mu.Unlock()
	if state.stop.Load() {
		return nil
	}
	state.results[frameworkID] = results
	state.fcs[frameworkID] = fc
	jc := consensus.ComputeJobConsensus(state.results, state.fcs)
	score := jc.ConsensusScore

	err := s.Repo.UpdateFields(ctx, job.ID, JobUpdate{
		FrameworkResults:   map[string]map[string]consensus.ProviderResult{frameworkID: results},
		FrameworkConsensus: map[string]consensus.FrameworkConsensus{frameworkID: fc},
		Consensus:          &jc,
		ConfidenceScore:    &score,
	})
	if err != nil {
		state.stop.Store(true)
		if isGone(err) {
			return nil
		}
		return err
	}
	telemetry.Info("framework.complete", map[string]any{
		"request_id":      requestIDFromContext(ctx),
		"analysis_id":     job.ID,
		"framework":       frameworkID,
		"consensus_score": fc.ConsensusScore,
		"agreement_level": fc.AgreementLevel,
		"conflicts":       len(fc.ConflictingInsights),
	})
	return nil
}

// safeAggregate isolates a panicking aggregation to its framework, which
// then records no results and an unavailable consensus.
func (s *Service) safeAggregate(ctx context.Context, job Job, frameworkID string, results map[string]consensus.ProviderResult) (out map[string]consensus.ProviderResult, fc consensus.FrameworkConsensus) {
	defer func() {
		if r := recover(); r != nil {
			telemetry.Error("framework.failed", map[string]any{
				"request_id":  requestIDFromContext(ctx),
				"analysis_id": job.ID,
				"framework":   frameworkID,
				"error":       sanitizeError(fmt.Errorf("panic: %v", r)),
			})
			out = map[string]consensus.ProviderResult{}
			fc = consensus.Aggregate(frameworkID, out, nil)
		}
	}()
	return results, s.aggregate(frameworkID, results, job.Providers)
}

func (s *Service) failJob(ctx context.Context, job Job, err error, startedAt time.Time) {
	msg := err.Error()
	failed := StatusFailed
	completedAt := s.now()
	seconds := completedAt.Sub(startedAt).Seconds()
	updateErr := s.Repo.UpdateFields(context.Background(), job.ID, JobUpdate{
		Status:         &failed,
		Error:          &msg,
		ProcessingTime: &seconds,
		CompletedAt:    &completedAt,
	})
	if updateErr != nil {
		if isGone(updateErr) {
			return
		}
		telemetry.Error("analysis.fail_update", map[string]any{
			"request_id":  requestIDFromContext(ctx),
			"analysis_id": job.ID,
			"error":       sanitizeError(updateErr),
			"cause":       sanitizeError(err),
		})
	}
	durationMs := float64(completedAt.Sub(startedAt).Milliseconds())
	metrics.IncJobFailed()
	metrics.ObserveJobDurationMs(durationMs)
	telemetry.Error("analysis.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"user_id":           job.OwnerID,
		"analysis_id":       job.ID,
		"status":            StatusFailed,
		"status_transition": "processing->failed",
		"duration_ms":       durationMs,
		"error":             sanitizeError(err),
	})
}

// Cancel moves a pending or processing job to cancelled. Frameworks not yet
// started are skipped; results from calls already in flight are discarded.
func (s *Service) Cancel(ctx context.Context, ownerID, id string) (Job, error) {
	job, err := s.Repo.FindByID(ctx, id, ownerID)
	if err != nil {
		return Job{}, err
	}
	if IsTerminal(job.Status) {
		return Job{}, ErrNotCancellable
	}

	cancelled := StatusCancelled
	now := s.now()
	if err := s.Repo.UpdateFields(ctx, id, JobUpdate{Status: &cancelled, CompletedAt: &now}); err != nil {
		if errors.Is(err, ErrTerminal) {
			return Job{}, ErrNotCancellable
		}
		return Job{}, err
	}
	// Only a stored cancellation stops the run; writes racing this point
	// fail the status guard.
	s.stopRun(id)

	metrics.IncJobCancelled()
	telemetry.Info("analysis.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"user_id":           ownerID,
		"analysis_id":       id,
		"status":            StatusCancelled,
		"status_transition": job.Status + "->cancelled",
	})
	return s.Repo.FindByID(ctx, id, ownerID)
}

// Delete removes a job in any state and stops its background run.
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	if _, err := s.Repo.FindByID(ctx, id, ownerID); err != nil {
		return err
	}
	if err := s.Repo.Delete(ctx, id); err != nil {
		return err
	}
	s.stopRun(id)
	telemetry.Info("analysis.deleted", map[string]any{
		"request_id":  requestIDFromContext(ctx),
		"user_id":     ownerID,
		"analysis_id": id,
	})
	return nil
}

// DeleteMany deletes each of the owner's jobs in ids and returns how many
// were removed. Ids that do not exist or belong to someone else are skipped.
func (s *Service) DeleteMany(ctx context.Context, ownerID string, ids []string) (int, error) {
	deleted := 0
	for _, id := range dedupeIDs(ids) {
		err := s.Delete(ctx, ownerID, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

// Get returns one of the owner's jobs.
func (s *Service) Get(ctx context.Context, ownerID, id string) (Job, error) {
	return s.Repo.FindByID(ctx, id, ownerID)
}

// List returns the owner's jobs newest first.
func (s *Service) List(ctx context.Context, ownerID string, filter ListFilter, page Page) ([]Job, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	filter.Status = strings.ToLower(strings.TrimSpace(filter.Status))
	if filter.Status != "" && !ValidStatus(filter.Status) {
		return nil, fmt.Errorf("%w: unknown status: %s", ErrInvalidInput, filter.Status)
	}
	return s.Repo.ListByOwner(ctx, ownerID, filter, page.normalize())
}

// Wait blocks until every background run has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) stopRun(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.runs[id]; ok {
		state.stop.Store(true)
	}
}

func (s *Service) forgetRun(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, id)
}

func isGone(err error) bool {
	return errors.Is(err, ErrTerminal) || errors.Is(err, ErrNotFound)
}

func dedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.ToLower(strings.TrimSpace(id))
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	const maxLen = 500
	if len(msg) > maxLen {
		msg = msg[:maxLen]
	}
	return msg
}
