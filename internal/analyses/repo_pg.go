package analyses

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const jobColumns = `id, owner_id, business_input, depth, frameworks, providers, status, results,
       framework_consensus, consensus, confidence_score, processing_time, error,
       created_at, updated_at, started_at, completed_at`

// Insert adds a new job row.
func (r *PGRepo) Insert(ctx context.Context, job Job) error {
	const query = `
INSERT INTO analysis_jobs (
	id, owner_id, business_input, depth, frameworks, providers, status, results,
	framework_consensus, consensus, confidence_score, processing_time, error, created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	frameworks, err := marshalJSONList(job.Frameworks)
	if err != nil {
		return err
	}
	providers, err := marshalJSONList(job.Providers)
	if err != nil {
		return err
	}
	results, err := marshalJSONB(job.Results)
	if err != nil {
		return err
	}
	frameworkConsensus, err := marshalJSONB(job.FrameworkConsensus)
	if err != nil {
		return err
	}
	jobConsensus, err := json.Marshal(job.Consensus)
	if err != nil {
		return err
	}

	_, err = r.DB.ExecContext(ctx, query,
		job.ID,
		job.OwnerID,
		job.BusinessInput,
		job.Depth,
		frameworks,
		providers,
		job.Status,
		results,
		frameworkConsensus,
		jobConsensus,
		job.ConfidenceScore,
		job.ProcessingTime,
		job.Error,
		job.CreatedAt,
		job.UpdatedAt,
	)
	return err
}

// FindByID returns a job by ID, scoped to ownerID when set.
func (r *PGRepo) FindByID(ctx context.Context, id, ownerID string) (Job, error) {
	query := `SELECT ` + jobColumns + ` FROM analysis_jobs WHERE id = $1`
	args := []any{id}
	if ownerID != "" {
		query += ` AND owner_id = $2`
		args = append(args, ownerID)
	}
	job, err := scanJob(r.DB.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Job{}, ErrNotFound
		}
		return Job{}, err
	}
	return job, nil
}

// UpdateFields applies upd while the job is pending or processing. Per-framework
// maps are merged with the jsonb concatenation operator so concurrent
// frameworks never overwrite each other.
func (r *PGRepo) UpdateFields(ctx context.Context, id string, upd JobUpdate) error {
	var sets []string
	var args []any
	add := func(expr string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf(expr, len(args)))
	}

	if upd.Status != nil {
		add("status = $%d", *upd.Status)
	}
	if upd.Error != nil {
		add("error = $%d", *upd.Error)
	}
	if len(upd.FrameworkResults) > 0 {
		payload, err := json.Marshal(upd.FrameworkResults)
		if err != nil {
			return err
		}
		add("results = results || $%d::jsonb", payload)
	}
	if len(upd.FrameworkConsensus) > 0 {
		payload, err := json.Marshal(upd.FrameworkConsensus)
		if err != nil {
			return err
		}
		add("framework_consensus = framework_consensus || $%d::jsonb", payload)
	}
	if upd.Consensus != nil {
		payload, err := json.Marshal(upd.Consensus)
		if err != nil {
			return err
		}
		add("consensus = $%d", payload)
	}
	if upd.ConfidenceScore != nil {
		add("confidence_score = $%d", *upd.ConfidenceScore)
	}
	if upd.ProcessingTime != nil {
		add("processing_time = $%d", *upd.ProcessingTime)
	}
	if upd.StartedAt != nil {
		add("started_at = $%d", *upd.StartedAt)
	}
	if upd.CompletedAt != nil {
		add("completed_at = $%d", *upd.CompletedAt)
	}
	add("updated_at = $%d", time.Now().UTC())

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE analysis_jobs SET %s WHERE id = $%d AND status IN ('pending', 'processing')`,
		strings.Join(sets, ", "), len(args))

	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	var status string
	err = r.DB.QueryRowContext(ctx, `SELECT status FROM analysis_jobs WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return ErrTerminal
}

// Delete removes a job row in any state.
func (r *PGRepo) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM analysis_jobs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByOwner returns an owner's jobs newest first.
func (r *PGRepo) ListByOwner(ctx context.Context, ownerID string, filter ListFilter, page Page) ([]Job, error) {
	page = page.normalize()

	query := `SELECT ` + jobColumns + ` FROM analysis_jobs WHERE owner_id = $1`
	args := []any{ownerID}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+escapeLike(filter.Search)+"%")
		query += fmt.Sprintf(` AND business_input ILIKE $%d`, len(args))
	}
	args = append(args, page.Limit, page.Offset)
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (Job, error) {
	var job Job
	var frameworks, providers, results, frameworkConsensus, jobConsensus sql.NullString
	var startedAt, completedAt sql.NullTime

	err := row.Scan(
		&job.ID,
		&job.OwnerID,
		&job.BusinessInput,
		&job.Depth,
		&frameworks,
		&providers,
		&job.Status,
		&results,
		&frameworkConsensus,
		&jobConsensus,
		&job.ConfidenceScore,
		&job.ProcessingTime,
		&job.Error,
		&job.CreatedAt,
		&job.UpdatedAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return Job{}, err
	}
	if frameworks.Valid {
		if err := json.Unmarshal([]byte(frameworks.String), &job.Frameworks); err != nil {
			return Job{}, fmt.Errorf("decode frameworks: %w", err)
		}
	}
	if providers.Valid {
		if err := json.Unmarshal([]byte(providers.String), &job.Providers); err != nil {
			return Job{}, fmt.Errorf("decode providers: %w", err)
		}
	}
	if results.Valid {
		if err := json.Unmarshal([]byte(results.String), &job.Results); err != nil {
			return Job{}, fmt.Errorf("decode results: %w", err)
		}
	}
	if frameworkConsensus.Valid {
		if err := json.Unmarshal([]byte(frameworkConsensus.String), &job.FrameworkConsensus); err != nil {
			return Job{}, fmt.Errorf("decode framework_consensus: %w", err)
		}
	}
	if jobConsensus.Valid {
		if err := json.Unmarshal([]byte(jobConsensus.String), &job.Consensus); err != nil {
			return Job{}, fmt.Errorf("decode consensus: %w", err)
		}
	}
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	return job, nil
}

func marshalJSONB(value any) ([]byte, error) {
	if value == nil {
		return []byte("{}"), nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	if string(payload) == "null" {
		return []byte("{}"), nil
	}
	return payload, nil
}

func marshalJSONList(values []string) ([]byte, error) {
	if values == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(values)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

var _ Repo = (*PGRepo)(nil)
