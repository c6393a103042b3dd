package analyses

import (
	"strings"
	"time"

	"consensus-backend/internal/consensus"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"

	DefaultDepth = "standard"

	defaultPageLimit = 20
	maxPageLimit     = 100
)

// Job is one multi-framework, multi-provider analysis request and its results.
type Job struct {
	ID                 string                                         `json:"id" firestore:"-"`
	OwnerID            string                                         `json:"owner_id" firestore:"owner_id"`
	BusinessInput      string                                         `json:"business_input" firestore:"business_input"`
	Depth              string                                         `json:"depth" firestore:"depth"`
	Frameworks         []string                                       `json:"frameworks" firestore:"frameworks"`
	Providers          []string                                       `json:"providers" firestore:"providers"`
	Status             string                                         `json:"status" firestore:"status"`
	Results            map[string]map[string]consensus.ProviderResult `json:"results" firestore:"results"`
	FrameworkConsensus map[string]consensus.FrameworkConsensus        `json:"framework_consensus" firestore:"framework_consensus"`
	Consensus          consensus.JobConsensus                         `json:"consensus" firestore:"consensus"`
	ConfidenceScore    float64                                        `json:"confidence_score" firestore:"confidence_score"`
	ProcessingTime     float64                                        `json:"processing_time" firestore:"processing_time"`
	Error              string                                         `json:"error,omitempty" firestore:"error"`
	CreatedAt          time.Time                                      `json:"created_at" firestore:"created_at"`
	UpdatedAt          time.Time                                      `json:"updated_at" firestore:"updated_at"`
	StartedAt          *time.Time                                     `json:"started_at,omitempty" firestore:"started_at"`
	CompletedAt        *time.Time                                     `json:"completed_at,omitempty" firestore:"completed_at"`
}

// Request is the caller input for a new job.
type Request struct {
	BusinessInput string
	Frameworks    []string
	Providers     []string
	Depth         string
}

// JobUpdate lists the fields to change on a job. Nil fields are left alone;
// FrameworkResults and FrameworkConsensus merge by framework key.
type JobUpdate struct {
	Status             *string
	Error              *string
	FrameworkResults   map[string]map[string]consensus.ProviderResult
	FrameworkConsensus map[string]consensus.FrameworkConsensus
	Consensus          *consensus.JobConsensus
	ConfidenceScore    *float64
	ProcessingTime     *float64
	StartedAt          *time.Time
	CompletedAt        *time.Time
}

// ListFilter narrows a history listing.
type ListFilter struct {
	// Search is a case-insensitive substring of the business input.
	Search string
	Status string
}

// Page is a limit/offset window.
type Page struct {
	Limit  int
	Offset int
}

// IsTerminal reports whether a job in status can no longer change.
func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// ValidStatus reports whether status is one of the known job statuses.
func ValidStatus(status string) bool {
	switch status {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

func (p Page) normalize() Page {
	if p.Limit <= 0 {
		p.Limit = defaultPageLimit
	}
	if p.Limit > maxPageLimit {
		p.Limit = maxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

func (f ListFilter) matches(job Job) bool {
	if f.Status != "" && job.Status != f.Status {
		return false
	}
	if f.Search != "" && !strings.Contains(strings.ToLower(job.BusinessInput), strings.ToLower(f.Search)) {
		return false
	}
	return true
}

// apply merges upd into job in place. Map fields are replaced with fresh
// copies so values handed out earlier are never mutated.
func (upd JobUpdate) apply(job *Job, now time.Time) {
	if upd.Status != nil {
		job.Status = *upd.Status
	}
	if upd.Error != nil {
		job.Error = *upd.Error
	}
	if len(upd.FrameworkResults) > 0 {
		merged := make(map[string]map[string]consensus.ProviderResult, len(job.Results)+len(upd.FrameworkResults))
		for k, v := range job.Results {
			merged[k] = v
		}
		for k, v := range upd.FrameworkResults {
			merged[k] = v
		}
		job.Results = merged
	}
	if len(upd.FrameworkConsensus) > 0 {
		merged := make(map[string]consensus.FrameworkConsensus, len(job.FrameworkConsensus)+len(upd.FrameworkConsensus))
		for k, v := range job.FrameworkConsensus {
			merged[k] = v
		}
		for k, v := range upd.FrameworkConsensus {
			merged[k] = v
		}
		job.FrameworkConsensus = merged
	}
	if upd.Consensus != nil {
		job.Consensus = *upd.Consensus
	}
	if upd.ConfidenceScore != nil {
		job.ConfidenceScore = *upd.ConfidenceScore
	}
	if upd.ProcessingTime != nil {
		job.ProcessingTime = *upd.ProcessingTime
	}
	if upd.StartedAt != nil {
		t := *upd.StartedAt
		job.StartedAt = &t
	}
	if upd.CompletedAt != nil {
		t := *upd.CompletedAt
		job.CompletedAt = &t
	}
	job.UpdatedAt = now
}
