package domain

import "context"

// JobLedger persists an audit trail of submitted engine jobs.
type JobLedger interface {
	Create(ctx context.Context, rec *JobRecord) error
	Finish(ctx context.Context, id string, status JobStatus, images []string, errMsg string) error
	ListRecent(ctx context.Context, limit int) ([]JobRecord, error)
}
