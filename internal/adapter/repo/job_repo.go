package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"onecam/internal/domain"
	"onecam/internal/infra"
	"onecam/internal/sqlinline"
)

// JobLedgerPG implements domain.JobLedger on the engine_jobs table.
type JobLedgerPG struct {
	sql infra.SQLExecutor
}

// NewJobLedger creates a job ledger backed by PostgreSQL.
func NewJobLedger(sql infra.SQLExecutor) *JobLedgerPG {
	return &JobLedgerPG{sql: sql}
}

// EnsureSchema creates the ledger table when it does not exist.
func (r *JobLedgerPG) EnsureSchema(ctx context.Context) error {
	_, err := r.sql.Exec(ctx, sqlinline.QEnsureEngineJobs)
	return err
}

// Create inserts a new record. An empty ID is filled with a fresh UUID, and
// the timestamps are set from the database.
func (r *JobLedgerPG) Create(ctx context.Context, rec *domain.JobRecord) error {
	if rec == nil {
		return errors.New("job record is required")
	}
	if strings.TrimSpace(rec.ID) == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = domain.JobStatusQueued
	}
	row := r.sql.QueryRow(ctx, sqlinline.QInsertEngineJob, rec.ID, rec.PromptID, rec.Prompt, rec.Image, rec.Status)
	return row.Scan(&rec.CreatedAt, &rec.UpdatedAt)
}

// Finish records the outcome of a job.
func (r *JobLedgerPG) Finish(ctx context.Context, id string, status domain.JobStatus, images []string, errMsg string) error {
	if images == nil {
		images = []string{}
	}
	_, err := r.sql.Exec(ctx, sqlinline.QFinishEngineJob, id, status, images, errMsg)
	return err
}

// ListRecent returns the newest records first.
func (r *JobLedgerPG) ListRecent(ctx context.Context, limit int) ([]domain.JobRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.sql.Query(ctx, sqlinline.QListRecentEngineJobs, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.JobRecord, 0, limit)
	for rows.Next() {
		var rec domain.JobRecord
		var status string
		if err := rows.Scan(&rec.ID, &rec.PromptID, &rec.Prompt, &rec.Image, &status, &rec.Images, &rec.Error, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.Status = domain.JobStatus(status)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// NopLedger is used when no database is configured. Writes are discarded and
// reads report domain.ErrLedgerDisabled.
type NopLedger struct{}

func (NopLedger) Create(_ context.Context, rec *domain.JobRecord) error {
	if rec != nil && rec.ID == "" {
		rec.ID = uuid.NewString()
		now := time.Now().UTC()
		rec.CreatedAt, rec.UpdatedAt = now, now
	}
	return nil
}

func (NopLedger) Finish(context.Context, string, domain.JobStatus, []string, string) error {
	return nil
}

func (NopLedger) ListRecent(context.Context, int) ([]domain.JobRecord, error) {
	return nil, domain.ErrLedgerDisabled
}

var (
	_ domain.JobLedger = (*JobLedgerPG)(nil)
	_ domain.JobLedger = NopLedger{}
)
