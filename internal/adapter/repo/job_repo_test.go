package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"onecam/internal/domain"
	"onecam/internal/sqlinline"
)

type execCall struct {
	query string
	args  []any
}

type ledgerTestSQL struct {
	execs    []execCall
	rowQuery string
	rowArgs  []any
	rows     []domain.JobRecord
	queryErr error
	stamp    time.Time
}

func (s *ledgerTestSQL) Exec(_ context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.execs = append(s.execs, execCall{query: query, args: args})
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (s *ledgerTestSQL) QueryRow(_ context.Context, query string, args ...any) pgx.Row {
	s.rowQuery, s.rowArgs = query, args
	return simpleRow{scan: func(dest ...any) error {
		if len(dest) != 2 {
			return fmt.Errorf("expected 2 destinations, got %d", len(dest))
		}
		*dest[0].(*time.Time) = s.stamp
		*dest[1].(*time.Time) = s.stamp
		return nil
	}}
}

func (s *ledgerTestSQL) Query(_ context.Context, query string, args ...any) (pgx.Rows, error) {
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	if query != sqlinline.QListRecentEngineJobs {
		return nil, fmt.Errorf("unexpected query %q", query)
	}
	return &ledgerRows{items: s.rows}, nil
}

type ledgerRows struct {
	testRowsBase
	items []domain.JobRecord
	idx   int
}

func (r *ledgerRows) Next() bool {
	if r.idx >= len(r.items) {
		return false
	}
	r.idx++
	return true
}

func (r *ledgerRows) Scan(dest ...any) error {
	rec := r.items[r.idx-1]
	*dest[0].(*string) = rec.ID
	*dest[1].(*string) = rec.PromptID
	*dest[2].(*string) = rec.Prompt
	*dest[3].(*string) = rec.Image
	*dest[4].(*string) = string(rec.Status)
	*dest[5].(*[]string) = rec.Images
	*dest[6].(*string) = rec.Error
	*dest[7].(*time.Time) = rec.CreatedAt
	*dest[8].(*time.Time) = rec.UpdatedAt
	return nil
}

func (r *ledgerRows) Err() error { return nil }

func (r *ledgerRows) Close() {}

func TestJobLedgerCreateAssignsIDAndTimestamps(t *testing.T) {
	stamp := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	db := &ledgerTestSQL{stamp: stamp}
	ledger := NewJobLedger(db)

	rec := &domain.JobRecord{PromptID: "p-1", Prompt: "a red fox", Image: "cam.png"}
	if err := ledger.Create(context.Background(), rec); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if len(rec.ID) != 36 {
		t.Fatalf("expected uuid id, got %q", rec.ID)
	}
	if rec.Status != domain.JobStatusQueued {
		t.Fatalf("expected queued status, got %q", rec.Status)
	}
	if !rec.CreatedAt.Equal(stamp) || !rec.UpdatedAt.Equal(stamp) {
		t.Fatalf("timestamps not scanned: %+v", rec)
	}
	if !strings.HasPrefix(db.rowQuery, "--sql engine_jobs.insert") {
		t.Fatalf("unexpected query: %q", db.rowQuery)
	}
	if db.rowArgs[1] != "p-1" || db.rowArgs[3] != "cam.png" {
		t.Fatalf("unexpected args: %#v", db.rowArgs)
	}
}

func TestJobLedgerFinishNormalizesImages(t *testing.T) {
	db := &ledgerTestSQL{}
	ledger := NewJobLedger(db)

	if err := ledger.Finish(context.Background(), "id-1", domain.JobStatusNoImages, nil, ""); err != nil {
		t.Fatalf("Finish returned error: %v", err)
	}
	if len(db.execs) != 1 || db.execs[0].query != sqlinline.QFinishEngineJob {
		t.Fatalf("unexpected execs: %#v", db.execs)
	}
	images, ok := db.execs[0].args[2].([]string)
	if !ok || images == nil || len(images) != 0 {
		t.Fatalf("expected empty non-nil image list, got %#v", db.execs[0].args[2])
	}
}

func TestJobLedgerListRecent(t *testing.T) {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	db := &ledgerTestSQL{rows: []domain.JobRecord{
		{ID: "b", PromptID: "p-2", Prompt: "two", Image: "b.png", Status: domain.JobStatusSucceeded, Images: []string{"ComfyUI_00002_.png"}, CreatedAt: created, UpdatedAt: created},
		{ID: "a", PromptID: "p-1", Prompt: "one", Image: "a.png", Status: domain.JobStatusFailed, Error: "engine unavailable", CreatedAt: created, UpdatedAt: created},
	}}
	ledger := NewJobLedger(db)

	recs, err := ledger.ListRecent(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListRecent returned error: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].Status != domain.JobStatusSucceeded || recs[0].Images[0] != "ComfyUI_00002_.png" {
		t.Fatalf("unexpected first record: %+v", recs[0])
	}
	if recs[1].Error != "engine unavailable" {
		t.Fatalf("unexpected second record: %+v", recs[1])
	}
}

func TestJobLedgerListRecentPropagatesErrors(t *testing.T) {
	boom := errors.New("connection reset")
	ledger := NewJobLedger(&ledgerTestSQL{queryErr: boom})
	if _, err := ledger.ListRecent(context.Background(), 5); !errors.Is(err, boom) {
		t.Fatalf("expected query error, got %v", err)
	}
}

func TestNopLedger(t *testing.T) {
	var ledger domain.JobLedger = NopLedger{}
	rec := &domain.JobRecord{PromptID: "p"}
	if err := ledger.Create(context.Background(), rec); err != nil || rec.ID == "" {
		t.Fatalf("Create = %v, id %q", err, rec.ID)
	}
	if err := ledger.Finish(context.Background(), rec.ID, domain.JobStatusSucceeded, nil, ""); err != nil {
		t.Fatalf("Finish returned error: %v", err)
	}
	if _, err := ledger.ListRecent(context.Background(), 10); !errors.Is(err, domain.ErrLedgerDisabled) {
		t.Fatalf("expected ErrLedgerDisabled, got %v", err)
	}
}
