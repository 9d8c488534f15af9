package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"onecam/internal/domain"
)

// OutputImages scans a history record for produced images. The entry keyed by
// the handle is checked first, then the remaining entries in key order; the
// filenames of the first entry with any non-empty image list are returned.
func OutputImages(record domain.HistoryRecord, handle domain.JobHandle) ([]string, bool) {
	keys := make([]string, 0, len(record))
	for key := range record {
		if key != handle.PromptID {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	if _, ok := record[handle.PromptID]; ok {
		keys = append([]string{handle.PromptID}, keys...)
	}

	for _, key := range keys {
		if files := entryImages(record[key]); len(files) > 0 {
			return files, true
		}
	}
	return nil, false
}

func entryImages(rec domain.ExecutionRecord) []string {
	nodes := make([]string, 0, len(rec.Outputs))
	for node := range rec.Outputs {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	var files []string
	for _, node := range nodes {
		for _, img := range rec.Outputs[node].Images {
			if img.Filename != "" {
				files = append(files, img.Filename)
			}
		}
	}
	return files
}

// HistorySource is the part of Client the poller needs.
type HistorySource interface {
	History(ctx context.Context, handle domain.JobHandle) (domain.HistoryRecord, error)
}

// Poller checks a job's history for produced images. With one attempt it is a
// single-shot check; with more it waits Interval between attempts.
type Poller struct {
	Source   HistorySource
	Attempts int
	Interval time.Duration
	Logger   zerolog.Logger
}

// Await returns the produced filenames, or an error wrapping
// domain.ErrNoResult, domain.ErrNoImages or domain.ErrEngineUnavailable from
// the last attempt.
func (p *Poller) Await(ctx context.Context, handle domain.JobHandle) ([]string, error) {
	if p == nil || p.Source == nil {
		return nil, fmt.Errorf("%w: poller not configured", domain.ErrEngineUnavailable)
	}
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var files []string
	attempt := 0
	op := func() error {
		attempt++
		record, err := p.Source.History(ctx, handle)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		found, ok := OutputImages(record, handle)
		if !ok {
			return fmt.Errorf("%w for job %s", domain.ErrNoImages, handle.PromptID)
		}
		files = found
		return nil
	}

	var policy backoff.BackOff = backoff.NewConstantBackOff(p.Interval)
	policy = backoff.WithMaxRetries(policy, uint64(attempts-1))
	policy = backoff.WithContext(policy, ctx)

	notify := func(err error, wait time.Duration) {
		p.Logger.Debug().Err(err).Str("prompt_id", handle.PromptID).Int("attempt", attempt).Dur("retry_in", wait).Msg("history not ready")
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", domain.ErrEngineUnavailable, err)
		}
		return nil, err
	}
	return files, nil
}
