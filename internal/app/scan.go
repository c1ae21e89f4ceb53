package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raysh454/thumbscan/internal/catalog"
	"github.com/raysh454/thumbscan/internal/deadletter"
	"github.com/raysh454/thumbscan/internal/logging"
	"github.com/raysh454/thumbscan/internal/model"
	"github.com/raysh454/thumbscan/internal/validator"
)

// Lister returns every video id matching a filter.
type Lister interface {
	ListAll(ctx context.Context, f catalog.Filter) ([]string, error)
}

// Inspector checks a single video.
type Inspector interface {
	Inspect(ctx context.Context, id string) (validator.Verdict, error)
}

// ProgressFunc is called after each checked video.
type ProgressFunc func(processed, total int)

type ScannerOptions struct {
	Concurrency int
	ErrorPolicy ErrorPolicy

	// DeadLetters receives ids whose check errored under PolicySkip. Nil
	// disables queueing.
	DeadLetters deadletter.Sink
}

// Scanner lists the catalog once and checks every listed video.
type Scanner struct {
	lister      Lister
	inspector   Inspector
	deadLetters deadletter.Sink
	workers     int
	policy      ErrorPolicy
	logger      logging.Logger
}

func NewScanner(lister Lister, inspector Inspector, opts ScannerOptions, logger logging.Logger) (*Scanner, error) {
	if lister == nil || inspector == nil {
		return nil, errors.New("scanner: lister and inspector are required")
	}
	policy, err := ParseErrorPolicy(string(opts.ErrorPolicy))
	if err != nil {
		return nil, err
	}
	workers := opts.Concurrency
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Scanner{
		lister:      lister,
		inspector:   inspector,
		deadLetters: opts.DeadLetters,
		workers:     workers,
		policy:      policy,
		logger:      logger.With(logging.Field{Key: "component", Value: "scanner"}),
	}, nil
}

// Run performs a full scan.
func (s *Scanner) Run(ctx context.Context, f catalog.Filter) (*model.Report, error) {
	return s.RunWithProgress(ctx, f, nil)
}

// RunWithProgress is Run with a per-video progress callback. A listing
// failure reported by the server aborts the scan.
func (s *Scanner) RunWithProgress(ctx context.Context, f catalog.Filter, progress ProgressFunc) (*model.Report, error) {
	report := &model.Report{
		ID:        uuid.New().String(),
		StartedAt: time.Now().UTC(),
	}
	if b, err := json.Marshal(f); err == nil {
		report.Filter = string(b)
	}
	logger := s.logger.With(logging.Field{Key: "scan_id", Value: report.ID})
	logger.Info("scan started", logging.Field{Key: "workers", Value: s.workers})

	ids, err := s.lister.ListAll(ctx, f)
	if err != nil {
		logger.Error("listing failed", logging.Field{Key: "error", Value: err})
		return nil, fmt.Errorf("list catalog: %w", err)
	}
	report.Total = len(ids)

	if err := s.checkAll(ctx, report, ids, progress); err != nil {
		logger.Error("scan aborted", logging.Field{Key: "error", Value: err})
		return nil, err
	}

	report.NormalizeDefects()
	report.FinishedAt = time.Now().UTC()
	report.ElapsedMS = report.FinishedAt.Sub(report.StartedAt).Milliseconds()

	logger.Info("scan finished",
		logging.Field{Key: "total", Value: report.Total},
		logging.Field{Key: "defects", Value: len(report.Defects)},
		logging.Field{Key: "errors", Value: len(report.Errors)},
		logging.Field{Key: "elapsed_ms", Value: report.ElapsedMS})
	return report, nil
}

type checkResult struct {
	id      string
	verdict validator.Verdict
	err     error
}

// checkAll fans ids out to a fixed worker pool and folds the results into
// report from the calling goroutine.
func (s *Scanner) checkAll(parent context.Context, report *model.Report, ids []string, progress ProgressFunc) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	jobs := make(chan string)
	results := make(chan checkResult, len(ids))

	workers := min(s.workers, max(len(ids), 1))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				v, err := s.inspector.Inspect(ctx, id)
				results <- checkResult{id: id, verdict: v, err: err}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	go func() {
		defer close(jobs)
		for _, id := range ids {
			select {
			case jobs <- id:
			case <-ctx.Done():
				return
			}
		}
	}()

	var (
		abortErr  error
		processed int
	)
	for r := range results {
		processed++
		if r.err != nil {
			if ctx.Err() != nil {
				continue
			}
			s.handleCheckError(ctx, report, r, &abortErr)
			if abortErr != nil {
				cancel()
			}
		} else {
			if r.verdict.Deleted {
				report.Deleted++
			}
			if r.verdict.Defective {
				report.Defects = append(report.Defects, r.id)
			}
		}
		if progress != nil {
			progress(processed, len(ids))
		}
	}

	if abortErr != nil {
		return abortErr
	}
	return parent.Err()
}

func (s *Scanner) handleCheckError(ctx context.Context, report *model.Report, r checkResult, abortErr *error) {
	s.logger.Warn("video check failed",
		logging.Field{Key: "scan_id", Value: report.ID},
		logging.Field{Key: "video_id", Value: r.id},
		logging.Field{Key: "policy", Value: string(s.policy)},
		logging.Field{Key: "error", Value: r.err})

	switch s.policy {
	case PolicyAbort:
		if *abortErr == nil {
			*abortErr = fmt.Errorf("check %s: %w", r.id, r.err)
		}
	case PolicyDefect:
		report.Errors = append(report.Errors, model.CheckError{VideoID: r.id, Error: r.err.Error()})
		report.Defects = append(report.Defects, r.id)
	default:
		report.Errors = append(report.Errors, model.CheckError{VideoID: r.id, Error: r.err.Error()})
		if s.deadLetters != nil {
			entry := deadletter.Entry{ScanID: report.ID, VideoID: r.id, Error: r.err.Error()}
			if err := s.deadLetters.Enqueue(ctx, entry); err != nil {
				s.logger.Error("failed to queue dead letter",
					logging.Field{Key: "video_id", Value: r.id},
					logging.Field{Key: "error", Value: err})
			}
		}
	}
}

// RedriveResult is the outcome of re-checking queued failures.
type RedriveResult struct {
	Stats   deadletter.RedriveStats `json:"stats"`
	Defects []string                `json:"defects"`
}

// Redrive re-checks every queued failure once. Checks that fail again are
// requeued by q.
func (s *Scanner) Redrive(ctx context.Context, q *deadletter.Queue) (*RedriveResult, error) {
	res := &RedriveResult{Defects: make([]string, 0)}
	stats, err := q.Redrive(ctx, func(ctx context.Context, e deadletter.Entry) error {
		v, err := s.inspector.Inspect(ctx, e.VideoID)
		if err != nil {
			return err
		}
		if v.Defective {
			res.Defects = append(res.Defects, e.VideoID)
		}
		return nil
	})
	res.Stats = stats
	if err != nil {
		return res, fmt.Errorf("redrive dead letters: %w", err)
	}
	s.logger.Info("dead letters redriven",
		logging.Field{Key: "processed", Value: stats.Processed},
		logging.Field{Key: "recovered", Value: stats.Recovered},
		logging.Field{Key: "defects", Value: len(res.Defects)})
	return res, nil
}
