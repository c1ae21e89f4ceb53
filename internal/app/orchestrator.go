package app

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raysh454/thumbscan/internal/catalog"
	"github.com/raysh454/thumbscan/internal/deadletter"
	"github.com/raysh454/thumbscan/internal/logging"
	"github.com/raysh454/thumbscan/internal/model"
)

var (
	ErrJobNotFound      = errors.New("job not found")
	ErrHistoryDisabled  = errors.New("report history is disabled")
	ErrOrchestratorDone = errors.New("orchestrator is closed")
)

type JobEventType string

const (
	JobEventStatus   JobEventType = "status"
	JobEventProgress JobEventType = "progress"
	JobEventResult   JobEventType = "result"
)

type JobEvent struct {
	JobID string       `json:"job_id"`
	Type  JobEventType `json:"type"`

	// For status changes
	Status JobStatus `json:"status,omitempty"`
	Error  string    `json:"error,omitempty"`

	// For progress
	Processed int `json:"processed,omitempty"`
	Total     int `json:"total,omitempty"`

	// For results
	ReportID string `json:"report_id,omitempty"`
	Defects  int    `json:"defects,omitempty"`
}

type JobStatus string

const (
	JobPending  JobStatus = "pending"
	JobRunning  JobStatus = "running"
	JobDone     JobStatus = "done"
	JobFailed   JobStatus = "failed"
	JobCanceled JobStatus = "canceled"
)

// Terminal reports whether no further transitions can happen.
func (s JobStatus) Terminal() bool {
	return s == JobDone || s == JobFailed || s == JobCanceled
}

type Job struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Filter    catalog.Filter `json:"filter"`
	Status    JobStatus      `json:"status"`
	Error     string         `json:"error,omitempty"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   time.Time      `json:"ended_at"`
	Processed int            `json:"processed"`
	Total     int            `json:"total"`
	Events    chan JobEvent  `json:"-"`

	Report *model.Report `json:"report,omitempty"`
}

// ReportStore keeps finished reports.
type ReportStore interface {
	SaveReport(ctx context.Context, r *model.Report) error
	GetReport(ctx context.Context, id string) (*model.Report, error)
	ListReports(ctx context.Context, limit int) ([]model.ReportSummary, error)
	LatestReport(ctx context.Context) (*model.Report, error)
	DiffReports(ctx context.Context, baseID, headID string) (*model.ReportDiff, error)
}

// Orchestrator runs scans as background jobs and exposes report history.
type Orchestrator struct {
	cfg         *Config
	scanner     *Scanner
	reports     ReportStore
	deadLetters *deadletter.Queue
	logger      logging.Logger

	jobsMu     sync.Mutex
	jobs       map[string]*Job
	jobCancels map[string]context.CancelFunc
	closed     bool
	running    sync.WaitGroup
}

// NewOrchestrator wires a scanner to optional report history and dead letter
// queue. reports and deadLetters may be nil.
func NewOrchestrator(cfg *Config, scanner *Scanner, reports ReportStore, deadLetters *deadletter.Queue, logger logging.Logger) *Orchestrator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Orchestrator{
		cfg:         cfg,
		scanner:     scanner,
		reports:     reports,
		deadLetters: deadLetters,
		logger:      logger.With(logging.Field{Key: "component", Value: "orchestrator"}),
		jobs:        make(map[string]*Job),
		jobCancels:  make(map[string]context.CancelFunc),
	}
}

func (o *Orchestrator) emitJobEvent(job *Job, ev JobEvent) {
	// Non-blocking send; drop if buffer is full.
	select {
	case job.Events <- ev:
	default:
	}
}

// update mutates the job under the lock.
func (o *Orchestrator) update(jobID string, fn func(j *Job)) {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	if j, ok := o.jobs[jobID]; ok {
		fn(j)
	}
}

func (o *Orchestrator) setStatus(job *Job, status JobStatus, errMsg string) {
	o.update(job.ID, func(j *Job) {
		j.Status = status
		j.Error = errMsg
	})
	o.emitJobEvent(job, JobEvent{JobID: job.ID, Type: JobEventStatus, Status: status, Error: errMsg})
}

// StartScanJob runs a scan in the background. The job stops when ctx is
// canceled, CancelJob is called, or the orchestrator is closed. A nil filter
// uses the configured default.
func (o *Orchestrator) StartScanJob(ctx context.Context, f *catalog.Filter) (*Job, error) {
	filter := o.cfg.Filter
	if f != nil {
		filter = *f
	}

	job := &Job{
		ID:        uuid.New().String(),
		Type:      "scan",
		Filter:    filter,
		Status:    JobPending,
		StartedAt: time.Now().UTC(),
		Events:    make(chan JobEvent, 64),
	}
	jobCtx, cancel := context.WithCancel(ctx)

	o.jobsMu.Lock()
	if o.closed {
		o.jobsMu.Unlock()
		cancel()
		return nil, ErrOrchestratorDone
	}
	o.jobs[job.ID] = job
	o.jobCancels[job.ID] = cancel
	o.running.Add(1)
	snapshot := *job
	o.jobsMu.Unlock()

	o.emitJobEvent(job, JobEvent{JobID: job.ID, Type: JobEventStatus, Status: JobPending})
	o.logger.Info("scan job queued", logging.Field{Key: "job_id", Value: job.ID})

	go o.runScanJob(jobCtx, job)
	return &snapshot, nil
}

func (o *Orchestrator) runScanJob(ctx context.Context, job *Job) {
	defer func() {
		o.jobsMu.Lock()
		job.EndedAt = time.Now().UTC()
		if cancel := o.jobCancels[job.ID]; cancel != nil {
			cancel()
		}
		delete(o.jobCancels, job.ID)
		o.jobsMu.Unlock()

		// Close events channel so websocket loop can terminate cleanly
		close(job.Events)
		o.running.Done()
	}()

	o.setStatus(job, JobRunning, "")

	report, err := o.scanner.RunWithProgress(ctx, job.Filter, func(processed, total int) {
		o.update(job.ID, func(j *Job) {
			j.Processed = processed
			j.Total = total
		})
		o.emitJobEvent(job, JobEvent{JobID: job.ID, Type: JobEventProgress, Processed: processed, Total: total})
	})
	if err != nil {
		if ctx.Err() != nil {
			o.setStatus(job, JobCanceled, ctx.Err().Error())
			return
		}
		o.logger.Error("scan job failed",
			logging.Field{Key: "job_id", Value: job.ID},
			logging.Field{Key: "error", Value: err})
		o.setStatus(job, JobFailed, err.Error())
		return
	}

	if o.reports != nil {
		if err := o.reports.SaveReport(context.WithoutCancel(ctx), report); err != nil {
			o.logger.Error("failed to save report",
				logging.Field{Key: "job_id", Value: job.ID},
				logging.Field{Key: "report_id", Value: report.ID},
				logging.Field{Key: "error", Value: err})
		}
	}

	o.update(job.ID, func(j *Job) {
		j.Status = JobDone
		j.Report = report
		j.Total = report.Total
	})
	o.emitJobEvent(job, JobEvent{
		JobID:    job.ID,
		Type:     JobEventResult,
		Status:   JobDone,
		ReportID: report.ID,
		Defects:  len(report.Defects),
	})
}

// CancelJob stops a running job. Canceling a finished job is a no-op.
func (o *Orchestrator) CancelJob(jobID string) error {
	o.jobsMu.Lock()
	_, known := o.jobs[jobID]
	cancel := o.jobCancels[jobID]
	o.jobsMu.Unlock()
	if !known {
		return ErrJobNotFound
	}
	if cancel != nil {
		cancel()
	}
	return nil
}

// GetJob returns a snapshot of the job. The Events channel is shared.
func (o *Orchestrator) GetJob(jobID string) (*Job, error) {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	j, ok := o.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

// ListJobs returns snapshots of every job, newest first.
func (o *Orchestrator) ListJobs() []*Job {
	o.jobsMu.Lock()
	out := make([]*Job, 0, len(o.jobs))
	for _, j := range o.jobs {
		cp := *j
		out = append(out, &cp)
	}
	o.jobsMu.Unlock()

	sort.Slice(out, func(a, b int) bool { return out[a].StartedAt.After(out[b].StartedAt) })
	return out
}

// Close cancels running jobs and waits for them to stop.
func (o *Orchestrator) Close() error {
	o.jobsMu.Lock()
	o.closed = true
	for _, cancel := range o.jobCancels {
		cancel()
	}
	o.jobsMu.Unlock()
	o.running.Wait()
	return nil
}

// RunScan runs a scan in the foreground and saves the report.
func (o *Orchestrator) RunScan(ctx context.Context, f *catalog.Filter) (*model.Report, error) {
	filter := o.cfg.Filter
	if f != nil {
		filter = *f
	}
	report, err := o.scanner.Run(ctx, filter)
	if err != nil {
		return nil, err
	}
	if o.reports != nil {
		if err := o.reports.SaveReport(ctx, report); err != nil {
			o.logger.Error("failed to save report", logging.Field{Key: "error", Value: err})
		}
	}
	return report, nil
}

func (o *Orchestrator) ListReports(ctx context.Context, limit int) ([]model.ReportSummary, error) {
	if o.reports == nil {
		return nil, ErrHistoryDisabled
	}
	return o.reports.ListReports(ctx, limit)
}

func (o *Orchestrator) GetReport(ctx context.Context, id string) (*model.Report, error) {
	if o.reports == nil {
		return nil, ErrHistoryDisabled
	}
	return o.reports.GetReport(ctx, id)
}

func (o *Orchestrator) LatestReport(ctx context.Context) (*model.Report, error) {
	if o.reports == nil {
		return nil, ErrHistoryDisabled
	}
	return o.reports.LatestReport(ctx)
}

func (o *Orchestrator) DiffReports(ctx context.Context, baseID, headID string) (*model.ReportDiff, error) {
	if o.reports == nil {
		return nil, ErrHistoryDisabled
	}
	return o.reports.DiffReports(ctx, baseID, headID)
}

// RedriveDeadLetters re-checks queued failures once.
func (o *Orchestrator) RedriveDeadLetters(ctx context.Context) (*RedriveResult, error) {
	return o.scanner.Redrive(ctx, o.deadLetters)
}

// DeadLetterCount is the number of queued failures.
func (o *Orchestrator) DeadLetterCount(ctx context.Context) (int64, error) {
	return o.deadLetters.Len(ctx)
}
