// Package extract runs document extraction jobs: it accepts uploads,
// drives the extraction service through its parse and extract stages,
// and lands normalized results in the job store.
package extract

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/re-ink/intake/internal/model"
	"github.com/re-ink/intake/internal/store"
	"github.com/re-ink/intake/internal/upload"
	"github.com/re-ink/intake/pkg/ade"
)

// UpstreamError reports a failure from the extraction service itself,
// as opposed to a local failure reaching it.
type UpstreamError struct {
	TaskID  string
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("extraction service failed task %s: %s", e.TaskID, e.Message)
}

// Options tunes the background extraction workers.
type Options struct {
	MaxConcurrentJobs int
	PollInterval      time.Duration
	PollTimeout       time.Duration
}

// task is one queued extraction waiting for a worker.
type task struct {
	jobID    string
	filename string
	ref      upload.FileRef
}

// Orchestrator owns the lifecycle of extraction jobs. Submission is
// synchronous and fast; extraction runs on at most MaxConcurrentJobs
// workers draining a queue, and reports progress only through the job
// store.
type Orchestrator struct {
	jobs    store.JobStore
	client  ade.Client
	files   upload.Storage
	group   *errgroup.Group
	baseCtx context.Context
	opts    Options

	mu      sync.Mutex
	pending []task
	workers int
}

// New creates an orchestrator. ctx bounds all background work; cancel
// it to stop workers, then Wait for them to drain.
func New(ctx context.Context, jobs store.JobStore, client ade.Client, files upload.Storage, opts Options) *Orchestrator {
	if opts.MaxConcurrentJobs <= 0 {
		opts.MaxConcurrentJobs = 4
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 5 * time.Minute
	}
	return &Orchestrator{
		jobs:    jobs,
		client:  client,
		files:   files,
		group:   &errgroup.Group{},
		baseCtx: ctx,
		opts:    opts,
	}
}

// Wait blocks until all in-flight extraction workers finish.
func (o *Orchestrator) Wait() error {
	return o.group.Wait()
}

// Submit records a new job and schedules extraction in the background.
// The returned job is in the submitted state.
func (o *Orchestrator) Submit(ctx context.Context, filename string, ref upload.FileRef) (*model.ExtractionJob, error) {
	job, err := o.jobs.CreateJob(ctx, model.ExtractionJob{
		Status:   model.JobStatusSubmitted,
		Message:  "Document received, extraction queued",
		Filename: filename,
		FileRef:  string(ref),
	})
	if err != nil {
		return nil, err
	}

	o.schedule(task{jobID: job.ID, filename: filename, ref: ref})
	return job, nil
}

// schedule queues the task and spawns a worker when a slot is free.
// It never blocks: with all workers busy the task sits in the queue
// until one of them picks it up.
func (o *Orchestrator) schedule(t task) {
	o.mu.Lock()
	o.pending = append(o.pending, t)
	spawn := o.workers < o.opts.MaxConcurrentJobs
	if spawn {
		o.workers++
	}
	o.mu.Unlock()

	if spawn {
		o.group.Go(o.work)
	}
}

// work drains the queue and exits when it is empty. The pop and the
// worker count change share one lock, so a task queued after the last
// pop always gets a fresh worker.
func (o *Orchestrator) work() error {
	for {
		o.mu.Lock()
		if len(o.pending) == 0 {
			o.workers--
			o.mu.Unlock()
			return nil
		}
		t := o.pending[0]
		o.pending = o.pending[1:]
		o.mu.Unlock()

		o.runJob(t.jobID, t.filename, t.ref)
	}
}

// Status returns the current job record.
func (o *Orchestrator) Status(ctx context.Context, jobID string) (*model.ExtractionJob, error) {
	return o.jobs.GetJob(ctx, jobID)
}

// Recent lists the latest jobs, newest first.
func (o *Orchestrator) Recent(ctx context.Context, n int) ([]model.ExtractionJob, error) {
	return o.jobs.ListRecentJobs(ctx, n)
}

// runJob drives one document through the extraction service. Every
// outcome lands in the job store; worker errors never propagate.
func (o *Orchestrator) runJob(jobID, filename string, ref upload.FileRef) {
	ctx, cancel := context.WithTimeout(o.baseCtx, o.opts.PollTimeout)
	defer cancel()

	log := zap.L().With(zap.String("job_id", jobID), zap.String("filename", filename))

	if err := o.jobs.MarkJobProcessing(ctx, jobID, "Extraction in progress"); err != nil {
		log.Error("mark processing failed", zap.Error(err))
		return
	}

	raw, err := o.extract(ctx, ref)

	// The poll deadline must not take the terminal write down with it;
	// a timed-out job still has to land in failed.
	wctx, wcancel := context.WithTimeout(context.WithoutCancel(o.baseCtx), 10*time.Second)
	defer wcancel()

	if err != nil {
		log.Warn("extraction failed", zap.Error(err))
		if ferr := o.jobs.FailJob(wctx, jobID, eris.Cause(err).Error()); ferr != nil {
			log.Error("fail job write failed", zap.Error(ferr))
		}
		o.cleanup(ref, log)
		return
	}

	result := Normalize(raw)
	if err := o.jobs.CompleteJob(wctx, jobID, result, "Extraction completed"); err != nil {
		log.Error("complete job write failed", zap.Error(err))
		return
	}
	log.Info("extraction completed",
		zap.Int("contract_fields", len(result.ContractData)),
		zap.Int("parties", len(result.PartiesData)),
	)
	o.cleanup(ref, log)
}

func (o *Orchestrator) cleanup(ref upload.FileRef, log *zap.Logger) {
	if err := o.files.Remove(ref); err != nil {
		log.Warn("upload cleanup failed", zap.Error(err))
	}
}

// extract submits the document and polls until the upstream task
// settles or the context expires.
func (o *Orchestrator) extract(ctx context.Context, ref upload.FileRef) (map[string]any, error) {
	f, err := o.files.Open(ref)
	if err != nil {
		return nil, err
	}
	taskID, err := o.client.Submit(ctx, f, string(ref))
	if cerr := f.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(o.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, eris.Errorf("extraction task %s timed out after %s", taskID, o.opts.PollTimeout)
		case <-ticker.C:
		}

		status, err := o.client.PollStatus(ctx, taskID)
		if err != nil {
			return nil, err
		}
		switch status.State {
		case ade.TaskCompleted:
			return o.client.FetchResult(ctx, taskID)
		case ade.TaskFailed:
			msg := status.Message
			if msg == "" {
				msg = "no detail provided"
			}
			return nil, &UpstreamError{TaskID: taskID, Message: msg}
		}
	}
}
