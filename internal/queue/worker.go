package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dhruvparmar372/ossgard-sub002/models"
)

// Processor handles one job type.
type Processor interface {
	// Type returns the job type this processor handles.
	Type() string
	// Process runs the job. A nil return completes the job; an error
	// schedules a retry unless it was marked NonRetryable.
	Process(ctx context.Context, job *models.Job) (result string, err error)
}

const (
	idlePoll = time.Second
	busyPoll = 250 * time.Millisecond
)

// Worker polls the queue and dispatches claimed jobs to registered
// processors. Run one Worker with Count goroutines per process; more
// processes can share the same database safely.
type Worker struct {
	queue      *Queue
	logger     *slog.Logger
	processors map[string]Processor
	types      []string

	// Count is the number of concurrent polling goroutines.
	Count int

	// OnFinalFailure fires after a job exhausts its retries, before
	// the job row is marked failed. Used to fail the owning scan.
	OnFinalFailure func(ctx context.Context, job *models.Job, failure error)
}

// NewWorker creates a Worker over q with no processors registered.
func NewWorker(q *Queue, logger *slog.Logger) *Worker {
	return &Worker{
		queue:      q,
		logger:     logger,
		processors: make(map[string]Processor),
		Count:      1,
	}
}

// Register adds a processor. Registering two processors for the same
// type panics; that is a wiring bug, not a runtime condition.
func (w *Worker) Register(p Processor) {
	if _, dup := w.processors[p.Type()]; dup {
		panic(fmt.Sprintf("queue: duplicate processor for type %q", p.Type()))
	}
	w.processors[p.Type()] = p
	w.types = append(w.types, p.Type())
}

// Run polls until ctx is cancelled, then drains in-flight jobs and
// returns. Blocks the caller.
func (w *Worker) Run(ctx context.Context) {
	n := w.Count
	if n < 1 {
		n = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.loop(ctx, id)
		}(i)
	}
	wg.Wait()
}

func (w *Worker) loop(ctx context.Context, id int) {
	log := w.logger.With("worker", id)
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := w.queue.Claim(ctx, w.types, time.Now())
		if err != nil {
			log.Error("claim failed", "error", err)
			if !sleep(ctx, idlePoll) {
				return
			}
			continue
		}
		if job == nil {
			if !sleep(ctx, idlePoll) {
				return
			}
			continue
		}
		w.runJob(ctx, log, job)
		if !sleep(ctx, busyPoll) {
			return
		}
	}
}

// runJob executes one claimed job to a terminal queue transition. The
// job itself runs under context.Background so cancelling the worker
// does not poison an in-flight phase; the claim loop stops polling
// instead.
func (w *Worker) runJob(ctx context.Context, log *slog.Logger, job *models.Job) {
	proc := w.processors[job.Type]
	if proc == nil {
		// Claim filters on registered types, so this means the
		// registry changed under us. Put the job back.
		_ = w.queue.Release(ctx, job.ID, time.Now())
		return
	}

	log.Info("job started", "job", job.ID, "type", job.Type, "attempt", job.Attempts)
	start := time.Now()

	jobCtx := context.Background()
	result, err := proc.Process(jobCtx, job)
	if err == nil {
		if cerr := w.queue.Complete(jobCtx, job.ID, result); cerr != nil {
			log.Error("completing job failed", "job", job.ID, "error", cerr)
			return
		}
		log.Info("job done", "job", job.ID, "type", job.Type, "took", time.Since(start).Round(time.Millisecond))
		return
	}

	final := IsNonRetryable(err) || job.Attempts > job.MaxRetries
	if final && w.OnFinalFailure != nil {
		w.OnFinalFailure(jobCtx, job, err)
	}
	wasFinal, ferr := w.queue.Fail(jobCtx, job, err)
	if ferr != nil {
		log.Error("recording job failure failed", "job", job.ID, "error", ferr)
		return
	}
	if wasFinal {
		log.Error("job failed permanently", "job", job.ID, "type", job.Type, "attempts", job.Attempts, "error", err)
	} else {
		log.Warn("job failed, will retry", "job", job.ID, "type", job.Type, "attempt", job.Attempts, "error", err)
	}
}

// sleep waits d or until ctx is done; reports whether to keep running.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
