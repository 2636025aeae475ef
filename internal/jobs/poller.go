package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Harvey-AU/catalog-backoffice/internal/apperr"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// JobFailedError carries the server supplied reason a job failed
type JobFailedError struct {
	JobID   string
	Message string
}

func (e *JobFailedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("job %s failed", e.JobID)
	}
	return fmt.Sprintf("job %s failed: %s", e.JobID, e.Message)
}

func (e *JobFailedError) Unwrap() error { return apperr.ErrJobFailure }

// Poller watches curation jobs until they reach a terminal status
type Poller struct {
	fetcher    StatusFetcher
	interval   time.Duration
	timeout    time.Duration
	onTerminal func(job CurationJob)

	mu       sync.Mutex
	terminal map[string]CurationJob
}

// PollerOption configures a Poller
type PollerOption func(*Poller)

func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

func WithTimeout(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithOnTerminal registers a hook fired once per job when it first reaches
// a terminal status. Typically used to refresh listings.
func WithOnTerminal(fn func(job CurationJob)) PollerOption {
	return func(p *Poller) {
		p.onTerminal = fn
	}
}

// NewPoller creates a poller with a 3s interval and 300s timeout unless overridden
func NewPoller(fetcher StatusFetcher, opts ...PollerOption) *Poller {
	p := &Poller{
		fetcher:  fetcher,
		interval: DefaultPollInterval,
		timeout:  DefaultPollTimeout,
		terminal: make(map[string]CurationJob),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Poll blocks until jobID completes, fails, the timeout elapses or ctx is
// cancelled. The first status request is issued immediately. A timeout does
// not cancel the job server side.
func (p *Poller) Poll(ctx context.Context, jobID string) (*CurationJob, error) {
	return p.run(ctx, jobID, nil)
}

func (p *Poller) run(ctx context.Context, jobID string, updates chan CurationJob) (*CurationJob, error) {
	if job, ok := p.cached(jobID); ok {
		publish(updates, job)
		return outcome(job)
	}

	pollCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// stopped distinguishes our own deadline from the caller cancelling.
	stopped := func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fmt.Errorf("%w: job %s not finished after %s", apperr.ErrJobTimeout, jobID, p.timeout)
	}

	for {
		job, err := p.fetcher.GetJob(pollCtx, jobID)
		if err == nil && job == nil {
			err = fmt.Errorf("empty status response for job %s", jobID)
		}
		switch {
		case err == nil:
			publish(updates, *job)
			if job.Status.Terminal() {
				p.settle(*job)
				return outcome(*job)
			}
		case pollCtx.Err() != nil:
			return nil, stopped()
		case errors.Is(err, apperr.ErrNotFound):
			return nil, err
		default:
			// Transient; keep trying until the deadline.
			log.Warn().Err(err).Str("job_id", jobID).Msg("Failed to fetch job status")
		}

		select {
		case <-pollCtx.Done():
			return nil, stopped()
		case <-ticker.C:
		}
	}
}

// Cached returns the terminal state recorded for jobID, if any.
func (p *Poller) Cached(jobID string) (CurationJob, bool) {
	return p.cached(jobID)
}

func (p *Poller) cached(jobID string) (CurationJob, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	job, ok := p.terminal[jobID]
	return job, ok
}

// settle records the terminal state and fires the hook the first time only.
func (p *Poller) settle(job CurationJob) {
	p.mu.Lock()
	_, seen := p.terminal[job.ID]
	if !seen {
		p.terminal[job.ID] = job
	}
	p.mu.Unlock()

	if seen {
		return
	}
	log.Info().Str("job_id", job.ID).Str("status", string(job.Status)).Msg("Curation job reached terminal status")
	if p.onTerminal != nil {
		p.onTerminal(job)
	}
}

func outcome(job CurationJob) (*CurationJob, error) {
	if job.Status == JobStatusFailed {
		return &job, &JobFailedError{JobID: job.ID, Message: job.ErrorMessage}
	}
	return &job, nil
}

// publish keeps only the latest status in a one slot channel.
func publish(updates chan CurationJob, job CurationJob) {
	if updates == nil {
		return
	}
	select {
	case updates <- job:
		return
	default:
	}
	select {
	case <-updates:
	default:
	}
	select {
	case updates <- job:
	default:
	}
}

// Watch is a running poll loop owned by a caller such as a CLI view
type Watch struct {
	updates chan CurationJob
	done    chan struct{}
	cancel  context.CancelFunc

	job *CurationJob
	err error
}

// Start polls jobID in the background. Stop must be called (or ctx
// cancelled) when the owner goes away.
func (p *Poller) Start(ctx context.Context, jobID string) *Watch {
	ctx, cancel := context.WithCancel(ctx)
	w := &Watch{
		updates: make(chan CurationJob, 1),
		done:    make(chan struct{}),
		cancel:  cancel,
	}
	go func() {
		defer close(w.done)
		defer close(w.updates)
		defer cancel()
		w.job, w.err = p.run(ctx, jobID, w.updates)
	}()
	return w
}

// Updates delivers the most recent status seen. It is closed when polling ends.
func (w *Watch) Updates() <-chan CurationJob { return w.updates }

// Done is closed when polling ends.
func (w *Watch) Done() <-chan struct{} { return w.done }

// Stop cancels polling and waits for the loop to exit.
func (w *Watch) Stop() {
	w.cancel()
	<-w.done
}

// Result waits for polling to end and returns its outcome.
func (w *Watch) Result() (*CurationJob, error) {
	<-w.done
	return w.job, w.err
}

// PollResult is the outcome of one job in PollAll
type PollResult struct {
	JobID string
	Job   *CurationJob
	Err   error
}

// PollAll polls each job independently, at most limit at a time (0 means
// unbounded). A failing job never cuts the others short.
func (p *Poller) PollAll(ctx context.Context, jobIDs []string, limit int) []PollResult {
	results := make([]PollResult, len(jobIDs))
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, id := range jobIDs {
		g.Go(func() error {
			job, err := p.Poll(ctx, id)
			results[i] = PollResult{JobID: id, Job: job, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
