// Package scheduler implements C4, the Rate-Limited Scheduler: the heart
// of the system (spec §4.4). It owns admission, the fixed worker pool,
// per-resource quiet windows, and the drain barrier that gates the
// applier.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kgraph/enrich/internal/extract"
	"github.com/kgraph/enrich/internal/frontier"
	"github.com/kgraph/enrich/internal/job"
	"github.com/kgraph/enrich/internal/metadata"
	"github.com/kgraph/enrich/internal/urlclassify"
	"github.com/kgraph/enrich/pkg/failure"
)

/*
 Scheduler is the sole control-plane authority of the run (same role the
 teacher's crawl scheduler held over its own frontier): only this package
 decides whether a job runs next; extractors only classify their own
 outcome, never retry/continue/abort it themselves.

 Invariants:
  - a job_id settles into exactly one terminal bucket, COMPLETED or FAILED;
  - the pending-update set is append-only until drain; the applier is the
    only reader, and only after Drain returns.
*/

type Config struct {
	MaxConcurrent    int
	MaxQueueSize     int
	RetryDelay       time.Duration // default quiet window when Retry-After absent
	MaxRetries       int
	ExtractorTimeout time.Duration
}

type Stats struct {
	mu sync.Mutex

	Submitted map[urlclassify.Kind]int
	Completed map[urlclassify.Kind]int
	Failed    map[urlclassify.Kind]int

	RateLimited int
	Retried     int
}

func newStats() *Stats {
	return &Stats{
		Submitted: map[urlclassify.Kind]int{},
		Completed: map[urlclassify.Kind]int{},
		Failed:    map[urlclassify.Kind]int{},
	}
}

func (s *Stats) incSubmitted(k urlclassify.Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Submitted[k]++
}
func (s *Stats) incCompleted(k urlclassify.Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Completed[k]++
}
func (s *Stats) incFailed(k urlclassify.Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Failed[k]++
}
func (s *Stats) incRateLimited() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RateLimited++
}
func (s *Stats) incRetried() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Retried++
}

func (s *Stats) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := newStats()
	for k, v := range s.Submitted {
		cp.Submitted[k] = v
	}
	for k, v := range s.Completed {
		cp.Completed[k] = v
	}
	for k, v := range s.Failed {
		cp.Failed[k] = v
	}
	cp.RateLimited = s.RateLimited
	cp.Retried = s.Retried
	return *cp
}

// PendingUpdateSet aggregates Extraction Records by owning node id. It is
// append-only during Drain and consumed exactly once afterward (spec §3).
type PendingUpdateSet struct {
	mu     sync.Mutex
	byNode map[string][]extract.Record
}

func newPendingUpdateSet() *PendingUpdateSet {
	return &PendingUpdateSet{byNode: map[string][]extract.Record{}}
}

func (p *PendingUpdateSet) append(nodeID string, rec extract.Record) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byNode[nodeID] = append(p.byNode[nodeID], rec)
}

// Drain returns the accumulated records and clears the set. Only the
// applier calls this, once, after the scheduler's own Drain has returned.
func (p *PendingUpdateSet) Drain() map[string][]extract.Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.byNode
	p.byNode = map[string][]extract.Record{}
	return out
}

type Scheduler struct {
	cfg        Config
	extractors map[urlclassify.Kind]extract.Extractor
	recorder   metadata.Recorder

	queueMu sync.Mutex
	queues  [3]*frontier.FIFOQueue[job.URLJob] // 0=HIGH 1=NORMAL 2=LOW

	gatesMu sync.Mutex
	gates   map[job.ResourceKey]*ResourceGate

	admittedMu sync.Mutex
	admitted   frontier.Set[string]

	statusMu sync.Mutex
	statuses map[string]job.Status

	runMu   sync.Mutex
	running int64

	ownersMu sync.Mutex
	owners   map[string][]string // job_id -> every owning node id that referenced it

	pending *PendingUpdateSet
	stats   *Stats
}

func New(cfg Config, extractors map[urlclassify.Kind]extract.Extractor, recorder metadata.Recorder) *Scheduler {
	return &Scheduler{
		cfg:        cfg,
		extractors: extractors,
		recorder:   recorder,
		queues: [3]*frontier.FIFOQueue[job.URLJob]{
			frontier.NewFIFOQueue[job.URLJob](),
			frontier.NewFIFOQueue[job.URLJob](),
			frontier.NewFIFOQueue[job.URLJob](),
		},
		gates:    map[job.ResourceKey]*ResourceGate{},
		admitted: frontier.NewSet[string](),
		statuses: map[string]job.Status{},
		owners:   map[string][]string{},
		pending:  newPendingUpdateSet(),
		stats:    newStats(),
	}
}

// Submit admits j exactly once per job_id (dedup) and bounded by
// max_queue_size. It is only ever called during the Scan phase, before
// Drain starts — single-goroutine, so no further locking discipline is
// needed around the bound check itself.
//
// Two nodes can reference the same URL, producing two job.URLJob values
// that share a job_id but carry different OwningNodeID. Only the first
// is ever queued/run, but every owner is recorded regardless of whether
// Submit admits or dedups — so a completed job's record reaches every
// node that referenced it, not just the one whose job struct happened to
// execute (spec S3).
func (s *Scheduler) Submit(j job.URLJob) bool {
	s.addOwner(j.ID, j.OwningNodeID)

	s.admittedMu.Lock()
	if s.admitted.Contains(j.ID) {
		s.admittedMu.Unlock()
		return false
	}
	if s.totalQueued() >= s.cfg.MaxQueueSize {
		s.admittedMu.Unlock()
		return false
	}
	s.admitted.Add(j.ID)
	s.admittedMu.Unlock()

	s.setStatus(j.ID, job.StatusPending)
	s.enqueue(j)
	s.stats.incSubmitted(j.Kind)
	return true
}

func (s *Scheduler) addOwner(jobID, nodeID string) {
	s.ownersMu.Lock()
	defer s.ownersMu.Unlock()
	for _, id := range s.owners[jobID] {
		if id == nodeID {
			return
		}
	}
	s.owners[jobID] = append(s.owners[jobID], nodeID)
}

func (s *Scheduler) ownersFor(jobID string) []string {
	s.ownersMu.Lock()
	defer s.ownersMu.Unlock()
	return append([]string(nil), s.owners[jobID]...)
}

func (s *Scheduler) enqueue(j job.URLJob) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	s.queues[queueIndex(j.Priority)].Enqueue(j)
}

func queueIndex(p urlclassify.Priority) int {
	switch p {
	case urlclassify.PriorityHigh:
		return 0
	case urlclassify.PriorityNormal:
		return 1
	default:
		return 2
	}
}

func (s *Scheduler) totalQueued() int {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	return s.queues[0].Size() + s.queues[1].Size() + s.queues[2].Size()
}

// dequeueEligible implements the selection policy of spec §4.4: scan
// HIGH, then NORMAL, then LOW for the first job whose deadline has passed
// and whose resource gate is open; ineligible jobs are re-enqueued at the
// tail of their own queue, and scanning continues within that queue
// before moving to the next priority.
func (s *Scheduler) dequeueEligible(now time.Time) (job.URLJob, bool) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	for _, q := range s.queues {
		n := q.Size()
		for i := 0; i < n; i++ {
			candidate, ok := q.Dequeue()
			if !ok {
				break
			}
			gate := s.gateForLocked(candidate.Resource())
			if candidate.NextEligibleAt.After(now) || !gate.Admit(now) {
				q.Enqueue(candidate)
				continue
			}
			return candidate, true
		}
	}
	return job.URLJob{}, false
}

// gateForLocked is safe to call while queueMu is held: it only ever takes
// gatesMu, a distinct lock, so no ordering cycle is introduced.
func (s *Scheduler) gateForLocked(key job.ResourceKey) *ResourceGate {
	s.gatesMu.Lock()
	defer s.gatesMu.Unlock()
	g, ok := s.gates[key]
	if !ok {
		g = NewResourceGate(string(key), s.cfg.RetryDelay/10)
		s.gates[key] = g
	}
	return g
}

func (s *Scheduler) setStatus(id string, st job.Status) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.statuses[id] = st
}

func (s *Scheduler) Status(id string) (job.Status, bool) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	st, ok := s.statuses[id]
	return st, ok
}

func (s *Scheduler) addRunning(delta int64) {
	s.runMu.Lock()
	s.running += delta
	s.runMu.Unlock()
}

func (s *Scheduler) runningCount() int64 {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.running
}

// Drain runs the fixed worker pool to completion: every queue empty and
// no worker executing (spec §4.4). It returns cancelled=true if ctx was
// cancelled before the natural drain condition was reached — a
// documented partial run (spec §5), not an error: the applier still runs
// against whatever pending updates are present.
func (s *Scheduler) Drain(ctx context.Context) (cancelled bool) {
	g, _ := errgroup.WithContext(context.Background())
	for i := 0; i < s.cfg.MaxConcurrent; i++ {
		g.Go(func() error {
			s.workerLoop(ctx)
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err() != nil
}

func (s *Scheduler) workerLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		j, ok := s.dequeueEligible(time.Now())
		if !ok {
			if s.totalQueued() == 0 && s.runningCount() == 0 {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}

		s.addRunning(1)
		s.setStatus(j.ID, job.StatusRunning)
		s.execute(ctx, j)
		s.addRunning(-1)
	}
}

func (s *Scheduler) execute(ctx context.Context, j job.URLJob) {
	gate := s.gateForLocked(j.Resource())
	gate.NoteRequest(time.Now())

	extractor, ok := s.extractors[j.Kind]
	if !ok {
		s.setStatus(j.ID, job.StatusFailed)
		s.stats.incFailed(j.Kind)
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ExtractorTimeout)
	started := time.Now()
	rec, cerr := extractor.Extract(callCtx, j.URL)
	cancel()

	s.recorder.RecordFetch(metadata.NewFetchEvent(j.URL, 0, time.Since(started), "", j.Attempts, string(j.Kind)))

	if cerr == nil {
		gate.Reset()
		gate.RecordOutcome(true)
		for _, nodeID := range s.ownersFor(j.ID) {
			s.pending.append(nodeID, rec)
		}
		s.setStatus(j.ID, job.StatusCompleted)
		s.stats.incCompleted(j.Kind)
		return
	}

	gate.RecordOutcome(false)
	s.recordExtractorError(j, cerr)

	switch e := cerr.(type) {
	case *failure.RateLimitedError:
		delay := s.cfg.RetryDelay
		if d, has := e.RetryAfter(); has {
			delay = d
		}
		gate.MarkLimited(time.Now().Add(delay))
		s.setStatus(j.ID, job.StatusRateLimited)
		s.stats.incRateLimited()
		s.retryOrFail(j, delay)
	case *failure.TransientError:
		s.stats.incRetried()
		delay := time.Duration(5*(j.Attempts+1)) * time.Second
		s.retryOrFail(j, delay)
	default:
		// Permanent, or any error shape outside the three-way taxonomy —
		// treated as non-retryable so draining still makes progress.
		s.setStatus(j.ID, job.StatusFailed)
		s.stats.incFailed(j.Kind)
	}
}

func (s *Scheduler) retryOrFail(j job.URLJob, delay time.Duration) {
	j.Attempts++
	if j.Attempts >= s.cfg.MaxRetries {
		s.setStatus(j.ID, job.StatusFailed)
		s.stats.incFailed(j.Kind)
		return
	}
	j.NextEligibleAt = time.Now().Add(delay)
	j.Status = job.StatusPending
	s.setStatus(j.ID, job.StatusPending)
	s.enqueue(j)
}

func (s *Scheduler) recordExtractorError(j job.URLJob, err failure.ClassifiedError) {
	s.recorder.RecordError(
		time.Now(),
		"scheduler",
		"Scheduler.execute",
		metadata.CauseExtractionFailure,
		fmt.Sprintf("job %s (%s %s): %v", j.ID, j.Kind, j.URL, err),
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrURL, j.URL),
		},
	)
}

func (s *Scheduler) PendingUpdates() map[string][]extract.Record {
	return s.pending.Drain()
}

func (s *Scheduler) StatsSnapshot() Stats {
	return s.stats.Snapshot()
}
