package internal

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const maxConcurrency = 64 // keeps open handles bounded

// DefaultConcurrency scales with CPU, capped to avoid handle exhaustion.
func DefaultConcurrency() int {
	return min(runtime.GOMAXPROCS(0)*4, maxConcurrency)
}

// UnitSearch scans one path and streams its results. An error element is
// treated by the pipeline as a worker fault.
type UnitSearch func(ctx context.Context, path string) iter.Seq2[SearchResult, error]

// State of a pipeline run. Completed, Cancelled and Faulted are terminal
// and only published once every goroutine of the run has exited.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateCancelled
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFaulted:
		return "faulted"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Pipeline walks a tree and scans the files it finds with a fixed pool of
// workers. A Pipeline may be reused; each Run gets its own queue and pool.
type Pipeline struct {
	Filter EnumerationFilter // nil - all files
	Search UnitSearch
	// Concurrency is the number of workers; <= 0 uses DefaultConcurrency.
	Concurrency int
	// StopAfterFirstMatch lets exactly one result through and then ends the
	// run as completed. It is unrelated to SearchOptions.StopWhenFound.
	StopAfterFirstMatch bool
	// Stats, if set, is updated during the run.
	Stats *AppStats
	// StatsInterval is the period of the progress log line; 0 disables it.
	StatsInterval time.Duration
}

// Run is one execution of a Pipeline. Results must be consumed through
// All (once) or the run cancelled, otherwise its workers stay blocked.
type Run struct {
	ID   string
	Root string

	results chan SearchResult
	done    chan struct{}
	cancel  context.CancelCauseFunc
	state   atomic.Int32
	err     error
}

// Run validates root and starts the producer and the workers.
// A missing root is reported as ErrPathNotFound before anything starts.
func (p *Pipeline) Run(ctx context.Context, root string) (*Run, error) {
	if p.Search == nil {
		return nil, errors.New("pipeline: no unit search")
	}
	runCtx, cancel := context.WithCancelCause(ctx)
	paths, err := EnumerateFiles(runCtx, root, p.Filter)
	if err != nil {
		cancel(err)
		return nil, err
	}

	concurrency := p.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency()
	}
	stats := p.Stats
	if stats == nil {
		stats = &AppStats{}
	}

	r := &Run{
		ID:      uuid.NewString(),
		Root:    root,
		results: make(chan SearchResult),
		done:    make(chan struct{}),
		cancel:  cancel,
	}
	pool, err := ants.NewPoolWithFunc(concurrency, r.worker(runCtx, p, stats),
		ants.WithPanicHandler(func(v any) {
			logrus.WithFields(logrus.Fields{"run": r.ID, "panic": v}).Error("pool panic")
		}))
	if err != nil {
		cancel(err)
		return nil, fmt.Errorf("pool: %w", err)
	}

	r.state.Store(int32(StateRunning))
	go r.execute(runCtx, p, paths, pool, concurrency, stats)
	return r, nil
}

type workItem struct {
	path string
	wg   *sync.WaitGroup
}

func (r *Run) worker(ctx context.Context, p *Pipeline, stats *AppStats) func(any) {
	var firstHit atomic.Bool
	return func(i any) {
		it := i.(workItem)
		defer it.wg.Done()
		// the fault must be recorded before the WaitGroup lets teardown run
		defer func() {
			if v := recover(); v != nil {
				r.cancel(fmt.Errorf("%w: panic: %s: %v", ErrWorkerFault, it.path, v))
			}
		}()
		if ctx.Err() != nil {
			return
		}
		stats.FilesProcessed.Add(1)
		for res, err := range p.Search(ctx, it.path) {
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				r.cancel(fmt.Errorf("%w: %s: %w", ErrWorkerFault, it.path, err))
				return
			}
			if p.StopAfterFirstMatch && !firstHit.CompareAndSwap(false, true) {
				return
			}
			select {
			case r.results <- res:
				stats.Matches.Add(1)
			case <-ctx.Done():
				return
			}
			if p.StopAfterFirstMatch {
				r.cancel(errFirstMatch)
				return
			}
		}
	}
}

func (r *Run) execute(
	ctx context.Context,
	p *Pipeline,
	paths iter.Seq[string],
	pool *ants.PoolWithFunc,
	concurrency int,
	stats *AppStats,
) {
	log := logrus.WithFields(logrus.Fields{"run": r.ID, "root": r.Root})
	log.WithField("workers", concurrency).Debug("run started")

	queue := make(chan string, max(2*concurrency, 1))
	var wg sync.WaitGroup
	var g errgroup.Group

	// producer
	g.Go(func() error {
		defer close(queue)
		for path := range paths {
			stats.FilesFound.Add(1)
			select {
			case queue <- path:
			case <-ctx.Done():
				return nil
			}
		}
		return nil
	})

	// dispatcher; after cancellation it only drains the queue
	g.Go(func() error {
		var submitErr error
		for path := range queue {
			if ctx.Err() != nil {
				continue
			}
			wg.Add(1)
			if err := pool.Invoke(workItem{path: path, wg: &wg}); err != nil {
				wg.Done()
				submitErr = fmt.Errorf("%w: submit %s: %w", ErrWorkerFault, path, err)
				r.cancel(submitErr)
			}
		}
		return submitErr
	})

	stopTicker := r.logStats(log, p.StatsInterval, stats)

	_ = g.Wait()
	wg.Wait()
	pool.Release()
	stopTicker()

	r.finish(ctx)
	log.WithFields(logrus.Fields{
		"state":     r.State(),
		"found":     stats.FilesFound.Load(),
		"processed": stats.FilesProcessed.Load(),
		"matches":   stats.Matches.Load(),
	}).Debug("run finished")
}

// logStats logs a progress line every interval until the returned func is called.
func (r *Run) logStats(log *logrus.Entry, interval time.Duration, stats *AppStats) func() {
	if interval <= 0 {
		return func() {}
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				log.Infof("Stats: found=%d processed=%d matches=%d errors=%d",
					stats.FilesFound.Load(), stats.FilesProcessed.Load(), stats.Matches.Load(), stats.Errors.Load())
			}
		}
	}()
	return func() {
		close(stop)
		<-done
	}
}

func (r *Run) finish(ctx context.Context) {
	state := StateCompleted
	if ctx.Err() != nil {
		switch cause := context.Cause(ctx); {
		case errors.Is(cause, errFirstMatch):
		case errors.Is(cause, ErrWorkerFault):
			state = StateFaulted
			r.err = cause
		default:
			state = StateCancelled
		}
	}
	r.cancel(nil)
	r.state.Store(int32(state))
	close(r.results)
	close(r.done)
}

// All streams the results of the run. A fault is yielded once, after
// teardown, as the last element. Cancellation simply ends the sequence.
// Breaking out of the loop cancels the run and waits for its teardown.
func (r *Run) All() iter.Seq2[SearchResult, error] {
	return func(yield func(SearchResult, error) bool) {
		for res := range r.results {
			if !yield(res, nil) {
				r.Cancel()
				for range r.results {
				}
				return
			}
		}
		<-r.done
		if r.err != nil {
			yield(SearchResult{}, r.err)
		}
	}
}

// Cancel stops the run. It does not wait for teardown.
func (r *Run) Cancel() { r.cancel(nil) }

// Done is closed once the run has fully terminated.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run terminates and returns its fault, if any.
// Results not consumed by then are discarded.
func (r *Run) Wait() error {
	for range r.results {
	}
	<-r.done
	return r.err
}

// Err returns the fault of a terminated run, nil otherwise.
func (r *Run) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

func (r *Run) State() State { return State(r.state.Load()) }

// Dispatcher is the standard UnitSearch: archives go to SearchArchive,
// everything else to SearchFile.
type Dispatcher struct {
	matcher LineMatcher
	entries ArchiveEntryFilter
	opts    SearchOptions
	isolate bool
	stats   *AppStats
}

// NewDispatcher builds a Dispatcher. With isolate, a file that cannot be
// read is logged and counted instead of faulting the run.
func NewDispatcher(m LineMatcher, entries ArchiveEntryFilter, opts SearchOptions, isolate bool, stats *AppStats) *Dispatcher {
	if stats == nil {
		stats = &AppStats{}
	}
	user := opts.OnExtract
	opts.OnExtract = func(dst string, err error) {
		if err != nil {
			stats.ExtractErrors.Add(1)
		} else {
			stats.Extracted.Add(1)
		}
		if user != nil {
			user(dst, err)
		}
	}
	return &Dispatcher{matcher: m, entries: entries, opts: opts, isolate: isolate, stats: stats}
}

func (d *Dispatcher) Search(ctx context.Context, path string) iter.Seq2[SearchResult, error] {
	var seq iter.Seq2[SearchResult, error]
	if IsArchive(path) {
		seq = SearchArchive(ctx, path, d.matcher, d.entries, d.opts)
	} else {
		seq = SearchFile(ctx, path, d.matcher, d.opts)
	}
	if !d.isolate {
		return seq
	}
	return func(yield func(SearchResult, error) bool) {
		for res, err := range seq {
			if err != nil {
				d.stats.Errors.Add(1)
				logrus.WithFields(logrus.Fields{"file": path, "err": err}).Warn("process error")
				return
			}
			if !yield(res, nil) {
				return
			}
		}
	}
}
