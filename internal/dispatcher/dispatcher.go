// Package dispatcher drives a collection run: it fans (city, year) tasks
// out to a bounded worker pool, walks the provider priority list for each
// task, and records every outcome in the checkpoint so an interrupted run
// resumes cleanly.
package dispatcher

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"weathercollect/pkg/cache"
	"weathercollect/pkg/checkpoint"
	apperrors "weathercollect/pkg/errors"
	"weathercollect/pkg/logger"
	"weathercollect/pkg/retry"
	"weathercollect/pkg/weather"
)

// Options holds dispatcher tuning knobs.
type Options struct {
	Workers           int
	MaxRetries        int
	BackoffBase       time.Duration
	BackoffMax        time.Duration
	BackoffMultiplier float64
	JitterFactor      float64

	// WaitForCooldown makes a task whose every provider is rate limited
	// sleep until the soonest cooldown expires instead of failing.
	WaitForCooldown bool

	// MaxAPICalls caps outbound fetches per run. Zero means no limit.
	MaxAPICalls int
}

// outcome classifies one finished task.
type outcome int

const (
	outcomeCompleted outcome = iota
	outcomeFailed
	outcomeSkipped
	outcomeUnattempted
)

// result is what a worker reports for one task.
type result struct {
	task    weather.Task
	outcome outcome
	err     error
}

// Summary aggregates a finished run.
type Summary struct {
	Total       int
	Completed   int
	Failed      int
	Skipped     int
	Unattempted int
	APICalls    int64
}

// Dispatcher coordinates providers, checkpoints, cache and output for one
// data source.
type Dispatcher struct {
	adapters    []weather.ProviderAdapter
	states      *StateTable
	checkpoints *checkpoint.Manager
	cache       *cache.Cache // nil disables caching
	writer      weather.RecordWriter
	opts        Options
	logger      logger.Logger

	apiCalls atomic.Int64
}

// New creates a dispatcher. adapters must be in priority order; cache may
// be nil.
func New(
	adapters []weather.ProviderAdapter,
	states *StateTable,
	checkpoints *checkpoint.Manager,
	responseCache *cache.Cache,
	writer weather.RecordWriter,
	opts Options,
) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Dispatcher{
		adapters:    adapters,
		states:      states,
		checkpoints: checkpoints,
		cache:       responseCache,
		writer:      writer,
		opts:        opts,
		logger:      logger.GetLogger(),
	}
}

// Run processes all tasks through the worker pool and blocks until every
// task has an outcome. A canceled context stops scheduling; tasks not yet
// attempted are reported as unattempted, never as failed.
func (d *Dispatcher) Run(ctx context.Context, tasks []weather.Task) (Summary, error) {
	refs := make([]checkpoint.TaskRef, len(tasks))
	for i, task := range tasks {
		refs[i] = checkpoint.TaskRef{
			Province: task.City.Province,
			City:     task.City.Name,
			Year:     task.Year,
		}
	}
	if err := d.checkpoints.RegisterTasks(refs); err != nil {
		return Summary{}, err
	}

	d.logger.InfoWithFields("Starting collection run", map[string]interface{}{
		"source":  d.checkpoints.Source(),
		"tasks":   len(tasks),
		"workers": d.opts.Workers,
	})

	jobQueue := make(chan weather.Task, d.opts.Workers*2)
	resultQueue := make(chan result, d.opts.Workers)

	var wg sync.WaitGroup
	for i := 0; i < d.opts.Workers; i++ {
		wg.Add(1)
		go d.worker(ctx, i, jobQueue, resultQueue, &wg)
	}

	go func() {
		defer close(jobQueue)
		for _, task := range tasks {
			select {
			case jobQueue <- task:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultQueue)
	}()

	summary := Summary{Total: len(tasks)}
	seen := 0
	for res := range resultQueue {
		seen++
		switch res.outcome {
		case outcomeCompleted:
			summary.Completed++
		case outcomeFailed:
			summary.Failed++
		case outcomeSkipped:
			summary.Skipped++
		case outcomeUnattempted:
			summary.Unattempted++
		}
	}
	// Tasks never handed to a worker count as unattempted
	summary.Unattempted += len(tasks) - seen
	summary.APICalls = d.apiCalls.Load()

	d.logger.InfoWithFields("Collection run finished", map[string]interface{}{
		"source":      d.checkpoints.Source(),
		"completed":   summary.Completed,
		"failed":      summary.Failed,
		"skipped":     summary.Skipped,
		"unattempted": summary.Unattempted,
		"api_calls":   summary.APICalls,
	})
	return summary, ctx.Err()
}

func (d *Dispatcher) worker(ctx context.Context, id int, jobs <-chan weather.Task, results chan<- result, wg *sync.WaitGroup) {
	defer wg.Done()

	for task := range jobs {
		select {
		case <-ctx.Done():
			results <- result{task: task, outcome: outcomeUnattempted, err: ctx.Err()}
			continue
		default:
		}

		res := d.processTask(ctx, task)
		if res.err != nil && res.outcome == outcomeFailed {
			d.logger.ErrorWithFields("Task failed", map[string]interface{}{
				"worker_id": id,
				"task":      task.String(),
				"error":     res.err.Error(),
			})
		}
		results <- res
	}
}

// processTask runs the provider fallback chain for one task.
func (d *Dispatcher) processTask(ctx context.Context, task weather.Task) result {
	done, err := d.checkpoints.IsCompleted(task.City.Name, task.Year)
	if err != nil {
		return result{task: task, outcome: outcomeFailed, err: err}
	}
	if done {
		d.logger.DebugWithFields("Task already completed, skipping", map[string]interface{}{
			"task": task.String(),
		})
		return result{task: task, outcome: outcomeSkipped}
	}

	for {
		records, providerName, attemptErrs, allRateLimited := d.tryProviders(ctx, task)
		if records != nil {
			return d.finish(task, providerName, records)
		}
		if ctx.Err() != nil {
			return result{task: task, outcome: outcomeUnattempted, err: ctx.Err()}
		}
		if budgetExceeded(attemptErrs) {
			return result{task: task, outcome: outcomeUnattempted, err: errBudgetExhausted}
		}

		if allRateLimited && d.opts.WaitForCooldown {
			recovery, ok := d.states.SoonestRecovery()
			if ok {
				d.logger.WarnWithFields("All providers rate limited, waiting for cooldown", map[string]interface{}{
					"task":  task.String(),
					"until": recovery,
				})
				if err := retry.Wait(ctx, time.Until(recovery)); err != nil {
					return result{task: task, outcome: outcomeUnattempted, err: err}
				}
				continue
			}
		}

		reason := aggregateReason(attemptErrs)
		if err := d.checkpoints.MarkFailed(task.City.Province, task.City.Name, task.Year, reason); err != nil {
			return result{task: task, outcome: outcomeFailed, err: err}
		}
		return result{task: task, outcome: outcomeFailed, err: fmt.Errorf("%s", reason)}
	}
}

// tryProviders walks the priority list once. It returns the fetched
// records and the serving provider on success, or the per-provider errors
// otherwise. allRateLimited is true when every adapter was either cooling
// down or newly rate limited.
func (d *Dispatcher) tryProviders(ctx context.Context, task weather.Task) ([]weather.Record, string, []string, bool) {
	var attemptErrs []string
	allRateLimited := true

	for _, adapter := range d.adapters {
		name := adapter.Name()

		// Cached data is usable even while its provider cools down
		if d.cache != nil {
			key := cache.Key{Provider: name, City: task.City.Name, Year: task.Year}
			if records, ok := d.cache.Get(key); ok {
				return records, name, nil, false
			}
		}

		if !d.states.Eligible(name) {
			attemptErrs = append(attemptErrs, fmt.Sprintf("%s: cooling down after rate limit", name))
			continue
		}

		records, err := d.fetch(ctx, adapter, task)
		if err == nil {
			return records, name, nil, false
		}
		if ctx.Err() != nil {
			return nil, "", attemptErrs, false
		}

		switch apperrors.TypeOf(err) {
		case apperrors.ErrorTypeRateLimited:
			if d.states.MarkRateLimited(name) {
				d.logger.WarnWithFields("Provider rate limited, starting cooldown", map[string]interface{}{
					"provider": name,
					"task":     task.String(),
				})
			}
		default:
			allRateLimited = false
			if err == errBudgetExhausted {
				return nil, "", []string{err.Error()}, false
			}
		}
		attemptErrs = append(attemptErrs, fmt.Sprintf("%s: %v", name, err))
	}

	if len(d.adapters) == 0 {
		attemptErrs = append(attemptErrs, "no providers configured")
		allRateLimited = false
	}
	return nil, "", attemptErrs, allRateLimited
}

// errBudgetExhausted is classified permanent so retry never burns
// attempts on a spent budget.
var errBudgetExhausted = apperrors.Permanent("API call budget exhausted")

// fetch performs one provider attempt with in-place retry for transient
// failures. Each attempt consumes budget; rate limits and permanent
// errors surface immediately so the caller can move to the next provider.
func (d *Dispatcher) fetch(ctx context.Context, adapter weather.ProviderAdapter, task weather.Task) ([]weather.Record, error) {
	cfg := &retry.Config{
		MaxAttempts: d.opts.MaxRetries + 1,
		Backoff: &retry.ExponentialBackoff{
			BaseDelay:    d.opts.BackoffBase,
			MaxDelay:     d.opts.BackoffMax,
			Multiplier:   d.opts.BackoffMultiplier,
			JitterFactor: d.opts.JitterFactor,
		},
		RetryIf: retry.DefaultRetryIf,
		Context: ctx,
		Logger:  d.logger,
	}

	return retry.DoWithResult(func() ([]weather.Record, error) {
		if !d.consumeBudget() {
			return nil, errBudgetExhausted
		}
		return adapter.Fetch(ctx, task.City, task.Year)
	}, cfg)
}

// consumeBudget claims one API call, reporting false when the run budget
// is spent.
func (d *Dispatcher) consumeBudget() bool {
	if d.opts.MaxAPICalls <= 0 {
		d.apiCalls.Add(1)
		return true
	}
	for {
		current := d.apiCalls.Load()
		if current >= int64(d.opts.MaxAPICalls) {
			return false
		}
		if d.apiCalls.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

// finish persists a successful fetch: write the output row, cache the
// response, then mark the checkpoint. The write happens before the mark
// so a crash in between re-fetches (from cache) rather than losing data.
func (d *Dispatcher) finish(task weather.Task, providerName string, records []weather.Record) result {
	if err := d.writer.Write(task.City, task.Year, records); err != nil {
		return result{task: task, outcome: outcomeFailed, err: fmt.Errorf("failed to write output: %w", err)}
	}

	if d.cache != nil {
		key := cache.Key{Provider: providerName, City: task.City.Name, Year: task.Year}
		if err := d.cache.Put(key, records); err != nil {
			// Cache failures cost a refetch later, nothing more
			d.logger.WarnWithFields("Failed to cache response", map[string]interface{}{
				"task":  task.String(),
				"error": err.Error(),
			})
		}
	}

	if err := d.checkpoints.MarkCompleted(task.City.Province, task.City.Name, task.Year); err != nil {
		return result{task: task, outcome: outcomeFailed, err: err}
	}

	d.logger.InfoWithFields("Task completed", map[string]interface{}{
		"task":     task.String(),
		"provider": providerName,
		"records":  len(records),
	})
	return result{task: task, outcome: outcomeCompleted}
}

// aggregateReason joins per-provider failures into one checkpoint reason.
func aggregateReason(attemptErrs []string) string {
	if len(attemptErrs) == 0 {
		return "all providers exhausted"
	}
	return "all providers exhausted: " + strings.Join(attemptErrs, "; ")
}

// budgetExceeded reports whether the attempt errors are solely the spent
// API call budget.
func budgetExceeded(attemptErrs []string) bool {
	return len(attemptErrs) == 1 && attemptErrs[0] == errBudgetExhausted.Error()
}
