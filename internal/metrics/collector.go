// Package metrics implements the per-run instrumentation collector. One
// Collector is created per research run, shared by every component, and
// drained exactly once at the end into an immutable Snapshot.
package metrics

import (
	"sync"
	"time"
)

// maxNotes bounds the error and warning lists. When full, the oldest entry is
// evicted so late failures are never lost.
const maxNotes = 50

// Note is one recorded error or warning with its capture time.
type Note struct {
	At      time.Time
	Message string
}

// Collector accumulates timings and counters for a single run. All methods
// are safe for concurrent use.
type Collector struct {
	mu      sync.Mutex
	started time.Time

	opTotal map[string]time.Duration
	opCount map[string]int

	counters map[string]int64

	llmCalls    int64
	llmFailures int64
	llmRetries  int64
	llmReparses int64
	llmTime     time.Duration

	apiCalls    int64
	apiFailures int64
	apiRetries  int64

	urlsFound     int64
	urlsCrawled   int64
	urlsSucceeded int64
	urlsFailed    int64

	contentChars int64

	errors   []Note
	warnings []Note

	drained bool
}

// NewCollector creates a collector with the run clock started.
func NewCollector() *Collector {
	return &Collector{
		started:  time.Now(),
		opTotal:  make(map[string]time.Duration),
		opCount:  make(map[string]int),
		counters: make(map[string]int64),
	}
}

// StartSpan begins timing a named operation and returns the function that
// stops the span. Call sites use the defer-the-return idiom:
//
//	defer c.StartSpan("synthesis")()
func (c *Collector) StartSpan(name string) func() {
	begin := time.Now()
	return func() {
		elapsed := time.Since(begin)
		c.mu.Lock()
		defer c.mu.Unlock()
		c.opTotal[name] += elapsed
		c.opCount[name]++
	}
}

// Inc adds one to the named free-form counter.
func (c *Collector) Inc(name string) { c.Add(name, 1) }

// Add adds n to the named free-form counter.
func (c *Collector) Add(name string, n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[name] += n
}

// RecordLLMCall records one completed language-model call.
func (c *Collector) RecordLLMCall(elapsed time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.llmCalls++
	c.llmTime += elapsed
	if err != nil {
		c.llmFailures++
	}
}

// RecordLLMRetry records one transient-class retry of a model call.
func (c *Collector) RecordLLMRetry() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.llmRetries++
}

// RecordLLMReparse records one corrective re-prompt after malformed output.
func (c *Collector) RecordLLMReparse() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.llmReparses++
}

// RecordAPICall records one completed non-model upstream call (search, crawl).
func (c *Collector) RecordAPICall(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apiCalls++
	if err != nil {
		c.apiFailures++
	}
}

// RecordAPIRetry records one transient-class retry of an upstream call.
func (c *Collector) RecordAPIRetry() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apiRetries++
}

// RecordURLs updates the retrieval funnel counters.
func (c *Collector) RecordURLs(found, crawled, succeeded, failed int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.urlsFound += int64(found)
	c.urlsCrawled += int64(crawled)
	c.urlsSucceeded += int64(succeeded)
	c.urlsFailed += int64(failed)
}

// AddContentChars records retrieved content volume.
func (c *Collector) AddContentChars(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contentChars += int64(n)
}

// Error appends to the bounded error list, evicting the oldest when full.
func (c *Collector) Error(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = appendNote(c.errors, message)
}

// Warning appends to the bounded warning list, evicting the oldest when full.
func (c *Collector) Warning(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.warnings = appendNote(c.warnings, message)
}

func appendNote(notes []Note, message string) []Note {
	if len(notes) >= maxNotes {
		copy(notes, notes[1:])
		notes = notes[:maxNotes-1]
	}
	return append(notes, Note{At: time.Now(), Message: message})
}

// Drain returns the run's snapshot. The collector is meant to be drained once
// when the run finishes; draining again returns a snapshot of whatever was
// recorded since, with the same run start time.
func (c *Collector) Drain() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drained = true

	snap := Snapshot{
		Started:       c.started,
		TotalDuration: time.Since(c.started),
		Counters:      make(map[string]int64, len(c.counters)),
		LLM: LLMStats{
			Calls:     c.llmCalls,
			Failures:  c.llmFailures,
			Retries:   c.llmRetries,
			Reparses:  c.llmReparses,
			TotalTime: c.llmTime,
		},
		API: APIStats{
			Calls:    c.apiCalls,
			Failures: c.apiFailures,
			Retries:  c.apiRetries,
		},
		URLs: URLStats{
			Found:     c.urlsFound,
			Crawled:   c.urlsCrawled,
			Succeeded: c.urlsSucceeded,
			Failed:    c.urlsFailed,
		},
		ContentChars: c.contentChars,
		Errors:       append([]Note(nil), c.errors...),
		Warnings:     append([]Note(nil), c.warnings...),
	}
	for k, v := range c.counters {
		snap.Counters[k] = v
	}
	for name, total := range c.opTotal {
		snap.Operations = append(snap.Operations, OperationStat{
			Name:  name,
			Count: c.opCount[name],
			Total: total,
		})
	}
	snap.sortOperations()
	return snap
}
