// Package metrics is the backend-agnostic metrics facade the import core
// reports to. The default backend discards everything; the CLI installs a
// Datadog or Pushgateway backend with SetBackend.
package metrics

import (
	"sync"
	"time"
)

// Metric names emitted by the import.
const (
	// RecordsTotal counts rows per table and outcome.
	// Labels: table, kind (read|candidate|dropped|duplicate|written|skipped).
	RecordsTotal = "import_records_total"

	// StepTotal counts finished steps. Labels: step, status (ok|error).
	StepTotal = "import_step_total"

	// StepDurationSeconds observes step durations. Labels: step, status.
	StepDurationSeconds = "import_step_duration_seconds"
)

// Labels are metric dimensions.
type Labels map[string]string

// Backend receives metric events.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b as the process-wide backend. Nil restores the no-op one.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// IncCounter adds delta to a counter.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram records one sample.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush submits whatever the backend buffered.
func Flush() error { return current().Flush() }

// RecordRows counts n rows of table with the given outcome kind. Zero is not reported.
func RecordRows(table, kind string, n int64) {
	if n <= 0 {
		return
	}
	IncCounter(RecordsTotal, float64(n), Labels{"table": table, "kind": kind})
}

// RecordStep counts one finished step and observes its duration.
func RecordStep(step string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	l := Labels{"step": step, "status": status}
	IncCounter(StepTotal, 1, l)
	ObserveHistogram(StepDurationSeconds, time.Since(start).Seconds(), l)
}
