// Package metrics is the process-wide metrics facade used by the loader.
//
// Core code records through the package-level functions below and never
// imports a concrete backend. The command wires one backend at startup
// (datadog, prompush, or none); until then every call is a no-op.
package metrics

import (
	"sync"
	"time"
)

// Metric names recorded by the loader.
const (
	// FilesTotal counts processed files. Labels: pass, status.
	FilesTotal = "etl_files_total"
	// StepDuration observes seconds spent per step. Labels: step, status.
	StepDuration = "etl_step_duration_seconds"
	// RecordsTotal counts rows submitted per kind. Labels: kind.
	RecordsTotal = "etl_records_total"
)

// Record kinds used with RecordsTotal.
const (
	KindSong            = "song"
	KindArtist          = "artist"
	KindTime            = "time"
	KindUser            = "user"
	KindSongPlay        = "songplay"
	KindSongPlayMatched = "songplay_matched"
	KindSkippedEvent    = "skipped_event"
)

// Status label values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Labels are metric dimensions.
type Labels map[string]string

// Backend receives metric observations.
//
// Implementations must be safe for concurrent use. Flush pushes whatever is
// buffered; backends that publish synchronously may return nil.
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

// SetBackend installs b as the process backend. A nil b restores the no-op.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		backend = nopBackend{}
		return
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// IncCounter adds delta to the named counter.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram records one sample for the named histogram.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush flushes the installed backend.
func Flush() error {
	return current().Flush()
}

// RecordStep observes how long a named step took. The caller measures
// elapsed so it can use its own clock.
func RecordStep(step string, elapsed time.Duration, err error) {
	ObserveHistogram(StepDuration, elapsed.Seconds(), Labels{
		"step":   step,
		"status": Status(err),
	})
}

// AddRecords counts n rows of the given kind. n <= 0 is ignored.
func AddRecords(kind string, n int) {
	if n <= 0 {
		return
	}
	IncCounter(RecordsTotal, float64(n), Labels{"kind": kind})
}

// Status maps an error to a status label value.
func Status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusOK
}
