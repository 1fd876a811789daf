package pipeline

import (
	"time"

	"github.com/lildude/workouttracker/internal/model"
)

// ExtractReport describes an extract run. Timings are epoch seconds taken at
// each stage boundary and Deltas the seconds between consecutive timings.
type ExtractReport struct {
	Timings    []float64            `json:"timings"`
	Deltas     []float64            `json:"deltas"`
	Activities []model.InsertResult `json:"activities"`
}

// LoadReport describes a load run.
type LoadReport struct {
	Timings []float64 `json:"timings"`
	Deltas  []float64 `json:"deltas"`
	Rows    int       `json:"rows"`
}

// SyncReport describes an extract followed by a load.
type SyncReport struct {
	Timings []float64  `json:"timings"`
	Deltas  []float64  `json:"deltas"`
	Results []Envelope `json:"results"`
}

// Envelope names a report by its operation, e.g. {"extract": {...}}.
type Envelope struct {
	Extract *ExtractReport `json:"extract,omitempty"`
	Load    *LoadReport    `json:"load,omitempty"`
	Sync    *SyncReport    `json:"sync,omitempty"`
}

// stopwatch records the stage boundaries of a run.
type stopwatch struct {
	now   func() time.Time
	marks []time.Time
}

func newStopwatch(now func() time.Time) *stopwatch {
	s := &stopwatch{now: now}
	s.mark()
	return s
}

func (s *stopwatch) mark() {
	s.marks = append(s.marks, s.now())
}

func (s *stopwatch) timings() []float64 {
	t := make([]float64, len(s.marks))
	for i, m := range s.marks {
		t[i] = float64(m.UnixNano()) / 1e9
	}
	return t
}

func (s *stopwatch) deltas() []float64 {
	d := make([]float64, 0, len(s.marks)-1)
	for i := 1; i < len(s.marks); i++ {
		d = append(d, s.marks[i].Sub(s.marks[i-1]).Seconds())
	}
	return d
}
