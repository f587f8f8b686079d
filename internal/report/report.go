// Package report accumulates per-run load outcomes for caller-side
// aggregate reporting.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Report is the aggregate outcome of one load run.
type Report struct {
	Mapping     string                  `json:"mapping,omitempty"`
	StartedAt   time.Time               `json:"started_at"`
	FinishedAt  time.Time               `json:"finished_at"`
	Rows        int                     `json:"rows"`
	Entities    map[string]*EntityStats `json:"entities"`
}

// EntityStats counts outcomes for one entity mapping.
type EntityStats struct {
	Imported  int        `json:"imported"`
	Skipped   int        `json:"skipped"`
	Failed    int        `json:"failed"`
	Truncated int        `json:"truncated"`
	Links     int        `json:"skipped_links"`
	Errors    []RowError `json:"errors,omitempty"`
}

// RowError is one failed row, kept for the error sample.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// maxErrorSample bounds how many row errors are retained per entity.
const maxErrorSample = 25

// New creates an empty report for a named mapping.
func New(mappingName string) *Report {
	return &Report{
		Mapping:   mappingName,
		StartedAt: time.Now(),
		Entities:  make(map[string]*EntityStats),
	}
}

func (r *Report) entity(name string) *EntityStats {
	s, ok := r.Entities[name]
	if !ok {
		s = &EntityStats{}
		r.Entities[name] = s
	}
	return s
}

// Imported records a persisted owner record.
func (r *Report) Imported(entity string) { r.entity(entity).Imported++ }

// Skipped records a deliberate no-record outcome (duplicate-skip or pivot
// endpoint missing).
func (r *Report) Skipped(entity string) { r.entity(entity).Skipped++ }

// Failed records a row failure, sampling the message.
func (r *Report) Failed(entity string, row int, err error) {
	s := r.entity(entity)
	s.Failed++
	if len(s.Errors) < maxErrorSample {
		s.Errors = append(s.Errors, RowError{Row: row, Message: err.Error()})
	}
}

// Truncations adds to the entity's truncated-field count.
func (r *Report) Truncations(entity string, n int) { r.entity(entity).Truncated += n }

// SkippedLinks adds to the entity's silently omitted link count.
func (r *Report) SkippedLinks(entity string, n int) { r.entity(entity).Links += n }

// Finish stamps the completion time.
func (r *Report) Finish() { r.FinishedAt = time.Now() }

// TotalFailed returns the failure count across all entities.
func (r *Report) TotalFailed() int {
	total := 0
	for _, s := range r.Entities {
		total += s.Failed
	}
	return total
}

// EntityNames returns entity names in stable order.
func (r *Report) EntityNames() []string {
	names := make([]string, 0, len(r.Entities))
	for name := range r.Entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WriteJSON writes the report to a JSON file at the given path.
func (r *Report) WriteJSON(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
