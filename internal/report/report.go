// Package report collects structured outcome data during a run and renders the
// final build summary.
//
// Key types:
//   - [Data] is a piece of report content: [TextData], [TableData] or [ListData]
//   - [Service] accumulates data and warning/error log entries for the run
//   - [Summary] is the per-target outcome table rendered at the end of a run
//
// All rendered text passes through the run's masker.
package report

import (
	"sync"
	"time"

	"atom/internal/mask"
)

// Data is a unit of report content. Implementations are [TextData],
// [TableData] and [ListData].
type Data interface {
	Heading() string
	isData()
}

// TextData is a titled block of free text.
type TextData struct {
	Title string
	Text  string
}

// Heading implements [Data].
func (d TextData) Heading() string { return d.Title }
func (TextData) isData() {}

// TableData is a titled table.
type TableData struct {
	Title  string
	Header []string
	Rows   [][]string
}

// Heading implements [Data].
func (d TableData) Heading() string { return d.Title }
func (TableData) isData() {}

// ListData is a titled bullet list.
type ListData struct {
	Title string
	Items []string
}

// Heading implements [Data].
func (d ListData) Heading() string { return d.Title }
func (ListData) isData() {}

// LogEntry is a warning or error logged during the run.
type LogEntry struct {
	Time    time.Time
	Level   string
	Logger  string
	Message string
	// Fields holds the structured context of the entry, keyed by field name.
	Fields map[string]any
}

// Service accumulates report data for one run. Safe for concurrent use.
type Service struct {
	mu     sync.Mutex
	masker *mask.Masker
	data   []Data
	logs   []LogEntry
}

// NewService creates an empty Service masking output with masker.
func NewService(masker *mask.Masker) *Service {
	return &Service{masker: masker}
}

// Add appends report data. Nil is ignored.
func (s *Service) Add(d Data) {
	if d == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append(s.data, d)
}

// AddLog appends a log entry.
func (s *Service) AddLog(e LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, e)
}

// Data returns a copy of the accumulated data.
func (s *Service) Data() []Data {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Data(nil), s.data...)
}

// Logs returns a copy of the accumulated log entries.
func (s *Service) Logs() []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]LogEntry(nil), s.logs...)
}

func (s *Service) mask(v string) string {
	return s.masker.Mask(v)
}
