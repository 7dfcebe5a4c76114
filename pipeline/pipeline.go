// Package pipeline projects collected records onto output columns and
// writes them out.
package pipeline

import (
	"slices"
	"strings"
	"sync"

	"github.com/aluiziolira/globidx-search/config"
	"github.com/aluiziolira/globidx-search/models"
)

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(columns []string, records []*models.Record) error
	Close() error
	Validate() error
}

// Columns derives the output header from records. The first record's field
// names are sorted by their values in that record (stable, so equal values
// keep field order). With the union policy, fields first seen in later
// records follow in order of appearance; with the first-row policy they
// are dropped.
func Columns(records []*models.Record, policy string) []string {
	if len(records) == 0 {
		return nil
	}

	first := records[0]
	columns := first.Keys()
	slices.SortStableFunc(columns, func(a, b string) int {
		return strings.Compare(first.Value(a), first.Value(b))
	})
	if policy == config.ColumnsFirstRow {
		return columns
	}

	seen := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		seen[c] = struct{}{}
	}
	for _, r := range records[1:] {
		for _, key := range r.Keys() {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			columns = append(columns, key)
		}
	}
	return columns
}

// Exporter writes a finished record sequence through an OutputWriter.
type Exporter struct {
	writer  OutputWriter
	policy  string
	metrics metrics
}

// NewExporter builds an exporter using the column policy from cfg.
func NewExporter(writer OutputWriter, cfg *config.Config) *Exporter {
	return &Exporter{
		writer:  writer,
		policy:  cfg.Columns,
		metrics: newMetrics(),
	}
}

// Export writes the header and every record. An empty sequence writes nothing.
func (e *Exporter) Export(records []*models.Record) error {
	if len(records) == 0 {
		return nil
	}

	columns := Columns(records, e.policy)
	e.metrics.setColumns(len(columns))
	e.metrics.addDropped(droppedFields(records, columns))

	if err := e.writer.Write(columns, records); err != nil {
		return err
	}
	e.metrics.addExported(len(records))
	return nil
}

// GetMetrics returns a snapshot of the export counters.
func (e *Exporter) GetMetrics() map[string]interface{} {
	return e.metrics.snapshot()
}

func droppedFields(records []*models.Record, columns []string) int {
	kept := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		kept[c] = struct{}{}
	}
	dropped := 0
	for _, r := range records {
		for _, key := range r.Keys() {
			if _, ok := kept[key]; !ok {
				dropped++
			}
		}
	}
	return dropped
}

type metrics struct {
	mu       sync.Mutex
	exported int64
	columns  int
	dropped  int
}

func newMetrics() metrics {
	return metrics{}
}

func (m *metrics) addExported(n int) {
	m.mu.Lock()
	m.exported += int64(n)
	m.mu.Unlock()
}

func (m *metrics) setColumns(n int) {
	m.mu.Lock()
	m.columns = n
	m.mu.Unlock()
}

func (m *metrics) addDropped(n int) {
	m.mu.Lock()
	m.dropped += n
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	return map[string]interface{}{
		"exported_records": m.exported,
		"columns":          m.columns,
		"dropped_fields":   m.dropped,
	}
}
