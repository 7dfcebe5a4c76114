package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/aluiziolira/globidx-search/models"
)

// CSVWriter writes records to CSV.
type CSVWriter struct {
	closer      io.Closer
	writer      *csv.Writer
	wroteHeader bool
	rows        int
	mu          sync.Mutex
}

// NewCSVWriter writes CSV to w. w is not closed by Close.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{writer: csv.NewWriter(w)}
}

// NewCSVFileWriter creates filename (and its directory) for CSV output.
func NewCSVFileWriter(filename string) (*CSVWriter, error) {
	f, err := createFile(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}
	cw := NewCSVWriter(f)
	cw.closer = f
	return cw, nil
}

// Write emits the header on first use, then one line per record. Fields a
// record lacks are left empty.
func (cw *CSVWriter) Write(columns []string, records []*models.Record) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if !cw.wroteHeader {
		if err := cw.writer.Write(columns); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
		cw.wroteHeader = true
	}

	line := make([]string, len(columns))
	for _, record := range records {
		for i, column := range columns {
			line[i] = record.Value(column)
		}
		if err := cw.writer.Write(line); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
		cw.rows++
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle, if one was opened.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	if cw.closer == nil {
		return nil
	}
	return cw.closer.Close()
}

// Validate ensures at least one record followed the header.
func (cw *CSVWriter) Validate() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	if cw.rows == 0 {
		return fmt.Errorf("csv output is empty")
	}
	return nil
}

// JSONWriter writes newline-delimited JSON records.
type JSONWriter struct {
	closer  io.Closer
	writer  *bufio.Writer
	encoder *json.Encoder
	rows    int
	mu      sync.Mutex
}

// NewJSONWriter writes JSON Lines to w. w is not closed by Close.
func NewJSONWriter(w io.Writer) *JSONWriter {
	buffer := bufio.NewWriter(w)
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	return &JSONWriter{
		writer:  buffer,
		encoder: encoder,
	}
}

// NewJSONFileWriter creates filename (and its directory) for JSONL output.
func NewJSONFileWriter(filename string) (*JSONWriter, error) {
	f, err := createFile(filename)
	if err != nil {
		return nil, fmt.Errorf("create json file: %w", err)
	}
	jw := NewJSONWriter(f)
	jw.closer = f
	return jw, nil
}

// Write appends one object per record with keys in column order.
func (jw *JSONWriter) Write(columns []string, records []*models.Record) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, record := range records {
		projected := models.NewRecord()
		for _, column := range columns {
			projected.Set(column, record.Value(column))
		}
		if err := jw.encoder.Encode(projected); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
		jw.rows++
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return nil
}

// Close flushes buffers and closes the underlying file, if one was opened.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	if jw.closer == nil {
		return nil
	}
	return jw.closer.Close()
}

// Validate ensures the JSON output has data.
func (jw *JSONWriter) Validate() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	if jw.rows == 0 {
		return fmt.Errorf("json output is empty")
	}
	return nil
}

func createFile(filename string) (*os.File, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	return os.Create(filename)
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
