package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aluiziolira/globidx-search/config"
	"github.com/aluiziolira/globidx-search/models"
)

const testListing = `<html><body><p>Ergebnisse: 2</p><p>Seite 1 von 1</p>
<table class="all_records">
<thead><tr><th>Name</th><th>Jahr</th><th>&nbsp;</th></tr></thead>
<tbody>
<tr><td>A</td><td>1849</td><td><a href="/records/1">info</a></td></tr>
<tr><td>B</td><td>1802</td><td><a href="/records/2">info</a></td></tr>
</tbody></table></body></html>`

type testIndex struct {
	mu       sync.Mutex
	queries  []string
	listing  string
	details  map[string]string
	failWith int
}

func (ti *testIndex) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ti.mu.Lock()
	defer ti.mu.Unlock()

	if ti.failWith != 0 {
		w.WriteHeader(ti.failWith)
		return
	}
	if r.URL.Path == "/globalindex_en.html" {
		ti.queries = append(ti.queries, r.URL.RawQuery)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, ti.listing)
		return
	}
	body, ok := ti.details[r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, body)
}

func newTestIndex() *testIndex {
	return &testIndex{
		listing: testListing,
		details: map[string]string{
			"/records/1": `<table class="single_record"><tbody>
<tr><th class="label">Jahr</th><td class="value">1850uTaufe</td></tr>
<tr><th class="label">Beruf</th><td class="value">Fischer</td></tr>
</tbody></table>`,
			"/records/2": `<table class="single_record"><tbody>
<tr><th class="label">Ort</th><td class="value">Stolp</td></tr>
</tbody></table>`,
		},
	}
}

func TestExecuteWritesCSV(t *testing.T) {
	index := newTestIndex()
	srv := httptest.NewServer(index)
	defer srv.Close()

	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), []string{"--base-url", srv.URL, "-w", "0", "-s", "Müller"}, &stdout, &stderr)
	if code != exitOK {
		t.Fatalf("exit code=%d, stderr=%s", code, stderr.String())
	}

	records, err := csv.NewReader(&stdout).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	want := [][]string{
		{"Jahr", "Name", "Beruf", "URL", "Ort"},
		{"1850", "A", "Fischer", srv.URL + "/records/1", ""},
		{"1802", "B", "", srv.URL + "/records/2", "Stolp"},
	}
	if len(records) != len(want) {
		t.Fatalf("records=%v, want %v", records, want)
	}
	for i := range want {
		if strings.Join(records[i], "|") != strings.Join(want[i], "|") {
			t.Fatalf("line %d = %v, want %v", i, records[i], want[i])
		}
	}

	if len(index.queries) != 1 || !strings.Contains(index.queries[0], "Name=M%C3%BCller") {
		t.Fatalf("unexpected search queries: %v", index.queries)
	}
}

func TestExecuteFirstRowColumns(t *testing.T) {
	srv := httptest.NewServer(newTestIndex())
	defer srv.Close()

	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), []string{"--base-url", srv.URL, "-w", "0", "--columns", "first-row"}, &stdout, &stderr)
	if code != exitOK {
		t.Fatalf("exit code=%d, stderr=%s", code, stderr.String())
	}
	header, _, _ := strings.Cut(stdout.String(), "\n")
	if header != "Jahr,Name,Beruf,URL" {
		t.Fatalf("header=%q", header)
	}
}

func TestExecuteZeroResultsWritesNothing(t *testing.T) {
	index := newTestIndex()
	index.listing = "<html><body><p>Ergebnisse: 0</p></body></html>"
	srv := httptest.NewServer(index)
	defer srv.Close()

	out := filepath.Join(t.TempDir(), "records.csv")
	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), []string{"--base-url", srv.URL, "-o", out}, &stdout, &stderr)
	if code != exitOK {
		t.Fatalf("exit code=%d, stderr=%s", code, stderr.String())
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatalf("output file should not exist, stat err=%v", err)
	}
	if stdout.Len() != 0 {
		t.Fatalf("stdout should be empty, got %q", stdout.String())
	}
}

func TestExecuteWritesDualFiles(t *testing.T) {
	srv := httptest.NewServer(newTestIndex())
	defer srv.Close()

	dir := t.TempDir()
	out := filepath.Join(dir, "export", "records.csv")
	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), []string{"--base-url", srv.URL, "-w", "0", "-o", out, "--format", "dual"}, &stdout, &stderr)
	if code != exitOK {
		t.Fatalf("exit code=%d, stderr=%s", code, stderr.String())
	}
	for _, path := range []string{out, filepath.Join(dir, "export", "records.jsonl")} {
		if info, err := os.Stat(path); err != nil || info.Size() == 0 {
			t.Fatalf("%s missing or empty (err=%v)", path, err)
		}
	}
}

func TestExecuteHTTPFailure(t *testing.T) {
	index := newTestIndex()
	index.failWith = http.StatusInternalServerError
	srv := httptest.NewServer(index)
	defer srv.Close()

	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), []string{"--base-url", srv.URL}, &stdout, &stderr)
	if code != exitRun {
		t.Fatalf("exit code=%d, want %d", code, exitRun)
	}
	if stdout.Len() != 0 {
		t.Fatalf("no output expected on failure, got %q", stdout.String())
	}
}

func TestExecuteUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "non-numeric rows", args: []string{"-r", "many"}},
		{name: "unknown flag", args: []string{"--colour"}},
		{name: "positional argument", args: []string{"Müller"}},
		{name: "dual to stdout", args: []string{"--format", "dual"}},
		{name: "zero timeout", args: []string{"-t", "0"}},
		{name: "missing config file", args: []string{"--config", "/nonexistent/globidx.yaml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := execute(context.Background(), tt.args, &stdout, &stderr)
			if code != exitUsage {
				t.Fatalf("exit code=%d, want %d (stderr=%s)", code, exitUsage, stderr.String())
			}
			if !strings.Contains(stderr.String(), "Usage:") {
				t.Fatalf("usage text expected, got %q", stderr.String())
			}
		})
	}
}

func TestBuildConfigPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "globidx.yaml")
	if err := os.WriteFile(path, []byte("surname: Kowalski\nrows: 100\ntimeout: 30s\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("GLOBIDX_ROWS", "300")

	opts := &options{}
	cmd := newRootCmd(opts)
	if err := cmd.ParseFlags([]string{"--config", path, "-s", "Nowak", "-w", "5"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := buildConfig(cmd, opts)
	if err != nil {
		t.Fatalf("build config: %v", err)
	}
	if cfg.Surname != "Nowak" {
		t.Fatalf("surname=%q, flag should win", cfg.Surname)
	}
	if cfg.PageSize != 300 {
		t.Fatalf("rows=%d, env should override file", cfg.PageSize)
	}
	if cfg.Timeout != 30*time.Second {
		t.Fatalf("timeout=%v, file value expected", cfg.Timeout)
	}
	if cfg.Delay != 5*time.Second {
		t.Fatalf("delay=%v, want 5s", cfg.Delay)
	}
	if cfg.BeginYear != 1500 || cfg.EndYear != 2000 {
		t.Fatalf("years=%d-%d, defaults expected", cfg.BeginYear, cfg.EndYear)
	}
}

type failingWriter struct {
	writeErr error
	closeErr error
	closed   bool
}

func (fw *failingWriter) Write([]string, []*models.Record) error { return fw.writeErr }

func (fw *failingWriter) Close() error {
	fw.closed = true
	return fw.closeErr
}

func (fw *failingWriter) Validate() error { return nil }

func TestExportRecordsReportsCloseFailure(t *testing.T) {
	writeErr := errors.New("disk full")
	closeErr := errors.New("flush failed")
	writer := &failingWriter{writeErr: writeErr, closeErr: closeErr}

	record := models.NewRecord()
	record.Set("Name", "A")

	_, err := exportRecords(writer, config.DefaultConfig(), []*models.Record{record})
	if !writer.closed {
		t.Fatalf("writer should be closed after a failed export")
	}
	if !errors.Is(err, writeErr) || !errors.Is(err, closeErr) {
		t.Fatalf("err=%v, want both write and close failures", err)
	}
}
