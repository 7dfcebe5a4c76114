// Package models defines data structures for the index search.
package models

import (
	"bytes"
	"encoding/json"
	"time"
)

// MaxPageSize is the largest page the index will serve in one response.
const MaxPageSize = 1000

// Query holds the search parameters sent to the index.
type Query struct {
	Surname   string
	Forename  string
	Place     string
	BeginYear int
	EndYear   int
	PageSize  int
	Delay     time.Duration
	Timeout   time.Duration
}

// Clamped returns a copy of q with the page size capped at MaxPageSize.
func (q Query) Clamped() Query {
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	return q
}

// Field is a single label/value pair taken from a record's detail page.
type Field struct {
	Label string
	Value string
}

// Record is one result row: field names mapped to values, in the order
// they were first set.
type Record struct {
	keys   []string
	values map[string]string
}

// NewRecord returns an empty record.
func NewRecord() *Record {
	return &Record{values: make(map[string]string)}
}

// Set stores value under key. An existing key keeps its position.
func (r *Record) Set(key, value string) {
	if r.values == nil {
		r.values = make(map[string]string)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Get returns the value stored under key.
func (r *Record) Get(key string) (string, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Value returns the value stored under key, or "" when absent.
func (r *Record) Value(key string) string {
	return r.values[key]
}

// Keys returns the field names in insertion order.
func (r *Record) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len reports the number of fields.
func (r *Record) Len() int {
	return len(r.keys)
}

// Clone returns an independent copy of r.
func (r *Record) Clone() *Record {
	c := &Record{
		keys:   make([]string, len(r.keys)),
		values: make(map[string]string, len(r.values)),
	}
	copy(c.keys, r.keys)
	for k, v := range r.values {
		c.values[k] = v
	}
	return c
}

// MarshalJSON encodes the record as an object with keys in field order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(r.values[key])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// SearchResult holds the overall result of a search run.
type SearchResult struct {
	Records      []*Record
	TotalRows    int
	TotalPages   int
	StartTime    time.Time
	EndTime      time.Time
	RequestCount int
	PageCount    int
	DetailCount  int
	CacheHits    int
}
