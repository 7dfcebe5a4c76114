package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/aluiziolira/globidx-search/models"
)

// Output column policies.
const (
	ColumnsUnion    = "union"
	ColumnsFirstRow = "first-row"
)

// StdoutPath selects standard output as the export destination.
const StdoutPath = "-"

// Config holds search and export configuration.
type Config struct {
	BaseURL         string        `yaml:"base_url"`
	Surname         string        `yaml:"surname"`
	Forename        string        `yaml:"forename"`
	Place           string        `yaml:"place"`
	BeginYear       int           `yaml:"begin_year"`
	EndYear         int           `yaml:"end_year"`
	PageSize        int           `yaml:"rows"`
	Delay           time.Duration `yaml:"-"`
	Timeout         time.Duration `yaml:"-"`
	OutputFile      string        `yaml:"output"`
	OutputFormat    string        `yaml:"format"` // csv, json, or dual
	Columns         string        `yaml:"columns"`
	SkipDetails     bool          `yaml:"no_details"`
	DetailCacheSize int           `yaml:"cache_size"`
	UserAgent       string        `yaml:"user_agent"`
	MetricsAddr     string        `yaml:"metrics_addr"`
	Verbose         bool          `yaml:"verbose"`
}

// DefaultConfig mirrors the defaults of the command-line tool.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:      "https://www.stolp.de",
		BeginYear:    1500,
		EndYear:      2000,
		PageSize:     models.MaxPageSize,
		Delay:        time.Second,
		Timeout:      60 * time.Second,
		OutputFile:   StdoutPath,
		OutputFormat: "csv",
		Columns:      ColumnsUnion,
		UserAgent:    "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
	}
}

// Query returns the search parameters with the page size clamped.
func (c *Config) Query() models.Query {
	return models.Query{
		Surname:   c.Surname,
		Forename:  c.Forename,
		Place:     c.Place,
		BeginYear: c.BeginYear,
		EndYear:   c.EndYear,
		PageSize:  c.PageSize,
		Delay:     c.Delay,
		Timeout:   c.Timeout,
	}.Clamped()
}

// ToStdout reports whether the export goes to standard output.
func (c *Config) ToStdout() bool {
	return c.OutputFile == "" || c.OutputFile == StdoutPath
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.PageSize <= 0 {
		return fmt.Errorf("rows per request must be positive")
	}
	if c.BeginYear > c.EndYear {
		return fmt.Errorf("begin year (%d) cannot be after end year (%d)", c.BeginYear, c.EndYear)
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.DetailCacheSize < 0 {
		return fmt.Errorf("cache size cannot be negative")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.OutputFormat == "dual" && c.ToStdout() {
		return fmt.Errorf("dual output format requires an output file")
	}
	if c.Columns != ColumnsUnion && c.Columns != ColumnsFirstRow {
		return fmt.Errorf("columns must be %s or %s", ColumnsUnion, ColumnsFirstRow)
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}
