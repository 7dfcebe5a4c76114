package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// EnvString returns the trimmed value of key when it is set and non-empty.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses key as an integer when it is set.
func EnvInt(key string) (int, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return value, true, nil
}

// ApplyEnv overrides fields from GLOBIDX_* environment variables.
func (c *Config) ApplyEnv() error {
	if value, ok := EnvString("GLOBIDX_BASE_URL"); ok {
		c.BaseURL = value
	}
	if value, ok := EnvString("GLOBIDX_OUTPUT"); ok {
		c.OutputFile = value
	}
	if value, ok := EnvString("GLOBIDX_FORMAT"); ok {
		c.OutputFormat = strings.ToLower(value)
	}
	if value, ok := EnvString("GLOBIDX_METRICS_ADDR"); ok {
		c.MetricsAddr = value
	}
	if value, ok := EnvString("GLOBIDX_USER_AGENT"); ok {
		c.UserAgent = value
	}

	if value, ok, err := EnvInt("GLOBIDX_ROWS"); err != nil {
		return err
	} else if ok {
		c.PageSize = value
	}
	if value, ok, err := EnvInt("GLOBIDX_WAIT"); err != nil {
		return err
	} else if ok {
		c.Delay = time.Duration(value) * time.Second
	}
	if value, ok, err := EnvInt("GLOBIDX_TIMEOUT"); err != nil {
		return err
	} else if ok {
		c.Timeout = time.Duration(value) * time.Second
	}
	if value, ok, err := EnvInt("GLOBIDX_CACHE_SIZE"); err != nil {
		return err
	} else if ok {
		c.DetailCacheSize = value
	}
	return nil
}

// LoadFile reads a YAML config file on top of c. Keys missing from the
// file keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	file := fileConfig{Config: *c}
	if err := yaml.UnmarshalStrict(data, &file); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	*c = file.Config
	if file.Delay != nil {
		c.Delay = time.Duration(*file.Delay)
	}
	if file.Timeout != nil {
		c.Timeout = time.Duration(*file.Timeout)
	}
	return nil
}

// fileConfig is the on-disk layout. Durations accept whole seconds like the
// flags, or Go duration strings such as "1500ms".
type fileConfig struct {
	Config `yaml:",inline"`

	Delay   *seconds `yaml:"delay"`
	Timeout *seconds `yaml:"timeout"`
}

type seconds time.Duration

func (s *seconds) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var n int
	if err := unmarshal(&n); err == nil {
		*s = seconds(time.Duration(n) * time.Second)
		return nil
	}
	var text string
	if err := unmarshal(&text); err != nil {
		return err
	}
	d, err := time.ParseDuration(text)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*s = seconds(d)
	return nil
}
