// Package config provides YAML configuration parsing for kubetable.
//
// This package enables running kubetable as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	server: ${CLUSTER_URL:-http://localhost:8080}
//	health:
//	  url: http://localhost:8080/healthz
//	  interval: 5s
//
//	tables:
//	  - name: pods
//	    path: /api/v1/resources/pods?dense=true
//	    sort: age
//	    descending: true
//	    fields:
//	      phase: status.phase
//	    columns: [name, namespace, phase, age]
//
//	serve:
//	  port: 8080
//	  fixtures:
//	    pods: fixtures/pods.yaml
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jpalmerr/kubetable"
)

// minProbeInterval is the minimum allowed health probe interval. This
// prevents hammering the cluster gateway with an overly aggressive monitor.
const minProbeInterval = 1 * time.Second

// defaultColumns are displayed when a table lists none.
var defaultColumns = []string{"name", "namespace", "age"}

// Config is the root configuration structure for kubetable.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Server is the base URL of the cluster API gateway, e.g.
	// "https://cluster.example.com". Table paths are resolved against it.
	// Supports environment variable substitution.
	Server string `yaml:"server"`

	// Health configures the connectivity monitor. Optional.
	Health HealthConfig `yaml:"health"`

	// Tables defines the resource tables to watch.
	Tables []TableConfig `yaml:"tables"`

	// Serve configures "kubetable serve".
	Serve ServeConfig `yaml:"serve"`

	// dir is the directory of the loaded file; relative fixture paths
	// resolve against it.
	dir string
}

// HealthConfig configures the connectivity monitor.
type HealthConfig struct {
	// URL is the health endpoint. Monitoring is disabled when empty.
	// Supports environment variable substitution.
	URL string `yaml:"url"`

	// Headers are sent with every probe. Values support environment
	// variable substitution.
	Headers map[string]string `yaml:"headers"`

	// Interval is the time between probes. Defaults to 5s, minimum 1s.
	Interval Duration `yaml:"interval"`

	// Timeout bounds each probe. Defaults to 2s.
	Timeout Duration `yaml:"timeout"`

	// Extractor determines how to interpret the probe response.
	Extractor ExtractorConfig `yaml:"extractor"`
}

// TableConfig defines one resource table.
type TableConfig struct {
	// Name identifies the table on the command line and in logs.
	Name string `yaml:"name"`

	// Path is the stream path on the server, including any query
	// parameters, e.g. "/api/v1/resources/pods?dense=true".
	Path string `yaml:"path"`

	// Transport is "sse" or "ws". Defaults to the scheme of Server.
	Transport string `yaml:"transport"`

	// Sort is the initial sort key. Defaults to "name".
	Sort string `yaml:"sort"`

	// Descending reverses the initial sort order.
	Descending bool `yaml:"descending"`

	// Namespace is the initial namespace filter; empty shows all.
	Namespace string `yaml:"namespace"`

	// Search is the initial search text.
	Search string `yaml:"search"`

	// Scope is the search scope: "anywhere", "metadata" or "name".
	Scope string `yaml:"scope"`

	// Fields maps extra column names to dotted paths into the resource,
	// e.g. {phase: status.phase}.
	Fields map[string]string `yaml:"fields"`

	// Columns lists the columns to display. Defaults to name, namespace, age.
	Columns []string `yaml:"columns"`

	// Side optionally joins columns from a secondary stream.
	Side *SideConfig `yaml:"side"`
}

// SideConfig defines a secondary stream correlated with a table by
// namespace and name, such as pod metrics.
type SideConfig struct {
	// Path is the stream path on the server.
	Path string `yaml:"path"`

	// Fields are the keys merged into the table's rows. Empty merges all.
	Fields []string `yaml:"fields"`
}

// ServeConfig configures the snapshot server used for local development.
type ServeConfig struct {
	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port"`

	// ResendInterval re-pushes the current snapshot on every stream.
	// Zero disables resends.
	ResendInterval Duration `yaml:"resend_interval"`

	// Fixtures maps resource kinds to YAML or JSON files holding a list of
	// objects. Relative paths resolve against the config file.
	Fixtures map[string]string `yaml:"fixtures"`
}

// ExtractorConfig specifies how to determine health status from a probe
// response.
//
// It supports two formats in YAML:
//
// Shorthand string:
//
//	extractor: json:status
//	extractor: http
//	extractor: default
//
// Structured object:
//
//	extractor:
//	  type: json
//	  path: checks.api
type ExtractorConfig struct {
	// Type is the extractor type: "default", "json" or "http".
	Type string

	// Path is the JSON field path (for type: json).
	Path string
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML implements yaml.Unmarshaler for ExtractorConfig.
func (e *ExtractorConfig) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		return e.parseShorthand(s)

	case yaml.MappingNode:
		// temporary struct to avoid infinite recursion
		var raw struct {
			Type string `yaml:"type"`
			Path string `yaml:"path"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		e.Type = raw.Type
		e.Path = raw.Path
		return nil
	}

	return fmt.Errorf("extractor must be a string or object, got %v", node.Kind)
}

// parseShorthand parses extractor shorthand syntax: "default", "http" or
// "json:path".
func (e *ExtractorConfig) parseShorthand(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	if kind, path, ok := strings.Cut(s, ":"); ok {
		if kind != "json" {
			return fmt.Errorf("unknown extractor type %q", kind)
		}
		e.Type = kind
		e.Path = path
		return nil
	}

	switch s {
	case "default", "http":
		e.Type = s
	default:
		return fmt.Errorf("unknown extractor %q (expected 'default', 'http' or 'json:path')", s)
	}
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		sub := envVarPattern.FindStringSubmatch(match)
		name := sub[1]
		hasDefault := sub[2] != ""

		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		if hasDefault {
			return sub[3]
		}
		firstErr = fmt.Errorf("environment variable %q is not set", name)
		return match
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before validation.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.dir = filepath.Dir(path)
	return cfg, nil
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in Server, Health.URL, header values,
// table paths and fixture paths. Defaults are applied for Serve.Port (8080),
// table sort keys ("name") and columns.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Serve.Port == 0 {
		cfg.Serve.Port = 8080
	}
	for i := range cfg.Tables {
		if cfg.Tables[i].Sort == "" {
			cfg.Tables[i].Sort = "name"
		}
		if len(cfg.Tables[i].Columns) == 0 {
			cfg.Tables[i].Columns = append([]string(nil), defaultColumns...)
		}
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Table returns the table named name.
func (c *Config) Table(name string) (TableConfig, bool) {
	for _, t := range c.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return TableConfig{}, false
}

// FixturePath resolves a fixture path against the config file's directory.
func (c *Config) FixturePath(path string) string {
	if filepath.IsAbs(path) || c.dir == "" {
		return path
	}
	return filepath.Join(c.dir, path)
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if len(c.Tables) == 0 && len(c.Serve.Fixtures) == 0 {
		return errors.New("at least one table or fixture must be defined")
	}

	if len(c.Tables) > 0 || c.Server != "" {
		expanded, err := expandEnvVars(c.Server)
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		c.Server = expanded
		if err := validateURL(c.Server, "http", "https", "ws", "wss"); err != nil {
			return fmt.Errorf("server: %w", err)
		}
	}

	if err := c.Health.expandAndValidate(); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(c.Tables))
	for i := range c.Tables {
		t := &c.Tables[i]
		if err := t.expandAndValidate(fmt.Sprintf("tables[%d]", i)); err != nil {
			return err
		}
		if _, dup := seen[t.Name]; dup {
			return fmt.Errorf("tables[%d] (%s): duplicate table name", i, t.Name)
		}
		seen[t.Name] = struct{}{}
	}

	if c.Serve.Port < 0 || c.Serve.Port > 65535 {
		return fmt.Errorf("serve: port must be between 0 and 65535, got %d", c.Serve.Port)
	}
	if c.Serve.ResendInterval.Duration() < 0 {
		return fmt.Errorf("serve: resend_interval cannot be negative, got %s", c.Serve.ResendInterval.Duration())
	}
	for kind, path := range c.Serve.Fixtures {
		if strings.TrimSpace(kind) == "" {
			return errors.New("serve: fixtures: kind is required")
		}
		expanded, err := expandEnvVars(path)
		if err != nil {
			return fmt.Errorf("serve: fixtures[%s]: %w", kind, err)
		}
		if expanded == "" {
			return fmt.Errorf("serve: fixtures[%s]: path is required", kind)
		}
		c.Serve.Fixtures[kind] = expanded
	}

	return nil
}

func (h *HealthConfig) expandAndValidate() error {
	if h.URL == "" {
		if len(h.Headers) > 0 || h.Interval != 0 || h.Timeout != 0 {
			return errors.New("health: url is required when health is configured")
		}
		return nil
	}

	expanded, err := expandEnvVars(h.URL)
	if err != nil {
		return fmt.Errorf("health: url: %w", err)
	}
	h.URL = expanded
	if err := validateURL(h.URL, "http", "https"); err != nil {
		return fmt.Errorf("health: url: %w", err)
	}

	for k, v := range h.Headers {
		expanded, err := expandEnvVars(v)
		if err != nil {
			return fmt.Errorf("health: headers[%s]: %w", k, err)
		}
		h.Headers[k] = expanded
	}

	if h.Interval != 0 && h.Interval.Duration() < minProbeInterval {
		return fmt.Errorf("health: interval must be at least %s, got %s", minProbeInterval, h.Interval.Duration())
	}
	if h.Timeout.Duration() < 0 {
		return fmt.Errorf("health: timeout cannot be negative, got %s", h.Timeout.Duration())
	}

	switch h.Extractor.Type {
	case "", "default", "http":
	case "json":
		if h.Extractor.Path == "" {
			return errors.New("health: extractor type 'json' requires a path")
		}
	default:
		return fmt.Errorf("health: unknown extractor type %q", h.Extractor.Type)
	}

	return nil
}

func (t *TableConfig) expandAndValidate(context string) error {
	if t.Name == "" {
		return fmt.Errorf("%s: name is required", context)
	}
	context = fmt.Sprintf("%s (%s)", context, t.Name)

	if t.Path == "" {
		return fmt.Errorf("%s: path is required", context)
	}
	expanded, err := expandEnvVars(t.Path)
	if err != nil {
		return fmt.Errorf("%s: path: %w", context, err)
	}
	if !strings.HasPrefix(expanded, "/") {
		return fmt.Errorf("%s: path must start with /, got %q", context, expanded)
	}
	t.Path = expanded

	switch t.Transport {
	case "", "sse", "ws":
	default:
		return fmt.Errorf("%s: transport must be sse or ws, got %q", context, t.Transport)
	}

	if _, ok := kubetable.ParseSearchScope(t.Scope); !ok {
		return fmt.Errorf("%s: scope must be anywhere, metadata or name, got %q", context, t.Scope)
	}

	for column, path := range t.Fields {
		if path == "" {
			return fmt.Errorf("%s: fields[%s]: path is required", context, column)
		}
	}

	if t.Side != nil {
		if t.Side.Path == "" {
			return fmt.Errorf("%s: side: path is required", context)
		}
		expanded, err := expandEnvVars(t.Side.Path)
		if err != nil {
			return fmt.Errorf("%s: side: path: %w", context, err)
		}
		if !strings.HasPrefix(expanded, "/") {
			return fmt.Errorf("%s: side: path must start with /, got %q", context, expanded)
		}
		t.Side.Path = expanded
	}

	return nil
}

// validateURL checks that raw is absolute with one of the given schemes.
func validateURL(raw string, schemes ...string) error {
	if raw == "" {
		return errors.New("is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("url must be absolute with a scheme and host, got %q", raw)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("url scheme must be one of %s, got %q", strings.Join(schemes, ", "), u.Scheme)
}
