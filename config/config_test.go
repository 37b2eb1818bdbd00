package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParse_MinimalConfig(t *testing.T) {
	yaml := `
server: http://localhost:8080
tables:
  - name: pods
    path: /api/v1/resources/pods
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	// check defaults applied
	if cfg.Serve.Port != 8080 {
		t.Errorf("Serve.Port = %d, want 8080", cfg.Serve.Port)
	}
	if len(cfg.Tables) != 1 {
		t.Fatalf("len(Tables) = %d, want 1", len(cfg.Tables))
	}
	tbl := cfg.Tables[0]
	if tbl.Sort != "name" {
		t.Errorf("Sort = %q, want name", tbl.Sort)
	}
	if strings.Join(tbl.Columns, ",") != "name,namespace,age" {
		t.Errorf("Columns = %v, want default columns", tbl.Columns)
	}
	if cfg.Health.URL != "" {
		t.Errorf("Health.URL = %q, want empty", cfg.Health.URL)
	}
}

func TestParse_FullConfig(t *testing.T) {
	yaml := `
server: https://cluster.example.com
health:
  url: https://cluster.example.com/healthz
  interval: 10s
  timeout: 3s
  headers:
    Authorization: Bearer token123
  extractor: json:status
tables:
  - name: pods
    path: /api/v1/resources/pods?dense=true
    transport: ws
    sort: age
    descending: true
    namespace: prod
    search: web
    scope: name
    fields:
      phase: status.phase
      node: spec.nodeName
    columns: [name, phase, node, age]
    side:
      path: /api/v1/resources/podmetrics
      fields: [cpu, memory]
serve:
  port: 9090
  resend_interval: 15s
  fixtures:
    pods: fixtures/pods.yaml
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Server != "https://cluster.example.com" {
		t.Errorf("Server = %q", cfg.Server)
	}
	if cfg.Health.Interval.Duration() != 10*time.Second {
		t.Errorf("Health.Interval = %v, want 10s", cfg.Health.Interval.Duration())
	}
	if cfg.Health.Timeout.Duration() != 3*time.Second {
		t.Errorf("Health.Timeout = %v, want 3s", cfg.Health.Timeout.Duration())
	}
	if cfg.Health.Headers["Authorization"] != "Bearer token123" {
		t.Errorf("Health.Headers[Authorization] = %q", cfg.Health.Headers["Authorization"])
	}
	if cfg.Health.Extractor.Type != "json" || cfg.Health.Extractor.Path != "status" {
		t.Errorf("Health.Extractor = %+v, want json:status", cfg.Health.Extractor)
	}

	tbl := cfg.Tables[0]
	if tbl.Transport != "ws" {
		t.Errorf("Transport = %q, want ws", tbl.Transport)
	}
	if tbl.Sort != "age" || !tbl.Descending {
		t.Errorf("Sort = %q descending=%v, want age descending", tbl.Sort, tbl.Descending)
	}
	if tbl.Namespace != "prod" || tbl.Search != "web" || tbl.Scope != "name" {
		t.Errorf("query = %q %q %q", tbl.Namespace, tbl.Search, tbl.Scope)
	}
	if tbl.Fields["phase"] != "status.phase" {
		t.Errorf("Fields[phase] = %q, want status.phase", tbl.Fields["phase"])
	}
	if len(tbl.Columns) != 4 {
		t.Errorf("Columns = %v, want 4 columns", tbl.Columns)
	}
	if tbl.Side == nil || tbl.Side.Path != "/api/v1/resources/podmetrics" || len(tbl.Side.Fields) != 2 {
		t.Errorf("Side = %+v", tbl.Side)
	}

	if cfg.Serve.Port != 9090 {
		t.Errorf("Serve.Port = %d, want 9090", cfg.Serve.Port)
	}
	if cfg.Serve.ResendInterval.Duration() != 15*time.Second {
		t.Errorf("Serve.ResendInterval = %v, want 15s", cfg.Serve.ResendInterval.Duration())
	}
	if cfg.Serve.Fixtures["pods"] != "fixtures/pods.yaml" {
		t.Errorf("Serve.Fixtures[pods] = %q", cfg.Serve.Fixtures["pods"])
	}
}

func TestParse_ServeOnly(t *testing.T) {
	yaml := `
serve:
  fixtures:
    pods: pods.yaml
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Server != "" {
		t.Errorf("Server = %q, want empty", cfg.Server)
	}
}

func TestParse_ExtractorStructured(t *testing.T) {
	yaml := `
server: http://localhost:8080
health:
  url: http://localhost:8080/healthz
  extractor:
    type: json
    path: checks.api
tables:
  - name: pods
    path: /api/v1/resources/pods
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Health.Extractor.Type != "json" || cfg.Health.Extractor.Path != "checks.api" {
		t.Errorf("Extractor = %+v, want json checks.api", cfg.Health.Extractor)
	}
}

func TestParse_EnvVarExpansion(t *testing.T) {
	t.Setenv("KT_SERVER", "https://prod.example.com")
	t.Setenv("KT_TOKEN", "secret")
	t.Setenv("KT_NS", "kube-system")

	yaml := `
server: ${KT_SERVER}
health:
  url: ${KT_HEALTH:-https://prod.example.com/healthz}
  headers:
    Authorization: Bearer ${KT_TOKEN}
tables:
  - name: pods
    path: /api/v1/resources/pods?namespace=${KT_NS}
serve:
  fixtures:
    pods: ${KT_FIXTURES:-pods.yaml}
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Server != "https://prod.example.com" {
		t.Errorf("Server = %q", cfg.Server)
	}
	if cfg.Health.URL != "https://prod.example.com/healthz" {
		t.Errorf("Health.URL = %q, want default value", cfg.Health.URL)
	}
	if cfg.Health.Headers["Authorization"] != "Bearer secret" {
		t.Errorf("Authorization = %q", cfg.Health.Headers["Authorization"])
	}
	if cfg.Tables[0].Path != "/api/v1/resources/pods?namespace=kube-system" {
		t.Errorf("Path = %q", cfg.Tables[0].Path)
	}
	if cfg.Serve.Fixtures["pods"] != "pods.yaml" {
		t.Errorf("Fixtures[pods] = %q", cfg.Serve.Fixtures["pods"])
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("KT_SET", "value")
	t.Setenv("KT_EMPTY", "")

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"no vars", "plain", "plain", false},
		{"set", "${KT_SET}", "value", false},
		{"embedded", "a-${KT_SET}-b", "a-value-b", false},
		{"set but empty", "${KT_EMPTY}", "", false},
		{"empty beats default", "${KT_EMPTY:-fallback}", "", false},
		{"default", "${KT_UNSET_VAR:-fallback}", "fallback", false},
		{"empty default", "${KT_UNSET_VAR:-}", "", false},
		{"unset", "${KT_UNSET_VAR}", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expandEnvVars(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("expandEnvVars(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "empty",
			yaml:    `server: http://localhost:8080`,
			wantErr: "at least one table or fixture",
		},
		{
			name: "missing server",
			yaml: `
tables:
  - name: pods
    path: /api/v1/resources/pods
`,
			wantErr: "server: is required",
		},
		{
			name: "server without scheme",
			yaml: `
server: localhost:8080
tables:
  - name: pods
    path: /pods
`,
			wantErr: "server:",
		},
		{
			name: "server bad scheme",
			yaml: `
server: ftp://localhost
tables:
  - name: pods
    path: /pods
`,
			wantErr: "url scheme must be one of",
		},
		{
			name: "unset env var",
			yaml: `
server: ${KT_DEFINITELY_UNSET}
tables:
  - name: pods
    path: /pods
`,
			wantErr: "KT_DEFINITELY_UNSET",
		},
		{
			name: "table name missing",
			yaml: `
server: http://localhost
tables:
  - path: /pods
`,
			wantErr: "tables[0]: name is required",
		},
		{
			name: "table path missing",
			yaml: `
server: http://localhost
tables:
  - name: pods
`,
			wantErr: "tables[0] (pods): path is required",
		},
		{
			name: "relative path",
			yaml: `
server: http://localhost
tables:
  - name: pods
    path: api/v1/resources/pods
`,
			wantErr: "path must start with /",
		},
		{
			name: "duplicate table",
			yaml: `
server: http://localhost
tables:
  - name: pods
    path: /a
  - name: pods
    path: /b
`,
			wantErr: "tables[1] (pods): duplicate table name",
		},
		{
			name: "bad transport",
			yaml: `
server: http://localhost
tables:
  - name: pods
    path: /pods
    transport: grpc
`,
			wantErr: "transport must be sse or ws",
		},
		{
			name: "bad scope",
			yaml: `
server: http://localhost
tables:
  - name: pods
    path: /pods
    scope: labels
`,
			wantErr: "scope must be anywhere, metadata or name",
		},
		{
			name: "empty field path",
			yaml: `
server: http://localhost
tables:
  - name: pods
    path: /pods
    fields:
      phase: ""
`,
			wantErr: "fields[phase]: path is required",
		},
		{
			name: "side without path",
			yaml: `
server: http://localhost
tables:
  - name: pods
    path: /pods
    side:
      fields: [cpu]
`,
			wantErr: "side: path is required",
		},
		{
			name: "health without url",
			yaml: `
server: http://localhost
health:
  interval: 5s
tables:
  - name: pods
    path: /pods
`,
			wantErr: "health: url is required",
		},
		{
			name: "health ws url",
			yaml: `
server: http://localhost
health:
  url: ws://localhost/healthz
tables:
  - name: pods
    path: /pods
`,
			wantErr: "health: url:",
		},
		{
			name: "health interval too short",
			yaml: `
server: http://localhost
health:
  url: http://localhost/healthz
  interval: 100ms
tables:
  - name: pods
    path: /pods
`,
			wantErr: "interval must be at least 1s",
		},
		{
			name: "health negative timeout",
			yaml: `
server: http://localhost
health:
  url: http://localhost/healthz
  timeout: -1s
tables:
  - name: pods
    path: /pods
`,
			wantErr: "timeout cannot be negative",
		},
		{
			name: "unknown extractor",
			yaml: `
server: http://localhost
health:
  url: http://localhost/healthz
  extractor: contains:ok
tables:
  - name: pods
    path: /pods
`,
			wantErr: "unknown extractor type",
		},
		{
			name: "json extractor without path",
			yaml: `
server: http://localhost
health:
  url: http://localhost/healthz
  extractor:
    type: json
tables:
  - name: pods
    path: /pods
`,
			wantErr: "requires a path",
		},
		{
			name: "bad duration",
			yaml: `
serve:
  resend_interval: often
  fixtures:
    pods: pods.yaml
`,
			wantErr: "invalid duration",
		},
		{
			name: "negative resend",
			yaml: `
serve:
  resend_interval: -5s
  fixtures:
    pods: pods.yaml
`,
			wantErr: "resend_interval cannot be negative",
		},
		{
			name: "port out of range",
			yaml: `
serve:
  port: 70000
  fixtures:
    pods: pods.yaml
`,
			wantErr: "port must be between",
		},
		{
			name: "empty fixture path",
			yaml: `
serve:
  fixtures:
    pods: ""
`,
			wantErr: "fixtures[pods]: path is required",
		},
		{
			name:    "invalid yaml",
			yaml:    "tables: [",
			wantErr: "failed to parse YAML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatalf("Parse() expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Parse() error = %q, want containing %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kubetable.yaml")
	content := `
server: http://localhost:8080
tables:
  - name: pods
    path: /api/v1/resources/pods
serve:
  fixtures:
    pods: fixtures/pods.yaml
    nodes: /abs/nodes.yaml
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got := cfg.FixturePath(cfg.Serve.Fixtures["pods"]); got != filepath.Join(dir, "fixtures", "pods.yaml") {
		t.Errorf("FixturePath(relative) = %q", got)
	}
	if got := cfg.FixturePath(cfg.Serve.Fixtures["nodes"]); got != "/abs/nodes.yaml" {
		t.Errorf("FixturePath(absolute) = %q", got)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/kubetable.yaml")
	if err == nil || !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("Load() error = %v, want read failure", err)
	}
}

func TestConfig_Table(t *testing.T) {
	cfg, err := Parse([]byte(`
server: http://localhost
tables:
  - name: pods
    path: /pods
  - name: nodes
    path: /nodes
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if tbl, ok := cfg.Table("nodes"); !ok || tbl.Path != "/nodes" {
		t.Errorf("Table(nodes) = %+v, %v", tbl, ok)
	}
	if _, ok := cfg.Table("services"); ok {
		t.Error("Table(services) found, want missing")
	}
}
