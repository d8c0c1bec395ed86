package config

import (
	"log/slog"
	"reflect"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	cfg, err := Load("tabletalk-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.HTTP.Address != ":8080" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"http://localhost:3000", "localhost:3000"}) {
		t.Fatalf("CORS.AllowedOrigins = %#v", cfg.CORS.AllowedOrigins)
	}
	if cfg.Dataset.Source != DatasetSourceFile {
		t.Fatalf("Dataset.Source = %q", cfg.Dataset.Source)
	}
	if cfg.Dataset.CategoricalMaxDistinct != 20 {
		t.Fatalf("Dataset.CategoricalMaxDistinct = %d", cfg.Dataset.CategoricalMaxDistinct)
	}
	if cfg.AI.Provider != AIProviderGemini {
		t.Fatalf("AI.Provider = %q", cfg.AI.Provider)
	}
	if cfg.Prompt.Version != "v2" {
		t.Fatalf("Prompt.Version = %q", cfg.Prompt.Version)
	}
	if cfg.Sandbox.Deadline != 3*time.Second {
		t.Fatalf("Sandbox.Deadline = %s", cfg.Sandbox.Deadline)
	}
	if cfg.Sandbox.MaxConcurrent != 4 {
		t.Fatalf("Sandbox.MaxConcurrent = %d", cfg.Sandbox.MaxConcurrent)
	}
	if len(cfg.Sandbox.WorkerCommand) != 0 {
		t.Fatalf("Sandbox.WorkerCommand = %#v, want empty", cfg.Sandbox.WorkerCommand)
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	cfg, err := Load("tabletalk-api", mapLookup(map[string]string{"TABLETALK_PROFILE": "prod"}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileProd {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileProd)
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if len(cfg.CORS.AllowedOrigins) != 0 {
		t.Fatalf("CORS.AllowedOrigins = %#v, want none in prod", cfg.CORS.AllowedOrigins)
	}
	if !cfg.ObjectStore.UseSSL {
		t.Fatal("ObjectStore.UseSSL should default to true in prod")
	}
	if cfg.ObjectStore.AutoCreateBucket {
		t.Fatal("ObjectStore.AutoCreateBucket should default to false in prod")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"TABLETALK_PROFILE":                          "test",
		"TABLETALK_SERVICE_NAME":                     "tabletalk-custom",
		"TABLETALK_HTTP_ADDR":                        ":9999",
		"TABLETALK_HTTP_READ_TIMEOUT":                "2s",
		"TABLETALK_HTTP_WRITE_TIMEOUT":               "3s",
		"TABLETALK_LOG_LEVEL":                        "error",
		"TABLETALK_CORS_ALLOWED_ORIGINS":             "https://a.example, ,https://b.example",
		"TABLETALK_DATASET_SOURCE":                   "POSTGRES",
		"TABLETALK_DATASET_DSN":                      "postgres://example",
		"TABLETALK_DATASET_QUERY":                    "select * from sales",
		"TABLETALK_DATASET_SNAPSHOT_DIR":             "/var/lib/tabletalk",
		"TABLETALK_DATASET_CATEGORICAL_MAX_DISTINCT": "7",
		"TABLETALK_DATASET_MAX_PREVIEW_ROWS":         "50",
		"TABLETALK_OBJECTSTORE_ENDPOINT":             "s3.example.com",
		"TABLETALK_OBJECTSTORE_BUCKET":               "tabletalk-prod",
		"TABLETALK_OBJECTSTORE_USE_SSL":              "true",
		"TABLETALK_OBJECTSTORE_AUTO_CREATE_BUCKET":   "false",
		"TABLETALK_AI_PROVIDER":                      "OpenAI",
		"TABLETALK_AI_BASE_URL":                      "https://api.example.com",
		"TABLETALK_AI_API_KEY":                       "secret-key",
		"TABLETALK_AI_MODEL":                         "gpt-5.2",
		"TABLETALK_AI_TIMEOUT":                       "21s",
		"TABLETALK_PROMPT_VERSION":                   "v1",
		"TABLETALK_PROMPT_FILE":                      "/etc/tabletalk/prompts.yaml",
		"TABLETALK_SANDBOX_WORKER_COMMAND":           "bwrap --unshare-all /usr/bin/tabletalk-api sandbox-worker",
		"TABLETALK_SANDBOX_DEADLINE":                 "1500ms",
		"TABLETALK_SANDBOX_MAX_CONCURRENT":           "9",
		"TABLETALK_SANDBOX_QUEUE_TIMEOUT":            "2s",
		"TABLETALK_SANDBOX_MEMORY_LIMIT":             "128MB",
		"TABLETALK_SANDBOX_THREADS":                  "2",
		"TABLETALK_SANDBOX_MAX_OUTPUT_BYTES":         "4096",
		"TABLETALK_SANDBOX_POLICY_FILE":              "/etc/tabletalk/policy.rego",
		"TABLETALK_SANDBOX_ENV":                      "TZ=UTC,LANG=C",
	})
	cfg, err := Load("tabletalk-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Service.Name != "tabletalk-custom" {
		t.Fatalf("Service.Name = %q", cfg.Service.Name)
	}
	if cfg.HTTP.Address != ":9999" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.HTTP.ReadTimeout != 2*time.Second {
		t.Fatalf("HTTP.ReadTimeout = %s", cfg.HTTP.ReadTimeout)
	}
	if cfg.HTTP.WriteTimeout != 3*time.Second {
		t.Fatalf("HTTP.WriteTimeout = %s", cfg.HTTP.WriteTimeout)
	}
	if cfg.Observability.LogLevel != slog.LevelError {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.example", "https://b.example"}) {
		t.Fatalf("CORS.AllowedOrigins = %#v", cfg.CORS.AllowedOrigins)
	}
	if cfg.Dataset.Source != DatasetSourcePostgres {
		t.Fatalf("Dataset.Source = %q", cfg.Dataset.Source)
	}
	if cfg.Dataset.DSN != "postgres://example" {
		t.Fatalf("Dataset.DSN = %q", cfg.Dataset.DSN)
	}
	if cfg.Dataset.Query != "select * from sales" {
		t.Fatalf("Dataset.Query = %q", cfg.Dataset.Query)
	}
	if cfg.Dataset.SnapshotDir != "/var/lib/tabletalk" {
		t.Fatalf("Dataset.SnapshotDir = %q", cfg.Dataset.SnapshotDir)
	}
	if cfg.Dataset.CategoricalMaxDistinct != 7 {
		t.Fatalf("Dataset.CategoricalMaxDistinct = %d", cfg.Dataset.CategoricalMaxDistinct)
	}
	if cfg.Dataset.MaxPreviewRows != 50 {
		t.Fatalf("Dataset.MaxPreviewRows = %d", cfg.Dataset.MaxPreviewRows)
	}
	if cfg.ObjectStore.Endpoint != "s3.example.com" {
		t.Fatalf("ObjectStore.Endpoint = %q", cfg.ObjectStore.Endpoint)
	}
	if cfg.ObjectStore.Bucket != "tabletalk-prod" {
		t.Fatalf("ObjectStore.Bucket = %q", cfg.ObjectStore.Bucket)
	}
	if !cfg.ObjectStore.UseSSL {
		t.Fatal("ObjectStore.UseSSL = false, want true")
	}
	if cfg.ObjectStore.AutoCreateBucket {
		t.Fatal("ObjectStore.AutoCreateBucket = true, want false")
	}
	if cfg.AI.Provider != AIProviderOpenAI {
		t.Fatalf("AI.Provider = %q", cfg.AI.Provider)
	}
	if cfg.AI.BaseURL != "https://api.example.com" {
		t.Fatalf("AI.BaseURL = %q", cfg.AI.BaseURL)
	}
	if cfg.AI.APIKey != "secret-key" {
		t.Fatalf("AI.APIKey = %q", cfg.AI.APIKey)
	}
	if cfg.AI.Model != "gpt-5.2" {
		t.Fatalf("AI.Model = %q", cfg.AI.Model)
	}
	if cfg.AI.Timeout != 21*time.Second {
		t.Fatalf("AI.Timeout = %s", cfg.AI.Timeout)
	}
	if cfg.Prompt.Version != "v1" {
		t.Fatalf("Prompt.Version = %q", cfg.Prompt.Version)
	}
	if cfg.Prompt.File != "/etc/tabletalk/prompts.yaml" {
		t.Fatalf("Prompt.File = %q", cfg.Prompt.File)
	}
	wantCommand := []string{"bwrap", "--unshare-all", "/usr/bin/tabletalk-api", "sandbox-worker"}
	if !reflect.DeepEqual(cfg.Sandbox.WorkerCommand, wantCommand) {
		t.Fatalf("Sandbox.WorkerCommand = %#v", cfg.Sandbox.WorkerCommand)
	}
	if cfg.Sandbox.Deadline != 1500*time.Millisecond {
		t.Fatalf("Sandbox.Deadline = %s", cfg.Sandbox.Deadline)
	}
	if cfg.Sandbox.MaxConcurrent != 9 {
		t.Fatalf("Sandbox.MaxConcurrent = %d", cfg.Sandbox.MaxConcurrent)
	}
	if cfg.Sandbox.QueueTimeout != 2*time.Second {
		t.Fatalf("Sandbox.QueueTimeout = %s", cfg.Sandbox.QueueTimeout)
	}
	if cfg.Sandbox.MemoryLimit != "128MB" {
		t.Fatalf("Sandbox.MemoryLimit = %q", cfg.Sandbox.MemoryLimit)
	}
	if cfg.Sandbox.Threads != 2 {
		t.Fatalf("Sandbox.Threads = %d", cfg.Sandbox.Threads)
	}
	if cfg.Sandbox.MaxOutputBytes != 4096 {
		t.Fatalf("Sandbox.MaxOutputBytes = %d", cfg.Sandbox.MaxOutputBytes)
	}
	if cfg.Sandbox.PolicyFile != "/etc/tabletalk/policy.rego" {
		t.Fatalf("Sandbox.PolicyFile = %q", cfg.Sandbox.PolicyFile)
	}
	if !reflect.DeepEqual(cfg.Sandbox.Env, []string{"TZ=UTC", "LANG=C"}) {
		t.Fatalf("Sandbox.Env = %#v", cfg.Sandbox.Env)
	}
}

func TestLoadErrorsOnInvalidValues(t *testing.T) {
	tests := []map[string]string{
		{"TABLETALK_PROFILE": "oops"},
		{"TABLETALK_HTTP_READ_TIMEOUT": "NaN"},
		{"TABLETALK_HTTP_ADDR": ""},
		{"TABLETALK_DATASET_SOURCE": "ftp"},
		{"TABLETALK_DATASET_SOURCE": "postgres"},
		{"TABLETALK_DATASET_SOURCE": "sqlite", "TABLETALK_DATASET_DSN": "file:x.db"},
		{"TABLETALK_DATASET_SOURCE": "sqlite", "TABLETALK_DATASET_DSN": "file:x.db", "TABLETALK_DATASET_TABLE": "a", "TABLETALK_DATASET_QUERY": "select 1"},
		{"TABLETALK_DATASET_SOURCE": "s3"},
		{"TABLETALK_DATASET_CATEGORICAL_MAX_DISTINCT": "0"},
		{"TABLETALK_AI_PROVIDER": "llama"},
		{"TABLETALK_SANDBOX_DEADLINE": "0s"},
		{"TABLETALK_SANDBOX_MAX_CONCURRENT": "oops"},
		{"TABLETALK_SANDBOX_MAX_OUTPUT_BYTES": "-1"},
		{"TABLETALK_OBJECTSTORE_USE_SSL": "not-bool"},
		{"TABLETALK_LOG_LEVEL": "verbose"},
	}
	for _, env := range tests {
		_, err := Load("tabletalk-api", mapLookup(env))
		if err == nil {
			t.Fatalf("Load() expected error for env %#v", env)
		}
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
