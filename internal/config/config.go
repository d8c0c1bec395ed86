package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const (
	DatasetSourceFile     = "file"
	DatasetSourceS3       = "s3"
	DatasetSourcePostgres = "postgres"
	DatasetSourceSQLite   = "sqlite"
)

const (
	AIProviderOpenAI = "openai"
	AIProviderGemini = "gemini"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	CORS          CORSConfig
	Dataset       DatasetConfig
	ObjectStore   ObjectStoreConfig
	AI            AIConfig
	Prompt        PromptConfig
	Sandbox       SandboxConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type DatasetConfig struct {
	Source                 string
	Path                   string
	ObjectKey              string
	DSN                    string
	Table                  string
	Query                  string
	SnapshotDir            string
	CategoricalMaxDistinct int
	MaxPreviewRows         int
	MaxOpenConns           int
	ConnMaxLifetime        time.Duration
}

type ObjectStoreConfig struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type AIConfig struct {
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

type PromptConfig struct {
	Version string
	File    string
}

type SandboxConfig struct {
	// WorkerCommand overrides the default self re-exec. The first element is the
	// executable; the job is always delivered on stdin.
	WorkerCommand  []string
	Deadline       time.Duration
	MaxConcurrent  int
	QueueTimeout   time.Duration
	MemoryLimit    string
	Threads        int
	MaxOutputBytes int
	PolicyFile     string
	Env            []string
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("TABLETALK_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid TABLETALK_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	appliers := []func() error{
		func() error { return applyString(lookup, "TABLETALK_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "TABLETALK_HTTP_ADDR", &cfg.HTTP.Address) },
		func() error { return applyDuration(lookup, "TABLETALK_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout) },
		func() error { return applyDuration(lookup, "TABLETALK_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout) },
		func() error { return applyDuration(lookup, "TABLETALK_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout) },
		func() error { return applyList(lookup, "TABLETALK_CORS_ALLOWED_ORIGINS", &cfg.CORS.AllowedOrigins) },

		func() error { return applyString(lookup, "TABLETALK_DATASET_SOURCE", &cfg.Dataset.Source) },
		func() error { return applyString(lookup, "TABLETALK_DATASET_PATH", &cfg.Dataset.Path) },
		func() error { return applyString(lookup, "TABLETALK_DATASET_OBJECT_KEY", &cfg.Dataset.ObjectKey) },
		func() error { return applyString(lookup, "TABLETALK_DATASET_DSN", &cfg.Dataset.DSN) },
		func() error { return applyString(lookup, "TABLETALK_DATASET_TABLE", &cfg.Dataset.Table) },
		func() error { return applyString(lookup, "TABLETALK_DATASET_QUERY", &cfg.Dataset.Query) },
		func() error { return applyString(lookup, "TABLETALK_DATASET_SNAPSHOT_DIR", &cfg.Dataset.SnapshotDir) },
		func() error {
			return applyInt(lookup, "TABLETALK_DATASET_CATEGORICAL_MAX_DISTINCT", &cfg.Dataset.CategoricalMaxDistinct)
		},
		func() error { return applyInt(lookup, "TABLETALK_DATASET_MAX_PREVIEW_ROWS", &cfg.Dataset.MaxPreviewRows) },
		func() error { return applyInt(lookup, "TABLETALK_DATASET_MAX_OPEN_CONNS", &cfg.Dataset.MaxOpenConns) },
		func() error {
			return applyDuration(lookup, "TABLETALK_DATASET_CONN_MAX_LIFETIME", &cfg.Dataset.ConnMaxLifetime)
		},

		func() error { return applyString(lookup, "TABLETALK_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint) },
		func() error { return applyString(lookup, "TABLETALK_OBJECTSTORE_REGION", &cfg.ObjectStore.Region) },
		func() error { return applyString(lookup, "TABLETALK_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket) },
		func() error { return applyString(lookup, "TABLETALK_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID) },
		func() error {
			return applyString(lookup, "TABLETALK_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey)
		},
		func() error { return applyBool(lookup, "TABLETALK_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL) },
		func() error { return applyString(lookup, "TABLETALK_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix) },
		func() error {
			return applyBool(lookup, "TABLETALK_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket)
		},

		func() error { return applyString(lookup, "TABLETALK_AI_PROVIDER", &cfg.AI.Provider) },
		func() error { return applyString(lookup, "TABLETALK_AI_BASE_URL", &cfg.AI.BaseURL) },
		func() error { return applyString(lookup, "TABLETALK_AI_API_KEY", &cfg.AI.APIKey) },
		func() error { return applyString(lookup, "TABLETALK_AI_MODEL", &cfg.AI.Model) },
		func() error { return applyDuration(lookup, "TABLETALK_AI_TIMEOUT", &cfg.AI.Timeout) },

		func() error { return applyString(lookup, "TABLETALK_PROMPT_VERSION", &cfg.Prompt.Version) },
		func() error { return applyString(lookup, "TABLETALK_PROMPT_FILE", &cfg.Prompt.File) },

		func() error { return applyFields(lookup, "TABLETALK_SANDBOX_WORKER_COMMAND", &cfg.Sandbox.WorkerCommand) },
		func() error { return applyDuration(lookup, "TABLETALK_SANDBOX_DEADLINE", &cfg.Sandbox.Deadline) },
		func() error { return applyInt(lookup, "TABLETALK_SANDBOX_MAX_CONCURRENT", &cfg.Sandbox.MaxConcurrent) },
		func() error { return applyDuration(lookup, "TABLETALK_SANDBOX_QUEUE_TIMEOUT", &cfg.Sandbox.QueueTimeout) },
		func() error { return applyString(lookup, "TABLETALK_SANDBOX_MEMORY_LIMIT", &cfg.Sandbox.MemoryLimit) },
		func() error { return applyInt(lookup, "TABLETALK_SANDBOX_THREADS", &cfg.Sandbox.Threads) },
		func() error { return applyInt(lookup, "TABLETALK_SANDBOX_MAX_OUTPUT_BYTES", &cfg.Sandbox.MaxOutputBytes) },
		func() error { return applyString(lookup, "TABLETALK_SANDBOX_POLICY_FILE", &cfg.Sandbox.PolicyFile) },
		func() error { return applyList(lookup, "TABLETALK_SANDBOX_ENV", &cfg.Sandbox.Env) },

		func() error { return applyBool(lookup, "TABLETALK_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "TABLETALK_LOG_LEVEL", &cfg.Observability.LogLevel) },
	}
	for _, apply := range appliers {
		if err := apply(); err != nil {
			return Config{}, err
		}
	}

	cfg.Dataset.Source = strings.ToLower(cfg.Dataset.Source)
	cfg.AI.Provider = strings.ToLower(cfg.AI.Provider)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Service.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if c.HTTP.Address == "" {
		return fmt.Errorf("http address is required")
	}
	switch c.Dataset.Source {
	case DatasetSourceFile, DatasetSourceS3, DatasetSourcePostgres, DatasetSourceSQLite:
	default:
		return fmt.Errorf("invalid TABLETALK_DATASET_SOURCE: %q", c.Dataset.Source)
	}
	if c.Dataset.Source == DatasetSourcePostgres || c.Dataset.Source == DatasetSourceSQLite {
		if c.Dataset.DSN == "" {
			return fmt.Errorf("TABLETALK_DATASET_DSN is required for %s source", c.Dataset.Source)
		}
		if (c.Dataset.Table == "") == (c.Dataset.Query == "") {
			return fmt.Errorf("exactly one of TABLETALK_DATASET_TABLE or TABLETALK_DATASET_QUERY is required for %s source", c.Dataset.Source)
		}
	}
	if c.Dataset.Source == DatasetSourceS3 && c.Dataset.ObjectKey == "" {
		return fmt.Errorf("TABLETALK_DATASET_OBJECT_KEY is required for s3 source")
	}
	if c.Dataset.CategoricalMaxDistinct <= 0 {
		return fmt.Errorf("TABLETALK_DATASET_CATEGORICAL_MAX_DISTINCT must be positive")
	}
	switch c.AI.Provider {
	case AIProviderOpenAI, AIProviderGemini:
	default:
		return fmt.Errorf("invalid TABLETALK_AI_PROVIDER: %q", c.AI.Provider)
	}
	if c.Sandbox.Deadline <= 0 {
		return fmt.Errorf("TABLETALK_SANDBOX_DEADLINE must be positive")
	}
	if c.Sandbox.MaxConcurrent <= 0 {
		return fmt.Errorf("TABLETALK_SANDBOX_MAX_CONCURRENT must be positive")
	}
	if c.Sandbox.MaxOutputBytes <= 0 {
		return fmt.Errorf("TABLETALK_SANDBOX_MAX_OUTPUT_BYTES must be positive")
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "tabletalk-api"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:3000", "localhost:3000"},
		},
		Dataset: DatasetConfig{
			Source:                 DatasetSourceFile,
			Path:                   "data/dataset.csv",
			SnapshotDir:            "",
			CategoricalMaxDistinct: 20,
			MaxPreviewRows:         500,
			MaxOpenConns:           4,
			ConnMaxLifetime:        30 * time.Minute,
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "tabletalk",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			Prefix:           "",
			AutoCreateBucket: true,
		},
		AI: AIConfig{
			Provider: AIProviderGemini,
			BaseURL:  "https://generativelanguage.googleapis.com",
			Model:    "gemini-1.5-flash",
			Timeout:  30 * time.Second,
		},
		Prompt: PromptConfig{
			Version: "v2",
		},
		Sandbox: SandboxConfig{
			Deadline:       3 * time.Second,
			MaxConcurrent:  4,
			QueueTimeout:   5 * time.Second,
			MemoryLimit:    "256MB",
			Threads:        1,
			MaxOutputBytes: 1 << 20,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.CORS.AllowedOrigins = nil
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

// applyList reads a comma separated list; empty entries are dropped.
func applyList(lookup LookupFunc, key string, dst *[]string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	*dst = out
	return nil
}

func applyFields(lookup LookupFunc, key string, dst *[]string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.Fields(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
