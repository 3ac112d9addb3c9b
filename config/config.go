// Package config loads and validates the runner's TOML configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendDynamoDB = "dynamodb"
	BackendSQLite   = "sqlite"
)

// Config is the complete runner configuration.
type Config struct {
	Module ModuleConfig `toml:"module" json:"module"`
	Store  StoreConfig  `toml:"store" json:"store"`
	Server ServerConfig `toml:"server" json:"server"`
	Log    LogConfig    `toml:"log" json:"log"`
}

// ModuleConfig describes the guest module and the runtime hosting it.
type ModuleConfig struct {
	// Path is the precompiled guest module.
	Path string `toml:"path" json:"path" validate:"required" jsonschema:"description=Path to the precompiled wasm module"`

	// ImportModule is the module name the guest imports write_key/read_key from.
	ImportModule string `toml:"import_module" json:"import_module" validate:"required" jsonschema:"default=env"`

	// WASI enables wasi_snapshot_preview1 for guests built with GOOS=wasip1.
	WASI bool `toml:"wasi" json:"wasi"`

	// MemoryLimitPages caps guest memory in 64KiB pages. Zero keeps the runtime default.
	MemoryLimitPages uint32 `toml:"memory_limit_pages" json:"memory_limit_pages" validate:"lte=65536"`

	// CacheDir persists compiled code across restarts when set.
	CacheDir string `toml:"cache_dir" json:"cache_dir,omitempty"`

	// Trace logs every key and value crossing the boundary at debug level.
	Trace bool `toml:"trace" json:"trace"`
}

// StoreConfig selects and configures the capability store backend.
type StoreConfig struct {
	Backend string `toml:"backend" json:"backend" validate:"required,oneof=memory dynamodb sqlite" jsonschema:"enum=memory,enum=dynamodb,enum=sqlite"`

	// Seed entries are loaded into every fresh memory store.
	Seed map[string]string `toml:"seed" json:"seed,omitempty"`

	DynamoDB DynamoDBConfig `toml:"dynamodb" json:"dynamodb"`
	SQLite   SQLiteConfig   `toml:"sqlite" json:"sqlite"`
	Retry    RetryConfig    `toml:"retry" json:"retry"`
}

// DynamoDBConfig configures the DynamoDB backend.
type DynamoDBConfig struct {
	Table          string `toml:"table" json:"table,omitempty"`
	Region         string `toml:"region" json:"region,omitempty"`
	Endpoint       string `toml:"endpoint" json:"endpoint,omitempty" validate:"omitempty,url"`
	KeyAttribute   string `toml:"key_attribute" json:"key_attribute" jsonschema:"default=key"`
	ValueAttribute string `toml:"value_attribute" json:"value_attribute" jsonschema:"default=value"`
}

// SQLiteConfig configures the SQLite backend.
type SQLiteConfig struct {
	Path string `toml:"path" json:"path,omitempty"`
}

// RetryConfig wraps durable backends in a retrying decorator when Attempts > 1.
type RetryConfig struct {
	Attempts int           `toml:"attempts" json:"attempts" validate:"gte=0,lte=10"`
	Backoff  time.Duration `toml:"backoff" json:"backoff" validate:"gte=0"`
}

// ServerConfig configures the HTTP front-end.
type ServerConfig struct {
	Addr           string        `toml:"addr" json:"addr" validate:"required"`
	ContentType    string        `toml:"content_type" json:"content_type" validate:"required"`
	MaxBodyBytes   int64         `toml:"max_body_bytes" json:"max_body_bytes" validate:"gt=0"`
	RequestTimeout time.Duration `toml:"request_timeout" json:"request_timeout" validate:"gte=0"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `toml:"level" json:"level" validate:"oneof=debug info warn error"`
	Format string `toml:"format" json:"format" validate:"oneof=text json"`
}

// Default returns a configuration with every optional field filled in.
func Default() Config {
	return Config{
		Module: ModuleConfig{
			ImportModule: "env",
		},
		Store: StoreConfig{
			Backend: BackendMemory,
			DynamoDB: DynamoDBConfig{
				KeyAttribute:   "key",
				ValueAttribute: "value",
			},
			SQLite: SQLiteConfig{Path: "kv.db"},
			Retry:  RetryConfig{Attempts: 1, Backoff: 50 * time.Millisecond},
		},
		Server: ServerConfig{
			Addr:         ":8080",
			ContentType:  "text/html",
			MaxBodyBytes: 1 << 20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the TOML file at path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes TOML data over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown configuration key %q", undecoded[0].String())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and backend-specific requirements.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid configuration: %s fails %q", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	switch c.Store.Backend {
	case BackendDynamoDB:
		if c.Store.DynamoDB.Table == "" {
			return fmt.Errorf("invalid configuration: store.dynamodb.table is required for the dynamodb backend")
		}
	case BackendSQLite:
		if c.Store.SQLite.Path == "" {
			return fmt.Errorf("invalid configuration: store.sqlite.path is required for the sqlite backend")
		}
	}
	if len(c.Store.Seed) > 0 && c.Store.Backend != BackendMemory {
		return fmt.Errorf("invalid configuration: store.seed is only supported by the memory backend")
	}
	return nil
}

// Schema returns the JSON Schema describing Config.
func Schema() ([]byte, error) {
	r := &jsonschema.Reflector{ExpandedStruct: true}
	s := r.Reflect(&Config{})
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return data, nil
}
