package types

import (
	"time"

	"github.com/mesh-intelligence/clusterstore/pkg/errors"
)

// Supported dialects.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
)

// knownDialects lists the dialects that Validate accepts.
var knownDialects = map[string]bool{
	DialectSQLite:   true,
	DialectPostgres: true,
	DialectMySQL:    true,
}

// Config holds the connection and pool settings of the store.
type Config struct {
	Dialect  string `json:"dialect" yaml:"dialect" mapstructure:"dialect"`
	URI      string `json:"uri" yaml:"uri" mapstructure:"uri"`
	User     string `json:"user" yaml:"user" mapstructure:"user"`
	Password string `json:"password" yaml:"password" mapstructure:"password"`
	// DataDir holds the SQLite database file when URI is empty.
	DataDir string `json:"data_dir" yaml:"data_dir" mapstructure:"data_dir"`

	// AutoCommit makes every operation its own implicit transaction; no
	// connection is reserved per transaction handle.
	AutoCommit bool `json:"auto_commit" yaml:"auto_commit" mapstructure:"auto_commit"`
	ReadOnly   bool `json:"read_only" yaml:"read_only" mapstructure:"read_only"`

	MaxPoolSize    int           `json:"max_pool_size" yaml:"max_pool_size" mapstructure:"max_pool_size"`
	MinIdle        int           `json:"min_idle" yaml:"min_idle" mapstructure:"min_idle"`
	IdleTimeout    time.Duration `json:"idle_timeout" yaml:"idle_timeout" mapstructure:"idle_timeout"`
	MaxLifetime    time.Duration `json:"max_lifetime" yaml:"max_lifetime" mapstructure:"max_lifetime"`
	AcquireTimeout time.Duration `json:"acquire_timeout" yaml:"acquire_timeout" mapstructure:"acquire_timeout"`

	NameLength   int `json:"name_length" yaml:"name_length" mapstructure:"name_length"`
	StringLength int `json:"string_length" yaml:"string_length" mapstructure:"string_length"`
}

// DefaultConfig returns a SQLite configuration with the default pool sizing.
func DefaultConfig() Config {
	return Config{
		Dialect:        DialectSQLite,
		MaxPoolSize:    50,
		MinIdle:        10,
		IdleTimeout:    30 * time.Second,
		MaxLifetime:    60 * time.Second,
		AcquireTimeout: 30 * time.Second,
		NameLength:     64,
		StringLength:   800,
	}
}

// Validate checks that the Config is well-formed. Failures carry the
// Configuration code.
func (c Config) Validate() error {
	if c.Dialect == "" {
		return errors.New(errors.Configuration, "dialect must not be empty")
	}
	if !knownDialects[c.Dialect] {
		return errors.Newf(errors.Configuration, "unknown dialect %q", c.Dialect)
	}
	if c.MaxPoolSize <= 0 {
		return errors.Newf(errors.Configuration, "max_pool_size must be positive, got %d", c.MaxPoolSize)
	}
	if c.MinIdle < 0 || c.MinIdle > c.MaxPoolSize {
		return errors.Newf(errors.Configuration, "min_idle must be between 0 and max_pool_size, got %d", c.MinIdle)
	}
	if c.AcquireTimeout <= 0 {
		return errors.New(errors.Configuration, "acquire_timeout must be positive")
	}
	if c.NameLength <= 0 || c.StringLength <= 0 {
		return errors.New(errors.Configuration, "name_length and string_length must be positive")
	}
	switch c.Dialect {
	case DialectSQLite:
		if c.URI == "" && c.DataDir == "" {
			return errors.New(errors.Configuration, "sqlite needs uri or data_dir")
		}
	default:
		if c.URI == "" {
			return errors.Newf(errors.Configuration, "%s needs uri", c.Dialect)
		}
	}
	return nil
}
