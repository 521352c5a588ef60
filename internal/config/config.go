// Package config loads cpgcore settings from an optional config file and
// CPGCORE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"cpgcore/internal/blob"
	"cpgcore/internal/disease"
	"cpgcore/internal/runlog"
)

// EnvPrefix prefixes every environment override, e.g. CPGCORE_PIPELINE_WORKERS.
const EnvPrefix = "CPGCORE"

// Config holds application configuration.
type Config struct {
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Disease  DiseaseConfig  `mapstructure:"disease"`
	Blob     blob.Config    `mapstructure:"blob"`
	Runs     runlog.Config  `mapstructure:"runs"`
	Export   ExportConfig   `mapstructure:"export"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Inputs   InputsConfig   `mapstructure:"inputs"`
}

// PipelineConfig tunes the annotation run.
type PipelineConfig struct {
	Workers     int  `mapstructure:"workers"`
	Suggestions bool `mapstructure:"suggestions"`
}

// DiseaseConfig selects the classification used by filtered disease mode.
type DiseaseConfig struct {
	FilterClass string `mapstructure:"filter_class"`
}

// ExportConfig lists the formats each table is exported in.
type ExportConfig struct {
	Formats []string `mapstructure:"formats"`
}

// MetricsConfig picks the stage metrics backend: expvar, prometheus or none.
type MetricsConfig struct {
	Backend string `mapstructure:"backend"`
	// Trace, when set, is a file receiving JSON-lines stage spans.
	Trace string `mapstructure:"trace"`
	// Textfile, when set with the prometheus backend, receives the registry
	// in text exposition format after each run.
	Textfile string `mapstructure:"textfile"`
}

// InputsConfig holds the input table paths.
type InputsConfig struct {
	Mappings       string `mapstructure:"mappings"`
	Genes          string `mapstructure:"genes"`
	Atlas          string `mapstructure:"atlas"`
	Disease        string `mapstructure:"disease"`
	CatalogResults string `mapstructure:"catalog_results"`
	CatalogStudies string `mapstructure:"catalog_studies"`
	CpGs           string `mapstructure:"cpgs"`
}

var defaults = map[string]any{
	"pipeline.workers":          1,
	"pipeline.suggestions":      true,
	"disease.filter_class":      disease.DefaultFilterClass,
	"blob.driver":               string(blob.DriverFilesystem),
	"blob.fs_root":              "./artifacts",
	"blob.s3.region":            "us-east-1",
	"blob.s3.bucket":            "",
	"blob.s3.endpoint":          "",
	"blob.s3.access_key_id":     "",
	"blob.s3.secret_access_key": "",
	"blob.s3.session_token":     "",
	"blob.s3.path_style":        false,
	"blob.s3.prefix":            "",
	"runs.driver":               runlog.DriverSQLite,
	"runs.sqlite_path":          "cpgcore.db",
	"runs.postgres_dsn":         "",
	"export.formats":            []string{"csv"},
	"metrics.backend":           "expvar",
	"metrics.trace":             "",
	"metrics.textfile":          "",
	"inputs.mappings":           "",
	"inputs.genes":              "",
	"inputs.atlas":              "",
	"inputs.disease":            "",
	"inputs.catalog_results":    "",
	"inputs.catalog_studies":    "",
	"inputs.cpgs":               "",
}

// New returns a viper instance with defaults, env binding and, when path (or
// CPGCORE_CONFIG) names a file, that file read in. Callers may bind flags on
// it before calling Decode.
func New(path string) (*viper.Viper, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path == "" {
		v.SetConfigName("cpgcore")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
		return v, nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return v, nil
}

// Decode unmarshals v into a Config and validates it.
func Decode(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Load is New followed by Decode.
func Load(path string) (Config, error) {
	v, err := New(path)
	if err != nil {
		return Config{}, err
	}
	return Decode(v)
}

// Validate rejects unknown drivers and formats.
func (c Config) Validate() error {
	switch c.Blob.Driver {
	case "", blob.DriverFilesystem, blob.DriverMemory, blob.DriverS3:
	default:
		return fmt.Errorf("blob.driver: unknown driver %q", c.Blob.Driver)
	}
	switch strings.ToLower(c.Runs.Driver) {
	case "", runlog.DriverMemory, runlog.DriverSQLite, runlog.DriverPostgres:
	default:
		return fmt.Errorf("runs.driver: unknown driver %q", c.Runs.Driver)
	}
	switch c.Metrics.Backend {
	case "", "expvar", "prometheus", "none":
	default:
		return fmt.Errorf("metrics.backend: unknown backend %q", c.Metrics.Backend)
	}
	for _, f := range c.Export.Formats {
		switch strings.ToLower(f) {
		case "csv", "json", "html":
		default:
			return fmt.Errorf("export.formats: unknown format %q", f)
		}
	}
	if c.Pipeline.Workers < 0 {
		return fmt.Errorf("pipeline.workers: must not be negative")
	}
	return nil
}
