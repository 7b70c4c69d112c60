// Package config loads the pipeline definition from a file, the environment
// and command-line flags.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/valpere/docpipe/internal/pipeline"
)

// EnvPrefix prefixes environment overrides, e.g. DOCPIPE_MEMORY_DB.
const EnvPrefix = "DOCPIPE"

// ErrInvalidOverride indicates a malformed stage.key=value assignment.
var ErrInvalidOverride = errors.New("invalid override")

// ReaderConfig configures the directory reader.
type ReaderConfig struct {
	Extensions  []string `mapstructure:"extensions"`
	Recursive   bool     `mapstructure:"recursive"`
	ExcludeDirs []string `mapstructure:"exclude_dirs"`
	Encoding    string   `mapstructure:"encoding"`
	Normalize   bool     `mapstructure:"normalize"`
	Markdown    bool     `mapstructure:"markdown"`
}

// StageSpec names a registered stage and its option overrides.
type StageSpec struct {
	Name   string          `mapstructure:"name" validate:"required"`
	Config pipeline.Config `mapstructure:"config"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// File is the complete pipeline definition.
type File struct {
	Reader          ReaderConfig `mapstructure:"reader"`
	Stages          []StageSpec  `mapstructure:"stages" validate:"dive"`
	ContinueOnError bool         `mapstructure:"continue_on_error"`
	StrictConfig    bool         `mapstructure:"strict_config"`
	MemoryDB        string       `mapstructure:"memory_db"`
	MetricsFile     string       `mapstructure:"metrics_file"`
	Report          string       `mapstructure:"report"`
	Log             LogConfig    `mapstructure:"log"`
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("reader.extensions", []string{".txt"})
	v.SetDefault("reader.recursive", false)
	v.SetDefault("reader.exclude_dirs", []string{})
	v.SetDefault("reader.encoding", "utf-8")
	v.SetDefault("reader.normalize", true)
	v.SetDefault("reader.markdown", false)
	v.SetDefault("continue_on_error", false)
	v.SetDefault("strict_config", false)
	v.SetDefault("memory_db", "")
	v.SetDefault("metrics_file", "")
	v.SetDefault("report", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path into v when path is set, then decodes and validates.
// Flags bound to v before Load take precedence over the file.
func Load(v *viper.Viper, path string) (*File, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var f File
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := validate.Struct(&f); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &f, nil
}

var validate = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
	})
	return v
}()

// ParseOverrides turns "stage.key=value" assignments into per-stage configs.
func ParseOverrides(assignments []string) (map[string]pipeline.Config, error) {
	out := make(map[string]pipeline.Config)
	for _, a := range assignments {
		key, value, ok := strings.Cut(a, "=")
		if !ok {
			return nil, fmt.Errorf("%w: %q: expected stage.key=value", ErrInvalidOverride, a)
		}
		stage, option, ok := strings.Cut(strings.TrimSpace(key), ".")
		if !ok || stage == "" || option == "" {
			return nil, fmt.Errorf("%w: %q: expected stage.key=value", ErrInvalidOverride, a)
		}
		if out[stage] == nil {
			out[stage] = pipeline.Config{}
		}
		out[stage][option] = value
	}
	return out, nil
}

// Apply merges overrides into the stage specs. Stages named by overrides
// but absent from f are appended in sorted order.
func (f *File) Apply(overrides map[string]pipeline.Config) {
	seen := make(map[string]bool, len(f.Stages))
	for i := range f.Stages {
		spec := &f.Stages[i]
		seen[spec.Name] = true
		if o, ok := overrides[spec.Name]; ok {
			spec.Config = spec.Config.Merge(o)
		}
	}
	extra := make([]string, 0, len(overrides))
	for name := range overrides {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		f.Stages = append(f.Stages, StageSpec{Name: name, Config: overrides[name]})
	}
}

// StageNames returns the configured stage names in order.
func (f *File) StageNames() []string {
	names := make([]string, len(f.Stages))
	for i, s := range f.Stages {
		names[i] = s.Name
	}
	return names
}
