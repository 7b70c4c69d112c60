package pipeline

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

// validate is shared by every Decode call; validator caches struct metadata.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report option names as they appear in the config map.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Config is a flat mapping from option name to scalar value. Stages declare
// their defaults as a Config; callers supply overrides as a Config.
type Config map[string]any

// Merge returns a new Config holding c's entries overlaid with overrides.
// Override values win. Neither input is modified.
func (c Config) Merge(overrides Config) Config {
	out := make(Config, len(c)+len(overrides))
	for k, v := range c {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// Keys returns the option names in sorted order.
func (c Config) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String returns the option as a string. Non-string scalars are formatted;
// missing or nil options yield "".
func (c Config) String(key string) string {
	v, ok := c[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Int returns the option as an int. It handles int, int64 and float64,
// which is what TOML, YAML and JSON decoders produce, and numeric strings.
func (c Config) Int(key string) int {
	switch v := c[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// Bool returns the option as a bool, accepting strconv.ParseBool strings.
func (c Config) Bool(key string) bool {
	switch v := c[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(v))
		return b
	default:
		return false
	}
}

// Strings returns the option as a string slice. A plain string is split on
// commas.
func (c Config) Strings(key string) []string {
	switch v := c[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	default:
		return nil
	}
}

// Require checks that every key is present with a non-empty value.
func (c Config) Require(stage string, keys ...string) error {
	for _, k := range keys {
		v, ok := c[k]
		if !ok || v == nil {
			return NewConfigurationError(stage, k, ErrMissingOption)
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			return NewConfigurationError(stage, k, ErrMissingOption)
		}
	}
	return nil
}

// Decode copies the configuration into the struct pointed to by out using
// its mapstructure tags, then validates it with its validate tags. Failures
// are returned as *ConfigurationError naming the first offending option.
func (c Config) Decode(stage string, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return NewConfigurationError(stage, "", err)
	}
	if err := dec.Decode(map[string]any(c)); err != nil {
		return NewConfigurationError(stage, "", fmt.Errorf("%w: %v", ErrInvalidOption, err))
	}

	if err := validate.Struct(out); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			cause := ErrInvalidOption
			if fe.Tag() == "required" {
				cause = ErrMissingOption
			}
			return NewConfigurationError(stage, fe.Field(), fmt.Errorf("%w: failed %q check", cause, fe.Tag()))
		}
		return NewConfigurationError(stage, "", err)
	}
	return nil
}
