package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/c360/netpublish/errors"
)

// EnvPrefix prefixes every environment override, e.g. NETPUBLISH_NATS_URLS.
const EnvPrefix = "NETPUBLISH"

// File formats, selected by extension.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatTOML = "toml"
)

func formatOf(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	}
	return "", fmt.Errorf("%w: %s: unsupported file type, want .json, .yaml, .yml or .toml",
		errors.ErrInvalidConfig, path)
}

// decodeRaw parses a document into a generic map.
func decodeRaw(data []byte, format string) (map[string]any, error) {
	raw := map[string]any{}
	var err error
	switch format {
	case FormatJSON:
		if err = validateJSONDepth(data); err != nil {
			return nil, err
		}
		err = json.Unmarshal(data, &raw)
	case FormatYAML:
		err = yaml.Unmarshal(data, &raw)
	case FormatTOML:
		err = toml.Unmarshal(data, &raw)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", errors.ErrInvalidConfig, format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errors.ErrParsingFailed, format, err)
	}
	return raw, nil
}

// decodeStruct decodes raw into out using the json field names. Durations may be
// strings ("250ms") or nanoseconds. Keys out doesn't have are errors.
func decodeStruct(raw map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           out,
		WeaklyTypedInput: true,
		ZeroFields:       true,
		ErrorUnused:      true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err)
	}
	return nil
}

// Loader builds a Config from defaults, file layers and the environment.
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
	lookupEnv  func(string) (string, bool)
}

// NewLoader creates a loader with no layers and validation disabled.
func NewLoader() *Loader {
	return &Loader{envPrefix: EnvPrefix, lookupEnv: os.LookupEnv}
}

// AddLayer adds a file. Later layers override earlier ones key by key.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables validation of the loaded config.
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// Load merges the layers over DefaultConfig and applies environment overrides.
func (l *Loader) Load() (*Config, error) {
	merged := map[string]any{}
	for _, path := range l.layers {
		data, format, err := readFile(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", "read "+path)
		}
		raw, err := decodeRaw(data, format)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", "parse "+path)
		}
		merged = deepMerge(merged, raw)
	}

	cfg := DefaultConfig()
	if err := decodeStruct(merged, cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "decode config")
	}
	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "apply environment")
	}
	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Load reads and validates the configuration at path. An empty path yields the
// defaults with environment overrides.
func Load(path string) (*Config, error) {
	l := NewLoader()
	if path != "" {
		l.AddLayer(path)
	}
	l.EnableValidation(true)
	return l.Load()
}

func deepMerge(base, override map[string]any) map[string]any {
	result := maps.Clone(base)
	for k, v := range override {
		if v == nil {
			continue
		}
		if b, ok := result[k].(map[string]any); ok {
			if o, ok := v.(map[string]any); ok {
				result[k] = deepMerge(b, o)
				continue
			}
		}
		result[k] = v
	}
	return result
}

type envOverride struct {
	key   string
	apply func(*Config, string) error
}

var envOverrides = []envOverride{
	{"LOG_LEVEL", func(c *Config, v string) error { c.Log.Level = strings.ToLower(v); return nil }},
	{"LOG_FORMAT", func(c *Config, v string) error { c.Log.Format = strings.ToLower(v); return nil }},
	{"PIPELINE_HEADLESS", func(c *Config, v string) error { return setBool(&c.Pipeline.Headless, v) }},
	{"PIPELINE_PROJECT", func(c *Config, v string) error { c.Pipeline.Project = v; return nil }},
	{"TABLE_BACKEND", func(c *Config, v string) error { c.Table.Backend = strings.ToLower(v); return nil }},
	{"NATS_URLS", func(c *Config, v string) error { c.NATS.URLs = splitList(v); return nil }},
	{"NATS_USERNAME", func(c *Config, v string) error { c.NATS.Username = v; return nil }},
	{"NATS_PASSWORD", func(c *Config, v string) error { c.NATS.Password = v; return nil }},
	{"NATS_TOKEN", func(c *Config, v string) error { c.NATS.Token = v; return nil }},
	{"REDIS_ADDR", func(c *Config, v string) error { c.Redis.Addr = v; return nil }},
	{"REDIS_PASSWORD", func(c *Config, v string) error { c.Redis.Password = v; return nil }},
	{"HTTP_ADDR", func(c *Config, v string) error { c.HTTP.Addr = v; return nil }},
	{"ROS_ENABLED", func(c *Config, v string) error { return setBool(&c.ROS.Enabled, v) }},
	{"METRICS_PORT", func(c *Config, v string) error {
		port, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		c.Metrics.Port = port
		return nil
	}},
}

func (l *Loader) applyEnvOverrides(cfg *Config) error {
	for _, o := range envOverrides {
		name := l.envPrefix + "_" + o.key
		v, ok := l.lookupEnv(name)
		if !ok || v == "" {
			continue
		}
		if err := validateEnvVar(name, v); err != nil {
			return err
		}
		if err := o.apply(cfg, v); err != nil {
			return fmt.Errorf("%w: %s: %v", errors.ErrInvalidConfig, name, err)
		}
	}
	return nil
}

func setBool(dst *bool, v string) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return err
	}
	*dst = b
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Encode renders the configuration in format.
func (c *Config) Encode(format string) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.MarshalIndent(c, "", "  ")
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(c); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case FormatTOML:
		return toml.Marshal(c)
	}
	return nil, errors.WrapInvalid(fmt.Errorf("%w: unknown format %q", errors.ErrInvalidConfig, format),
		"Config", "Encode", "encode config")
}

// SaveToFile writes the configuration in the format its extension names.
func (c *Config) SaveToFile(path string) error {
	format, err := formatOf(path)
	if err != nil {
		return errors.WrapInvalid(err, "Config", "SaveToFile", "select format")
	}
	data, err := c.Encode(format)
	if err != nil {
		return errors.Wrap(err, "Config", "SaveToFile", "encode config")
	}
	if err := writeFile(path, data); err != nil {
		return errors.Wrap(err, "Config", "SaveToFile", "write "+path)
	}
	return nil
}
