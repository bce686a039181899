package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CHAINSHADOW_"

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Load resolves options from defaults, the file at path (if non-empty) and
// the process environment, then validates them.
func Load(path string) (Options, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with an injectable environment.
func LoadWithEnv(path string, lookup LookupFunc) (Options, error) {
	opts := DefaultOptions()
	if path != "" {
		if err := decodeFile(path, &opts); err != nil {
			return Options{}, err
		}
	}
	if lookup != nil {
		if err := applyEnv(&opts, lookup); err != nil {
			return Options{}, err
		}
	}
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

func decodeFile(path string, opts *Options) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(opts); err != nil && !errors.Is(err, io.EOF) {
			return &ConfigError{Option: filepath.Base(path), Source: "file", Err: err}
		}
	case ".toml":
		meta, err := toml.Decode(string(data), opts)
		if err != nil {
			return &ConfigError{Option: filepath.Base(path), Source: "file", Err: err}
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return &ConfigError{
				Option: undecoded[0].String(), Source: "file",
				Reason: "unknown option",
			}
		}
	default:
		return &ConfigError{
			Option: filepath.Base(path), Source: "file", Value: ext,
			Reason: "unsupported extension (want .yaml, .yml or .toml)",
		}
	}
	return nil
}

// setter parses one environment value into opts.
type setter func(opts *Options, v string) error

func intSetter(dst func(*Options) *int) setter {
	return func(o *Options, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*dst(o) = n
		return nil
	}
}

func floatSetter(dst func(*Options) *float64) setter {
	return func(o *Options, v string) error {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return err
		}
		*dst(o) = f
		return nil
	}
}

func boolSetter(dst func(*Options) *bool) setter {
	return func(o *Options, v string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*dst(o) = b
		return nil
	}
}

func stringSetter(dst func(*Options) *string) setter {
	return func(o *Options, v string) error {
		*dst(o) = strings.TrimSpace(v)
		return nil
	}
}

// listSetter splits on commas. An empty value clears the list.
func listSetter(dst func(*Options) *[]string) setter {
	return func(o *Options, v string) error {
		var out []string
		for _, part := range strings.Split(v, ",") {
			if s := strings.TrimSpace(part); s != "" {
				out = append(out, s)
			}
		}
		*dst(o) = out
		return nil
	}
}

// envSetters maps option names to their parsers. Order is the order
// overrides are applied in, which only matters for error reporting.
var envSetters = []struct {
	name string
	set  setter
}{
	{"mode", stringSetter(func(o *Options) *string { return &o.Mode })},
	{"window", intSetter(func(o *Options) *int { return &o.Window })},
	{"parity_target", floatSetter(func(o *Options) *float64 { return &o.ParityTarget })},
	{"canary_target", floatSetter(func(o *Options) *float64 { return &o.CanaryTarget })},
	{"min_samples", intSetter(func(o *Options) *int { return &o.MinSamples })},
	{"ok_hysteresis", intSetter(func(o *Options) *int { return &o.OKHysteresis })},
	{"fail_hysteresis", intSetter(func(o *Options) *int { return &o.FailHysteresis })},
	{"canary_allowlist", listSetter(func(o *Options) *[]string { return &o.CanaryAllowlist })},
	{"canary_percent", intSetter(func(o *Options) *int { return &o.CanaryPercent })},
	{"rollback_protected_diffs", intSetter(func(o *Options) *int { return &o.RollbackProtectedDiffs })},
	{"rollback_churn", floatSetter(func(o *Options) *float64 { return &o.RollbackChurn })},
	{"churn_window", intSetter(func(o *Options) *int { return &o.ChurnWindow })},
	{"protected_fields", listSetter(func(o *Options) *[]string { return &o.ProtectedFields })},
	{"force_demote", boolSetter(func(o *Options) *bool { return &o.ForceDemote })},
	{"retry_enabled", boolSetter(func(o *Options) *bool { return &o.RetryEnabled })},
	{"retry_max_attempts", intSetter(func(o *Options) *int { return &o.RetryMaxAttempts })},
	{"retry_base_ms", intSetter(func(o *Options) *int { return &o.RetryBaseMs })},
	{"retry_max_ms", intSetter(func(o *Options) *int { return &o.RetryMaxMs })},
	{"retry_jitter_ms", intSetter(func(o *Options) *int { return &o.RetryJitterMs })},
	{"record_all_attempts", boolSetter(func(o *Options) *bool { return &o.RecordAllAttempts })},
	{"redact_patterns", listSetter(func(o *Options) *[]string { return &o.RedactPatterns })},
	{"trend_window", intSetter(func(o *Options) *int { return &o.TrendWindow })},
	{"metrics_protected_fields", listSetter(func(o *Options) *[]string { return &o.MetricsProtectedFields })},
	{"journal_path", stringSetter(func(o *Options) *string { return &o.JournalPath })},
}

// EnvName returns the environment variable for option name.
func EnvName(name string) string {
	return EnvPrefix + strings.ToUpper(name)
}

func applyEnv(opts *Options, lookup LookupFunc) error {
	for _, s := range envSetters {
		v, ok := lookup(EnvName(s.name))
		if !ok {
			continue
		}
		if err := s.set(opts, v); err != nil {
			return &ConfigError{Option: s.name, Source: "env", Value: v, Err: err}
		}
	}
	return nil
}
