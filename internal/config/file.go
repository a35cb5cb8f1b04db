package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/jrsteele09/go-integration-hub/internal/errors"
	"gopkg.in/yaml.v3"
)

// values is the file layer consulted when an environment variable is unset.
type values map[string]string

func (v values) get(envVar, defaultValue string) string {
	if value := os.Getenv(envVar); value != "" {
		return value
	}
	if value := v[envVar]; value != "" {
		return value
	}
	return defaultValue
}

func (v values) getInt(envVar string, defaultValue int) (int, error) {
	raw := v.get(envVar, "")
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not an integer: %w", envVar, raw, apperrors.ErrConfiguration)
	}
	return n, nil
}

// getDuration accepts a bare integer as milliseconds or a Go duration string.
func (v values) getDuration(envVar string, defaultValue time.Duration) (time.Duration, error) {
	raw := v.get(envVar, "")
	if raw == "" {
		return defaultValue, nil
	}
	if ms, err := strconv.Atoi(raw); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a duration: %w", envVar, raw, apperrors.ErrConfiguration)
	}
	return d, nil
}

func (v values) getList(envVar string) []string {
	raw := v.get(envVar, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// loadFile reads a flat YAML mapping. Keys are upper-cased and lists are
// joined with commas so they read like their environment counterparts.
func loadFile(path string) (values, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %v: %w", path, err, apperrors.ErrConfiguration)
	}

	v := values{}
	for key, value := range raw {
		switch t := value.(type) {
		case nil:
		case []any:
			items := make([]string, 0, len(t))
			for _, item := range t {
				items = append(items, fmt.Sprint(item))
			}
			v[strings.ToUpper(key)] = strings.Join(items, ",")
		case map[string]any:
			return nil, fmt.Errorf("parsing %s: key %s must not be nested: %w", path, key, apperrors.ErrConfiguration)
		default:
			v[strings.ToUpper(key)] = fmt.Sprint(t)
		}
	}
	return v, nil
}
