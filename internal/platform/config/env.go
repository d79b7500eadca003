package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// sources layers the explicit map over the process environment over the dotenv file.
type sources struct {
	explicit map[string]string
	system   bool
	dotenv   map[string]string
}

func newSources(options loaderOptions) (sources, error) {
	dotenv, err := readDotEnv(options.envFile)
	if err != nil {
		return sources{}, err
	}
	return sources{explicit: options.envMap, system: options.useSystemEnv, dotenv: dotenv}, nil
}

func (s sources) lookup(key string) (string, bool) {
	if value, ok := s.explicit[key]; ok {
		return value, true
	}
	if s.system {
		if value, ok := os.LookupEnv(key); ok {
			return value, true
		}
	}
	value, ok := s.dotenv[key]
	return value, ok
}

// merged flattens every layer into one map using the same precedence as lookup.
func (s sources) merged() map[string]string {
	out := make(map[string]string, len(s.dotenv)+len(s.explicit))
	for k, v := range s.dotenv {
		out[k] = v
	}
	if s.system {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if key = strings.TrimSpace(key); ok && key != "" {
				out[key] = value
			}
		}
	}
	for k, v := range s.explicit {
		out[k] = v
	}
	return out
}

// EnvironmentValues returns the effective environment after layering the dotenv file, the process
// environment and WithEnvMap, so callers can build dependencies needed by Load itself.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	src, err := newSources(newLoaderOptions(opts))
	if err != nil {
		return nil, err
	}
	return src.merged(), nil
}

// readDotEnv parses KEY=VALUE lines, tolerating comments, blank lines, "export " prefixes and
// quoted values. A missing file is not an error.
func readDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), `"'`)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return values, nil
}

// envReader reads typed settings and remembers which fields held unparsable values.
type envReader struct {
	lookup  func(string) (string, bool)
	invalid []string
}

func (r *envReader) raw(key string) (string, bool) {
	value, ok := r.lookup(key)
	value = strings.TrimSpace(value)
	return value, ok && value != ""
}

func (r *envReader) str(key, fallback string) string {
	if value, ok := r.raw(key); ok {
		return value
	}
	return fallback
}

func (r *envReader) duration(field, key string, fallback time.Duration) time.Duration {
	value, ok := r.raw(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		r.invalid = append(r.invalid, field)
		return fallback
	}
	return d
}

func (r *envReader) integer(field, key string, fallback int64) int64 {
	value, ok := r.raw(key)
	if !ok {
		return fallback
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		r.invalid = append(r.invalid, field)
		return fallback
	}
	return n
}

func (r *envReader) boolean(field, key string, fallback bool) bool {
	value, ok := r.raw(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(value) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	r.invalid = append(r.invalid, field)
	return fallback
}

func (r *envReader) list(key string) []string {
	out := []string{}
	value, ok := r.raw(key)
	if !ok {
		return out
	}
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
