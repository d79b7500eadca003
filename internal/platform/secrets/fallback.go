package secrets

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

// readFallbackFile loads "secret://name=value" lines. A reference with a query must be followed by
// a blank before the separator, as in "secret://name?version=3 = value". Values are indexed by versioned key
// and by canonical reference. An unpinned line owns the canonical entry.
func readFallbackFile(path string) (map[string]string, error) {
	values := map[string]string{}
	if path == "" {
		return values, nil
	}
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("secrets: open fallback file %s: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		rawRef, value, found := splitFallbackLine(line)
		if !found {
			continue
		}
		ref, err := parseReference(rawRef)
		if err != nil {
			continue
		}
		value = strings.TrimSpace(value)
		if _, pinned := values[ref.Canonical]; !pinned || ref.Version == latestVersion {
			values[ref.Canonical] = value
		}
		values[cacheKey(ref.Canonical, ref.Version)] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("secrets: read fallback file %s: %w", path, err)
	}
	return values, nil
}

func splitFallbackLine(line string) (string, string, bool) {
	query, sep := strings.IndexByte(line, '?'), strings.IndexByte(line, '=')
	if query < 0 || sep < query {
		return strings.Cut(line, "=")
	}
	ref, rest, ok := strings.Cut(line, " ")
	if !ok {
		return "", "", false
	}
	value, ok := strings.CutPrefix(strings.TrimSpace(rest), "=")
	return ref, value, ok
}
