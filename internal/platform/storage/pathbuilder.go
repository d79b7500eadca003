package storage

import (
	"fmt"
	"strings"
	"time"
)

// ExportObjectPath returns the object key for a catalog export generated at the given time.
// Exports are laid out as exports/catalog/YYYY/MM/DD/<fileName>.
func ExportObjectPath(generatedAt time.Time, fileName string) (string, error) {
	if generatedAt.IsZero() {
		return "", fmt.Errorf("storage: generation time is required")
	}
	name, err := validateFileName(fileName)
	if err != nil {
		return "", err
	}
	ts := generatedAt.UTC()
	return fmt.Sprintf("exports/catalog/%04d/%02d/%02d/%s", ts.Year(), int(ts.Month()), ts.Day(), name), nil
}

func validateFileName(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: fileName is required")
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: fileName contains invalid path characters")
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: fileName contains invalid traversal sequence")
	}
	return value, nil
}
