package storage

import (
	"testing"
	"time"
)

func TestExportObjectPath(t *testing.T) {
	at := time.Date(2025, time.May, 6, 23, 30, 0, 0, time.FixedZone("CET", 3600))
	got, err := ExportObjectPath(at, "catalog-01HZX.csv")
	if err != nil {
		t.Fatalf("ExportObjectPath returned error: %v", err)
	}
	if got != "exports/catalog/2025/05/06/catalog-01HZX.csv" {
		t.Fatalf("unexpected path %s", got)
	}
}

func TestExportObjectPathRejectsInvalidNames(t *testing.T) {
	at := time.Date(2025, time.May, 6, 0, 0, 0, 0, time.UTC)
	for _, name := range []string{"", "../catalog.csv", "a/b.csv", `a\b.csv`} {
		if _, err := ExportObjectPath(at, name); err == nil {
			t.Fatalf("expected error for %q", name)
		}
	}
	if _, err := ExportObjectPath(time.Time{}, "catalog.csv"); err == nil {
		t.Fatal("expected error for zero time")
	}
}
