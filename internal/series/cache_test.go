package series

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/eurocoin-catalog/api/internal/domain"
)

func TestCache_AnalysisComputedOncePerGeneration(t *testing.T) {
	cache := NewCache()
	var calls atomic.Int32
	compute := func() CountryAnalysis {
		calls.Add(1)
		return CountryAnalysis{Country: "LVA"}
	}

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := cache.Analysis("LVA", compute); got.Country != "LVA" {
				t.Errorf("unexpected analysis %+v", got)
			}
		}()
	}
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("expected a single computation, got %d", calls.Load())
	}

	cache.Invalidate()
	cache.Analysis("LVA", compute)
	if calls.Load() != 2 {
		t.Fatalf("expected recomputation after invalidate, got %d", calls.Load())
	}
}

func TestCache_InvalidateSwapsSnapshot(t *testing.T) {
	cache := NewCache()
	cache.Label("MCO-01", func() string { return "Monaco 2002 - now" })
	cache.Analysis("MCO", func() CountryAnalysis { return CountryAnalysis{Country: "MCO"} })

	if stats := cache.Stats(); stats.Labels != 1 || stats.Countries != 1 || stats.Generation != 0 {
		t.Fatalf("unexpected stats before invalidate: %+v", stats)
	}

	if gen := cache.Invalidate(); gen != 1 {
		t.Fatalf("expected generation 1, got %d", gen)
	}

	stats := cache.Stats()
	if stats.Labels != 0 || stats.Countries != 0 || stats.Generation != 1 {
		t.Fatalf("expected empty cache after invalidate, got %+v", stats)
	}

	got := cache.Label("MCO-01", func() string { return "recomputed" })
	if got != "recomputed" {
		t.Fatalf("expected recomputed label, got %q", got)
	}
}

func TestCache_ConcurrentLabelAndInvalidate(t *testing.T) {
	cache := NewCache()
	labeler := NewLabeler(cache)
	records := []domain.Coin{regular("SMR-01", 2002), regular("SMR-02", 2017)}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if got := labeler.Label("SMR-01", records); got != "San Marino 2002 - 2017" {
					t.Errorf("unexpected label %q", got)
					return
				}
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				labeler.Invalidate()
			}
		}()
	}
	wg.Wait()
}
