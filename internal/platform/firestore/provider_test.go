package firestore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"

	"github.com/eurocoin-catalog/api/internal/platform/config"
)

func TestNewProviderResolvesEnvironmentFallbacks(t *testing.T) {
	t.Setenv(envGoogleProjectID, "env-project")
	t.Setenv(envEmulatorHost, "localhost:8686")

	p := NewProvider(config.FirestoreConfig{Collection: " coins "})
	if p.projectID != "env-project" || p.emulator != "localhost:8686" {
		t.Fatalf("expected env fallbacks, got project=%q emulator=%q", p.projectID, p.emulator)
	}
	if p.Collection() != "coins" {
		t.Fatalf("expected trimmed collection, got %q", p.Collection())
	}

	p = NewProvider(config.FirestoreConfig{ProjectID: "cfg-project", EmulatorHost: "emulator:9000"})
	if p.projectID != "cfg-project" || p.emulator != "emulator:9000" {
		t.Fatalf("expected config to win, got project=%q emulator=%q", p.projectID, p.emulator)
	}
}

func TestProviderRequiresProject(t *testing.T) {
	t.Setenv(envGoogleProjectID, "")
	p := NewProvider(config.FirestoreConfig{})
	if _, err := p.Client(context.Background()); !errors.Is(err, errNoProject) {
		t.Fatalf("expected errNoProject, got %v", err)
	}
}

func TestProviderSharesAndRetriesFailedDial(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	p := NewProvider(config.FirestoreConfig{ProjectID: "p"}, WithDialTimeout(time.Second))
	p.dial = func(ctx context.Context, projectID string, opts ...option.ClientOption) (*firestore.Client, error) {
		calls.Add(1)
		<-release
		return nil, errors.New("dial refused")
	}

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = p.Client(context.Background())
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		if err == nil {
			t.Fatalf("caller %d: expected dial error", i)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected concurrent callers to share one dial, got %d", got)
	}

	if _, err := p.Client(context.Background()); err == nil {
		t.Fatal("expected retry to fail again")
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected failed dial to be retried, got %d dials", got)
	}
}

func TestProviderClientHonoursCallerContext(t *testing.T) {
	p := NewProvider(config.FirestoreConfig{ProjectID: "p"})
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	p.dial = func(context.Context, string, ...option.ClientOption) (*firestore.Client, error) {
		<-block
		return nil, errors.New("unreachable")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := p.Client(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected caller deadline, got %v", err)
	}
}

func TestProviderClosed(t *testing.T) {
	p := NewProvider(config.FirestoreConfig{ProjectID: "p"})
	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := p.Client(context.Background()); !errors.Is(err, ErrProviderClosed) {
		t.Fatalf("expected ErrProviderClosed, got %v", err)
	}
}
