package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const adminKeyLatest = "projects/test/secrets/admin_api_key/versions/latest"

func TestResolveCachesRemoteSecret(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	client.values[adminKeyLatest] = "remote-secret"

	fetcher := newTestFetcher(t, WithSecretManagerClient(client), WithProject("test"), WithLogger(zap.NewNop()))

	for i := 0; i < 2; i++ {
		got, err := fetcher.Resolve(ctx, "secret://admin_api_key")
		if err != nil {
			t.Fatalf("Resolve #%d returned error: %v", i, err)
		}
		if got != "remote-secret" {
			t.Fatalf("expected remote-secret, got %s", got)
		}
	}
	if calls := client.callCount(adminKeyLatest); calls != 1 {
		t.Fatalf("expected remote fetch once, got %d", calls)
	}
}

func TestResolveRefetchesAfterTTL(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	client.values[adminKeyLatest] = "v1"

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	fetcher := newTestFetcher(t,
		WithSecretManagerClient(client),
		WithProject("test"),
		WithCacheTTL(time.Minute),
		WithClock(func() time.Time { return now }),
	)

	if _, err := fetcher.Resolve(ctx, "secret://admin_api_key"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	client.set(adminKeyLatest, "v2")
	now = now.Add(2 * time.Minute)

	got, err := fetcher.Resolve(ctx, "secret://admin_api_key")
	if err != nil {
		t.Fatalf("Resolve after ttl: %v", err)
	}
	if got != "v2" {
		t.Fatalf("expected refreshed value v2, got %s", got)
	}
}

func TestResolveFallsBackWhenSecretManagerUnavailable(t *testing.T) {
	client := newFakeSecretClient()
	client.errors[adminKeyLatest] = status.Error(codes.PermissionDenied, "denied")

	fetcher := newTestFetcher(t,
		WithSecretManagerClient(client),
		WithProject("test"),
		WithFallbackFile(writeFallback(t, "secret://admin_api_key=local-secret\n")),
	)

	got, err := fetcher.Resolve(context.Background(), "secret://admin_api_key")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != "local-secret" {
		t.Fatalf("expected fallback secret local-secret, got %s", got)
	}
}

func TestResolveAcceptsSMScheme(t *testing.T) {
	fetcher := newTestFetcher(t,
		WithSecretManagerClient(newFakeSecretClient()),
		WithFallbackFile(writeFallback(t, "# local keys\nsm://signer_key=pem-data\n")),
	)

	got, err := fetcher.Resolve(context.Background(), "secret://signer_key")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != "pem-data" {
		t.Fatalf("expected pem-data, got %s", got)
	}
}

func TestResolveHonoursVersionAndProjectQuery(t *testing.T) {
	client := newFakeSecretClient()
	resource := "projects/other/secrets/admin_api_key/versions/5"
	client.values[resource] = "version-5"

	fetcher := newTestFetcher(t, WithSecretManagerClient(client), WithProject("test"))

	got, err := fetcher.Resolve(context.Background(), "secret://admin_api_key?version=5&project=other")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != "version-5" {
		t.Fatalf("expected version-5, got %s", got)
	}
	if calls := client.callCount(resource); calls != 1 {
		t.Fatalf("expected fetch of version 5, got %d calls", calls)
	}
}

func TestResolveDoesNotFallbackOnNotFound(t *testing.T) {
	client := newFakeSecretClient()
	client.errors[adminKeyLatest] = status.Error(codes.NotFound, "missing")

	fetcher := newTestFetcher(t,
		WithSecretManagerClient(client),
		WithProject("test"),
		WithFallbackFile(writeFallback(t, "secret://admin_api_key=local-secret\n")),
	)

	_, err := fetcher.Resolve(context.Background(), "secret://admin_api_key")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInvalidateForcesRefetch(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	client.values[adminKeyLatest] = "remote-secret"

	fetcher := newTestFetcher(t, WithSecretManagerClient(client), WithProject("test"))

	if _, err := fetcher.Resolve(ctx, "secret://admin_api_key"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	fetcher.Invalidate("secret://admin_api_key")
	if _, err := fetcher.ResolveSecret(ctx, "secret://admin_api_key"); err != nil {
		t.Fatalf("ResolveSecret: %v", err)
	}
	if calls := client.callCount(adminKeyLatest); calls != 2 {
		t.Fatalf("expected two remote fetches, got %d", calls)
	}
}

func TestResolveRejectsInvalidReferences(t *testing.T) {
	fetcher := newTestFetcher(t, WithSecretManagerClient(newFakeSecretClient()))
	for _, ref := range []string{"", "https://example.com/key", "secret://"} {
		if _, err := fetcher.Resolve(context.Background(), ref); err == nil {
			t.Fatalf("expected error for %q", ref)
		}
	}
}

func TestNewFetcherWithoutCredentialsUsesFallback(t *testing.T) {
	originalFactory := secretManagerClientFactory
	secretManagerClientFactory = func(context.Context, ...option.ClientOption) (*secretmanager.Client, error) {
		return nil, errors.New("no credentials")
	}
	t.Cleanup(func() {
		secretManagerClientFactory = originalFactory
	})

	fetcher := newTestFetcher(t,
		WithProject("test"),
		WithFallbackFile(writeFallback(t, "secret://admin_api_key=local-secret\n")),
	)

	value, err := fetcher.Resolve(context.Background(), "secret://admin_api_key")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if value != "local-secret" {
		t.Fatalf("expected local secret, got %s", value)
	}
}

func newTestFetcher(t *testing.T, opts ...Option) *Fetcher {
	t.Helper()
	fetcher, err := NewFetcher(context.Background(), opts...)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	t.Cleanup(func() { _ = fetcher.Close() })
	return fetcher
}

func writeFallback(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".secrets.local")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("failed writing fallback file: %v", err)
	}
	return path
}

type fakeSecretClient struct {
	mu      sync.Mutex
	values  map[string]string
	errors  map[string]error
	counter map[string]int
}

func newFakeSecretClient() *fakeSecretClient {
	return &fakeSecretClient{
		values:  make(map[string]string),
		errors:  make(map[string]error),
		counter: make(map[string]int),
	}
}

func (f *fakeSecretClient) AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := req.GetName()
	f.counter[name]++

	if err, ok := f.errors[name]; ok && err != nil {
		return nil, err
	}
	if value, ok := f.values[name]; ok {
		return &secretmanagerpb.AccessSecretVersionResponse{
			Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
		}, nil
	}
	return nil, status.Error(codes.NotFound, "not found")
}

func (f *fakeSecretClient) Close() error {
	return nil
}

func (f *fakeSecretClient) set(name, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[name] = value
}

func (f *fakeSecretClient) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counter[name]
}

func TestReadFallbackFileIndexesVersions(t *testing.T) {
	path := writeFallback(t, "secret://signer?version=3 = pinned\nsecret://signer=plain\nsecret://only?version=2 = two\nsecret://b64=YWJj==\nbroken line\n")
	values, err := readFallbackFile(path)
	if err != nil {
		t.Fatalf("readFallbackFile: %v", err)
	}
	want := map[string]string{
		"secret://signer":        "plain",
		"secret://signer#3":      "pinned",
		"secret://signer#latest": "plain",
		"secret://only":          "two",
		"secret://only#2":        "two",
		"secret://b64":           "YWJj==",
		"secret://b64#latest":    "YWJj==",
	}
	if len(values) != len(want) {
		t.Fatalf("unexpected entries %v", values)
	}
	for key, value := range want {
		if values[key] != value {
			t.Errorf("%s: want %q, got %q", key, value, values[key])
		}
	}
}
