package bigquery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/bigquery"
	"golang.org/x/sync/singleflight"
	"google.golang.org/api/option"

	"github.com/eurocoin-catalog/api/internal/platform/config"
)

const defaultDialTimeout = 10 * time.Second

var ErrProviderClosed = errors.New("bigquery: provider is closed")

// Provider lazily initialises a shared BigQuery client bound to the catalog table.
type Provider struct {
	cfg         config.BigQueryConfig
	dialTimeout time.Duration
	clientOpts  []option.ClientOption

	mu     sync.RWMutex
	client *bigquery.Client
	closed bool
	init   singleflight.Group
}

// ProviderOption customises the Provider behaviour.
type ProviderOption func(*Provider)

// WithDialTimeout overrides the timeout used when creating the client.
func WithDialTimeout(timeout time.Duration) ProviderOption {
	return func(p *Provider) {
		if timeout > 0 {
			p.dialTimeout = timeout
		}
	}
}

// WithClientOptions appends client options applied during initialisation.
func WithClientOptions(opts ...option.ClientOption) ProviderOption {
	return func(p *Provider) {
		if len(opts) > 0 {
			p.clientOpts = append(p.clientOpts, opts...)
		}
	}
}

// NewProvider constructs a Provider using the supplied configuration.
func NewProvider(cfg config.BigQueryConfig, opts ...ProviderOption) *Provider {
	provider := &Provider{cfg: cfg, dialTimeout: defaultDialTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(provider)
		}
	}
	if file := strings.TrimSpace(cfg.CredentialsFile); file != "" {
		provider.clientOpts = append(provider.clientOpts, option.WithCredentialsFile(file))
	}
	return provider
}

// ProjectID returns the configured project.
func (p *Provider) ProjectID() string { return strings.TrimSpace(p.cfg.ProjectID) }

// Dataset returns the configured dataset name.
func (p *Provider) Dataset() string { return strings.TrimSpace(p.cfg.Dataset) }

// Table returns the configured table name.
func (p *Provider) Table() string { return strings.TrimSpace(p.cfg.Table) }

// Location returns the configured dataset location.
func (p *Provider) Location() string { return strings.TrimSpace(p.cfg.Location) }

// TablePath returns the fully qualified, backtick quoted table name for use in SQL.
func (p *Provider) TablePath() string {
	return fmt.Sprintf("`%s.%s.%s`", p.ProjectID(), p.Dataset(), p.Table())
}

// Client returns the lazily initialised BigQuery client.
func (p *Provider) Client(ctx context.Context) (*bigquery.Client, error) {
	if ctx == nil {
		return nil, errors.New("bigquery: context is required")
	}
	if p == nil {
		return nil, errors.New("bigquery: provider is nil")
	}

	p.mu.RLock()
	client, closed := p.client, p.closed
	p.mu.RUnlock()
	if closed {
		return nil, ErrProviderClosed
	}
	if client != nil {
		return client, nil
	}

	ch := p.init.DoChan("client", func() (any, error) {
		p.mu.RLock()
		existing := p.client
		p.mu.RUnlock()
		if existing != nil {
			return existing, nil
		}

		created, err := p.createClient(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}

		p.mu.Lock()
		defer p.mu.Unlock()
		if p.closed {
			_ = created.Close()
			return nil, ErrProviderClosed
		}
		p.client = created
		return created, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*bigquery.Client), nil
	}
}

func (p *Provider) createClient(ctx context.Context) (*bigquery.Client, error) {
	if p.dialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.dialTimeout)
		defer cancel()
	}

	projectID := p.ProjectID()
	if projectID == "" {
		return nil, errors.New("bigquery: project id is required")
	}

	client, err := bigquery.NewClient(ctx, projectID, p.clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("bigquery: create client: %w", err)
	}
	if loc := p.Location(); loc != "" {
		client.Location = loc
	}
	return client, nil
}

// Close releases the underlying client. The Provider cannot be reused afterwards.
func (p *Provider) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	client := p.client
	p.client = nil
	p.mu.Unlock()

	if client == nil {
		return nil
	}
	return client.Close()
}
