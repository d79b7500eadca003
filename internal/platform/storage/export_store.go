package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/eurocoin-catalog/api/internal/services"
)

type objectUploader interface {
	Upload(ctx context.Context, bucket, object, contentType string, data []byte) error
}

type downloadSigner interface {
	SignedDownloadURL(ctx context.Context, bucket, object string, opts DownloadOptions) (SignedURLResult, error)
}

// ExportStore uploads catalog exports to a bucket and hands back a signed download link.
type ExportStore struct {
	bucket   string
	uploader objectUploader
	signer   downloadSigner
	ttl      time.Duration
	now      func() time.Time
}

// NewExportStore wires an uploader and URL signer to the exports bucket.
func NewExportStore(bucket string, uploader objectUploader, signer downloadSigner, ttl time.Duration) (*ExportStore, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errInvalidBucket
	}
	if uploader == nil {
		return nil, errors.New("storage: uploader is required")
	}
	if signer == nil {
		return nil, errNoSigner
	}
	if ttl <= 0 {
		ttl = defaultSignedURLExpiry
	}
	return &ExportStore{
		bucket:   bucket,
		uploader: uploader,
		signer:   signer,
		ttl:      ttl,
		now:      time.Now,
	}, nil
}

// StoreExport uploads the export file and returns its location with a download URL.
func (s *ExportStore) StoreExport(ctx context.Context, fileName, contentType string, data []byte) (services.ExportLocation, error) {
	if s == nil {
		return services.ExportLocation{}, errors.New("storage: export store not initialised")
	}
	object, err := ExportObjectPath(s.now(), fileName)
	if err != nil {
		return services.ExportLocation{}, err
	}
	if err := s.uploader.Upload(ctx, s.bucket, object, contentType, data); err != nil {
		return services.ExportLocation{}, err
	}

	signed, err := s.signer.SignedDownloadURL(ctx, s.bucket, object, DownloadOptions{
		ExpiresIn:   s.ttl,
		FileName:    fileName,
		ContentType: contentType,
	})
	if err != nil {
		return services.ExportLocation{}, fmt.Errorf("storage: export %s uploaded but not signed: %w", object, err)
	}

	return services.ExportLocation{
		Bucket:      s.bucket,
		Object:      object,
		DownloadURL: signed.URL,
		ExpiresAt:   signed.ExpiresAt,
	}, nil
}
