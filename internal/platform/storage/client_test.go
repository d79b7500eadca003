package storage

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"
)

type fakeSigner struct {
	email    string
	payloads [][]byte
}

func (f *fakeSigner) Email() string { return f.email }

func (f *fakeSigner) SignBytes(_ context.Context, payload []byte) ([]byte, error) {
	f.payloads = append(f.payloads, append([]byte(nil), payload...))
	return []byte("signed"), nil
}

func TestKeyURLSignerSignsDownload(t *testing.T) {
	signer := &fakeSigner{email: "exports@eurocoin-catalog.iam.gserviceaccount.com"}
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	urls, err := NewKeyURLSigner(signer, WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewKeyURLSigner: %v", err)
	}

	res, err := urls.SignedDownloadURL(context.Background(), "catalog-exports", "exports/catalog/2025/01/01/coins.xlsx", DownloadOptions{
		ExpiresIn:   30 * time.Minute,
		FileName:    "coins.xlsx",
		ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	})
	if err != nil {
		t.Fatalf("SignedDownloadURL: %v", err)
	}
	if want := now.Add(30 * time.Minute); !res.ExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, res.ExpiresAt)
	}

	parsed, err := url.Parse(res.URL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	query := parsed.Query()
	if query.Get("X-Goog-Signature") == "" {
		t.Fatalf("expected signature in %s", parsed.RawQuery)
	}
	if !strings.HasPrefix(query.Get("X-Goog-Credential"), signer.email+"/") {
		t.Fatalf("expected credential for signer email, got %s", query.Get("X-Goog-Credential"))
	}
	if got := query.Get("response-content-disposition"); got != "attachment; filename=coins.xlsx" {
		t.Fatalf("unexpected disposition %q", got)
	}
	if len(signer.payloads) != 1 {
		t.Fatalf("expected one signing call, got %d", len(signer.payloads))
	}
}

func TestSignedDownloadURLValidation(t *testing.T) {
	urls, err := NewKeyURLSigner(&fakeSigner{email: "svc@example.com"})
	if err != nil {
		t.Fatalf("NewKeyURLSigner: %v", err)
	}
	ctx := context.Background()

	if _, err := urls.SignedDownloadURL(ctx, "", "obj", DownloadOptions{}); !errors.Is(err, errInvalidBucket) {
		t.Fatalf("expected errInvalidBucket, got %v", err)
	}
	if _, err := urls.SignedDownloadURL(ctx, "bucket", " ", DownloadOptions{}); !errors.Is(err, errInvalidObject) {
		t.Fatalf("expected errInvalidObject, got %v", err)
	}
	if _, err := urls.SignedDownloadURL(ctx, "bucket", "obj", DownloadOptions{ExpiresIn: 8 * 24 * time.Hour}); !errors.Is(err, errExpiryTooLong) {
		t.Fatalf("expected errExpiryTooLong, got %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := urls.SignedDownloadURL(cancelled, "bucket", "obj", DownloadOptions{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestURLSignerConstructorsRequireCredentials(t *testing.T) {
	if _, err := NewKeyURLSigner(nil); !errors.Is(err, errNoSigner) {
		t.Fatalf("expected errNoSigner, got %v", err)
	}
	if _, err := NewKeyURLSigner(&fakeSigner{}); !errors.Is(err, errNoSigner) {
		t.Fatalf("expected errNoSigner for empty email, got %v", err)
	}
	if _, err := NewBucketURLSigner(nil); !errors.Is(err, errNoSigner) {
		t.Fatalf("expected errNoSigner for nil client, got %v", err)
	}
}

func serviceAccountJSON(t *testing.T, key *rsa.PrivateKey, pkcs1 bool) string {
	t.Helper()
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	if !pkcs1 {
		der, err := x509.MarshalPKCS8PrivateKey(key)
		if err != nil {
			t.Fatalf("marshal pkcs8: %v", err)
		}
		block = &pem.Block{Type: "PRIVATE KEY", Bytes: der}
	}
	doc, err := json.Marshal(map[string]string{
		"type":         "service_account",
		"client_email": "signer@eurocoin-catalog.iam.gserviceaccount.com",
		"private_key":  string(pem.EncodeToMemory(block)),
	})
	if err != nil {
		t.Fatalf("marshal key json: %v", err)
	}
	return string(doc)
}

func TestParseServiceAccountKeyFormats(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	pkcs8 := serviceAccountJSON(t, key, false)

	cases := map[string]string{
		"pkcs8 json":   pkcs8,
		"pkcs1 json":   serviceAccountJSON(t, key, true),
		"base64 json":  base64.StdEncoding.EncodeToString([]byte(pkcs8)),
		"padded input": "\n  " + pkcs8 + "\n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			signer, err := ParseServiceAccountKey(raw)
			if err != nil {
				t.Fatalf("ParseServiceAccountKey: %v", err)
			}
			if signer.Email() != "signer@eurocoin-catalog.iam.gserviceaccount.com" {
				t.Fatalf("unexpected email %q", signer.Email())
			}
			payload := []byte("GOOG4-RSA-SHA256\n20250101T120000Z")
			signature, err := signer.SignBytes(context.Background(), payload)
			if err != nil {
				t.Fatalf("SignBytes: %v", err)
			}
			digest := sha256.Sum256(payload)
			if err := rsa.VerifyPKCS1v15(&key.PublicKey, crypto.SHA256, digest[:], signature); err != nil {
				t.Fatalf("signature does not verify: %v", err)
			}
		})
	}
}

func TestParseServiceAccountKeyRejects(t *testing.T) {
	cases := map[string]string{
		"empty":         "  ",
		"not base64":    "%%%",
		"wrong type":    `{"type":"authorized_user","client_email":"a@b","private_key":"x"}`,
		"missing email": `{"type":"service_account","private_key":"x"}`,
		"not pem":       `{"type":"service_account","client_email":"a@b","private_key":"not a key"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseServiceAccountKey(raw); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

type recordingUploader struct {
	bucket, object, contentType string
	data                        []byte
	err                         error
}

func (r *recordingUploader) Upload(_ context.Context, bucket, object, contentType string, data []byte) error {
	r.bucket, r.object, r.contentType, r.data = bucket, object, contentType, data
	return r.err
}

func TestExportStoreUploadsAndSigns(t *testing.T) {
	now := time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC)
	urls, err := NewKeyURLSigner(&fakeSigner{email: "svc@example.com"}, WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewKeyURLSigner: %v", err)
	}
	uploader := &recordingUploader{}
	store, err := NewExportStore("catalog-exports", uploader, urls, time.Hour)
	if err != nil {
		t.Fatalf("NewExportStore: %v", err)
	}
	store.now = func() time.Time { return now }

	loc, err := store.StoreExport(context.Background(), "coins.csv", "text/csv", []byte("type,year\n"))
	if err != nil {
		t.Fatalf("StoreExport: %v", err)
	}
	if uploader.bucket != "catalog-exports" || uploader.object != "exports/catalog/2025/05/06/coins.csv" {
		t.Fatalf("unexpected upload target %s/%s", uploader.bucket, uploader.object)
	}
	if uploader.contentType != "text/csv" || string(uploader.data) != "type,year\n" {
		t.Fatalf("unexpected upload payload %q (%s)", uploader.data, uploader.contentType)
	}
	if loc.Object != uploader.object || loc.DownloadURL == "" || !loc.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected location %+v", loc)
	}
}

func TestExportStorePropagatesUploadError(t *testing.T) {
	urls, _ := NewKeyURLSigner(&fakeSigner{email: "svc@example.com"})
	boom := errors.New("bucket gone")
	store, err := NewExportStore("exports", &recordingUploader{err: boom}, urls, 0)
	if err != nil {
		t.Fatalf("NewExportStore: %v", err)
	}
	if _, err := store.StoreExport(context.Background(), "coins.csv", "text/csv", nil); !errors.Is(err, boom) {
		t.Fatalf("expected upload error, got %v", err)
	}
}
