package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"cloud.google.com/go/storage"

	"carteira/internal/core"
	"carteira/internal/log"
)

// ObjectWriterFunc opens a writer for object name in the bucket.
type ObjectWriterFunc func(ctx context.Context, name string) io.WriteCloser

// GCSUploader archives CSV exports under <userID>/<file name> in a bucket.
// Credentials come from Application Default Credentials.
type GCSUploader struct {
	client *storage.Client
	open   ObjectWriterFunc
	bucket string
	logger *log.Logger
}

func NewGCSUploader(ctx context.Context, bucket string, logger *log.Logger) (*GCSUploader, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	u := NewGCSUploaderWith(bucket, func(ctx context.Context, name string) io.WriteCloser {
		w := client.Bucket(bucket).Object(name).NewWriter(ctx)
		w.ContentType = "text/csv"
		return w
	}, logger)
	u.client = client
	return u, nil
}

// NewGCSUploaderWith builds an uploader on an arbitrary object opener.
func NewGCSUploaderWith(bucket string, open ObjectWriterFunc, logger *log.Logger) *GCSUploader {
	if logger == nil {
		logger = log.Discard()
	}
	return &GCSUploader{open: open, bucket: bucket, logger: logger.WithComponent(log.ComponentExport)}
}

// Upload writes the CSV of txs and returns its gs:// URI.
func (u *GCSUploader) Upload(ctx context.Context, userID string, txs []core.Transaction, now time.Time) (string, error) {
	if len(txs) == 0 {
		return "", ErrNoTransactions
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, txs, now.Location()); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	name := path.Join(userID, now.Format("2006-01-02T150405")+"_"+FileName(now))
	w := u.open(ctx, name)
	if _, err := io.Copy(w, &buf); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("copy export to GCS writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize upload: %w", err)
	}

	uri := fmt.Sprintf("gs://%s/%s", u.bucket, name)
	u.logger.InfoContext(ctx, "Export uploaded", "user_id", userID, "uri", uri, "count", len(txs))
	return uri, nil
}

func (u *GCSUploader) Close() error {
	if u.client == nil {
		return nil
	}
	return u.client.Close()
}
