// Package archive stores the raw evidence behind every merge in object storage.
package archive

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"Trendline/backend/go/internal/models"

	"github.com/minio/minio-go/v7"
)

// ObjectPutter is the subset of *minio.Client the archive uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Record is the stored form of one merged evidence item.
type Record struct {
	Entity     string              `json:"entity"`
	Evidence   models.EvidenceItem `json:"evidence"`
	ArchivedAt time.Time           `json:"archived_at"`
}

// MinioArchive writes one JSON object per evidence item under <kind>/<id>/<sha256(item id)>.json.
type MinioArchive struct {
	client ObjectPutter
	bucket string
	now    func() time.Time
}

func NewMinioArchive(client ObjectPutter, bucket string) *MinioArchive {
	return &MinioArchive{client: client, bucket: bucket, now: time.Now}
}

// ObjectName returns the key an item is stored under. Re-archiving the same item overwrites it.
func ObjectName(ref models.EntityRef, itemID string) string {
	sum := sha256.Sum256([]byte(itemID))
	return path.Join(string(ref.Kind), ref.ID, hex.EncodeToString(sum[:])+".json")
}

// Archive stores every item, continuing past failures. It returns all errors joined.
func (a *MinioArchive) Archive(ctx context.Context, ref models.EntityRef, items []models.EvidenceItem) error {
	var errs []error
	for _, it := range items {
		body, err := json.Marshal(Record{Entity: ref.Key(), Evidence: it, ArchivedAt: a.now().UTC()})
		if err != nil {
			errs = append(errs, fmt.Errorf("marshal %s: %w", it.ID, err))
			continue
		}
		name := ObjectName(ref, it.ID)
		_, err = a.client.PutObject(ctx, a.bucket, name, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
			ContentType:  "application/json",
			UserMetadata: map[string]string{"source": it.ID},
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("put %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
