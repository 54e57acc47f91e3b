package repository

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"farm-advisor-go/pkg/storage"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
)

// LeafImageRepository 将用户上传的叶片照片归档到对象存储。
type LeafImageRepository interface {
	Save(ctx context.Context, userID *uint, raw []byte, now time.Time) (string, error)
	PresignedURL(ctx context.Context, object string, expiry time.Duration) (string, error)
}

type minioLeafImageRepository struct {
	client *minio.Client
	bucket string
}

// NewLeafImageRepository 创建一个基于 MinIO 的 LeafImageRepository。
func NewLeafImageRepository(client *minio.Client, bucket string) LeafImageRepository {
	return &minioLeafImageRepository{client: client, bucket: bucket}
}

// LeafImageObjectName 生成对象名: leaves/<user|anonymous>/<yyyy>/<mm>/<uuid>.<ext>
func LeafImageObjectName(userID *uint, contentType string, now time.Time) string {
	owner := "anonymous"
	if userID != nil {
		owner = fmt.Sprintf("%d", *userID)
	}
	ext := "bin"
	if i := strings.IndexByte(contentType, '/'); i >= 0 && strings.HasPrefix(contentType, "image/") {
		ext = strings.TrimPrefix(contentType[i+1:], "x-")
		if j := strings.IndexByte(ext, ';'); j >= 0 {
			ext = ext[:j]
		}
	}
	return fmt.Sprintf("leaves/%s/%s/%s.%s", owner, now.UTC().Format("2006/01"), uuid.NewString(), ext)
}

func (r *minioLeafImageRepository) Save(ctx context.Context, userID *uint, raw []byte, now time.Time) (string, error) {
	contentType := http.DetectContentType(raw)
	object := LeafImageObjectName(userID, contentType, now)
	_, err := r.client.PutObject(ctx, r.bucket, object, bytes.NewReader(raw), int64(len(raw)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload leaf image: %w", err)
	}
	return object, nil
}

func (r *minioLeafImageRepository) PresignedURL(ctx context.Context, object string, expiry time.Duration) (string, error) {
	return storage.GetPresignedURL(ctx, r.client, r.bucket, object, expiry)
}
