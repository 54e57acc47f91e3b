// Package storage 封装叶片图片归档所用的 MinIO 对象存储。
package storage

import (
	"context"
	"fmt"
	"time"

	"farm-advisor-go/internal/config"
	"farm-advisor-go/pkg/log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioClient 是一个全局的 MinIO 客户端实例。
var MinioClient *minio.Client

// bucketCheckTimeout 限制启动时检查/创建存储桶的耗时。
const bucketCheckTimeout = 10 * time.Second

// InitMinIO 连接 MinIO 并确保归档桶存在。
// 图片归档是可选功能，失败时返回错误，由调用方决定是否降级。
func InitMinIO(cfg config.MinIOConfig) error {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to create minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), bucketCheckTimeout)
	defer cancel()
	if err := ensureBucket(ctx, client, cfg.BucketName); err != nil {
		return err
	}

	MinioClient = client
	log.Infof("MinIO 客户端初始化成功，叶片图片归档桶: %s", cfg.BucketName)
	return nil
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %q: %w", bucket, err)
	}
	if exists {
		return nil
	}
	log.Infof("存储桶 '%s' 不存在，正在创建...", bucket)
	if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %q: %w", bucket, err)
	}
	return nil
}

// GetPresignedURL 为对象生成限时下载链接。
func GetPresignedURL(ctx context.Context, client *minio.Client, bucketName, objectName string, expiry time.Duration) (string, error) {
	presignedURL, err := client.PresignedGetObject(ctx, bucketName, objectName, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to presign %s/%s: %w", bucketName, objectName, err)
	}
	return presignedURL.String(), nil
}
