package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"

	"resume-scanner/internal/config"
	"resume-scanner/internal/types"
)

// stagingExpireDays 暂存桶中遗留对象的过期天数，正常情况下对象在运行结束时就被删除
const stagingExpireDays = 1

var _ Stager = (*MinIO)(nil)

// MinIO 把原始上传暂存到对象存储
type MinIO struct {
	client *minio.Client
	cfg    *config.MinIOConfig
	bucket string
	logger *log.Logger
}

// NewMinIO 创建MinIO客户端并确保暂存桶存在
func NewMinIO(cfg *config.MinIOConfig, logger *log.Logger) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	bucket := cfg.StagingBucket
	if bucket == "" {
		bucket = "resume-staging"
	}

	m := &MinIO{
		client: client,
		cfg:    cfg,
		bucket: bucket,
		logger: logger,
	}

	ctx := context.Background()
	if err := m.ensureBucketExists(ctx, bucket, cfg.Location); err != nil {
		return nil, err
	}
	if err := m.setupBucketLifecycle(ctx, bucket, "expire-staged-resumes", stagingExpireDays); err != nil {
		logger.Printf("[MinIO] Warning: Failed to set up lifecycle rules: %v", err)
	}

	logger.Printf("[MinIO] Client initialized successfully for endpoint: %s, bucket: %s", cfg.Endpoint, bucket)
	return m, nil
}

// ensureBucketExists 确保存储桶存在
func (m *MinIO) ensureBucketExists(ctx context.Context, bucketName, location string) error {
	exists, err := m.client.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("检查存储桶 %s 是否存在时出错: %w", bucketName, err)
	}
	if exists {
		return nil
	}
	m.logger.Printf("[MinIO] Bucket %s does not exist, attempting to create...", bucketName)
	if err := m.client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{Region: location}); err != nil {
		return fmt.Errorf("创建存储桶 %s 失败: %w", bucketName, err)
	}
	return nil
}

// setupBucketLifecycle 为指定存储桶设置过期规则
func (m *MinIO) setupBucketLifecycle(ctx context.Context, bucketName, ruleID string, expiryDays int) error {
	lc := lifecycle.NewConfiguration()
	lc.Rules = []lifecycle.Rule{
		{
			ID:     ruleID,
			Status: "Enabled",
			Expiration: lifecycle.Expiration{
				Days: lifecycle.ExpirationDays(expiryDays),
			},
		},
	}
	return m.client.SetBucketLifecycle(ctx, bucketName, lc)
}

// Stage 上传原始PDF到暂存桶，对象键为 staging/{runID}/original{ext}
func (m *MinIO) Stage(ctx context.Context, runID string, doc types.RawDocument) (*StagedDocument, error) {
	objectName := fmt.Sprintf("staging/%s/original%s", runID, stagedExt(doc.Filename))
	size := int64(len(doc.Data))

	info, err := m.client.PutObject(ctx, m.bucket, objectName, bytes.NewReader(doc.Data), size,
		minio.PutObjectOptions{
			ContentType:  "application/pdf",
			UserMetadata: map[string]string{"original-filename": doc.Filename},
		})
	if err != nil {
		return nil, fmt.Errorf("上传对象 %s/%s 失败: %w", m.bucket, objectName, err)
	}
	m.logger.Printf("[MinIO] Staged %s, ETag: %s, Size: %d", objectName, info.ETag, info.Size)

	return &StagedDocument{
		Location: objectName,
		URI:      fmt.Sprintf("s3://%s/%s", m.bucket, objectName),
		Size:     size,
	}, nil
}

// Cleanup 删除暂存对象
func (m *MinIO) Cleanup(ctx context.Context, staged *StagedDocument) error {
	if staged == nil || staged.Location == "" {
		return nil
	}
	if err := m.client.RemoveObject(ctx, m.bucket, staged.Location, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("删除暂存对象 %s 失败: %w", staged.Location, err)
	}
	m.logger.Printf("[MinIO] Removed staged object %s", staged.Location)
	return nil
}
