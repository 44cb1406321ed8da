package storage

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"

	"github.com/k-surya-teja/skillbias/internal/config"
)

// ObjectStorage 对象存储接口
type ObjectStorage interface {
	// UploadOriginal 流式上传原始简历文件并同时计算MD5
	// 返回对象键与MD5十六进制串。
	UploadOriginal(ctx context.Context, submissionUUID, fileExt string, reader io.Reader, fileSize int64) (string, string, error)

	// UploadConvertedPDF 上传doc/docx转换出的PDF
	UploadConvertedPDF(ctx context.Context, submissionUUID string, pdfBytes []byte) (string, error)

	// UploadPageImage 上传渲染出的单页PNG
	UploadPageImage(ctx context.Context, submissionUUID string, pageNumber int, pngBytes []byte) (string, error)

	// UploadParsedText 上传提取出的简历文本
	UploadParsedText(ctx context.Context, submissionUUID string, text string) (string, error)

	// GetOriginal 下载原始简历文件
	GetOriginal(ctx context.Context, objectKey string) ([]byte, error)

	// GetParsedText 下载提取出的简历文本
	GetParsedText(ctx context.Context, objectKey string) (string, error)

	// GetPresignedURL 获取原始文件的预签名URL
	GetPresignedURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)

	// DeleteOriginal 删除原始简历文件
	DeleteOriginal(ctx context.Context, objectKey string) error
}

// 确保MinIO实现了ObjectStorage接口
var _ ObjectStorage = (*MinIO)(nil)

// MinIO 提供对象存储功能
// 四个存储桶分别存放原始上传、转换产物、页面图片与提取文本，
// 派生产物的保留期比原始文件短得多。
type MinIO struct {
	client           *minio.Client
	cfg              *config.MinIOConfig
	originalsBucket  string
	convertedBucket  string
	pageImagesBucket string
	parsedTextBucket string
	logger           *log.Logger
}

// NewMinIO 创建MinIO客户端并确保所有存储桶存在
func NewMinIO(cfg *config.MinIOConfig, logger *log.Logger) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	logger.Printf("[MinIO] Initializing client: endpoint=%s", cfg.Endpoint)

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		logger.Printf("[MinIO] Initialization failed: %v", err)
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	m := &MinIO{
		client:           client,
		cfg:              cfg,
		originalsBucket:  bucketOrDefault(cfg.OriginalsBucket, "originals"),
		convertedBucket:  bucketOrDefault(cfg.ConvertedBucket, "converted"),
		pageImagesBucket: bucketOrDefault(cfg.PageImagesBucket, "page-images"),
		parsedTextBucket: bucketOrDefault(cfg.ParsedTextBucket, "parsed-text"),
		logger:           logger,
	}

	for _, bucket := range []string{m.originalsBucket, m.convertedBucket, m.pageImagesBucket, m.parsedTextBucket} {
		if err := m.ensureBucketExists(bucket, cfg.Location); err != nil {
			logger.Printf("[MinIO] Failed to ensure bucket %s exists: %v", bucket, err)
			return nil, fmt.Errorf("确保存储桶 %s 存在失败: %w", bucket, err)
		}
	}

	if cfg.OriginalFileExpireDays > 0 || cfg.DerivedExpireDays > 0 {
		if err := m.setupLifecycleRules(context.Background()); err != nil {
			logger.Printf("[MinIO] Warning: failed to set up lifecycle rules: %v", err)
		}
	}

	logger.Printf("[MinIO] Client initialized successfully for endpoint: %s", cfg.Endpoint)
	return m, nil
}

func bucketOrDefault(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}

// ensureBucketExists 确保存储桶存在
func (m *MinIO) ensureBucketExists(bucketName, location string) error {
	exists, err := m.client.BucketExists(context.Background(), bucketName)
	if err != nil {
		return fmt.Errorf("检查存储桶 %s 是否存在时出错: %w", bucketName, err)
	}
	if !exists {
		m.logger.Printf("[MinIO] Bucket %s does not exist, creating...", bucketName)
		if err := m.client.MakeBucket(context.Background(), bucketName, minio.MakeBucketOptions{Region: location}); err != nil {
			return fmt.Errorf("创建存储桶 %s 失败: %w", bucketName, err)
		}
	}
	return nil
}

// setupLifecycleRules 设置对象生命周期规则
// 原始文件按合规要求长期保留，转换/渲染/文本产物可随时重建，
// 保留期到期后自动清理。
func (m *MinIO) setupLifecycleRules(ctx context.Context) error {
	if m.cfg.OriginalFileExpireDays > 0 {
		if err := m.setupBucketLifecycle(ctx, m.originalsBucket, "expire-originals", m.cfg.OriginalFileExpireDays); err != nil {
			return fmt.Errorf("为原始文件存储桶 %s 设置生命周期失败: %w", m.originalsBucket, err)
		}
	}
	if m.cfg.DerivedExpireDays > 0 {
		for _, bucket := range []string{m.convertedBucket, m.pageImagesBucket, m.parsedTextBucket} {
			if err := m.setupBucketLifecycle(ctx, bucket, "expire-derived", m.cfg.DerivedExpireDays); err != nil {
				return fmt.Errorf("为派生产物存储桶 %s 设置生命周期失败: %w", bucket, err)
			}
		}
	}
	return nil
}

// setupBucketLifecycle 为指定存储桶设置生命周期规则
func (m *MinIO) setupBucketLifecycle(ctx context.Context, bucketName, ruleID string, expiryDays int) error {
	cfg := lifecycle.NewConfiguration()
	cfg.Rules = []lifecycle.Rule{
		{
			ID:     ruleID,
			Status: "Enabled",
			Expiration: lifecycle.Expiration{
				Days: lifecycle.ExpirationDays(expiryDays),
			},
		},
	}
	if err := m.client.SetBucketLifecycle(ctx, bucketName, cfg); err != nil {
		m.logger.Printf("[MinIO] Error setting lifecycle for bucket %s: %v", bucketName, err)
		return err
	}
	return nil
}

// UploadOriginal 流式上传原始简历文件并同时计算MD5
// 使用TeeReader在单次遍历里完成上传与哈希，避免大文件二次读取。
func (m *MinIO) UploadOriginal(ctx context.Context, submissionUUID, fileExt string, reader io.Reader, fileSize int64) (string, string, error) {
	objectKey := fmt.Sprintf("analysis/%s/original%s", submissionUUID, fileExt)
	contentType := getContentType(fileExt)

	md5Hash := md5.New()
	teeReader := io.TeeReader(reader, md5Hash)

	info, err := m.client.PutObject(ctx, m.originalsBucket, objectKey, teeReader,
		fileSize, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", "", fmt.Errorf("流式上传文件到MinIO失败: %w", err)
	}

	md5Hex := hex.EncodeToString(md5Hash.Sum(nil))
	m.logger.Printf("[MinIO] Uploaded original %s, ETag: %s, Size: %d, MD5: %s",
		objectKey, info.ETag, info.Size, md5Hex)
	return objectKey, md5Hex, nil
}

// UploadConvertedPDF 上传doc/docx转换出的PDF
func (m *MinIO) UploadConvertedPDF(ctx context.Context, submissionUUID string, pdfBytes []byte) (string, error) {
	objectKey := fmt.Sprintf("analysis/%s/converted.pdf", submissionUUID)
	_, err := m.client.PutObject(ctx, m.convertedBucket, objectKey, bytes.NewReader(pdfBytes),
		int64(len(pdfBytes)), minio.PutObjectOptions{ContentType: "application/pdf"})
	if err != nil {
		return "", fmt.Errorf("上传转换PDF %s 到存储桶 %s 失败: %w", objectKey, m.convertedBucket, err)
	}
	return objectKey, nil
}

// UploadPageImage 上传渲染出的单页PNG
func (m *MinIO) UploadPageImage(ctx context.Context, submissionUUID string, pageNumber int, pngBytes []byte) (string, error) {
	objectKey := fmt.Sprintf("analysis/%s/page-%d.png", submissionUUID, pageNumber)
	_, err := m.client.PutObject(ctx, m.pageImagesBucket, objectKey, bytes.NewReader(pngBytes),
		int64(len(pngBytes)), minio.PutObjectOptions{ContentType: "image/png"})
	if err != nil {
		return "", fmt.Errorf("上传页面图片 %s 到存储桶 %s 失败: %w", objectKey, m.pageImagesBucket, err)
	}
	return objectKey, nil
}

// UploadParsedText 上传提取出的简历文本
func (m *MinIO) UploadParsedText(ctx context.Context, submissionUUID string, text string) (string, error) {
	objectKey := fmt.Sprintf("analysis/%s/parsed_text.txt", submissionUUID)
	_, err := m.client.PutObject(ctx, m.parsedTextBucket, objectKey, strings.NewReader(text),
		int64(len(text)), minio.PutObjectOptions{ContentType: "text/plain"})
	if err != nil {
		return "", fmt.Errorf("上传解析文本 %s 到存储桶 %s 失败: %w", objectKey, m.parsedTextBucket, err)
	}
	return objectKey, nil
}

// GetOriginal 下载原始简历文件
func (m *MinIO) GetOriginal(ctx context.Context, objectKey string) ([]byte, error) {
	return m.download(ctx, m.originalsBucket, objectKey)
}

// GetParsedText 下载提取出的简历文本
func (m *MinIO) GetParsedText(ctx context.Context, objectKey string) (string, error) {
	data, err := m.download(ctx, m.parsedTextBucket, objectKey)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (m *MinIO) download(ctx context.Context, bucketName, objectKey string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, bucketName, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("获取对象 %s/%s 失败: %w", bucketName, objectKey, err)
	}
	defer obj.Close()

	// Stat能及早暴露对象不存在或无权限的问题
	stat, err := obj.Stat()
	if err != nil {
		return nil, fmt.Errorf("获取对象 %s/%s 状态失败: %w", bucketName, objectKey, err)
	}
	m.logger.Printf("[MinIO] Object %s/%s stats: Size=%d, ContentType=%s", bucketName, objectKey, stat.Size, stat.ContentType)

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("读取对象 %s/%s 数据失败: %w", bucketName, objectKey, err)
	}
	return data, nil
}

// GetPresignedURL 获取原始文件的预签名URL
func (m *MinIO) GetPresignedURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	presignedURL, err := m.client.PresignedGetObject(ctx, m.originalsBucket, objectKey, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("生成MinIO预签名URL失败: %w", err)
	}
	return presignedURL.String(), nil
}

// DeleteOriginal 删除原始简历文件
func (m *MinIO) DeleteOriginal(ctx context.Context, objectKey string) error {
	if err := m.client.RemoveObject(ctx, m.originalsBucket, objectKey, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("删除对象 %s 失败: %w", objectKey, err)
	}
	return nil
}

// StatObject 暴露底层的StatObject方法，用于测试或特定场景
func (m *MinIO) StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	return m.client.StatObject(ctx, bucketName, objectName, opts)
}

// 获取内容类型
func getContentType(ext string) string {
	ext = strings.ToLower(ext)
	switch ext {
	case ".pdf":
		return "application/pdf"
	case ".doc":
		return "application/msword"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".txt":
		return "text/plain"
	case ".png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}
