package pipeline

import (
	"bytes"
	"context"
	"errors"
	"figmant-go/internal/config"
	"figmant-go/pkg/storage"
	"figmant-go/pkg/token"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
)

// Uploader 接口定义了将处理完的文件推送到对象存储的操作。
type Uploader interface {
	// Upload 构造按用户隔离的防碰撞对象路径并执行上传，成功返回存储路径。
	// 自身不做重试，存储可达性由编排器在进入处理链前确认。
	Upload(ctx context.Context, userID uint, fileName string, data []byte, contentType string) (string, error)
}

type minioUploader struct {
	cfg config.MinIOConfig
}

// NewUploader 创建一个新的 Uploader 实例。
func NewUploader(cfg config.MinIOConfig) Uploader {
	return &minioUploader{cfg: cfg}
}

func (u *minioUploader) Upload(ctx context.Context, userID uint, fileName string, data []byte, contentType string) (string, error) {
	if userID == 0 {
		return "", errors.New("not authenticated")
	}

	// 对象路径：用户前缀 + 时间戳 + 随机后缀 + 原始扩展名
	ext := strings.ToLower(filepath.Ext(fileName))
	objectName := fmt.Sprintf("uploads/%d/%d-%s%s", userID, time.Now().UnixNano(), token.GenerateRandomString(4), ext)

	_, err := storage.MinioClient.PutObject(ctx, u.cfg.BucketName, objectName,
		bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("上传对象到 MinIO 失败: %w", err)
	}
	return objectName, nil
}
