// Package storage 提供了与对象存储服务（MinIO）交互的功能。
package storage

import (
	"bytes"
	"context"
	"figmant-go/internal/config"
	"figmant-go/pkg/log"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioClient 是一个全局的 MinIO 客户端实例。
var MinioClient *minio.Client

// InitMinIO 初始化 MinIO 客户端并确保指定的存储桶存在。
func InitMinIO(cfg config.MinIOConfig) {
	var err error

	// 1. 初始化 MinIO 客户端
	MinioClient, err = minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		log.Fatal("初始化 MinIO 客户端失败", err)
	}

	log.Info("MinIO 客户端初始化成功")

	// 2. 检查存储桶 (Bucket) 是否存在，如果不存在则创建
	ctx := context.Background()
	bucketName := cfg.BucketName
	exists, err := MinioClient.BucketExists(ctx, bucketName)
	if err != nil {
		log.Fatal("检查 MinIO 存储桶失败", err)
	}

	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", bucketName)
		err = MinioClient.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{})
		if err != nil {
			log.Fatal("创建 MinIO 存储桶失败", err)
		}
		log.Infof("存储桶 '%s' 创建成功", bucketName)
	} else {
		log.Infof("存储桶 '%s' 已存在", bucketName)
	}
}

// GetPresignedURL 为指定对象生成预签名下载 URL。
func GetPresignedURL(bucketName, objectName string, expiry time.Duration) (string, error) {
	presignedURL, err := MinioClient.PresignedGetObject(context.Background(), bucketName, objectName, expiry, nil)
	if err != nil {
		log.Errorf("生成预签名 URL 失败: %s", err)
		return "", err
	}
	return presignedURL.String(), nil
}

// stagingObjectName 返回附件原始字节的暂存对象路径。
// 暂存对象在处理成功后清理，终态失败时保留以支持手动重试。
func stagingObjectName(attachmentID string) string {
	return fmt.Sprintf("staging/%s", attachmentID)
}

// PutStagingObject 将附件的原始字节写入暂存区，供处理管道消费。
func PutStagingObject(ctx context.Context, bucketName, attachmentID string, data []byte, contentType string) error {
	_, err := MinioClient.PutObject(ctx, bucketName, stagingObjectName(attachmentID),
		bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("写入暂存对象失败: %w", err)
	}
	return nil
}

// GetStagingObject 读取附件的暂存原始字节。
func GetStagingObject(ctx context.Context, bucketName, attachmentID string) ([]byte, error) {
	object, err := MinioClient.GetObject(ctx, bucketName, stagingObjectName(attachmentID), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("读取暂存对象失败: %w", err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, fmt.Errorf("读取暂存对象流失败: %w", err)
	}
	return data, nil
}

// RemoveStagingObject 删除附件的暂存对象（处理成功后的清理）。
func RemoveStagingObject(ctx context.Context, bucketName, attachmentID string) error {
	return MinioClient.RemoveObject(ctx, bucketName, stagingObjectName(attachmentID), minio.RemoveObjectOptions{})
}
