// Package service 封装了核心业务逻辑。
package service

import (
	"context"
	"errors"
	"figmant-go/internal/config"
	"figmant-go/internal/model"
	"figmant-go/internal/pipeline"
	"figmant-go/internal/repository"
	"figmant-go/pkg/kafka"
	"figmant-go/pkg/log"
	"figmant-go/pkg/storage"
	"figmant-go/pkg/tasks"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrAttachmentNotFound 表示附件不存在或已被移除。
	ErrAttachmentNotFound = errors.New("附件不存在")
	// ErrRetryNotAllowed 表示只有失败状态的附件才能手动重试。
	ErrRetryNotAllowed = errors.New("只有上传失败的附件才能重试")
	// ErrInvalidURL 表示 URL 附件的地址不合法。
	ErrInvalidURL = errors.New("URL 格式不合法")
)

// AttachmentService 定义了附件生命周期的业务操作接口。
type AttachmentService interface {
	CreateFileAttachment(ctx context.Context, userID uint, fileName, contentType string, data []byte, uploadKind string) (*model.Attachment, error)
	CreateURLAttachment(ctx context.Context, userID uint, rawURL string) (*model.Attachment, error)
	List(userID uint) []model.Attachment
	Remove(ctx context.Context, userID uint, attachmentID string) error
	Retry(ctx context.Context, userID uint, attachmentID string) error
	SupportedTypes() []string
}

type attachmentService struct {
	store      *pipeline.StatusStore
	uploadRepo repository.UploadRepository
	minioCfg   config.MinIOConfig
}

// NewAttachmentService 创建一个新的 AttachmentService 实例。
func NewAttachmentService(store *pipeline.StatusStore, uploadRepo repository.UploadRepository, minioCfg config.MinIOConfig) AttachmentService {
	return &attachmentService{
		store:      store,
		uploadRepo: uploadRepo,
		minioCfg:   minioCfg,
	}
}

// CreateFileAttachment 登记一个文件附件并投递异步处理任务。
// 原始字节先写入暂存区，处理链由消费者侧从暂存区取回后执行。
func (s *attachmentService) CreateFileAttachment(ctx context.Context, userID uint, fileName, contentType string, data []byte, uploadKind string) (*model.Attachment, error) {
	attachmentID := uuid.New().String()

	attType := model.AttachmentTypeFile
	if strings.HasPrefix(contentType, "image/") {
		attType = model.AttachmentTypeImage
	}

	att := model.Attachment{
		ID:        attachmentID,
		UserID:    userID,
		Type:      attType,
		Name:      fileName,
		Status:    model.AttachmentStatusPending,
		CreatedAt: time.Now(),
	}
	s.store.Put(att)

	record := &model.UploadRecord{
		AttachmentID: attachmentID,
		UserID:       userID,
		FileName:     fileName,
		ContentType:  contentType,
		SizeBytes:    int64(len(data)),
		UploadKind:   uploadKind,
		Status:       model.UploadStatusProcessing,
	}
	if err := s.uploadRepo.Create(record); err != nil {
		s.store.Remove(attachmentID)
		return nil, fmt.Errorf("创建上传记录失败: %w", err)
	}

	if err := storage.PutStagingObject(ctx, s.minioCfg.BucketName, attachmentID, data, contentType); err != nil {
		s.store.Remove(attachmentID)
		_ = s.uploadRepo.Delete(attachmentID)
		return nil, fmt.Errorf("写入暂存区失败: %w", err)
	}

	task := tasks.AttachmentProcessingTask{
		AttachmentID: attachmentID,
		UserID:       userID,
		FileName:     fileName,
		ContentType:  contentType,
		SizeBytes:    int64(len(data)),
		UploadKind:   uploadKind,
	}
	if err := kafka.ProduceAttachmentTask(task); err != nil {
		s.store.Remove(attachmentID)
		_ = s.uploadRepo.Delete(attachmentID)
		_ = storage.RemoveStagingObject(ctx, s.minioCfg.BucketName, attachmentID)
		return nil, fmt.Errorf("投递处理任务失败: %w", err)
	}

	log.Infof("[AttachmentService] 附件已登记并投递: %s, file: %s, size: %d", attachmentID, fileName, len(data))
	return &att, nil
}

// CreateURLAttachment 登记一个 URL 附件。URL 附件不走处理链，创建即为就绪。
func (s *attachmentService) CreateURLAttachment(ctx context.Context, userID uint, rawURL string) (*model.Attachment, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Hostname() == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, ErrInvalidURL
	}

	att := model.Attachment{
		ID:        uuid.New().String(),
		UserID:    userID,
		Type:      model.AttachmentTypeURL,
		Name:      parsed.Hostname(),
		Status:    model.AttachmentStatusUploaded,
		URL:       rawURL,
		CreatedAt: time.Now(),
	}
	s.store.Put(att)
	log.Infof("[AttachmentService] URL 附件已登记: %s, host: %s", att.ID, att.Name)
	return &att, nil
}

// List 返回用户当前的全部附件。
func (s *attachmentService) List(userID uint) []model.Attachment {
	return s.store.List(userID)
}

// Remove 移除一个附件。附件不存在时静默成功，重复移除是幂等的。
// 归属校验同时覆盖状态存储与数据库记录：附件发送后会离开状态存储，
// 此时仍不允许删除他人的上传记录和暂存对象。
func (s *attachmentService) Remove(ctx context.Context, userID uint, attachmentID string) error {
	if att, ok := s.store.Get(attachmentID); ok && att.UserID != userID {
		return ErrAttachmentNotFound
	}
	record, err := s.uploadRepo.GetByAttachmentID(attachmentID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("查询上传记录失败: %w", err)
	}
	if record != nil && record.UserID != userID {
		return ErrAttachmentNotFound
	}
	s.store.Remove(attachmentID)
	if err := s.uploadRepo.Delete(attachmentID); err != nil {
		log.Warnf("[AttachmentService] 删除上传记录失败: %s, error: %v", attachmentID, err)
	}
	_ = storage.RemoveStagingObject(ctx, s.minioCfg.BucketName, attachmentID)
	return nil
}

// Retry 对失败的附件重新投递处理任务。状态重置为 pending，从原始字节重新开始。
func (s *attachmentService) Retry(ctx context.Context, userID uint, attachmentID string) error {
	att, ok := s.store.Get(attachmentID)
	if !ok || att.UserID != userID {
		return ErrAttachmentNotFound
	}
	if att.Status != model.AttachmentStatusError {
		return ErrRetryNotAllowed
	}

	record, err := s.uploadRepo.GetByAttachmentID(attachmentID)
	if err != nil {
		return fmt.Errorf("查询上传记录失败: %w", err)
	}

	s.store.Apply(attachmentID, func(a model.Attachment) model.Attachment {
		a.Status = model.AttachmentStatusPending
		a.StatusReason = ""
		a.ErrorMessage = ""
		return a
	})

	task := tasks.AttachmentProcessingTask{
		AttachmentID: attachmentID,
		UserID:       userID,
		FileName:     record.FileName,
		ContentType:  record.ContentType,
		SizeBytes:    record.SizeBytes,
		UploadKind:   record.UploadKind,
	}
	if err := kafka.ProduceAttachmentTask(task); err != nil {
		s.store.Apply(attachmentID, func(a model.Attachment) model.Attachment {
			a.Status = model.AttachmentStatusError
			a.ErrorMessage = "重试任务投递失败，请稍后再试"
			return a
		})
		return fmt.Errorf("投递重试任务失败: %w", err)
	}

	log.Infof("[AttachmentService] 附件重试已投递: %s", attachmentID)
	return nil
}

// SupportedTypes 返回允许上传的内容类型列表。
func (s *attachmentService) SupportedTypes() []string {
	return pipeline.AllowedContentTypes()
}
