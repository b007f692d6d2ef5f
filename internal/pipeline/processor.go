package pipeline

import (
	"context"
	"figmant-go/internal/config"
	"figmant-go/internal/model"
	"figmant-go/internal/repository"
	"figmant-go/pkg/log"
	"figmant-go/pkg/storage"
	"figmant-go/pkg/tasks"
	"fmt"
)

// Processor 消费 Kafka 附件任务：从暂存区取回原始字节，交给编排器跑完
// 处理链，然后把终态落到上传记录表。
type Processor struct {
	orch       *Orchestrator
	uploadRepo repository.UploadRepository
	store      *StatusStore
	bucketName string
	cfg        config.PipelineConfig
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(orch *Orchestrator, uploadRepo repository.UploadRepository, store *StatusStore, minioCfg config.MinIOConfig, pipelineCfg config.PipelineConfig) *Processor {
	return &Processor{
		orch:       orch,
		uploadRepo: uploadRepo,
		store:      store,
		bucketName: minioCfg.BucketName,
		cfg:        pipelineCfg,
	}
}

// Process 实现 kafka.TaskProcessor。
func (p *Processor) Process(ctx context.Context, task tasks.AttachmentProcessingTask) error {
	log.Infof("[Processor] 开始处理附件任务: %s, file: %s", task.AttachmentID, task.FileName)

	data, err := storage.GetStagingObject(ctx, p.bucketName, task.AttachmentID)
	if err != nil {
		log.Errorf("[Processor] 读取暂存对象失败: %s, error: %v", task.AttachmentID, err)
		p.store.Apply(task.AttachmentID, func(a model.Attachment) model.Attachment {
			a.Status = model.AttachmentStatusError
			a.ErrorMessage = "读取暂存文件失败，请重新上传"
			return a
		})
		_ = p.uploadRepo.MarkFailed(task.AttachmentID, "staging object unavailable")
		return fmt.Errorf("读取暂存对象失败: %w", err)
	}

	p.orch.Run(ctx, Input{
		AttachmentID: task.AttachmentID,
		UserID:       task.UserID,
		FileName:     task.FileName,
		ContentType:  task.ContentType,
		Data:         data,
		MaxSize:      p.maxSizeFor(task.UploadKind),
	})

	att, ok := p.store.Get(task.AttachmentID)
	if !ok {
		// 用户在处理过程中移除了附件，终态不再落库
		log.Infof("[Processor] 附件已被移除，丢弃处理结果: %s", task.AttachmentID)
		_ = storage.RemoveStagingObject(ctx, p.bucketName, task.AttachmentID)
		return nil
	}

	switch att.Status {
	case model.AttachmentStatusUploaded:
		if err := p.uploadRepo.MarkCompleted(task.AttachmentID, att.UploadPath); err != nil {
			log.Errorf("[Processor] 更新上传记录失败: %s, error: %v", task.AttachmentID, err)
		}
		// 成功后暂存对象不再需要
		if err := storage.RemoveStagingObject(ctx, p.bucketName, task.AttachmentID); err != nil {
			log.Warnf("[Processor] 清理暂存对象失败: %s, error: %v", task.AttachmentID, err)
		}
		log.Infof("[Processor] 附件处理完成: %s, path: %s", task.AttachmentID, att.UploadPath)
	case model.AttachmentStatusError:
		// 暂存对象保留，支持用户手动重试
		if err := p.uploadRepo.MarkFailed(task.AttachmentID, att.ErrorMessage); err != nil {
			log.Errorf("[Processor] 标记上传记录失败: %s, error: %v", task.AttachmentID, err)
		}
		log.Warnf("[Processor] 附件处理失败: %s, message: %s", task.AttachmentID, att.ErrorMessage)
	}
	return nil
}

func (p *Processor) maxSizeFor(kind string) int64 {
	switch kind {
	case tasks.UploadKindSingle:
		if p.cfg.MaxSingleFileSizeMB > 0 {
			return int64(p.cfg.MaxSingleFileSizeMB) * 1024 * 1024
		}
		return DefaultMaxSingleFileSize
	default:
		if p.cfg.MaxChatFileSizeMB > 0 {
			return int64(p.cfg.MaxChatFileSizeMB) * 1024 * 1024
		}
		return DefaultMaxChatFileSize
	}
}
