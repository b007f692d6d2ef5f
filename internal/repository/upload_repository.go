// Package repository 提供了数据访问层的实现。
package repository

import (
	"figmant-go/internal/model"
	"time"

	"gorm.io/gorm"
)

// UploadRepository 定义了对 upload_records 表的数据操作接口。
type UploadRepository interface {
	Create(record *model.UploadRecord) error
	GetByAttachmentID(attachmentID string) (*model.UploadRecord, error)
	MarkCompleted(attachmentID, storagePath string) error
	MarkFailed(attachmentID, errorMessage string) error
	FindByUserID(userID uint) ([]*model.UploadRecord, error)
	FindByAttachmentIDs(attachmentIDs []string) ([]*model.UploadRecord, error)
	AssignBatch(attachmentIDs []string, batchID string) error
	Delete(attachmentID string) error
}

type uploadRepository struct {
	db *gorm.DB
}

// NewUploadRepository 创建一个新的 UploadRepository 实例。
func NewUploadRepository(db *gorm.DB) UploadRepository {
	return &uploadRepository{db: db}
}

// Create 创建一条上传记录。
func (r *uploadRepository) Create(record *model.UploadRecord) error {
	return r.db.Create(record).Error
}

// GetByAttachmentID 根据附件ID查找上传记录。
func (r *uploadRepository) GetByAttachmentID(attachmentID string) (*model.UploadRecord, error) {
	var record model.UploadRecord
	err := r.db.Where("attachment_id = ?", attachmentID).First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// MarkCompleted 将上传记录标记为完成，并写入存储路径和完成时间。
func (r *uploadRepository) MarkCompleted(attachmentID, storagePath string) error {
	now := time.Now()
	return r.db.Model(&model.UploadRecord{}).
		Where("attachment_id = ?", attachmentID).
		Updates(map[string]interface{}{
			"status":        model.UploadStatusCompleted,
			"storage_path":  storagePath,
			"error_message": "",
			"completed_at":  &now,
		}).Error
}

// MarkFailed 将上传记录标记为失败，并记录失败原因。
func (r *uploadRepository) MarkFailed(attachmentID, errorMessage string) error {
	return r.db.Model(&model.UploadRecord{}).
		Where("attachment_id = ?", attachmentID).
		Updates(map[string]interface{}{
			"status":        model.UploadStatusFailed,
			"error_message": errorMessage,
		}).Error
}

// FindByUserID 查找用户的全部上传记录，按创建时间倒序。
func (r *uploadRepository) FindByUserID(userID uint) ([]*model.UploadRecord, error) {
	var records []*model.UploadRecord
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&records).Error
	return records, err
}

// FindByAttachmentIDs 批量查找上传记录。
func (r *uploadRepository) FindByAttachmentIDs(attachmentIDs []string) ([]*model.UploadRecord, error) {
	if len(attachmentIDs) == 0 {
		return []*model.UploadRecord{}, nil
	}
	var records []*model.UploadRecord
	err := r.db.Where("attachment_id IN ?", attachmentIDs).Find(&records).Error
	return records, err
}

// AssignBatch 把一组上传记录归入指定的分析批次。
func (r *uploadRepository) AssignBatch(attachmentIDs []string, batchID string) error {
	if len(attachmentIDs) == 0 {
		return nil
	}
	return r.db.Model(&model.UploadRecord{}).
		Where("attachment_id IN ?", attachmentIDs).
		Update("batch_id", batchID).Error
}

// Delete 删除上传记录。记录不存在时视为成功。
func (r *uploadRepository) Delete(attachmentID string) error {
	return r.db.Where("attachment_id = ?", attachmentID).Delete(&model.UploadRecord{}).Error
}
