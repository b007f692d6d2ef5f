// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// 上传记录状态，与 status 列的取值对应。
const (
	UploadStatusProcessing = 0
	UploadStatusCompleted  = 1
	UploadStatusFailed     = 2
)

// UploadRecord 定义了 upload_records 表的 ORM 模型。
// 每个经过处理管道的文件附件在这里留下一条持久化记录；
// 内存中的附件状态在进程重启后可以由它重建。
type UploadRecord struct {
	ID           uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	AttachmentID string     `gorm:"type:varchar(36);uniqueIndex;not null" json:"attachmentId"`
	UserID       uint       `gorm:"index;not null" json:"userId"`
	FileName     string     `gorm:"type:varchar(255);not null" json:"fileName"`
	ContentType  string     `gorm:"type:varchar(100);not null" json:"contentType"`
	SizeBytes    int64      `gorm:"not null" json:"sizeBytes"`
	UploadKind   string     `gorm:"type:varchar(10);not null" json:"uploadKind"`
	StoragePath  string     `gorm:"type:varchar(255)" json:"storagePath"`
	Status       int        `gorm:"type:tinyint;not null;default:0" json:"status"` // 0: processing, 1: completed, 2: failed
	ErrorMessage string     `gorm:"type:varchar(500)" json:"errorMessage,omitempty"`
	// BatchID 非空时表示该上传归属某个对比分析批次。
	BatchID     string     `gorm:"type:varchar(36);index" json:"batchId,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	CompletedAt *time.Time `gorm:"default:null" json:"completedAt,omitempty"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (UploadRecord) TableName() string {
	return "upload_records"
}
