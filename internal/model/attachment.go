// Package model 定义了应用的数据模型。
package model

import "time"

// AttachmentStatus 是附件处理链上的状态标签。
// 状态只向前推进：pending → (processing) → uploading → uploaded，
// 或从任意非终态进入 error；uploaded 和 error 是单次尝试的终态，
// 手动重试会把状态重置回 pending 并重新进入处理链。
type AttachmentStatus string

const (
	AttachmentStatusPending    AttachmentStatus = "pending"
	AttachmentStatusProcessing AttachmentStatus = "processing"
	AttachmentStatusUploading  AttachmentStatus = "uploading"
	AttachmentStatusUploaded   AttachmentStatus = "uploaded"
	AttachmentStatusError      AttachmentStatus = "error"
)

// Terminal 返回该状态是否为单次尝试的终态。
func (s AttachmentStatus) Terminal() bool {
	return s == AttachmentStatusUploaded || s == AttachmentStatusError
}

// AttachmentType 区分用户提供的输入类别。
type AttachmentType string

const (
	AttachmentTypeFile  AttachmentType = "file"
	AttachmentTypeImage AttachmentType = "image"
	AttachmentTypeURL   AttachmentType = "url"
)

// ProcessingInfo 记录图片压缩处理的元数据，仅在发生过缩放时存在。
type ProcessingInfo struct {
	OriginalSize     int64   `json:"originalSize"`
	ProcessedSize    int64   `json:"processedSize"`
	CompressionRatio float64 `json:"compressionRatio"`
	Width            int     `json:"width"`
	Height           int     `json:"height"`
}

// Attachment 代表用户为分析提供的一个输入（文件或 URL）。
// ID 在创建时生成且永不复用；集合里的条目在用户显式删除或
// 消息发送成功后被移除。
type Attachment struct {
	ID     string           `json:"id"`
	UserID uint             `json:"userId"`
	Type   AttachmentType   `json:"type"`
	Name   string           `json:"name"`
	Status AttachmentStatus `json:"status"`
	// StatusReason 补充说明非终态的停留原因（如等待存储就绪）。
	StatusReason string `json:"statusReason,omitempty"`
	// UploadPath 仅在上传成功后设置。
	UploadPath string `json:"uploadPath,omitempty"`
	// URL 仅对 type=url 的附件设置。
	URL string `json:"url,omitempty"`
	// ErrorMessage 仅在 status=error 时设置。
	ErrorMessage   string          `json:"errorMessage,omitempty"`
	ProcessingInfo *ProcessingInfo `json:"processingInfo,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}
