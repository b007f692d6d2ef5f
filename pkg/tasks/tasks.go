// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// UploadKind 区分两类上传入口，它们各自有独立的大小上限。
const (
	UploadKindChat   = "chat"
	UploadKindSingle = "single"
)

// AttachmentProcessingTask represents the data structure for an attachment processing job.
// 附件的原始字节不随消息传输，消费者按附件 ID 从暂存区读取。
type AttachmentProcessingTask struct {
	AttachmentID string `json:"attachment_id"`
	UserID       uint   `json:"user_id"`
	FileName     string `json:"file_name"`
	ContentType  string `json:"content_type"`
	SizeBytes    int64  `json:"size_bytes"`
	UploadKind   string `json:"upload_kind"`
}
