// Package model 包含了应用的数据模型定义。
package model

import "time"

// ChatMessage 代表对话记录里的一轮消息。
// 一个会话内的消息只追加、不原地修改。
type ChatMessage struct {
	ID      string `json:"id"`
	Role    string `json:"role"` // "user" 或 "assistant"
	Content string `json:"content"`
	// Attachments 是随消息提交的附件快照（有序，可为空）。
	Attachments []Attachment `json:"attachments,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
	// UploadIDs / BatchID 关联远程分析返回的后端记录。
	UploadIDs []string `json:"uploadIds,omitempty"`
	BatchID   string   `json:"batchId,omitempty"`
}
