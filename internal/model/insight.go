package model

import "time"

// InsightDocument 是索引到 Elasticsearch 的分析结果文档。
// 聊天分析与批次版本统一进入同一个索引，供用户做关键词检索。
type InsightDocument struct {
	InsightID       string    `json:"insight_id"`
	UserID          uint      `json:"user_id"`
	Source          string    `json:"source"` // "chat" 或 "batch"
	BatchID         string    `json:"batch_id,omitempty"`
	VersionNumber   int       `json:"version_number,omitempty"`
	AnalysisText    string    `json:"analysis_text"`
	ConfidenceScore float64   `json:"confidence_score"`
	CreatedAt       time.Time `json:"created_at"`
}

// InsightHit 是检索返回给前端的单条命中。
type InsightHit struct {
	InsightID       string    `json:"insightId"`
	Source          string    `json:"source"`
	BatchID         string    `json:"batchId,omitempty"`
	VersionNumber   int       `json:"versionNumber,omitempty"`
	Snippet         string    `json:"snippet"`
	ConfidenceScore float64   `json:"confidenceScore"`
	Score           float64   `json:"score"`
	CreatedAt       LocalTime `json:"createdAt"`
}
