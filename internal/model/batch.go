package model

import "time"

// 批次状态机：created →(首次分析) analyzed →(新增/替换文件并再次分析) modified。
// 不存在删除或重编号历史版本的迁移。
const (
	BatchStateCreated  = "created"
	BatchStateAnalyzed = "analyzed"
	BatchStateModified = "modified"
)

// BatchAnalysis 定义了 batch_analyses 表的 ORM 模型。
// 一个批次是被作为整体对比分析的一组上传。
type BatchAnalysis struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	BatchID   string    `gorm:"type:varchar(36);uniqueIndex;not null" json:"batchId"`
	UserID    uint      `gorm:"index;not null" json:"userId"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	State     string    `gorm:"type:varchar(20);not null;default:'created'" json:"state"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (BatchAnalysis) TableName() string {
	return "batch_analyses"
}

// BatchAnalysisVersion 定义了 batch_analysis_versions 表的 ORM 模型。
// 同一 batch_id 下 version_number 从 1 开始严格递增；版本记录创建后
// 永不修改，最新版本是展示时的权威版本，历史版本全部保留。
type BatchAnalysisVersion struct {
	ID            uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	BatchID       string `gorm:"type:varchar(36);index:idx_batch_version,unique,priority:1;not null" json:"batchId"`
	VersionNumber int    `gorm:"index:idx_batch_version,unique,priority:2;not null" json:"versionNumber"`
	// ModificationSummary 仅对 version_number > 1 存在，由用户撰写、非空。
	ModificationSummary string    `gorm:"type:varchar(500)" json:"modificationSummary,omitempty"`
	AnalysisResults     string    `gorm:"type:text;not null" json:"analysisResults"`
	ConfidenceScore     float64   `gorm:"not null;default:0" json:"confidenceScore"`
	CreatedAt           time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (BatchAnalysisVersion) TableName() string {
	return "batch_analysis_versions"
}
