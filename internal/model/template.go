package model

import "time"

// FigmantTemplate 定义了 figmant_templates 表的 ORM 模型。
// 模板是随分析调用发送的命名提示词预设（纯配置，不含逻辑）。
type FigmantTemplate struct {
	ID       uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name     string `gorm:"type:varchar(100);uniqueIndex;not null" json:"name"`
	Category string `gorm:"type:varchar(50)" json:"category"`
	Prompt   string `gorm:"type:text;not null" json:"prompt"`
	// Variables 是模板变量的 JSON 描述，由前端填充后随请求发送。
	Variables string    `gorm:"type:text" json:"variables,omitempty"`
	IsDefault bool      `gorm:"not null;default:false" json:"isDefault"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (FigmantTemplate) TableName() string {
	return "figmant_templates"
}
