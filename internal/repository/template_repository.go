package repository

import (
	"errors"
	"figmant-go/internal/model"

	"gorm.io/gorm"
)

// TemplateRepository 定义了对 figmant_templates 表的数据操作接口。
type TemplateRepository interface {
	List() ([]*model.FigmantTemplate, error)
	GetByName(name string) (*model.FigmantTemplate, error)
	Upsert(template *model.FigmantTemplate) error
}

type templateRepository struct {
	db *gorm.DB
}

// NewTemplateRepository 创建一个新的 TemplateRepository 实例。
func NewTemplateRepository(db *gorm.DB) TemplateRepository {
	return &templateRepository{db: db}
}

// List 返回全部分析模板。
func (r *templateRepository) List() ([]*model.FigmantTemplate, error) {
	var templates []*model.FigmantTemplate
	err := r.db.Order("name ASC").Find(&templates).Error
	return templates, err
}

// GetByName 按名称查找模板。
func (r *templateRepository) GetByName(name string) (*model.FigmantTemplate, error) {
	var template model.FigmantTemplate
	err := r.db.Where("name = ?", name).First(&template).Error
	if err != nil {
		return nil, err
	}
	return &template, nil
}

// Upsert 按名称插入或更新模板，用于启动时的幂等种子数据。
func (r *templateRepository) Upsert(template *model.FigmantTemplate) error {
	var existing model.FigmantTemplate
	err := r.db.Where("name = ?", template.Name).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.db.Create(template).Error
	}
	if err != nil {
		return err
	}
	template.ID = existing.ID
	return r.db.Model(&existing).Updates(map[string]interface{}{
		"category":   template.Category,
		"prompt":     template.Prompt,
		"variables":  template.Variables,
		"is_default": template.IsDefault,
	}).Error
}
