package service

import (
	"errors"
	"figmant-go/internal/model"
	"figmant-go/internal/repository"
	"figmant-go/pkg/log"

	"gorm.io/gorm"
)

// ErrTemplateNotFound 表示模板不存在。
var ErrTemplateNotFound = errors.New("模板不存在")

// TemplateService 定义了分析模板的业务操作接口。
type TemplateService interface {
	List() ([]*model.FigmantTemplate, error)
	GetByName(name string) (*model.FigmantTemplate, error)
	// SeedDefaults 幂等写入内置模板，启动时调用。
	SeedDefaults() error
}

type templateService struct {
	templateRepo repository.TemplateRepository
}

// NewTemplateService 创建一个新的 TemplateService 实例。
func NewTemplateService(templateRepo repository.TemplateRepository) TemplateService {
	return &templateService{templateRepo: templateRepo}
}

// List 返回全部分析模板。
func (s *templateService) List() ([]*model.FigmantTemplate, error) {
	return s.templateRepo.List()
}

// GetByName 按名称查找模板。
func (s *templateService) GetByName(name string) (*model.FigmantTemplate, error) {
	template, err := s.templateRepo.GetByName(name)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTemplateNotFound
	}
	return template, err
}

// defaultTemplates 是随服务内置的分析模板预设。
var defaultTemplates = []*model.FigmantTemplate{
	{
		Name:      "ux-review",
		Category:  "general",
		Prompt:    "对上传的设计稿做整体 UX 评审，指出可用性问题并给出改进建议。",
		IsDefault: true,
	},
	{
		Name:      "accessibility-audit",
		Category:  "accessibility",
		Prompt:    "检查设计稿的可访问性：对比度、触控目标大小、阅读顺序与替代文本。",
		Variables: `{"wcagLevel":"AA"}`,
	},
	{
		Name:      "conversion-optimization",
		Category:  "conversion",
		Prompt:    "分析页面的转化路径，识别流失点并给出布局与文案优化建议。",
		Variables: `{"goal":""}`,
	},
}

// SeedDefaults 幂等写入内置模板。
func (s *templateService) SeedDefaults() error {
	for _, tpl := range defaultTemplates {
		if err := s.templateRepo.Upsert(tpl); err != nil {
			return err
		}
	}
	log.Infof("[TemplateService] 内置模板已就绪: %d 个", len(defaultTemplates))
	return nil
}
