package pipeline

import (
	"bytes"
	"figmant-go/internal/config"
	"fmt"
	"image"
	"net/http"
	"sort"
	"strings"

	// 注册图片格式的解码器，供 image.DecodeConfig 使用
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

const (
	// DefaultMaxChatFileSize 是聊天附件的字节上限 (50MB)。
	DefaultMaxChatFileSize = 50 * 1024 * 1024
	// DefaultMaxSingleFileSize 是单文件上传入口的字节上限 (10MB)。
	DefaultMaxSingleFileSize = 10 * 1024 * 1024
	// DefaultMaxImageDimension 是下游模型可接受的像素上限（宽或高）。
	DefaultMaxImageDimension = 8000
)

// allowedContentTypes 是允许上传的 MIME 类型白名单（图片与 PDF）。
var allowedContentTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"image/webp":      true,
	"application/pdf": true,
}

// AllowedContentTypes 返回白名单中的 MIME 类型，按字典序排列。
func AllowedContentTypes() []string {
	types := make([]string, 0, len(allowedContentTypes))
	for ct := range allowedContentTypes {
		types = append(types, ct)
	}
	sort.Strings(types)
	return types
}

// ValidationError 表示校验失败（类型/大小不合规）。
// 校验失败立即终态，不消耗重试预算。
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// ValidationResult 是校验通过时的结果。
type ValidationResult struct {
	// NeedsResize 表示图片尺寸超出像素上限，需要先压缩再上传。
	NeedsResize bool
	Width       int
	Height      int
}

// Validator 接口定义了文件校验操作。
type Validator interface {
	// Validate 校验文件的类型与大小，并对图片做尺寸探测。
	// 类型/大小不合规返回 *ValidationError（终态）；
	// 图片头解码失败返回普通 error（按瞬态失败重试）。
	Validate(fileName, contentType string, data []byte, maxSize int64) (*ValidationResult, error)
}

type fileValidator struct {
	maxDimension int
}

// NewValidator 创建一个新的 Validator 实例。
func NewValidator(cfg config.PipelineConfig) Validator {
	maxDimension := cfg.MaxImageDimension
	if maxDimension <= 0 {
		maxDimension = DefaultMaxImageDimension
	}
	return &fileValidator{maxDimension: maxDimension}
}

func (v *fileValidator) Validate(fileName, contentType string, data []byte, maxSize int64) (*ValidationResult, error) {
	// 1. 大小检查
	if int64(len(data)) > maxSize {
		return nil, &ValidationError{Reason: fmt.Sprintf("文件超出大小限制（%dMB）: %s", maxSize/(1024*1024), fileName)}
	}
	if len(data) == 0 {
		return nil, &ValidationError{Reason: fmt.Sprintf("文件内容为空: %s", fileName)}
	}

	// 2. 类型检查：未声明类型时从文件头嗅探
	ct := contentType
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	// 去掉可能携带的参数部分，如 "image/jpeg; charset=binary"
	if idx := strings.Index(ct, ";"); idx >= 0 {
		ct = strings.TrimSpace(ct[:idx])
	}
	if !allowedContentTypes[ct] {
		return nil, &ValidationError{Reason: fmt.Sprintf("不支持的文件类型 '%s': %s", ct, fileName)}
	}

	result := &ValidationResult{}

	// 3. 图片尺寸探测：只解码图片头，不做全量像素解码
	if strings.HasPrefix(ct, "image/") {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("解码图片头失败: %w", err)
		}
		result.Width = cfg.Width
		result.Height = cfg.Height
		if cfg.Width > v.maxDimension || cfg.Height > v.maxDimension {
			result.NeedsResize = true
		}
	}

	return result, nil
}
