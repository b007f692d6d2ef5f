package pipeline

import (
	"bytes"
	"figmant-go/internal/config"
	"figmant-go/internal/model"
	"fmt"

	"github.com/disintegration/imaging"
)

// DefaultJPEGQuality 是压缩重编码时的默认质量因子，在保真与体积之间折中。
const DefaultJPEGQuality = 85

// Resizer 接口定义了图片压缩操作。
type Resizer interface {
	// Resize 将超出像素上限的图片等比缩放到上限以内并重编码为 JPEG。
	// 输入字节不会被修改；解码失败（如图片损坏）返回错误，
	// 由调用方作为本次尝试的失败处理。
	Resize(data []byte) ([]byte, *model.ProcessingInfo, error)
}

type imageResizer struct {
	maxDimension int
	quality      int
}

// NewResizer 创建一个新的 Resizer 实例。
func NewResizer(cfg config.PipelineConfig) Resizer {
	maxDimension := cfg.MaxImageDimension
	if maxDimension <= 0 {
		maxDimension = DefaultMaxImageDimension
	}
	quality := cfg.JPEGQuality
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return &imageResizer{maxDimension: maxDimension, quality: quality}
}

func (r *imageResizer) Resize(data []byte) ([]byte, *model.ProcessingInfo, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("解码图片失败: %w", err)
	}

	// 等比缩放到 maxDimension×maxDimension 以内；已在范围内时 Fit 原样返回
	resized := imaging.Fit(img, r.maxDimension, r.maxDimension, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(r.quality)); err != nil {
		return nil, nil, fmt.Errorf("JPEG 重编码失败: %w", err)
	}

	bounds := resized.Bounds()
	originalSize := int64(len(data))
	processedSize := int64(buf.Len())
	info := &model.ProcessingInfo{
		OriginalSize:     originalSize,
		ProcessedSize:    processedSize,
		CompressionRatio: 1 - float64(processedSize)/float64(originalSize),
		Width:            bounds.Dx(),
		Height:           bounds.Dy(),
	}
	return buf.Bytes(), info, nil
}
