// Package analysis 提供了调用远程 AI 分析服务的客户端。
// 分析服务本身（提示词组装、模型调用）是一个独立的边缘函数，对本服务不透明。
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"figmant-go/internal/config"
	"fmt"
	"io"
	"net/http"
	"time"
)

// AttachmentRef 是随分析请求发送的附件引用。
// URL 附件携带 url，文件附件携带对象存储路径。
type AttachmentRef struct {
	Type       string `json:"type"`
	Name       string `json:"name"`
	URL        string `json:"url,omitempty"`
	UploadPath string `json:"uploadPath,omitempty"`
}

// Request 是一次分析调用的入参。
type Request struct {
	Message     string          `json:"message"`
	Attachments []AttachmentRef `json:"attachments"`
	Template    string          `json:"template,omitempty"`
	Model       string          `json:"model,omitempty"`
}

// Result 是远程分析服务的返回值。
type Result struct {
	Analysis   string                 `json:"analysis"`
	UploadIDs  []string               `json:"uploadIds,omitempty"`
	BatchID    string                 `json:"batchId,omitempty"`
	Confidence float64                `json:"confidence,omitempty"`
	DebugInfo  map[string]interface{} `json:"debugInfo,omitempty"`
}

// Client defines the interface for the remote analysis invocation.
type Client interface {
	// Analyze 发起一次分析调用。调用是一次性的：围绕它没有重试循环，
	// 只有随请求传入的 context 超时。
	Analyze(ctx context.Context, req Request) (*Result, error)
}

type httpClient struct {
	cfg    config.AnalysisConfig
	client *http.Client
}

// NewClient 根据配置创建一个新的分析客户端。
func NewClient(cfg config.AnalysisConfig) Client {
	timeout := 120 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &httpClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (c *httpClient) Analyze(ctx context.Context, req Request) (*Result, error) {
	if req.Model == "" {
		req.Model = c.cfg.Model
	}

	reqBytes, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal analysis request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/analyze", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create analysis request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call analysis api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("analysis api returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode analysis response: %w", err)
	}

	// 置信度来自模型输出，钳制到 [0,1] 以满足存储层的约束
	if result.Confidence < 0 {
		result.Confidence = 0
	}
	if result.Confidence > 1 {
		result.Confidence = 1
	}
	return &result, nil
}
