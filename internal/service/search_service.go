package service

import (
	"bytes"
	"context"
	"encoding/json"
	"figmant-go/internal/config"
	"figmant-go/internal/model"
	"figmant-go/pkg/es"
	"figmant-go/pkg/log"
	"fmt"
	"io"
)

const snippetMaxRunes = 200

// SearchService 定义了分析洞察的关键词检索接口。
type SearchService interface {
	SearchInsights(ctx context.Context, userID uint, query string, topK int) ([]model.InsightHit, error)
}

type searchService struct {
	esCfg config.ElasticsearchConfig
}

// NewSearchService 创建一个新的 SearchService 实例。
func NewSearchService(esCfg config.ElasticsearchConfig) SearchService {
	return &searchService{esCfg: esCfg}
}

// SearchInsights 在用户自己的分析洞察里做关键词检索。
func (s *searchService) SearchInsights(ctx context.Context, userID uint, query string, topK int) ([]model.InsightHit, error) {
	if topK <= 0 {
		topK = 10
	}

	// 1. 构建查询：analysis_text 全文匹配 + user_id 精确过滤
	esQuery := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": map[string]interface{}{
					"match": map[string]interface{}{
						"analysis_text": query,
					},
				},
				"filter": map[string]interface{}{
					"term": map[string]interface{}{
						"user_id": userID,
					},
				},
			},
		},
		"size": topK,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		log.Errorf("[SearchService] 序列化 Elasticsearch 查询失败: %v", err)
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	// 2. 执行搜索
	res, err := es.ESClient.Search(
		es.ESClient.Search.WithContext(ctx),
		es.ESClient.Search.WithIndex(s.esCfg.IndexName),
		es.ESClient.Search.WithBody(&buf),
	)
	if err != nil {
		log.Errorf("[SearchService] 向 Elasticsearch 发送搜索请求失败: %v", err)
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		log.Errorf("[SearchService] Elasticsearch 返回错误, status: %s, body: %s", res.Status(), string(bodyBytes))
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.String())
	}

	// 3. 解析结果
	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source model.InsightDocument `json:"_source"`
				Score  float64               `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		log.Errorf("[SearchService] 解析 Elasticsearch 响应失败: %v", err)
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	hits := make([]model.InsightHit, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		hits = append(hits, model.InsightHit{
			InsightID:       hit.Source.InsightID,
			Source:          hit.Source.Source,
			BatchID:         hit.Source.BatchID,
			VersionNumber:   hit.Source.VersionNumber,
			Snippet:         truncateRunes(hit.Source.AnalysisText, snippetMaxRunes),
			ConfidenceScore: hit.Source.ConfidenceScore,
			Score:           hit.Score,
			CreatedAt:       model.LocalTime(hit.Source.CreatedAt),
		})
	}
	log.Infof("[SearchService] 检索完成: user: %d, query: '%s', hits: %d", userID, query, len(hits))
	return hits, nil
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
