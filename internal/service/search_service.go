package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/anzchy/chat-memo-pro-sub000/internal/model"
	"github.com/anzchy/chat-memo-pro-sub000/pkg/log"
	"github.com/elastic/go-elasticsearch/v8"
)

const snippetLength = 200

var (
	reKeep  = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	reSpace = regexp.MustCompile(`\s+`)
)

// SearchService 接口定义了对话检索操作。
type SearchService interface {
	SearchConversations(ctx context.Context, query string, topK int) ([]model.SearchResponseDTO, error)
}

type searchService struct {
	esClient  *elasticsearch.Client
	indexName string
}

// NewSearchService 创建一个新的 SearchService 实例。
func NewSearchService(esClient *elasticsearch.Client, indexName string) SearchService {
	return &searchService{esClient: esClient, indexName: indexName}
}

// SearchConversations 在标题和正文上执行全文检索。
func (s *searchService) SearchConversations(ctx context.Context, query string, topK int) ([]model.SearchResponseDTO, error) {
	normalized := normalizeQuery(query)
	if normalized == "" {
		return []model.SearchResponseDTO{}, nil
	}
	log.Infof("[SearchService] 开始检索, query: '%s' -> '%s', topK: %d", query, normalized, topK)

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(buildSearchQuery(normalized, topK)); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := s.esClient.Search(
		s.esClient.Search.WithContext(ctx),
		s.esClient.Search.WithIndex(s.indexName),
		s.esClient.Search.WithBody(&buf),
		s.esClient.Search.WithTrackTotalHits(true),
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

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source model.EsDocument `json:"_source"`
				Score  float64          `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	results := make([]model.SearchResponseDTO, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		results = append(results, model.SearchResponseDTO{
			ConversationID: hit.Source.ConversationID,
			Platform:       hit.Source.Platform,
			Link:           hit.Source.Link,
			Title:          hit.Source.Title,
			Snippet:        snippet(hit.Source.TextContent, snippetLength),
			Score:          hit.Score,
			UpdatedAt:      hit.Source.UpdatedAt,
		})
	}
	log.Infof("[SearchService] 检索完成, 返回 %d 条结果", len(results))
	return results, nil
}

// normalizeQuery 对用户查询做轻量去噪：转小写，去掉标点，归一空白。
func normalizeQuery(q string) string {
	kept := reKeep.ReplaceAllString(strings.ToLower(q), " ")
	return strings.TrimSpace(reSpace.ReplaceAllString(kept, " "))
}

// buildSearchQuery 构建 multi_match 查询，并用 match_phrase 对完整短语加权。
func buildSearchQuery(phrase string, topK int) map[string]interface{} {
	return map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": map[string]interface{}{
					"multi_match": map[string]interface{}{
						"query":  phrase,
						"fields": []string{"title^2", "text_content"},
					},
				},
				"should": []map[string]interface{}{
					{
						"match_phrase": map[string]interface{}{
							"text_content": map[string]interface{}{
								"query": phrase,
								"boost": 3.0,
							},
						},
					},
				},
			},
		},
		"sort": []interface{}{"_score", map[string]interface{}{"updated_at": "desc"}},
		"size": topK,
	}
}

func snippet(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
