// Package service 提供了搜索相关的业务逻辑。
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"farm-advisor-go/internal/model"
	"farm-advisor-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
)

// ErrSearchUnavailable 表示未启用 Elasticsearch。
var ErrSearchUnavailable = errors.New("chat search is not enabled")

const defaultSearchSize = 50

var (
	reKeep  = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	reSpace = regexp.MustCompile(`\s+`)
)

// SearchService 接口定义了管理后台对聊天记录的全文检索。
type SearchService interface {
	SearchExchanges(ctx context.Context, query string, size int) ([]model.ChatSearchResultDTO, error)
}

type searchService struct {
	esClient  *elasticsearch.Client
	indexName string
}

// NewSearchService 创建一个新的 SearchService 实例。esClient 为 nil 时所有查询返回 ErrSearchUnavailable。
func NewSearchService(esClient *elasticsearch.Client, indexName string) SearchService {
	return &searchService{esClient: esClient, indexName: indexName}
}

// SearchExchanges 在问答文本上做 BM25 匹配，并对核心短语做 match_phrase 加权。
func (s *searchService) SearchExchanges(ctx context.Context, query string, size int) ([]model.ChatSearchResultDTO, error) {
	if s.esClient == nil {
		return nil, ErrSearchUnavailable
	}
	if size <= 0 {
		size = defaultSearchSize
	}
	phrase := normalizeQuery(query)
	if phrase == "" {
		return []model.ChatSearchResultDTO{}, nil
	}
	log.Infof("[SearchService] 检索聊天记录, query: '%s', size: %d", phrase, size)

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(buildSearchQuery(phrase, size)); err != nil {
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
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.Status())
	}

	return decodeSearchHits(res.Body)
}

func buildSearchQuery(phrase string, size int) map[string]interface{} {
	return map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": map[string]interface{}{
					"multi_match": map[string]interface{}{
						"query":  phrase,
						"fields": []string{"user_message^2", "bot_response"},
					},
				},
				"should": []map[string]interface{}{
					{
						"match_phrase": map[string]interface{}{
							"user_message": map[string]interface{}{
								"query": phrase,
								"boost": 3.0,
							},
						},
					},
				},
			},
		},
		"sort": []interface{}{"_score", map[string]interface{}{"created_at": "desc"}},
		"size": size,
	}
}

func decodeSearchHits(body io.Reader) ([]model.ChatSearchResultDTO, error) {
	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source model.EsChatDocument `json:"_source"`
				Score  float64              `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(body).Decode(&esResponse); err != nil {
		log.Errorf("[SearchService] 解析 Elasticsearch 响应失败: %v", err)
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	results := make([]model.ChatSearchResultDTO, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		results = append(results, model.ChatSearchResultDTO{
			HistoryID:   hit.Source.HistoryID,
			UserID:      hit.Source.UserID,
			UserMessage: hit.Source.UserMessage,
			BotResponse: hit.Source.BotResponse,
			CreatedAt:   hit.Source.CreatedAt,
			Score:       hit.Score,
		})
	}
	log.Infof("[SearchService] 命中 %d 条聊天记录", len(results))
	return results, nil
}

// normalizeQuery 去掉标点并归一空白，得到用于检索的核心短语。
func normalizeQuery(q string) string {
	kept := reKeep.ReplaceAllString(strings.ToLower(q), " ")
	return strings.TrimSpace(reSpace.ReplaceAllString(kept, " "))
}
