// Package es 提供了消息在 Elasticsearch 中的索引与子串检索。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gemini-chat-go/internal/config"
	"gemini-chat-go/internal/model"
	"gemini-chat-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// content.wc 使用 wildcard 字段类型，支持任意长度文本上的忽略大小写子串匹配。
const messageMapping = `{
	"mappings": {
		"properties": {
			"id":         { "type": "keyword" },
			"user_id":    { "type": "keyword" },
			"role":       { "type": "keyword" },
			"content": {
				"type": "text",
				"fields": { "wc": { "type": "wildcard" } }
			},
			"created_at": { "type": "date" }
		}
	}
}`

// MessageIndex 封装了消息索引。
type MessageIndex struct {
	client    *elasticsearch.Client
	indexName string
}

// NewMessageIndex 初始化 Elasticsearch 客户端并确保索引存在。
func NewMessageIndex(esCfg config.ElasticsearchConfig) (*MessageIndex, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: strings.Split(esCfg.Addresses, ","),
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	})
	if err != nil {
		return nil, err
	}
	idx := &MessageIndex{client: client, indexName: esCfg.IndexName}
	if err := idx.createIndexIfNotExists(); err != nil {
		return nil, err
	}
	return idx, nil
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func (i *MessageIndex) createIndexIfNotExists() error {
	res, err := i.client.Indices.Exists([]string{i.indexName})
	if err != nil {
		return fmt.Errorf("检查索引是否存在时出错: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", i.indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	res, err = i.client.Indices.Create(
		i.indexName,
		i.client.Indices.Create.WithBody(strings.NewReader(messageMapping)),
	)
	if err != nil {
		return fmt.Errorf("创建索引 '%s' 失败: %w", i.indexName, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("创建索引时 Elasticsearch 返回错误: %s", res.String())
	}

	log.Infof("索引 '%s' 创建成功", i.indexName)
	return nil
}

// MessageCreated 把新消息写入索引，满足 service.MessageSink。
func (i *MessageIndex) MessageCreated(ctx context.Context, m model.Message) error {
	docBytes, err := json.Marshal(m)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      i.indexName,
		DocumentID: m.ID,
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("索引消息到 Elasticsearch 出错: %s", res.String())
		return errors.New("failed to index message")
	}
	return nil
}

// MessageSource 按 id 顺序分批读出全部消息。
type MessageSource interface {
	ScanAfter(ctx context.Context, afterID string, limit int) ([]model.Message, error)
}

// Backfill 把消息库中的全部消息批量写入索引，返回写入条数。
// 文档 id 即消息 id，重复写入是幂等的，可补上实时索引失败或启用检索前的消息。
func (i *MessageIndex) Backfill(ctx context.Context, src MessageSource, batch int) (int, error) {
	total := 0
	after := ""
	for {
		page, err := src.ScanAfter(ctx, after, batch)
		if err != nil {
			return total, fmt.Errorf("failed to scan messages: %w", err)
		}
		if len(page) == 0 {
			return total, nil
		}
		if err := i.bulkIndex(ctx, page); err != nil {
			return total, err
		}
		total += len(page)
		after = page[len(page)-1].ID
		if len(page) < batch {
			return total, nil
		}
	}
}

type bulkResponse struct {
	Errors bool `json:"errors"`
}

func (i *MessageIndex) bulkIndex(ctx context.Context, messages []model.Message) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, m := range messages {
		action := map[string]any{"index": map[string]any{"_index": i.indexName, "_id": m.ID}}
		if err := enc.Encode(action); err != nil {
			return err
		}
		if err := enc.Encode(m); err != nil {
			return err
		}
	}

	res, err := i.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		i.client.Bulk.WithContext(ctx),
		i.client.Bulk.WithIndex(i.indexName),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch bulk failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch bulk returned error: %s", res.String())
	}
	var parsed bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("failed to decode bulk response: %w", err)
	}
	if parsed.Errors {
		return errors.New("elasticsearch bulk reported item errors")
	}
	return nil
}

// Ping 检查集群是否可达。
func (i *MessageIndex) Ping(ctx context.Context) error {
	res, err := i.client.Ping(i.client.Ping.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch ping: %s", res.Status())
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source model.Message `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// SearchByUser 返回内容包含 query（忽略大小写）的消息，按 created_at 降序。
func (i *MessageIndex) SearchByUser(ctx context.Context, userID, query string, limit int) ([]model.Message, error) {
	body, err := json.Marshal(BuildSearchQuery(userID, query, limit))
	if err != nil {
		return nil, err
	}

	res, err := i.client.Search(
		i.client.Search.WithContext(ctx),
		i.client.Search.WithIndex(i.indexName),
		i.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch search returned error: %s", res.String())
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	out := make([]model.Message, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		out = append(out, h.Source)
	}
	return out, nil
}

var wildcardEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`)

// BuildSearchQuery 构造按用户过滤的忽略大小写子串查询。
func BuildSearchQuery(userID, query string, limit int) map[string]any {
	return map[string]any{
		"size": limit,
		"query": map[string]any{
			"bool": map[string]any{
				"filter": []any{
					map[string]any{"term": map[string]any{"user_id": userID}},
					map[string]any{"wildcard": map[string]any{
						"content.wc": map[string]any{
							"value":            "*" + wildcardEscaper.Replace(query) + "*",
							"case_insensitive": true,
						},
					}},
				},
			},
		},
		"sort": []any{
			map[string]any{"created_at": map[string]any{"order": "desc"}},
			map[string]any{"id": map[string]any{"order": "desc"}},
		},
	}
}
