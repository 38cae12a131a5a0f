package es

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"gemini-chat-go/internal/config"
	"gemini-chat-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSearchQuery(t *testing.T) {
	raw, err := json.Marshal(BuildSearchQuery("u1", "50% *off?", 20))
	require.NoError(t, err)

	var q struct {
		Size  int `json:"size"`
		Query struct {
			Bool struct {
				Filter []map[string]map[string]json.RawMessage `json:"filter"`
			} `json:"bool"`
		} `json:"query"`
		Sort []map[string]map[string]string `json:"sort"`
	}
	require.NoError(t, json.Unmarshal(raw, &q))

	assert.Equal(t, 20, q.Size)
	require.Len(t, q.Query.Bool.Filter, 2)
	assert.JSONEq(t, `"u1"`, string(q.Query.Bool.Filter[0]["term"]["user_id"]))
	assert.JSONEq(t, `{"value":"*50% \\*off\\?*","case_insensitive":true}`, string(q.Query.Bool.Filter[1]["wildcard"]["content.wc"]))
	require.Len(t, q.Sort, 2)
	assert.Equal(t, "desc", q.Sort[0]["created_at"]["order"])
}

type pagedSource struct {
	messages []model.Message
	calls    int
}

func (s *pagedSource) ScanAfter(_ context.Context, afterID string, limit int) ([]model.Message, error) {
	s.calls++
	out := []model.Message{}
	for _, m := range s.messages {
		if m.ID > afterID && len(out) < limit {
			out = append(out, m)
		}
	}
	return out, nil
}

// fakeCluster 只实现索引存在检查与 _bulk。
func fakeCluster(t *testing.T, bulkErrors bool) (*httptest.Server, func() []string) {
	var (
		mu  sync.Mutex
		ids []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodHead:
			w.WriteHeader(http.StatusOK)
		case strings.HasSuffix(r.URL.Path, "/_bulk"):
			scanner := bufio.NewScanner(r.Body)
			for scanner.Scan() {
				var line struct {
					Index struct {
						ID string `json:"_id"`
					} `json:"index"`
				}
				if err := json.Unmarshal(scanner.Bytes(), &line); err == nil && line.Index.ID != "" {
					mu.Lock()
					ids = append(ids, line.Index.ID)
					mu.Unlock()
				}
			}
			fmt.Fprintf(w, `{"took":1,"errors":%t,"items":[]}`, bulkErrors)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), ids...)
	}
}

func TestBackfillIndexesEveryMessage(t *testing.T) {
	srv, ids := fakeCluster(t, false)
	index, err := NewMessageIndex(config.ElasticsearchConfig{Addresses: srv.URL, IndexName: "messages"})
	require.NoError(t, err)

	src := &pagedSource{}
	for _, id := range []string{"a1", "a2", "a3", "a4", "a5"} {
		src.messages = append(src.messages, model.Message{ID: id, UserID: "u1", Role: model.RoleUser, Content: id})
	}

	n, err := index.Backfill(context.Background(), src, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []string{"a1", "a2", "a3", "a4", "a5"}, ids())
	assert.Equal(t, 3, src.calls)
}

func TestBackfillReportsItemErrors(t *testing.T) {
	srv, _ := fakeCluster(t, true)
	index, err := NewMessageIndex(config.ElasticsearchConfig{Addresses: srv.URL, IndexName: "messages"})
	require.NoError(t, err)

	src := &pagedSource{messages: []model.Message{{ID: "a1", UserID: "u1", Role: model.RoleUser}}}
	n, err := index.Backfill(context.Background(), src, 10)
	require.Error(t, err)
	assert.Zero(t, n)
}
