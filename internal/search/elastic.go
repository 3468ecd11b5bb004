package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const EngineElasticsearch = "elasticsearch"

// NewElasticClient builds a client for a single-node or load-balanced
// cluster address. Per-request deadlines come from the caller's context.
func NewElasticClient(address string, requestTimeout time.Duration) (*elasticsearch.Client, error) {
	if requestTimeout <= 0 {
		requestTimeout = 5 * time.Second
	}
	return elasticsearch.NewClient(elasticsearch.Config{
		Addresses:  []string{address},
		MaxRetries: 2,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: 2 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			ResponseHeaderTimeout: requestTimeout,
			MaxIdleConnsPerHost:   20,
			IdleConnTimeout:       90 * time.Second,
		},
	})
}

// ElasticEngine runs fuzzy, relevance-ranked queries against one index.
type ElasticEngine struct {
	client  *elasticsearch.Client
	index   string
	timeout time.Duration
}

func NewElasticEngine(client *elasticsearch.Client, index string, requestTimeout time.Duration) *ElasticEngine {
	if requestTimeout <= 0 {
		requestTimeout = 5 * time.Second
	}
	return &ElasticEngine{client: client, index: index, timeout: requestTimeout}
}

func (e *ElasticEngine) Name() string { return EngineElasticsearch }

func (e *ElasticEngine) Ping(ctx context.Context) error {
	res, err := e.client.Ping(e.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("%w: ping %s", ErrIndexUnavailable, res.Status())
	}
	return nil
}

// buildQuery scores exact phrases above fuzzy term matches and title above
// description. AUTO fuzziness allows 0 edits for 1-2 character terms, 1 for
// 3-5 and 2 beyond that.
func buildQuery(q Query) map[string]interface{} {
	return map[string]interface{}{
		"from": q.Offset(),
		"size": q.PageSize,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"should": []interface{}{
					map[string]interface{}{"match": map[string]interface{}{
						"title": map[string]interface{}{"query": q.Text, "fuzziness": "AUTO", "boost": 3},
					}},
					map[string]interface{}{"match": map[string]interface{}{
						"description": map[string]interface{}{"query": q.Text, "fuzziness": "AUTO", "boost": 1},
					}},
					map[string]interface{}{"match_phrase": map[string]interface{}{
						"title": map[string]interface{}{"query": q.Text, "boost": 5},
					}},
					map[string]interface{}{"match_phrase": map[string]interface{}{
						"description": map[string]interface{}{"query": q.Text, "boost": 2},
					}},
				},
				"minimum_should_match": 1,
			},
		},
		"sort": []interface{}{
			map[string]interface{}{"_score": map[string]interface{}{"order": "desc"}},
			map[string]interface{}{"created_at": map[string]interface{}{"order": "desc", "unmapped_type": "date"}},
		},
		"track_scores": true,
		"_source":      []string{"id"},
	}
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID     string   `json:"_id"`
			Score  *float64 `json:"_score"`
			Source struct {
				ID string `json:"id"`
			} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (e *ElasticEngine) Query(ctx context.Context, q Query) (Page, error) {
	q = q.Normalize()
	if q.Text == "" {
		return Page{}, nil
	}

	body, err := json.Marshal(buildQuery(q))
	if err != nil {
		return Page{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	res, err := e.client.Search(
		e.client.Search.WithContext(ctx),
		e.client.Search.WithIndex(e.index),
		e.client.Search.WithBody(bytes.NewReader(body)),
		e.client.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return Page{}, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return Page{}, fmt.Errorf("%w: %s", ErrIndexUnavailable, responseError(res))
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return Page{}, fmt.Errorf("%w: decode response: %v", ErrIndexUnavailable, err)
	}

	page := Page{Total: parsed.Hits.Total.Value, Hits: make([]Hit, 0, len(parsed.Hits.Hits))}
	for _, h := range parsed.Hits.Hits {
		id := h.Source.ID
		if id == "" {
			id = h.ID
		}
		hit := Hit{ID: id}
		if h.Score != nil {
			hit.Score = *h.Score
		}
		page.Hits = append(page.Hits, hit)
	}
	return page, nil
}

// responseError pulls the reason out of an error response body.
func responseError(res *esapi.Response) string {
	var e struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	if err := json.NewDecoder(res.Body).Decode(&e); err != nil || e.Error.Type == "" {
		return res.Status()
	}
	return fmt.Sprintf("%s: %s: %s", res.Status(), e.Error.Type, e.Error.Reason)
}
