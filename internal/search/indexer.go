package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"go.uber.org/zap"

	"github.com/ramyshaaban/video-library/internal/logger"
)

const DefaultBatchSize = 100

// ErrBuildInProgress is returned when a build is requested while one runs.
var ErrBuildInProgress = errors.New("index build already in progress")

// indexSettings folds case and accents so "Cafe" finds "Café".
var indexSettings = map[string]interface{}{
	"settings": map[string]interface{}{
		"analysis": map[string]interface{}{
			"analyzer": map[string]interface{}{
				"folding_analyzer": map[string]interface{}{
					"type":      "custom",
					"tokenizer": "standard",
					"filter":    []string{"lowercase", "asciifolding"},
				},
			},
		},
	},
	"mappings": map[string]interface{}{
		"properties": map[string]interface{}{
			"id": map[string]interface{}{"type": "keyword"},
			"title": map[string]interface{}{
				"type":     "text",
				"analyzer": "folding_analyzer",
				"fields":   map[string]interface{}{"keyword": map[string]interface{}{"type": "keyword"}},
			},
			"description": map[string]interface{}{"type": "text", "analyzer": "folding_analyzer"},
			"space_name":  map[string]interface{}{"type": "text", "analyzer": "folding_analyzer"},
			"created_at":  map[string]interface{}{"type": "date"},
			"updated_at":  map[string]interface{}{"type": "date"},
			"file_path":   map[string]interface{}{"type": "keyword"},
			"thumbnail":   map[string]interface{}{"type": "keyword"},
			"hls_url":     map[string]interface{}{"type": "keyword"},
		},
	},
}

// BuildReport summarizes one index build.
type BuildReport struct {
	Indexed  int           `json:"indexed"`
	Failed   int           `json:"failed"`
	Degraded bool          `json:"degraded"`
	Duration time.Duration `json:"duration"`
}

// IndexBuilder recreates the search index from the catalog. While a build is
// running, or after one found the backend unreachable, Ready reports false
// so queries go to the fallback engine.
type IndexBuilder struct {
	client    *elasticsearch.Client
	index     string
	batchSize int
	ready     atomic.Bool
	building  sync.Mutex
}

func NewIndexBuilder(client *elasticsearch.Client, index string) *IndexBuilder {
	return &IndexBuilder{client: client, index: index, batchSize: DefaultBatchSize}
}

// Ready reports whether the last build produced a usable index.
func (b *IndexBuilder) Ready() bool { return b.ready.Load() }

// Build drops and recreates the index, then bulk loads docs in batches.
// Per-document failures are counted, not fatal. If the backend cannot be
// reached at all the report is Degraded and the error wraps
// ErrIndexUnavailable.
func (b *IndexBuilder) Build(ctx context.Context, docs []Document) (BuildReport, error) {
	if !b.building.TryLock() {
		return BuildReport{}, ErrBuildInProgress
	}
	defer b.building.Unlock()

	started := time.Now()
	b.ready.Store(false)
	report := BuildReport{}

	if err := b.recreateIndex(ctx); err != nil {
		report.Degraded = true
		report.Failed = len(docs)
		report.Duration = time.Since(started)
		logger.Log.Error("search index unavailable, serving fallback search only", zap.String("index", b.index), zap.Error(err))
		return report, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}

	for start := 0; start < len(docs); start += b.batchSize {
		end := min(start+b.batchSize, len(docs))
		indexed, failed := b.indexBatch(ctx, docs[start:end])
		report.Indexed += indexed
		report.Failed += failed
	}

	if res, err := b.client.Indices.Refresh(
		b.client.Indices.Refresh.WithContext(ctx),
		b.client.Indices.Refresh.WithIndex(b.index),
	); err == nil {
		res.Body.Close()
	}

	report.Duration = time.Since(started)
	if report.Indexed == 0 && report.Failed > 0 {
		report.Degraded = true
		logger.Log.Error("no documents could be indexed", zap.Int("failed", report.Failed))
		return report, fmt.Errorf("%w: every document failed to index", ErrIndexUnavailable)
	}

	b.ready.Store(true)
	logger.Log.Info("search index built",
		zap.String("index", b.index),
		zap.Int("indexed", report.Indexed),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration))
	return report, nil
}

func (b *IndexBuilder) recreateIndex(ctx context.Context) error {
	del, err := b.client.Indices.Delete([]string{b.index},
		b.client.Indices.Delete.WithContext(ctx),
		b.client.Indices.Delete.WithIgnoreUnavailable(true),
	)
	if err != nil {
		return fmt.Errorf("delete index: %w", err)
	}
	del.Body.Close()
	if del.IsError() && del.StatusCode != 404 {
		return fmt.Errorf("delete index: %s", del.Status())
	}

	body, err := json.Marshal(indexSettings)
	if err != nil {
		return err
	}
	res, err := b.client.Indices.Create(b.index,
		b.client.Indices.Create.WithContext(ctx),
		b.client.Indices.Create.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("create index: %s", responseError(res))
	}
	return nil
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

// indexBatch sends one _bulk request. A transport failure fails the whole
// batch; item failures are counted individually.
func (b *IndexBuilder) indexBatch(ctx context.Context, docs []Document) (indexed, failed int) {
	var buf bytes.Buffer
	for _, doc := range docs {
		meta, err := json.Marshal(map[string]interface{}{"index": map[string]interface{}{"_index": b.index, "_id": doc.ID}})
		if err != nil {
			failed++
			continue
		}
		line, err := json.Marshal(doc)
		if err != nil {
			failed++
			continue
		}
		buf.Write(meta)
		buf.WriteByte('\n')
		buf.Write(line)
		buf.WriteByte('\n')
	}
	if buf.Len() == 0 {
		return 0, failed
	}

	res, err := b.client.Bulk(bytes.NewReader(buf.Bytes()),
		b.client.Bulk.WithContext(ctx),
		b.client.Bulk.WithIndex(b.index),
	)
	if err != nil {
		logger.Log.Warn("bulk request failed", zap.Int("batch", len(docs)), zap.Error(err))
		return 0, len(docs)
	}
	defer res.Body.Close()
	if res.IsError() {
		logger.Log.Warn("bulk request rejected", zap.Int("batch", len(docs)), zap.String("status", res.Status()))
		return 0, len(docs)
	}

	var parsed bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		logger.Log.Warn("undecodable bulk response", zap.Error(err))
		return 0, len(docs)
	}
	for _, item := range parsed.Items {
		for _, result := range item {
			if result.Status >= 300 || result.Error != nil {
				failed++
				reason := ""
				if result.Error != nil {
					reason = result.Error.Type + ": " + result.Error.Reason
				}
				logger.Log.Warn("document failed to index", zap.String("id", result.ID), zap.String("reason", reason))
				continue
			}
			indexed++
		}
	}
	return indexed, failed
}
