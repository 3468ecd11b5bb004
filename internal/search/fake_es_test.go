package search

import (
	"bufio"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// fakeES is a tiny stand-in for an Elasticsearch node: it stores bulk-loaded
// documents and answers match queries with edit-distance matching on words.
type fakeES struct {
	*httptest.Server

	mu          sync.Mutex
	docs        map[string]Document
	lastQuery   map[string]interface{}
	created     int
	rejectIDs   map[string]bool
	failSearch  bool
	bulkBatches []int
}

func newFakeES(t *testing.T) *fakeES {
	t.Helper()
	f := &fakeES{docs: map[string]Document{}, rejectIDs: map[string]bool{}}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeES) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.URL.Path == "/" && (r.Method == http.MethodHead || r.Method == http.MethodGet):
		_, _ = io.WriteString(w, `{"version":{"number":"8.17.0"},"tagline":"You Know, for Search"}`)
	case r.Method == http.MethodDelete:
		f.docs = map[string]Document{}
		_, _ = io.WriteString(w, `{"acknowledged":true}`)
	case r.Method == http.MethodPut && !strings.Contains(strings.Trim(r.URL.Path, "/"), "/"):
		f.created++
		_, _ = io.WriteString(w, `{"acknowledged":true}`)
	case strings.HasSuffix(r.URL.Path, "/_bulk"):
		f.bulk(w, r)
	case strings.HasSuffix(r.URL.Path, "/_refresh"):
		_, _ = io.WriteString(w, `{"_shards":{"total":1,"successful":1,"failed":0}}`)
	case strings.HasSuffix(r.URL.Path, "/_search"):
		f.search(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"type":"not_found","reason":"`+r.Method+" "+r.URL.Path+`"}}`)
	}
}

func (f *fakeES) bulk(w http.ResponseWriter, r *http.Request) {
	type item map[string]map[string]interface{}
	var items []item
	sc := bufio.NewScanner(r.Body)
	sc.Buffer(make([]byte, 1<<20), 1<<20)
	count := 0
	for sc.Scan() {
		var meta map[string]map[string]interface{}
		if err := json.Unmarshal(sc.Bytes(), &meta); err != nil || !sc.Scan() {
			break
		}
		var doc Document
		_ = json.Unmarshal(sc.Bytes(), &doc)
		id, _ := meta["index"]["_id"].(string)
		count++
		if f.rejectIDs[id] {
			items = append(items, item{"index": {"_id": id, "status": 400,
				"error": map[string]interface{}{"type": "mapper_parsing_exception", "reason": "bad doc"}}})
			continue
		}
		f.docs[id] = doc
		items = append(items, item{"index": {"_id": id, "status": 201}})
	}
	f.bulkBatches = append(f.bulkBatches, count)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"errors": len(f.rejectIDs) > 0, "items": items})
}

func (f *fakeES) search(w http.ResponseWriter, r *http.Request) {
	if f.failSearch {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"error":{"type":"cluster_block_exception","reason":"blocked"}}`)
		return
	}
	var body map[string]interface{}
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.lastQuery = body

	text := queryText(body)
	type scored struct {
		doc   Document
		score float64
	}
	var matches []scored
	for _, d := range f.docs {
		s := 3*wordScore(text, d.Title) + wordScore(text, d.Description)
		if s > 0 {
			matches = append(matches, scored{d, s})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].doc.CreatedAt.After(matches[j].doc.CreatedAt)
	})

	from, size := int(body["from"].(float64)), int(body["size"].(float64))
	total := len(matches)
	hits := []map[string]interface{}{}
	for i := from; i < total && i < from+size; i++ {
		hits = append(hits, map[string]interface{}{
			"_id": matches[i].doc.ID, "_score": matches[i].score,
			"_source": map[string]interface{}{"id": matches[i].doc.ID},
		})
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"hits": map[string]interface{}{"total": map[string]interface{}{"value": total}, "hits": hits},
	})
}

// queryText digs the title match text out of the bool query.
func queryText(body map[string]interface{}) string {
	should := body["query"].(map[string]interface{})["bool"].(map[string]interface{})["should"].([]interface{})
	title := should[0].(map[string]interface{})["match"].(map[string]interface{})["title"].(map[string]interface{})
	return title["query"].(string)
}

// wordScore counts query terms within AUTO edit distance of a field word.
func wordScore(query, field string) float64 {
	var score float64
	words := strings.Fields(strings.ToLower(field))
	for _, term := range strings.Fields(strings.ToLower(query)) {
		allowed := 0
		switch {
		case len(term) > 5:
			allowed = 2
		case len(term) > 2:
			allowed = 1
		}
		for _, w := range words {
			if fuzzy.LevenshteinDistance(term, w) <= allowed {
				score++
				break
			}
		}
	}
	return score
}

func (f *fakeES) docCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs)
}
