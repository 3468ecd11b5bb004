package search

import (
	"context"
	"sort"
	"strings"

	"github.com/samber/lo"
)

const EngineFallback = "fallback"

type fallbackDoc struct {
	doc         Document
	title, desc string
}

// FallbackEngine is a case-insensitive substring matcher over titles and
// descriptions. It never fails, which is what makes it a safe fallback.
type FallbackEngine struct {
	docs []fallbackDoc
}

func NewFallbackEngine(docs []Document) *FallbackEngine {
	return &FallbackEngine{docs: lo.Map(docs, func(d Document, _ int) fallbackDoc {
		return fallbackDoc{doc: d, title: strings.ToLower(d.Title), desc: strings.ToLower(d.Description)}
	})}
}

func (e *FallbackEngine) Name() string { return EngineFallback }

// Query ranks title matches above description-only matches, newest first
// within each group.
func (e *FallbackEngine) Query(_ context.Context, q Query) (Page, error) {
	q = q.Normalize()
	needle := strings.ToLower(strings.TrimSpace(q.Text))
	if needle == "" {
		return Page{}, nil
	}

	inTitle := lo.Filter(e.docs, func(d fallbackDoc, _ int) bool {
		return strings.Contains(d.title, needle)
	})
	inDescOnly := lo.Filter(e.docs, func(d fallbackDoc, _ int) bool {
		return !strings.Contains(d.title, needle) && strings.Contains(d.desc, needle)
	})
	newestFirst(inTitle)
	newestFirst(inDescOnly)

	hits := make([]Hit, 0, len(inTitle)+len(inDescOnly))
	for _, d := range inTitle {
		hits = append(hits, Hit{ID: d.doc.ID, Score: 1, TitleMatch: true})
	}
	for _, d := range inDescOnly {
		hits = append(hits, Hit{ID: d.doc.ID, Score: 0.5})
	}

	total := len(hits)
	start := min(q.Offset(), total)
	end := min(start+q.PageSize, total)
	return Page{Hits: hits[start:end], Total: total}, nil
}

func newestFirst(docs []fallbackDoc) {
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].doc.CreatedAt.After(docs[j].doc.CreatedAt)
	})
}
