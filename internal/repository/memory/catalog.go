package memory

import (
	"context"
	"slices"
	"sort"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/ramyshaaban/video-library/internal/domain"
	"github.com/ramyshaaban/video-library/internal/logger"
	"github.com/ramyshaaban/video-library/internal/repository"
)

// Catalog is an immutable in-memory VideoRepository. It is safe for
// concurrent use without locking because nothing mutates it after NewCatalog.
type Catalog struct {
	records []domain.VideoRecord // newest first
	byID    map[string]int
	bySpace map[string][]int
	spaces  []domain.Space
}

// NewCatalog indexes records. Records without an ID are skipped and
// duplicate IDs keep the first occurrence.
func NewCatalog(records []domain.VideoRecord) *Catalog {
	kept := make([]domain.VideoRecord, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		if rec.ID == "" {
			continue
		}
		if _, dup := seen[rec.ID]; dup {
			logger.Log.Warn("duplicate video id in catalog, keeping first", zap.String("id", rec.ID))
			continue
		}
		seen[rec.ID] = struct{}{}
		kept = append(kept, rec)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].CreatedAt.After(kept[j].CreatedAt)
	})

	c := &Catalog{
		records: kept,
		byID:    make(map[string]int, len(kept)),
		bySpace: make(map[string][]int),
	}
	for i, rec := range kept {
		c.byID[rec.ID] = i
		key := spaceKey(rec.SpaceName)
		c.bySpace[key] = append(c.bySpace[key], i)
	}

	// Spaces are named after their newest record's spelling.
	c.spaces = lo.MapToSlice(c.bySpace, func(_ string, idx []int) domain.Space {
		return domain.Space{Name: kept[idx[0]].SpaceName, VideoCount: len(idx)}
	})
	sort.Slice(c.spaces, func(i, j int) bool { return c.spaces[i].Name < c.spaces[j].Name })

	return c
}

func spaceKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Len is the number of records held.
func (c *Catalog) Len() int { return len(c.records) }

func (c *Catalog) GetByID(_ context.Context, id string) (*domain.VideoRecord, error) {
	i, ok := c.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	rec := c.records[i]
	return &rec, nil
}

func (c *Catalog) List(_ context.Context) ([]domain.VideoRecord, error) {
	return slices.Clone(c.records), nil
}

// ListBySpace matches the space name case-insensitively.
func (c *Catalog) ListBySpace(_ context.Context, space string) ([]domain.VideoRecord, error) {
	idx, ok := c.bySpace[spaceKey(space)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := make([]domain.VideoRecord, len(idx))
	for i, j := range idx {
		out[i] = c.records[j]
	}
	return out, nil
}

func (c *Catalog) Spaces(_ context.Context) ([]domain.Space, error) {
	return slices.Clone(c.spaces), nil
}
