package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ramyshaaban/video-library/internal/domain"
	"github.com/ramyshaaban/video-library/internal/repository"
)

// JSONFileSource reads the catalog from a JSON export on disk.
type JSONFileSource struct {
	path string
}

func NewJSONFileSource(path string) *JSONFileSource {
	return &JSONFileSource{path: path}
}

// fileRecord accepts both the nested export ("files": [...]) and the flat
// database export where file_path/hls_url/thumbnail sit on the record.
type fileRecord struct {
	ID          interface{}             `json:"id"`
	ContentID   interface{}             `json:"content_id"`
	Title       string                  `json:"title"`
	Description string                  `json:"description"`
	SpaceName   string                  `json:"space_name"`
	Files       []domain.AssociatedFile `json:"files"`
	FilePath    string                  `json:"file_path"`
	HLSURL      string                  `json:"hls_url"`
	Thumbnail   string                  `json:"thumbnail"`
	CreatedAt   string                  `json:"created_at"`
	UpdatedAt   string                  `json:"updated_at"`
}

func (r fileRecord) toDomain() domain.VideoRecord {
	id := repository.NormalizeID(r.ContentID)
	if id == "" {
		id = repository.NormalizeID(r.ID)
	}
	files := r.Files
	if len(files) == 0 && (r.FilePath != "" || r.HLSURL != "" || r.Thumbnail != "") {
		files = []domain.AssociatedFile{{Path: r.FilePath, ManifestURL: r.HLSURL, Thumbnail: r.Thumbnail}}
	}
	return domain.VideoRecord{
		ID:          id,
		Title:       r.Title,
		Description: r.Description,
		SpaceName:   r.SpaceName,
		Files:       files,
		CreatedAt:   repository.ParseTimestamp(r.CreatedAt),
		UpdatedAt:   repository.ParseTimestamp(r.UpdatedAt),
	}
}

// LoadAll decodes the whole file. The export is either a JSON array or an
// object with a "videos" array.
func (s *JSONFileSource) LoadAll(_ context.Context) ([]domain.VideoRecord, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", s.path, err)
	}
	return decodeCatalog(raw)
}

func decodeCatalog(raw []byte) ([]domain.VideoRecord, error) {
	var rows []fileRecord
	if err := json.Unmarshal(raw, &rows); err != nil {
		var wrapped struct {
			Videos []fileRecord `json:"videos"`
		}
		if err2 := json.Unmarshal(raw, &wrapped); err2 != nil {
			return nil, fmt.Errorf("decode catalog: %w", err)
		}
		rows = wrapped.Videos
	}

	records := make([]domain.VideoRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.toDomain())
	}
	return records, nil
}
