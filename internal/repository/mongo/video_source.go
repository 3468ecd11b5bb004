package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/ramyshaaban/video-library/internal/domain"
	"github.com/ramyshaaban/video-library/internal/logger"
	"github.com/ramyshaaban/video-library/internal/repository"
)

// mongoVideoSource implements repository.VideoSource over a collection of
// catalog documents.
type mongoVideoSource struct {
	collection *mongo.Collection
}

// NewMongoVideoSource reads the catalog from db.collectionName.
func NewMongoVideoSource(db *mongo.Database, collectionName string) repository.VideoSource {
	return &mongoVideoSource{collection: db.Collection(collectionName)}
}

// videoDocument mirrors the database export. IDs may be numeric and
// timestamps may be BSON dates or strings, depending on who wrote them.
type videoDocument struct {
	ContentID   interface{}             `bson:"content_id"`
	Title       string                  `bson:"title"`
	Description string                  `bson:"description"`
	SpaceName   string                  `bson:"space_name"`
	Files       []domain.AssociatedFile `bson:"files"`
	FilePath    string                  `bson:"file_path"`
	HLSURL      string                  `bson:"hls_url"`
	Thumbnail   string                  `bson:"thumbnail"`
	CreatedAt   interface{}             `bson:"created_at"`
	UpdatedAt   interface{}             `bson:"updated_at"`
}

func (d videoDocument) toDomain() domain.VideoRecord {
	files := d.Files
	if len(files) == 0 && (d.FilePath != "" || d.HLSURL != "" || d.Thumbnail != "") {
		files = []domain.AssociatedFile{{Path: d.FilePath, ManifestURL: d.HLSURL, Thumbnail: d.Thumbnail}}
	}
	return domain.VideoRecord{
		ID:          repository.NormalizeID(d.ContentID),
		Title:       d.Title,
		Description: d.Description,
		SpaceName:   d.SpaceName,
		Files:       files,
		CreatedAt:   toTime(d.CreatedAt),
		UpdatedAt:   toTime(d.UpdatedAt),
	}
}

func toTime(v interface{}) time.Time {
	switch t := v.(type) {
	case primitive.DateTime:
		return t.Time().UTC()
	case time.Time:
		return t.UTC()
	case string:
		return repository.ParseTimestamp(t)
	default:
		return time.Time{}
	}
}

// LoadAll streams every document, newest first. Documents that fail to
// decode are logged and skipped.
func (s *mongoVideoSource) LoadAll(ctx context.Context) ([]domain.VideoRecord, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := s.collection.Find(ctx, bson.M{}, findOptions)
	if err != nil {
		return nil, fmt.Errorf("find videos: %w", err)
	}
	defer cursor.Close(ctx)

	var records []domain.VideoRecord
	for cursor.Next(ctx) {
		var doc videoDocument
		if err := cursor.Decode(&doc); err != nil {
			logger.Log.Warn("skipping undecodable catalog document", zap.Error(err))
			continue
		}
		records = append(records, doc.toDomain())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate videos: %w", err)
	}
	return records, nil
}
