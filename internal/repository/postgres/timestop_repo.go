package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ramyshaaban/video-library/internal/domain"
	"github.com/ramyshaaban/video-library/internal/repository"
)

// Connect opens a pooled gorm handle and checks it with a ping.
func Connect(ctx context.Context, dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

type timestopRow struct {
	ContentID     string  `gorm:"column:content_id"`
	Timestamp     float64 `gorm:"column:timestamp"`
	TimeFormatted string  `gorm:"column:time_formatted"`
	Label         string  `gorm:"column:label"`
	Summary       string  `gorm:"column:summary"`
	Type          string  `gorm:"column:type"`
}

func (timestopRow) TableName() string { return "video_timestops" }

type timestopRepository struct {
	db *gorm.DB
}

// NewTimestopRepository reads the video_timestops and video_transcriptions
// tables. Both are owned by another system; this repository never writes.
func NewTimestopRepository(db *gorm.DB) repository.TimestopRepository {
	return &timestopRepository{db: db}
}

const searchContentIDsSQL = `
SELECT content_id, MAX(rank) AS rank FROM (
	SELECT t.content_id::text AS content_id,
	       ts_rank(to_tsvector('english', coalesce(t.label, '') || ' ' || coalesce(t.summary, '')), plainto_tsquery('english', @q)) AS rank
	FROM video_timestops t
	WHERE to_tsvector('english', coalesce(t.label, '') || ' ' || coalesce(t.summary, '')) @@ plainto_tsquery('english', @q)
	UNION ALL
	SELECT tr.content_id::text AS content_id,
	       ts_rank(to_tsvector('english', coalesce(tr.transcription_text, '')), plainto_tsquery('english', @q)) AS rank
	FROM video_transcriptions tr
	WHERE to_tsvector('english', coalesce(tr.transcription_text, '')) @@ plainto_tsquery('english', @q)
) matches
GROUP BY content_id
ORDER BY rank DESC
LIMIT @limit`

func (r *timestopRepository) SearchContentIDs(ctx context.Context, query string, limit int) ([]string, error) {
	var rows []struct {
		ContentID string
		Rank      float64
	}
	err := r.db.WithContext(ctx).
		Raw(searchContentIDsSQL, map[string]interface{}{"q": query, "limit": limit}).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("search timestops: %w", err)
	}
	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ContentID
	}
	return ids, nil
}

func (r *timestopRepository) GetByContentIDs(ctx context.Context, ids []string) (map[string][]domain.Timestop, error) {
	out := make(map[string][]domain.Timestop, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []timestopRow
	err := r.db.WithContext(ctx).
		Select("content_id::text AS content_id, timestamp, time_formatted, label, summary, type").
		Where("content_id::text IN ?", ids).
		Order("content_id, timestamp").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load timestops: %w", err)
	}
	for _, row := range rows {
		out[row.ContentID] = append(out[row.ContentID], domain.Timestop{
			ContentID:     row.ContentID,
			Timestamp:     row.Timestamp,
			TimeFormatted: row.TimeFormatted,
			Label:         row.Label,
			Summary:       row.Summary,
			Type:          row.Type,
		})
	}
	return out, nil
}
