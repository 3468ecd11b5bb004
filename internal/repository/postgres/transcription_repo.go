package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/ramyshaaban/video-library/internal/domain"
	"github.com/ramyshaaban/video-library/internal/repository"
)

type transcriptionRow struct {
	ContentID         string   `gorm:"column:content_id"`
	TranscriptionText string   `gorm:"column:transcription_text"`
	TranscriptionJSON []byte   `gorm:"column:transcription_json"`
	Duration          *float64 `gorm:"column:duration"`
	Language          *string  `gorm:"column:language"`
	WordCount         *int     `gorm:"column:word_count"`
}

func (transcriptionRow) TableName() string { return "video_transcriptions" }

func (row transcriptionRow) toDomain() *domain.Transcription {
	t := &domain.Transcription{
		ContentID: row.ContentID,
		Text:      row.TranscriptionText,
	}
	if len(row.TranscriptionJSON) > 0 {
		t.Segments = row.TranscriptionJSON
	}
	if row.Duration != nil {
		t.Duration = *row.Duration
	}
	if row.Language != nil {
		t.Language = *row.Language
	}
	if row.WordCount != nil {
		t.WordCount = *row.WordCount
	}
	return t
}

type transcriptionRepository struct {
	db *gorm.DB
}

func NewTranscriptionRepository(db *gorm.DB) repository.TranscriptionRepository {
	return &transcriptionRepository{db: db}
}

func (r *transcriptionRepository) GetByContentID(ctx context.Context, contentID string) (*domain.Transcription, error) {
	var row transcriptionRow
	err := r.db.WithContext(ctx).
		Select("content_id::text AS content_id, transcription_text, transcription_json, duration, language, word_count").
		Where("content_id::text = ?", contentID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load transcription: %w", err)
	}
	return row.toDomain(), nil
}
