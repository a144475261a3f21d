package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/trendplate/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrTemplateNotFound is returned when a template ID does not exist.
var ErrTemplateNotFound = errors.New("template not found")

// TemplateRepository handles template persistence.
type TemplateRepository struct {
	db *gorm.DB
}

// NewTemplateRepository creates a new TemplateRepository.
func NewTemplateRepository(db *gorm.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// CreateTemplate builds a template from a scraped video and upserts it by source ID.
// A video scraped again by a later job refreshes the existing row and keeps its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - item: scraped video.
//   - sections: extracted template sections.
//   - category: classified category.
//
// Returns:
//   - *domain.Template: the stored template.
//   - error: non-nil if the write fails.
func (r *TemplateRepository) CreateTemplate(ctx context.Context, item *domain.VideoItem, sections []domain.TemplateSection, category string) (*domain.Template, error) {
	now := time.Now()
	tpl := &domain.Template{
		ID:             uuid.New().String(),
		SourceID:       item.ID,
		Title:          templateTitle(item),
		Description:    item.Text,
		Category:       category,
		Sections:       domain.SectionList(sections),
		Hashtags:       domain.StringArray(item.HashtagNames()),
		Author:         item.AuthorMeta.Name,
		MusicName:      item.MusicMeta.MusicName,
		MusicAuthor:    item.MusicMeta.MusicAuthor,
		VideoURL:       item.WebVideoURL,
		CoverURL:       item.VideoMeta.CoverURL,
		DurationSec:    item.VideoMeta.Duration,
		Views:          item.PlayCount,
		Likes:          item.DiggCount,
		Shares:         item.ShareCount,
		Comments:       item.CommentCount,
		Saves:          item.CollectCount,
		Status:         domain.TemplateStatusActive,
		StatsUpdatedAt: &now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "source_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"title", "description", "category", "sections", "hashtags",
				"author", "music_name", "music_author", "video_url", "cover_url", "duration_sec",
				"views", "likes", "shares", "comments", "saves",
				"status", "stats_updated_at", "updated_at",
			}),
		}).Create(tpl).Error; err != nil {
			return err
		}
		// On conflict the generated ID was discarded; read back the stored row.
		var stored domain.Template
		if err := tx.First(&stored, "source_id = ?", item.ID).Error; err != nil {
			return err
		}
		*tpl = stored
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert template for %s: %w", item.ID, err)
	}
	return tpl, nil
}

// UpdateStats overwrites the engagement counters of a template.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - templateID: template to update.
//   - stats: fresh engagement counters.
//
// Returns:
//   - error: ErrTemplateNotFound if no row matched, other errors on write failure.
func (r *TemplateRepository) UpdateStats(ctx context.Context, templateID string, stats domain.TemplateStats) error {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&domain.Template{}).
		Where("id = ?", templateID).
		Updates(map[string]interface{}{
			"views":            stats.Views,
			"likes":            stats.Likes,
			"shares":           stats.Shares,
			"comments":         stats.Comments,
			"saves":            stats.Saves,
			"stats_updated_at": now,
			"updated_at":       now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update stats for %s: %w", templateID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrTemplateNotFound
	}
	return nil
}

// GetAllTemplates returns active templates, least recently refreshed first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum number of rows; zero or negative means no limit.
//
// Returns:
//   - []domain.Template: active templates.
//   - error: non-nil if the query fails.
func (r *TemplateRepository) GetAllTemplates(ctx context.Context, limit int) ([]domain.Template, error) {
	query := r.db.WithContext(ctx).
		Where("status = ?", domain.TemplateStatusActive).
		Order("stats_updated_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var templates []domain.Template
	if err := query.Find(&templates).Error; err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	return templates, nil
}

// GetByID retrieves a template by its ID.
func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*domain.Template, error) {
	var tpl domain.Template
	if err := r.db.WithContext(ctx).First(&tpl, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}
	return &tpl, nil
}

// templateTitle derives a short title from the caption, falling back to the author.
func templateTitle(item *domain.VideoItem) string {
	text := strings.TrimSpace(item.Text)
	if idx := strings.IndexAny(text, "#\n"); idx >= 0 {
		text = strings.TrimSpace(text[:idx])
	}
	if text == "" {
		return "Template from @" + item.AuthorMeta.Name
	}
	runes := []rune(text)
	if len(runes) > 80 {
		return string(runes[:80])
	}
	return text
}
