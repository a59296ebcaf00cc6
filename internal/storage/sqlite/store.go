// Package sqlite is a gorm-backed review store for single-node and local runs.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"company_reviews/internal/domain"
)

type reviewModel struct {
	ID          int64   `gorm:"primaryKey;autoIncrement"`
	Title       string  `gorm:"size:255;not null;default:''"`
	Description string  `gorm:"not null;default:''"`
	Rating      float64 `gorm:"not null"`
	CompanyID   int64   `gorm:"not null;index:idx_reviews_company_rating,priority:1"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (reviewModel) TableName() string { return "reviews" }

func (m reviewModel) toEntity() domain.Review {
	return domain.Review{ID: m.ID, Title: m.Title, Description: m.Description, Rating: m.Rating, CompanyID: m.CompanyID}
}

func toEntities(rows []reviewModel) []domain.Review {
	out := make([]domain.Review, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toEntity())
	}
	return out
}

type Store struct{ db *gorm.DB }

// Open connects to the database file at path (or a "file:...?mode=memory" DSN)
// and migrates the reviews table.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1) // sqlite serialises writers anyway

	if err := db.AutoMigrate(&reviewModel{}); err != nil {
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Save(ctx context.Context, rv domain.Review) (domain.Review, error) {
	if rv.ID == 0 {
		row := reviewModel{Title: rv.Title, Description: rv.Description, Rating: rv.Rating, CompanyID: rv.CompanyID}
		if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
			return domain.Review{}, err
		}
		return row.toEntity(), nil
	}

	res := s.db.WithContext(ctx).Model(&reviewModel{}).
		Where("id = ?", rv.ID).
		Updates(map[string]any{
			"title":       rv.Title,
			"description": rv.Description,
			"rating":      rv.Rating,
			"company_id":  rv.CompanyID,
		})
	if res.Error != nil {
		return domain.Review{}, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.Review{}, domain.ErrNotFound
	}
	return rv, nil
}

func (s *Store) Delete(ctx context.Context, rv domain.Review) error {
	res := s.db.WithContext(ctx).Delete(&reviewModel{}, rv.ID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, id int64) (domain.Review, error) {
	var row reviewModel
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Review{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Review{}, err
	}
	return row.toEntity(), nil
}

func (s *Store) FindAll(ctx context.Context) ([]domain.Review, error) {
	var rows []reviewModel
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toEntities(rows), nil
}

func (s *Store) FindByCompany(ctx context.Context, companyID int64) ([]domain.Review, error) {
	var rows []reviewModel
	if err := s.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("id").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toEntities(rows), nil
}

func (s *Store) FindByCompanyPage(ctx context.Context, companyID int64, pr domain.PageRequest) (domain.ReviewsPage, error) {
	if err := pr.Validate(); err != nil {
		return domain.ReviewsPage{}, err
	}
	var total int64
	q := s.db.WithContext(ctx).Model(&reviewModel{}).Where("company_id = ?", companyID)
	if err := q.Count(&total).Error; err != nil {
		return domain.ReviewsPage{}, err
	}
	var rows []reviewModel
	if err := s.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("id").
		Limit(pr.Size).
		Offset(pr.Offset()).
		Find(&rows).Error; err != nil {
		return domain.ReviewsPage{}, err
	}
	return domain.NewReviewsPage(toEntities(rows), pr, total), nil
}

func (s *Store) FindByCompanySorted(ctx context.Context, companyID int64, field domain.SortField) ([]domain.Review, error) {
	col := field.Column()
	if col == "" {
		return nil, &domain.SortFieldError{Field: string(field)}
	}
	var rows []reviewModel
	if err := s.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order(clause.OrderByColumn{Column: clause.Column{Name: col}, Desc: true}).
		Order("id DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toEntities(rows), nil
}

func (s *Store) FindByCompanyAndRatingGreaterThan(ctx context.Context, companyID int64, rating float64) ([]domain.Review, error) {
	var rows []reviewModel
	if err := s.db.WithContext(ctx).
		Where("company_id = ? AND rating > ?", companyID, rating).
		Order("id").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toEntities(rows), nil
}

func (s *Store) AverageRatingByCompany(ctx context.Context, companyID int64) (float64, bool, error) {
	var avg sql.NullFloat64
	row := s.db.WithContext(ctx).Model(&reviewModel{}).
		Select("AVG(rating)").
		Where("company_id = ?", companyID).
		Row()
	if err := row.Scan(&avg); err != nil {
		return 0, false, err
	}
	return avg.Float64, avg.Valid, nil
}
