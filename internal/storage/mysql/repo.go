package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"company_reviews/internal/domain"
)

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

// Save inserts reviews without an id and overwrites the row otherwise.
func (r *Repo) Save(ctx context.Context, rv domain.Review) (domain.Review, error) {
	if rv.ID == 0 {
		res, err := r.db.ExecContext(ctx, insertReviewSQL, rv.Title, rv.Description, rv.Rating, rv.CompanyID)
		if err != nil {
			return domain.Review{}, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return domain.Review{}, err
		}
		rv.ID = id
		return rv, nil
	}

	res, err := r.db.ExecContext(ctx, updateReviewSQL, rv.Title, rv.Description, rv.Rating, rv.CompanyID, rv.ID)
	if err != nil {
		return domain.Review{}, err
	}
	// MySQL reports 0 affected rows for no-op updates, so confirm existence separately.
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.FindByID(ctx, rv.ID); err != nil {
			return domain.Review{}, err
		}
	}
	return rv, nil
}

func (r *Repo) Delete(ctx context.Context, rv domain.Review) error {
	res, err := r.db.ExecContext(ctx, deleteReviewSQL, rv.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repo) FindByID(ctx context.Context, id int64) (domain.Review, error) {
	var rv domain.Review
	err := r.db.QueryRowContext(ctx, getReviewSQL, id).
		Scan(&rv.ID, &rv.Title, &rv.Description, &rv.Rating, &rv.CompanyID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Review{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Review{}, err
	}
	return rv, nil
}

func (r *Repo) FindAll(ctx context.Context) ([]domain.Review, error) {
	return r.query(ctx, listReviewsSQL)
}

func (r *Repo) FindByCompany(ctx context.Context, companyID int64) ([]domain.Review, error) {
	return r.query(ctx, listByCompanySQL, companyID)
}

func (r *Repo) FindByCompanyPage(ctx context.Context, companyID int64, pr domain.PageRequest) (domain.ReviewsPage, error) {
	if err := pr.Validate(); err != nil {
		return domain.ReviewsPage{}, err
	}
	var total int64
	if err := r.db.QueryRowContext(ctx, countByCompanySQL, companyID).Scan(&total); err != nil {
		return domain.ReviewsPage{}, err
	}
	items, err := r.query(ctx, pageByCompanySQL, companyID, pr.Size, pr.Offset())
	if err != nil {
		return domain.ReviewsPage{}, err
	}
	return domain.NewReviewsPage(items, pr, total), nil
}

func (r *Repo) FindByCompanySorted(ctx context.Context, companyID int64, field domain.SortField) ([]domain.Review, error) {
	col := field.Column()
	if col == "" {
		return nil, &domain.SortFieldError{Field: string(field)}
	}
	return r.query(ctx, fmt.Sprintf(sortedByCompanySQL, col), companyID)
}

func (r *Repo) FindByCompanyAndRatingGreaterThan(ctx context.Context, companyID int64, rating float64) ([]domain.Review, error) {
	return r.query(ctx, ratingAboveSQL, companyID, rating)
}

func (r *Repo) AverageRatingByCompany(ctx context.Context, companyID int64) (float64, bool, error) {
	var avg sql.NullFloat64
	if err := r.db.QueryRowContext(ctx, averageRatingSQL, companyID).Scan(&avg); err != nil {
		return 0, false, err
	}
	return avg.Float64, avg.Valid, nil
}

func (r *Repo) query(ctx context.Context, q string, args ...any) ([]domain.Review, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Review{}
	for rows.Next() {
		var rv domain.Review
		if err := rows.Scan(&rv.ID, &rv.Title, &rv.Description, &rv.Rating, &rv.CompanyID); err != nil {
			return nil, err
		}
		out = append(out, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
