package mysql

const reviewColumns = "id, title, description, rating, company_id"

const insertReviewSQL = `
INSERT INTO reviews (title, description, rating, company_id)
VALUES (?, ?, ?, ?)
`

const updateReviewSQL = `
UPDATE reviews
SET title = ?, description = ?, rating = ?, company_id = ?
WHERE id = ?
`

const deleteReviewSQL = `DELETE FROM reviews WHERE id = ?`

// -----------------------------------------------------------------------------
// READ QUERIES
// -----------------------------------------------------------------------------

const getReviewSQL = `SELECT ` + reviewColumns + ` FROM reviews WHERE id = ?`

const listReviewsSQL = `SELECT ` + reviewColumns + ` FROM reviews ORDER BY id`

const listByCompanySQL = `SELECT ` + reviewColumns + ` FROM reviews WHERE company_id = ? ORDER BY id`

const pageByCompanySQL = `
SELECT ` + reviewColumns + `
FROM reviews
WHERE company_id = ?
ORDER BY id
LIMIT ? OFFSET ?
`

const countByCompanySQL = `SELECT COUNT(*) FROM reviews WHERE company_id = ?`

// sortedByCompanySQL takes a whitelisted column from domain.SortField.Column.
const sortedByCompanySQL = `SELECT ` + reviewColumns + ` FROM reviews WHERE company_id = ? ORDER BY %s DESC, id DESC`

// strictly greater than; a review at exactly the threshold is excluded
const ratingAboveSQL = `
SELECT ` + reviewColumns + `
FROM reviews
WHERE company_id = ? AND rating > ?
ORDER BY id
`

// AVG over zero rows is NULL.
const averageRatingSQL = `SELECT AVG(rating) FROM reviews WHERE company_id = ?`
