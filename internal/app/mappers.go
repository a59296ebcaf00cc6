package app

import "company_reviews/internal/domain"

func toResponse(r domain.Review) domain.ReviewResponse {
	return domain.ReviewResponse{ID: r.ID, Title: r.Title, Description: r.Description, Rating: r.Rating}
}

func toResponses(rs []domain.Review) []domain.ReviewResponse {
	out := make([]domain.ReviewResponse, 0, len(rs))
	for _, r := range rs {
		out = append(out, toResponse(r))
	}
	return out
}

func toEntity(req domain.ReviewRequest) domain.Review {
	return domain.Review{
		Title:       req.Title,
		Description: req.Description,
		Rating:      req.Rating,
		CompanyID:   req.CompanyID,
	}
}

// toEvent snapshots the persisted review, so the id is the store-assigned one.
func toEvent(r domain.Review) domain.ReviewEvent {
	return domain.ReviewEvent{ID: r.ID, CompanyID: r.CompanyID, Rating: r.Rating, Description: r.Description}
}

// ResponsesPage is a page of review responses.
type ResponsesPage struct {
	Items      []domain.ReviewResponse `json:"content"`
	Page       int                     `json:"page"`
	Size       int                     `json:"size"`
	TotalItems int64                   `json:"totalElements"`
	TotalPages int                     `json:"totalPages"`
}

func toResponsesPage(p domain.ReviewsPage) ResponsesPage {
	return ResponsesPage{
		Items:      toResponses(p.Items),
		Page:       p.Page,
		Size:       p.Size,
		TotalItems: p.TotalItems,
		TotalPages: p.TotalPages,
	}
}
