package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"company_reviews/internal/app"
	"company_reviews/internal/domain"
)

const defaultPageSize = 10

type Handlers struct{ S *app.ReviewService }

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

type message struct {
	Message string `json:"message"`
}

type averageRating struct {
	CompanyID     int64   `json:"companyId"`
	AverageRating float64 `json:"averageRating"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.Get("/reviews/stats/average-rating", h.averageRating)

	s.mux.Group(func(r chi.Router) {
		r.Use(Auth(s.jwtSecret))
		r.Post("/reviews", h.createReview)
		r.Get("/reviews", h.listReviews)
		r.Get("/reviews/paginated", h.listReviewsPaged)
		r.Get("/reviews/sorted", h.listReviewsSorted)
		r.Get("/reviews/rating-above", h.listReviewsAboveRating)
		r.Get("/reviews/{id}", h.getReview)
		r.Put("/reviews/{id}", h.updateReview)
		r.Delete("/reviews/{id}", h.deleteReview)
	})
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeError maps service errors onto problem responses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrCompanyNotFound):
		writeProblem(w, http.StatusNotFound, "Company Not Found", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, domain.ErrCommunication):
		writeProblem(w, http.StatusBadGateway, "Bad Gateway", "company service unavailable")
	case errors.Is(err, domain.ErrInvalidSortField), errors.Is(err, domain.ErrInvalidPageRequest):
		writeProblem(w, http.StatusBadRequest, "Bad Request", err.Error())
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	return `W/"` + hex.EncodeToString(sum[:]) + `"`, body
}

// writeCacheable answers reads with a weak ETag and honours If-None-Match.
func writeCacheable(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if body == nil {
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "")
		return
	}
	w.Header().Set("ETag", etag)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write response body")
	}
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, errors.New("id must be a number")
	}
	return id, nil
}

func queryInt64(r *http.Request, name string) (int64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, fmt.Errorf("%s is required", name)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}

func decodeReview(w http.ResponseWriter, r *http.Request) (domain.ReviewRequest, error) {
	var req domain.ReviewRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(&req); err != nil {
		return domain.ReviewRequest{}, fmt.Errorf("malformed review body: %v", err)
	}
	if req.CompanyID <= 0 {
		return domain.ReviewRequest{}, errors.New("companyId is required and must be a positive integer")
	}
	return req, nil
}

func (h *Handlers) createReview(w http.ResponseWriter, r *http.Request) {
	req, err := decodeReview(w, r)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if sub, ok := SubjectFrom(r.Context()); ok {
		log.Debug().Str("subject", sub).Int64("company_id", req.CompanyID).Msg("create review requested")
	}
	resp, err := h.S.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/reviews/%d", resp.ID))
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handlers) listReviews(w http.ResponseWriter, r *http.Request) {
	var companyID *int64
	if r.URL.Query().Has("companyId") {
		id, err := queryInt64(r, "companyId")
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Bad Request", err.Error())
			return
		}
		companyID = &id
	}
	out, err := h.S.List(r.Context(), companyID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCacheable(w, r, out)
}

func (h *Handlers) getReview(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	resp, err := h.S.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCacheable(w, r, resp)
}

func (h *Handlers) updateReview(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	req, err := decodeReview(w, r)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	ok, err := h.S.Update(r.Context(), id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		writeProblem(w, http.StatusNotFound, "Not Found", fmt.Sprintf("review %d not found", id))
		return
	}
	writeJSON(w, http.StatusOK, message{Message: "Review updated successfully"})
}

func (h *Handlers) deleteReview(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	ok, err := h.S.Delete(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		writeProblem(w, http.StatusNotFound, "Not Found", fmt.Sprintf("review %d not found", id))
		return
	}
	writeJSON(w, http.StatusOK, message{Message: "Review deleted successfully"})
}

func (h *Handlers) listReviewsPaged(w http.ResponseWriter, r *http.Request) {
	companyID, err := queryInt64(r, "companyId")
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	page, err := queryInt(r, "page", 0)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	size, err := queryInt(r, "size", defaultPageSize)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	out, err := h.S.ListPaged(r.Context(), companyID, page, size)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCacheable(w, r, out)
}

func (h *Handlers) listReviewsSorted(w http.ResponseWriter, r *http.Request) {
	companyID, err := queryInt64(r, "companyId")
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	// an absent field is rejected like an unknown one
	out, err := h.S.ListSorted(r.Context(), companyID, r.URL.Query().Get("field"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCacheable(w, r, out)
}

func (h *Handlers) listReviewsAboveRating(w http.ResponseWriter, r *http.Request) {
	companyID, err := queryInt64(r, "companyId")
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	minRating, err := strconv.ParseFloat(r.URL.Query().Get("minRating"), 64)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "minRating must be a number")
		return
	}
	out, err := h.S.ListAboveRating(r.Context(), companyID, minRating)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCacheable(w, r, out)
}

func (h *Handlers) averageRating(w http.ResponseWriter, r *http.Request) {
	companyID, err := queryInt64(r, "companyId")
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	avg, err := h.S.AverageRating(r.Context(), companyID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, averageRating{CompanyID: companyID, AverageRating: avg})
}
