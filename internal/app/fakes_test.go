package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"

	"company_reviews/internal/domain"
)

// ---- store ----

type memStore struct {
	mu      sync.Mutex
	rows    map[int64]domain.Review
	nextID  int64
	saves   int
	deletes int

	saveErr error
	findErr error
	// saveCtxErr records ctx.Err() seen by the last Save.
	saveCtxErr error
}

func newMemStore(seed ...domain.Review) *memStore {
	s := &memStore{rows: map[int64]domain.Review{}, nextID: 1}
	for _, r := range seed {
		if r.ID == 0 {
			r.ID = s.nextID
		}
		if r.ID >= s.nextID {
			s.nextID = r.ID + 1
		}
		s.rows[r.ID] = r
	}
	return s
}

func (s *memStore) Save(ctx context.Context, r domain.Review) (domain.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	s.saveCtxErr = ctx.Err()
	if s.saveErr != nil {
		return domain.Review{}, s.saveErr
	}
	if r.ID == 0 {
		r.ID = s.nextID
		s.nextID++
	} else if _, ok := s.rows[r.ID]; !ok {
		return domain.Review{}, domain.ErrNotFound
	}
	s.rows[r.ID] = r
	return r, nil
}

func (s *memStore) Delete(_ context.Context, r domain.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	if _, ok := s.rows[r.ID]; !ok {
		return domain.ErrNotFound
	}
	delete(s.rows, r.ID)
	return nil
}

func (s *memStore) FindByID(_ context.Context, id int64) (domain.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return domain.Review{}, s.findErr
	}
	r, ok := s.rows[id]
	if !ok {
		return domain.Review{}, domain.ErrNotFound
	}
	return r, nil
}

func (s *memStore) ordered(keep func(domain.Review) bool) []domain.Review {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Review{}
	for _, r := range s.rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memStore) FindAll(context.Context) ([]domain.Review, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.ordered(func(domain.Review) bool { return true }), nil
}

func (s *memStore) FindByCompany(_ context.Context, companyID int64) ([]domain.Review, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.ordered(func(r domain.Review) bool { return r.CompanyID == companyID }), nil
}

func (s *memStore) FindByCompanyPage(ctx context.Context, companyID int64, pr domain.PageRequest) (domain.ReviewsPage, error) {
	all, err := s.FindByCompany(ctx, companyID)
	if err != nil {
		return domain.ReviewsPage{}, err
	}
	lo := min(pr.Offset(), len(all))
	hi := min(lo+pr.Size, len(all))
	return domain.NewReviewsPage(all[lo:hi], pr, int64(len(all))), nil
}

func (s *memStore) FindByCompanySorted(ctx context.Context, companyID int64, field domain.SortField) ([]domain.Review, error) {
	rs, err := s.FindByCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}
	less := func(a, b domain.Review) bool {
		switch field {
		case domain.SortByRating:
			return a.Rating < b.Rating
		case domain.SortByTitle:
			return strings.Compare(a.Title, b.Title) < 0
		case domain.SortByDescription:
			return strings.Compare(a.Description, b.Description) < 0
		case domain.SortByCompanyID:
			return a.CompanyID < b.CompanyID
		default:
			return a.ID < b.ID
		}
	}
	sort.SliceStable(rs, func(i, j int) bool { return less(rs[j], rs[i]) })
	return rs, nil
}

func (s *memStore) FindByCompanyAndRatingGreaterThan(_ context.Context, companyID int64, rating float64) ([]domain.Review, error) {
	return s.ordered(func(r domain.Review) bool { return r.CompanyID == companyID && r.Rating > rating }), nil
}

func (s *memStore) AverageRatingByCompany(_ context.Context, companyID int64) (float64, bool, error) {
	if s.findErr != nil {
		return 0, false, s.findErr
	}
	rs := s.ordered(func(r domain.Review) bool { return r.CompanyID == companyID })
	if len(rs) == 0 {
		return 0, false, nil
	}
	var sum float64
	for _, r := range rs {
		sum += r.Rating
	}
	return sum / float64(len(rs)), true, nil
}

// ---- validator ----

type fakeValidator struct {
	check  domain.CompanyCheck
	calls  []int64
	block  bool   // wait for ctx to end, like a hung registry
	onCall func() // runs before answering
}

func (v *fakeValidator) Exists(ctx context.Context, companyID int64) domain.CompanyCheck {
	v.calls = append(v.calls, companyID)
	if v.onCall != nil {
		v.onCall()
	}
	if v.block {
		<-ctx.Done()
		return domain.CheckFailed(ctx.Err())
	}
	return v.check
}

// ---- publisher ----

type fakePublisher struct {
	mu        sync.Mutex
	events    []domain.ReviewEvent
	err       error
	block     bool
	onPublish func(domain.ReviewEvent) // runs before the event is recorded
}

func (p *fakePublisher) Publish(ctx context.Context, ev domain.ReviewEvent) error {
	if p.onPublish != nil {
		p.onPublish(ev)
	}
	if p.block {
		<-ctx.Done()
		return ctx.Err()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

// ---- cache ----

type fakeCache struct {
	store  map[string][]byte
	getErr error
	dels   []string
}

var errCacheDown = errors.New("cache down")

func (c *fakeCache) Get(_ context.Context, key string, dst any) (bool, error) {
	if c.getErr != nil {
		return false, c.getErr
	}
	b, ok := c.store[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *fakeCache) Set(_ context.Context, key string, v any, _ int) error {
	if c.store == nil {
		c.store = map[string][]byte{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.store[key] = b
	return nil
}

func (c *fakeCache) Del(_ context.Context, key string) error {
	c.dels = append(c.dels, key)
	delete(c.store, key)
	return nil
}
