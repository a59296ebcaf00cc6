//go:build integration

package integration

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/IBM/sarama/mocks"
	"github.com/alicebob/miniredis/v2"
	_ "github.com/go-sql-driver/mysql"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jarcoal/httpmock"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/rs/zerolog"

	"company_reviews/internal/adapters/company"
	"company_reviews/internal/adapters/events"
	server "company_reviews/internal/adapters/http_server"
	redisad "company_reviews/internal/adapters/redis"
	"company_reviews/internal/app"
	"company_reviews/internal/domain"
	mysqlrepo "company_reviews/internal/storage/mysql"
	"company_reviews/migrations"
)

const jwtSecret = "e2e-secret"

func startMySQL(t *testing.T) *sql.DB {
	t.Helper()
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("dockertest: %v", err)
	}
	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "mysql",
		Tag:        "8.0.36",
		Env:        []string{"MYSQL_ROOT_PASSWORD=root", "MYSQL_DATABASE=reviews"},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("run mysql: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(resource) })

	dsn := fmt.Sprintf("root:root@tcp(127.0.0.1:%s)/reviews?parseTime=true", resource.GetPort("3306/tcp"))
	var db *sql.DB
	if err := pool.Retry(func() error {
		var e error
		if db, e = sql.Open("mysql", dsn); e != nil {
			return e
		}
		return db.Ping()
	}); err != nil {
		t.Fatalf("connect mysql: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := migrations.Apply(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type stack struct {
	api      *httptest.Server
	producer *mocks.SyncProducer
}

func newStack(t *testing.T) stack {
	t.Helper()
	repo := mysqlrepo.New(startMySQL(t))

	mr := miniredis.RunT(t)
	cache := redisad.New(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = cache.Close() })
	agg := app.NewCachedAggregator(app.NewStoreAggregator(repo), cache, time.Minute, zerolog.Nop())

	hc := &http.Client{}
	httpmock.ActivateNonDefault(hc)
	t.Cleanup(httpmock.DeactivateAndReset)
	httpmock.RegisterResponder(http.MethodGet, "http://registry.test/companies/1",
		httpmock.NewStringResponder(http.StatusOK, `{"id":1,"name":"Acme"}`))
	httpmock.RegisterResponder(http.MethodGet, "http://registry.test/companies/2",
		httpmock.NewStringResponder(http.StatusNotFound, ``))
	registry, err := company.New("http://registry.test", "", 100, time.Minute,
		company.WithHTTPClient(hc), company.WithBackoffBase(time.Millisecond))
	if err != nil {
		t.Fatalf("company client: %v", err)
	}

	producer := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	pub := events.NewKafkaPublisherFromProducer(producer, "reviews", zerolog.Nop())
	t.Cleanup(func() { _ = pub.Close() })

	svc := app.NewReviewService(repo, registry, pub, agg, app.WithLogger(zerolog.Nop()))
	srv := server.New(jwtSecret, zerolog.Nop())
	srv.MountHandlers(&server.Handlers{S: svc})

	api := httptest.NewServer(srv.Mux())
	t.Cleanup(api.Close)
	return stack{api: api, producer: producer}
}

func bearer(t *testing.T) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "e2e",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(jwtSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return "Bearer " + tok
}

func call(t *testing.T, s stack, method, path string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, s.api.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", bearer(t))
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer res.Body.Close()
	if out != nil && res.StatusCode < 300 {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return res.StatusCode
}

func TestE2E_ReviewsOverHTTP(t *testing.T) {
	s := newStack(t)

	var sent []domain.ReviewEvent
	for i := 0; i < 3; i++ {
		s.producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
			var ev domain.ReviewEvent
			if err := json.Unmarshal(val, &ev); err != nil {
				return err
			}
			sent = append(sent, ev)
			return nil
		})
	}

	var created []domain.ReviewResponse
	for _, rv := range []domain.ReviewRequest{
		{Title: "Great Work", Description: "Loved it", Rating: 5.0, CompanyID: 1},
		{Title: "Okay", Description: "fine", Rating: 3.0, CompanyID: 1},
		{Title: "Poor", Description: "slow", Rating: 1.0, CompanyID: 1},
	} {
		var out domain.ReviewResponse
		if code := call(t, s, http.MethodPost, "/reviews", rv, &out); code != http.StatusCreated {
			t.Fatalf("create %q: status %d", rv.Title, code)
		}
		created = append(created, out)
	}
	if len(sent) != 3 || sent[0].ID != created[0].ID || sent[0].CompanyID != 1 || sent[0].Description != "Loved it" {
		t.Fatalf("unexpected events: %+v", sent)
	}

	if code := call(t, s, http.MethodPost, "/reviews", domain.ReviewRequest{Title: "x", CompanyID: 2}, nil); code != http.StatusNotFound {
		t.Fatalf("unknown company: want 404, got %d", code)
	}

	var avg struct {
		AverageRating float64 `json:"averageRating"`
	}
	call(t, s, http.MethodGet, "/reviews/stats/average-rating?companyId=1", nil, &avg)
	if avg.AverageRating != 3.0 {
		t.Fatalf("average: want 3.0, got %v", avg.AverageRating)
	}

	// the cached average is dropped on update
	upd := domain.ReviewRequest{Title: "Poor", Description: "slow", Rating: 4.0, CompanyID: 1}
	if code := call(t, s, http.MethodPut, fmt.Sprintf("/reviews/%d", created[2].ID), upd, nil); code != http.StatusOK {
		t.Fatalf("update: status %d", code)
	}
	call(t, s, http.MethodGet, "/reviews/stats/average-rating?companyId=1", nil, &avg)
	if avg.AverageRating != 4.0 {
		t.Fatalf("average after update: want 4.0, got %v", avg.AverageRating)
	}

	var sorted []domain.ReviewResponse
	call(t, s, http.MethodGet, "/reviews/sorted?companyId=1&field=rating", nil, &sorted)
	if len(sorted) != 3 || sorted[0].Rating != 5.0 {
		t.Fatalf("sorted: %+v", sorted)
	}

	var above []domain.ReviewResponse
	call(t, s, http.MethodGet, "/reviews/rating-above?companyId=1&minRating=4", nil, &above)
	if len(above) != 1 || above[0].ID != created[0].ID {
		t.Fatalf("rating-above: %+v", above)
	}

	var page app.ResponsesPage
	call(t, s, http.MethodGet, "/reviews/paginated?companyId=1&page=0&size=2", nil, &page)
	if page.TotalItems != 3 || page.TotalPages != 2 || len(page.Items) != 2 {
		t.Fatalf("page: %+v", page)
	}

	if code := call(t, s, http.MethodDelete, fmt.Sprintf("/reviews/%d", created[1].ID), nil, nil); code != http.StatusOK {
		t.Fatalf("delete: status %d", code)
	}
	if code := call(t, s, http.MethodGet, fmt.Sprintf("/reviews/%d", created[1].ID), nil, nil); code != http.StatusNotFound {
		t.Fatalf("get after delete: status %d", code)
	}
}
