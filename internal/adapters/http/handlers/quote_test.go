package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/quotes/internal/adapters/http/dto"
	"github.com/jsamuelsen/quotes/internal/adapters/storage/csvstore"
	"github.com/jsamuelsen/quotes/internal/app"
	"github.com/jsamuelsen/quotes/internal/domain"
	"github.com/jsamuelsen/quotes/internal/mocks"
)

const testPollURL = "https://quotes.test/api/quotes"

type quoteAPI struct {
	router  *gin.Engine
	service *app.QuoteService
	source  *mocks.MockQuoteSource
}

func newQuoteAPI(t *testing.T) *quoteAPI {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := csvstore.NewQuoteStore(csvstore.QuoteStoreConfig{Dir: t.TempDir(), Logger: logger})
	require.NoError(t, err)

	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	service := app.NewQuoteService(app.QuoteServiceConfig{
		Store:  store,
		Logger: logger,
		Clock: func() time.Time {
			clock = clock.Add(time.Hour)
			return clock
		},
	})

	source := mocks.NewMockQuoteSource(t)
	poller := app.NewPoller(app.PollerConfig{Service: service, Source: source, Logger: logger})

	router := gin.New()
	NewQuoteHandler(service, poller, testPollURL).RegisterQuoteRoutes(router.Group("/api/v1"))

	return &quoteAPI{router: router, service: service, source: source}
}

func (a *quoteAPI) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	return w
}

func (a *quoteAPI) seed(t *testing.T, quotes ...domain.Quote) {
	t.Helper()

	for _, q := range quotes {
		_, err := a.service.AddQuote(context.Background(), q)
		require.NoError(t, err)
	}
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())

	return v
}

func TestQuoteHandler_Create(t *testing.T) {
	api := newQuoteAPI(t)

	w := api.do(t, http.MethodPost, "/api/v1/quotes", `{"text":"Hello","author":"Someone"}`)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "/api/v1/quotes/1", w.Header().Get("Location"))
	assert.Equal(t, int64(1), decode[dto.CreatedResponse](t, w).ID)

	got := decode[dto.QuoteResponse](t, api.do(t, http.MethodGet, "/api/v1/quotes/1", ""))
	assert.Equal(t, "Hello", got.Text)
	assert.Equal(t, "Someone", got.Author)
	assert.Equal(t, "2024-01-01 01:00:00 UTC", got.Timestamp)
}

func TestQuoteHandler_Create_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"missing text", `{"author":"Someone"}`, dto.ErrorCodeValidation},
		{"blank text", `{"text":"   "}`, dto.ErrorCodeValidation},
		{"malformed json", `{"text":`, dto.ErrorCodeBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newQuoteAPI(t)

			w := api.do(t, http.MethodPost, "/api/v1/quotes", tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.wantCode, decode[dto.ErrorResponse](t, w).Error.Code)

			count := decode[dto.CountResponse](t, api.do(t, http.MethodGet, "/api/v1/quotes/count", ""))
			assert.Zero(t, count.Count)
		})
	}
}

func TestQuoteHandler_Get_Errors(t *testing.T) {
	api := newQuoteAPI(t)

	w := api.do(t, http.MethodGet, "/api/v1/quotes/42", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "invalid quote id: 42", decode[dto.ErrorResponse](t, w).Error.Message)

	for _, id := range []string{"abc", "0", "-1"} {
		w = api.do(t, http.MethodGet, "/api/v1/quotes/"+id, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, id)
	}
}

func TestQuoteHandler_List(t *testing.T) {
	api := newQuoteAPI(t)
	api.seed(t,
		domain.Quote{Text: "one", Author: "A"},
		domain.Quote{Text: "two", Author: "B"},
		domain.Quote{Text: "three", Author: "A"},
		domain.Quote{Text: "four"},
	)

	t.Run("all", func(t *testing.T) {
		page := decode[dto.PaginatedResponse[dto.QuoteResponse]](t, api.do(t, http.MethodGet, "/api/v1/quotes", ""))
		assert.Len(t, page.Items, 4)
		assert.False(t, page.HasMore)
	})

	t.Run("by author", func(t *testing.T) {
		page := decode[dto.PaginatedResponse[dto.QuoteResponse]](t, api.do(t, http.MethodGet, "/api/v1/quotes?author=A", ""))
		require.Len(t, page.Items, 2)
		assert.Equal(t, "one", page.Items[0].Text)
		assert.Equal(t, "three", page.Items[1].Text)
	})

	t.Run("empty author matches unattributed quotes", func(t *testing.T) {
		page := decode[dto.PaginatedResponse[dto.QuoteResponse]](t, api.do(t, http.MethodGet, "/api/v1/quotes?author=", ""))
		require.Len(t, page.Items, 1)
		assert.Equal(t, "four", page.Items[0].Text)
	})

	t.Run("paged", func(t *testing.T) {
		first := decode[dto.PaginatedResponse[dto.QuoteResponse]](t, api.do(t, http.MethodGet, "/api/v1/quotes?limit=3", ""))
		require.Len(t, first.Items, 3)
		require.True(t, first.HasMore)

		second := decode[dto.PaginatedResponse[dto.QuoteResponse]](t,
			api.do(t, http.MethodGet, "/api/v1/quotes?limit=3&cursor="+first.NextCursor, ""))
		require.Len(t, second.Items, 1)
		assert.Equal(t, "four", second.Items[0].Text)
		assert.False(t, second.HasMore)
	})

	t.Run("bad cursor", func(t *testing.T) {
		w := api.do(t, http.MethodGet, "/api/v1/quotes?cursor=@@@@", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestQuoteHandler_Update(t *testing.T) {
	api := newQuoteAPI(t)
	api.seed(t,
		domain.Quote{Text: "Hello", Author: "Someone"},
		domain.Quote{Text: "World", Author: "Other"},
	)

	w := api.do(t, http.MethodPatch, "/api/v1/quotes/1", `{"text":"Hi"}`)
	require.Equal(t, http.StatusOK, w.Code)

	got := decode[dto.QuoteResponse](t, w)
	assert.Equal(t, "Hi", got.Text)
	assert.Equal(t, "Someone", got.Author)

	w = api.do(t, http.MethodPatch, "/api/v1/quotes/1", `{"author":""}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[dto.QuoteResponse](t, w).Author)

	other := decode[dto.QuoteResponse](t, api.do(t, http.MethodGet, "/api/v1/quotes/2", ""))
	assert.Equal(t, "World", other.Text)
	assert.Equal(t, "Other", other.Author)

	assert.Equal(t, http.StatusBadRequest, api.do(t, http.MethodPatch, "/api/v1/quotes/1", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, api.do(t, http.MethodPatch, "/api/v1/quotes/1", `{"text":""}`).Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodPatch, "/api/v1/quotes/9", `{"text":"x"}`).Code)
}

func TestQuoteHandler_Delete(t *testing.T) {
	api := newQuoteAPI(t)
	api.seed(t, domain.Quote{Text: "a"}, domain.Quote{Text: "b"}, domain.Quote{Text: "c"})

	assert.Equal(t, http.StatusNoContent, api.do(t, http.MethodDelete, "/api/v1/quotes/2", "").Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodDelete, "/api/v1/quotes/2", "").Code)

	w := api.do(t, http.MethodDelete, "/api/v1/quotes", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, decode[dto.DeletedResponse](t, w).Deleted)

	w = api.do(t, http.MethodDelete, "/api/v1/quotes", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, decode[dto.DeletedResponse](t, w).Deleted)
}

func TestQuoteHandler_Latest(t *testing.T) {
	api := newQuoteAPI(t)
	for _, text := range []string{"1", "2", "3", "4", "5", "6", "7"} {
		api.seed(t, domain.Quote{Text: text})
	}

	latest := decode[[]dto.QuoteResponse](t, api.do(t, http.MethodGet, "/api/v1/quotes/latest", ""))
	require.Len(t, latest, domain.DefaultLatest)
	assert.Equal(t, "7", latest[0].Text)
	assert.Equal(t, "3", latest[4].Text)

	latest = decode[[]dto.QuoteResponse](t, api.do(t, http.MethodGet, "/api/v1/quotes/latest?n=2", ""))
	require.Len(t, latest, 2)
	assert.Equal(t, "6", latest[1].Text)

	assert.Equal(t, http.StatusBadRequest, api.do(t, http.MethodGet, "/api/v1/quotes/latest?n=500", "").Code)
}

func TestQuoteHandler_Fetch(t *testing.T) {
	t.Run("default url", func(t *testing.T) {
		api := newQuoteAPI(t)
		api.source.EXPECT().Fetch(mock.Anything, testPollURL).Return([]domain.Quote{
			{Text: "Fetched", Author: "Remote"},
			{Text: ""},
		}, nil).Once()

		w := api.do(t, http.MethodPost, "/api/v1/quotes/fetch", "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, dto.FetchResponse{Fetched: 2, Added: 1, Skipped: 1}, decode[dto.FetchResponse](t, w))
	})

	t.Run("explicit url", func(t *testing.T) {
		api := newQuoteAPI(t)
		api.source.EXPECT().Fetch(mock.Anything, "https://other.test/q").Return(nil, nil).Once()

		w := api.do(t, http.MethodPost, "/api/v1/quotes/fetch", `{"url":"https://other.test/q"}`)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("invalid url", func(t *testing.T) {
		api := newQuoteAPI(t)

		w := api.do(t, http.MethodPost, "/api/v1/quotes/fetch", `{"url":"not a url"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("remote answers badly", func(t *testing.T) {
		api := newQuoteAPI(t)
		api.source.EXPECT().Fetch(mock.Anything, testPollURL).
			Return(nil, domain.NewBadRequestError(testPollURL, "status 500 Internal Server Error")).Once()

		w := api.do(t, http.MethodPost, "/api/v1/quotes/fetch", "")
		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Equal(t, dto.ErrorCodeUpstream, decode[dto.ErrorResponse](t, w).Error.Code)
	})
}

func TestQuoteHandler_RegisterQuoteRoutes_WithoutFetcher(t *testing.T) {
	router := gin.New()
	NewQuoteHandler(nil, nil, "").RegisterQuoteRoutes(router.Group("/api/v1"))

	for _, r := range router.Routes() {
		assert.NotEqual(t, "/api/v1/quotes/fetch", r.Path)
	}
}
