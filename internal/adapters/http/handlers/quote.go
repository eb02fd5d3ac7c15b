package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/quotes/internal/adapters/http/dto"
	"github.com/jsamuelsen/quotes/internal/app"
	"github.com/jsamuelsen/quotes/internal/domain"
	"github.com/jsamuelsen/quotes/internal/platform/logging"
)

// QuoteService is the part of app.QuoteService the handlers need.
type QuoteService interface {
	AddQuote(ctx context.Context, q domain.Quote) (int64, error)
	GetQuote(ctx context.Context, id int64) (domain.Quote, error)
	ListQuotes(ctx context.Context, author *string) ([]domain.Quote, error)
	UpdateQuote(ctx context.Context, id int64, patch domain.QuotePatch) error
	DeleteQuote(ctx context.Context, id int64) error
	DeleteAll(ctx context.Context) error
	Count(ctx context.Context) (int, error)
	Latest(ctx context.Context, n int) ([]domain.Quote, error)
}

// Fetcher runs a single poll of a remote quote source.
type Fetcher interface {
	PollOnce(ctx context.Context, url string) (app.PollResult, error)
}

var (
	_ QuoteService = (*app.QuoteService)(nil)
	_ Fetcher      = (*app.Poller)(nil)
)

// QuoteHandler serves /api/v1/quotes.
type QuoteHandler struct {
	service QuoteService
	fetcher Fetcher
	pollURL string
}

// NewQuoteHandler creates a quote handler. fetcher may be nil, in which
// case POST /quotes/fetch is not registered. pollURL is fetched when the
// request names no URL.
func NewQuoteHandler(service QuoteService, fetcher Fetcher, pollURL string) *QuoteHandler {
	return &QuoteHandler{
		service: service,
		fetcher: fetcher,
		pollURL: pollURL,
	}
}

// List handles GET /api/v1/quotes. The optional author query parameter
// filters by exact author; limit and cursor page through the result.
func (h *QuoteHandler) List(c *gin.Context) {
	var query dto.ListQuery
	if err := dto.BindQueryAndValidate(c, &query); err != nil {
		dto.RespondWithBindingError(c, err)
		return
	}

	afterID, err := query.AfterID()
	if err != nil {
		dto.HandleCode(c, dto.ErrorCodeBadRequest, err.Error())
		return
	}

	var author *string
	if a, ok := c.GetQuery("author"); ok {
		author = &a
	}

	quotes, err := h.service.ListQuotes(c.Request.Context(), author)
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	page := dto.Paginate(dto.NewQuoteResponses(quotes), afterID, query.GetLimit(),
		func(q dto.QuoteResponse) int64 { return q.ID })

	c.JSON(http.StatusOK, page)
}

// Create handles POST /api/v1/quotes.
func (h *QuoteHandler) Create(c *gin.Context) {
	var req dto.CreateQuoteRequest
	if err := dto.BindAndValidate(c, &req); err != nil {
		dto.RespondWithBindingError(c, err)
		return
	}

	id, err := h.service.AddQuote(c.Request.Context(), req.ToDomain())
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	c.Header("Location", c.FullPath()+"/"+strconv.FormatInt(id, 10))
	c.JSON(http.StatusCreated, dto.CreatedResponse{ID: id})
}

// Get handles GET /api/v1/quotes/:id.
func (h *QuoteHandler) Get(c *gin.Context) {
	id, ok := quoteID(c)
	if !ok {
		return
	}

	q, err := h.service.GetQuote(c.Request.Context(), id)
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewQuoteResponse(q))
}

// Update handles PATCH /api/v1/quotes/:id and answers with the updated quote.
func (h *QuoteHandler) Update(c *gin.Context) {
	id, ok := quoteID(c)
	if !ok {
		return
	}

	var req dto.UpdateQuoteRequest
	if err := dto.BindAndValidate(c, &req); err != nil {
		dto.RespondWithBindingError(c, err)
		return
	}

	ctx := c.Request.Context()

	if err := h.service.UpdateQuote(ctx, id, req.ToPatch()); err != nil {
		dto.HandleError(c, err)
		return
	}

	q, err := h.service.GetQuote(ctx, id)
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewQuoteResponse(q))
}

// Delete handles DELETE /api/v1/quotes/:id.
func (h *QuoteHandler) Delete(c *gin.Context) {
	id, ok := quoteID(c)
	if !ok {
		return
	}

	if err := h.service.DeleteQuote(c.Request.Context(), id); err != nil {
		dto.HandleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// DeleteAll handles DELETE /api/v1/quotes.
func (h *QuoteHandler) DeleteAll(c *gin.Context) {
	ctx := c.Request.Context()

	n, err := h.service.Count(ctx)
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	if err := h.service.DeleteAll(ctx); err != nil {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.DeletedResponse{Deleted: n})
}

// Latest handles GET /api/v1/quotes/latest?n=.
func (h *QuoteHandler) Latest(c *gin.Context) {
	var query dto.LatestQuery
	if err := dto.BindQueryAndValidate(c, &query); err != nil {
		dto.RespondWithBindingError(c, err)
		return
	}

	quotes, err := h.service.Latest(c.Request.Context(), query.N)
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewQuoteResponses(quotes))
}

// Count handles GET /api/v1/quotes/count.
func (h *QuoteHandler) Count(c *gin.Context) {
	n, err := h.service.Count(c.Request.Context())
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.CountResponse{Count: n})
}

// Fetch handles POST /api/v1/quotes/fetch: one poll of the remote source.
// The body is optional.
func (h *QuoteHandler) Fetch(c *gin.Context) {
	var req dto.FetchRequest
	if err := dto.BindAndValidate(c, &req); err != nil && !errors.Is(err, io.EOF) {
		dto.RespondWithBindingError(c, err)
		return
	}

	url := req.URL
	if url == "" {
		url = h.pollURL
	}

	ctx := c.Request.Context()

	result, err := h.fetcher.PollOnce(ctx, url)
	if err != nil {
		logging.FromContext(ctx).WarnContext(ctx, "fetch failed",
			slog.String("url", url),
			slog.Any("error", err),
		)
		dto.HandleError(c, err)

		return
	}

	c.JSON(http.StatusOK, dto.NewFetchResponse(result))
}

// RegisterQuoteRoutes registers the quote routes on rg.
func (h *QuoteHandler) RegisterQuoteRoutes(rg *gin.RouterGroup) {
	quotes := rg.Group("/quotes")

	quotes.GET("", h.List)
	quotes.POST("", h.Create)
	quotes.DELETE("", h.DeleteAll)
	quotes.GET("/latest", h.Latest)
	quotes.GET("/count", h.Count)

	if h.fetcher != nil {
		quotes.POST("/fetch", h.Fetch)
	}

	quotes.GET("/:id", h.Get)
	quotes.PATCH("/:id", h.Update)
	quotes.DELETE("/:id", h.Delete)
}

// quoteID parses the :id path parameter, answering 400 when it is not a
// positive integer.
func quoteID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewErrorResponseWithDetails(
			dto.ErrorCodeValidation,
			"quote id must be a positive integer",
			map[string]string{"id": c.Param("id")},
		).WithTraceID(dto.GetTraceID(c)))

		return 0, false
	}

	return id, true
}
