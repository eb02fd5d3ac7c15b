package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/quotes/internal/adapters/http/dto"
)

// noRoute answers unknown paths with the standard error envelope.
func noRoute(c *gin.Context) {
	dto.HandleCode(c, dto.ErrorCodeNotFound, "no route for "+c.Request.Method+" "+c.Request.URL.Path)
}

// noMethod answers 405 for known paths requested with an unsupported method.
func noMethod(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusMethodNotAllowed, dto.NewErrorResponse(
		dto.ErrorCodeBadRequest,
		"method "+c.Request.Method+" not allowed",
	).WithTraceID(dto.GetTraceID(c)))
}
