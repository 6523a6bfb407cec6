package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mmynk/storefront/internal/apperr"
	"github.com/mmynk/storefront/internal/middleware"
)

const internalMessage = "internal server error"

// errorResponse is the body of every failed request.
type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type successResponse struct {
	Success bool `json:"success"`
}

func ok(c *gin.Context) {
	c.JSON(http.StatusOK, successResponse{Success: true})
}

// respondError maps err to a status code and the standard error body.
// Unclassified errors are treated as internal; their detail is logged and
// never sent to the client.
func (h *Handler) respondError(c *gin.Context, err error) {
	e, classified := apperr.As(err)
	if !classified {
		e = apperr.Internal("unclassified", err)
	}

	message := e.Message
	if e.Kind == apperr.KindInternal {
		h.logger.Error("Internal error",
			"route", c.FullPath(),
			"op", e.Message,
			"error", e.Err,
			"user_id", middleware.GetUserID(c.Request.Context()),
		)
		message = internalMessage
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(e.Kind.HTTPStatus(), errorResponse{
		Success: false,
		Message: message,
		Code:    e.Code,
	})
}

// badRequest reports a request body or parameter that failed validation.
func (h *Handler) badRequest(c *gin.Context, err error) {
	h.respondError(c, apperr.Invalid(apperr.CodeInvalidInput, fmt.Sprintf("invalid request: %v", err)))
}

// recover turns panics into the standard internal error body.
func (h *Handler) recover(c *gin.Context, recovered any) {
	h.respondError(c, apperr.Internal("panic", fmt.Errorf("%v", recovered)))
}
