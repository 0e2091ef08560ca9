package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tatianab/castle-adventure/internal/engine"
	"github.com/tatianab/castle-adventure/internal/game"
	"github.com/tatianab/castle-adventure/internal/models"
	"github.com/tatianab/castle-adventure/internal/story"
)

// Error codes returned in the error body.
const (
	CodeNotFound             = "NOT_FOUND"
	CodeNoActiveGame         = "NO_ACTIVE_GAME"
	CodeInvalidSourceScene   = "INVALID_SOURCE_SCENE"
	CodeMissingRequiredItem  = "MISSING_REQUIRED_ITEM"
	CodeItemNotInScene       = "ITEM_NOT_IN_SCENE"
	CodeNotAtEnding          = "NOT_AT_ENDING"
	CodeInvalidIdentity      = "INVALID_IDENTITY"
	CodeBadRequest           = "BAD_REQUEST"
	CodeConfirmationRequired = "CONFIRMATION_REQUIRED"
	CodeGameComplete         = "GAME_COMPLETE"
	CodeInternal             = "INTERNAL_ERROR"
)

type apiError struct {
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Summary *game.Summary `json:"summary,omitempty"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

// classify maps a service error to an HTTP status and error code.
func classify(err error) (int, string) {
	var confirm *game.ConfirmationRequiredError
	switch {
	case errors.As(err, &confirm):
		return http.StatusConflict, CodeConfirmationRequired
	case errors.Is(err, engine.ErrGameComplete):
		return http.StatusConflict, CodeGameComplete
	case errors.Is(err, game.ErrNoActiveGame):
		return http.StatusNotFound, CodeNoActiveGame
	case errors.Is(err, story.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, engine.ErrInvalidSourceScene):
		return http.StatusBadRequest, CodeInvalidSourceScene
	case errors.Is(err, engine.ErrMissingRequiredItem):
		return http.StatusBadRequest, CodeMissingRequiredItem
	case errors.Is(err, engine.ErrItemNotInScene):
		return http.StatusBadRequest, CodeItemNotInScene
	case errors.Is(err, game.ErrNotAtEnding):
		return http.StatusBadRequest, CodeNotAtEnding
	case errors.Is(err, models.ErrInvalidIdentity):
		return http.StatusBadRequest, CodeInvalidIdentity
	}
	return http.StatusInternalServerError, CodeInternal
}

func (h *handler) fail(c *gin.Context, err error) {
	status, code := classify(err)
	body := apiError{Code: code, Message: err.Error()}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("route", c.FullPath()), zap.Error(err))
		body.Message = "internal error"
	}
	var confirm *game.ConfirmationRequiredError
	if errors.As(err, &confirm) {
		body.Summary = &confirm.Summary
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: body})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: apiError{Code: CodeBadRequest, Message: msg}})
}
