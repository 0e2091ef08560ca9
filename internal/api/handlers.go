package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tatianab/castle-adventure/internal/game"
	"github.com/tatianab/castle-adventure/internal/models"
)

type handler struct {
	svc    *game.Service
	logger *zap.Logger
}

type stateResponse struct {
	State *models.GameState `json:"state"`
	Scene string            `json:"scene"`
}

func (h *handler) startOrResume(c *gin.Context) {
	st, err := h.svc.StartOrResume(c.Request.Context(), identityFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stateResponse{State: st, Scene: st.CurrentScene})
}

type newGameRequest struct {
	Confirm bool `json:"confirm"`
}

func (h *handler) startNewGame(c *gin.Context) {
	var req newGameRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			badRequest(c, "invalid request body")
			return
		}
	}
	if c.Query("confirm") == "true" {
		req.Confirm = true
	}
	st, err := h.svc.StartNewGame(c.Request.Context(), identityFrom(c), req.Confirm)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, stateResponse{State: st, Scene: st.CurrentScene})
}

func (h *handler) currentState(c *gin.Context) {
	st, err := h.svc.CurrentState(c.Request.Context(), identityFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stateResponse{State: st, Scene: st.CurrentScene})
}

func (h *handler) viewScene(c *gin.Context) {
	view, err := h.svc.ViewScene(c.Request.Context(), identityFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *handler) applyChoice(c *gin.Context) {
	res, err := h.svc.ApplyChoice(c.Request.Context(), identityFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handler) pickupItem(c *gin.Context) {
	item, err := h.svc.PickupItem(c.Request.Context(), identityFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "item": item})
}

func (h *handler) viewInventory(c *gin.Context) {
	items, err := h.svc.ViewInventory(c.Request.Context(), identityFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *handler) reachEnding(c *gin.Context) {
	end, err := h.svc.ReachEnding(c.Request.Context(), identityFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ending": end})
}

// endingEntry hides the details of secret endings until they are unlocked.
type endingEntry struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Category    string     `json:"category,omitempty"`
	Icon        string     `json:"icon,omitempty"`
	Achievement string     `json:"achievement,omitempty"`
	Secret      bool       `json:"is_secret"`
	Unlocked    bool       `json:"unlocked"`
	UnlockedAt  *time.Time `json:"unlocked_at,omitempty"`
}

func toEntry(s game.EndingStatus) endingEntry {
	e := endingEntry{ID: s.Ending.ID, Secret: s.Ending.IsSecret, Unlocked: s.Unlocked}
	if s.Hidden() {
		e.Title = "???"
		return e
	}
	e.Title = s.Ending.Title
	e.Description = s.Ending.Description
	e.Category = string(s.Ending.Category)
	e.Icon = s.Ending.Icon
	e.Achievement = s.Ending.Achievement
	if s.Unlocked {
		at := s.UnlockedAt
		e.UnlockedAt = &at
	}
	return e
}

func (h *handler) listEndings(c *gin.Context) {
	statuses, err := h.svc.ListEndings(c.Request.Context(), identityFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	entries := make([]endingEntry, 0, len(statuses))
	unlocked := 0
	for _, s := range statuses {
		entries = append(entries, toEntry(s))
		if s.Unlocked {
			unlocked++
		}
	}
	c.JSON(http.StatusOK, gin.H{"endings": entries, "unlocked": unlocked, "total": len(entries)})
}
