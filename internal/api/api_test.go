package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tatianab/castle-adventure/internal/ending"
	"github.com/tatianab/castle-adventure/internal/game"
	"github.com/tatianab/castle-adventure/internal/storage/sqlite"
	"github.com/tatianab/castle-adventure/internal/story"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	g, err := story.NewGraph(story.Castle())
	require.NoError(t, err)
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "castle.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	metrics := NewMetrics()
	svc := game.NewService(g, store, store, ending.Default(), zap.NewNop(), game.WithMetrics(metrics))
	return NewRouter(svc, metrics, zap.NewNop())
}

func do(t *testing.T, r http.Handler, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, w)
	e, ok := body["error"].(map[string]any)
	require.True(t, ok, w.Body.String())
	return e["code"].(string)
}

func TestHealthz(t *testing.T) {
	r := newTestRouter(t)
	w := do(t, r, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
}

func TestPlayThroughHTTP(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodGet, "/api/game/state", "7", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, CodeNoActiveGame, errorCode(t, w))

	w = do(t, r, http.MethodPost, "/api/game/start", "7", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "01", decode(t, w)["scene"])

	w = do(t, r, http.MethodGet, "/api/scenes/01", "7", "")
	require.Equal(t, http.StatusOK, w.Code)
	choices := decode(t, w)["choices"].([]any)
	require.Len(t, choices, 2)
	assert.Equal(t, true, choices[0].(map[string]any)["locked"])

	w = do(t, r, http.MethodPost, "/api/choices/01-A", "7", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeMissingRequiredItem, errorCode(t, w))

	w = do(t, r, http.MethodPost, "/api/choices/05-A", "7", "")
	assert.Equal(t, CodeInvalidSourceScene, errorCode(t, w))

	w = do(t, r, http.MethodPost, "/api/choices/nope", "7", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, r, http.MethodPost, "/api/items/ITEM_002/pickup", "7", "")
	assert.Equal(t, CodeItemNotInScene, errorCode(t, w))

	for _, step := range []string{
		"/api/choices/01-B", "/api/choices/03-A", "/api/items/ITEM_002/pickup",
		"/api/choices/04-A", "/api/choices/05-A", "/api/choices/07-B",
	} {
		w = do(t, r, http.MethodPost, step, "7", "")
		require.Equal(t, http.StatusOK, w.Code, step+": "+w.Body.String())
	}

	w = do(t, r, http.MethodGet, "/api/inventory", "7", "")
	items := decode(t, w)["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "ITEM_002", items[0].(map[string]any)["id"])

	w = do(t, r, http.MethodPost, "/api/choices/17-A", "7", "")
	require.Equal(t, http.StatusOK, w.Code)
	end := decode(t, w)["ending"].(map[string]any)
	assert.Equal(t, ending.HeroicRescue, end["id"])

	w = do(t, r, http.MethodPost, "/api/scenes/18/ending", "7", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, ending.HeroicRescue, decode(t, w)["ending"].(map[string]any)["id"])

	w = do(t, r, http.MethodGet, "/api/endings", "7", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 1, body["unlocked"])
	assert.EqualValues(t, 5, body["total"])
	for _, raw := range body["endings"].([]any) {
		e := raw.(map[string]any)
		if e["id"] == ending.TrueKing {
			assert.Equal(t, "???", e["title"])
		}
	}

	w = do(t, r, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `castle_endings_total{ending="E1"} 1`)
	assert.Contains(t, w.Body.String(), `castle_choices_total{outcome="rejected"} 2`)
}

func TestNewGameConfirmation(t *testing.T) {
	r := newTestRouter(t)

	do(t, r, http.MethodPost, "/api/game/start", "7", "")
	do(t, r, http.MethodPost, "/api/choices/01-B", "7", "")

	w := do(t, r, http.MethodPost, "/api/game/new", "7", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	e := decode(t, w)["error"].(map[string]any)
	assert.Equal(t, CodeConfirmationRequired, e["code"])
	assert.EqualValues(t, 1, e["summary"].(map[string]any)["choices_made"])

	w = do(t, r, http.MethodPost, "/api/game/new", "7", `{"confirm": true}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "01", decode(t, w)["scene"])

	w = do(t, r, http.MethodPost, "/api/game/new", "7", `{"confirm":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnonymousSessionCookie(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/api/game/start", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionCookie, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/api/game/state", nil)
	req.AddCookie(cookies[0])
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Result().Cookies())

	// A fresh visitor gets a different session and no game.
	w = do(t, r, http.MethodGet, "/api/game/state", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUsersAreIsolated(t *testing.T) {
	r := newTestRouter(t)

	do(t, r, http.MethodPost, "/api/game/start", "alice", "")
	w := do(t, r, http.MethodPost, "/api/choices/01-B", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodPost, "/api/choices/01-B", "bob", "")
	assert.Equal(t, CodeNoActiveGame, errorCode(t, w))
}
