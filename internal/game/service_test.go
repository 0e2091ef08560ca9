package game

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tatianab/castle-adventure/internal/ending"
	"github.com/tatianab/castle-adventure/internal/engine"
	"github.com/tatianab/castle-adventure/internal/models"
	"github.com/tatianab/castle-adventure/internal/storage"
	"github.com/tatianab/castle-adventure/internal/storage/file"
	"github.com/tatianab/castle-adventure/internal/story"
)

var fixedNow = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

type countingMetrics struct {
	mu       sync.Mutex
	started  int
	outcomes map[string]int
	pickups  int
	endings  []string
}

func (m *countingMetrics) GameStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started++
}

func (m *countingMetrics) ChoiceApplied(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		m.outcomes = make(map[string]int)
	}
	m.outcomes[outcome]++
}

func (m *countingMetrics) ItemPickedUp(bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pickups++
}

func (m *countingMetrics) EndingReached(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endings = append(m.endings, id)
}

type fixture struct {
	svc     *Service
	store   storage.Store
	metrics *countingMetrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, func(s storage.Store) (storage.StateStore, storage.UnlockLedger) { return s, s })
}

// newFixtureWith lets a test put wrappers around the store the service sees.
// f.store is always the unwrapped store.
func newFixtureWith(t *testing.T, wrap func(storage.Store) (storage.StateStore, storage.UnlockLedger)) *fixture {
	t.Helper()
	g, err := story.NewGraph(story.Castle())
	require.NoError(t, err)
	store, err := file.Open(filepath.Join(t.TempDir(), "saves"))
	require.NoError(t, err)
	states, ledger := wrap(store)

	n := 0
	metrics := &countingMetrics{}
	svc := NewService(g, states, ledger, ending.Default(), zap.NewNop(),
		WithClock(func() time.Time { return fixedNow }),
		WithIDs(func() string { n++; return fmt.Sprintf("game-%d", n) }),
		WithMetrics(metrics),
	)
	return &fixture{svc: svc, store: store, metrics: metrics}
}

var errDiskFull = errors.New("disk full")

// failOnceLedger fails the first RecordUnlock.
type failOnceLedger struct {
	storage.UnlockLedger
	failed bool
}

func (l *failOnceLedger) RecordUnlock(ctx context.Context, owner models.Identity, endingID string, at time.Time) (bool, error) {
	if !l.failed {
		l.failed = true
		return false, errDiskFull
	}
	return l.UnlockLedger.RecordUnlock(ctx, owner, endingID, at)
}

// failingStates fails saves of completed games once, and every replace.
type failingStates struct {
	storage.StateStore
	completeFailed bool
}

func (s *failingStates) SaveState(ctx context.Context, st *models.GameState) error {
	if st.IsComplete && !s.completeFailed {
		s.completeFailed = true
		return errDiskFull
	}
	return s.StateStore.SaveState(ctx, st)
}

func (s *failingStates) ReplaceState(context.Context, string, *models.GameState) error {
	return errDiskFull
}

func (f *fixture) play(t *testing.T, owner models.Identity, steps ...string) *TurnResult {
	t.Helper()
	var last *TurnResult
	for _, step := range steps {
		if len(step) > 5 && step[:5] == "ITEM_" {
			_, err := f.svc.PickupItem(context.Background(), owner, step)
			require.NoError(t, err, step)
			continue
		}
		res, err := f.svc.ApplyChoice(context.Background(), owner, step)
		require.NoError(t, err, step)
		last = res
	}
	return last
}

func TestStartOrResume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := models.SessionIdentity("s1")

	_, err := f.svc.CurrentState(ctx, owner)
	assert.ErrorIs(t, err, ErrNoActiveGame)

	st, err := f.svc.StartOrResume(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, "game-1", st.ID)
	assert.Equal(t, "01", st.CurrentScene)
	assert.Equal(t, []string{"01"}, st.Visited)

	again, err := f.svc.StartOrResume(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, st.ID, again.ID)
	assert.Equal(t, 1, f.metrics.started)
}

func TestOperationsRejectInvalidIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	both := models.Identity{UserID: "1", SessionKey: "s"}

	_, err := f.svc.StartOrResume(ctx, both)
	assert.ErrorIs(t, err, models.ErrInvalidIdentity)
	_, err = f.svc.ApplyChoice(ctx, models.Identity{}, "01-B")
	assert.ErrorIs(t, err, models.ErrInvalidIdentity)
	_, err = f.svc.ListEndings(ctx, both)
	assert.ErrorIs(t, err, models.ErrInvalidIdentity)
}

func TestViewSceneLocksGatedChoices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := models.UserIdentity("42")
	_, err := f.svc.StartOrResume(ctx, owner)
	require.NoError(t, err)

	view, err := f.svc.ViewScene(ctx, owner, "01")
	require.NoError(t, err)
	require.Len(t, view.Choices, 2)
	assert.Equal(t, "01-A", view.Choices[0].ID)
	assert.True(t, view.Choices[0].Locked)
	assert.False(t, view.Choices[1].Locked)
	require.Len(t, view.Items, 1)
	assert.Equal(t, "ITEM_001", view.Items[0].ID)

	_, err = f.svc.PickupItem(ctx, owner, "ITEM_001")
	require.NoError(t, err)

	view, err = f.svc.ViewScene(ctx, owner, "01")
	require.NoError(t, err)
	assert.False(t, view.Choices[0].Locked)
	assert.Empty(t, view.Items)

	_, err = f.svc.ViewScene(ctx, owner, "99")
	assert.ErrorIs(t, err, story.ErrNotFound)
}

func TestApplyChoiceErrorsLeaveStoredStateUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := models.UserIdentity("42")
	before, err := f.svc.StartOrResume(ctx, owner)
	require.NoError(t, err)

	_, err = f.svc.ApplyChoice(ctx, owner, "05-A")
	assert.ErrorIs(t, err, engine.ErrInvalidSourceScene)
	_, err = f.svc.ApplyChoice(ctx, owner, "01-A")
	assert.ErrorIs(t, err, engine.ErrMissingRequiredItem)
	_, err = f.svc.ApplyChoice(ctx, owner, "01-Z")
	assert.ErrorIs(t, err, story.ErrNotFound)
	_, err = f.svc.PickupItem(ctx, owner, "ITEM_002")
	assert.ErrorIs(t, err, engine.ErrItemNotInScene)

	after, err := f.svc.CurrentState(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 2, f.metrics.outcomes[OutcomeRejected])
	assert.Equal(t, 1, f.metrics.outcomes[OutcomeUnknownChoice])
}

func TestNoActiveGame(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := models.UserIdentity("nobody")

	_, err := f.svc.ApplyChoice(ctx, owner, "01-B")
	assert.ErrorIs(t, err, ErrNoActiveGame)
	_, err = f.svc.PickupItem(ctx, owner, "ITEM_001")
	assert.ErrorIs(t, err, ErrNoActiveGame)
	_, err = f.svc.ViewInventory(ctx, owner)
	assert.ErrorIs(t, err, ErrNoActiveGame)
	_, err = f.svc.ReachEnding(ctx, owner, "18")
	assert.ErrorIs(t, err, ErrNoActiveGame)
}

func TestDeathAndRespawn(t *testing.T) {
	f := newFixture(t)
	owner := models.SessionIdentity("s1")
	_, err := f.svc.StartOrResume(context.Background(), owner)
	require.NoError(t, err)

	res := f.play(t, owner, "01-B", "03-B")
	assert.True(t, res.Died)
	assert.Equal(t, "D1", res.State.CurrentScene)
	assert.Equal(t, 1, res.State.Deaths)
	assert.Equal(t, 3, res.State.Flags.ChaosLevel)

	res = f.play(t, owner, "D1-A", "01-B", "03-B")
	assert.Equal(t, 2, res.State.Deaths)
	assert.Equal(t, 5, res.State.ChoicesMade)
	assert.Equal(t, []string{"01", "03", "D1"}, res.State.Visited)
	assert.Equal(t, 2, f.metrics.outcomes[OutcomeDied])
}

func TestReachingTheEndingSceneFinishesTheGame(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := models.UserIdentity("42")
	_, err := f.svc.StartOrResume(ctx, owner)
	require.NoError(t, err)

	res := f.play(t, owner, "01-B", "03-A", "ITEM_002", "04-A", "05-A", "07-B", "17-A")
	require.NotNil(t, res.Ending)
	assert.Equal(t, ending.HeroicRescue, res.Ending.ID)
	assert.True(t, res.State.IsComplete)
	assert.Equal(t, ending.HeroicRescue, res.State.EndingReached)
	assert.Equal(t, []string{ending.HeroicRescue}, f.metrics.endings)

	_, err = f.svc.CurrentState(ctx, owner)
	assert.ErrorIs(t, err, ErrNoActiveGame)

	// The frozen ending comes back from the completed game.
	end, err := f.svc.ReachEnding(ctx, owner, "18")
	require.NoError(t, err)
	assert.Equal(t, ending.HeroicRescue, end.ID)

	statuses, err := f.svc.ListEndings(ctx, owner)
	require.NoError(t, err)
	require.Len(t, statuses, 5)
	for _, s := range statuses {
		assert.Equal(t, s.Ending.ID == ending.HeroicRescue, s.Unlocked, s.Ending.ID)
		if s.Ending.ID == ending.TrueKing {
			assert.True(t, s.Hidden())
		}
	}
}

func TestUnlockRecordedOncePerEnding(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := models.UserIdentity("42")
	path := []string{"01-B", "03-A", "ITEM_002", "04-A", "05-A", "07-B", "17-B"}

	for range 2 {
		_, err := f.svc.StartOrResume(ctx, owner)
		require.NoError(t, err)
		res := f.play(t, owner, path...)
		assert.Equal(t, ending.TragicBetrayal, res.Ending.ID)
	}

	unlocks, err := f.store.UnlockedEndings(ctx, owner)
	require.NoError(t, err)
	require.Len(t, unlocks, 1)
	assert.Equal(t, ending.TragicBetrayal, unlocks[0].EndingID)
}

func TestFailedUnlockLeavesGameActive(t *testing.T) {
	ledger := &failOnceLedger{}
	f := newFixtureWith(t, func(s storage.Store) (storage.StateStore, storage.UnlockLedger) {
		ledger.UnlockLedger = s
		return s, ledger
	})
	ctx := context.Background()
	owner := models.UserIdentity("42")
	_, err := f.svc.StartOrResume(ctx, owner)
	require.NoError(t, err)
	f.play(t, owner, "01-B", "03-A", "ITEM_002", "04-A", "05-A", "07-B")

	_, err = f.svc.ApplyChoice(ctx, owner, "17-A")
	require.ErrorIs(t, err, errDiskFull)

	st, err := f.svc.CurrentState(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, "17", st.CurrentScene)
	assert.False(t, st.IsComplete)
	assert.Empty(t, f.metrics.endings)

	res, err := f.svc.ApplyChoice(ctx, owner, "17-A")
	require.NoError(t, err)
	assert.Equal(t, ending.HeroicRescue, res.Ending.ID)

	unlocks, err := f.store.UnlockedEndings(ctx, owner)
	require.NoError(t, err)
	require.Len(t, unlocks, 1)
	assert.Equal(t, ending.HeroicRescue, unlocks[0].EndingID)
}

func TestFailedCompletionSaveCanBeRetried(t *testing.T) {
	states := &failingStates{}
	f := newFixtureWith(t, func(s storage.Store) (storage.StateStore, storage.UnlockLedger) {
		states.StateStore = s
		return states, s
	})
	ctx := context.Background()
	owner := models.UserIdentity("42")
	_, err := f.svc.StartOrResume(ctx, owner)
	require.NoError(t, err)
	f.play(t, owner, "01-B", "03-A", "ITEM_002", "04-A", "05-A", "07-B")

	_, err = f.svc.ApplyChoice(ctx, owner, "17-B")
	require.ErrorIs(t, err, errDiskFull)
	st, err := f.svc.CurrentState(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, "17", st.CurrentScene)

	res, err := f.svc.ApplyChoice(ctx, owner, "17-B")
	require.NoError(t, err)
	assert.Equal(t, ending.TragicBetrayal, res.Ending.ID)
	assert.Equal(t, []string{ending.TragicBetrayal}, f.metrics.endings)

	unlocks, err := f.store.UnlockedEndings(ctx, owner)
	require.NoError(t, err)
	require.Len(t, unlocks, 1)
}

func TestReachEndingRestoresMissingUnlock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := models.UserIdentity("42")

	// A game completed without its unlock reaching the ledger.
	done := models.NewGameState("old", owner, "01", fixedNow)
	done.CurrentScene = "18"
	done.Complete(ending.HeroicRescue, fixedNow)
	require.NoError(t, f.store.CreateState(ctx, done))

	end, err := f.svc.ReachEnding(ctx, owner, "18")
	require.NoError(t, err)
	assert.Equal(t, ending.HeroicRescue, end.ID)

	unlocks, err := f.store.UnlockedEndings(ctx, owner)
	require.NoError(t, err)
	require.Len(t, unlocks, 1)
	assert.Equal(t, ending.HeroicRescue, unlocks[0].EndingID)
}

func TestStartNewGameKeepsSaveWhenReplaceFails(t *testing.T) {
	states := &failingStates{}
	f := newFixtureWith(t, func(s storage.Store) (storage.StateStore, storage.UnlockLedger) {
		states.StateStore = s
		return states, s
	})
	ctx := context.Background()
	owner := models.SessionIdentity("s1")
	_, err := f.svc.StartOrResume(ctx, owner)
	require.NoError(t, err)
	f.play(t, owner, "ITEM_001", "01-B")

	_, err = f.svc.StartNewGame(ctx, owner, true)
	require.ErrorIs(t, err, errDiskFull)

	kept, err := f.svc.CurrentState(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, "game-1", kept.ID)
	assert.Equal(t, []string{"ITEM_001"}, kept.Inventory)
}

func TestTrueKingPath(t *testing.T) {
	f := newFixture(t)
	owner := models.UserIdentity("king")
	_, err := f.svc.StartOrResume(context.Background(), owner)
	require.NoError(t, err)

	res := f.play(t, owner,
		"ITEM_001", "01-A", "02-B",
		"ITEM_005", "10-A", "11-A", "12-A",
		"ITEM_003", "13-A", "14-A",
		"ITEM_004", "15-A", "16-A",
		"ITEM_008", "17-C",
		"ITEM_007", "07-C",
		"ITEM_006", "09-A", "07-D", "05-B",
		"ITEM_002", "04-A", "05-A", "07-A", "08-A", "17-A",
	)
	require.NotNil(t, res.Ending)
	assert.Equal(t, ending.TrueKing, res.Ending.ID)
	assert.Equal(t, 8, res.State.ItemsCollected)
}

func TestReachEnding(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := models.UserIdentity("42")
	_, err := f.svc.StartOrResume(ctx, owner)
	require.NoError(t, err)

	_, err = f.svc.ReachEnding(ctx, owner, "01")
	assert.ErrorIs(t, err, ErrNotAtEnding)
	_, err = f.svc.ReachEnding(ctx, owner, "18")
	assert.ErrorIs(t, err, ErrNotAtEnding)
	_, err = f.svc.ReachEnding(ctx, owner, "nope")
	assert.ErrorIs(t, err, story.ErrNotFound)

	// A state that was saved on the ending scene without being finished.
	st, err := f.svc.CurrentState(ctx, owner)
	require.NoError(t, err)
	st.CurrentScene = "18"
	st.Flags.ChaosLevel = 11
	require.NoError(t, f.store.SaveState(ctx, st))

	end, err := f.svc.ReachEnding(ctx, owner, "18")
	require.NoError(t, err)
	assert.Equal(t, ending.CastleCollapse, end.ID)

	done, err := f.store.LastCompleted(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, ending.CastleCollapse, done.EndingReached)
}

func TestViewInventoryInPickupOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := models.UserIdentity("42")
	_, err := f.svc.StartOrResume(ctx, owner)
	require.NoError(t, err)
	f.play(t, owner, "ITEM_001", "01-B", "03-A", "ITEM_002", "ITEM_002")

	items, err := f.svc.ViewInventory(ctx, owner)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "ITEM_001", items[0].ID)
	assert.Equal(t, "ITEM_002", items[1].ID)
	assert.Equal(t, 3, f.metrics.pickups)
}

func TestStartNewGameNeedsConfirmationWhenProgressExists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := models.SessionIdentity("s1")

	// No save: nothing to confirm.
	st, err := f.svc.StartNewGame(ctx, owner, false)
	require.NoError(t, err)
	assert.Equal(t, "game-1", st.ID)

	// An untouched save is replaced silently.
	st, err = f.svc.StartNewGame(ctx, owner, false)
	require.NoError(t, err)
	assert.Equal(t, "game-2", st.ID)

	f.play(t, owner, "ITEM_001", "01-B")

	_, err = f.svc.StartNewGame(ctx, owner, false)
	var confirm *ConfirmationRequiredError
	require.True(t, errors.As(err, &confirm))
	assert.Equal(t, Summary{
		CurrentScene:   "03",
		SceneTitle:     confirm.Summary.SceneTitle,
		ChoicesMade:    1,
		ItemsCollected: 1,
	}, confirm.Summary)
	assert.NotEmpty(t, confirm.Summary.SceneTitle)

	kept, err := f.svc.CurrentState(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, "game-2", kept.ID)

	st, err = f.svc.StartNewGame(ctx, owner, true)
	require.NoError(t, err)
	assert.Equal(t, "game-3", st.ID)
	assert.Empty(t, st.Inventory)
}

func TestConcurrentChoicesForOneOwnerAreSerialized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := models.SessionIdentity("s1")
	_, err := f.svc.StartOrResume(ctx, owner)
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.ApplyChoice(ctx, owner, "01-B"); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	st, err := f.svc.CurrentState(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 1, st.ChoicesMade)
}
