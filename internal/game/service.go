// Package game is the operation surface front ends call. It looks up the
// owner's state, runs the engine and the ending resolver against it, and
// persists the result. Operations for one owner are serialized; different
// owners never share mutable state.
package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tatianab/castle-adventure/internal/ending"
	"github.com/tatianab/castle-adventure/internal/engine"
	"github.com/tatianab/castle-adventure/internal/models"
	"github.com/tatianab/castle-adventure/internal/storage"
	"github.com/tatianab/castle-adventure/internal/story"
)

var (
	ErrNoActiveGame = errors.New("no active game")
	ErrNotAtEnding  = errors.New("not at an ending scene")
)

// Summary describes a save the player would lose by starting over.
type Summary struct {
	CurrentScene   string `json:"current_scene"`
	SceneTitle     string `json:"scene_title"`
	ChoicesMade    int    `json:"choices_made"`
	ItemsCollected int    `json:"items_collected"`
	Deaths         int    `json:"deaths"`
}

// ConfirmationRequiredError is returned by StartNewGame when the existing
// save has progress and the caller did not confirm the overwrite.
type ConfirmationRequiredError struct {
	Summary Summary
}

func (e *ConfirmationRequiredError) Error() string {
	return fmt.Sprintf("existing game at scene %s with %d choices, %d items and %d deaths would be lost",
		e.Summary.CurrentScene, e.Summary.ChoicesMade, e.Summary.ItemsCollected, e.Summary.Deaths)
}

// ChoiceView is a choice as shown in a scene.
type ChoiceView struct {
	ID     string        `json:"id"`
	Choice models.Choice `json:"choice"`
	Locked bool          `json:"locked"`
}

// SceneView is everything a front end needs to draw a scene.
type SceneView struct {
	Scene   models.Scene      `json:"scene"`
	Choices []ChoiceView      `json:"choices"`
	Items   []models.Item     `json:"items"`
	State   *models.GameState `json:"state"`
}

// TurnResult is the outcome of ApplyChoice. Ending is set when the move
// finished the game.
type TurnResult struct {
	State       *models.GameState `json:"state"`
	Choice      models.Choice     `json:"choice"`
	Destination models.Scene      `json:"destination"`
	Died        bool              `json:"died"`
	Ending      *models.Ending    `json:"ending,omitempty"`
}

// EndingStatus pairs an ending with the owner's unlock.
type EndingStatus struct {
	Ending     models.Ending `json:"ending"`
	Unlocked   bool          `json:"unlocked"`
	UnlockedAt time.Time     `json:"unlocked_at,omitempty"`
}

// Hidden reports whether the ending's details should be withheld.
func (s EndingStatus) Hidden() bool {
	return s.Ending.IsSecret && !s.Unlocked
}

// Metrics receives counts of what players do.
type Metrics interface {
	GameStarted()
	ChoiceApplied(outcome string)
	ItemPickedUp(added bool)
	EndingReached(endingID string)
}

// Outcomes reported to Metrics.ChoiceApplied.
const (
	OutcomeMoved         = "moved"
	OutcomeDied          = "died"
	OutcomeEnded         = "ended"
	OutcomeRejected      = "rejected"
	OutcomeUnknownChoice = "unknown_choice"
)

type nopMetrics struct{}

func (nopMetrics) GameStarted() {}
func (nopMetrics) ChoiceApplied(string) {}
func (nopMetrics) ItemPickedUp(bool) {}
func (nopMetrics) EndingReached(string) {}

type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDs replaces the uuid generator used for new game ids.
func WithIDs(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

func WithMetrics(m Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// Service runs player operations.
type Service struct {
	graph    *story.Graph
	engine   *engine.Engine
	states   storage.StateStore
	ledger   storage.UnlockLedger
	resolver *ending.Resolver
	logger   *zap.Logger
	metrics  Metrics
	now      func() time.Time
	newID    func() string
	locks    *ownerLocks
}

func NewService(graph *story.Graph, states storage.StateStore, ledger storage.UnlockLedger,
	resolver *ending.Resolver, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		graph:    graph,
		states:   states,
		ledger:   ledger,
		resolver: resolver,
		logger:   logger.Named("game"),
		metrics:  nopMetrics{},
		now:      time.Now,
		newID:    uuid.NewString,
		locks:    newOwnerLocks(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = engine.NewEngine(graph).WithClock(s.now)
	return s
}

// Graph exposes the read-only story.
func (s *Service) Graph() *story.Graph { return s.graph }

func (s *Service) lock(owner models.Identity) (func(), error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	return s.locks.lock(owner.String()), nil
}

func (s *Service) active(ctx context.Context, owner models.Identity) (*models.GameState, error) {
	st, err := s.states.ActiveState(ctx, owner)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNoActiveGame
		}
		return nil, fmt.Errorf("load game state: %w", err)
	}
	return st, nil
}

func (s *Service) create(ctx context.Context, owner models.Identity) (*models.GameState, error) {
	st := models.NewGameState(s.newID(), owner, s.graph.Start(), s.now())
	if err := s.states.CreateState(ctx, st); err != nil {
		return nil, fmt.Errorf("create game state: %w", err)
	}
	s.metrics.GameStarted()
	s.logger.Info("game started", zap.Stringer("owner", owner), zap.String("game", st.ID))
	return st, nil
}

// StartOrResume returns the owner's active game, creating one at the start
// scene when there is none.
func (s *Service) StartOrResume(ctx context.Context, owner models.Identity) (*models.GameState, error) {
	unlock, err := s.lock(owner)
	if err != nil {
		return nil, err
	}
	defer unlock()

	st, err := s.active(ctx, owner)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, ErrNoActiveGame) {
		return nil, err
	}
	st, err = s.create(ctx, owner)
	if errors.Is(err, storage.ErrAlreadyExists) {
		// Another process created it first.
		return s.active(ctx, owner)
	}
	return st, err
}

// CurrentState returns the active game without creating one.
func (s *Service) CurrentState(ctx context.Context, owner models.Identity) (*models.GameState, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	return s.active(ctx, owner)
}

// ViewScene describes sceneID from the point of view of the owner's active
// game: which choices are locked and which items still lie there.
func (s *Service) ViewScene(ctx context.Context, owner models.Identity, sceneID string) (*SceneView, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	st, err := s.active(ctx, owner)
	if err != nil {
		return nil, err
	}
	scene, err := s.graph.Scene(sceneID)
	if err != nil {
		return nil, err
	}

	view := &SceneView{Scene: scene, State: st, Choices: []ChoiceView{}, Items: []models.Item{}}
	for _, c := range s.graph.ChoicesFrom(sceneID) {
		view.Choices = append(view.Choices, ChoiceView{
			ID:     c.ID(),
			Choice: c,
			Locked: c.RequiresItem != "" && !st.HasItem(c.RequiresItem),
		})
	}
	for _, it := range s.graph.ItemsIn(sceneID) {
		if !st.HasItem(it.ID) {
			view.Items = append(view.Items, it)
		}
	}
	return view, nil
}

// ApplyChoice moves the owner along the choice. Arriving at an ending scene
// resolves the ending, completes the game and records the unlock in the
// same call.
func (s *Service) ApplyChoice(ctx context.Context, owner models.Identity, choiceID string) (*TurnResult, error) {
	unlock, err := s.lock(owner)
	if err != nil {
		return nil, err
	}
	defer unlock()

	st, err := s.active(ctx, owner)
	if err != nil {
		return nil, err
	}
	choice, err := s.graph.Choice(choiceID)
	if err != nil {
		s.metrics.ChoiceApplied(OutcomeUnknownChoice)
		return nil, err
	}

	next := st.Clone()
	move, err := s.engine.ApplyChoice(next, choice)
	if err != nil {
		s.metrics.ChoiceApplied(OutcomeRejected)
		s.logger.Debug("choice rejected",
			zap.Stringer("owner", owner), zap.String("choice", choiceID), zap.Error(err))
		return nil, err
	}

	result := &TurnResult{State: next, Choice: move.Choice, Destination: move.Destination, Died: move.Died}
	if move.Destination.IsEnding {
		end, err := s.finish(ctx, next)
		if err != nil {
			return nil, err
		}
		result.Ending = end
		s.metrics.ChoiceApplied(OutcomeEnded)
		return result, nil
	}

	if err := s.states.SaveState(ctx, next); err != nil {
		s.logger.Error("save game state", zap.String("game", next.ID), zap.Error(err))
		return nil, fmt.Errorf("save game state: %w", err)
	}
	outcome := OutcomeMoved
	if move.Died {
		outcome = OutcomeDied
	}
	s.metrics.ChoiceApplied(outcome)
	s.logger.Debug("choice applied",
		zap.Stringer("owner", owner), zap.String("choice", choiceID), zap.String("scene", next.CurrentScene))
	return result, nil
}

// finish resolves and freezes the ending of st, records the unlock and saves
// the completed state. st must be at an ending scene. The unlock goes first:
// it is idempotent, so a failed save can be retried while the game is still
// active.
func (s *Service) finish(ctx context.Context, st *models.GameState) (*models.Ending, error) {
	endingID := s.resolver.Determine(st)
	end, err := s.graph.Ending(endingID)
	if err != nil {
		return nil, fmt.Errorf("resolve ending: %w", err)
	}
	now := s.now()
	created, err := s.ledger.RecordUnlock(ctx, st.Owner, endingID, now)
	if err != nil {
		s.logger.Error("record ending unlock", zap.String("game", st.ID), zap.Error(err))
		return nil, fmt.Errorf("record unlock: %w", err)
	}
	st.Complete(endingID, now)
	if err := s.states.SaveState(ctx, st); err != nil {
		s.logger.Error("save completed game", zap.String("game", st.ID), zap.Error(err))
		return nil, fmt.Errorf("save game state: %w", err)
	}
	s.metrics.EndingReached(endingID)
	s.logger.Info("ending reached",
		zap.Stringer("owner", st.Owner),
		zap.String("game", st.ID),
		zap.String("ending", endingID),
		zap.Bool("first_time", created),
	)
	return &end, nil
}

// PickupItem puts the item into the owner's inventory. Taking an item that
// is already carried succeeds without changes.
func (s *Service) PickupItem(ctx context.Context, owner models.Identity, itemID string) (*models.Item, error) {
	unlock, err := s.lock(owner)
	if err != nil {
		return nil, err
	}
	defer unlock()

	st, err := s.active(ctx, owner)
	if err != nil {
		return nil, err
	}
	item, err := s.graph.Item(itemID)
	if err != nil {
		return nil, err
	}

	next := st.Clone()
	added, err := s.engine.PickupItem(next, item)
	if err != nil {
		return nil, err
	}
	if added {
		if err := s.states.SaveState(ctx, next); err != nil {
			s.logger.Error("save game state", zap.String("game", next.ID), zap.Error(err))
			return nil, fmt.Errorf("save game state: %w", err)
		}
		s.logger.Debug("item picked up", zap.Stringer("owner", owner), zap.String("item", itemID))
	}
	s.metrics.ItemPickedUp(added)
	return &item, nil
}

// ViewInventory lists carried items in pickup order.
func (s *Service) ViewInventory(ctx context.Context, owner models.Identity) ([]models.Item, error) {
	st, err := s.CurrentState(ctx, owner)
	if err != nil {
		return nil, err
	}
	items := make([]models.Item, 0, len(st.Inventory))
	for _, id := range st.Inventory {
		it, err := s.graph.Item(id)
		if err != nil {
			return nil, fmt.Errorf("inventory holds %q: %w", id, err)
		}
		items = append(items, it)
	}
	return items, nil
}

// ReachEnding finishes the active game standing on sceneID. When the owner
// has no active game, the ending frozen into their last completed game is
// returned instead.
func (s *Service) ReachEnding(ctx context.Context, owner models.Identity, sceneID string) (*models.Ending, error) {
	unlock, err := s.lock(owner)
	if err != nil {
		return nil, err
	}
	defer unlock()

	scene, err := s.graph.Scene(sceneID)
	if err != nil {
		return nil, err
	}
	if !scene.IsEnding {
		return nil, fmt.Errorf("scene %s: %w", sceneID, ErrNotAtEnding)
	}

	st, err := s.active(ctx, owner)
	switch {
	case err == nil:
		if st.CurrentScene != sceneID {
			return nil, fmt.Errorf("player is at scene %s: %w", st.CurrentScene, ErrNotAtEnding)
		}
		return s.finish(ctx, st.Clone())
	case !errors.Is(err, ErrNoActiveGame):
		return nil, err
	}

	done, err := s.states.LastCompleted(ctx, owner)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNoActiveGame
		}
		return nil, fmt.Errorf("load completed game: %w", err)
	}
	end, err := s.graph.Ending(done.EndingReached)
	if err != nil {
		return nil, err
	}
	if _, err := s.ledger.RecordUnlock(ctx, owner, done.EndingReached, done.UpdatedAt); err != nil {
		return nil, fmt.Errorf("record unlock: %w", err)
	}
	return &end, nil
}

// ListEndings returns every ending in content order with the owner's unlock
// status.
func (s *Service) ListEndings(ctx context.Context, owner models.Identity) ([]EndingStatus, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	unlocks, err := s.ledger.UnlockedEndings(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list unlocks: %w", err)
	}
	at := make(map[string]time.Time, len(unlocks))
	for _, u := range unlocks {
		at[u.EndingID] = u.UnlockedAt
	}

	endings := s.graph.Endings()
	out := make([]EndingStatus, 0, len(endings))
	for _, e := range endings {
		t, ok := at[e.ID]
		out = append(out, EndingStatus{Ending: e, Unlocked: ok, UnlockedAt: t})
	}
	return out, nil
}

// StartNewGame discards the active game and starts over. A game with
// progress is only discarded when confirm is true; otherwise a
// *ConfirmationRequiredError describes what would be lost.
func (s *Service) StartNewGame(ctx context.Context, owner models.Identity, confirm bool) (*models.GameState, error) {
	unlock, err := s.lock(owner)
	if err != nil {
		return nil, err
	}
	defer unlock()

	st, err := s.active(ctx, owner)
	switch {
	case err == nil:
		if st.HasProgress() && !confirm {
			return nil, &ConfirmationRequiredError{Summary: s.summarize(st)}
		}
		next := models.NewGameState(s.newID(), owner, s.graph.Start(), s.now())
		if err := s.states.ReplaceState(ctx, st.ID, next); err != nil {
			return nil, fmt.Errorf("replace game state: %w", err)
		}
		s.metrics.GameStarted()
		s.logger.Info("game replaced",
			zap.Stringer("owner", owner), zap.String("discarded", st.ID), zap.String("game", next.ID))
		return next, nil
	case !errors.Is(err, ErrNoActiveGame):
		return nil, err
	}
	return s.create(ctx, owner)
}

func (s *Service) summarize(st *models.GameState) Summary {
	sum := Summary{
		CurrentScene:   st.CurrentScene,
		ChoicesMade:    st.ChoicesMade,
		ItemsCollected: st.ItemsCollected,
		Deaths:         st.Deaths,
	}
	if scene, err := s.graph.Scene(st.CurrentScene); err == nil {
		sum.SceneTitle = scene.Title
	}
	return sum
}
