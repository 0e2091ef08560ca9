// Package engine applies player actions to a game state against the story
// graph. Every action validates first and mutates only after all checks
// pass, so a failed action leaves the state untouched.
package engine

import (
	"errors"
	"time"

	"github.com/tatianab/castle-adventure/internal/models"
	"github.com/tatianab/castle-adventure/internal/story"
)

var (
	ErrInvalidSourceScene  = errors.New("choice is not available from the current scene")
	ErrMissingRequiredItem = errors.New("missing required item")
	ErrItemNotInScene      = errors.New("item is not in this scene")
	ErrGameComplete        = errors.New("game is already complete")
)

// Engine holds the read-only story the actions are checked against.
type Engine struct {
	graph *story.Graph
	now   func() time.Time
}

func NewEngine(graph *story.Graph) *Engine {
	return &Engine{graph: graph, now: time.Now}
}

// WithClock returns a copy of the engine that stamps states using now.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	out := *e
	out.now = now
	return &out
}

// Move describes a successful choice.
type Move struct {
	Choice      models.Choice
	Destination models.Scene
	Died        bool
}

// ApplyChoice moves the player along choice.
func (e *Engine) ApplyChoice(state *models.GameState, choice models.Choice) (*Move, error) {
	if state.IsComplete {
		return nil, ErrGameComplete
	}
	if choice.From != state.CurrentScene {
		return nil, ErrInvalidSourceScene
	}
	if choice.RequiresItem != "" && !state.HasItem(choice.RequiresItem) {
		return nil, ErrMissingRequiredItem
	}
	dest, err := e.graph.Scene(choice.To)
	if err != nil {
		return nil, err
	}

	state.CurrentScene = dest.ID
	state.ChoicesMade++
	state.Visit(dest.ID)
	if dest.IsDeath {
		state.Deaths++
	}
	for _, eff := range choice.Effects {
		state.Flags.Apply(eff)
	}
	state.UpdatedAt = e.now()

	return &Move{Choice: choice, Destination: dest, Died: dest.IsDeath}, nil
}

// PickupItem adds item to the inventory if it lies in the current scene.
// Picking up an item already carried succeeds without changing anything.
func (e *Engine) PickupItem(state *models.GameState, item models.Item) (bool, error) {
	if state.IsComplete {
		return false, ErrGameComplete
	}
	if item.FoundInScene != state.CurrentScene {
		return false, ErrItemNotInScene
	}
	added := state.AddItem(item.ID)
	if added {
		state.UpdatedAt = e.now()
	}
	return added, nil
}
