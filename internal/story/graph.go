// Package story holds the immutable story content: scenes, items, the
// choices linking scenes, and the possible endings. A Graph is safe for
// concurrent use by any number of players.
package story

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/tatianab/castle-adventure/internal/models"
)

// ErrNotFound is returned when an identifier does not exist in the story.
var ErrNotFound = errors.New("story: not found")

// Graph is the indexed, read-only story.
type Graph struct {
	title string
	start string

	scenes     map[string]models.Scene
	sceneOrder []string
	items      map[string]models.Item
	itemOrder  []string
	choices    map[string]models.Choice
	outgoing   map[string][]models.Choice
	itemsIn    map[string][]models.Item
	endings    map[string]models.Ending
	endingList []models.Ending
}

// NewGraph indexes content. It fails only when identifiers collide or a scene
// id contains models.ChoiceSeparator; everything else is left to Validate.
func NewGraph(c *Content) (*Graph, error) {
	g := &Graph{
		title:    c.Title,
		start:    c.Start,
		scenes:   make(map[string]models.Scene, len(c.Scenes)),
		items:    make(map[string]models.Item, len(c.Items)),
		choices:  make(map[string]models.Choice, len(c.Choices)),
		outgoing: make(map[string][]models.Choice),
		itemsIn:  make(map[string][]models.Item),
		endings:  make(map[string]models.Ending, len(c.Endings)),
	}

	var problems []string
	for _, s := range c.Scenes {
		if strings.Contains(s.ID, models.ChoiceSeparator) {
			problems = append(problems, fmt.Sprintf("scene id %q contains %q", s.ID, models.ChoiceSeparator))
			continue
		}
		if _, dup := g.scenes[s.ID]; dup {
			problems = append(problems, fmt.Sprintf("duplicate scene %q", s.ID))
			continue
		}
		g.scenes[s.ID] = s
		g.sceneOrder = append(g.sceneOrder, s.ID)
	}
	for _, it := range c.Items {
		if _, dup := g.items[it.ID]; dup {
			problems = append(problems, fmt.Sprintf("duplicate item %q", it.ID))
			continue
		}
		g.items[it.ID] = it
		g.itemOrder = append(g.itemOrder, it.ID)
		g.itemsIn[it.FoundInScene] = append(g.itemsIn[it.FoundInScene], it)
	}
	for _, ch := range c.Choices {
		if _, dup := g.choices[ch.ID()]; dup {
			problems = append(problems, fmt.Sprintf("duplicate label %q in scene %q", ch.Label, ch.From))
			continue
		}
		g.choices[ch.ID()] = ch
		g.outgoing[ch.From] = append(g.outgoing[ch.From], ch)
	}
	for _, e := range c.Endings {
		if _, dup := g.endings[e.ID]; dup {
			problems = append(problems, fmt.Sprintf("duplicate ending %q", e.ID))
			continue
		}
		g.endings[e.ID] = e
		g.endingList = append(g.endingList, e)
	}
	if len(problems) > 0 {
		return nil, &IntegrityError{Problems: problems}
	}

	for from := range g.outgoing {
		slices.SortStableFunc(g.outgoing[from], compareChoices)
	}
	return g, nil
}

func compareChoices(a, b models.Choice) int {
	if c := cmp.Compare(a.Order, b.Order); c != 0 {
		return c
	}
	return cmp.Compare(a.Label, b.Label)
}

func (g *Graph) Title() string { return g.title }

// Start is the scene every new game begins in.
func (g *Graph) Start() string { return g.start }

func (g *Graph) Scene(id string) (models.Scene, error) {
	s, ok := g.scenes[id]
	if !ok {
		return models.Scene{}, fmt.Errorf("%w: scene %q", ErrNotFound, id)
	}
	return s, nil
}

func (g *Graph) Choice(id string) (models.Choice, error) {
	c, ok := g.choices[id]
	if !ok {
		return models.Choice{}, fmt.Errorf("%w: choice %q", ErrNotFound, id)
	}
	return c, nil
}

func (g *Graph) Item(id string) (models.Item, error) {
	it, ok := g.items[id]
	if !ok {
		return models.Item{}, fmt.Errorf("%w: item %q", ErrNotFound, id)
	}
	return it, nil
}

func (g *Graph) Ending(id string) (models.Ending, error) {
	e, ok := g.endings[id]
	if !ok {
		return models.Ending{}, fmt.Errorf("%w: ending %q", ErrNotFound, id)
	}
	return e, nil
}

// ChoicesFrom returns the outgoing choices of a scene ordered by Order, ties
// broken by label.
func (g *Graph) ChoicesFrom(sceneID string) []models.Choice {
	return slices.Clone(g.outgoing[sceneID])
}

// ItemsIn returns the items first found in a scene, in content order.
func (g *Graph) ItemsIn(sceneID string) []models.Item {
	return slices.Clone(g.itemsIn[sceneID])
}

// Endings returns every ending in content order.
func (g *Graph) Endings() []models.Ending {
	return slices.Clone(g.endingList)
}

func (g *Graph) Scenes() []models.Scene {
	out := make([]models.Scene, 0, len(g.sceneOrder))
	for _, id := range g.sceneOrder {
		out = append(out, g.scenes[id])
	}
	return out
}

func (g *Graph) Items() []models.Item {
	out := make([]models.Item, 0, len(g.itemOrder))
	for _, id := range g.itemOrder {
		out = append(out, g.items[id])
	}
	return out
}
