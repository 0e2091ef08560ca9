package story

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tatianab/castle-adventure/internal/models"
)

// ErrIntegrity marks content authoring defects found by Validate.
var ErrIntegrity = errors.New("story: content integrity violation")

// IntegrityError lists every defect found in a piece of content.
// Unreachable holds the ids of scenes and items that cannot be reached from
// the start scene.
type IntegrityError struct {
	Problems    []string
	Unreachable []string
}

func (e *IntegrityError) Error() string {
	var b strings.Builder
	b.WriteString(ErrIntegrity.Error())
	for _, p := range e.Problems {
		b.WriteString("\n  - ")
		b.WriteString(p)
	}
	if len(e.Unreachable) > 0 {
		b.WriteString("\n  - unreachable: ")
		b.WriteString(strings.Join(e.Unreachable, ", "))
	}
	return b.String()
}

func (e *IntegrityError) Unwrap() error { return ErrIntegrity }

// Validate checks the whole graph offline: dangling references, dead-end
// scenes, malformed choices and content unreachable from the start scene.
// It returns nil or an *IntegrityError.
func Validate(g *Graph) error {
	var problems []string
	addf := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if _, ok := g.scenes[g.start]; !ok {
		addf("start scene %q does not exist", g.start)
	}

	hasEnding := false
	for _, id := range g.sceneOrder {
		s := g.scenes[id]
		switch s.Category {
		case models.CategoryStory, models.CategoryHub, models.CategoryDeath, models.CategoryEnding:
		default:
			addf("scene %q has unknown category %q", id, s.Category)
		}
		if s.IsDeath != (s.Category == models.CategoryDeath) {
			addf("scene %q: death flag disagrees with category %q", id, s.Category)
		}
		if s.IsEnding != (s.Category == models.CategoryEnding) {
			addf("scene %q: ending flag disagrees with category %q", id, s.Category)
		}
		if s.IsEnding {
			hasEnding = true
		}
		if !s.Terminal() && len(g.outgoing[id]) == 0 {
			addf("scene %q %q is a dead end", id, s.Title)
		}
	}
	if !hasEnding {
		addf("story has no ending scene")
	}

	for _, id := range g.itemOrder {
		it := g.items[id]
		if _, ok := g.scenes[it.FoundInScene]; !ok {
			addf("item %q is found in missing scene %q", id, it.FoundInScene)
		}
	}

	for _, from := range g.sceneOrderWithOrphans() {
		for _, ch := range g.outgoing[from] {
			if _, ok := g.scenes[ch.From]; !ok {
				addf("choice %s leaves missing scene %q", ch.ID(), ch.From)
			}
			if _, ok := g.scenes[ch.To]; !ok {
				addf("choice %s leads to missing scene %q", ch.ID(), ch.To)
			}
			if utf8.RuneCountInString(ch.Label) != 1 {
				addf("choice %s label must be a single character", ch.ID())
			}
			if ch.RequiresItem != "" {
				if _, ok := g.items[ch.RequiresItem]; !ok {
					addf("choice %s requires missing item %q", ch.ID(), ch.RequiresItem)
				}
			}
			for _, e := range ch.Effects {
				if msg := checkEffect(e); msg != "" {
					addf("choice %s: %s", ch.ID(), msg)
				}
			}
		}
	}

	unreachable := g.unreachable()
	if len(problems) == 0 && len(unreachable) == 0 {
		return nil
	}
	return &IntegrityError{Problems: problems, Unreachable: unreachable}
}

func checkEffect(e models.Effect) string {
	switch {
	case (e.Set == "") == (e.Add == ""):
		return "effect must have exactly one of set or add"
	case e.Set != "" && models.IsIntFlag(e.Set):
		return fmt.Sprintf("cannot set integer flag %q", e.Set)
	case e.Add != "" && models.IsBoolFlag(e.Add):
		return fmt.Sprintf("cannot add to boolean flag %q", e.Add)
	case e.Add != "" && e.By == 0:
		return fmt.Sprintf("add to %q has no amount", e.Add)
	}
	return ""
}

// sceneOrderWithOrphans lists scene ids in content order followed by any
// source scene that only exists on a choice.
func (g *Graph) sceneOrderWithOrphans() []string {
	ids := append([]string(nil), g.sceneOrder...)
	for from := range g.outgoing {
		if _, ok := g.scenes[from]; !ok {
			ids = append(ids, from)
		}
	}
	return ids
}

// Reachable returns the set of scenes reachable from the start scene by
// breadth-first search over choices, ignoring item gates.
func (g *Graph) Reachable() map[string]bool {
	seen := make(map[string]bool, len(g.scenes))
	if _, ok := g.scenes[g.start]; !ok {
		return seen
	}
	queue := []string{g.start}
	seen[g.start] = true
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, ch := range g.outgoing[cur] {
			if _, ok := g.scenes[ch.To]; !ok || seen[ch.To] {
				continue
			}
			seen[ch.To] = true
			queue = append(queue, ch.To)
		}
	}
	return seen
}

func (g *Graph) unreachable() []string {
	seen := g.Reachable()
	var out []string
	for _, id := range g.sceneOrder {
		if !seen[id] {
			out = append(out, id)
		}
	}
	for _, id := range g.itemOrder {
		if scene := g.items[id].FoundInScene; !seen[scene] {
			out = append(out, id)
		}
	}
	return out
}
