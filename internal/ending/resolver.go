// Package ending maps a finished game's inventory and flags to exactly one
// ending. Rules form an ordered cascade: the first rule that matches wins,
// whatever scene the player finished in.
package ending

import (
	"fmt"
	"slices"

	"github.com/tatianab/castle-adventure/internal/models"
)

const (
	HeroicRescue   = "E1"
	TragicBetrayal = "E2"
	MutualEscape   = "E3"
	CastleCollapse = "E4"
	TrueKing       = "E5"
)

const (
	// CooperativeItem must be carried for the mutual escape.
	CooperativeItem = "ITEM_004"
	// CompletionistItems is how many distinct items the true king holds.
	CompletionistItems = 8
	// ChaosThreshold is exceeded by a castle collapse.
	ChaosThreshold = 10
)

// Rule pairs a condition with the ending it selects.
type Rule struct {
	Ending string
	Name   string
	Match  func(inventory []string, flags models.Flags) bool
}

// Resolver evaluates rules top to bottom and falls back to a default ending.
type Resolver struct {
	rules    []Rule
	fallback string
}

func NewResolver(rules []Rule, fallback string) *Resolver {
	return &Resolver{rules: rules, fallback: fallback}
}

// Default is the castle's fixed ending policy.
func Default() *Resolver {
	return NewResolver(DefaultRules(), HeroicRescue)
}

func DefaultRules() []Rule {
	return []Rule{
		{
			Ending: TrueKing,
			Name:   "every item, every friend, and the throne",
			Match: func(inv []string, f models.Flags) bool {
				return distinct(inv) == CompletionistItems && f.AllNPCsBefriended() && f.SatOnThrone
			},
		},
		{
			Ending: CastleCollapse,
			Name:   "chaos above threshold",
			Match: func(_ []string, f models.Flags) bool {
				return f.ChaosLevel > ChaosThreshold
			},
		},
		{
			Ending: MutualEscape,
			Name:   "dragon amulet and every friend",
			Match: func(inv []string, f models.Flags) bool {
				return slices.Contains(inv, CooperativeItem) && f.AllNPCsBefriended()
			},
		},
		{
			Ending: TragicBetrayal,
			Name:   "soured relations or blood on your hands",
			Match: func(_ []string, f models.Flags) bool {
				return f.NPCRelations < 0 || f.KilledNPCs
			},
		},
	}
}

// Determine returns the ending for the state. It reads only the inventory
// and flags.
func (r *Resolver) Determine(state *models.GameState) string {
	for _, rule := range r.rules {
		if rule.Match(state.Inventory, state.Flags) {
			return rule.Ending
		}
	}
	return r.fallback
}

// Outcomes lists every ending the resolver can produce, in priority order.
func (r *Resolver) Outcomes() []string {
	out := make([]string, 0, len(r.rules)+1)
	for _, rule := range r.rules {
		out = append(out, rule.Ending)
	}
	return append(out, r.fallback)
}

// EndingLookup is the slice of the story graph the resolver checks against.
type EndingLookup interface {
	Ending(id string) (models.Ending, error)
}

// Check verifies that every outcome exists in the story content.
func (r *Resolver) Check(endings EndingLookup) error {
	for _, id := range r.Outcomes() {
		if _, err := endings.Ending(id); err != nil {
			return fmt.Errorf("ending rules refer to %q: %w", id, err)
		}
	}
	return nil
}

func distinct(ids []string) int {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	return len(seen)
}

