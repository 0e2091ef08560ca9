package models

import (
	"slices"
	"time"
)

// GameState is one player's progress through the story.
type GameState struct {
	ID           string   `yaml:"id" json:"id"`
	Owner        Identity `yaml:"owner" json:"owner"`
	CurrentScene string   `yaml:"current_scene" json:"current_scene"`
	Inventory    []string `yaml:"inventory" json:"inventory"`
	Visited      []string `yaml:"visited_scenes" json:"visited_scenes"`
	Flags        Flags    `yaml:"flags" json:"flags"`

	ChoicesMade    int `yaml:"choices_made" json:"choices_made"`
	Deaths         int `yaml:"deaths" json:"deaths"`
	ItemsCollected int `yaml:"items_collected" json:"items_collected"`

	IsComplete    bool   `yaml:"is_complete" json:"is_complete"`
	EndingReached string `yaml:"ending_reached,omitempty" json:"ending_reached,omitempty"`

	StartedAt time.Time `yaml:"started_at" json:"started_at"`
	UpdatedAt time.Time `yaml:"updated_at" json:"updated_at"`
}

// NewGameState starts a fresh game at the given scene.
func NewGameState(id string, owner Identity, startScene string, now time.Time) *GameState {
	return &GameState{
		ID:           id,
		Owner:        owner,
		CurrentScene: startScene,
		Inventory:    []string{},
		Visited:      []string{startScene},
		StartedAt:    now,
		UpdatedAt:    now,
	}
}

func (s *GameState) HasItem(itemID string) bool {
	return slices.Contains(s.Inventory, itemID)
}

// AddItem appends the item once; repeated calls are no-ops.
func (s *GameState) AddItem(itemID string) bool {
	if s.HasItem(itemID) {
		return false
	}
	s.Inventory = append(s.Inventory, itemID)
	s.ItemsCollected++
	return true
}

func (s *GameState) HasVisited(sceneID string) bool {
	return slices.Contains(s.Visited, sceneID)
}

// Visit records the scene once, keeping first-visit order.
func (s *GameState) Visit(sceneID string) {
	if !s.HasVisited(sceneID) {
		s.Visited = append(s.Visited, sceneID)
	}
}

// HasProgress is true when replacing the state would throw something away.
func (s *GameState) HasProgress() bool {
	return len(s.Inventory) > 0 || s.ChoicesMade > 0 || s.ItemsCollected > 0 || s.Deaths > 0
}

// Complete freezes the state with its ending. Completing twice keeps the
// first ending.
func (s *GameState) Complete(endingID string, now time.Time) bool {
	if s.IsComplete {
		return false
	}
	s.IsComplete = true
	s.EndingReached = endingID
	s.UpdatedAt = now
	return true
}

// Clone returns a deep copy so callers can mutate without sharing slices.
func (s *GameState) Clone() *GameState {
	out := *s
	out.Inventory = slices.Clone(s.Inventory)
	out.Visited = slices.Clone(s.Visited)
	out.Flags = s.Flags.Clone()
	return &out
}
