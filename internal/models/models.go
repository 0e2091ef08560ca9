package models

import (
	"fmt"
	"time"
)

// SceneCategory classifies a scene in the story graph.
type SceneCategory string

const (
	CategoryStory  SceneCategory = "story"
	CategoryDeath  SceneCategory = "death"
	CategoryEnding SceneCategory = "ending"
	CategoryHub    SceneCategory = "hub"
)

// Scene is a node of the story graph.
type Scene struct {
	ID          string        `yaml:"id" json:"id"`
	Title       string        `yaml:"title" json:"title"`
	Description string        `yaml:"description" json:"description"`
	Category    SceneCategory `yaml:"category" json:"category"`
	IsEnding    bool          `yaml:"ending,omitempty" json:"is_ending"`
	IsDeath     bool          `yaml:"death,omitempty" json:"is_death"`
}

// Terminal reports whether the scene is allowed to have no outgoing choices.
func (s Scene) Terminal() bool {
	return s.IsEnding || s.IsDeath
}

// Item is a collectible that may gate choices.
type Item struct {
	ID           string `yaml:"id" json:"id"`
	Name         string `yaml:"name" json:"name"`
	Description  string `yaml:"description" json:"description"`
	FoundInScene string `yaml:"found_in" json:"found_in_scene"`
	Icon         string `yaml:"icon,omitempty" json:"icon,omitempty"`
	IsCritical   bool   `yaml:"critical,omitempty" json:"is_critical"`
	IsConsumable bool   `yaml:"consumable,omitempty" json:"is_consumable"`
	IsTrap       bool   `yaml:"trap,omitempty" json:"is_trap"`
}

// Effect changes one flag when its choice is taken. Exactly one of Set or
// Add is used: Set marks a boolean flag true, Add adds By to an integer flag.
type Effect struct {
	Set string `yaml:"set,omitempty" json:"set,omitempty"`
	Add string `yaml:"add,omitempty" json:"add,omitempty"`
	By  int    `yaml:"by,omitempty" json:"by,omitempty"`
}

func (e Effect) String() string {
	if e.Set != "" {
		return "set " + e.Set
	}
	return fmt.Sprintf("add %d to %s", e.By, e.Add)
}

// Choice is a labelled, directed edge between two scenes.
type Choice struct {
	From         string   `yaml:"from" json:"from_scene"`
	To           string   `yaml:"to" json:"to_scene"`
	Label        string   `yaml:"label" json:"label"`
	Text         string   `yaml:"text" json:"text"`
	RequiresItem string   `yaml:"requires,omitempty" json:"requires_item,omitempty"`
	Order        int      `yaml:"order,omitempty" json:"order"`
	Effects      []Effect `yaml:"effects,omitempty" json:"effects,omitempty"`
}

// ID identifies the choice across the whole graph, e.g. "01-A".
func (c Choice) ID() string {
	return ChoiceID(c.From, c.Label)
}

// ChoiceSeparator joins a scene id and a label into a choice id. Scene ids
// must not contain it.
const ChoiceSeparator = "-"

// ChoiceID builds the identifier of the choice labelled label in scene from.
func ChoiceID(from, label string) string {
	return from + ChoiceSeparator + label
}

// EndingCategory classifies an ending.
type EndingCategory string

const (
	EndingVictory  EndingCategory = "victory"
	EndingDefeat   EndingCategory = "defeat"
	EndingBetrayal EndingCategory = "betrayal"
	EndingComedy   EndingCategory = "comedy"
	EndingSecret   EndingCategory = "secret"
)

// Ending describes a terminal outcome. Requirements is informational; the
// actual rules live in the ending resolver.
type Ending struct {
	ID           string         `yaml:"id" json:"id"`
	Title        string         `yaml:"title" json:"title"`
	Description  string         `yaml:"description" json:"description"`
	Category     EndingCategory `yaml:"category" json:"category"`
	Icon         string         `yaml:"icon,omitempty" json:"icon,omitempty"`
	Achievement  string         `yaml:"achievement,omitempty" json:"achievement,omitempty"`
	IsSecret     bool           `yaml:"secret,omitempty" json:"is_secret"`
	Requirements string         `yaml:"requirements,omitempty" json:"requirements,omitempty"`
}

// EndingUnlock records that an owner reached an ending at least once.
type EndingUnlock struct {
	Owner      Identity  `yaml:"owner" json:"owner"`
	EndingID   string    `yaml:"ending_id" json:"ending_id"`
	UnlockedAt time.Time `yaml:"unlocked_at" json:"unlocked_at"`
}
