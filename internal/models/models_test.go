package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestAddItemIsIdempotent(t *testing.T) {
	state := NewGameState("g1", SessionIdentity("abc"), "01", time.Now())

	assert.True(t, state.AddItem("ITEM_001"))
	once := state.Clone()
	assert.False(t, state.AddItem("ITEM_001"))

	assert.Equal(t, once.Inventory, state.Inventory)
	assert.Equal(t, 1, state.ItemsCollected)
	assert.True(t, state.HasItem("ITEM_001"))
	assert.False(t, state.HasItem("ITEM_002"))
}

func TestVisitKeepsFirstVisitOrder(t *testing.T) {
	state := NewGameState("g1", SessionIdentity("abc"), "01", time.Now())
	state.Visit("02")
	state.Visit("01")
	state.Visit("03")
	state.Visit("02")

	assert.Equal(t, []string{"01", "02", "03"}, state.Visited)
}

func TestCompleteFreezesFirstEnding(t *testing.T) {
	state := NewGameState("g1", UserIdentity("7"), "01", time.Now())

	assert.True(t, state.Complete("E3", time.Now()))
	assert.False(t, state.Complete("E1", time.Now()))
	assert.True(t, state.IsComplete)
	assert.Equal(t, "E3", state.EndingReached)
}

func TestHasProgress(t *testing.T) {
	state := NewGameState("g1", UserIdentity("7"), "01", time.Now())
	assert.False(t, state.HasProgress())

	state.ChoicesMade = 1
	assert.True(t, state.HasProgress())
}

func TestCloneDoesNotShareStorage(t *testing.T) {
	state := NewGameState("g1", UserIdentity("7"), "01", time.Now())
	state.AddItem("ITEM_001")
	state.Flags.Set("lever_pulled")

	clone := state.Clone()
	clone.AddItem("ITEM_002")
	clone.Flags.Set("gate_open")
	clone.Visit("02")

	assert.Equal(t, []string{"ITEM_001"}, state.Inventory)
	assert.Equal(t, []string{"01"}, state.Visited)
	assert.False(t, state.Flags.Bool("gate_open"))
}

func TestIdentityValidate(t *testing.T) {
	tests := []struct {
		name    string
		id      Identity
		wantErr bool
	}{
		{"user", UserIdentity("42"), false},
		{"session", SessionIdentity("s3ss10n"), false},
		{"neither", Identity{}, true},
		{"both", Identity{UserID: "42", SessionKey: "s3ss10n"}, true},
		{"blank user", UserIdentity("   "), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.id.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidIdentity)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	assert.Equal(t, "user:42", UserIdentity("42").String())
	assert.Equal(t, KindSession, SessionIdentity("x").Kind())
}

func TestFlagsRouteKnownAndOverflowNames(t *testing.T) {
	var f Flags
	f.Set(FlagDragonBefriended)
	f.Set("found_secret_door")
	f.Add(FlagChaosLevel, 6)
	f.Add(FlagChaosLevel, 6)
	f.Add(FlagNPCRelations, -5)
	f.Add("gold", 3)

	assert.True(t, f.DragonBefriended)
	assert.True(t, f.Bool("found_secret_door"))
	assert.Equal(t, 12, f.ChaosLevel)
	assert.Equal(t, -5, f.Int(FlagNPCRelations))
	assert.Equal(t, 3, f.Counters["gold"])
	assert.False(t, f.AllNPCsBefriended())

	f.Apply(Effect{Set: FlagTrollBefriended})
	f.Apply(Effect{Set: FlagWizardHelped})
	assert.True(t, f.AllNPCsBefriended())
}

func TestGameStateYAML(t *testing.T) {
	state := NewGameState("g1", SessionIdentity("abc"), "01", time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC))
	state.AddItem("ITEM_004")
	state.Flags.Set(FlagWizardHelped)
	state.Flags.Add("gold", 2)

	data, err := yaml.Marshal(state)
	require.NoError(t, err)

	var got GameState
	require.NoError(t, yaml.Unmarshal(data, &got))

	assert.Equal(t, state.Owner, got.Owner)
	assert.Equal(t, state.Inventory, got.Inventory)
	assert.True(t, got.Flags.WizardHelped)
	assert.Equal(t, 2, got.Flags.Int("gold"))
	assert.True(t, state.StartedAt.Equal(got.StartedAt))
}
