package models

// Flag names consulted by the ending rules.
const (
	FlagDragonBefriended = "dragon_befriended"
	FlagTrollBefriended  = "troll_befriended"
	FlagWizardHelped     = "wizard_helped"
	FlagSatOnThrone      = "sat_on_throne"
	FlagKilledNPCs       = "killed_npcs"
	FlagChaosLevel       = "chaos_level"
	FlagNPCRelations     = "npc_relations"
)

// Flags is the world state recorded by story effects. The flags the ending
// rules read are fields; anything else new content invents lands in
// Markers (booleans) or Counters (integers). Boolean flags are only ever set,
// never cleared.
type Flags struct {
	DragonBefriended bool `yaml:"dragon_befriended,omitempty" json:"dragon_befriended,omitempty"`
	TrollBefriended  bool `yaml:"troll_befriended,omitempty" json:"troll_befriended,omitempty"`
	WizardHelped     bool `yaml:"wizard_helped,omitempty" json:"wizard_helped,omitempty"`
	SatOnThrone      bool `yaml:"sat_on_throne,omitempty" json:"sat_on_throne,omitempty"`
	KilledNPCs       bool `yaml:"killed_npcs,omitempty" json:"killed_npcs,omitempty"`
	ChaosLevel       int  `yaml:"chaos_level,omitempty" json:"chaos_level,omitempty"`
	NPCRelations     int  `yaml:"npc_relations,omitempty" json:"npc_relations,omitempty"`

	Markers  map[string]bool `yaml:"markers,omitempty" json:"markers,omitempty"`
	Counters map[string]int  `yaml:"counters,omitempty" json:"counters,omitempty"`
}

// IsBoolFlag reports whether name is a known boolean flag.
func IsBoolFlag(name string) bool {
	switch name {
	case FlagDragonBefriended, FlagTrollBefriended, FlagWizardHelped, FlagSatOnThrone, FlagKilledNPCs:
		return true
	}
	return false
}

// IsIntFlag reports whether name is a known integer flag.
func IsIntFlag(name string) bool {
	return name == FlagChaosLevel || name == FlagNPCRelations
}

// AllNPCsBefriended is true once the dragon, the troll and the wizard are all
// on the player's side.
func (f Flags) AllNPCsBefriended() bool {
	return f.DragonBefriended && f.TrollBefriended && f.WizardHelped
}

func (f Flags) Bool(name string) bool {
	switch name {
	case FlagDragonBefriended:
		return f.DragonBefriended
	case FlagTrollBefriended:
		return f.TrollBefriended
	case FlagWizardHelped:
		return f.WizardHelped
	case FlagSatOnThrone:
		return f.SatOnThrone
	case FlagKilledNPCs:
		return f.KilledNPCs
	}
	return f.Markers[name]
}

func (f Flags) Int(name string) int {
	switch name {
	case FlagChaosLevel:
		return f.ChaosLevel
	case FlagNPCRelations:
		return f.NPCRelations
	}
	return f.Counters[name]
}

// Set marks a boolean flag true.
func (f *Flags) Set(name string) {
	switch name {
	case FlagDragonBefriended:
		f.DragonBefriended = true
	case FlagTrollBefriended:
		f.TrollBefriended = true
	case FlagWizardHelped:
		f.WizardHelped = true
	case FlagSatOnThrone:
		f.SatOnThrone = true
	case FlagKilledNPCs:
		f.KilledNPCs = true
	default:
		if f.Markers == nil {
			f.Markers = make(map[string]bool)
		}
		f.Markers[name] = true
	}
}

// Add adds delta to an integer flag.
func (f *Flags) Add(name string, delta int) {
	switch name {
	case FlagChaosLevel:
		f.ChaosLevel += delta
	case FlagNPCRelations:
		f.NPCRelations += delta
	default:
		if f.Counters == nil {
			f.Counters = make(map[string]int)
		}
		f.Counters[name] += delta
	}
}

// Apply applies a choice effect.
func (f *Flags) Apply(e Effect) {
	if e.Set != "" {
		f.Set(e.Set)
		return
	}
	if e.Add != "" {
		f.Add(e.Add, e.By)
	}
}

// Clone returns a deep copy.
func (f Flags) Clone() Flags {
	out := f
	if f.Markers != nil {
		out.Markers = make(map[string]bool, len(f.Markers))
		for k, v := range f.Markers {
			out.Markers[k] = v
		}
	}
	if f.Counters != nil {
		out.Counters = make(map[string]int, len(f.Counters))
		for k, v := range f.Counters {
			out.Counters[k] = v
		}
	}
	return out
}
