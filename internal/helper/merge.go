package helper

import "sort"

// Stable facility ids of the five stat trainings, plus the synthesized match.
const (
	FacilitySpeed   int64 = 101
	FacilityPower   int64 = 102
	FacilityGuts    int64 = 103
	FacilityStamina int64 = 105
	FacilityWisdom  int64 = 106
	FacilityMatch   int64 = 1000
)

// FacilityOrder is the display order of facilities.
var FacilityOrder = []int64{FacilitySpeed, FacilityStamina, FacilityPower, FacilityGuts, FacilityWisdom, FacilityMatch}

var facilityNames = map[int64]string{
	FacilitySpeed:   "Speed",
	FacilityStamina: "Stamina",
	FacilityPower:   "Power",
	FacilityGuts:    "Guts",
	FacilityWisdom:  "Wisdom",
	FacilityMatch:   "Match",
}

func FacilityName(id int64) string {
	if n, ok := facilityNames[id]; ok {
		return n
	}
	return "Facility"
}

// facilityStat maps a stable facility to the target type it trains.
var facilityStat = map[int64]int64{
	FacilitySpeed:   targetSpeed,
	FacilityStamina: targetStamina,
	FacilityPower:   targetPower,
	FacilityGuts:    targetGuts,
	FacilityWisdom:  targetWisdom,
}

// Fragment is the grandmaster spirit a facility would grant.
type Fragment struct {
	SpiritID int64
	Boost    bool
}

// Facility is one trainable facility with every scenario's contribution
// attached. Scenario fields stay nil when their block is absent.
type Facility struct {
	ID          int64
	CommandID   int64
	Level       int64
	FailureRate int64
	Enabled     bool
	Partners    []int64
	TipPartners []int64
	Params      []ParamDelta

	Tokens     map[int64]int64
	Fragment   *Fragment
	Aptitude   *int64
	StarGauge  *int64
	SportRank  map[int64]int64
	CookPoints *int64
	Materials  map[int64]int64
	PointUps   map[int64]int64
}

// Canonical resolves a scenario command id to its stable facility id.
func Canonical(id int64, aliases map[int64]int64) (int64, bool) {
	if _, ok := facilityNames[id]; ok && id != FacilityMatch {
		return id, true
	}
	if stable, ok := aliases[id]; ok {
		return stable, true
	}
	return 0, false
}

// Merge folds the default command array and every scenario command array
// into one facility per stable id. Stat deltas from several sources are
// concatenated.
func Merge(t *Turn, aliases map[int64]int64) map[int64]*Facility {
	out := make(map[int64]*Facility)
	get := func(commandID int64) *Facility {
		id, ok := Canonical(commandID, aliases)
		if !ok {
			return nil
		}
		f, ok := out[id]
		if !ok {
			f = &Facility{ID: id, CommandID: commandID, Enabled: true}
			out[id] = f
		}
		return f
	}

	for _, c := range t.Home.Commands {
		f := get(c.CommandID)
		if f == nil {
			continue
		}
		f.Level = c.Level
		f.FailureRate = c.FailureRate
		f.Enabled = c.IsEnable != 0
		f.Partners = append(f.Partners, c.Partners...)
		f.TipPartners = append(f.TipPartners, c.TipPartners...)
		f.Params = append(f.Params, c.Params...)
	}

	for _, set := range []*DataSet{t.Team, t.Live, t.Cook, t.Mecha} {
		if set != nil {
			mergeScenario(set.Commands, get)
		}
	}
	if t.Sport != nil {
		mergeScenario(t.Sport.Commands, get)
	}
	if t.Arc != nil {
		mergeScenario(t.Arc.Commands, get)
		mergeMatch(t, out)
	}
	if t.Venus != nil {
		for _, c := range t.Venus.Commands {
			if f := get(c.CommandID); f != nil {
				f.Fragment = &Fragment{SpiritID: c.SpiritID, Boost: c.IsBoost != 0}
			}
		}
	}
	return out
}

func mergeScenario(cmds []ScenarioCommand, get func(int64) *Facility) {
	for _, c := range cmds {
		f := get(c.CommandID)
		if f == nil {
			continue
		}
		f.Params = append(f.Params, c.Params...)
		if len(c.Performance) > 0 {
			if f.Tokens == nil {
				f.Tokens = make(map[int64]int64)
			}
			for _, p := range c.Performance {
				f.Tokens[p.PerformanceType] += p.Value
			}
		}
		if c.GlobalExp != nil {
			f.Aptitude = addPtr(f.Aptitude, *c.GlobalExp)
		}
		if len(c.SportRank) > 0 {
			if f.SportRank == nil {
				f.SportRank = make(map[int64]int64)
			}
			for _, g := range c.SportRank {
				f.SportRank[g.CommandID] += g.GainRank
			}
		}
		if c.CookPoint != nil {
			f.CookPoints = addPtr(f.CookPoints, *c.CookPoint)
		}
		if len(c.Materials) > 0 {
			if f.Materials == nil {
				f.Materials = make(map[int64]int64)
			}
			for _, m := range c.Materials {
				f.Materials[m.MaterialID] += m.Num
			}
		}
		if len(c.PointUps) > 0 {
			if f.PointUps == nil {
				f.PointUps = make(map[int64]int64)
			}
			for _, p := range c.PointUps {
				f.PointUps[p.StatusType] += p.Value
			}
		}
	}
}

// mergeMatch synthesizes the multi-opponent match facility from the
// crossover-race selection block.
func mergeMatch(t *Turn, out map[int64]*Facility) {
	sel := t.Arc.Selection
	if sel == nil || len(sel.Rivals) == 0 {
		return
	}
	apt := sel.AllWinApprovalPoint
	gauge := int64(len(sel.Rivals))
	out[FacilityMatch] = &Facility{
		ID:        FacilityMatch,
		CommandID: FacilityMatch,
		Enabled:   true,
		Params:    append([]ParamDelta(nil), sel.Params...),
		Aptitude:  &apt,
		StarGauge: &gauge,
	}
}

func addPtr(p *int64, v int64) *int64 {
	n := v
	if p != nil {
		n += *p
	}
	return &n
}

// sortedKeys returns m's keys in ascending order.
func sortedKeys(m map[int64]int64) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
