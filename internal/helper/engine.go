// Package helper computes the per-facility training table for one turn and
// renders it as the HTML fragment injected into the helper page.
package helper

import (
	"log/slog"

	"github.com/yourorg/trainlink/internal/config"
	"github.com/yourorg/trainlink/pkg/types"
)

// Target type codes of params_inc_dec_info_array.
const (
	targetSpeed      int64 = 1
	targetStamina    int64 = 2
	targetPower      int64 = 3
	targetGuts       int64 = 4
	targetWisdom     int64 = 5
	targetEnergy     int64 = 10
	targetSkillPoint int64 = 30
)

// StatPerEnergyUndefined marks a facility that does not consume energy.
const StatPerEnergyUndefined = -1.0

// A full star gauge no longer grows from training together.
const maxStarGauge = 3

type CardLookup interface {
	SupportCard(id int64) (types.SupportCard, error)
}

// Aggregate is the computed outcome of training at one facility.
type Aggregate struct {
	Facility      *Facility
	Gained        types.Stats
	TotalBond     int64
	UsefulBond    int64
	Rainbows      int64
	StatPerEnergy float64
	StarGauge     *int64
}

// StatTotal is the sum of the five stat gains.
func (a Aggregate) StatTotal() int64 {
	g := a.Gained
	return g.Speed + g.Stamina + g.Power + g.Guts + g.Wisdom
}

// Result is the helper table for one turn.
type Result struct {
	Turn              int64
	ScenarioID        int64
	Current           types.Stats
	Delta             types.Stats
	MaxEnergy         int64
	Facilities        []Aggregate
	RequiredSportRank int64
	// SportRanks is the current rank per stable facility id.
	SportRanks map[int64]int64
}

// Facility returns the aggregate for a stable facility id.
func (r *Result) Facility(id int64) (Aggregate, bool) {
	for _, a := range r.Facilities {
		if a.Facility.ID == id {
			return a, true
		}
	}
	return Aggregate{}, false
}

type Engine struct {
	rules  config.RulesConfig
	rows   []config.RowConfig
	cards  CardLookup
	logger *slog.Logger
}

func New(rules config.RulesConfig, rows []config.RowConfig, cards CardLookup, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if len(rows) == 0 {
		rows = config.DefaultRows()
	}
	return &Engine{rules: rules, rows: rows, cards: cards, logger: logger}
}

// Compute derives the helper table from the current training-state message.
// prev, when it is also a training state, supplies the stat deltas since the
// previous turn.
func (e *Engine) Compute(cur, prev types.Message) (*Result, error) {
	t, err := ParseTurn(cur)
	if err != nil {
		return nil, err
	}
	var pt *Turn
	if prev != nil && prev.Has("chara_info") {
		if pt, err = ParseTurn(prev); err != nil {
			e.logger.Debug("previous turn unreadable", "error", err)
			pt = nil
		}
	}
	return e.ComputeTurn(t, pt), nil
}

// ComputeTurn is Compute over already projected turns.
func (e *Engine) ComputeTurn(t, prev *Turn) *Result {
	c := t.Chara
	res := &Result{
		Turn:       c.Turn,
		ScenarioID: c.ScenarioID,
		Current:    c.Stats(),
		MaxEnergy:  c.MaxVital,
	}
	if prev != nil {
		res.Delta = res.Current.Sub(prev.Chara.Stats())
	}

	rules := newBondRules(e.rules, c.ScenarioID, c.Effects)
	partners := e.partners(t)
	facilities := Merge(t, e.rules.FacilityAliases)
	for _, id := range FacilityOrder {
		f, ok := facilities[id]
		if !ok {
			continue
		}
		res.Facilities = append(res.Facilities, e.aggregate(t, f, rules, partners))
	}

	if t.Sport != nil {
		res.RequiredSportRank = RequiredSportRank(e.rules.SportRankRequirements, c.Turn)
		res.SportRanks = make(map[int64]int64, len(t.Sport.Training))
		for _, tr := range t.Sport.Training {
			id, ok := Canonical(tr.CommandID, e.rules.FacilityAliases)
			if !ok {
				id = tr.CommandID
			}
			res.SportRanks[id] = tr.SportRank
		}
	}
	return res
}

// partners resolves every partner id known this turn to its bond and card.
func (e *Engine) partners(t *Turn) func(id int64) partner {
	bonds := make(map[int64]int64, len(t.Chara.Evaluations))
	for _, ev := range t.Chara.Evaluations {
		bonds[ev.TargetID] = ev.Evaluation
	}
	deck := t.Chara.SupportIDs()
	cards := make(map[int64]*types.SupportCard)
	return func(id int64) partner {
		p := partner{id: id, bond: bonds[id]}
		if id < 1 || id > 6 || deck[id-1] == 0 || e.cards == nil {
			return p
		}
		if card, ok := cards[id]; ok {
			p.card = card
			return p
		}
		card, err := e.cards.SupportCard(deck[id-1])
		if err != nil {
			e.logger.Error("support card lookup failed", "card_id", deck[id-1], "error", err)
			cards[id] = nil
			return p
		}
		cards[id] = &card
		p.card = &card
		return p
	}
}

func (e *Engine) aggregate(t *Turn, f *Facility, rules bondRules, partnerOf func(int64) partner) Aggregate {
	a := Aggregate{Facility: f, StarGauge: f.StarGauge}
	for _, p := range f.Params {
		switch p.TargetType {
		case targetSpeed:
			a.Gained.Speed += p.Value
		case targetStamina:
			a.Gained.Stamina += p.Value
		case targetPower:
			a.Gained.Power += p.Value
		case targetGuts:
			a.Gained.Guts += p.Value
		case targetWisdom:
			a.Gained.Wisdom += p.Value
		case targetEnergy:
			a.Gained.Energy += p.Value
		case targetSkillPoint:
			a.Gained.SkillPoint += p.Value
		}
	}
	a.Gained.Energy = ClampEnergy(a.Gained.Energy, t.Chara.Vital, t.Chara.MaxVital)
	a.StatPerEnergy = StatPerEnergy(a.StatTotal(), a.Gained.Energy)

	target := facilityStat[f.ID]
	trained := make(map[int64]int64, len(f.Partners))
	for _, id := range f.Partners {
		if _, dup := trained[id]; dup {
			continue
		}
		p := partnerOf(id)
		gain := rules.TrainingGain(p)
		trained[id] = gain
		a.TotalBond += gain
		a.UsefulBond += rules.Useful(p, p.bond, gain)
		if rules.Rainbow(p, target) {
			a.Rainbows++
		}
	}

	var sumGain, sumUseful, maxGain, maxUseful int64
	tipped := make(map[int64]bool, len(f.TipPartners))
	for _, id := range f.TipPartners {
		if tipped[id] {
			continue
		}
		tipped[id] = true
		p := partnerOf(id)
		start := p.bond + trained[id]
		gain := rules.TipGain(p, start)
		if gain == 0 {
			continue
		}
		useful := rules.Useful(p, start, gain)
		sumGain += gain
		sumUseful += useful
		if gain > maxGain || (gain == maxGain && useful > maxUseful) {
			maxGain, maxUseful = gain, useful
		}
	}
	if rules.TipsSum() {
		a.TotalBond += sumGain
		a.UsefulBond += sumUseful
	} else {
		a.TotalBond += maxGain
		a.UsefulBond += maxUseful
	}

	if t.Arc != nil && f.ID != FacilityMatch {
		var n int64
		for id := range trained {
			for _, ev := range t.Arc.Evaluations {
				if ev.TargetID == id && ev.StarGauge < maxStarGauge {
					n++
				}
			}
		}
		a.StarGauge = &n
	}
	return a
}

// ClampEnergy limits an energy gain to the room left below max energy.
func ClampEnergy(gain, vital, maxVital int64) int64 {
	room := maxVital - vital
	if room < 0 {
		room = 0
	}
	if gain > room {
		return room
	}
	return gain
}

// StatPerEnergy is stats gained per point of energy spent, or
// StatPerEnergyUndefined when the facility costs no energy.
func StatPerEnergy(stats, energy int64) float64 {
	if energy >= 0 {
		return StatPerEnergyUndefined
	}
	return float64(stats) / float64(-energy)
}

// RequiredSportRank returns the rank the next competition requires at turn,
// or 0 after the last competition.
func RequiredSportRank(reqs []config.RankRequirement, turn int64) int64 {
	for _, r := range reqs {
		if turn <= r.UntilTurn {
			return r.Rank
		}
	}
	return 0
}
