package helper

import (
	"slices"

	"github.com/yourorg/trainlink/internal/config"
	"github.com/yourorg/trainlink/pkg/types"
)

const (
	maxBond = 100

	trainingBondGain = 7
	friendBondBonus  = 4
	charmBondBonus   = 2
	tipBondGain      = 5
	rainbowBond      = 80

	// Only partners in deck positions 1..6 can trigger a tip.
	maxTipPartner = 6
)

// partner is one training partner as seen at the start of the turn.
type partner struct {
	id   int64
	bond int64
	card *types.SupportCard
}

// bondRules evaluates bond gains for one turn.
type bondRules struct {
	rules    config.RulesConfig
	scenario int64
	effects  map[int64]bool
}

func newBondRules(rules config.RulesConfig, scenario int64, effects []int64) bondRules {
	set := make(map[int64]bool, len(effects))
	for _, e := range effects {
		set[e] = true
	}
	return bondRules{rules: rules, scenario: scenario, effects: set}
}

func (b bondRules) active(effect int64) bool {
	return effect != 0 && b.effects[effect]
}

func (b bondRules) charm() bool {
	for _, id := range b.rules.CharmEffectIDs {
		if b.active(id) {
			return true
		}
	}
	return false
}

// TrainingGain is the raw bond a partner gains from training together,
// capped so the bond never exceeds 100.
func (b bondRules) TrainingGain(p partner) int64 {
	gain := int64(trainingBondGain)
	if p.card != nil && p.card.IsFriendLike() {
		gain += friendBondBonus
	}
	if b.charm() {
		gain += charmBondBonus
	}
	return capGain(p.bond, gain)
}

// TipGain is the bond a tip event grants on top of start.
func (b bondRules) TipGain(p partner, start int64) int64 {
	if p.id < 1 || p.id > maxTipPartner {
		return 0
	}
	return capGain(start, tipBondGain)
}

// Useful is the part of a gain from start that lands below the partner's
// usefulness cutoff.
func (b bondRules) Useful(p partner, start, gain int64) int64 {
	if p.card != nil && p.card.IsFriendLike() && !b.exception(p.card.ID) {
		return 0
	}
	return UsefulGain(start, gain, b.cutoff(p))
}

func (b bondRules) cutoff(p partner) int64 {
	if p.card != nil {
		if c, ok := b.rules.CutoffOverrides[p.card.ID]; ok {
			return c
		}
	}
	if b.rules.UsefulCutoff > 0 {
		return b.rules.UsefulCutoff
	}
	return 80
}

func (b bondRules) exception(cardID int64) bool {
	return slices.ContainsFunc(b.rules.FriendExceptions, func(e config.FriendException) bool {
		return e.CardID == cardID && e.ScenarioID == b.scenario
	})
}

// Rainbow reports whether p triggers the triple-support bonus on a facility
// training the given target type. An active group zone passive counts at any
// bond. The double-rainbow passive is read as waiving only the type match,
// not the bond requirement: an off-type partner rainbows under it only at
// bond 80 or more.
func (b bondRules) Rainbow(p partner, target int64) bool {
	if p.card == nil {
		return false
	}
	if p.card.Kind == types.SupportGroup {
		if effect, ok := b.rules.GroupZoneEffects[p.card.ID]; ok && b.active(effect) {
			return true
		}
	}
	if p.bond < rainbowBond {
		return false
	}
	if facilityStat[p.card.CommandID] == target && target != 0 {
		return true
	}
	return b.active(b.rules.DoubleRainbowPassive)
}

// TipsSum reports whether every tip gain counts instead of only the largest.
func (b bondRules) TipsSum() bool {
	return b.active(b.rules.BlueTipPassive)
}

// UsefulGain returns max(0, min(start+gain, cutoff) - start).
func UsefulGain(start, gain, cutoff int64) int64 {
	if start < 0 {
		start = 0
	}
	end := start + gain
	if end > cutoff {
		end = cutoff
	}
	if end < start {
		return 0
	}
	return end - start
}

func capGain(start, gain int64) int64 {
	if start+gain > maxBond {
		gain = maxBond - start
	}
	if gain < 0 {
		return 0
	}
	return gain
}
