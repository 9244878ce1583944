package interp

import (
	"context"
	"strings"

	"github.com/yourorg/trainlink/internal/helper"
	"github.com/yourorg/trainlink/internal/presence"
	"github.com/yourorg/trainlink/pkg/types"
)

// Command types of a facility selection request.
const (
	commandTraining  int64 = 1
	commandOuting    int64 = 3
	commandRest      int64 = 7
	commandInfirmary int64 = 8
)

func (i *Interpreter) onRunStart(ctx context.Context, _, m types.Message) error {
	// whatever was active is over; the first response builds a fresh context
	if i.run != nil {
		i.endRun(ctx, types.RunEnded, false)
	}
	name := ""
	if start := m.Map("start_chara"); start != nil && i.opts.RefData != nil {
		name = i.opts.RefData.CharaName(start.Int("card_id") / 100)
	}
	i.setStatus(presence.Status{Details: "Starting a training run", State: name})
	return nil
}

func (i *Interpreter) onRunDelete(ctx context.Context, _, _ types.Message) error {
	i.endRun(ctx, types.RunDeleted, false)
	i.setStatus(presence.Status{Details: "Idle"})
	return nil
}

func (i *Interpreter) onConcertStart(_ context.Context, _, _ types.Message) error {
	i.setStatus(presence.Status{Details: "Preparing a concert"})
	return nil
}

func (i *Interpreter) onFacilitySelect(_ context.Context, _, m types.Message) error {
	switch m.Int("command_type") {
	case commandTraining:
		id, ok := helper.Canonical(m.Int("command_id"), i.opts.Rules.FacilityAliases)
		name := "training"
		if ok {
			name = helper.FacilityName(id) + " training"
		}
		i.setStatus(presence.Status{Details: "Training", State: name})
	case commandRest:
		i.setStatus(presence.Status{Details: "Training", State: "Resting"})
	case commandOuting:
		i.setStatus(presence.Status{Details: "Training", State: "On an outing"})
	case commandInfirmary:
		i.setStatus(presence.Status{Details: "Training", State: "At the infirmary"})
	}
	return nil
}

func (i *Interpreter) onSkillPurchase(_ context.Context, _, m types.Message) error {
	var names []string
	for _, s := range m.Maps("gain_skill_info_array") {
		if i.opts.RefData != nil {
			names = append(names, i.opts.RefData.SkillName(s.Int("skill_id")))
		}
	}
	i.logger.Info("skills purchased", "skills", names)
	i.setStatus(presence.Status{Details: "Training", State: "Learning skills: " + strings.Join(names, ", ")})
	return nil
}

func (i *Interpreter) onEventChoice(_ context.Context, _, m types.Message) error {
	i.logger.Debug("event choice", "event_id", m.Int("event_id"), "choice", m.Int("choice_number"))
	return nil
}

func (i *Interpreter) onRaceEntry(_ context.Context, _, m types.Message) error {
	name := ""
	if i.opts.RefData != nil {
		name = i.opts.RefData.RaceName(m.Int("program_id"))
	}
	i.setStatus(presence.Status{Details: "Racing", State: name})
	return nil
}
