package interp

import (
	"context"
	"fmt"

	"github.com/yourorg/trainlink/internal/helper"
	"github.com/yourorg/trainlink/internal/presence"
	"github.com/yourorg/trainlink/pkg/types"
)

func (i *Interpreter) onRunEnded(ctx context.Context, _, _ types.Message) error {
	i.endRun(ctx, types.RunEnded, true)
	i.setStatus(presence.Status{Details: "Run finished"})
	return nil
}

func (i *Interpreter) onConcertState(_ context.Context, _, _ types.Message) error {
	i.setStatus(presence.Status{Details: "Watching a concert"})
	return nil
}

func (i *Interpreter) onTeamEvent(_ context.Context, _, m types.Message) error {
	name := m.Map("circle_info").String("name")
	i.setStatus(presence.Status{Details: "Club", State: name})
	return nil
}

func (i *Interpreter) onLeague(_ context.Context, _, _ types.Message) error {
	i.setStatus(presence.Status{Details: "Team trials"})
	return nil
}

func (i *Interpreter) onMinigame(_ context.Context, _, _ types.Message) error {
	i.setStatus(presence.Status{Details: "Playing a minigame"})
	return nil
}

// onRaceInProgress only reports the race; the helper page is not advanced
// while racing.
func (i *Interpreter) onRaceInProgress(_ context.Context, _, m types.Message) error {
	program := m.Map("race_start_info").Int("program_id")
	name := ""
	if program != 0 && i.opts.RefData != nil {
		name = i.opts.RefData.RaceName(program)
	}
	i.logger.Debug("race in progress", "program_id", program)
	i.setStatus(presence.Status{Details: "Racing", State: name})
	return nil
}

// onRaceHistory remembers the latest race result so a following after-race
// event can be matched by it.
func (i *Interpreter) onRaceHistory(_ context.Context, _, m types.Message) error {
	history := m.Maps("race_history")
	if len(history) == 0 || i.run == nil {
		return nil
	}
	last := history[len(history)-1]
	i.run.LastRaceRank = last.Int("result_rank")
	return nil
}

func (i *Interpreter) onTrainingState(ctx context.Context, _, m types.Message) error {
	t, err := helper.ParseTurn(m)
	if err != nil {
		return err
	}
	c := t.Chara
	if c.CardID == 0 || c.StartTime == 0 {
		if i.run == nil {
			i.logger.Debug("training state without run identity")
			return nil
		}
	} else {
		i.ensureRun(ctx, c)
	}
	sc := i.run
	sc.Turn = c.Turn
	sc.PrevTurn, sc.LastTurn = sc.LastTurn, m

	i.setStatus(presence.Status{Details: "Training " + sc.Character, State: fmt.Sprintf("Turn %d", c.Turn)})
	return i.refreshHelper(ctx, sc)
}

// onReservedRaces merges a schedule-only delta into the last full payload and
// recomputes the helper from it.
func (i *Interpreter) onReservedRaces(ctx context.Context, _, m types.Message) error {
	sc := i.run
	if sc == nil || sc.LastTurn == nil {
		return nil
	}
	merged := sc.LastTurn.Clone()
	merged["reserved_race_array"] = m["reserved_race_array"]
	sc.LastTurn = merged
	return i.refreshHelper(ctx, sc)
}

// refreshHelper recomputes the helper table from the run's last turn and
// pushes it to the helper page.
func (i *Interpreter) refreshHelper(ctx context.Context, sc *ScenarioContext) error {
	html, err := i.opts.Helper.HTML(sc.LastTurn, sc.PrevTurn)
	if err != nil {
		return err
	}
	i.publish(html)
	i.syncHelper(ctx, sc, html)
	return nil
}
