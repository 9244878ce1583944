package interp

import (
	"context"
	"fmt"
	"time"

	"github.com/yourorg/trainlink/internal/helper"
	"github.com/yourorg/trainlink/internal/notify"
	"github.com/yourorg/trainlink/pkg/types"
)

// ScenarioContext is the state of the active training run. A new run always
// gets a new context.
type ScenarioContext struct {
	RunKey     string
	RunID      string
	CardID     int64
	Character  string
	ScenarioID int64
	StartTime  int64
	Supports   [6]int64
	StartedAt  time.Time

	Turn int64
	URL  string

	// LastTurn is the last full training-state payload, PrevTurn the one
	// before it. Schedule-only deltas are replayed onto LastTurn.
	LastTurn types.Message
	PrevTurn types.Message

	LastRaceRank int64

	Archive Archive
}

// RunKey identifies a run by its identity fields.
func RunKey(startTime, cardID, scenarioID int64) string {
	return fmt.Sprintf("%d_%d_%d", startTime, cardID, scenarioID)
}

// ensureRun moves NoRun to Running for the identity in chara, or keeps the
// current context when it is the same run.
func (i *Interpreter) ensureRun(ctx context.Context, chara helper.CharaInfo) *ScenarioContext {
	key := RunKey(chara.StartTime, chara.CardID, chara.ScenarioID)
	if i.run != nil && i.run.RunKey == key {
		return i.run
	}
	if i.run != nil {
		i.logger.Info("new run replaces active run", "old", i.run.RunKey, "new", key)
		i.endRun(ctx, types.RunEnded, false)
	}

	sc := &ScenarioContext{
		RunKey:     key,
		CardID:     chara.CardID,
		ScenarioID: chara.ScenarioID,
		StartTime:  chara.StartTime,
		Supports:   chara.SupportIDs(),
		StartedAt:  time.Now(),
	}
	if i.opts.RefData != nil {
		sc.Character = i.opts.RefData.CharaName(chara.CardID / 100)
	}
	sc.URL = DeepLink(i.opts.Browse.HelperHost, i.opts.Browse.GamePath, sc.CardID, sc.ScenarioID, sc.Supports)

	archivePath := ""
	if i.opts.Archives != nil {
		a, err := i.opts.Archives(sc.CardID, sc.ScenarioID, sc.StartTime)
		if err != nil {
			i.logger.Error("open run archive failed", "run", key, "error", err)
			i.opts.Notifier.NotifyOnce("archive:"+key, notify.Warning, "Run log unavailable", err.Error())
		} else {
			sc.Archive = a
			archivePath = a.Path()
		}
	}
	if i.opts.Store != nil {
		run, err := i.opts.Store.StartRun(key, sc.CardID, sc.ScenarioID, sc.StartTime, archivePath)
		if err != nil {
			i.logger.Error("register run failed", "run", key, "error", err)
		} else {
			sc.RunID = run.ID
		}
	}

	i.run = sc
	i.logger.Info("run started", "run", key, "id", sc.RunID, "scenario", types.Scenario(sc.ScenarioID).String())
	i.publish("")
	return sc
}

// endRun moves Running to NoRun. flush writes the pending message pair into
// the run's archive before it is closed.
func (i *Interpreter) endRun(ctx context.Context, status string, flush bool) {
	sc := i.run
	if sc == nil {
		return
	}
	if flush {
		i.flushPair()
	}
	if sc.Archive != nil {
		if err := sc.Archive.Close(); err != nil {
			i.logger.Warn("close run archive failed", "run", sc.RunKey, "error", err)
		}
	}
	if i.opts.Store != nil && sc.RunID != "" {
		if err := i.opts.Store.UpdateRunStatus(sc.RunID, status); err != nil {
			i.logger.Error("update run status failed", "run", sc.RunID, "error", err)
		}
	}
	i.closeBrowser(ctx)
	i.run = nil
	i.logger.Info("run closed", "run", sc.RunKey, "status", status)
	i.publish("")
}

// flushPair appends the message pair being processed to the active run's
// archive, once.
func (i *Interpreter) flushPair() {
	p := i.pair
	i.pair = nil
	if p == nil || i.run == nil || i.run.Archive == nil {
		return
	}
	if p.req != nil {
		if err := i.run.Archive.Append(types.Request, p.req); err != nil {
			i.logger.Warn("archive request failed", "error", err)
			return
		}
	}
	if err := i.run.Archive.Append(types.Response, p.resp); err != nil {
		i.logger.Warn("archive response failed", "error", err)
	}
}

// Run returns the active run context, or nil.
func (i *Interpreter) Run() *ScenarioContext {
	return i.run
}
