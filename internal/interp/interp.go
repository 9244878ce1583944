// Package interp turns decoded capture messages into game state and drives
// the side effects: status updates, the helper page and the run archive.
//
// Messages carry no type tag. They are classified by which keys are present,
// checked in a fixed order because payloads overlap. One Interpreter is owned
// by one goroutine; only Snapshot may be called concurrently.
package interp

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/yourorg/trainlink/internal/browser"
	"github.com/yourorg/trainlink/internal/config"
	"github.com/yourorg/trainlink/internal/helper"
	"github.com/yourorg/trainlink/internal/notify"
	"github.com/yourorg/trainlink/internal/presence"
	"github.com/yourorg/trainlink/pkg/types"
)

// RefData resolves ids to display names. Misses return placeholders.
type RefData interface {
	CharaName(id int64) string
	SkillName(id int64) string
	SupportCardName(id int64) string
	StoryTitles(id int64) []string
	RaceName(programID int64) string
}

// RunStore records run starts and ends.
type RunStore interface {
	StartRun(runKey string, cardID, scenarioID, startTime int64, archivePath string) (*types.Run, error)
	UpdateRunStatus(id, status string) error
}

// Archive receives every message of a run.
type Archive interface {
	Append(dir types.Direction, msg types.Message) error
	Path() string
	Close() error
}

// ArchiveFactory opens the archive for a new run.
type ArchiveFactory func(cardID, scenarioID, startTime int64) (Archive, error)

type Options struct {
	Browser  browser.Adapter
	Presence presence.Sink
	Notifier notify.Notifier
	RefData  RefData
	Store    RunStore
	Archives ArchiveFactory
	Helper   *helper.Engine
	Browse   config.BrowserConfig
	Rules    config.RulesConfig
	Logger   *slog.Logger
}

// rule is one classification branch. stop ends dispatch for the message once
// the branch ran.
type rule struct {
	name   string
	match  func(m types.Message) bool
	handle func(ctx context.Context, req, m types.Message) error
	stop   bool
}

// Snapshot is the externally visible state, served by the status server.
type Snapshot struct {
	Running    bool            `json:"running"`
	RunID      string          `json:"run_id,omitempty"`
	CardID     int64           `json:"card_id,omitempty"`
	Character  string          `json:"character,omitempty"`
	ScenarioID int64           `json:"scenario_id,omitempty"`
	Scenario   string          `json:"scenario,omitempty"`
	Turn       int64           `json:"turn,omitempty"`
	URL        string          `json:"url,omitempty"`
	Status     presence.Status `json:"status"`
	HelperHTML string          `json:"-"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type Interpreter struct {
	opts     Options
	logger   *slog.Logger
	requests []rule
	replies  []rule

	run     *ScenarioContext
	request types.Message
	pair    *pendingPair
	rect    browser.Rect

	mu   sync.RWMutex
	snap Snapshot
}

type pendingPair struct {
	req, resp types.Message
}

func New(opts Options) *Interpreter {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Browser == nil {
		opts.Browser = browser.Disabled{}
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Discard{Logger: opts.Logger}
	}
	if opts.Presence == nil {
		opts.Presence = presence.NewLog(opts.Logger)
	}
	if opts.Helper == nil {
		opts.Helper = helper.New(opts.Rules, nil, nil, opts.Logger)
	}
	i := &Interpreter{opts: opts, logger: opts.Logger}
	i.requests = i.requestRules()
	i.replies = i.responseRules()
	return i
}

// requestRules lists request branches in priority order.
func (i *Interpreter) requestRules() []rule {
	return []rule{
		{name: "run_start", match: has("start_chara"), handle: i.onRunStart, stop: true},
		{name: "run_delete", match: has("is_force_delete"), handle: i.onRunDelete, stop: true},
		{name: "concert_start", match: has("live_theater_save_info"), handle: i.onConcertStart, stop: true},
		{name: "facility_select", match: has("command_type", "command_id"), handle: i.onFacilitySelect, stop: true},
		{name: "skill_purchase", match: has("gain_skill_info_array"), handle: i.onSkillPurchase, stop: true},
		{name: "event_choice", match: has("event_id", "choice_number"), handle: i.onEventChoice, stop: true},
		{name: "race_entry", match: has("program_id"), handle: i.onRaceEntry, stop: true},
	}
}

// responseRules lists response branches in priority order. Race history and
// training state fall through: the same payload may also carry a pending
// event.
func (i *Interpreter) responseRules() []rule {
	return []rule{
		{name: "run_ended", match: has("single_mode_factor_select_common"), handle: i.onRunEnded, stop: true},
		{name: "concert_state", match: has("live_theater_save_info_array"), handle: i.onConcertState, stop: true},
		{name: "team_event", match: has("circle_info"), handle: i.onTeamEvent, stop: true},
		{name: "league", match: has("team_stadium_opponent_list"), handle: i.onLeague, stop: true},
		{name: "minigame", match: has("mini_game_result"), handle: i.onMinigame, stop: true},
		{name: "race_in_progress", match: anyOf("race_scenario", "race_start_info"), handle: i.onRaceInProgress, stop: true},
		{name: "race_history", match: has("race_history"), handle: i.onRaceHistory},
		{name: "training_state", match: has("chara_info", "home_info"), handle: i.onTrainingState},
		{name: "unchecked_event", match: hasEvents, handle: i.onUncheckedEvent, stop: true},
		{name: "reserved_races", match: reservedOnly, handle: i.onReservedRaces, stop: true},
	}
}

// RuleNames returns the branch names in dispatch order.
func (i *Interpreter) RuleNames(dir types.Direction) []string {
	rules := i.requests
	if dir == types.Response {
		rules = i.replies
	}
	out := make([]string, len(rules))
	for n, r := range rules {
		out[n] = r.name
	}
	return out
}

func has(keys ...string) func(types.Message) bool {
	return func(m types.Message) bool { return m.HasAll(keys...) }
}

func anyOf(keys ...string) func(types.Message) bool {
	return func(m types.Message) bool {
		for _, k := range keys {
			if m.Has(k) {
				return true
			}
		}
		return false
	}
}

func hasEvents(m types.Message) bool {
	return len(m.Slice("unchecked_event_array")) > 0
}

func reservedOnly(m types.Message) bool {
	return m.Has("reserved_race_array") && !m.Has("chara_info")
}

// Payload returns the body of a response: its data member when present.
func Payload(msg types.Message) types.Message {
	if data := msg.Map("data"); data != nil {
		return data
	}
	return msg
}

// Handle processes one decoded message. The returned error describes the
// first branch that failed; dispatch never panics.
func (i *Interpreter) Handle(ctx context.Context, dir types.Direction, msg types.Message) error {
	if dir == types.Request {
		return i.handleRequest(ctx, msg)
	}
	return i.handleResponse(ctx, msg)
}

func (i *Interpreter) handleRequest(ctx context.Context, msg types.Message) error {
	i.request = msg
	return i.dispatch(ctx, types.Request, i.requests, nil, msg)
}

func (i *Interpreter) handleResponse(ctx context.Context, msg types.Message) error {
	// the cached request belongs to this response only
	req := i.request
	i.request = nil
	i.pair = &pendingPair{req: req, resp: msg}

	err := i.dispatch(ctx, types.Response, i.replies, req, Payload(msg))
	i.flushPair()
	return err
}

func (i *Interpreter) dispatch(ctx context.Context, dir types.Direction, rules []rule, req, m types.Message) error {
	for _, r := range rules {
		if !r.match(m) {
			continue
		}
		if err := i.runRule(ctx, r, req, m); err != nil {
			i.logger.Error("message branch failed", "direction", dir.String(), "branch", r.name, "keys", keys(m), "error", err)
			i.opts.Notifier.NotifyOnce(r.name+":"+err.Error(), notify.Warning,
				"Could not process game data", fmt.Sprintf("%s: %v", r.name, err))
			return fmt.Errorf("%s: %w", r.name, err)
		}
		if r.stop {
			break
		}
	}
	return nil
}

func (i *Interpreter) runRule(ctx context.Context, r rule, req, m types.Message) (err error) {
	defer func() {
		if p := recover(); p != nil {
			i.logger.Debug("branch panic", "branch", r.name, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return r.handle(ctx, req, m)
}

func keys(m types.Message) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Snapshot returns the current externally visible state.
func (i *Interpreter) Snapshot() Snapshot {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.snap
}

func (i *Interpreter) setStatus(s presence.Status) {
	if i.run != nil {
		s.Scenario = types.Scenario(i.run.ScenarioID).String()
		s.Turn = i.run.Turn
		s.StartedAt = i.run.StartedAt
	}
	i.opts.Presence.Update(s)
	i.mu.Lock()
	i.snap.Status = s
	i.snap.UpdatedAt = time.Now()
	i.mu.Unlock()
}

func (i *Interpreter) publish(html string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	r := i.run
	if r == nil {
		status := i.snap.Status
		i.snap = Snapshot{Status: status, UpdatedAt: time.Now()}
		return
	}
	i.snap.Running = true
	i.snap.RunID = r.RunID
	i.snap.CardID = r.CardID
	i.snap.Character = r.Character
	i.snap.ScenarioID = r.ScenarioID
	i.snap.Scenario = types.Scenario(r.ScenarioID).String()
	i.snap.Turn = r.Turn
	i.snap.URL = r.URL
	if html != "" {
		i.snap.HelperHTML = html
	}
	i.snap.UpdatedAt = time.Now()
}

// Close ends the interpreter's lifetime: the archive of an active run is
// closed, the run itself stays open in the registry.
func (i *Interpreter) Close() error {
	if i.run != nil && i.run.Archive != nil {
		return i.run.Archive.Close()
	}
	return nil
}
