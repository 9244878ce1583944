package sessionlog

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/yourorg/trainlink/internal/config"
	"github.com/yourorg/trainlink/internal/helper"
	"github.com/yourorg/trainlink/pkg/types"
)

// Names resolves ids for the printable timeline.
type Names interface {
	CharaName(id int64) string
	SkillName(id int64) string
	SupportCardName(id int64) string
	StoryTitle(id int64) string
	RaceName(programID int64) string
	StatusName(id int64) string
}

// placeholderNames is used when no master database is available.
type placeholderNames struct{}

func (placeholderNames) CharaName(id int64) string       { return fmt.Sprintf("character %d", id) }
func (placeholderNames) SkillName(id int64) string       { return fmt.Sprintf("skill %d", id) }
func (placeholderNames) SupportCardName(id int64) string { return fmt.Sprintf("support card %d", id) }
func (placeholderNames) StoryTitle(id int64) string      { return fmt.Sprintf("story %d", id) }
func (placeholderNames) RaceName(id int64) string        { return fmt.Sprintf("race %d", id) }
func (placeholderNames) StatusName(id int64) string      { return fmt.Sprintf("status %d", id) }

// Replay is the timeline of one archived run.
type Replay struct {
	Path         string
	ScenarioID   int64
	Scenario     string
	CardID       int64
	Character    string
	Supports     [6]int64
	SupportNames [6]string
	Records      []types.ActionRecord
}

type Analyzer struct {
	names   Names
	aliases map[int64]int64
	logger  *slog.Logger
}

func NewAnalyzer(names Names, rules config.RulesConfig, logger *slog.Logger) *Analyzer {
	if names == nil {
		names = placeholderNames{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{names: names, aliases: rules.FacilityAliases, logger: logger}
}

// ReplayFile reads and replays one archive.
func (a *Analyzer) ReplayFile(path string) (*Replay, error) {
	entries, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	r := a.Replay(entries)
	r.Path = path
	return r, nil
}

// charState is what the analyzer remembers between records.
type charState struct {
	stats    types.Stats
	bond     int64
	skills   map[int64]bool
	statuses map[int64]bool
	tips     int
}

// Replay walks request/response pairs in order and keeps the records that
// are classified or changed something observable.
func (a *Analyzer) Replay(entries []Entry) *Replay {
	out := &Replay{}
	var prev *charState
	var turn int64
	seq := 0

	for n := 0; n < len(entries); n++ {
		var req types.Message
		e := entries[n]
		if e.Direction == types.Request {
			req = e.Message
			if n+1 >= len(entries) || entries[n+1].Direction != types.Response {
				continue
			}
			n++
			e = entries[n]
		}
		data := payload(e.Message)
		seq++

		rec := types.ActionRecord{Seq: seq}
		rec.Action, rec.Detail = a.classify(req, data)

		if chara := data.Map("chara_info"); chara != nil {
			if out.CardID == 0 {
				a.fillMeta(out, chara)
			}
			cur := readState(chara)
			turn = chara.Int("turn")
			if prev != nil {
				rec.Delta = cur.stats.Sub(prev.stats)
				rec.BondDelta = cur.bond - prev.bond
				for _, id := range newIDs(cur.skills, prev.skills) {
					rec.NewSkills = append(rec.NewSkills, a.names.SkillName(id))
				}
				for _, id := range newIDs(cur.statuses, prev.statuses) {
					rec.NewStatuses = append(rec.NewStatuses, a.names.StatusName(id))
				}
				if rec.Action == types.ActionEvent && cur.tips > prev.tips {
					rec.Action = types.ActionSkillHint
				}
			}
			prev = cur
		}
		if prev != nil {
			rec.Stats = prev.stats
		}
		rec.Turn = turn

		if rec.Action == types.ActionUnknown && !rec.Changed() {
			continue
		}
		out.Records = append(out.Records, rec)
	}
	return out
}

func payload(msg types.Message) types.Message {
	if data := msg.Map("data"); data != nil {
		return data
	}
	return msg
}

func (a *Analyzer) fillMeta(r *Replay, chara types.Message) {
	r.CardID = chara.Int("card_id")
	r.ScenarioID = chara.Int("scenario_id")
	r.Scenario = types.Scenario(r.ScenarioID).String()
	r.Character = a.names.CharaName(r.CardID / 100)
	for _, s := range chara.Maps("support_card_array") {
		pos := s.Int("position")
		if pos < 1 || pos > 6 {
			continue
		}
		id := s.Int("support_card_id")
		r.Supports[pos-1] = id
		r.SupportNames[pos-1] = a.names.SupportCardName(id)
	}
}

func readState(chara types.Message) *charState {
	s := &charState{
		stats: types.Stats{
			Speed:      chara.Int("speed"),
			Stamina:    chara.Int("stamina"),
			Power:      chara.Int("power"),
			Guts:       chara.Int("guts"),
			Wisdom:     chara.Int("wiz"),
			Energy:     chara.Int("vital"),
			SkillPoint: chara.Int("skill_point"),
		},
		skills:   make(map[int64]bool),
		statuses: make(map[int64]bool),
		tips:     len(chara.Slice("skill_tips_array")),
	}
	for _, ev := range chara.Maps("evaluation_info_array") {
		s.bond += ev.Int("evaluation")
	}
	for _, sk := range chara.Maps("skill_array") {
		s.skills[sk.Int("skill_id")] = true
	}
	for _, id := range chara.Ints("chara_effect_id_array") {
		s.statuses[id] = true
	}
	return s
}

// newIDs returns ids present in cur but not in prev, in ascending order.
func newIDs(cur, prev map[int64]bool) []int64 {
	var out []int64
	for id := range cur {
		if !prev[id] {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// classify applies the live key-presence rules to a historical pair.
func (a *Analyzer) classify(req, data types.Message) (types.ActionType, string) {
	switch {
	case req.HasAll("command_type", "command_id"):
		switch req.Int("command_type") {
		case 1:
			if id, ok := helper.Canonical(req.Int("command_id"), a.aliases); ok {
				return types.ActionTraining, helper.FacilityName(id)
			}
			return types.ActionTraining, fmt.Sprintf("command %d", req.Int("command_id"))
		case 7:
			return types.ActionRest, ""
		case 3:
			return types.ActionOuting, ""
		case 8:
			return types.ActionInfirmary, ""
		default:
			return types.ActionScenarioAction, fmt.Sprintf("command %d/%d", req.Int("command_type"), req.Int("command_id"))
		}
	case req.Has("gain_skill_info_array"):
		var names []string
		for _, s := range req.Maps("gain_skill_info_array") {
			names = append(names, a.names.SkillName(s.Int("skill_id")))
		}
		return types.ActionSkillPurchase, strings.Join(names, "; ")
	case req.HasAll("event_id", "choice_number"):
		return types.ActionEvent, fmt.Sprintf("%s, choice %d", a.names.StoryTitle(req.Int("event_id")), req.Int("choice_number"))
	case req.Has("program_id"):
		return types.ActionRace, a.names.RaceName(req.Int("program_id"))
	case data.Has("race_reward_info"):
		return types.ActionRace, ""
	}
	return types.ActionUnknown, ""
}
