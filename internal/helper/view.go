package helper

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/yourorg/trainlink/pkg/types"
)

// Turn is the typed view of one training-state response. Scenario blocks are
// nil unless the message carries them.
type Turn struct {
	Chara CharaInfo `msgpack:"chara_info"`
	Home  HomeInfo  `msgpack:"home_info"`

	Team  *DataSet      `msgpack:"team_data_set"`
	Live  *DataSet      `msgpack:"live_data_set"`
	Venus *VenusDataSet `msgpack:"venus_data_set"`
	Arc   *ArcDataSet   `msgpack:"arc_data_set"`
	Sport *SportDataSet `msgpack:"sport_data_set"`
	Cook  *DataSet      `msgpack:"cook_data_set"`
	Mecha *DataSet      `msgpack:"mecha_data_set"`
}

type CharaInfo struct {
	CardID     int64 `msgpack:"card_id"`
	ScenarioID int64 `msgpack:"scenario_id"`
	StartTime  int64 `msgpack:"start_time"`
	Turn       int64 `msgpack:"turn"`
	Speed      int64 `msgpack:"speed"`
	Stamina    int64 `msgpack:"stamina"`
	Power      int64 `msgpack:"power"`
	Guts       int64 `msgpack:"guts"`
	Wiz        int64 `msgpack:"wiz"`
	Vital      int64 `msgpack:"vital"`
	MaxVital   int64 `msgpack:"max_vital"`
	SkillPoint int64 `msgpack:"skill_point"`

	Evaluations []Evaluation  `msgpack:"evaluation_info_array"`
	Supports    []SupportSlot `msgpack:"support_card_array"`
	Effects     []int64       `msgpack:"chara_effect_id_array"`
	Skills      []Skill       `msgpack:"skill_array"`
	SkillTips   []SkillTip    `msgpack:"skill_tips_array"`
}

// Stats returns the character's current stats.
func (c CharaInfo) Stats() types.Stats {
	return types.Stats{
		Speed:      c.Speed,
		Stamina:    c.Stamina,
		Power:      c.Power,
		Guts:       c.Guts,
		Wisdom:     c.Wiz,
		Energy:     c.Vital,
		SkillPoint: c.SkillPoint,
	}
}

// SupportIDs returns the deck's support card ids by position 1..6; empty
// slots are 0.
func (c CharaInfo) SupportIDs() [6]int64 {
	var out [6]int64
	for _, s := range c.Supports {
		if s.Position >= 1 && s.Position <= 6 {
			out[s.Position-1] = s.SupportCardID
		}
	}
	return out
}

type Evaluation struct {
	TargetID          int64 `msgpack:"target_id"`
	TrainingPartnerID int64 `msgpack:"training_partner_id"`
	Evaluation        int64 `msgpack:"evaluation"`
}

type SupportSlot struct {
	Position        int64 `msgpack:"position"`
	SupportCardID   int64 `msgpack:"support_card_id"`
	LimitBreakCount int64 `msgpack:"limit_break_count"`
}

type Skill struct {
	SkillID int64 `msgpack:"skill_id"`
	Level   int64 `msgpack:"level"`
}

type SkillTip struct {
	GroupID int64 `msgpack:"group_id"`
	Rarity  int64 `msgpack:"rarity"`
	Level   int64 `msgpack:"level"`
}

type HomeInfo struct {
	Commands []Command `msgpack:"command_info_array"`
}

type Command struct {
	CommandType int64        `msgpack:"command_type"`
	CommandID   int64        `msgpack:"command_id"`
	IsEnable    int64        `msgpack:"is_enable"`
	Level       int64        `msgpack:"level"`
	FailureRate int64        `msgpack:"failure_rate"`
	Partners    []int64      `msgpack:"training_partner_array"`
	TipPartners []int64      `msgpack:"tips_event_partner_array"`
	Params      []ParamDelta `msgpack:"params_inc_dec_info_array"`
}

type ParamDelta struct {
	TargetType int64 `msgpack:"target_type"`
	Value      int64 `msgpack:"value"`
}

// ScenarioCommand is one entry of a scenario block's command array. Each
// scenario fills a different subset of the optional fields.
type ScenarioCommand struct {
	CommandID   int64              `msgpack:"command_id"`
	Params      []ParamDelta       `msgpack:"params_inc_dec_info_array"`
	Performance []PerformanceDelta `msgpack:"performance_inc_dec_info_array"`
	GlobalExp   *int64             `msgpack:"add_global_exp"`
	SportRank   []SportRankGain    `msgpack:"gain_sport_rank_array"`
	CookPoint   *int64             `msgpack:"cook_point"`
	Materials   []Material         `msgpack:"material_info_array"`
	PointUps    []PointUp          `msgpack:"point_up_info_array"`
}

type PerformanceDelta struct {
	PerformanceType int64 `msgpack:"performance_type"`
	Value           int64 `msgpack:"value"`
}

type SportRankGain struct {
	CommandID int64 `msgpack:"command_id"`
	GainRank  int64 `msgpack:"gain_rank"`
}

type Material struct {
	MaterialID int64 `msgpack:"material_id"`
	Num        int64 `msgpack:"num"`
}

type PointUp struct {
	StatusType int64 `msgpack:"status_type"`
	Value      int64 `msgpack:"value"`
}

type DataSet struct {
	Commands []ScenarioCommand `msgpack:"command_info_array"`
}

type VenusDataSet struct {
	Commands []VenusCommand `msgpack:"venus_chara_command_info_array"`
	Active   []VenusSpirit  `msgpack:"venus_spirit_active_effect_info_array"`
}

type VenusCommand struct {
	CommandID int64 `msgpack:"command_id"`
	SpiritID  int64 `msgpack:"spirit_id"`
	IsBoost   int64 `msgpack:"is_boost"`
}

type VenusSpirit struct {
	CharaID int64 `msgpack:"chara_id"`
}

type ArcDataSet struct {
	Commands    []ScenarioCommand `msgpack:"command_info_array"`
	Evaluations []ArcEvaluation   `msgpack:"evaluation_info_array"`
	Selection   *ArcSelection     `msgpack:"selection_info"`
}

type ArcEvaluation struct {
	TargetID      int64 `msgpack:"target_id"`
	CharaID       int64 `msgpack:"chara_id"`
	ApprovalPoint int64 `msgpack:"approval_point"`
	StarGauge     int64 `msgpack:"star_gauge"`
}

type ArcSelection struct {
	AllWinApprovalPoint int64        `msgpack:"all_win_approval_point"`
	Params              []ParamDelta `msgpack:"params_inc_dec_info_array"`
	Rivals              []ArcRival   `msgpack:"selection_rival_info_array"`
}

type ArcRival struct {
	CharaID int64 `msgpack:"chara_id"`
}

type SportDataSet struct {
	Commands []ScenarioCommand `msgpack:"command_info_array"`
	Training []SportTraining   `msgpack:"training_array"`
}

type SportTraining struct {
	CommandID int64 `msgpack:"command_id"`
	SportRank int64 `msgpack:"sport_rank"`
}

// Project converts a decoded message into a typed view by round-tripping it
// through msgpack. Fields absent from msg keep their zero value. msg is
// normalized on a copy first, so integral floats decode into int64 fields.
func Project(msg types.Message, out any) error {
	norm, _ := types.Normalize(msg.Clone()).(types.Message)
	b, err := msgpack.Marshal(map[string]any(norm))
	if err != nil {
		return fmt.Errorf("encode view: %w", err)
	}
	if err := msgpack.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode view: %w", err)
	}
	return nil
}

// ParseTurn projects a training-state payload. It fails when chara_info is
// missing.
func ParseTurn(msg types.Message) (*Turn, error) {
	if !msg.Has("chara_info") {
		return nil, fmt.Errorf("training state without chara_info")
	}
	var t Turn
	if err := Project(msg, &t); err != nil {
		return nil, err
	}
	return &t, nil
}
