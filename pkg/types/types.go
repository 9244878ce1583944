package types

import "time"

// Direction tells whether a capture is a client request or a server response.
type Direction int

const (
	Request Direction = iota
	Response
)

func (d Direction) String() string {
	if d == Response {
		return "response"
	}
	return "request"
}

// CaptureFile is one file written by the game client into the capture directory.
type CaptureFile struct {
	Path      string    `json:"path"`
	Stamp     int64     `json:"stamp"`
	Timestamp time.Time `json:"timestamp"`
	Direction Direction `json:"direction"`
	ModTime   time.Time `json:"mod_time"`
}

// Scenario identifies the game mode of a run.
type Scenario int

const (
	ScenarioUnknown       Scenario = 0
	ScenarioSeasonCup     Scenario = 1
	ScenarioTeamEvent     Scenario = 2
	ScenarioIdolShow      Scenario = 3
	ScenarioOpenTrack     Scenario = 4
	ScenarioGrandmaster   Scenario = 5
	ScenarioCrossoverRace Scenario = 6
	ScenarioSportsEvent   Scenario = 7
	ScenarioFoodFestival  Scenario = 8
	ScenarioMechaEvent    Scenario = 9
)

var scenarioNames = map[Scenario]string{
	ScenarioSeasonCup:     "Season Cup",
	ScenarioTeamEvent:     "Team Event",
	ScenarioIdolShow:      "Idol Show",
	ScenarioOpenTrack:     "Open Track",
	ScenarioGrandmaster:   "Grandmaster",
	ScenarioCrossoverRace: "Crossover Race",
	ScenarioSportsEvent:   "Sports Event",
	ScenarioFoodFestival:  "Food Festival",
	ScenarioMechaEvent:    "Mecha Event",
}

func (s Scenario) String() string {
	if name, ok := scenarioNames[s]; ok {
		return name
	}
	return "Unknown Scenario"
}

// Run records one training run in the registry.
type Run struct {
	ID          string     `json:"id"`
	RunKey      string     `json:"run_key"`
	CardID      int64      `json:"card_id"`
	ScenarioID  int64      `json:"scenario_id"`
	StartTime   int64      `json:"start_time"`
	ArchivePath string     `json:"archive_path"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
}

const (
	RunRunning = "running"
	RunEnded   = "ended"
	RunDeleted = "deleted"
)

// SkippedFile is a capture file given up on permanently.
type SkippedFile struct {
	Path      string    `json:"path"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// SupportKind distinguishes regular support cards from friend and group cards.
type SupportKind int

const (
	SupportNormal SupportKind = 1
	SupportFriend SupportKind = 2
	SupportGroup  SupportKind = 3
)

// SupportCard is the reference data needed to evaluate a training partner.
type SupportCard struct {
	ID        int64       `json:"id"`
	CharaID   int64       `json:"chara_id"`
	CommandID int64       `json:"command_id"`
	Kind      SupportKind `json:"kind"`
	Name      string      `json:"name"`
}

// IsFriendLike reports whether the card is a friend or group card.
func (c SupportCard) IsFriendLike() bool {
	return c.Kind == SupportFriend || c.Kind == SupportGroup
}

// ActionType classifies one request/response pair of an archived run.
type ActionType string

const (
	ActionTraining       ActionType = "training"
	ActionEvent          ActionType = "event"
	ActionSkillHint      ActionType = "skill_hint"
	ActionSkillPurchase  ActionType = "skill_purchase"
	ActionRest           ActionType = "rest"
	ActionOuting         ActionType = "outing"
	ActionInfirmary      ActionType = "infirmary"
	ActionRace           ActionType = "race"
	ActionScenarioAction ActionType = "scenario_action"
	ActionUnknown        ActionType = "unknown"
)

// Stats is the five trainable stats plus energy and skill points.
type Stats struct {
	Speed      int64 `json:"speed"`
	Stamina    int64 `json:"stamina"`
	Power      int64 `json:"power"`
	Guts       int64 `json:"guts"`
	Wisdom     int64 `json:"wisdom"`
	Energy     int64 `json:"energy"`
	SkillPoint int64 `json:"skill_point"`
}

// Sub returns s - o field by field.
func (s Stats) Sub(o Stats) Stats {
	return Stats{
		Speed:      s.Speed - o.Speed,
		Stamina:    s.Stamina - o.Stamina,
		Power:      s.Power - o.Power,
		Guts:       s.Guts - o.Guts,
		Wisdom:     s.Wisdom - o.Wisdom,
		Energy:     s.Energy - o.Energy,
		SkillPoint: s.SkillPoint - o.SkillPoint,
	}
}

// IsZero reports whether every field is zero.
func (s Stats) IsZero() bool {
	return s == Stats{}
}

// ActionRecord is one meaningful request/response pair replayed from an archive.
type ActionRecord struct {
	Seq         int        `json:"seq"`
	Turn        int64      `json:"turn"`
	Action      ActionType `json:"action"`
	Detail      string     `json:"detail,omitempty"`
	Stats       Stats      `json:"stats"`
	Delta       Stats      `json:"delta"`
	BondDelta   int64      `json:"bond_delta"`
	NewSkills   []string   `json:"new_skills,omitempty"`
	NewStatuses []string   `json:"new_statuses,omitempty"`
}

// Changed reports whether the record observed any numeric, skill or status change.
func (r ActionRecord) Changed() bool {
	return !r.Delta.IsZero() || r.BondDelta != 0 || len(r.NewSkills) > 0 || len(r.NewStatuses) > 0
}
