package helper

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/yourorg/trainlink/pkg/types"
)

// cell is one rendered table cell. ok is false when the facility has no data
// for the row.
type cell struct {
	text  string
	value int64
	ok    bool
}

type rowDef struct {
	label string
	cell  func(r *Result, a Aggregate) cell
}

var performanceNames = map[int64]string{1: "Da", 2: "Pa", 3: "Vo", 4: "Vi", 5: "Me"}

var statLabels = [5]string{"Spd", "Sta", "Pow", "Gut", "Wis"}

var rowDefs = map[string]rowDef{
	"current_stats": {"Current", func(r *Result, a Aggregate) cell {
		cur, delta, ok := currentStat(r, a.Facility.ID)
		if !ok {
			return cell{}
		}
		text := strconv.FormatInt(cur, 10)
		if delta != 0 {
			text += " (" + signed(delta) + ")"
		}
		return cell{text: text, value: cur, ok: true}
	}},
	"gained_stats": {"Stats", func(r *Result, a Aggregate) cell {
		g := a.Gained
		vals := [5]int64{g.Speed, g.Stamina, g.Power, g.Guts, g.Wisdom}
		var parts []string
		for i, v := range vals {
			if v != 0 {
				parts = append(parts, statLabels[i]+" "+signed(v))
			}
		}
		if len(parts) == 0 {
			return cell{text: "0", ok: true}
		}
		return cell{text: strings.Join(parts, "<br>"), value: a.StatTotal(), ok: true}
	}},
	"total_bond": {"Bond", func(r *Result, a Aggregate) cell {
		return number(a.TotalBond)
	}},
	"useful_bond": {"Useful bond", func(r *Result, a Aggregate) cell {
		return number(a.UsefulBond)
	}},
	"rainbow_count": {"Rainbows", func(r *Result, a Aggregate) cell {
		return number(a.Rainbows)
	}},
	"skill_points": {"Skill pts", func(r *Result, a Aggregate) cell {
		return number(a.Gained.SkillPoint)
	}},
	"energy": {"Energy", func(r *Result, a Aggregate) cell {
		return cell{text: signed(a.Gained.Energy), value: a.Gained.Energy, ok: true}
	}},
	"stat_per_energy": {"Stats/energy", func(r *Result, a Aggregate) cell {
		if a.StatPerEnergy == StatPerEnergyUndefined {
			return cell{text: "-", ok: true}
		}
		return cell{text: strconv.FormatFloat(a.StatPerEnergy, 'f', 2, 64), value: int64(a.StatPerEnergy * 100), ok: true}
	}},
	"fail_percentage": {"Failure", func(r *Result, a Aggregate) cell {
		if a.Facility.ID == FacilityMatch {
			return cell{}
		}
		return number(a.Facility.FailureRate)
	}},
	"level": {"Level", func(r *Result, a Aggregate) cell {
		if a.Facility.ID == FacilityMatch {
			return cell{}
		}
		return number(a.Facility.Level)
	}},
	"fragments": {"Fragment", func(r *Result, a Aggregate) cell {
		f := a.Facility.Fragment
		if f == nil {
			return cell{}
		}
		text := fmt.Sprintf("Spirit %d", f.SpiritID)
		if f.Boost {
			text += " x2"
		}
		return cell{text: text, value: f.SpiritID, ok: true}
	}},
	"tokens": {"Tokens", func(r *Result, a Aggregate) cell {
		return breakdown(a.Facility.Tokens, func(k int64) string {
			if n, ok := performanceNames[k]; ok {
				return n
			}
			return strconv.FormatInt(k, 10)
		})
	}},
	"star_gauge": {"Star gauge", func(r *Result, a Aggregate) cell {
		return pointer(a.StarGauge)
	}},
	"aptitude_points": {"Aptitude pts", func(r *Result, a Aggregate) cell {
		return pointer(a.Facility.Aptitude)
	}},
	"sport_rank": {"Sport rank", func(r *Result, a Aggregate) cell {
		return breakdown(a.Facility.SportRank, func(k int64) string {
			return FacilityName(k)
		})
	}},
	"cook_points": {"Cook pts", func(r *Result, a Aggregate) cell {
		c := pointer(a.Facility.CookPoints)
		if c.ok && len(a.Facility.Materials) > 0 {
			var n int64
			for _, v := range a.Facility.Materials {
				n += v
			}
			c.text += fmt.Sprintf(" (%d items)", n)
		}
		return c
	}},
	"point_up": {"Point up", func(r *Result, a Aggregate) cell {
		return breakdown(a.Facility.PointUps, func(k int64) string {
			return "#" + strconv.FormatInt(k, 10)
		})
	}},
}

func currentStat(r *Result, facility int64) (cur, delta int64, ok bool) {
	c, d := r.Current, r.Delta
	switch facility {
	case FacilitySpeed:
		return c.Speed, d.Speed, true
	case FacilityStamina:
		return c.Stamina, d.Stamina, true
	case FacilityPower:
		return c.Power, d.Power, true
	case FacilityGuts:
		return c.Guts, d.Guts, true
	case FacilityWisdom:
		return c.Wisdom, d.Wisdom, true
	}
	return 0, 0, false
}

func number(v int64) cell {
	return cell{text: strconv.FormatInt(v, 10), value: v, ok: true}
}

func pointer(v *int64) cell {
	if v == nil {
		return cell{}
	}
	return number(*v)
}

func breakdown(m map[int64]int64, label func(int64) string) cell {
	if m == nil {
		return cell{}
	}
	var total int64
	parts := make([]string, 0, len(m))
	for _, k := range sortedKeys(m) {
		v := m[k]
		total += v
		if v != 0 {
			parts = append(parts, html.EscapeString(label(k))+" "+signed(v))
		}
	}
	if len(parts) == 0 {
		return cell{text: "0", ok: true}
	}
	return cell{text: strings.Join(parts, "<br>"), value: total, ok: true}
}

func disabledClass(a Aggregate) string {
	if a.Facility.Enabled {
		return ""
	}
	return ` class="disabled"`
}

func signed(v int64) string {
	if v > 0 {
		return "+" + strconv.FormatInt(v, 10)
	}
	return strconv.FormatInt(v, 10)
}

// MaxValue returns the highest value among vals, never below zero.
func MaxValue(vals []int64) int64 {
	var top int64
	for _, v := range vals {
		if v > top {
			top = v
		}
	}
	return top
}

// Render turns a computed table into the HTML fragment for the helper page.
// Disabled rows and rows without data for any facility are left out.
// Facilities that cannot be trained this turn are greyed out and never
// highlighted.
func (e *Engine) Render(r *Result) string {
	b := &strings.Builder{}
	fmt.Fprintf(b, `<div class="trainlink-helper" data-turn="%d">`, r.Turn)
	fmt.Fprintf(b, `<div class="trainlink-caption">Turn %d`, r.Turn)
	if r.RequiredSportRank > 0 {
		fmt.Fprintf(b, `, required rank %d`, r.RequiredSportRank)
	}
	if len(r.SportRanks) > 0 {
		parts := make([]string, 0, len(r.SportRanks))
		for _, id := range sortedKeys(r.SportRanks) {
			parts = append(parts, fmt.Sprintf("%s %d", html.EscapeString(FacilityName(id)), r.SportRanks[id]))
		}
		fmt.Fprintf(b, ` <span class="trainlink-ranks">(%s)</span>`, strings.Join(parts, ", "))
	}
	b.WriteString(`</div><table><thead><tr><th></th>`)
	for _, a := range r.Facilities {
		fmt.Fprintf(b, `<th data-facility="%d"%s>%s</th>`, a.Facility.ID, disabledClass(a), html.EscapeString(FacilityName(a.Facility.ID)))
	}
	b.WriteString(`</tr></thead><tbody>`)

	for _, row := range e.rows {
		if !row.Enabled {
			continue
		}
		def, ok := rowDefs[row.Name]
		if !ok {
			e.logger.Debug("unknown helper row", "row", row.Name)
			continue
		}
		cells := make([]cell, len(r.Facilities))
		vals := make([]int64, 0, len(cells))
		present := false
		for i, a := range r.Facilities {
			cells[i] = def.cell(r, a)
			if !cells[i].ok {
				continue
			}
			present = true
			if a.Facility.Enabled {
				vals = append(vals, cells[i].value)
			}
		}
		if !present {
			continue
		}
		top := MaxValue(vals)
		fmt.Fprintf(b, `<tr data-row="%s"><th>%s</th>`, html.EscapeString(row.Name), html.EscapeString(def.label))
		for i, c := range cells {
			if !c.ok {
				b.WriteString(`<td></td>`)
				continue
			}
			class := disabledClass(r.Facilities[i])
			if class == "" && row.HighlightMax && top > 0 && c.value == top {
				class = ` class="max"`
			}
			fmt.Fprintf(b, `<td%s>%s%s</td>`, class, c.text, html.EscapeString(row.Suffix))
		}
		b.WriteString(`</tr>`)
	}
	b.WriteString(`</tbody></table></div>`)
	return b.String()
}

// HTML computes and renders the table in one step.
func (e *Engine) HTML(cur, prev types.Message) (string, error) {
	r, err := e.Compute(cur, prev)
	if err != nil {
		return "", err
	}
	return e.Render(r), nil
}
