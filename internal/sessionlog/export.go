package sessionlog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/yourorg/trainlink/pkg/types"
)

var header = []string{
	"seq", "turn", "action", "detail",
	"speed", "stamina", "power", "guts", "wisdom", "energy", "skill_points",
	"d_speed", "d_stamina", "d_power", "d_guts", "d_wisdom", "d_energy", "d_skill_points",
	"bond_delta", "new_skills", "new_statuses",
}

func metadata(r *Replay) [][]string {
	rows := [][]string{
		{"scenario", r.Scenario},
		{"character", r.Character},
	}
	for i, name := range r.SupportNames {
		rows = append(rows, []string{fmt.Sprintf("support_%d", i+1), name})
	}
	return rows
}

func recordRow(rec types.ActionRecord) []string {
	i := func(v int64) string { return strconv.FormatInt(v, 10) }
	s, d := rec.Stats, rec.Delta
	return []string{
		strconv.Itoa(rec.Seq), i(rec.Turn), string(rec.Action), rec.Detail,
		i(s.Speed), i(s.Stamina), i(s.Power), i(s.Guts), i(s.Wisdom), i(s.Energy), i(s.SkillPoint),
		i(d.Speed), i(d.Stamina), i(d.Power), i(d.Guts), i(d.Wisdom), i(d.Energy), i(d.SkillPoint),
		i(rec.BondDelta), strings.Join(rec.NewSkills, "; "), strings.Join(rec.NewStatuses, "; "),
	}
}

// WriteCSV writes one run: metadata rows, a blank row, the header and one
// row per record.
func WriteCSV(w io.Writer, r *Replay) error {
	cw := csv.NewWriter(w)
	for _, row := range metadata(r) {
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	if err := cw.Write([]string{""}); err != nil {
		return err
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, rec := range r.Records {
		if err := cw.Write(recordRow(rec)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCombinedCSV writes several runs into one table with a leading run
// column (1-based, in input order).
func WriteCombinedCSV(w io.Writer, runs []*Replay) error {
	cw := csv.NewWriter(w)
	for n, r := range runs {
		idx := strconv.Itoa(n + 1)
		for _, row := range metadata(r) {
			if err := cw.Write(append([]string{idx}, row...)); err != nil {
				return err
			}
		}
	}
	if err := cw.Write([]string{""}); err != nil {
		return err
	}
	if err := cw.Write(append([]string{"run"}, header...)); err != nil {
		return err
	}
	for n, r := range runs {
		idx := strconv.Itoa(n + 1)
		for _, rec := range r.Records {
			if err := cw.Write(append([]string{idx}, recordRow(rec)...)); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// CSVPath returns the export path next to an archive.
func CSVPath(archive string) string {
	return strings.TrimSuffix(archive, filepath.Ext(archive)) + ".csv"
}

// Export replays archives and writes CSV. One input gives one CSV, several
// inputs one combined CSV. out overrides the destination; by default the CSV
// goes next to the first input. It returns the file written.
func (a *Analyzer) Export(paths []string, out string) ([]string, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no archives given")
	}
	runs := make([]*Replay, 0, len(paths))
	for _, p := range paths {
		r, err := a.ReplayFile(p)
		if err != nil {
			return nil, err
		}
		a.logger.Info("archive replayed", "path", p, "records", len(r.Records))
		runs = append(runs, r)
	}

	if len(runs) == 1 {
		if out == "" {
			out = CSVPath(paths[0])
		}
		return []string{out}, writeFile(out, func(w io.Writer) error { return WriteCSV(w, runs[0]) })
	}
	if out == "" {
		out = filepath.Join(filepath.Dir(paths[0]), "combined.csv")
	}
	return []string{out}, writeFile(out, func(w io.Writer) error { return WriteCombinedCSV(w, runs) })
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
