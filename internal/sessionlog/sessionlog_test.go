package sessionlog

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/yourorg/trainlink/internal/config"
	"github.com/yourorg/trainlink/pkg/types"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func state(turn, speed, vital int64, skills ...int64) types.Message {
	skillArr := make([]any, 0, len(skills))
	for _, id := range skills {
		skillArr = append(skillArr, types.Message{"skill_id": id, "level": int64(1)})
	}
	return types.Message{
		"data_headers": types.Message{},
		"data": types.Message{
			"chara_info": types.Message{
				"card_id":     int64(100101),
				"scenario_id": int64(1),
				"turn":        turn,
				"speed":       speed,
				"vital":       vital,
				"skill_array": skillArr,
				"support_card_array": []any{
					types.Message{"position": int64(1), "support_card_id": int64(30001)},
				},
				"evaluation_info_array": []any{
					types.Message{"target_id": int64(1), "evaluation": turn * 5},
				},
			},
		},
	}
}

func writeArchive(t *testing.T, dir string) string {
	t.Helper()
	w, err := Create(dir, 100101, 1, 1700000000, quiet())
	if err != nil {
		t.Fatal(err)
	}
	steps := []struct {
		req  types.Message
		resp types.Message
	}{
		{nil, state(1, 100, 100)},
		{types.Message{"command_type": int64(1), "command_id": int64(101)}, state(2, 110, 80)},
		{types.Message{"viewer_ping": int64(1)}, state(2, 110, 80)},
		{types.Message{"viewer_ping": int64(2)}, state(2, 115, 80, 2001)},
		{types.Message{"command_type": int64(7), "command_id": int64(701)}, state(3, 115, 100, 2001)},
	}
	for _, s := range steps {
		if s.req != nil {
			if err := w.Append(types.Request, s.req); err != nil {
				t.Fatal(err)
			}
		}
		if err := w.Append(types.Response, s.resp); err != nil {
			t.Fatal(err)
		}
	}
	// unanswered request is never written
	if err := w.Append(types.Request, types.Message{"command_type": int64(1), "command_id": int64(102)}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return w.Path()
}

func TestArchiveFormat(t *testing.T) {
	path := writeArchive(t, t.TempDir())
	if filepath.Base(path) != "1700000000_100101_Season_Cup.gz" {
		t.Fatalf("unexpected archive name %s", filepath.Base(path))
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	raw, err := io.ReadAll(gz)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(raw, []byte("{")) || bytes.HasSuffix(raw, []byte(",")) {
		t.Fatalf("archive must be a bare comma separated list: %.40s", raw)
	}
	if n := bytes.Count(raw, []byte(`"_direction"`)); n != 9 {
		t.Fatalf("expected 9 records, got %d", n)
	}

	entries, err := ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 9 {
		t.Fatalf("expected 9 entries, got %d", len(entries))
	}
	if entries[0].Direction != types.Response || entries[1].Direction != types.Request {
		t.Fatalf("unexpected directions %v %v", entries[0].Direction, entries[1].Direction)
	}
	if entries[1].Message.Has(DirectionField) {
		t.Fatalf("direction tag must be stripped")
	}
	if entries[1].Message.Int("command_id") != 101 {
		t.Fatalf("numbers must survive the round trip")
	}
}

func TestRequestReplacedWhileBuffered(t *testing.T) {
	w, err := Open(filepath.Join(t.TempDir(), "run.gz"), quiet())
	if err != nil {
		t.Fatal(err)
	}
	_ = w.Append(types.Request, types.Message{"n": int64(1)})
	_ = w.Append(types.Request, types.Message{"n": int64(2)})
	if err := w.Append(types.Response, types.Message{"ok": true}); err != nil {
		t.Fatal(err)
	}
	entries, err := ReadFile(w.Path())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Message.Int("n") != 2 {
		t.Fatalf("expected only the latest request, got %+v", entries)
	}
}

func TestReopenKeepsSeparators(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.gz")
	w, _ := Open(path, quiet())
	_ = w.Append(types.Response, types.Message{"n": int64(1)})
	_ = w.Close()

	w, err := Open(path, quiet())
	if err != nil {
		t.Fatal(err)
	}
	_ = w.Append(types.Response, types.Message{"n": int64(2)})
	entries, err := ReadFile(path)
	if err != nil {
		t.Fatalf("reopened archive unreadable: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if err := w.Append(types.Response, types.Message{}); err != nil {
		t.Fatal(err)
	}
	_ = w.Close()
	if err := w.Append(types.Response, types.Message{}); err == nil {
		t.Fatalf("expected append after close to fail")
	}
}

func TestReplayKeepsMeaningfulRecords(t *testing.T) {
	path := writeArchive(t, t.TempDir())
	a := NewAnalyzer(nil, config.Default().Rules, quiet())
	r, err := a.ReplayFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if r.CardID != 100101 || r.Scenario != "Season Cup" || r.SupportNames[0] != "support card 30001" {
		t.Fatalf("unexpected metadata %+v", r)
	}
	if len(r.Records) != 3 {
		t.Fatalf("expected 3 records, got %+v", r.Records)
	}

	train := r.Records[0]
	if train.Action != types.ActionTraining || train.Detail != "Speed" || train.Delta.Speed != 10 || train.Delta.Energy != -20 {
		t.Fatalf("unexpected training record %+v", train)
	}
	if train.BondDelta != 5 {
		t.Fatalf("bond delta = %d", train.BondDelta)
	}
	unknown := r.Records[1]
	if unknown.Action != types.ActionUnknown || unknown.Seq != 4 || len(unknown.NewSkills) != 1 || unknown.NewSkills[0] != "skill 2001" {
		t.Fatalf("unexpected changed unknown record %+v", unknown)
	}
	rest := r.Records[2]
	if rest.Action != types.ActionRest || rest.Turn != 3 || rest.Delta.Energy != 20 {
		t.Fatalf("unexpected rest record %+v", rest)
	}
	for i := 1; i < len(r.Records); i++ {
		if r.Records[i].Seq <= r.Records[i-1].Seq {
			t.Fatalf("records out of order")
		}
	}
}

func TestCSVExport(t *testing.T) {
	dir := t.TempDir()
	path := writeArchive(t, dir)
	a := NewAnalyzer(nil, config.Default().Rules, quiet())

	out, err := a.Export([]string{path}, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0] != CSVPath(path) {
		t.Fatalf("unexpected export paths %v", out)
	}
	data, err := os.ReadFile(out[0])
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if lines[0] != "scenario,Season Cup" || lines[2] != "support_1,support card 30001" {
		t.Fatalf("unexpected metadata %v", lines[:3])
	}
	if lines[8] != "" || !strings.HasPrefix(lines[9], "seq,turn,action") {
		t.Fatalf("expected blank row then header, got %q %q", lines[8], lines[9])
	}
	if len(lines) != 13 {
		t.Fatalf("expected 3 record rows, got %d lines", len(lines))
	}

	second := filepath.Join(dir, "other")
	if err := os.Mkdir(second, 0o755); err != nil {
		t.Fatal(err)
	}
	path2 := writeArchive(t, second)
	combined := filepath.Join(dir, "all.csv")
	if _, err := a.Export([]string{path, path2}, combined); err != nil {
		t.Fatal(err)
	}
	data, err = os.ReadFile(combined)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	if !strings.Contains(text, "\nrun,seq,turn,action") || !strings.Contains(text, "\n2,2,2,training,Speed") {
		t.Fatalf("unexpected combined export:\n%s", text)
	}
}

func TestSanitizeName(t *testing.T) {
	if got := SanitizeName("a b/c:d"); got != "a_b_c_d" {
		t.Fatalf("SanitizeName = %q", got)
	}
}
