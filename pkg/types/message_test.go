package types

import (
	"encoding/json"
	"testing"
)

func TestNormalizeNarrowsWholeFloats(t *testing.T) {
	in := map[string]any{
		"vital": float64(50),
		"rate":  float32(2),
		"ratio": 0.25,
		"num":   json.Number("7.0"),
		"inner": map[any]any{"turn": float64(12)},
	}
	m, ok := AsMessage(in)
	if !ok {
		t.Fatalf("expected a message")
	}
	if v, ok := m["vital"].(int64); !ok || v != 50 {
		t.Fatalf("vital = %#v, want int64 50", m["vital"])
	}
	if v, ok := m["rate"].(int64); !ok || v != 2 {
		t.Fatalf("rate = %#v, want int64 2", m["rate"])
	}
	if v, ok := m["ratio"].(float64); !ok || v != 0.25 {
		t.Fatalf("ratio = %#v, want float64 0.25", m["ratio"])
	}
	if v, ok := m["num"].(int64); !ok || v != 7 {
		t.Fatalf("num = %#v, want int64 7", m["num"])
	}
	if m.Map("inner").Int("turn") != 12 {
		t.Fatalf("nested float not normalized: %#v", m["inner"])
	}
	if _, ok := m.Map("inner")["turn"].(int64); !ok {
		t.Fatalf("nested turn = %#v, want int64", m.Map("inner")["turn"])
	}
}

func TestCloneIsDeep(t *testing.T) {
	m := Message{"a": Message{"b": int64(1)}, "c": []any{int64(2)}}
	c := m.Clone()
	c.Map("a")["b"] = int64(9)
	c.Slice("c")[0] = int64(9)
	if n, _ := AsInt(m.Slice("c")[0]); m.Map("a").Int("b") != 1 || n != 2 {
		t.Fatalf("clone shares state with original: %#v", m)
	}
}
