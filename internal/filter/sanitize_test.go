package filter

import (
	"testing"

	"github.com/yourorg/trainlink/pkg/types"
)

func TestSanitizeRemovesDenyListedKeys(t *testing.T) {
	msg := types.Message{
		"device_id":    "abc",
		"Locale":       "JPN",
		"carrier":      "docomo",
		"command_id":   int64(101),
		"command_type": int64(1),
	}

	out := Sanitize(msg, []string{"device_id", "locale", "carrier"})
	for _, k := range []string{"device_id", "Locale", "carrier"} {
		if out.Has(k) {
			t.Fatalf("expected %s removed", k)
		}
	}
	if out.Int("command_id") != 101 || out.Int("command_type") != 1 {
		t.Fatalf("expected game fields kept, got %v", out)
	}
}

func TestSanitizeNested(t *testing.T) {
	msg := types.Message{
		"header": types.Message{"auth_key": "k", "viewer_id": int64(7), "keep": "x"},
		"items":  []any{types.Message{"auth_key": "k2"}, types.Message{"name": "n"}},
	}

	out := Sanitize(msg, []string{"auth_key", "viewer_id"})
	header := out.Map("header")
	if header.Has("auth_key") || header.Has("viewer_id") {
		t.Fatalf("expected nested keys removed: %v", header)
	}
	if header.String("keep") != "x" {
		t.Fatalf("expected keep unchanged")
	}
	items := out.Maps("items")
	if items[0].Has("auth_key") {
		t.Fatalf("expected key inside sequence removed")
	}
	if items[1].String("name") != "n" {
		t.Fatalf("expected other element unchanged")
	}
}

func TestSanitizeEmptyDenyList(t *testing.T) {
	msg := types.Message{"device_id": "abc"}
	out := Sanitize(msg, nil)
	if !out.Has("device_id") {
		t.Fatalf("expected message unchanged without deny list")
	}
	if Sanitize(nil, []string{"x"}) != nil {
		t.Fatalf("expected nil for nil message")
	}
}
