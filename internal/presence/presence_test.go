package presence

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestLogOnlyWritesChanges(t *testing.T) {
	var buf bytes.Buffer
	l := NewLog(slog.New(slog.NewTextHandler(&buf, nil)))
	s := Status{Details: "Training", State: "Turn 5", Turn: 5}
	l.Update(s)
	l.Update(s)
	if n := strings.Count(buf.String(), "msg=status"); n != 1 {
		t.Fatalf("expected one log line, got %d", n)
	}
	if l.Current() != s {
		t.Fatalf("unexpected current status %+v", l.Current())
	}
	l.Update(Status{Details: "Racing"})
	if n := strings.Count(buf.String(), "msg=status"); n != 2 {
		t.Fatalf("expected second log line, got %d", n)
	}
}
