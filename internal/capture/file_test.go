package capture

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yourorg/trainlink/pkg/types"
)

func TestParseName(t *testing.T) {
	f, err := ParseName(filepath.Join("caps", "00001700000000123R.msgpack"))
	if err != nil {
		t.Fatal(err)
	}
	if f.Direction != types.Response {
		t.Fatalf("expected response, got %v", f.Direction)
	}
	if f.Stamp != 1700000000123 {
		t.Fatalf("unexpected stamp %d", f.Stamp)
	}
	if !f.Timestamp.Equal(time.UnixMilli(1700000000123)) {
		t.Fatalf("unexpected timestamp %v", f.Timestamp)
	}

	req, err := ParseName("00001700000000123.msgpack")
	if err != nil {
		t.Fatal(err)
	}
	if req.Direction != types.Request {
		t.Fatalf("expected request")
	}
}

func TestParseNameRejectsOtherFiles(t *testing.T) {
	for _, name := range []string{"notes.txt", "R.msgpack", "12a4.msgpack", ".msgpack"} {
		if _, err := ParseName(name); !errors.Is(err, ErrNotCapture) {
			t.Fatalf("%s: expected ErrNotCapture, got %v", name, err)
		}
	}
}

func TestListOrdersByWriteTimeThenRequestFirst(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Add(-time.Minute).Truncate(time.Second)
	write := func(name string, mod time.Time) {
		t.Helper()
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte{0x80}, 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.Chtimes(p, mod, mod); err != nil {
			t.Fatal(err)
		}
	}
	write("00001700000000300.msgpack", base.Add(2*time.Second))
	write("00001700000000100R.msgpack", base)
	write("00001700000000100.msgpack", base)
	write("ignored.txt", base)

	files, err := List(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 3 {
		t.Fatalf("expected 3 capture files, got %d", len(files))
	}
	if files[0].Direction != types.Request || files[0].Stamp != 1700000000100 {
		t.Fatalf("expected request first, got %+v", files[0])
	}
	if files[1].Direction != types.Response || files[1].Stamp != 1700000000100 {
		t.Fatalf("expected matching response second, got %+v", files[1])
	}
	if files[2].Stamp != 1700000000300 {
		t.Fatalf("expected newest write last, got %+v", files[2])
	}
}
