package sessionlog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"

	"github.com/yourorg/trainlink/pkg/types"
)

// Entry is one archived message.
type Entry struct {
	Direction types.Direction
	Message   types.Message
}

// ReadFile reads every entry of an archive in order.
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	entries, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("read archive %s: %w", path, err)
	}
	return entries, nil
}

// Read decodes an archive stream.
func Read(r io.Reader) ([]Entry, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer gz.Close()
	raw, err := io.ReadAll(gz)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(len(raw) + 2)
	buf.WriteByte('[')
	buf.Write(raw)
	buf.WriteByte(']')

	dec := json.NewDecoder(&buf)
	dec.UseNumber()
	var items []any
	if err := dec.Decode(&items); err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(items))
	for n, item := range items {
		msg, ok := types.AsMessage(item)
		if !ok {
			return nil, fmt.Errorf("record %d is not an object", n)
		}
		dir := types.Response
		if d, ok := types.AsInt(msg[DirectionField]); ok && types.Direction(d) == types.Request {
			dir = types.Request
		}
		delete(msg, DirectionField)
		out = append(out, Entry{Direction: dir, Message: msg})
	}
	return out, nil
}
