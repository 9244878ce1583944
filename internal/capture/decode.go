package capture

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/yourorg/trainlink/internal/filter"
	"github.com/yourorg/trainlink/pkg/types"
)

// DecodeError means the file bytes are not a serialized map.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

var sleepFn = time.Sleep

// Decoder turns capture files into messages.
type Decoder struct {
	HeaderSize  int
	Retries     int
	RetryDelay  time.Duration
	RequestKeys []string
	Logger      *slog.Logger

	readFile func(string) ([]byte, error)
}

// Decode reads and decodes one capture file. Requests lose their transport
// header and every deny-listed key.
func (d *Decoder) Decode(f types.CaptureFile) (types.Message, error) {
	data, err := d.read(f.Path)
	if err != nil {
		return nil, err
	}
	return d.DecodeBytes(f.Path, data, f.Direction)
}

// DecodeBytes decodes an already read capture payload.
func (d *Decoder) DecodeBytes(path string, data []byte, dir types.Direction) (types.Message, error) {
	if dir == types.Request {
		if len(data) < d.HeaderSize {
			return nil, &DecodeError{Path: path, Err: fmt.Errorf("request shorter than %d byte header", d.HeaderSize)}
		}
		data = data[d.HeaderSize:]
	}
	msg, err := Unmarshal(data)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	if dir == types.Request {
		msg = filter.Sanitize(msg, d.RequestKeys)
	}
	return msg, nil
}

// Unmarshal decodes msgpack bytes whose top level must be a map.
func Unmarshal(data []byte) (types.Message, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)
	// keys are not always strings on the wire
	dec.SetMapDecoder(func(d *msgpack.Decoder) (any, error) {
		return d.DecodeUntypedMap()
	})
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	msg, ok := types.AsMessage(v)
	if !ok {
		return nil, fmt.Errorf("top level is %T, not a map", v)
	}
	return msg, nil
}

func (d *Decoder) read(path string) ([]byte, error) {
	readFile := d.readFile
	if readFile == nil {
		readFile = os.ReadFile
	}
	var lastErr error
	for attempt := 0; attempt <= d.Retries; attempt++ {
		data, err := readFile(path)
		if err == nil {
			return data, nil
		}
		if !isSharingViolation(err) {
			return nil, err
		}
		lastErr = err
		d.logger().Debug("capture file still locked by writer", "path", path, "attempt", attempt+1)
		if attempt < d.Retries {
			sleepFn(d.RetryDelay)
		}
	}
	return nil, fmt.Errorf("capture file locked after %d attempts: %w", d.Retries+1, lastErr)
}

func (d *Decoder) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}
