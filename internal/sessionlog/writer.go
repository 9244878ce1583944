// Package sessionlog keeps the compressed per-run archive of decoded
// messages and replays archives into action timelines.
//
// An archive is a gzip file whose decompressed content is a comma separated
// list of JSON objects; wrap it in brackets to parse it. Every flushed
// request/response pair is appended as its own gzip member.
package sessionlog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/klauspost/compress/gzip"

	"github.com/yourorg/trainlink/pkg/types"
)

// DirectionField is the field injected into every archived message.
const DirectionField = "_direction"

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// SanitizeName maps name onto a safe filename alphabet.
func SanitizeName(name string) string {
	return unsafeChars.ReplaceAllString(name, "_")
}

// ArchiveName returns the archive file name for a run.
func ArchiveName(cardID, scenarioID, startTime int64) string {
	return SanitizeName(fmt.Sprintf("%d_%d_%s", startTime, cardID, types.Scenario(scenarioID).String())) + ".gz"
}

// Writer appends messages of one run to its archive. Requests are held back
// until the matching response arrives so an unanswered request never reaches
// the file.
type Writer struct {
	path   string
	logger *slog.Logger

	mu      sync.Mutex
	pending types.Message
	written int
	closed  bool
}

// Create opens the archive for a run in dir. An existing archive (the app was
// restarted mid-run) is appended to.
func Create(dir string, cardID, scenarioID, startTime int64, logger *slog.Logger) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	return Open(filepath.Join(dir, ArchiveName(cardID, scenarioID, startTime)), logger)
}

// Open returns a writer appending to path.
func Open(path string, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Writer{path: path, logger: logger}
	info, err := os.Stat(path)
	switch {
	case err == nil && info.Size() > 0:
		// any earlier record means the next one needs a separator
		w.written = 1
	case err != nil && !os.IsNotExist(err):
		return nil, err
	}
	return w, nil
}

func (w *Writer) Path() string {
	return w.path
}

// Append records msg. A request replaces a still buffered one: the earlier
// request never got an answer.
func (w *Writer) Append(dir types.Direction, msg types.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("archive %s is closed", w.path)
	}
	if dir == types.Request {
		if w.pending != nil {
			w.logger.Debug("dropping unanswered request from archive", "path", w.path)
		}
		w.pending = msg
		return nil
	}

	records := make([]types.Message, 0, 2)
	if w.pending != nil {
		records = append(records, tagged(w.pending, types.Request))
		w.pending = nil
	}
	records = append(records, tagged(msg, types.Response))
	return w.writeMember(records)
}

func tagged(msg types.Message, dir types.Direction) types.Message {
	out := make(types.Message, len(msg)+1)
	for k, v := range msg {
		out[k] = v
	}
	out[DirectionField] = int(dir)
	return out
}

func (w *Writer) writeMember(records []types.Message) error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			_ = gz.Close()
			return fmt.Errorf("encode archive record: %w", err)
		}
		if w.written > 0 {
			if _, err := gz.Write([]byte{','}); err != nil {
				_ = gz.Close()
				return err
			}
		}
		if _, err := gz.Write(data); err != nil {
			_ = gz.Close()
			return err
		}
		w.written++
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("finish archive member: %w", err)
	}
	return f.Sync()
}

// Close drops any unpaired request.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = nil
	w.closed = true
	return nil
}
